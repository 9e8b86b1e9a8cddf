// Package sim is a simulated device exposing both capability tiers. It
// records every platform call so tests can assert on the boundary traffic.
package sim

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/platform"
	"codeberg.org/mutker/thermhint/internal/service"
	"github.com/jonboulle/clockwork"
)

// Recorded operations.
const (
	OpThermalAcquire    = "thermal.acquire"
	OpThermalRelease    = "thermal.release"
	OpThermalHeadroom   = "thermal.headroom"
	OpThermalStatus     = "thermal.status"
	OpThermalRegister   = "thermal.register"
	OpThermalUnregister = "thermal.unregister"
	OpHintCreate        = "hint.create"
	OpHintReport        = "hint.report"
	OpHintUpdateTarget  = "hint.update_target"
	OpHintSetThreads    = "hint.set_threads"
	OpHintClose         = "hint.close"
)

const (
	defaultPreferredRate = int64(16666666)
	ambientHeadroom      = 0.3
	heatRate             = 0.05 // headroom per second at full utilisation
	coolRate             = 0.02 // fraction of excess headroom shed per second
)

// Options shape the capabilities the device exposes.
type Options struct {
	APILevel int
	Clock    clockwork.Clock

	// NoDirect hides the direct-handle acquirers.
	NoDirect bool
	// NoServices hides the reflective service registry.
	NoServices bool
	// FailSessionCreate makes every session creation fail.
	FailSessionCreate bool
	// SetThreadsPanics makes reflective SetThreads raise an exception.
	SetThreadsPanics bool

	InitialHeadroom float32
	// EventLimit bounds the recorded call log; zero keeps everything.
	EventLimit int
}

// Event is one recorded platform call.
type Event struct {
	Op      string
	Session int
	Value   int64
	Threads []int32
}

// Device is a simulated thermal and scheduling platform.
type Device struct {
	opts  Options
	clock clockwork.Clock

	mu        sync.Mutex
	events    []Event
	headroom  float32
	status    platform.ThermalStatus
	listener  func(platform.ThermalStatus)
	nextID    int
	open      map[int]bool
	workNanos int64
	lastStep  time.Time

	registry *service.Registry
}

func New(opts Options) *Device {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	d := &Device{
		opts:     opts,
		clock:    opts.Clock,
		headroom: opts.InitialHeadroom,
		open:     make(map[int]bool),
		lastStep: opts.Clock.Now(),
	}
	d.status = platform.StatusFromHeadroom(d.headroom)

	if !opts.NoServices {
		d.registry = service.NewRegistry()
		if opts.APILevel >= platform.LevelThermalHeadroom {
			d.registry.Register(service.PowerService, &powerService{dev: d})
		} else {
			d.registry.Register(service.PowerService, &legacyPowerService{})
		}
		d.registry.Register(service.PerformanceHintService, &hintService{dev: d})
	}

	return d
}

// Application returns the handle a host would pass to SetApplication.
func (d *Device) Application() *platform.Application {
	app := &platform.Application{
		Name:     "sim",
		APILevel: d.opts.APILevel,
		Services: d.registry,
	}

	if !d.opts.NoDirect {
		app.AcquireThermalManager = func() (platform.ThermalManager, error) {
			d.record(Event{Op: OpThermalAcquire})
			return &thermalManager{dev: d}, nil
		}
		app.AcquireHintManager = func() (platform.HintManager, error) {
			return &hintManager{dev: d}, nil
		}
	}

	return app
}

// Registry exposes the reflective services, nil when hidden.
func (d *Device) Registry() *service.Registry {
	return d.registry
}

// Events returns a copy of the recorded calls.
func (d *Device) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Count returns how many times op was recorded.
func (d *Device) Count(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.events {
		if e.Op == op {
			n++
		}
	}
	return n
}

// Last returns the most recent event for op.
func (d *Device) Last(op string) (Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.events) - 1; i >= 0; i-- {
		if d.events[i].Op == op {
			return d.events[i], true
		}
	}
	return Event{}, false
}

// OpenSessions returns the number of sessions created and not yet closed.
func (d *Device) OpenSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

// Headroom returns the device's current headroom.
func (d *Device) Headroom() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.headroom
}

// SetHeadroom overrides the current headroom without pushing a status.
func (d *Device) SetHeadroom(h float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.headroom = h
}

// Push sets the status and delivers it to the registered callback on the
// calling goroutine.
func (d *Device) Push(status platform.ThermalStatus) {
	d.mu.Lock()
	d.status = status
	fn := d.listener
	d.mu.Unlock()

	if fn != nil {
		fn(status)
	}
}

// Step advances the heat model to now and pushes a status change.
func (d *Device) Step() {
	d.mu.Lock()
	now := d.clock.Now()
	dt := now.Sub(d.lastStep).Seconds()
	d.lastStep = now
	if dt <= 0 {
		d.mu.Unlock()
		return
	}

	util := float64(d.workNanos) / (dt * float64(time.Second))
	d.workNanos = 0
	h := float64(d.headroom)
	h += (util*heatRate - (h-ambientHeadroom)*coolRate) * dt
	if h < 0 {
		h = 0
	}
	d.headroom = float32(h)

	status := platform.StatusFromHeadroom(d.headroom)
	changed := status != d.status
	d.mu.Unlock()

	if changed {
		d.Push(status)
	}
}

// Run steps the heat model every interval until ctx is done. Status pushes
// are delivered on this goroutine.
func (d *Device) Run(ctx context.Context, interval time.Duration) {
	ticker := d.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			d.Step()
		}
	}
}

func (d *Device) record(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendLocked(e)
}

func (d *Device) appendLocked(e Event) {
	d.events = append(d.events, e)
	if limit := d.opts.EventLimit; limit > 0 && len(d.events) > 2*limit {
		d.events = append(d.events[:0], d.events[len(d.events)-limit:]...)
	}
}

func (d *Device) createSession(tids []int32, target int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	threads := append([]int32(nil), tids...)
	if d.opts.FailSessionCreate || len(threads) == 0 {
		d.appendLocked(Event{Op: OpHintCreate, Session: -1, Value: target, Threads: threads})
		return 0, errors.New().New(errors.ErrSessionCreation)
	}

	d.nextID++
	id := d.nextID
	d.open[id] = true
	d.appendLocked(Event{Op: OpHintCreate, Session: id, Value: target, Threads: threads})

	return id, nil
}

func (d *Device) closeSession(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.open, id)
	d.appendLocked(Event{Op: OpHintClose, Session: id})
}

func (d *Device) report(id int, actual int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workNanos += actual
	d.appendLocked(Event{Op: OpHintReport, Session: id, Value: actual})
}
