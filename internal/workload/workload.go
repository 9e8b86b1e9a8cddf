// Package workload is a synthetic frame loop that drives the coordinator the
// way a rendering host would: one monitor call and one timed section per
// frame, with worker threads joining and leaving the hint session.
package workload

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/thermhint/internal/coordinator"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/metrics"
	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/jonboulle/clockwork"
)

// Work performs one worker's share of a frame within budget.
type Work func(ctx context.Context, budget time.Duration)

// Host runs frames against a coordinator.
type Host struct {
	coord     *coordinator.Coordinator
	clock     clockwork.Clock
	log       logger.Logger
	collector metrics.Collector
	work      Work
	threadID  func() int32

	frameInterval time.Duration
	target        time.Duration
	workers       int
	// load is the share of the target spent working at full scale.
	load float64

	scale  atomic.Uint64 // float64 bits
	frames atomic.Int64
}

// sink keeps the spin loop from being optimized away.
var sink atomic.Uint64

type Option func(*Host)

func WithClock(clock clockwork.Clock) Option {
	return func(h *Host) { h.clock = clock }
}

func WithLogger(log logger.Logger) Option {
	return func(h *Host) { h.log = log }
}

// WithCollector records a snapshot per frame.
func WithCollector(c metrics.Collector) Option {
	return func(h *Host) { h.collector = c }
}

func WithWork(w Work) Option {
	return func(h *Host) { h.work = w }
}

// WithThreadID overrides the thread id source used by workers.
func WithThreadID(fn func() int32) Option {
	return func(h *Host) { h.threadID = fn }
}

func WithWorkers(n int) Option {
	return func(h *Host) { h.workers = n }
}

func WithFrameInterval(d time.Duration) Option {
	return func(h *Host) { h.frameInterval = d }
}

func WithTarget(d time.Duration) Option {
	return func(h *Host) { h.target = d }
}

func WithLoad(load float64) Option {
	return func(h *Host) { h.load = load }
}

func New(coord *coordinator.Coordinator, opts ...Option) *Host {
	h := &Host{
		coord:         coord,
		clock:         clockwork.NewRealClock(),
		log:           logger.Nop(),
		threadID:      platform.Gettid,
		frameInterval: time.Duration(platform.DefaultTargetNanos),
		target:        time.Duration(platform.DefaultTargetNanos),
		load:          0.6,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.work == nil {
		h.work = h.spin
	}
	h.scale.Store(math.Float64bits(1))

	return h
}

// Scale is the current fraction of full per-frame work.
func (h *Host) Scale() float64 {
	return math.Float64frombits(h.scale.Load())
}

func (h *Host) Frames() int64 {
	return h.frames.Load()
}

// scaleFor sheds work as throttling deepens.
func scaleFor(status platform.ThermalStatus) float64 {
	switch {
	case status >= platform.StatusSevere:
		return 0.25
	case status >= platform.StatusModerate:
		return 0.5
	case status == platform.StatusLight:
		return 0.85
	default:
		return 1
	}
}

// OnThermalStatus is installed as the coordinator's thermal listener.
func (h *Host) OnThermalStatus(previous, current platform.ThermalStatus) {
	scale := scaleFor(current)
	h.scale.Store(math.Float64bits(scale))
	h.log.Info().
		Str("previous", previous.String()).
		Str("current", current.String()).
		Float64("scale", scale).
		Msg("Thermal status changed")
}

type worker struct {
	jobs chan time.Duration
	done chan struct{}
}

// Run installs the thermal listener, starts the workers and runs frames
// until ctx is done. Workers leave the hint session before Run returns.
func (h *Host) Run(ctx context.Context) error {
	h.coord.SetThermalListener(h.OnThermalStatus)
	if err := h.coord.RegisterThermalStatusListener(); err != nil {
		h.log.Warn().Err(err).Msg("Thermal status push unavailable, relying on polling")
	}
	defer func() {
		if err := h.coord.UnregisterThermalStatusListener(); err != nil {
			h.log.Debug().Err(err).Msg("Failed to unregister thermal status listener")
		}
	}()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	pool, joined := h.startWorkers(workerCtx)
	defer func() {
		stopWorkers()
		joined.Wait()
	}()

	ticker := h.clock.NewTicker(h.frameInterval)
	defer ticker.Stop()

	h.log.Info().
		Int("workers", len(pool)).
		Dur("frame_interval", h.frameInterval).
		Dur("target", h.target).
		Msg("Frame loop started")

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Int64("frames", h.Frames()).Msg("Frame loop stopped")
			return nil
		case <-ticker.Chan():
			h.frame(ctx, pool)
		}
	}
}

// Frame runs a single frame on the calling goroutine without workers.
func (h *Host) Frame(ctx context.Context) {
	h.frame(ctx, nil)
}

func (h *Host) frame(ctx context.Context, pool []*worker) {
	h.coord.Monitor()
	h.coord.BeginPerfHintSession()
	start := h.clock.Now()

	budget := time.Duration(float64(h.target) * h.load * h.Scale())
	share := budget / time.Duration(len(pool)+1)

	dispatched := pool[:0:0]
	for _, w := range pool {
		select {
		case w.jobs <- share:
			dispatched = append(dispatched, w)
		case <-ctx.Done():
		}
	}
	h.work(ctx, share)
	for _, w := range dispatched {
		select {
		case <-w.done:
		case <-ctx.Done():
		}
	}

	actual := h.clock.Since(start)
	h.coord.EndPerfHintSession(h.target.Nanoseconds())
	h.frames.Add(1)

	h.record(ctx, actual)
}

func (h *Host) record(ctx context.Context, actual time.Duration) {
	if h.collector == nil {
		return
	}

	caps := h.coord.Capabilities()
	session := h.coord.HintSession()
	status := h.coord.ThermalStatus()

	err := h.collector.Record(ctx, &metrics.Snapshot{
		Timestamp:     h.clock.Now(),
		ThermalStatus: int(status),
		Headroom:      h.coord.ThermalHeadroom(),
		Actual:        actual,
		Target:        h.target,
		Threads:       len(session.Threads()),
		SessionID:     session.ID().String(),
		ThermalTier:   string(caps.Thermal),
		HintTier:      string(caps.Hint),
		Throttled:     status.Throttled(),
	})
	if err != nil {
		h.log.Debug().Err(err).Msg("Failed to record frame snapshot")
	}
}
