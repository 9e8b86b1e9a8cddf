package sysfs

import (
	"sync"
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/jonboulle/clockwork"
)

type thermalManager struct {
	zones  []Zone
	clock  clockwork.Clock
	log    logger.Logger
	window *platform.Window
	poller *platform.StatusPoller

	mu       sync.Mutex
	released bool
}

// NewThermalManager samples every zone under root and reports the hottest
// one relative to its own threshold.
func NewThermalManager(opts Options) (platform.ThermalManager, error) {
	opts = opts.withDefaults()

	zones, err := DiscoverZones(opts.Root)
	if err != nil {
		return nil, err
	}

	for _, z := range zones {
		opts.Logger.Debug().
			Str("zone", z.Name).
			Str("type", z.Type).
			Int64("severe_millic", z.severe).
			Msg("Discovered thermal zone")
	}

	m := &thermalManager{
		zones:  zones,
		clock:  opts.Clock,
		log:    opts.Logger,
		window: platform.NewWindow(opts.WindowSize),
	}
	m.poller = platform.NewStatusPoller(opts.Clock, opts.PollInterval, m.Status)

	return m, nil
}

// sample returns the maximum headroom across zones. Unreadable zones are
// skipped unless all of them fail.
func (m *thermalManager) sample() (float32, error) {
	var (
		worst   float32
		readErr error
		ok      bool
	)
	for _, z := range m.zones {
		h, err := z.Headroom()
		if err != nil {
			readErr = err
			continue
		}
		if !ok || h > worst {
			worst = h
		}
		ok = true
	}
	if !ok {
		return 0, readErr
	}
	return worst, nil
}

func (m *thermalManager) Headroom(forecast time.Duration) (float32, error) {
	if m.isReleased() {
		return 0, errors.New().New(errors.ErrReferenceReleased)
	}

	h, err := m.sample()
	if err != nil {
		return 0, err
	}
	m.window.Add(m.clock.Now(), h)

	projected, _ := m.window.Forecast(forecast)
	return projected, nil
}

func (m *thermalManager) Status() (platform.ThermalStatus, error) {
	h, err := m.sample()
	if err != nil {
		return platform.StatusError, err
	}
	return platform.StatusFromHeadroom(h), nil
}

func (m *thermalManager) RegisterStatusListener(fn func(platform.ThermalStatus)) error {
	if m.isReleased() {
		return errors.New().New(errors.ErrReferenceReleased)
	}
	return m.poller.Start(fn)
}

func (m *thermalManager) UnregisterStatusListener() error {
	m.poller.Stop()
	return nil
}

func (m *thermalManager) Release() error {
	m.mu.Lock()
	m.released = true
	m.mu.Unlock()

	m.poller.Stop()
	return nil
}

func (m *thermalManager) isReleased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}
