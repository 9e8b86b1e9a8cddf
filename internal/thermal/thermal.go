// Package thermal tracks the platform's thermal status and headroom and fans
// status changes out to a single listener.
package thermal

import (
	"sync"
	"time"

	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/jonboulle/clockwork"
)

// DefaultRefreshInterval bounds how often Monitor re-queries headroom.
const DefaultRefreshInterval = time.Second

// Listener receives every status update, including unchanged ones.
type Listener func(previous, current platform.ThermalStatus)

// Observer receives thermal samples for instrumentation.
type Observer interface {
	ObserveThermalStatus(status platform.ThermalStatus)
	ObserveHeadroom(headroom float32)
	ObserveBoundaryFailure(component, operation string)
}

// Monitor caches the thermal state of the device. Status, Headroom and the
// listener are safe for concurrent use; updates may arrive from a platform
// callback goroutine while the frame loop polls.
type Monitor struct {
	log      logger.Logger
	clock    clockwork.Clock
	interval time.Duration
	obs      Observer

	mu       sync.RWMutex
	status   platform.ThermalStatus
	headroom float32
	listener Listener

	// pollMu serializes strategy access and the refresh timestamp.
	pollMu      sync.Mutex
	strategy    strategy
	lastRefresh time.Time
	registered  bool
	closed      bool
}

type Option func(*Monitor)

func WithLogger(log logger.Logger) Option {
	return func(m *Monitor) { m.log = log }
}

func WithClock(clock clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = clock }
}

func WithRefreshInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

func WithObserver(obs Observer) Option {
	return func(m *Monitor) { m.obs = obs }
}

func New(opts ...Option) *Monitor {
	m := &Monitor{
		log:      logger.Nop(),
		clock:    clockwork.NewRealClock(),
		interval: DefaultRefreshInterval,
		strategy: unsupported{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastRefresh = m.clock.Now()

	return m
}

// Initialize selects the capability tier for app and seeds the cached
// headroom. On error the monitor stays usable and reports zero headroom.
func (m *Monitor) Initialize(app *platform.Application) error {
	s, err := detect(app, m.log)

	m.pollMu.Lock()
	m.strategy = s
	m.log.Info().Str("tier", string(s.tier())).Msg("Thermal monitor initialized")
	if err != nil {
		m.pollMu.Unlock()
		return err
	}
	status, changed := m.refreshLocked(m.clock.Now())
	m.pollMu.Unlock()

	if changed {
		m.SetStatus(status)
	}

	return nil
}

// Tier returns the active capability tier.
func (m *Monitor) Tier() platform.Tier {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()
	return m.strategy.tier()
}

// Monitor refreshes headroom when the refresh interval has elapsed since the
// last refresh. Call it once per frame; extra calls are no-ops.
func (m *Monitor) Monitor() {
	m.pollMu.Lock()
	now := m.clock.Now()
	if now.Sub(m.lastRefresh) < m.interval {
		m.pollMu.Unlock()
		return
	}
	status, changed := m.refreshLocked(now)
	m.pollMu.Unlock()

	// Forwarded outside pollMu so the listener may call back into the
	// monitor.
	if changed {
		m.SetStatus(status)
	}
}

// refreshLocked re-queries the platform and reports a polled status that
// differs from the cached one; pushed updates are never filtered.
func (m *Monitor) refreshLocked(now time.Time) (platform.ThermalStatus, bool) {
	m.lastRefresh = now
	if m.strategy.tier() == platform.TierUnsupported {
		return 0, false
	}

	headroom, err := m.strategy.headroom(m.interval)
	if err != nil {
		m.log.Debug().Err(err).Msg("Failed to refresh thermal headroom")
		m.observeFailure("headroom")
		return 0, false
	}

	m.mu.Lock()
	m.headroom = headroom
	current := m.status
	m.mu.Unlock()

	m.log.Debug().Float32("headroom", headroom).Msg("Thermal headroom refreshed")
	if m.obs != nil {
		m.obs.ObserveHeadroom(headroom)
	}

	status, ok := m.strategy.status()
	return status, ok && status != current
}

// Status returns the cached thermal status.
func (m *Monitor) Status() platform.ThermalStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Headroom returns the cached thermal headroom.
func (m *Monitor) Headroom() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.headroom
}

// SetStatus stores status and invokes the listener with the previous and
// new values. The listener runs on the calling goroutine after the state
// lock is released.
func (m *Monitor) SetStatus(status platform.ThermalStatus) {
	m.mu.Lock()
	previous := m.status
	m.status = status
	listener := m.listener
	m.mu.Unlock()

	m.log.Info().
		Str("previous", previous.String()).
		Str("current", status.String()).
		Msg("Thermal status updated")

	if m.obs != nil {
		m.obs.ObserveThermalStatus(status)
	}
	if listener != nil {
		listener(previous, status)
	}
}

// SetListener replaces the listener. A nil listener clears it.
func (m *Monitor) SetListener(fn Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
}

// RegisterPlatformListener subscribes to pushed status updates. It is a
// no-op unless the direct tier is active, and when already registered.
func (m *Monitor) RegisterPlatformListener() error {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	if m.registered || m.closed {
		return nil
	}

	ok, err := m.strategy.register(m.SetStatus)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to register thermal status callback")
		m.observeFailure("register")
		return err
	}
	m.registered = ok
	m.log.Info().Bool("registered", ok).Msg("Thermal status callback registration")

	return nil
}

// UnregisterPlatformListener undoes RegisterPlatformListener.
func (m *Monitor) UnregisterPlatformListener() error {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()
	return m.unregisterLocked()
}

func (m *Monitor) unregisterLocked() error {
	if !m.registered {
		return nil
	}

	m.registered = false
	if err := m.strategy.unregister(); err != nil {
		m.log.Warn().Err(err).Msg("Failed to unregister thermal status callback")
		m.observeFailure("unregister")
		return err
	}
	m.log.Info().Msg("Thermal status callback unregistered")

	return nil
}

// Close unregisters from the platform and releases held handles. The
// cached values remain readable.
func (m *Monitor) Close() error {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	uerr := m.unregisterLocked()
	rerr := m.strategy.release()
	m.strategy = unsupported{}

	if rerr != nil {
		return rerr
	}
	return uerr
}

func (m *Monitor) observeFailure(op string) {
	if m.obs != nil {
		m.obs.ObserveBoundaryFailure("thermal", op)
	}
}
