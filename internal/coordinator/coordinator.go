// Package coordinator is the application-facing facade over the thermal
// monitor and the performance hint session.
package coordinator

import (
	"sync"
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/hint"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"codeberg.org/mutker/thermhint/internal/thermal"
	"github.com/jonboulle/clockwork"
)

// Observer receives instrumentation from both subsystems.
type Observer interface {
	thermal.Observer
	hint.Observer
}

// ThermalListener is called with the previous and current thermal status.
type ThermalListener = thermal.Listener

// Capabilities describes the tiers selected at SetApplication.
type Capabilities struct {
	APILevel            int
	Thermal             platform.Tier
	Hint                platform.Tier
	ThreadSync          hint.SyncPolicy
	PreferredUpdateRate time.Duration
}

// Coordinator owns the thermal monitor and the hint session for the
// lifetime of the application. Construct one at startup and pass it to the
// code that needs it.
type Coordinator struct {
	log     logger.Logger
	thermal *thermal.Monitor
	hint    *hint.Session

	// lifecycle serializes subsystem setup against teardown. mu guards the
	// fields below and is never held while a subsystem runs the listener.
	lifecycle sync.Mutex

	mu     sync.Mutex
	app    *platform.Application
	closed bool
}

type config struct {
	log           logger.Logger
	clock         clockwork.Clock
	obs           Observer
	refresh       time.Duration
	defaultTarget time.Duration
}

type Option func(*config)

func WithLogger(log logger.Logger) Option {
	return func(c *config) { c.log = log }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *config) { c.clock = clock }
}

func WithObserver(obs Observer) Option {
	return func(c *config) { c.obs = obs }
}

// WithRefreshInterval sets the minimum time between headroom queries.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *config) { c.refresh = d }
}

// WithDefaultTarget sets the target the hint session is created with.
func WithDefaultTarget(d time.Duration) Option {
	return func(c *config) { c.defaultTarget = d }
}

func New(opts ...Option) *Coordinator {
	cfg := config{
		log:           logger.Nop(),
		clock:         clockwork.NewRealClock(),
		refresh:       thermal.DefaultRefreshInterval,
		defaultTarget: time.Duration(platform.DefaultTargetNanos),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	topts := []thermal.Option{
		thermal.WithLogger(cfg.log.With("thermal")),
		thermal.WithClock(cfg.clock),
		thermal.WithRefreshInterval(cfg.refresh),
	}
	hopts := []hint.Option{
		hint.WithLogger(cfg.log.With("hint")),
		hint.WithClock(cfg.clock),
		hint.WithDefaultTarget(cfg.defaultTarget),
	}
	if cfg.obs != nil {
		topts = append(topts, thermal.WithObserver(cfg.obs))
		hopts = append(hopts, hint.WithObserver(cfg.obs))
	}

	return &Coordinator{
		log:     cfg.log.With("coordinator"),
		thermal: thermal.New(topts...),
		hint:    hint.New(hopts...),
	}
}

// SetApplication wires both subsystems to app, thermal first. It must be
// called once before the first frame. Capability failures are logged and
// leave the affected subsystem as a no-op; only a repeated call or a nil
// app is reported as an error.
func (c *Coordinator) SetApplication(app *platform.Application) error {
	errFactory := errors.New()

	if app == nil {
		return errFactory.WithData(errors.ErrInvalidArgument, "nil application")
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errFactory.New(errors.ErrSessionClosed)
	}
	if c.app != nil {
		c.mu.Unlock()
		return errFactory.New(errors.ErrAlreadyInitialized)
	}
	c.app = app
	c.mu.Unlock()

	if err := c.thermal.Initialize(app); err != nil {
		c.logInitError(err, "thermal")
	}
	if err := c.hint.Initialize(app); err != nil {
		c.logInitError(err, "hint")
	}

	c.log.Info().
		Str("application", app.Name).
		Int("api_level", app.APILevel).
		Str("thermal_tier", string(c.thermal.Tier())).
		Str("hint_tier", string(c.hint.Tier())).
		Msg("Application set")

	return nil
}

func (c *Coordinator) logInitError(err error, component string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		c.log.ErrorWithContext(appErr, component, "initialize").Msg("Subsystem degraded to no-op")
		return
	}
	c.log.Error().Err(err).Str("component", component).Msg("Subsystem degraded to no-op")
}

// Capabilities reports the selected tiers.
func (c *Coordinator) Capabilities() Capabilities {
	c.mu.Lock()
	level := 0
	if c.app != nil {
		level = c.app.APILevel
	}
	c.mu.Unlock()

	return Capabilities{
		APILevel:            level,
		Thermal:             c.thermal.Tier(),
		Hint:                c.hint.Tier(),
		ThreadSync:          c.hint.Policy(),
		PreferredUpdateRate: time.Duration(c.hint.PreferredUpdateRate()),
	}
}

// Monitor refreshes thermal headroom at most once per refresh interval.
func (c *Coordinator) Monitor() {
	c.thermal.Monitor()
}

func (c *Coordinator) ThermalStatus() platform.ThermalStatus {
	return c.thermal.Status()
}

func (c *Coordinator) ThermalHeadroom() float32 {
	return c.thermal.Headroom()
}

// SetThermalStatus is the entry point for pushed status updates.
func (c *Coordinator) SetThermalStatus(status platform.ThermalStatus) {
	c.thermal.SetStatus(status)
}

// SetThermalListener replaces the thermal listener. The listener may query
// the coordinator but must not call Close.
func (c *Coordinator) SetThermalListener(fn ThermalListener) {
	c.thermal.SetListener(fn)
}

func (c *Coordinator) RegisterThermalStatusListener() error {
	return c.thermal.RegisterPlatformListener()
}

func (c *Coordinator) UnregisterThermalStatusListener() error {
	return c.thermal.UnregisterPlatformListener()
}

// BeginPerfHintSession marks the start of the frame's work.
func (c *Coordinator) BeginPerfHintSession() {
	c.hint.Begin()
}

// EndPerfHintSession reports the work since BeginPerfHintSession against
// targetNanos.
func (c *Coordinator) EndPerfHintSession(targetNanos int64) {
	c.hint.End(targetNanos)
}

func (c *Coordinator) AddThreadIdToHintSession(tid int32) {
	c.hint.AddThread(tid)
}

func (c *Coordinator) RemoveThreadIdFromHintSession(tid int32) {
	c.hint.RemoveThread(tid)
}

// HintSession exposes the session for inspection.
func (c *Coordinator) HintSession() *hint.Session {
	return c.hint
}

// Close releases platform handles and closes the hint session. It tolerates
// partial initialization and is safe to call more than once.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	var errs []error
	if err := c.thermal.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.hint.Close(); err != nil {
		errs = append(errs, err)
	}

	c.log.Info().Msg("Coordinator closed")

	if len(errs) > 0 {
		return errors.New().Wrap(errors.ErrShutdownFailed, errors.Join(errs...))
	}
	return nil
}
