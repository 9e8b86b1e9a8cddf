// Package hint manages the performance hint session: per-frame work
// reporting and the set of threads the session covers.
package hint

import (
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateUninitialized State = iota
	StateCreated
	StateActive
	StateDegraded
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// SyncPolicy is how thread-set changes reach the platform.
type SyncPolicy string

const (
	PolicyNone       SyncPolicy = "none"
	PolicySetThreads SyncPolicy = "set_threads"
	PolicyRecreate   SyncPolicy = "recreate"
)

// Observer receives per-frame and lifecycle samples for instrumentation.
type Observer interface {
	ObserveWorkDuration(actual, target time.Duration)
	ObserveSessionRecreated()
	ObserveBoundaryFailure(component, operation string)
}

// Session wraps the single platform hint session of the process.
//
// Begin and End are meant for the frame loop. AddThread and RemoveThread
// may be called from any goroutine. A recreated platform session is built
// first and swapped in under the write lock, so no report ever targets a
// session that is being closed.
type Session struct {
	log   logger.Logger
	clock clockwork.Clock
	obs   Observer

	defaultTarget int64
	lastTarget    atomic.Int64
	state         atomic.Int32
	recreations   atomic.Int64

	// mu guards the platform handle; reports hold it shared.
	mu      sync.RWMutex
	backend backend
	handle  handle
	id      uuid.UUID
	policy  SyncPolicy

	threadsMu sync.Mutex
	threads   []int32

	startMu sync.Mutex
	start   time.Time
	pending bool
}

type Option func(*Session)

func WithLogger(log logger.Logger) Option {
	return func(s *Session) { s.log = log }
}

func WithClock(clock clockwork.Clock) Option {
	return func(s *Session) { s.clock = clock }
}

func WithObserver(obs Observer) Option {
	return func(s *Session) { s.obs = obs }
}

// WithDefaultTarget sets the target the session is created with.
func WithDefaultTarget(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.defaultTarget = d.Nanoseconds()
		}
	}
}

func New(opts ...Option) *Session {
	s := &Session{
		log:           logger.Nop(),
		clock:         clockwork.NewRealClock(),
		defaultTarget: platform.DefaultTargetNanos,
		backend:       unsupported{},
		policy:        PolicyNone,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastTarget.Store(s.defaultTarget)

	return s
}

// Initialize selects the capability tier and creates the session seeded with
// the calling thread followed by any threads added beforehand. Failures leave the session degraded; every later call
// is then a no-op.
func (s *Session) Initialize(app *platform.Application) error {
	errFactory := errors.New()

	if State(s.state.Load()) != StateUninitialized {
		return errFactory.New(errors.ErrAlreadyInitialized)
	}

	tid := app.CurrentThreadID()
	s.threadsMu.Lock()
	s.threads = append([]int32{tid}, s.threads...)
	tids := append([]int32(nil), s.threads...)
	s.threadsMu.Unlock()

	b, err := detect(app, s.log)
	if err != nil {
		s.degrade(b)
		return err
	}

	target := s.lastTarget.Load()
	h, err := b.create(tids, target)
	if err != nil {
		s.log.Warn().Err(err).Str("tier", string(b.tier())).Msg("Failed to create performance hint session")
		s.observeFailure("create")
		b.release()
		s.degrade(unsupported{})
		return errFactory.Wrap(errors.ErrSessionCreation, err)
	}

	s.mu.Lock()
	s.backend = b
	s.handle = h
	s.id = uuid.New()
	s.policy = b.policy(h)
	id, policy := s.id, s.policy
	s.mu.Unlock()
	s.state.Store(int32(StateCreated))

	s.log.Info().
		Str("tier", string(b.tier())).
		Str("session_id", id.String()).
		Str("sync_policy", string(policy)).
		Int32("tid", tid).
		Int64("target_ns", target).
		Int64("preferred_rate_ns", b.preferredRate()).
		Msg("Performance hint session created")

	return nil
}

func (s *Session) degrade(b backend) {
	s.mu.Lock()
	s.backend = b
	s.handle = nil
	s.policy = PolicyNone
	s.mu.Unlock()
	s.state.Store(int32(StateDegraded))
}

// Begin records the start of the frame's work. A second Begin before End
// replaces the earlier start.
func (s *Session) Begin() {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.pending {
		s.log.Debug().Msg("Begin called twice without End, restarting frame timing")
	}
	s.start = s.clock.Now()
	s.pending = true
}

// End reports the time elapsed since Begin together with targetNanos. It is
// a no-op without a pending Begin or without a platform session.
func (s *Session) End(targetNanos int64) {
	s.startMu.Lock()
	start, pending := s.start, s.pending
	s.pending = false
	s.startMu.Unlock()

	if !pending {
		s.log.Debug().Msg("End called without Begin, nothing reported")
		return
	}

	actual := s.clock.Since(start).Nanoseconds()
	if actual < 0 {
		actual = 0
	}
	if targetNanos > 0 {
		s.lastTarget.Store(targetNanos)
	}

	s.mu.RLock()
	h := s.handle
	if h == nil {
		s.mu.RUnlock()
		return
	}
	rerr := h.report(actual)
	terr := h.updateTarget(targetNanos)
	s.mu.RUnlock()

	if rerr != nil {
		s.log.Debug().Err(rerr).Msg("Failed to report actual work duration")
		s.observeFailure("report")
	}
	if terr != nil {
		s.log.Debug().Err(terr).Msg("Failed to update target work duration")
		s.observeFailure("update_target")
	}

	s.state.CompareAndSwap(int32(StateCreated), int32(StateActive))
	if s.obs != nil {
		s.obs.ObserveWorkDuration(time.Duration(actual), time.Duration(targetNanos))
	}
}

// AddThread appends tid to the thread set and synchronizes the session.
func (s *Session) AddThread(tid int32) {
	s.threadsMu.Lock()
	defer s.threadsMu.Unlock()

	s.threads = append(s.threads, tid)
	s.syncThreadsLocked()
}

// RemoveThread drops every occurrence of tid and synchronizes the session.
func (s *Session) RemoveThread(tid int32) {
	s.threadsMu.Lock()
	defer s.threadsMu.Unlock()

	kept := s.threads[:0]
	for _, t := range s.threads {
		if t != tid {
			kept = append(kept, t)
		}
	}
	s.threads = kept
	s.syncThreadsLocked()
}

// syncThreadsLocked pushes the full thread set. Must hold threadsMu.
func (s *Session) syncThreadsLocked() {
	tids := append([]int32(nil), s.threads...)

	s.mu.RLock()
	h, b, policy := s.handle, s.backend, s.policy
	s.mu.RUnlock()

	if h == nil {
		return
	}
	if len(tids) == 0 {
		// Platforms reject empty sets; the old membership stays in effect.
		s.log.Warn().Msg("Thread set is empty, keeping previous session membership")
		return
	}

	switch policy {
	case PolicySetThreads:
		var err error
		s.mu.RLock()
		if s.handle != nil {
			err = s.handle.setThreads(tids)
		}
		s.mu.RUnlock()
		if err != nil {
			// Raised by the platform; logged and cleared.
			s.log.Warn().Err(err).Ints32("tids", tids).Msg("Failed to set session threads")
			s.observeFailure("set_threads")
			return
		}
		s.log.Debug().Ints32("tids", tids).Msg("Session threads updated")

	case PolicyRecreate:
		s.recreate(b, tids)
	}
}

// recreate builds a session for tids with the last target, swaps it in and
// closes the previous one.
func (s *Session) recreate(b backend, tids []int32) {
	target := s.lastTarget.Load()

	next, err := b.create(tids, target)
	if err != nil {
		s.log.Warn().Err(err).Ints32("tids", tids).Msg("Failed to recreate performance hint session, keeping previous")
		s.observeFailure("recreate")
		return
	}

	s.mu.Lock()
	if s.handle == nil {
		// Closed while the replacement was being built.
		s.mu.Unlock()
		if err := next.close(); err != nil {
			s.log.Debug().Err(err).Msg("Failed to close orphaned session")
		}
		return
	}
	prev := s.handle
	s.handle = next
	s.id = uuid.New()
	id := s.id
	s.mu.Unlock()

	if err := prev.close(); err != nil {
		s.log.Debug().Err(err).Msg("Failed to close replaced session")
		s.observeFailure("close")
	}

	s.recreations.Add(1)
	if s.obs != nil {
		s.obs.ObserveSessionRecreated()
	}
	s.log.Debug().
		Str("session_id", id.String()).
		Ints32("tids", tids).
		Int64("target_ns", target).
		Msg("Performance hint session recreated")
}

// Close closes the platform session. The session is terminal afterwards.
func (s *Session) Close() error {
	if State(s.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}

	s.mu.Lock()
	h, b := s.handle, s.backend
	s.handle = nil
	s.backend = unsupported{}
	s.policy = PolicyNone
	s.mu.Unlock()

	var err error
	if h != nil {
		err = h.close()
	}
	b.release()

	s.log.Info().Msg("Performance hint session closed")

	return err
}

// Threads returns a copy of the current thread set.
func (s *Session) Threads() []int32 {
	s.threadsMu.Lock()
	defer s.threadsMu.Unlock()
	return append([]int32(nil), s.threads...)
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// ID identifies the current platform session; it changes on recreation.
func (s *Session) ID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Session) Tier() platform.Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.tier()
}

func (s *Session) Policy() SyncPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// PreferredUpdateRate is the platform's suggested reporting interval in
// nanoseconds, zero when unknown.
func (s *Session) PreferredUpdateRate() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.preferredRate()
}

func (s *Session) LastTarget() int64 {
	return s.lastTarget.Load()
}

func (s *Session) Recreations() int64 {
	return s.recreations.Load()
}

func (s *Session) observeFailure(op string) {
	if s.obs != nil {
		s.obs.ObserveBoundaryFailure("hint", op)
	}
}
