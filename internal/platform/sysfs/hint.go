package sysfs

import (
	"slices"
	"sync"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
)

const (
	utilClampMax = 1024
	// clampGain is the utilization step for a frame that took twice its
	// target.
	clampGain = utilClampMax / 2
)

type clampFunc func(tid int32, utilMin uint32) error

type hintManager struct {
	apply clampFunc
	log   logger.Logger
}

// NewHintManager returns a hint manager that steers the minimum utilization
// clamp of the session's threads from actual/target ratios.
func NewHintManager(opts Options) platform.HintManager {
	opts = opts.withDefaults()
	return &hintManager{apply: opts.setUtilMin, log: opts.Logger}
}

func (m *hintManager) CreateSession(tids []int32, targetNanos int64) (platform.HintSession, error) {
	errFactory := errors.New()

	if len(tids) == 0 {
		return nil, errFactory.WithData(errors.ErrSessionCreation, "empty thread set")
	}
	if targetNanos <= 0 {
		return nil, errFactory.WithData(errors.ErrSessionCreation, "non-positive target")
	}

	return &session{
		apply:  m.apply,
		log:    m.log,
		tids:   slices.Clone(tids),
		target: targetNanos,
	}, nil
}

func (*hintManager) PreferredUpdateRate() int64 {
	return platform.DefaultTargetNanos
}

type session struct {
	apply clampFunc
	log   logger.Logger

	mu      sync.Mutex
	tids    []int32
	target  int64
	utilMin uint32
	closed  bool
}

func (s *session) ReportActualWorkDuration(actualNanos int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New().New(errors.ErrSessionClosed)
	}
	if actualNanos <= 0 {
		return errors.New().WithData(errors.ErrInvalidArgument, "non-positive duration")
	}

	next := nextUtilMin(s.utilMin, actualNanos, s.target)
	if next == s.utilMin {
		return nil
	}
	s.utilMin = next
	return s.applyLocked(s.tids, next)
}

func (s *session) UpdateTargetWorkDuration(targetNanos int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New().New(errors.ErrSessionClosed)
	}
	if targetNanos <= 0 {
		return errors.New().WithData(errors.ErrInvalidArgument, "non-positive target")
	}
	s.target = targetNanos
	return nil
}

// SetThreads moves the clamp to the new thread set and clears it on threads
// that left.
func (s *session) SetThreads(tids []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New().New(errors.ErrSessionClosed)
	}
	if len(tids) == 0 {
		return errors.New().WithData(errors.ErrInvalidArgument, "empty thread set")
	}

	var removed []int32
	for _, tid := range s.tids {
		if !slices.Contains(tids, tid) {
			removed = append(removed, tid)
		}
	}
	s.tids = slices.Clone(tids)

	return errors.Join(
		s.applyLocked(removed, 0),
		s.applyLocked(s.tids, s.utilMin),
	)
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.utilMin == 0 {
		return nil
	}
	s.utilMin = 0
	return s.applyLocked(s.tids, 0)
}

func (s *session) applyLocked(tids []int32, utilMin uint32) error {
	var errs []error
	for _, tid := range tids {
		if err := s.apply(tid, utilMin); err != nil {
			s.log.Debug().Err(err).Int32("tid", tid).Uint32("util_min", utilMin).Msg("Failed to set utilization clamp")
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.New().Wrap(errors.ErrSchedulerHintFailed, errors.Join(errs...))
}

func nextUtilMin(current uint32, actual, target int64) uint32 {
	step := float64(actual-target) / float64(target) * clampGain
	next := float64(current) + step
	switch {
	case next < 0:
		return 0
	case next > utilClampMax:
		return utilClampMax
	default:
		return uint32(next)
	}
}
