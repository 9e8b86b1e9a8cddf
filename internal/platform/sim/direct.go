package sim

import (
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/platform"
)

type thermalManager struct {
	dev *Device
}

func (m *thermalManager) Headroom(forecast time.Duration) (float32, error) {
	d := m.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendLocked(Event{Op: OpThermalHeadroom, Value: int64(forecast)})
	return d.headroom, nil
}

func (m *thermalManager) Status() (platform.ThermalStatus, error) {
	d := m.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendLocked(Event{Op: OpThermalStatus})
	return d.status, nil
}

func (m *thermalManager) RegisterStatusListener(fn func(platform.ThermalStatus)) error {
	d := m.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener != nil {
		return errors.New().WithData(errors.ErrInvalidArgument, "listener already registered")
	}
	d.listener = fn
	d.appendLocked(Event{Op: OpThermalRegister})
	return nil
}

func (m *thermalManager) UnregisterStatusListener() error {
	d := m.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = nil
	d.appendLocked(Event{Op: OpThermalUnregister})
	return nil
}

func (m *thermalManager) Release() error {
	m.dev.record(Event{Op: OpThermalRelease})
	return nil
}

type hintManager struct {
	dev *Device
}

func (m *hintManager) CreateSession(tids []int32, target int64) (platform.HintSession, error) {
	id, err := m.dev.createSession(tids, target)
	if err != nil {
		return nil, err
	}

	s := &session{dev: m.dev, id: id}
	if m.dev.opts.APILevel >= platform.LevelHintSetThreads {
		return &threadedSession{session: s}, nil
	}
	return s, nil
}

func (*hintManager) PreferredUpdateRate() int64 {
	return defaultPreferredRate
}

type session struct {
	dev    *Device
	id     int
	closed bool
}

// ID returns the device-side session number.
func (s *session) ID() int { return s.id }

func (s *session) ReportActualWorkDuration(actual int64) error {
	if s.closed {
		return errors.New().New(errors.ErrSessionClosed)
	}
	s.dev.report(s.id, actual)
	return nil
}

func (s *session) UpdateTargetWorkDuration(target int64) error {
	if s.closed {
		return errors.New().New(errors.ErrSessionClosed)
	}
	s.dev.record(Event{Op: OpHintUpdateTarget, Session: s.id, Value: target})
	return nil
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.dev.closeSession(s.id)
	return nil
}

type threadedSession struct {
	*session
}

func (s *threadedSession) SetThreads(tids []int32) error {
	if s.closed {
		return errors.New().New(errors.ErrSessionClosed)
	}
	s.dev.record(Event{Op: OpHintSetThreads, Session: s.id, Threads: append([]int32(nil), tids...)})
	return nil
}
