package sim

import (
	"time"

	"codeberg.org/mutker/thermhint/internal/platform"
)

// powerService is looked up by name and invoked reflectively.
type powerService struct {
	dev *Device
}

func (p *powerService) GetThermalHeadroom(forecastSeconds int32) float32 {
	d := p.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendLocked(Event{Op: OpThermalHeadroom, Value: int64(forecastSeconds) * int64(time.Second)})
	return d.headroom
}

func (p *powerService) GetCurrentThermalStatus() int32 {
	d := p.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendLocked(Event{Op: OpThermalStatus})
	return int32(d.status)
}

// legacyPowerService predates the headroom query.
type legacyPowerService struct{}

func (*legacyPowerService) IsPowerSaveMode() bool { return false }

type hintService struct {
	dev *Device
}

func (h *hintService) CreateHintSession(tids []int32, target int64) any {
	id, err := h.dev.createSession(tids, target)
	if err != nil {
		return nil
	}

	s := &sessionObject{dev: h.dev, id: id}
	if h.dev.opts.APILevel >= platform.LevelHintSetThreads {
		return &threadedSessionObject{sessionObject: s}
	}
	return s
}

func (*hintService) GetPreferredUpdateRateNanos() int64 {
	return defaultPreferredRate
}

type sessionObject struct {
	dev *Device
	id  int
}

func (s *sessionObject) ReportActualWorkDuration(actual int64) {
	s.dev.report(s.id, actual)
}

func (s *sessionObject) UpdateTargetWorkDuration(target int64) {
	s.dev.record(Event{Op: OpHintUpdateTarget, Session: s.id, Value: target})
}

func (s *sessionObject) Close() {
	s.dev.closeSession(s.id)
}

type threadedSessionObject struct {
	*sessionObject
}

func (s *threadedSessionObject) SetThreads(tids []int32) {
	if s.dev.opts.SetThreadsPanics {
		panic("IllegalArgumentException: thread does not belong to this process")
	}
	s.dev.record(Event{Op: OpHintSetThreads, Session: s.id, Threads: append([]int32(nil), tids...)})
}
