// Package platform describes the boundary between the coordinator and the
// host platform's thermal and scheduling services.
package platform

import (
	"time"

	"codeberg.org/mutker/thermhint/internal/service"
)

// API levels gating each capability tier.
const (
	LevelThermalHeadroom = 30 // reflective headroom query
	LevelThermalManager  = 31 // direct thermal manager with headroom
	LevelHintManager     = 33 // direct hint sessions
	LevelHintSetThreads  = 34 // direct thread-set updates on a live session
)

// DefaultTargetNanos is a 60Hz frame budget.
const DefaultTargetNanos int64 = 16666666

// ThermalManager is a direct handle to the platform's thermal service.
type ThermalManager interface {
	// Headroom forecasts the thermal headroom forecast ahead of now.
	Headroom(forecast time.Duration) (float32, error)
	Status() (ThermalStatus, error)
	RegisterStatusListener(fn func(ThermalStatus)) error
	UnregisterStatusListener() error
	Release() error
}

// HintManager is a direct handle to the platform's performance hint service.
type HintManager interface {
	CreateSession(tids []int32, targetNanos int64) (HintSession, error)
	PreferredUpdateRate() int64
}

// HintSession reports per-frame work durations to the scheduler.
type HintSession interface {
	ReportActualWorkDuration(actualNanos int64) error
	UpdateTargetWorkDuration(targetNanos int64) error
	Close() error
}

// ThreadSetter is implemented by sessions that accept thread-set updates in
// place.
type ThreadSetter interface {
	SetThreads(tids []int32) error
}

// Application is the handle the host passes to the coordinator. Absent
// capabilities are left nil.
type Application struct {
	Name     string
	APILevel int

	AcquireThermalManager func() (ThermalManager, error)
	AcquireHintManager    func() (HintManager, error)

	// Services backs the reflective tier.
	Services *service.Registry

	// ThreadID returns the calling OS thread's id.
	ThreadID func() int32
}

// CurrentThreadID returns the calling thread id via the application's
// source, falling back to the OS.
func (a *Application) CurrentThreadID() int32 {
	if a != nil && a.ThreadID != nil {
		return a.ThreadID()
	}
	return Gettid()
}

// Tier names the capability level a subsystem was initialized with.
type Tier string

const (
	TierUnsupported Tier = "unsupported"
	TierDirect      Tier = "direct"
	TierReflective  Tier = "reflective"
)
