package thermal

import (
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"codeberg.org/mutker/thermhint/internal/service"
)

// Reflective method names and signatures on the power service.
const (
	methodGetThermalHeadroom      = "GetThermalHeadroom"
	methodGetCurrentThermalStatus = "GetCurrentThermalStatus"
)

var (
	sigGetThermalHeadroom      = service.Signature((func(int32) float32)(nil))
	sigGetCurrentThermalStatus = service.Signature((func() int32)(nil))
)

type strategy interface {
	tier() platform.Tier
	headroom(forecast time.Duration) (float32, error)
	// status returns the current status when the tier can poll it.
	status() (platform.ThermalStatus, bool)
	// register reports false when the tier has no push callback.
	register(fn func(platform.ThermalStatus)) (bool, error)
	unregister() error
	release() error
}

// detect picks the thermal tier for app. It never returns a nil strategy.
func detect(app *platform.Application, log logger.Logger) (strategy, error) {
	errFactory := errors.New()

	if app == nil {
		return unsupported{}, errFactory.New(errors.ErrNotInitialized)
	}

	if app.APILevel >= platform.LevelThermalManager && app.AcquireThermalManager != nil {
		mgr, err := app.AcquireThermalManager()
		if err == nil && mgr != nil {
			return &direct{mgr: mgr}, nil
		}
		log.Warn().Err(err).Msg("Failed to acquire thermal manager, trying service lookup")
	}

	if app.Services == nil {
		return unsupported{}, errFactory.WithData(errors.ErrCapabilityAbsent, "thermal")
	}

	ref, err := app.Services.Lookup(service.PowerService)
	if err != nil {
		return unsupported{}, errFactory.Wrap(errors.ErrCapabilityAbsent, err)
	}

	getHeadroom, err := ref.Method(methodGetThermalHeadroom, sigGetThermalHeadroom)
	if err != nil {
		ref.Release()
		return unsupported{}, errFactory.Wrap(errors.ErrCapabilityAbsent, err)
	}

	r := &reflective{ref: ref, getHeadroom: getHeadroom, log: log}
	if m, err := ref.Method(methodGetCurrentThermalStatus, sigGetCurrentThermalStatus); err == nil {
		r.getStatus = m
	}

	return r, nil
}

type direct struct {
	mgr platform.ThermalManager
}

func (*direct) tier() platform.Tier { return platform.TierDirect }

func (d *direct) headroom(forecast time.Duration) (float32, error) {
	return d.mgr.Headroom(forecast)
}

func (d *direct) status() (platform.ThermalStatus, bool) {
	s, err := d.mgr.Status()
	if err != nil {
		return 0, false
	}
	return s, true
}

func (d *direct) register(fn func(platform.ThermalStatus)) (bool, error) {
	if err := d.mgr.RegisterStatusListener(fn); err != nil {
		return false, err
	}
	return true, nil
}

func (d *direct) unregister() error {
	return d.mgr.UnregisterStatusListener()
}

func (d *direct) release() error {
	return d.mgr.Release()
}

type reflective struct {
	ref         *service.Ref
	getHeadroom *service.Method
	getStatus   *service.Method
	log         logger.Logger
}

func (*reflective) tier() platform.Tier { return platform.TierReflective }

func (r *reflective) headroom(forecast time.Duration) (float32, error) {
	headroom, err := r.getHeadroom.CallFloat(int32(forecast / time.Second))
	if err != nil {
		// Exception is cleared here; the cached headroom is kept.
		r.log.Warn().Err(err).Msg("Thermal headroom call raised an exception")
		return 0, err
	}
	return headroom, nil
}

func (r *reflective) status() (platform.ThermalStatus, bool) {
	if r.getStatus == nil {
		return 0, false
	}
	s, err := r.getStatus.CallLong()
	if err != nil {
		r.log.Warn().Err(err).Msg("Thermal status call raised an exception")
		return 0, false
	}
	return platform.ThermalStatus(s), true
}

func (*reflective) register(func(platform.ThermalStatus)) (bool, error) { return false, nil }
func (*reflective) unregister() error                                   { return nil }

func (r *reflective) release() error {
	r.ref.Release()
	return nil
}

type unsupported struct{}

func (unsupported) tier() platform.Tier                                 { return platform.TierUnsupported }
func (unsupported) headroom(time.Duration) (float32, error)             { return 0, nil }
func (unsupported) status() (platform.ThermalStatus, bool)              { return 0, false }
func (unsupported) register(func(platform.ThermalStatus)) (bool, error) { return false, nil }
func (unsupported) unregister() error                                   { return nil }
func (unsupported) release() error                                      { return nil }
