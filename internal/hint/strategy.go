package hint

import (
	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"codeberg.org/mutker/thermhint/internal/service"
)

// Reflective method names on the hint service and its sessions.
const (
	methodCreateHintSession           = "CreateHintSession"
	methodGetPreferredUpdateRateNanos = "GetPreferredUpdateRateNanos"
	methodReportActualWorkDuration    = "ReportActualWorkDuration"
	methodUpdateTargetWorkDuration    = "UpdateTargetWorkDuration"
	methodSetThreads                  = "SetThreads"
	methodClose                       = "Close"
)

var (
	sigCreateHintSession = service.Signature((func([]int32, int64) any)(nil))
	sigPreferredRate     = service.Signature((func() int64)(nil))
	sigDuration          = service.Signature((func(int64))(nil))
	sigSetThreads        = service.Signature((func([]int32))(nil))
	sigClose             = service.Signature((func())(nil))
)

// backend creates platform sessions for one capability tier.
type backend interface {
	tier() platform.Tier
	create(tids []int32, targetNanos int64) (handle, error)
	// policy decides, once, how thread-set changes reach sessions.
	policy(h handle) SyncPolicy
	preferredRate() int64
	release()
}

// handle is one live platform session.
type handle interface {
	report(actualNanos int64) error
	updateTarget(targetNanos int64) error
	setThreads(tids []int32) error
	close() error
}

func detect(app *platform.Application, log logger.Logger) (backend, error) {
	errFactory := errors.New()

	if app == nil {
		return unsupported{}, errFactory.New(errors.ErrNotInitialized)
	}

	if app.APILevel >= platform.LevelHintManager && app.AcquireHintManager != nil {
		mgr, err := app.AcquireHintManager()
		if err == nil && mgr != nil {
			return &direct{mgr: mgr, apiLevel: app.APILevel}, nil
		}
		log.Warn().Err(err).Msg("Failed to acquire hint manager, trying service lookup")
	}

	if app.Services == nil {
		return unsupported{}, errFactory.WithData(errors.ErrCapabilityAbsent, "performance hint")
	}

	return newReflective(app.Services, log)
}

type direct struct {
	mgr      platform.HintManager
	apiLevel int
}

func (*direct) tier() platform.Tier { return platform.TierDirect }

func (d *direct) create(tids []int32, target int64) (handle, error) {
	s, err := d.mgr.CreateSession(tids, target)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New().New(errors.ErrSessionCreation)
	}
	return &directHandle{session: s}, nil
}

func (d *direct) policy(h handle) SyncPolicy {
	dh, ok := h.(*directHandle)
	if !ok {
		return PolicyNone
	}
	if _, ok := dh.session.(platform.ThreadSetter); ok && d.apiLevel >= platform.LevelHintSetThreads {
		return PolicySetThreads
	}
	return PolicyRecreate
}

func (d *direct) preferredRate() int64 { return d.mgr.PreferredUpdateRate() }
func (*direct) release()               {}

type directHandle struct {
	session platform.HintSession
}

func (h *directHandle) report(actual int64) error {
	return h.session.ReportActualWorkDuration(actual)
}

func (h *directHandle) updateTarget(target int64) error {
	return h.session.UpdateTargetWorkDuration(target)
}

func (h *directHandle) setThreads(tids []int32) error {
	ts, ok := h.session.(platform.ThreadSetter)
	if !ok {
		return errors.New().WithData(errors.ErrNotImplemented, "SetThreads")
	}
	return ts.SetThreads(tids)
}

func (h *directHandle) close() error { return h.session.Close() }

// reflective drives the hint service through late-bound method calls.
// Session methods are resolved on the first session and rebound to later
// ones.
type reflective struct {
	log           logger.Logger
	service       *service.Ref
	createSession *service.Method
	rate          int64

	mReport     *service.Method
	mUpdate     *service.Method
	mSetThreads *service.Method
	mClose      *service.Method
}

func newReflective(reg *service.Registry, log logger.Logger) (backend, error) {
	errFactory := errors.New()

	ref, err := reg.Lookup(service.PerformanceHintService)
	if err != nil {
		return unsupported{}, errFactory.Wrap(errors.ErrCapabilityAbsent, err)
	}

	create, err := ref.Method(methodCreateHintSession, sigCreateHintSession)
	if err != nil {
		ref.Release()
		return unsupported{}, errFactory.Wrap(errors.ErrCapabilityAbsent, err)
	}

	r := &reflective{log: log, service: ref, createSession: create}
	if m, err := ref.Method(methodGetPreferredUpdateRateNanos, sigPreferredRate); err == nil {
		if rate, err := m.CallLong(); err == nil {
			r.rate = rate
		} else {
			log.Warn().Err(err).Msg("Preferred update rate call raised an exception")
		}
	}

	return r, nil
}

func (*reflective) tier() platform.Tier { return platform.TierReflective }

func (r *reflective) create(tids []int32, target int64) (handle, error) {
	errFactory := errors.New()

	obj, err := r.createSession.CallObject(tids, target)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errFactory.New(errors.ErrSessionCreation)
	}

	if r.mReport == nil {
		if err := r.resolve(obj); err != nil {
			obj.Release()
			return nil, err
		}
	}

	h := &reflectiveHandle{ref: obj}
	for _, b := range []struct {
		m   *service.Method
		dst **service.Method
	}{
		{r.mReport, &h.mReport},
		{r.mUpdate, &h.mUpdate},
		{r.mSetThreads, &h.mSetThreads},
		{r.mClose, &h.mClose},
	} {
		if b.m == nil {
			continue
		}
		bound, err := b.m.On(obj)
		if err != nil {
			obj.Release()
			return nil, err
		}
		*b.dst = bound
	}

	return h, nil
}

// resolve binds the session methods once. Report and update are required.
func (r *reflective) resolve(obj *service.Ref) error {
	errFactory := errors.New()

	report, err := obj.Method(methodReportActualWorkDuration, sigDuration)
	if err != nil {
		return errFactory.Wrap(errors.ErrCapabilityAbsent, err)
	}
	update, err := obj.Method(methodUpdateTargetWorkDuration, sigDuration)
	if err != nil {
		return errFactory.Wrap(errors.ErrCapabilityAbsent, err)
	}
	r.mReport, r.mUpdate = report, update

	if m, err := obj.Method(methodSetThreads, sigSetThreads); err == nil {
		r.mSetThreads = m
	}
	if m, err := obj.Method(methodClose, sigClose); err == nil {
		r.mClose = m
	}

	return nil
}

func (r *reflective) policy(handle) SyncPolicy {
	if r.mSetThreads != nil {
		return PolicySetThreads
	}
	return PolicyRecreate
}

func (r *reflective) preferredRate() int64 { return r.rate }

func (r *reflective) release() {
	r.service.Release()
}

type reflectiveHandle struct {
	ref *service.Ref

	mReport     *service.Method
	mUpdate     *service.Method
	mSetThreads *service.Method
	mClose      *service.Method
}

func (h *reflectiveHandle) report(actual int64) error {
	return h.mReport.CallVoid(actual)
}

func (h *reflectiveHandle) updateTarget(target int64) error {
	return h.mUpdate.CallVoid(target)
}

func (h *reflectiveHandle) setThreads(tids []int32) error {
	if h.mSetThreads == nil {
		return errors.New().WithData(errors.ErrNotImplemented, methodSetThreads)
	}
	return h.mSetThreads.CallVoid(tids)
}

// close invokes the object's Close when it has one and drops the reference.
func (h *reflectiveHandle) close() error {
	var err error
	if h.mClose != nil {
		err = h.mClose.CallVoid()
	}
	h.ref.Release()
	return err
}

type unsupported struct{}

func (unsupported) tier() platform.Tier { return platform.TierUnsupported }

func (unsupported) create([]int32, int64) (handle, error) {
	return nil, errors.New().New(errors.ErrCapabilityAbsent)
}

func (unsupported) policy(handle) SyncPolicy { return PolicyNone }
func (unsupported) preferredRate() int64     { return 0 }
func (unsupported) release()                 {}
