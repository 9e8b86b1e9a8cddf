package sysfs

import (
	"time"

	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultPollInterval = time.Second
	defaultWindowSize   = 8
)

type Options struct {
	Root         string
	PollInterval time.Duration
	// WindowSize is the number of headroom samples used for forecasts.
	WindowSize int
	APILevel   int
	Clock      clockwork.Clock
	Logger     logger.Logger

	setUtilMin clampFunc
}

func (o Options) withDefaults() Options {
	if o.Root == "" {
		o.Root = DefaultRoot
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.WindowSize <= 0 {
		o.WindowSize = defaultWindowSize
	}
	if o.APILevel == 0 {
		o.APILevel = platform.LevelHintSetThreads
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	if o.setUtilMin == nil {
		o.setUtilMin = setUtilMin
	}
	return o
}

// Application describes the local machine. Thermal zones are probed when the
// coordinator acquires the thermal manager, not here.
func Application(name string, opts Options) *platform.Application {
	opts = opts.withDefaults()
	return &platform.Application{
		Name:     name,
		APILevel: opts.APILevel,
		AcquireThermalManager: func() (platform.ThermalManager, error) {
			return NewThermalManager(opts)
		},
		AcquireHintManager: func() (platform.HintManager, error) {
			return NewHintManager(opts), nil
		},
		ThreadID: platform.Gettid,
	}
}
