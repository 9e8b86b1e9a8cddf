// Package nvml backs the thermal manager with an NVIDIA GPU's temperature
// sensor.
package nvml

import (
	"sync"
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultPollInterval = time.Second
	temperatureWindow   = 5
)

type Options struct {
	Device       int
	PollInterval time.Duration
	Clock        clockwork.Clock
	Logger       logger.Logger

	lib library
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	if o.lib == nil {
		o.lib = &nvmlLibrary{}
	}
	return o
}

type thermalManager struct {
	lib      library
	dev      device
	clock    clockwork.Clock
	log      logger.Logger
	window   *platform.Window
	poller   *platform.StatusPoller
	slowdown uint32
	shutdown uint32

	mu       sync.Mutex
	released bool
}

// NewThermalManager initializes NVML and reads the device's slowdown and
// shutdown thresholds. Headroom 1.0 corresponds to the slowdown threshold.
func NewThermalManager(opts Options) (platform.ThermalManager, error) {
	errFactory := errors.New()
	opts = opts.withDefaults()

	if err := opts.lib.Initialize(); err != nil {
		return nil, err
	}

	dev, err := opts.lib.Device(opts.Device)
	if err != nil {
		opts.lib.Shutdown()
		return nil, err
	}

	if name, ret := dev.GetName(); isSuccess(ret) {
		opts.Logger.Info().Msgf("Detected GPU: %v", name)
	} else {
		opts.Logger.Warn().Msgf("Failed to get GPU name: %v", nvml.ErrorString(ret))
	}

	slowdown, ret := dev.GetTemperatureThreshold(nvml.TEMPERATURE_THRESHOLD_SLOWDOWN)
	if !isSuccess(ret) || slowdown == 0 {
		opts.lib.Shutdown()
		return nil, errFactory.Wrap(ErrThresholdReadFailed, newNVMLError(ret))
	}
	shutdown, ret := dev.GetTemperatureThreshold(nvml.TEMPERATURE_THRESHOLD_SHUTDOWN)
	if !isSuccess(ret) {
		// Not every board reports it; only slowdown drives headroom.
		shutdown = 0
	}

	opts.Logger.Debug().
		Uint32("slowdown_c", slowdown).
		Uint32("shutdown_c", shutdown).
		Msg("Detected GPU temperature thresholds")

	m := &thermalManager{
		lib:      opts.lib,
		dev:      dev,
		clock:    opts.Clock,
		log:      opts.Logger,
		window:   platform.NewWindow(temperatureWindow),
		slowdown: slowdown,
		shutdown: shutdown,
	}
	m.poller = platform.NewStatusPoller(opts.Clock, opts.PollInterval, m.Status)

	return m, nil
}

func (m *thermalManager) temperature() (uint32, error) {
	temp, ret := m.dev.GetTemperature(nvml.TEMPERATURE_GPU)
	if !isSuccess(ret) {
		return 0, errors.New().Wrap(ErrTemperatureReadFailed, newNVMLError(ret))
	}
	return temp, nil
}

func (m *thermalManager) Headroom(forecast time.Duration) (float32, error) {
	if m.isReleased() {
		return 0, errors.New().New(errors.ErrReferenceReleased)
	}

	temp, err := m.temperature()
	if err != nil {
		return 0, err
	}
	m.window.Add(m.clock.Now(), float32(temp)/float32(m.slowdown))

	projected, _ := m.window.Forecast(forecast)
	return projected, nil
}

func (m *thermalManager) Status() (platform.ThermalStatus, error) {
	temp, err := m.temperature()
	if err != nil {
		return platform.StatusError, err
	}
	if m.shutdown > 0 && temp >= m.shutdown {
		return platform.StatusShutdown, nil
	}
	return platform.StatusFromHeadroom(float32(temp) / float32(m.slowdown)), nil
}

func (m *thermalManager) RegisterStatusListener(fn func(platform.ThermalStatus)) error {
	if m.isReleased() {
		return errors.New().New(errors.ErrReferenceReleased)
	}
	return m.poller.Start(fn)
}

func (m *thermalManager) UnregisterStatusListener() error {
	m.poller.Stop()
	return nil
}

func (m *thermalManager) Release() error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return nil
	}
	m.released = true
	m.mu.Unlock()

	m.poller.Stop()
	return m.lib.Shutdown()
}

func (m *thermalManager) isReleased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// Acquirer adapts NewThermalManager to platform.Application.
func Acquirer(opts Options) func() (platform.ThermalManager, error) {
	return func() (platform.ThermalManager, error) {
		return NewThermalManager(opts)
	}
}
