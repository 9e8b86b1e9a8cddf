package nvml

import (
	"sync"

	"codeberg.org/mutker/thermhint/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// device is the subset of nvml.Device the thermal manager reads.
type device interface {
	GetName() (string, nvml.Return)
	GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return)
	GetTemperatureThreshold(nvml.TemperatureThresholds) (uint32, nvml.Return)
}

// library abstracts NVML initialization for testing.
type library interface {
	Initialize() error
	Shutdown() error
	Device(index int) (device, error)
}

type nvmlLibrary struct {
	mu          sync.Mutex
	initialized bool
}

func (l *nvmlLibrary) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.initialized {
		return nil
	}

	ret := nvml.Init()
	if !isSuccess(ret) {
		return errors.New().Wrap(ErrInitFailed, newNVMLError(ret))
	}

	l.initialized = true

	return nil
}

func (l *nvmlLibrary) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if !isSuccess(ret) {
		return errors.New().Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	l.initialized = false

	return nil
}

func (l *nvmlLibrary) Device(index int) (device, error) {
	errFactory := errors.New()

	l.mu.Lock()
	initialized := l.initialized
	l.mu.Unlock()
	if !initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !isSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}
	if index < 0 || index >= count {
		return nil, errFactory.WithData(ErrDeviceNotFound, struct {
			Index int
			Count int
		}{Index: index, Count: count})
	}

	dev, ret := nvml.DeviceGetHandleByIndex(index)
	if !isSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	return dev, nil
}
