package nvml

import (
	"codeberg.org/mutker/thermhint/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	ErrNotInitialized        = errors.ErrorCode("gpu_not_initialized")
	ErrInitFailed            = errors.ErrorCode("gpu_init_failed")
	ErrDeviceNotFound        = errors.ErrorCode("gpu_device_not_found")
	ErrShutdownFailed        = errors.ErrorCode("gpu_shutdown_failed")
	ErrTemperatureReadFailed = errors.ErrorCode("gpu_temperature_read_failed")
	ErrThresholdReadFailed   = errors.ErrorCode("gpu_threshold_read_failed")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

func isSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
