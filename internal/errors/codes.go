package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrNotImplemented  ErrorCode = "not_implemented"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidPlatform ErrorCode = "invalid_platform"

	// Logging errors
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Lifecycle errors
	ErrInitFailed         ErrorCode = "initialization_failed"
	ErrShutdownFailed     ErrorCode = "shutdown_failed"
	ErrNotInitialized     ErrorCode = "not_initialized"
	ErrAlreadyInitialized ErrorCode = "already_initialized"
	ErrAlreadyRunning     ErrorCode = "already_running"

	// Platform errors
	ErrCapabilityAbsent    ErrorCode = "capability_absent"
	ErrSessionCreation     ErrorCode = "session_creation_failed"
	ErrSessionClosed       ErrorCode = "session_closed"
	ErrBoundaryCall        ErrorCode = "boundary_call_failed"
	ErrServiceNotFound     ErrorCode = "service_not_found"
	ErrMethodNotFound      ErrorCode = "method_not_found"
	ErrReferenceReleased   ErrorCode = "reference_released"
	ErrThermalReadFailed   ErrorCode = "thermal_read_failed"
	ErrSchedulerHintFailed ErrorCode = "scheduler_hint_failed"

	// Operation errors
	ErrOperationFailed ErrorCode = "operation_failed"
	ErrTimeout         ErrorCode = "operation_timeout"

	// Metrics errors
	ErrInitMetrics    ErrorCode = "init_metrics_failed"
	ErrCollectMetrics ErrorCode = "collect_metrics_failed"
	ErrCloseMetrics   ErrorCode = "close_metrics_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:            "Internal error occurred",
	ErrInvalidArgument:     "Invalid argument provided",
	ErrNotImplemented:      "Operation not implemented",
	ErrUnavailable:         "Service unavailable",
	ErrInvalidConfig:       "Invalid configuration",
	ErrBindFlags:           "Failed to bind flags",
	ErrReadConfig:          "Failed to read configuration",
	ErrInvalidInterval:     "Invalid interval value",
	ErrInvalidPlatform:     "Unknown platform backend",
	ErrInvalidLogLevel:     "Invalid log level",
	ErrInitFailed:          "Initialization failed",
	ErrShutdownFailed:      "Shutdown failed",
	ErrNotInitialized:      "Application not set",
	ErrAlreadyInitialized:  "Application already set",
	ErrAlreadyRunning:      "Another instance is already running",
	ErrCapabilityAbsent:    "Platform capability not available",
	ErrSessionCreation:     "Failed to create performance hint session",
	ErrSessionClosed:       "Performance hint session is closed",
	ErrBoundaryCall:        "Platform service call failed",
	ErrServiceNotFound:     "System service not found",
	ErrMethodNotFound:      "Service method not found",
	ErrReferenceReleased:   "Service reference already released",
	ErrThermalReadFailed:   "Failed to read thermal state",
	ErrSchedulerHintFailed: "Failed to apply scheduler hint",
	ErrOperationFailed:     "Operation failed",
	ErrTimeout:             "Operation timed out",
	ErrInitMetrics:         "Failed to initialize metrics",
	ErrCollectMetrics:      "Failed to collect metrics data",
	ErrCloseMetrics:        "Failed to close metrics connection",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
