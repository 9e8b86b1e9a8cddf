package telemetry

import "codeberg.org/mutker/thermhint/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidListen = errors.ErrorCode("telemetry_invalid_listen_address")

	// Server Errors
	ErrServe           = errors.ErrorCode("telemetry_serve_failed")
	ErrServiceShutdown = errors.ErrorCode("telemetry_service_shutdown_failed")
)
