package config

import (
	"context"
	"time"
)

// Provider exposes the loaded configuration to components that only read it.
type Provider interface {
	GetPlatform() Platform
	GetAPILevel() int
	GetRefreshInterval() time.Duration
	GetTargetFrame() time.Duration
	GetLogLevel() LogLevel
	IsMetricsEnabled() bool
	GetMetricsDBPath() string
	IsTelemetryEnabled() bool
}

// Watcher enables live configuration updates
type Watcher interface {
	// Watch calls callback with the reloaded configuration every time the
	// config file changes. Invalid reloads are reported and skipped.
	Watch(ctx context.Context, callback func(*Config)) error
}

// Option defines a configuration option that can be passed to NewLoader
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "THERMHINT"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

func (l LogLevel) String() string {
	return string(l)
}

// Platform selects the backend the daemon drives.
type Platform string

const (
	PlatformSim   Platform = "sim"
	PlatformSysfs Platform = "sysfs"
	PlatformNVML  Platform = "nvml"
)

func (p Platform) IsValid() bool {
	switch p {
	case PlatformSim, PlatformSysfs, PlatformNVML:
		return true
	default:
		return false
	}
}
