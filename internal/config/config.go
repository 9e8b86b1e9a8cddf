// Package config loads daemon settings from flags, environment and a TOML
// file.
package config

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix = "THERMHINT"
	configEnvVar     = "CONFIG"
	configName       = "thermhint"
	configDir        = "/etc"

	DefaultLogLevel = LogLevelWarning
)

type Config struct {
	Platform        Platform      `mapstructure:"platform"`
	APILevel        int           `mapstructure:"api_level"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	TargetFrame     time.Duration `mapstructure:"target_frame"`
	FrameRate       int           `mapstructure:"frame_rate"`
	Workers         int           `mapstructure:"workers"`
	LogLevel        LogLevel      `mapstructure:"log_level"`
	Debug           bool          `mapstructure:"debug"`
	Verbose         bool          `mapstructure:"verbose"`

	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Sysfs     SysfsConfig     `mapstructure:"sysfs"`
	NVML      NVMLConfig      `mapstructure:"nvml"`
}

type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

type SysfsConfig struct {
	Root         string        `mapstructure:"root"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type NVMLConfig struct {
	Device int `mapstructure:"device"`
}

var defaults = map[string]any{
	"platform":              string(PlatformSim),
	"api_level":             34,
	"refresh_interval":      time.Second,
	"target_frame":          16666666 * time.Nanosecond,
	"frame_rate":            60,
	"workers":               2,
	"log_level":             string(DefaultLogLevel),
	"debug":                 false,
	"verbose":               false,
	"metrics.enabled":       false,
	"metrics.db_path":       "/var/lib/thermhint/history.db",
	"metrics.batch_size":    120,
	"metrics.batch_timeout": 5 * time.Second,
	"telemetry.enabled":     false,
	"telemetry.listen":      "127.0.0.1:9477",
	"sysfs.root":            "/sys/class/thermal",
	"sysfs.poll_interval":   time.Second,
	"nvml.device":           0,
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"platform":         "platform",
	"api-level":        "api_level",
	"refresh-interval": "refresh_interval",
	"target-frame":     "target_frame",
	"frame-rate":       "frame_rate",
	"workers":          "workers",
	"log-level":        "log_level",
	"debug":            "debug",
	"verbose":          "verbose",
	"metrics":          "metrics.enabled",
	"metrics-db":       "metrics.db_path",
	"telemetry":        "telemetry.enabled",
	"telemetry-listen": "telemetry.listen",
	"sysfs-root":       "sysfs.root",
	"nvml-device":      "nvml.device",
}

// RegisterFlags defines the configuration flags on fs. Flags left unset do
// not override the file or environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("platform", string(PlatformSim), "Platform backend (sim, sysfs, nvml)")
	fs.Int("api-level", 34, "API level reported by the simulated platform")
	fs.Duration("refresh-interval", time.Second, "Minimum time between thermal headroom queries")
	fs.Duration("target-frame", 16666666*time.Nanosecond, "Target work duration per frame")
	fs.Int("frame-rate", 60, "Frames per second of the workload loop")
	fs.Int("workers", 2, "Worker threads joining the hint session")
	fs.String("log-level", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.Bool("metrics", false, "Record frame history to SQLite")
	fs.String("metrics-db", "/var/lib/thermhint/history.db", "Path to the frame history database")
	fs.Bool("telemetry", false, "Serve Prometheus metrics")
	fs.String("telemetry-listen", "127.0.0.1:9477", "Prometheus listen address")
	fs.String("sysfs-root", "/sys/class/thermal", "Thermal zone root for the sysfs platform")
	fs.Int("nvml-device", 0, "GPU index for the nvml platform")
}

// Loader reads configuration from flags, environment and the config file.
type Loader struct {
	v    *viper.Viper
	opts options

	mu      sync.Mutex
	current *Config
}

func NewLoader(opts ...Option) (*Loader, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}
	if o.configPath == "" {
		o.configPath = os.Getenv(o.envPrefix + "_" + configEnvVar)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, opts: o}, nil
}

// BindFlags binds the flags registered by RegisterFlags that exist on fs.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	errFactory := errors.New()

	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}
	return nil
}

// Load reads and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.readConfigFile(); err != nil {
		return nil, err
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()

	return cfg, nil
}

func (l *Loader) readConfigFile() error {
	errFactory := errors.New()

	if l.opts.configPath != "" {
		l.v.SetConfigFile(l.opts.configPath)
		l.v.SetConfigType("toml")
	} else {
		l.v.SetConfigName(configName)
		l.v.SetConfigType("toml")
		l.v.AddConfigPath(configDir)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.opts.configPath == "" && errors.As(err, &notFound) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}
	return nil
}

func (l *Loader) decode() (*Config, error) {
	errFactory := errors.New()

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigFile returns the file the configuration was read from, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) Watch(ctx context.Context, callback func(*Config)) error {
	errFactory := errors.New()

	if l.v.ConfigFileUsed() == "" {
		return errFactory.WithMessage(errors.ErrReadConfig, "no configuration file to watch")
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		callback(cfg)
	})
	l.v.WatchConfig()

	return nil
}

// Current returns the most recently loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Validate checks the configuration values. The log level resolved from the
// debug and verbose switches is applied here.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !c.Platform.IsValid() {
		return errFactory.WithData(errors.ErrInvalidPlatform, string(c.Platform))
	}

	switch {
	case c.Debug:
		c.LogLevel = LogLevelDebug
	case c.Verbose && c.LogLevel == DefaultLogLevel:
		c.LogLevel = LogLevelInfo
	}
	if !c.LogLevel.IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, string(c.LogLevel))
	}

	if c.RefreshInterval <= 0 || c.TargetFrame <= 0 || c.Sysfs.PollInterval <= 0 {
		return errFactory.New(errors.ErrInvalidInterval)
	}
	if c.FrameRate <= 0 || c.Workers < 0 || c.APILevel < 0 || c.NVML.Device < 0 {
		return errFactory.New(errors.ErrInvalidArgument)
	}
	if c.Metrics.Enabled && c.Metrics.DBPath == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "metrics.db_path is required when metrics are enabled")
	}
	if c.Telemetry.Enabled && c.Telemetry.Listen == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "telemetry.listen is required when telemetry is enabled")
	}

	return nil
}

// FrameInterval is the wall time between frame starts.
func (c *Config) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.FrameRate)
}

func (c *Config) GetPlatform() Platform             { return c.Platform }
func (c *Config) GetAPILevel() int                  { return c.APILevel }
func (c *Config) GetRefreshInterval() time.Duration { return c.RefreshInterval }
func (c *Config) GetTargetFrame() time.Duration     { return c.TargetFrame }
func (c *Config) GetLogLevel() LogLevel             { return c.LogLevel }
func (c *Config) IsMetricsEnabled() bool            { return c.Metrics.Enabled }
func (c *Config) GetMetricsDBPath() string          { return c.Metrics.DBPath }
func (c *Config) IsTelemetryEnabled() bool          { return c.Telemetry.Enabled }
