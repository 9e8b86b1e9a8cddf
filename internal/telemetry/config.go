package telemetry

import "codeberg.org/mutker/thermhint/internal/errors"

const (
	defaultListen    = "127.0.0.1:9477"
	defaultNamespace = "thermhint"
)

type Config struct {
	Enabled   bool
	Listen    string
	Namespace string
}

func DefaultConfig() Config {
	return Config{
		Listen:    defaultListen,
		Namespace: defaultNamespace,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the listen address if telemetry is enabled
	if c.Enabled && c.Listen == "" {
		return errFactory.New(ErrInvalidListen)
	}
	return nil
}
