package main

import (
	"codeberg.org/mutker/thermhint/internal/config"
	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"codeberg.org/mutker/thermhint/internal/platform/nvml"
	"codeberg.org/mutker/thermhint/internal/platform/sim"
	"codeberg.org/mutker/thermhint/internal/platform/sysfs"
)

const simEventLimit = 4096

// buildApplication returns the platform handle for the configured backend.
// The simulated device is returned as well so the caller can run its heat
// model.
func buildApplication(c *config.Config, log logger.Logger) (*platform.Application, *sim.Device, error) {
	switch c.Platform {
	case config.PlatformSim:
		dev := sim.New(sim.Options{
			APILevel:        c.APILevel,
			InitialHeadroom: 0.3,
			EventLimit:      simEventLimit,
		})
		return dev.Application(), dev, nil

	case config.PlatformSysfs:
		app := sysfs.Application("thermhintd", sysfsOptions(c, log))
		return app, nil, nil

	case config.PlatformNVML:
		// GPU temperature drives the thermal side; scheduling hints still
		// go through the kernel.
		app := sysfs.Application("thermhintd", sysfsOptions(c, log))
		app.AcquireThermalManager = nvml.Acquirer(nvml.Options{
			Device:       c.NVML.Device,
			PollInterval: c.Sysfs.PollInterval,
			Logger:       log.With("nvml"),
		})
		return app, nil, nil
	}

	return nil, nil, errors.New().WithData(errors.ErrInvalidPlatform, string(c.Platform))
}

func sysfsOptions(c *config.Config, log logger.Logger) sysfs.Options {
	return sysfs.Options{
		Root:         c.Sysfs.Root,
		PollInterval: c.Sysfs.PollInterval,
		Logger:       log.With("sysfs"),
	}
}
