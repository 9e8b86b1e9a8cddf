package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"codeberg.org/mutker/thermhint/internal/config"
	"codeberg.org/mutker/thermhint/internal/coordinator"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/metrics"
	"codeberg.org/mutker/thermhint/internal/pid"
	"codeberg.org/mutker/thermhint/internal/telemetry"
	"codeberg.org/mutker/thermhint/internal/workload"
	"github.com/spf13/cobra"
)

const simStepInterval = 100 * time.Millisecond

var pidDir string

// runCmd drives the synthetic frame loop until interrupted
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the frame loop against the configured platform",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&pidDir, "pid-dir", "", "Directory for the PID file (default: temp dir)")
}

// lockFrameThread pins the calling goroutine to its OS thread. The hint
// session is seeded with this thread's id and frames run on it, so the
// scheduler must not migrate the loop.
func lockFrameThread() (unlock func()) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}

func run(ctx context.Context, c *config.Config) error {
	unlock := lockFrameThread()
	defer unlock()

	log := logger.Default()

	pidFile := pid.New(pidDir, pid.DefaultName)
	if err := pidFile.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			log.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	exporter, err := telemetry.NewService(telemetry.Config{
		Enabled:   c.Telemetry.Enabled,
		Listen:    c.Telemetry.Listen,
		Namespace: telemetry.DefaultConfig().Namespace,
	}, log.With("telemetry"))
	if err != nil {
		return err
	}

	collector, err := metrics.NewService(metrics.Config{
		Enabled:      c.Metrics.Enabled,
		DBPath:       c.Metrics.DBPath,
		BatchSize:    c.Metrics.BatchSize,
		BatchTimeout: c.Metrics.BatchTimeout,
	}, log.With("metrics"))
	if err != nil {
		return err
	}
	defer func() {
		if err := collector.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close metrics collector")
		}
	}()

	app, dev, err := buildApplication(c, log)
	if err != nil {
		return err
	}

	coord := coordinator.New(
		coordinator.WithLogger(log),
		coordinator.WithObserver(exporter),
		coordinator.WithRefreshInterval(c.RefreshInterval),
		coordinator.WithDefaultTarget(c.TargetFrame),
	)
	if err := coord.SetApplication(app); err != nil {
		return err
	}
	defer func() {
		if err := coord.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close coordinator")
		}
	}()

	if loader.ConfigFile() != "" {
		err := loader.Watch(ctx, func(next *config.Config) {
			if err := applyLogLevel(next.LogLevel); err == nil {
				log.Info().Str("log_level", next.LogLevel.String()).Msg("Log level reloaded")
			}
		})
		if err != nil {
			log.Warn().Err(err).Msg("Config watch unavailable")
		}
	}

	var wg sync.WaitGroup
	if dev != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dev.Run(ctx, simStepInterval)
		}()
	}
	if c.Telemetry.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := exporter.Serve(ctx); err != nil {
				log.Error().Err(err).Msg("Telemetry endpoint failed")
			}
		}()
	}

	host := workload.New(coord,
		workload.WithLogger(log.With("workload")),
		workload.WithCollector(collector),
		workload.WithWorkers(c.Workers),
		workload.WithFrameInterval(c.FrameInterval()),
		workload.WithTarget(c.TargetFrame),
		workload.WithThreadID(app.CurrentThreadID),
	)
	err = host.Run(ctx)

	wg.Wait()
	log.Info().Int64("frames", host.Frames()).Msg("Exiting...")

	return err
}
