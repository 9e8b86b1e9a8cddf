// Package telemetry exports thermal and hint-session samples as Prometheus
// metrics.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/mutker/thermhint/internal/errors"
	"codeberg.org/mutker/thermhint/internal/logger"
	"codeberg.org/mutker/thermhint/internal/platform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

type service struct {
	cfg      Config
	log      logger.Logger
	registry *prometheus.Registry

	thermalStatus    prometheus.Gauge
	thermalHeadroom  prometheus.Gauge
	statusChanges    *prometheus.CounterVec
	workDuration     prometheus.Histogram
	targetDuration   prometheus.Gauge
	overBudgetFrames prometheus.Counter
	recreations      prometheus.Counter
	boundaryFailures *prometheus.CounterVec
}

// No-op implementation
type noopExporter struct{}

func NewService(cfg Config, log logger.Logger) (Exporter, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If telemetry is disabled, return a no-op exporter
	if !cfg.Enabled {
		log.Debug().Msg("Telemetry disabled, using no-op exporter")
		return &noopExporter{}, nil
	}

	return newService(cfg, log), nil
}

func newService(cfg Config, log logger.Logger) *service {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	ns := cfg.Namespace

	return &service{
		cfg:      cfg,
		log:      log,
		registry: reg,

		thermalStatus: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "thermal_status",
			Help:      "Current thermal status level (0=none .. 6=shutdown, -1=error)",
		}),
		thermalHeadroom: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "thermal_headroom",
			Help:      "Last sampled thermal headroom (1.0 corresponds to severe throttling)",
		}),
		statusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "thermal_status_updates_total",
			Help:      "Thermal status updates by resulting status",
		}, []string{"status"}),
		workDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "hint_work_duration_seconds",
			Help:      "Actual work duration reported to the hint session",
			Buckets:   []float64{.002, .004, .008, .011, .0167, .025, .033, .05, .1},
		}),
		targetDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "hint_target_duration_seconds",
			Help:      "Last target work duration reported to the hint session",
		}),
		overBudgetFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "hint_over_budget_frames_total",
			Help:      "Frames whose actual work exceeded the target",
		}),
		recreations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "hint_session_recreations_total",
			Help:      "Hint sessions recreated to change thread membership",
		}),
		boundaryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "platform_call_failures_total",
			Help:      "Platform calls that failed and were absorbed",
		}, []string{"component", "operation"}),
	}
}

func (s *service) ObserveThermalStatus(status platform.ThermalStatus) {
	s.thermalStatus.Set(float64(status))
	s.statusChanges.WithLabelValues(status.String()).Inc()
}

func (s *service) ObserveHeadroom(headroom float32) {
	s.thermalHeadroom.Set(float64(headroom))
}

func (s *service) ObserveWorkDuration(actual, target time.Duration) {
	s.workDuration.Observe(actual.Seconds())
	s.targetDuration.Set(target.Seconds())
	if target > 0 && actual > target {
		s.overBudgetFrames.Inc()
	}
}

func (s *service) ObserveSessionRecreated() {
	s.recreations.Inc()
}

func (s *service) ObserveBoundaryFailure(component, operation string) {
	s.boundaryFailures.WithLabelValues(component, operation).Inc()
}

func (s *service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Serve exposes /metrics until ctx is done.
func (s *service) Serve(ctx context.Context) error {
	errFactory := errors.New()

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("listen", s.cfg.Listen).Msg("Telemetry endpoint started")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errFactory.Wrap(ErrServe, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}

	return nil
}

// No-op implementation
func (*noopExporter) ObserveThermalStatus(platform.ThermalStatus)      {}
func (*noopExporter) ObserveHeadroom(float32)                          {}
func (*noopExporter) ObserveWorkDuration(time.Duration, time.Duration) {}
func (*noopExporter) ObserveSessionRecreated()                         {}
func (*noopExporter) ObserveBoundaryFailure(string, string)            {}
func (*noopExporter) Handler() http.Handler                            { return http.NotFoundHandler() }

func (*noopExporter) Serve(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
