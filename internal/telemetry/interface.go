package telemetry

import (
	"context"
	"net/http"

	"codeberg.org/mutker/thermhint/internal/coordinator"
)

// Exporter instruments the coordinator and exposes the samples.
type Exporter interface {
	coordinator.Observer
	Handler() http.Handler
	Serve(ctx context.Context) error
}
