package api

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/opensource-finance/regtools/internal/domain"
)

// SetupTracing installs the W3C trace-context and baggage propagators when
// tracing is enabled. TracingMiddleware then continues the caller's trace
// and its trace ID becomes the evaluation's trace ID.
func SetupTracing(cfg domain.TracingConfig) {
	if !cfg.Enabled {
		return
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}
