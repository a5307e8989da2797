// Package pipeline runs one profile through enrichment, the indicator engine
// and the decision processor, then persists and publishes the result.
// The HTTP API and the async worker share it.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/regtools/internal/bus"
	"github.com/opensource-finance/regtools/internal/decision"
	"github.com/opensource-finance/regtools/internal/domain"
	"github.com/opensource-finance/regtools/internal/history"
	"github.com/opensource-finance/regtools/internal/metrics"
	"github.com/opensource-finance/regtools/internal/rules"
)

var tracer = otel.Tracer("regtools-pipeline")

// Pipeline wires the evaluation steps. Engine and Processor are required;
// every other dependency is optional and skipped when nil.
type Pipeline struct {
	Engine    *rules.Engine
	Processor *decision.Processor

	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	History *history.Service
	Metrics *metrics.Metrics

	// EvaluationTTL is how long evaluations stay cached
	EvaluationTTL time.Duration
}

// Request is one profile to evaluate.
type Request struct {
	TenantID string
	TraceID  string
	Source   string // "api" or "worker", used as a metrics label
	Profile  *domain.ClientProfile
}

// Run evaluates req.Profile and returns the evaluation. Persistence, cache
// and publish failures are logged and do not fail the evaluation.
func (p *Pipeline) Run(ctx context.Context, req Request) *domain.Evaluation {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	profile := req.Profile
	if profile == nil {
		profile = &domain.ClientProfile{}
	}

	if p.History != nil {
		if err := p.History.Enrich(ctx, req.TenantID, profile); err != nil {
			slog.Warn("history enrichment failed",
				"tenant_id", req.TenantID,
				"profile_id", profile.ID,
				"error", err,
			)
		}
	}

	evalStart := time.Now()
	report := p.Engine.Evaluate(profile)
	evalDuration := time.Since(evalStart)
	p.Metrics.RecordReport(req.Source, report, evalDuration)

	evaluation := p.Processor.Process(ctx, &decision.DecisionInput{
		TenantID:   req.TenantID,
		ProfileID:  profile.ID,
		TraceID:    req.TraceID,
		Report:     report,
		EvaluateMs: evalDuration.Milliseconds(),
		StartTime:  start,
	})

	span.SetAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("evaluation_id", evaluation.ID),
		attribute.String("status", evaluation.Status),
		attribute.Int("triggered_count", report.TriggeredCount),
	)

	if p.Repo != nil {
		if err := p.Repo.SaveEvaluation(ctx, req.TenantID, evaluation); err != nil {
			slog.Error("failed to save evaluation",
				"evaluation_id", evaluation.ID,
				"error", err,
			)
		}
	}

	if p.Cache != nil {
		if err := p.Cache.SetEvaluation(ctx, req.TenantID, evaluation, p.EvaluationTTL); err != nil {
			slog.Warn("failed to cache evaluation",
				"evaluation_id", evaluation.ID,
				"error", err,
			)
		}
	}

	p.publish(ctx, req.TenantID, evaluation)

	slog.Info("profile evaluated",
		"source", req.Source,
		"tenant_id", req.TenantID,
		"profile_id", profile.ID,
		"evaluation_id", evaluation.ID,
		"status", evaluation.Status,
		"verdict", evaluation.Verdict,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return evaluation
}

func (p *Pipeline) publish(ctx context.Context, tenantID string, evaluation *domain.Evaluation) {
	if p.Bus == nil {
		return
	}

	if err := bus.PublishJSON(ctx, p.Bus, tenantID, domain.TopicEvaluationCompleted, evaluation); err != nil {
		slog.Error("failed to publish evaluation",
			"evaluation_id", evaluation.ID,
			"error", err,
		)
	}

	if decision.ShouldAlert(evaluation) {
		if err := bus.PublishJSON(ctx, p.Bus, tenantID, domain.TopicAlert, evaluation.ToResponse()); err != nil {
			slog.Error("failed to publish alert",
				"evaluation_id", evaluation.ID,
				"error", err,
			)
		}
	}
}
