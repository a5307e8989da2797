// Package decision turns an indicator report into a stored evaluation with a
// final alert status.
package decision

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/regtools/internal/domain"
)

// EngineVersion is recorded in every evaluation's metadata.
const EngineVersion = "regtools-1.0"

// Processor decides the alert status of an evaluation report.
type Processor struct {
	// MinAlertSeverity is the lowest triggered severity that raises an alert.
	MinAlertSeverity domain.Severity
}

// NewProcessor creates a processor that alerts on any triggered indicator.
func NewProcessor() *Processor {
	return &Processor{
		MinAlertSeverity: domain.SeverityLow,
	}
}

// DecisionInput contains all data needed for a decision.
type DecisionInput struct {
	TenantID   string
	ProfileID  string
	TraceID    string
	Report     *domain.EvaluationReport
	EvaluateMs int64
	StartTime  time.Time
}

// Process builds the evaluation for input.Report.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Evaluation {
	report := input.Report
	if report == nil {
		report = &domain.EvaluationReport{MaxSeverity: domain.VerdictOK}
	}

	eval := &domain.Evaluation{
		ID:        uuid.New().String(),
		TenantID:  input.TenantID,
		ProfileID: input.ProfileID,
		Timestamp: time.Now().UTC(),
		Verdict:   Verdict(report),
		Report:    *report,
	}

	if p.alerts(report) {
		eval.Status = domain.StatusAlert
	} else {
		eval.Status = domain.StatusNoAlert
	}

	start := input.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	eval.Metadata = domain.EvaluationMetadata{
		TraceID:             input.TraceID,
		EvaluateMs:          input.EvaluateMs,
		TotalMs:             time.Since(start).Milliseconds(),
		IndicatorsEvaluated: len(report.Results),
		EngineVersion:       EngineVersion,
	}

	return eval
}

func (p *Processor) alerts(report *domain.EvaluationReport) bool {
	floor := p.MinAlertSeverity
	if floor == 0 {
		floor = domain.SeverityLow
	}
	for _, r := range report.Results {
		if r.Triggered && r.Severity >= floor {
			return true
		}
	}
	return false
}

// Verdict returns the highest triggered severity name, or "ok".
func Verdict(report *domain.EvaluationReport) string {
	var highest domain.Severity
	for _, r := range report.Results {
		if r.Triggered && r.Severity > highest {
			highest = r.Severity
		}
	}
	if highest == 0 {
		return domain.VerdictOK
	}
	return highest.String()
}

// ShouldAlert returns true if the evaluation should trigger an alert.
func ShouldAlert(eval *domain.Evaluation) bool {
	return eval.Status == domain.StatusAlert
}
