package domain

import (
	"time"
)

// Evaluation is a stored evaluation of one client profile.
type Evaluation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	ProfileID string    `json:"profileId"`
	Status    string    `json:"status"`  // "ALRT" or "NALT"
	Verdict   string    `json:"verdict"` // "ok" or the highest triggered severity
	Timestamp time.Time `json:"timestamp"`

	Report EvaluationReport `json:"report"`

	// Processing metadata
	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata contains processing information.
type EvaluationMetadata struct {
	TraceID             string `json:"traceId"`
	EvaluateMs          int64  `json:"evaluateMs"`
	TotalMs             int64  `json:"totalMs"`
	IndicatorsEvaluated int    `json:"indicatorsEvaluated"`
	EngineVersion       string `json:"engineVersion"`
}

// EvaluationResponse is the API response for a profile evaluation.
type EvaluationResponse struct {
	EvaluationID string             `json:"evaluationId"`
	ProfileID    string             `json:"profileId"`
	TenantID     string             `json:"tenantId"`
	Status       string             `json:"status"` // "PASS" or "ALERT"
	Verdict      string             `json:"verdict"`
	RiskGroup    RiskGroup          `json:"riskGroup"`
	Reasons      []string           `json:"reasons,omitempty"`
	Report       EvaluationReport   `json:"report"`
	Metadata     EvaluationMetadata `json:"metadata"`
}

// Decision status constants
const (
	StatusAlert   = "ALRT" // Alert - at least one indicator fired
	StatusNoAlert = "NALT" // No alert
)

// API-friendly status
const (
	StatusPass = "PASS"
	StatusFail = "ALERT"
)

// Reasons returns the explanations of the triggered indicators.
func (e *Evaluation) Reasons() []string {
	var reasons []string
	for _, r := range e.Report.TriggeredResults() {
		if r.Explanation != "" {
			reasons = append(reasons, r.Explanation)
		}
	}
	return reasons
}

// ToResponse converts an Evaluation to an API response.
func (e *Evaluation) ToResponse() *EvaluationResponse {
	status := StatusPass
	if e.Status == StatusAlert {
		status = StatusFail
	}

	return &EvaluationResponse{
		EvaluationID: e.ID,
		ProfileID:    e.ProfileID,
		TenantID:     e.TenantID,
		Status:       status,
		Verdict:      e.Verdict,
		RiskGroup:    e.Report.RiskGroup,
		Reasons:      e.Reasons(),
		Report:       e.Report,
		Metadata:     e.Metadata,
	}
}
