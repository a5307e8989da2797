package domain

import (
	"fmt"
)

// RiskGroup is the occupation-derived client segment used to select thresholds.
type RiskGroup string

const (
	RiskGroupLow     RiskGroup = "low"
	RiskGroupMedium  RiskGroup = "medium"
	RiskGroupHigh    RiskGroup = "high"
	RiskGroupRetired RiskGroup = "retired"
)

// Severity is an ordered indicator severity: low < medium < high < critical.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

// String returns the lowercase severity name.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the severity as its name so the JSON shape stays flat.
func (s Severity) MarshalText() ([]byte, error) {
	name, ok := severityNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	for sev, name := range severityNames {
		if name == string(text) {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("invalid severity %q", string(text))
}

// Outcome explains why an indicator did or did not trigger.
type Outcome string

const (
	OutcomeTriggered     Outcome = "triggered"
	OutcomeClear         Outcome = "clear"
	OutcomeNotApplicable Outcome = "not_applicable"
	OutcomeNoThreshold   Outcome = "no_threshold"
)

// IndicatorResult is the result of one catalogue rule for one profile.
// All fields are primitives so the record can be stored and forwarded as is.
type IndicatorResult struct {
	ID          int      `json:"id"`
	Label       string   `json:"label"`
	Rule        string   `json:"rule"`
	Triggered   bool     `json:"triggered"`
	Severity    Severity `json:"severity"`
	Outcome     Outcome  `json:"outcome"`
	Value       *float64 `json:"value"`
	Observed    string   `json:"observed"`
	Threshold   *float64 `json:"threshold"`
	Explanation string   `json:"explanation"`
}

// EvaluationReport aggregates all indicator results for one profile.
type EvaluationReport struct {
	CatalogueVersion string            `json:"catalogueVersion"`
	PolicyVersion    string            `json:"policyVersion"`
	RiskGroup        RiskGroup         `json:"riskGroup"`
	RiskLevel        RiskLevel         `json:"riskLevel"`
	Operation        OperationType     `json:"operation"`
	Triggered        bool              `json:"triggered"`
	TriggeredCount   int               `json:"triggeredCount"`
	MaxSeverity      string            `json:"maxSeverity"`
	Results          []IndicatorResult `json:"results"`
}

// VerdictOK is the report verdict when no indicator triggered.
const VerdictOK = "ok"

// TriggeredResults returns the results that fired, in catalogue order.
func (r *EvaluationReport) TriggeredResults() []IndicatorResult {
	var out []IndicatorResult
	for _, res := range r.Results {
		if res.Triggered {
			out = append(out, res)
		}
	}
	return out
}

// IndicatorDefinition describes a catalogue entry for listing.
type IndicatorDefinition struct {
	ID        int      `json:"id"`
	Label     string   `json:"label"`
	Rule      string   `json:"rule"`
	Severity  Severity `json:"severity"`
	Gate      string   `json:"gate,omitempty"`
	Threshold string   `json:"threshold,omitempty"`
}
