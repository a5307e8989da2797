// Package rules provides the AML indicator engine for life-insurance operations.
//
// The engine evaluates a fixed catalogue of indicators against a client
// profile. Applicability gates are CEL expressions over the operation type,
// compiled once at construction. Evaluation is pure and total: every
// indicator yields a result, and missing data or a missing threshold never
// raises an error.
package rules

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/regtools/internal/classifier"
	"github.com/opensource-finance/regtools/internal/domain"
	"github.com/opensource-finance/regtools/internal/thresholds"
)

// Engine evaluates the indicator catalogue.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	policy     *thresholds.Policy
	indicators []*compiledIndicator
	classify   func(occupation string) domain.RiskGroup
}

type compiledIndicator struct {
	def  indicator
	gate cel.Program // nil when the indicator always applies
}

// Option configures an Engine.
type Option func(*Engine)

// WithClassifier replaces the occupation classifier.
func WithClassifier(fn func(occupation string) domain.RiskGroup) Option {
	return func(e *Engine) {
		if fn != nil {
			e.classify = fn
		}
	}
}

// NewEngine compiles the catalogue gates against policy. A nil policy uses
// thresholds.Default.
func NewEngine(policy *thresholds.Policy, opts ...Option) (*Engine, error) {
	if policy == nil {
		policy = thresholds.Default()
	}

	env, err := cel.NewEnv(
		cel.Variable("operation", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		env:      env,
		policy:   policy,
		classify: classifier.Classify,
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, def := range catalogue() {
		ci, err := e.compile(def)
		if err != nil {
			return nil, err
		}
		e.indicators = append(e.indicators, ci)
	}

	return e, nil
}

func (e *Engine) compile(def indicator) (*compiledIndicator, error) {
	ci := &compiledIndicator{def: def}
	if def.gate == "" {
		return ci, nil
	}

	ast, issues := e.env.Compile(def.gate)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile gate for indicator %d: %w", def.id, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("indicator %d: gate must return bool, got %s", def.id, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for indicator %d: %w", def.id, err)
	}
	ci.gate = program
	return ci, nil
}

// Policy returns the active threshold policy.
func (e *Engine) Policy() *thresholds.Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// SetPolicy swaps the active threshold policy. Evaluations already running
// keep the policy they started with.
func (e *Engine) SetPolicy(policy *thresholds.Policy) error {
	if policy == nil {
		return fmt.Errorf("policy is required")
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.policy = policy
	e.mu.Unlock()
	return nil
}

// Catalogue lists the indicator definitions in evaluation order.
func (e *Engine) Catalogue() []domain.IndicatorDefinition {
	defs := make([]domain.IndicatorDefinition, 0, len(e.indicators))
	for _, ci := range e.indicators {
		defs = append(defs, domain.IndicatorDefinition{
			ID:        ci.def.id,
			Label:     ci.def.label,
			Rule:      ci.def.rule,
			Severity:  ci.def.severity,
			Gate:      ci.def.gate,
			Threshold: ci.def.threshold,
		})
	}
	return defs
}

// Classify returns the risk group the engine would use for occupation.
func (e *Engine) Classify(occupation string) domain.RiskGroup {
	return e.classify(occupation)
}

// Evaluate classifies the profile occupation and runs every indicator.
// A nil profile is evaluated as an empty one.
func (e *Engine) Evaluate(p *domain.ClientProfile) *domain.EvaluationReport {
	if p == nil {
		p = &domain.ClientProfile{}
	}
	return e.EvaluateGroup(p, e.classify(p.Occupation))
}

// EvaluateGroup runs every indicator with an explicit risk group.
func (e *Engine) EvaluateGroup(p *domain.ClientProfile, group domain.RiskGroup) *domain.EvaluationReport {
	if p == nil {
		p = &domain.ClientProfile{}
	}

	s := newSubject(p, group, e.Policy())

	report := &domain.EvaluationReport{
		CatalogueVersion: CatalogueVersion,
		PolicyVersion:    s.policy.Version,
		RiskGroup:        group,
		RiskLevel:        s.level,
		Operation:        p.Operation,
		MaxSeverity:      domain.VerdictOK,
		Results:          make([]domain.IndicatorResult, 0, len(e.indicators)),
	}

	var highest domain.Severity
	for _, ci := range e.indicators {
		res := e.evaluateIndicator(ci, s)
		if res.Triggered {
			report.TriggeredCount++
			if res.Severity > highest {
				highest = res.Severity
			}
		}
		report.Results = append(report.Results, res)
	}

	if report.TriggeredCount > 0 {
		report.Triggered = true
		report.MaxSeverity = highest.String()
	}

	return report
}

func (e *Engine) evaluateIndicator(ci *compiledIndicator, s *subject) domain.IndicatorResult {
	res := domain.IndicatorResult{
		ID:       ci.def.id,
		Label:    ci.def.label,
		Rule:     ci.def.rule,
		Severity: ci.def.severity,
	}

	if !e.applies(ci, s.profile.Operation) {
		res.Outcome = domain.OutcomeNotApplicable
		res.Explanation = s.notApplicable()
		return res
	}

	c := ci.def.check(s)
	res.Outcome = c.outcome
	res.Triggered = c.outcome == domain.OutcomeTriggered
	res.Value = c.value
	res.Observed = c.observed
	res.Threshold = c.threshold
	res.Explanation = c.explanation
	return res
}

// applies runs the gate. Evaluation errors and non-bool results mean the
// indicator does not apply.
func (e *Engine) applies(ci *compiledIndicator, op domain.OperationType) bool {
	if ci.gate == nil {
		return true
	}
	out, _, err := ci.gate.Eval(map[string]any{"operation": string(op)})
	if err != nil {
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

// check is the outcome of one indicator's comparison.
type check struct {
	outcome     domain.Outcome
	value       *float64
	observed    string
	threshold   *float64
	explanation string
}

func flagCheck(flag bool, triggered, cleared string) check {
	if flag {
		return check{outcome: domain.OutcomeTriggered, observed: "yes", explanation: triggered}
	}
	return check{outcome: domain.OutcomeClear, observed: "no", explanation: cleared}
}

// finite rejects NaN and both infinities, which JSON cannot carry.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// amountAbove triggers when value > limit.
func (s *subject) amountAbove(name string, value *float64, limit float64, ok bool) check {
	if value == nil {
		return check{outcome: domain.OutcomeNotApplicable, explanation: "no " + name + " provided"}
	}
	if !finite(*value) {
		return check{outcome: domain.OutcomeNotApplicable, explanation: name + " is not a finite number"}
	}
	c := check{value: domain.Float(*value), observed: s.amount(*value)}
	if !ok {
		c.outcome = domain.OutcomeNoThreshold
		c.explanation = fmt.Sprintf("no %s threshold for %s", name, s.key())
		return c
	}
	c.threshold = domain.Float(limit)
	if *value > limit {
		c.outcome = domain.OutcomeTriggered
		c.explanation = fmt.Sprintf("%s %s > %s (%s)", name, s.amount(*value), s.amount(limit), s.key())
	} else {
		c.outcome = domain.OutcomeClear
		c.explanation = fmt.Sprintf("%s %s <= %s (%s)", name, s.amount(*value), s.amount(limit), s.key())
	}
	return c
}

// ratioAtLeast triggers when value >= limit.
func (s *subject) ratioAtLeast(value *float64, limit float64, ok bool) check {
	if value == nil {
		return check{outcome: domain.OutcomeNotApplicable, explanation: "no capital increase ratio provided"}
	}
	if !finite(*value) {
		return check{outcome: domain.OutcomeNotApplicable, explanation: "capital increase ratio is not a finite number"}
	}
	c := check{value: domain.Float(*value), observed: s.ratio(*value)}
	if !ok {
		c.outcome = domain.OutcomeNoThreshold
		c.explanation = fmt.Sprintf("no capital increase ratio for level %s", s.levelName())
		return c
	}
	c.threshold = domain.Float(limit)
	if *value >= limit {
		c.outcome = domain.OutcomeTriggered
		c.explanation = fmt.Sprintf("capital increase %s >= %s (level %s)", s.ratio(*value), s.ratio(limit), s.levelName())
	} else {
		c.outcome = domain.OutcomeClear
		c.explanation = fmt.Sprintf("capital increase %s < %s (level %s)", s.ratio(*value), s.ratio(limit), s.levelName())
	}
	return c
}

// flagAgainstReference reports the inconsistency flag together with the
// group's reference capital. Without a reference the indicator is skipped.
func (s *subject) flagAgainstReference(flag bool, ref float64, ok bool) check {
	if !ok {
		return check{
			outcome:     domain.OutcomeNoThreshold,
			observed:    yesNo(flag),
			explanation: fmt.Sprintf("no reference capital for group %s", s.group),
		}
	}
	c := flagCheck(flag,
		fmt.Sprintf("product capital inconsistent with profile (reference %s for group %s)", s.amount(ref), s.group),
		fmt.Sprintf("product capital consistent with profile (reference %s for group %s)", s.amount(ref), s.group))
	c.threshold = domain.Float(ref)
	return c
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
