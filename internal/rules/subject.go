package rules

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/opensource-finance/regtools/internal/domain"
	"github.com/opensource-finance/regtools/internal/thresholds"
)

// Locale used to render amounts in explanations.
var explanationLocale = language.MustParse("fr-TN")

// subject is the per-evaluation view shared by all indicator checks.
type subject struct {
	profile *domain.ClientProfile
	group   domain.RiskGroup
	level   domain.RiskLevel
	policy  *thresholds.Policy
	printer *message.Printer
}

func newSubject(p *domain.ClientProfile, group domain.RiskGroup, policy *thresholds.Policy) *subject {
	level := p.RiskLevel
	if level == "" {
		level = domain.RiskLevelStandard
	}
	if policy == nil {
		policy = &thresholds.Policy{}
	}
	return &subject{
		profile: p,
		group:   group,
		level:   level,
		policy:  policy,
		printer: message.NewPrinter(explanationLocale),
	}
}

func (s *subject) amount(v float64) string {
	return s.printer.Sprintf("%v DT", number.Decimal(v, number.MaxFractionDigits(2)))
}

func (s *subject) ratio(v float64) string {
	return s.printer.Sprintf("x%v", number.Decimal(v, number.MaxFractionDigits(4)))
}

func (s *subject) integer(n int) string {
	return s.printer.Sprintf("%v", number.Decimal(n))
}

func (s *subject) levelName() string {
	return string(s.level)
}

// key renders the threshold table coordinates.
func (s *subject) key() string {
	return string(s.group) + "/" + string(s.level)
}

func (s *subject) notApplicable() string {
	if s.profile.Operation == "" {
		return "no operation given"
	}
	return "not applicable to operation " + string(s.profile.Operation)
}
