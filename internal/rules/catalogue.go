package rules

import (
	"github.com/opensource-finance/regtools/internal/domain"
)

// CatalogueVersion identifies the indicator catalogue revision. It changes
// whenever an indicator is added, removed or its semantics change.
const CatalogueVersion = "lcbft-10.2"

// Indicator IDs in catalogue order.
const (
	IndicatorWatchlist = iota + 1
	IndicatorInsuredCapital
	IndicatorPremium
	IndicatorRedemption
	IndicatorCapitalIncrease
	IndicatorEarlyRedemption
	IndicatorBeneficiaryChange
	IndicatorProductCapital
	IndicatorMultipleSubscriptions
	IndicatorCashPayment
)

// indicator is one catalogue entry. Gate is a CEL expression over `operation`;
// an empty gate means the indicator always applies.
type indicator struct {
	id        int
	label     string
	rule      string
	severity  domain.Severity
	gate      string
	threshold string
	check     func(s *subject) check
}

// catalogue returns the canonical indicator list in evaluation order.
func catalogue() []indicator {
	return []indicator{
		{
			id:       IndicatorWatchlist,
			label:    "Watchlisted jurisdiction",
			rule:     "Client is a national or resident of a country on the FATF watchlist",
			severity: domain.SeverityCritical,
			check: func(s *subject) check {
				return flagCheck(s.profile.WatchlistCountry,
					"client linked to a watchlisted country",
					"no watchlisted country")
			},
		},
		{
			id:        IndicatorInsuredCapital,
			label:     "High insured capital",
			rule:      "Subscription or capital increase with insured capital above the profile threshold",
			severity:  domain.SeverityHigh,
			gate:      `operation in ["subscription", "capital_increase"]`,
			threshold: "insured_capital[group][level]",
			check: func(s *subject) check {
				limit, ok := s.policy.InsuredCapital.Lookup(s.group, s.level)
				return s.amountAbove("insured capital", s.profile.InsuredCapital, limit, ok)
			},
		},
		{
			id:        IndicatorPremium,
			label:     "Abnormally high premium",
			rule:      "Subscription or premium payment with a premium above the profile threshold",
			severity:  domain.SeverityHigh,
			gate:      `operation in ["subscription", "premium_payment"]`,
			threshold: "premium[group][level]",
			check: func(s *subject) check {
				limit, ok := s.policy.Premium.Lookup(s.group, s.level)
				return s.amountAbove("premium", s.profile.Premium, limit, ok)
			},
		},
		{
			id:        IndicatorRedemption,
			label:     "Large redemption",
			rule:      "Redemption value above the profile threshold",
			severity:  domain.SeverityHigh,
			gate:      `operation == "redemption"`,
			threshold: "redemption_value[group][level]",
			check: func(s *subject) check {
				limit, ok := s.policy.RedemptionValue.Lookup(s.group, s.level)
				return s.amountAbove("redemption value", s.profile.RedemptionValue, limit, ok)
			},
		},
		{
			id:        IndicatorCapitalIncrease,
			label:     "Suspicious capital increase",
			rule:      "Capital increase ratio at or above the ratio for the risk level",
			severity:  domain.SeverityHigh,
			gate:      `operation == "capital_increase"`,
			threshold: "capital_increase_ratio[level]",
			check: func(s *subject) check {
				limit, ok := s.policy.CapitalIncreaseRatio.Lookup(s.level)
				return s.ratioAtLeast(s.profile.CapitalIncreaseRatio, limit, ok)
			},
		},
		{
			id:       IndicatorEarlyRedemption,
			label:    "Early redemption",
			rule:     "Total or partial redemption requested less than 90 days after subscription",
			severity: domain.SeverityCritical,
			check: func(s *subject) check {
				return flagCheck(s.profile.HasEarlyRedemption(),
					"redemption less than 90 days after subscription",
					"no redemption within 90 days of subscription")
			},
		},
		{
			id:       IndicatorBeneficiaryChange,
			label:    "Frequent beneficiary change",
			rule:     "Three or more beneficiary changes during the life of the contract",
			severity: domain.SeverityMedium,
			check: func(s *subject) check {
				c := flagCheck(s.profile.HasFrequentBeneficiaryChange(),
					"beneficiary changed 3 times or more",
					"beneficiary changes below 3")
				if n := s.profile.BeneficiaryChanges; n != nil {
					c.value = domain.Float(float64(*n))
					c.observed = s.integer(*n) + " changes"
				}
				return c
			},
		},
		{
			id:        IndicatorProductCapital,
			label:     "Product capital inconsistent with profile",
			rule:      "Insured capital of the savings product inconsistent with the client profile",
			severity:  domain.SeverityHigh,
			threshold: "product_reference_capital[group]",
			check: func(s *subject) check {
				ref, ok := s.policy.ProductReferenceCapital.Lookup(s.group)
				return s.flagAgainstReference(s.profile.InconsistentProductCapital, ref, ok)
			},
		},
		{
			id:       IndicatorMultipleSubscriptions,
			label:    "Multiple subscriptions",
			rule:     "Three or more life or capitalisation contracts in force within less than 3 years",
			severity: domain.SeverityMedium,
			check: func(s *subject) check {
				c := flagCheck(s.profile.HasMultipleSubscriptions(),
					"3 or more active contracts within 3 years",
					"fewer than 3 active contracts within 3 years")
				if n := s.profile.ActiveContracts3Y; n != nil {
					c.value = domain.Float(float64(*n))
					c.observed = s.integer(*n) + " contracts"
				}
				return c
			},
		},
		{
			id:        IndicatorCashPayment,
			label:     "Large cash payment",
			rule:      "Cash payment above the legal ceiling",
			severity:  domain.SeverityCritical,
			threshold: "cash_ceiling",
			check: func(s *subject) check {
				limit, ok := s.policy.Cash()
				return s.amountAbove("cash payment", s.profile.CashPayment, limit, ok)
			},
		},
	}
}
