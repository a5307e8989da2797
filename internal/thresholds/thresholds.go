// Package thresholds holds the versioned threshold policy used by the rule engine.
//
// A Policy is plain data. The built-in Default can be replaced at startup by a
// YAML or JSON file (see Load) so that policy updates need no code change.
// Every lookup reports whether the entry exists; callers treat a missing entry
// as "rule not applicable" and never fail.
package thresholds

import (
	"github.com/opensource-finance/regtools/internal/domain"
)

// GroupLevelTable maps risk group then risk level to an amount in DT.
type GroupLevelTable map[domain.RiskGroup]map[domain.RiskLevel]float64

// LevelTable maps risk level to a value.
type LevelTable map[domain.RiskLevel]float64

// GroupTable maps risk group to a value.
type GroupTable map[domain.RiskGroup]float64

// Policy is one version of the threshold tables.
type Policy struct {
	Version string `mapstructure:"version" json:"version"`

	InsuredCapital          GroupLevelTable `mapstructure:"insured_capital" json:"insuredCapital"`
	Premium                 GroupLevelTable `mapstructure:"premium" json:"premium"`
	RedemptionValue         GroupLevelTable `mapstructure:"redemption_value" json:"redemptionValue"`
	CapitalIncreaseRatio    LevelTable      `mapstructure:"capital_increase_ratio" json:"capitalIncreaseRatio"`
	ProductReferenceCapital GroupTable      `mapstructure:"product_reference_capital" json:"productReferenceCapital"`

	// CashCeiling is nil when the policy defines no ceiling.
	CashCeiling *float64 `mapstructure:"cash_ceiling" json:"cashCeiling"`
}

// Lookup returns the amount for (group, level).
func (t GroupLevelTable) Lookup(group domain.RiskGroup, level domain.RiskLevel) (float64, bool) {
	byLevel, ok := t[group]
	if !ok {
		return 0, false
	}
	v, ok := byLevel[level]
	return v, ok
}

// Lookup returns the value for level.
func (t LevelTable) Lookup(level domain.RiskLevel) (float64, bool) {
	v, ok := t[level]
	return v, ok
}

// Lookup returns the value for group.
func (t GroupTable) Lookup(group domain.RiskGroup) (float64, bool) {
	v, ok := t[group]
	return v, ok
}

// Cash returns the cash payment ceiling.
func (p *Policy) Cash() (float64, bool) {
	if p == nil || p.CashCeiling == nil {
		return 0, false
	}
	return *p.CashCeiling, true
}

// DefaultVersion is the version tag of the built-in policy.
const DefaultVersion = "2025.2"

// Default returns the built-in policy. Each call returns a fresh copy.
func Default() *Policy {
	return &Policy{
		Version: DefaultVersion,
		InsuredCapital: GroupLevelTable{
			domain.RiskGroupLow:     {domain.RiskLevelStandard: 50000, domain.RiskLevelEnhanced: 30000},
			domain.RiskGroupMedium:  {domain.RiskLevelStandard: 150000, domain.RiskLevelEnhanced: 40000},
			domain.RiskGroupRetired: {domain.RiskLevelStandard: 80000, domain.RiskLevelEnhanced: 160000},
			domain.RiskGroupHigh:    {domain.RiskLevelStandard: 500000, domain.RiskLevelEnhanced: 200000},
		},
		Premium: GroupLevelTable{
			domain.RiskGroupLow:     {domain.RiskLevelStandard: 1000, domain.RiskLevelEnhanced: 400},
			domain.RiskGroupMedium:  {domain.RiskLevelStandard: 2500, domain.RiskLevelEnhanced: 1000},
			domain.RiskGroupRetired: {domain.RiskLevelStandard: 2000, domain.RiskLevelEnhanced: 3000},
			domain.RiskGroupHigh:    {domain.RiskLevelStandard: 6000, domain.RiskLevelEnhanced: 3000},
		},
		RedemptionValue: GroupLevelTable{
			domain.RiskGroupLow:     {domain.RiskLevelStandard: 20000, domain.RiskLevelEnhanced: 10000},
			domain.RiskGroupMedium:  {domain.RiskLevelStandard: 30000, domain.RiskLevelEnhanced: 15000},
			domain.RiskGroupRetired: {domain.RiskLevelStandard: 50000, domain.RiskLevelEnhanced: 60000},
			domain.RiskGroupHigh:    {domain.RiskLevelStandard: 100000, domain.RiskLevelEnhanced: 50000},
		},
		CapitalIncreaseRatio: LevelTable{
			domain.RiskLevelStandard: 2,
			domain.RiskLevelEnhanced: 1.25,
		},
		ProductReferenceCapital: GroupTable{
			domain.RiskGroupLow:     400000,
			domain.RiskGroupMedium:  800000,
			domain.RiskGroupHigh:    1000000,
			domain.RiskGroupRetired: 400000,
		},
		CashCeiling: domain.Float(5000),
	}
}
