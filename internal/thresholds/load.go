package thresholds

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/opensource-finance/regtools/internal/domain"
)

// ErrInvalidPolicy is returned when a policy file fails validation.
var ErrInvalidPolicy = errors.New("invalid threshold policy")

// Load reads a policy file (YAML, JSON or TOML, picked by extension).
// Tables absent from the file stay empty; the engine then reports the affected
// indicators as having no threshold.
func Load(path string) (*Policy, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	var p Policy
	if err := v.Unmarshal(&p); err != nil {
		return nil, fmt.Errorf("failed to decode policy file %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Validate checks that the policy is usable: a version is set and no value
// is negative.
func (p *Policy) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidPolicy)
	}

	for name, table := range map[string]GroupLevelTable{
		"insured_capital":  p.InsuredCapital,
		"premium":          p.Premium,
		"redemption_value": p.RedemptionValue,
	} {
		for group, byLevel := range table {
			for level, v := range byLevel {
				if v < 0 {
					return fmt.Errorf("%w: %s[%s][%s] is negative", ErrInvalidPolicy, name, group, level)
				}
			}
		}
	}

	for level, v := range p.CapitalIncreaseRatio {
		if v <= 0 {
			return fmt.Errorf("%w: capital_increase_ratio[%s] must be positive", ErrInvalidPolicy, level)
		}
	}

	for group, v := range p.ProductReferenceCapital {
		if v < 0 {
			return fmt.Errorf("%w: product_reference_capital[%s] is negative", ErrInvalidPolicy, group)
		}
	}

	if p.CashCeiling != nil && *p.CashCeiling < 0 {
		return fmt.Errorf("%w: cash_ceiling is negative", ErrInvalidPolicy)
	}

	return nil
}

// LoadOrDefault returns Default when path is empty, otherwise Load(path).
func LoadOrDefault(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Groups lists the risk groups in display order.
var Groups = []domain.RiskGroup{
	domain.RiskGroupLow,
	domain.RiskGroupMedium,
	domain.RiskGroupHigh,
	domain.RiskGroupRetired,
}
