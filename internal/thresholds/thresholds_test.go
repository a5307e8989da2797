package thresholds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/regtools/internal/domain"
)

func TestDefaultPolicy(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	assert.Equal(t, DefaultVersion, p.Version)

	t.Run("EveryGroupAndLevelResolves", func(t *testing.T) {
		levels := []domain.RiskLevel{domain.RiskLevelStandard, domain.RiskLevelEnhanced}
		for _, g := range Groups {
			for _, l := range levels {
				_, ok := p.InsuredCapital.Lookup(g, l)
				assert.True(t, ok, "insured capital %s/%s", g, l)
				_, ok = p.Premium.Lookup(g, l)
				assert.True(t, ok, "premium %s/%s", g, l)
				_, ok = p.RedemptionValue.Lookup(g, l)
				assert.True(t, ok, "redemption %s/%s", g, l)
			}
			_, ok := p.ProductReferenceCapital.Lookup(g)
			assert.True(t, ok, "reference capital %s", g)
		}
	})

	t.Run("KnownValues", func(t *testing.T) {
		v, ok := p.InsuredCapital.Lookup(domain.RiskGroupMedium, domain.RiskLevelStandard)
		require.True(t, ok)
		assert.Equal(t, 150000.0, v)

		v, ok = p.CapitalIncreaseRatio.Lookup(domain.RiskLevelEnhanced)
		require.True(t, ok)
		assert.Equal(t, 1.25, v)

		v, ok = p.Cash()
		require.True(t, ok)
		assert.Equal(t, 5000.0, v)
	})

	t.Run("FreshCopy", func(t *testing.T) {
		a := Default()
		a.InsuredCapital[domain.RiskGroupLow][domain.RiskLevelStandard] = 1
		b := Default()
		v, _ := b.InsuredCapital.Lookup(domain.RiskGroupLow, domain.RiskLevelStandard)
		assert.Equal(t, 50000.0, v)
	})
}

func TestLookupMissing(t *testing.T) {
	p := Default()

	_, ok := p.InsuredCapital.Lookup("unknown", domain.RiskLevelStandard)
	assert.False(t, ok)

	_, ok = p.InsuredCapital.Lookup(domain.RiskGroupLow, "vip")
	assert.False(t, ok)

	_, ok = p.CapitalIncreaseRatio.Lookup("")
	assert.False(t, ok)

	var empty GroupLevelTable
	_, ok = empty.Lookup(domain.RiskGroupLow, domain.RiskLevelStandard)
	assert.False(t, ok)

	var nilPolicy *Policy
	_, ok = nilPolicy.Cash()
	assert.False(t, ok)
}

const policyYAML = `
version: "2026.1"
insured_capital:
  medium:
    standard: 175000
    enhanced: 45000
premium:
  low:
    standard: 1200
capital_increase_ratio:
  standard: 2
  enhanced: 1.5
product_reference_capital:
  medium: 900000
cash_ceiling: 3000
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("YAML", func(t *testing.T) {
		path := filepath.Join(dir, "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte(policyYAML), 0o600))

		p, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "2026.1", p.Version)

		v, ok := p.InsuredCapital.Lookup(domain.RiskGroupMedium, domain.RiskLevelStandard)
		require.True(t, ok)
		assert.Equal(t, 175000.0, v)

		v, ok = p.CapitalIncreaseRatio.Lookup(domain.RiskLevelEnhanced)
		require.True(t, ok)
		assert.Equal(t, 1.5, v)

		v, ok = p.Cash()
		require.True(t, ok)
		assert.Equal(t, 3000.0, v)

		// Tables not in the file stay empty
		_, ok = p.RedemptionValue.Lookup(domain.RiskGroupMedium, domain.RiskLevelStandard)
		assert.False(t, ok)
	})

	t.Run("MissingVersion", func(t *testing.T) {
		path := filepath.Join(dir, "noversion.yaml")
		require.NoError(t, os.WriteFile(path, []byte("cash_ceiling: 5000\n"), 0o600))

		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidPolicy)
	})

	t.Run("NegativeValue", func(t *testing.T) {
		path := filepath.Join(dir, "negative.yaml")
		body := "version: x\ninsured_capital:\n  low:\n    standard: -1\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidPolicy)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(dir, "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("LoadOrDefault", func(t *testing.T) {
		p, err := LoadOrDefault("")
		require.NoError(t, err)
		assert.Equal(t, DefaultVersion, p.Version)
	})
}

func TestShippedPolicyMatchesDefault(t *testing.T) {
	p, err := Load(filepath.Join("..", "..", "configs", "policy.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}
