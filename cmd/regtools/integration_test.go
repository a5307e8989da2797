//go:build integration

// End-to-end tests against a running RegTools instance.
//
// Run with:
//
//	go run ./cmd/regtools &
//	go test -tags=integration -v ./cmd/regtools/...
//
// REGTOOLS_TEST_URL overrides the default http://localhost:8080. The tests
// assume the built-in threshold policy.
package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/regtools/internal/domain"
	"github.com/opensource-finance/regtools/internal/rules"
)

const integrationTenant = "integration-tenant"

func baseURL() string {
	if u := os.Getenv("REGTOOLS_TEST_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

func evaluateRemote(t *testing.T, p domain.ClientProfile) domain.EvaluationResponse {
	t.Helper()

	body, err := json.Marshal(p)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, baseURL()+"/evaluate", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", integrationTenant)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Skipf("regtools not reachable at %s: %v", baseURL(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var result domain.EvaluationResponse
	require.NoError(t, json.Unmarshal(raw, &result), string(raw))
	return result
}

func resultFor(t *testing.T, r domain.EvaluationResponse, id int) domain.IndicatorResult {
	t.Helper()
	for _, res := range r.Report.Results {
		if res.ID == id {
			return res
		}
	}
	t.Fatalf("indicator %d missing from report", id)
	return domain.IndicatorResult{}
}

func TestSubscriptionBelowThreshold(t *testing.T) {
	r := evaluateRemote(t, domain.ClientProfile{
		Occupation:     "Salarié",
		RiskLevel:      domain.RiskLevelStandard,
		Operation:      domain.OperationSubscription,
		InsuredCapital: domain.Float(150000),
	})

	assert.Equal(t, "PASS", r.Status)
	assert.Equal(t, domain.RiskGroupMedium, r.RiskGroup)
	assert.Len(t, r.Report.Results, 10)
	assert.Equal(t, domain.OutcomeClear, resultFor(t, r, rules.IndicatorInsuredCapital).Outcome)
	assert.Empty(t, r.Reasons)
}

func TestCashPaymentAboveCeiling(t *testing.T) {
	r := evaluateRemote(t, domain.ClientProfile{
		Occupation:  "étudiant",
		Operation:   domain.OperationCashPayment,
		CashPayment: domain.Float(5001),
	})

	assert.Equal(t, "ALERT", r.Status)
	assert.Equal(t, "critical", r.Verdict)
	assert.True(t, resultFor(t, r, rules.IndicatorCashPayment).Triggered)
	assert.NotEmpty(t, r.Reasons)
}

func TestRedemptionGatesAcquisitionIndicators(t *testing.T) {
	r := evaluateRemote(t, domain.ClientProfile{
		Occupation:      "médecin",
		RiskLevel:       domain.RiskLevelEnhanced,
		Operation:       domain.OperationRedemption,
		InsuredCapital:  domain.Float(1_000_000),
		RedemptionValue: domain.Float(10),
	})

	assert.Equal(t, domain.RiskGroupHigh, r.RiskGroup)
	assert.Equal(t, domain.OutcomeNotApplicable, resultFor(t, r, rules.IndicatorInsuredCapital).Outcome)
	assert.Equal(t, domain.OutcomeClear, resultFor(t, r, rules.IndicatorRedemption).Outcome)
}
