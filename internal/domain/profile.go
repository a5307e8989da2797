package domain

import (
	"time"
)

// RiskLevel is the relationship risk classification assigned by compliance.
// It is independent from the occupation-derived RiskGroup.
type RiskLevel string

const (
	// RiskLevelStandard is an ordinary business relationship.
	RiskLevelStandard RiskLevel = "standard"

	// RiskLevelEnhanced is a relationship under enhanced due diligence.
	RiskLevelEnhanced RiskLevel = "enhanced"
)

// OperationType is the life-insurance operation being monitored.
type OperationType string

const (
	OperationSubscription    OperationType = "subscription"
	OperationRedemption      OperationType = "redemption"
	OperationCapitalIncrease OperationType = "capital_increase"
	OperationPremiumPayment  OperationType = "premium_payment"
	OperationCashPayment     OperationType = "cash_payment"
)

// Valid reports whether the operation type is one of the known values.
func (o OperationType) Valid() bool {
	switch o {
	case OperationSubscription, OperationRedemption, OperationCapitalIncrease,
		OperationPremiumPayment, OperationCashPayment:
		return true
	}
	return false
}

// Counts at or above which the history-derived flags are set.
const (
	FrequentBeneficiaryChanges = 3
	MultipleActiveContracts    = 3
	EarlyRedemptionWindow      = 90 * 24 * time.Hour
	ActiveContractsWindow      = 3 * 365 * 24 * time.Hour
)

// ClientProfile is the input of one evaluation.
// Numeric fields are optional: nil means the value was not provided and
// every rule reading it is not applicable.
type ClientProfile struct {
	// Bookkeeping, ignored by the engine
	ID        string    `json:"id,omitempty"`
	TenantID  string    `json:"tenantId,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`
	Name      string    `json:"name,omitempty"`
	Country   string    `json:"country,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`

	Occupation string        `json:"occupation"`
	RiskLevel  RiskLevel     `json:"riskLevel"`
	Operation  OperationType `json:"operation"`

	// Amounts in dinars (DT)
	InsuredCapital       *float64 `json:"insuredCapital,omitempty"`
	Premium              *float64 `json:"premium,omitempty"`
	RedemptionValue      *float64 `json:"redemptionValue,omitempty"`
	CapitalIncreaseRatio *float64 `json:"capitalIncreaseRatio,omitempty"`
	CashPayment          *float64 `json:"cashPayment,omitempty"`

	WatchlistCountry           bool `json:"watchlistCountry,omitempty"`
	EarlyRedemption            bool `json:"earlyRedemption,omitempty"`
	FrequentBeneficiaryChange  bool `json:"frequentBeneficiaryChange,omitempty"`
	InconsistentProductCapital bool `json:"inconsistentProductCapital,omitempty"`
	MultipleSubscriptions      bool `json:"multipleSubscriptions,omitempty"`

	// Optional raw facts the flags can be derived from
	BeneficiaryChanges *int       `json:"beneficiaryChanges,omitempty"`
	ActiveContracts3Y  *int       `json:"activeContracts3y,omitempty"`
	SubscribedAt       *time.Time `json:"subscribedAt,omitempty"`
	OperationAt        *time.Time `json:"operationAt,omitempty"`
}

// HasEarlyRedemption reports whether the redemption happened within
// EarlyRedemptionWindow of the subscription, either flagged explicitly or
// derived from the two dates.
func (p *ClientProfile) HasEarlyRedemption() bool {
	if p.EarlyRedemption {
		return true
	}
	if p.Operation != OperationRedemption || p.SubscribedAt == nil || p.OperationAt == nil {
		return false
	}
	elapsed := p.OperationAt.Sub(*p.SubscribedAt)
	return elapsed >= 0 && elapsed < EarlyRedemptionWindow
}

// HasFrequentBeneficiaryChange reports the flag or a change count at threshold.
func (p *ClientProfile) HasFrequentBeneficiaryChange() bool {
	if p.FrequentBeneficiaryChange {
		return true
	}
	return p.BeneficiaryChanges != nil && *p.BeneficiaryChanges >= FrequentBeneficiaryChanges
}

// HasMultipleSubscriptions reports the flag or an active contract count at threshold.
func (p *ClientProfile) HasMultipleSubscriptions() bool {
	if p.MultipleSubscriptions {
		return true
	}
	return p.ActiveContracts3Y != nil && *p.ActiveContracts3Y >= MultipleActiveContracts
}

// Float returns a pointer to v. Convenience for building profiles.
func Float(v float64) *float64 {
	return &v
}

// Int returns a pointer to v.
func Int(v int) *int {
	return &v
}
