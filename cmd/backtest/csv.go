package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/opensource-finance/regtools/internal/domain"
)

// Row is one portfolio line: the profile plus the optional expected label.
type Row struct {
	Line     int
	Profile  *domain.ClientProfile
	Expected *bool // nil when the file has no "expected_alert" column
}

// columns recognised in the header, lowercase. Unknown columns are ignored.
const (
	colID                   = "id"
	colClientID             = "client_id"
	colName                 = "name"
	colOccupation           = "occupation"
	colRiskLevel            = "risk_level"
	colOperation            = "operation"
	colInsuredCapital       = "insured_capital"
	colPremium              = "premium"
	colRedemptionValue      = "redemption_value"
	colCapitalIncreaseRatio = "capital_increase_ratio"
	colCashPayment          = "cash_payment"
	colWatchlist            = "watchlist_country"
	colEarlyRedemption      = "early_redemption"
	colBeneficiaryChange    = "frequent_beneficiary_change"
	colProductCapital       = "inconsistent_product_capital"
	colMultipleSubs         = "multiple_subscriptions"
	colBeneficiaryChanges   = "beneficiary_changes"
	colActiveContracts      = "active_contracts_3y"
	colExpected             = "expected_alert"
)

// readPortfolio parses a CSV portfolio. A malformed numeric cell fails the
// whole read and names the offending line.
func readPortfolio(r io.Reader, limit int) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := colIndex[colOccupation]; !ok {
		return nil, fmt.Errorf("header has no %q column", colOccupation)
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row, err := parseRecord(colIndex, record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		row.Line = line
		rows = append(rows, row)

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, nil
}

func parseRecord(colIndex map[string]int, record []string) (Row, error) {
	cell := func(name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	p := &domain.ClientProfile{
		ID:                         cell(colID),
		ClientID:                   cell(colClientID),
		Name:                       cell(colName),
		Occupation:                 cell(colOccupation),
		RiskLevel:                  domain.RiskLevel(strings.ToLower(cell(colRiskLevel))),
		Operation:                  domain.OperationType(strings.ToLower(cell(colOperation))),
		WatchlistCountry:           parseBool(cell(colWatchlist)),
		EarlyRedemption:            parseBool(cell(colEarlyRedemption)),
		FrequentBeneficiaryChange:  parseBool(cell(colBeneficiaryChange)),
		InconsistentProductCapital: parseBool(cell(colProductCapital)),
		MultipleSubscriptions:      parseBool(cell(colMultipleSubs)),
	}

	var err error
	for _, f := range []struct {
		col string
		dst **float64
	}{
		{colInsuredCapital, &p.InsuredCapital},
		{colPremium, &p.Premium},
		{colRedemptionValue, &p.RedemptionValue},
		{colCapitalIncreaseRatio, &p.CapitalIncreaseRatio},
		{colCashPayment, &p.CashPayment},
	} {
		if *f.dst, err = parseAmount(cell(f.col)); err != nil {
			return Row{}, fmt.Errorf("%s: %w", f.col, err)
		}
	}

	for _, f := range []struct {
		col string
		dst **int
	}{
		{colBeneficiaryChanges, &p.BeneficiaryChanges},
		{colActiveContracts, &p.ActiveContracts3Y},
	} {
		if *f.dst, err = parseCount(cell(f.col)); err != nil {
			return Row{}, fmt.Errorf("%s: %w", f.col, err)
		}
	}

	row := Row{Profile: p}
	if _, ok := colIndex[colExpected]; ok {
		expected := parseBool(cell(colExpected))
		row.Expected = &expected
	}
	return row, nil
}

var errAmbiguousAmount = errors.New("ambiguous thousands or decimal separator")

// parseAmount accepts plain and space-grouped numbers ("150 000"), a decimal
// comma ("1,25") and grouped values whose decimal mark is unambiguous
// ("1,250,000", "1.250,50", "1,250.50"). A single separator followed by
// exactly three digits ("200,000") reads two ways and is rejected.
// Empty means absent.
func parseAmount(s string) (*float64, error) {
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if s == "" {
		return nil, nil
	}
	raw := s

	sign := ""
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		sign, s = "-", rest
	}
	if s == "" || strings.Trim(s, "0123456789.,") != "" {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}

	intPart, frac := s, ""
	var group string
	decimal := false
	lastComma, lastDot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		dec := max(lastComma, lastDot)
		intPart, frac, decimal = s[:dec], s[dec+1:], true
		group = ","
		if s[dec] == ',' {
			group = "."
		}
	case lastComma >= 0 || lastDot >= 0:
		sep := ","
		if lastDot >= 0 {
			sep = "."
		}
		if strings.Count(s, sep) > 1 {
			group = sep
			break
		}
		intPart, frac, decimal = s[:max(lastComma, lastDot)], s[max(lastComma, lastDot)+1:], true
		if len(frac) == 3 && len(intPart) >= 1 && len(intPart) <= 3 && intPart[0] != '0' {
			return nil, fmt.Errorf("%w in %q", errAmbiguousAmount, raw)
		}
	}

	if group != "" {
		groups := strings.Split(intPart, group)
		for i, g := range groups {
			if !allDigits(g) || (i == 0 && (g == "" || len(g) > 3)) || (i > 0 && len(g) != 3) {
				return nil, fmt.Errorf("invalid digit grouping in %q", raw)
			}
		}
		intPart = strings.Join(groups, "")
	}
	if !allDigits(intPart) || (decimal && (frac == "" || !allDigits(frac))) {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}

	num := sign + intPart
	if frac != "" {
		num += "." + frac
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return nil, err
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil, fmt.Errorf("amount %q is not finite", raw)
	}
	return &v, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseCount(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "oui", "x":
		return true
	}
	return false
}
