package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/regtools/internal/domain"
)

// Summary tracks backtest results.
type Summary struct {
	Total       int
	Alerts      int
	ByVerdict   map[string]int
	ByIndicator map[int]int
	Labels      map[int]string // indicator id -> label, from the reports

	// Confusion matrix, only when the portfolio carries expected labels
	Labelled       bool
	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int

	Duration time.Duration
}

func summarize(rows []Row, reports []*domain.EvaluationReport) *Summary {
	s := &Summary{
		ByVerdict:   make(map[string]int),
		ByIndicator: make(map[int]int),
		Labels:      make(map[int]string),
	}

	for i, report := range reports {
		s.Total++
		s.ByVerdict[report.MaxSeverity]++
		if report.Triggered {
			s.Alerts++
		}
		for _, res := range report.Results {
			s.Labels[res.ID] = res.Label
			if res.Triggered {
				s.ByIndicator[res.ID]++
			}
		}

		expected := rows[i].Expected
		if expected == nil {
			continue
		}
		s.Labelled = true
		switch {
		case report.Triggered && *expected:
			s.TruePositives++
		case report.Triggered && !*expected:
			s.FalsePositives++
		case !report.Triggered && !*expected:
			s.TrueNegatives++
		default:
			s.FalseNegatives++
		}
	}

	return s
}

// Precision is the share of alerts that were expected.
func (s *Summary) Precision() float64 {
	return ratio(s.TruePositives, s.TruePositives+s.FalsePositives)
}

// Recall is the share of expected alerts that were raised.
func (s *Summary) Recall() float64 {
	return ratio(s.TruePositives, s.TruePositives+s.FalseNegatives)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func printSummary(s *Summary) {
	fmt.Println()
	fmt.Println("BACKTEST RESULTS")
	fmt.Println(strings.Repeat("=", 64))

	fmt.Printf("   Profiles:   %d\n", s.Total)
	fmt.Printf("   Alerts:     %d (%.2f%%)\n", s.Alerts, 100*ratio(s.Alerts, s.Total))

	fmt.Println("\nBY VERDICT")
	for _, v := range []string{"critical", "high", "medium", "low", domain.VerdictOK} {
		if n := s.ByVerdict[v]; n > 0 {
			fmt.Printf("   %-10s %8d\n", v, n)
		}
	}

	fmt.Println("\nBY INDICATOR")
	ids := make([]int, 0, len(s.Labels))
	for id := range s.Labels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fmt.Printf("   #%-3d %-50s %8d\n", id, s.Labels[id], s.ByIndicator[id])
	}

	if s.Labelled {
		fmt.Println("\nAGAINST EXPECTED LABELS")
		fmt.Println("                    Predicted")
		fmt.Println("                 ALERT       PASS")
		fmt.Printf("   Expected  A  %8d   %8d   (TP, FN)\n", s.TruePositives, s.FalseNegatives)
		fmt.Printf("             P  %8d   %8d   (FP, TN)\n", s.FalsePositives, s.TrueNegatives)

		precision, recall := s.Precision(), s.Recall()
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		fmt.Printf("\n   Precision:  %.4f\n", precision)
		fmt.Printf("   Recall:     %.4f\n", recall)
		fmt.Printf("   F1-Score:   %.4f\n", f1)
	}

	fmt.Println("\nPERFORMANCE")
	fmt.Printf("   Duration:   %v\n", s.Duration.Round(time.Millisecond))
	if s.Total > 0 && s.Duration > 0 {
		fmt.Printf("   Throughput: %.0f profiles/sec\n", float64(s.Total)/s.Duration.Seconds())
	}
	fmt.Println()
}

func printAlerts(rows []Row, reports []*domain.EvaluationReport) {
	for i, report := range reports {
		if !report.Triggered {
			continue
		}
		id := rows[i].Profile.ID
		if id == "" {
			id = fmt.Sprintf("line %d", rows[i].Line)
		}
		var fired []string
		for _, res := range report.TriggeredResults() {
			fired = append(fired, fmt.Sprintf("#%d", res.ID))
		}
		fmt.Printf("%-20s %-8s %-9s %s\n", id, report.RiskGroup, report.MaxSeverity, strings.Join(fired, " "))
	}
}
