// Backtest tool for replaying a life-insurance portfolio through RegTools.
//
// Usage:
//
//	go run ./cmd/backtest -csv portfolio.csv -url http://localhost:8080
//	go run ./cmd/backtest -csv portfolio.csv -local -policy configs/policy.yaml
//
// This tool:
//  1. Reads client profiles from a CSV file (see csv.go for the columns)
//  2. Evaluates them in chunks, over POST /evaluate/batch or in process
//  3. Prints alert counts per indicator and, when the file carries an
//     expected_alert column, a confusion matrix against those labels
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/regtools/internal/domain"
	"github.com/opensource-finance/regtools/internal/rules"
	"github.com/opensource-finance/regtools/internal/thresholds"
)

// batchRequest and batchResponse mirror the API's batch payloads.
type batchRequest struct {
	Profiles []*domain.ClientProfile `json:"profiles"`
}

type batchResponse struct {
	Reports []*domain.EvaluationReport `json:"reports"`
}

// evaluator evaluates one chunk of profiles, returning reports in order.
type evaluator func(ctx context.Context, profiles []*domain.ClientProfile) ([]*domain.EvaluationReport, error)

func main() {
	csvPath := flag.String("csv", "", "Path to the portfolio CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "RegTools base URL")
	tenantID := flag.String("tenant", "backtest", "Tenant ID for requests")
	limit := flag.Int("limit", 0, "Maximum profiles to process (0 = all)")
	chunk := flag.Int("batch", 500, "Profiles per batch request")
	workers := flag.Int("workers", 4, "Concurrent batch requests")
	local := flag.Bool("local", false, "Evaluate in process instead of over HTTP")
	policyPath := flag.String("policy", "", "Threshold policy file for -local (default: built-in)")
	verbose := flag.Bool("verbose", false, "Print every profile that raised an alert")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: backtest -csv portfolio.csv [-url http://localhost:8080 | -local]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	rows, err := readPortfolio(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: failed to read %s: %v\n", *csvPath, err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d profiles from %s\n", len(rows), *csvPath)

	var eval evaluator
	if *local {
		policy, err := thresholds.LoadOrDefault(*policyPath)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
		engine, err := rules.NewEngine(policy)
		if err != nil {
			fmt.Printf("ERROR: %v\n", err)
			os.Exit(1)
		}
		eval = localEvaluator(engine)
		fmt.Printf("Evaluating in process with policy %s\n", policy.Version)
	} else {
		client := &http.Client{Timeout: 60 * time.Second}
		if err := checkHealth(ctx, client, *baseURL); err != nil {
			fmt.Printf("ERROR: RegTools not reachable at %s: %v\n", *baseURL, err)
			os.Exit(1)
		}
		eval = remoteEvaluator(client, *baseURL, *tenantID)
		fmt.Printf("Evaluating against %s as tenant %s\n", *baseURL, *tenantID)
	}

	start := time.Now()
	reports, err := runBacktest(ctx, rows, eval, *chunk, *workers)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}

	summary := summarize(rows, reports)
	summary.Duration = time.Since(start)

	if *verbose {
		printAlerts(rows, reports)
	}
	printSummary(summary)
}

// runBacktest splits rows into chunks and evaluates up to workers chunks at
// once. Reports come back in row order.
func runBacktest(ctx context.Context, rows []Row, eval evaluator, chunk, workers int) ([]*domain.EvaluationReport, error) {
	if chunk <= 0 {
		chunk = 500
	}
	if workers <= 0 {
		workers = 1
	}

	reports := make([]*domain.EvaluationReport, len(rows))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for lo := 0; lo < len(rows); lo += chunk {
		hi := min(lo+chunk, len(rows))

		profiles := make([]*domain.ClientProfile, hi-lo)
		for i := range profiles {
			profiles[i] = rows[lo+i].Profile
		}

		g.Go(func() error {
			got, err := eval(ctx, profiles)
			if err != nil {
				return fmt.Errorf("rows %d-%d: %w", rows[lo].Line, rows[hi-1].Line, err)
			}
			if len(got) != len(profiles) {
				return fmt.Errorf("rows %d-%d: got %d reports for %d profiles", rows[lo].Line, rows[hi-1].Line, len(got), len(profiles))
			}
			copy(reports[lo:hi], got)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func localEvaluator(engine *rules.Engine) evaluator {
	return func(ctx context.Context, profiles []*domain.ClientProfile) ([]*domain.EvaluationReport, error) {
		return engine.EvaluateBatch(ctx, profiles, rules.DefaultBatchWorkers)
	}
}

func remoteEvaluator(client *http.Client, baseURL, tenantID string) evaluator {
	return func(ctx context.Context, profiles []*domain.ClientProfile) ([]*domain.EvaluationReport, error) {
		body, err := json.Marshal(batchRequest{Profiles: profiles})
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/evaluate/batch", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", tenantID)

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}

		var result batchResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, err
		}
		return result.Reports, nil
	}
}

func checkHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
