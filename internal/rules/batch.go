package rules

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/regtools/internal/domain"
)

// DefaultBatchWorkers bounds EvaluateBatch concurrency when limit <= 0.
const DefaultBatchWorkers = 10

// EvaluateBatch evaluates profiles concurrently with at most limit workers.
// Reports keep the input order. The only error is ctx cancellation.
func (e *Engine) EvaluateBatch(ctx context.Context, profiles []*domain.ClientProfile, limit int) ([]*domain.EvaluationReport, error) {
	if limit <= 0 {
		limit = DefaultBatchWorkers
	}

	reports := make([]*domain.EvaluationReport, len(profiles))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, p := range profiles {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = e.Evaluate(p)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
