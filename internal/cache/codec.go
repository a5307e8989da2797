package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/regtools/internal/domain"
)

// ErrTenantRequired is returned by every operation called without a tenant.
var ErrTenantRequired = errors.New("tenantID is required")

// store is the byte-level contract shared by the LRU and Redis caches.
type store interface {
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, tenantID string, key string) error
	Ping(ctx context.Context) error
	Close() error
}

func tenantKey(tenantID, key string) string {
	return tenantID + ":" + key
}

func evaluationKey(evalID string) string {
	return "eval:" + evalID
}

func getEvaluation(ctx context.Context, s store, tenantID, evalID string) (*domain.Evaluation, error) {
	data, err := s.Get(ctx, tenantID, evaluationKey(evalID))
	if err != nil || data == nil {
		return nil, err
	}

	var eval domain.Evaluation
	if err := json.Unmarshal(data, &eval); err != nil {
		return nil, fmt.Errorf("failed to decode cached evaluation %s: %w", evalID, err)
	}
	return &eval, nil
}

func setEvaluation(ctx context.Context, s store, tenantID string, eval *domain.Evaluation, ttl time.Duration) error {
	if eval == nil || eval.ID == "" {
		return fmt.Errorf("evaluation id is required")
	}
	data, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation %s: %w", eval.ID, err)
	}
	return s.Set(ctx, tenantID, evaluationKey(eval.ID), data, ttl)
}
