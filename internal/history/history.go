// Package history derives client history facts from stored profiles.
package history

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/opensource-finance/regtools/internal/domain"
)

// Service counts a client's contracts from the repository.
type Service struct {
	repo domain.Repository
	now  func() time.Time
}

// NewService creates a new history service.
func NewService(repo domain.Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

// ActiveContracts returns the number of subscription profiles stored for a
// client within ActiveContractsWindow.
func (s *Service) ActiveContracts(ctx context.Context, tenantID, clientID string) (int, error) {
	if tenantID == "" || clientID == "" {
		return 0, fmt.Errorf("tenantID and clientID are required")
	}

	subs, err := s.subscriptions(ctx, tenantID, clientID)
	if err != nil {
		return 0, err
	}
	return len(subs), nil
}

// Enrich fills ActiveContracts3Y when the caller left it empty and the
// profile names a client. A subscription not yet stored counts itself.
// Profiles without a client id, or with an explicit count, are untouched.
func (s *Service) Enrich(ctx context.Context, tenantID string, p *domain.ClientProfile) error {
	if p == nil || p.ClientID == "" || p.ActiveContracts3Y != nil {
		return nil
	}

	subs, err := s.subscriptions(ctx, tenantID, p.ClientID)
	if err != nil {
		return err
	}

	count := len(subs)
	if p.Operation == domain.OperationSubscription && (p.ID == "" || !slices.Contains(subs, p.ID)) {
		count++
	}

	p.ActiveContracts3Y = domain.Int(count)
	return nil
}

// subscriptions lists the IDs of a client's subscription profiles inside
// the window.
func (s *Service) subscriptions(ctx context.Context, tenantID, clientID string) ([]string, error) {
	since := s.now().Add(-domain.ActiveContractsWindow)
	profiles, err := s.repo.GetProfilesByClient(ctx, tenantID, clientID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get client profiles: %w", err)
	}

	var ids []string
	for _, p := range profiles {
		if p.Operation == domain.OperationSubscription {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}
