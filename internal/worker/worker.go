// Package worker evaluates ingested profiles asynchronously from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opensource-finance/regtools/internal/bus"
	"github.com/opensource-finance/regtools/internal/domain"
	"github.com/opensource-finance/regtools/internal/pipeline"
)

// GlobalTenantID is subscribed when no tenant list is configured, so one
// worker serves every tenant.
const GlobalTenantID = bus.GlobalTenantID

// Worker consumes TopicProfileIngested and runs each profile through the
// evaluation pipeline.
type Worker struct {
	bus      domain.EventBus
	pipeline *pipeline.Pipeline

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = GlobalTenantID)
	TenantIDs []string
}

// ProfileMessage is the payload of TopicProfileIngested.
type ProfileMessage struct {
	TenantID string               `json:"tenantId,omitempty"`
	TraceID  string               `json:"traceId,omitempty"`
	Profile  domain.ClientProfile `json:"profile"`
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, p *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes for the configured tenants. A tenant that fails to
// subscribe is logged and skipped; Start fails only if none succeeded.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{GlobalTenantID}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}

	if started == 0 {
		return fmt.Errorf("failed to subscribe for any of %d tenants", len(tenants))
	}

	slog.Info("workers started",
		"tenant_count", started,
		"topic", domain.TopicProfileIngested,
	)
	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicProfileIngested, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()
	return nil
}

// handleMessage decodes and evaluates one ingested profile. The message
// envelope's tenant applies unless the payload names one.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var pm ProfileMessage
	if err := json.Unmarshal(msg.Payload, &pm); err != nil {
		return fmt.Errorf("failed to parse profile message %s: %w", msg.ID, err)
	}

	tenantID := msg.TenantID
	if pm.TenantID != "" {
		tenantID = pm.TenantID
	}

	traceID := pm.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing profile",
		"profile_id", pm.Profile.ID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	w.pipeline.Run(ctx, pipeline.Request{
		TenantID: tenantID,
		TraceID:  traceID,
		Source:   "worker",
		Profile:  &pm.Profile,
	})
	return nil
}

// Stop cancels in-flight handlers and removes every subscription.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
