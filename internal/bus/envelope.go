package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/regtools/internal/domain"
)

var (
	ErrTenantRequired = errors.New("tenantID is required")
	ErrInvalidTenant  = errors.New("tenantID must be a single subject token")
	ErrClosed         = errors.New("bus is closed")
)

// subjectToken checks that tenantID fits in one NATS subject token.
func subjectToken(tenantID string) error {
	if tenantID == "" {
		return ErrTenantRequired
	}
	if strings.ContainsAny(tenantID, ".*> \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, tenantID)
	}
	return nil
}

// newMessage wraps payload in the envelope every transport carries.
func newMessage(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, b domain.EventBus, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}
