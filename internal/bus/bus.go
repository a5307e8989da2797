package bus

import (
	"fmt"

	"github.com/opensource-finance/regtools/internal/domain"
)

// GlobalTenantID subscribes to a topic for every tenant. Messages keep the
// publisher's tenant in their envelope.
const GlobalTenantID = "_global"

// Stats is a snapshot of bus traffic, comparable across transports.
type Stats struct {
	Published     uint64 `json:"published"`
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
	Reconnects    uint64 `json:"reconnects,omitempty"`
	Subscriptions int    `json:"subscriptions"`
}

// New creates an event bus based on configuration.
// "channel" returns an in-process ChannelBus, "nats" a NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
