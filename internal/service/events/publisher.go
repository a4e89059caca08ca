package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/entity"
	"github.com/Additional-Code/relay/internal/messaging"
)

// Type names a lifecycle event.
type Type string

const (
	OrderCreated   Type = "order.created"
	OrderCompleted Type = "order.completed"
	OrderCancelled Type = "order.cancelled"
	MessageRelayed Type = "message.relayed"
)

// Event is the JSON payload written to the events topic, keyed by order number.
type Event struct {
	Type        Type              `json:"type"`
	OrderID     string            `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	Status      string            `json:"status"`
	BuyerID     int64             `json:"buyerId"`
	SellerID    int64             `json:"sellerId"`
	SenderRole  entity.SenderRole `json:"senderRole,omitempty"`
	OccurredAt  time.Time         `json:"occurredAt"`
}

// ForOrder builds an event snapshot of order.
func ForOrder(t Type, order *entity.Order, at time.Time) Event {
	return Event{
		Type:        t,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Status:      string(order.Status),
		BuyerID:     order.BuyerID,
		SellerID:    order.SellerID,
		OccurredAt:  at.UTC(),
	}
}

const publishTimeout = 5 * time.Second

// TypeHeader lets consumers filter events without decoding the payload.
const TypeHeader = "event-type"

// Module provides the event publisher to Fx.
var Module = fx.Provide(NewPublisher)

// Publisher writes lifecycle events; failures are logged and swallowed.
type Publisher struct {
	client  messaging.Client
	enabled bool
	logger  *zap.Logger
}

// NewPublisher wires a Publisher.
func NewPublisher(client messaging.Client, cfg config.Config, logger *zap.Logger) *Publisher {
	return &Publisher{client: client, enabled: cfg.Messaging.Enabled, logger: logger}
}

// Publish emits e without blocking the caller's outcome on the broker.
func (p *Publisher) Publish(ctx context.Context, e Event) {
	if p == nil || !p.enabled || p.client == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("marshal event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	out := messaging.Outbound{
		Key:     []byte(e.OrderNumber),
		Value:   payload,
		Headers: map[string]string{TypeHeader: string(e.Type)},
	}
	if err := p.client.Publish(pubCtx, out); err != nil {
		p.logger.Error("publish event",
			zap.String("type", string(e.Type)),
			zap.String("order_number", e.OrderNumber),
			zap.Error(err),
		)
	}
}
