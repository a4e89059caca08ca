package delivery

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/cache"
	"github.com/Additional-Code/relay/internal/config"
)

// ErrDelivery marks a notification that could not reach its recipient.
var ErrDelivery = errors.New("delivery failed")

// Kind classifies outbound notifications.
type Kind string

const (
	KindSellerNewOrder         Kind = "seller_new_order"
	KindBuyerMessageForwarded  Kind = "buyer_message_forwarded"
	KindSellerMessageForwarded Kind = "seller_message_forwarded"
	KindBuyerOrderCompleted    Kind = "buyer_order_completed"
	KindSellerOrderCancelled   Kind = "seller_order_cancelled"
	KindObserverCopy           Kind = "observer_copy"
)

// ActionComplete is the only discrete action participants can invoke.
const ActionComplete = "complete"

// Action is an interactive affordance attached to a notification, rendered
// by the gateway as a button.
type Action struct {
	Kind        string `json:"kind"`
	Label       string `json:"label"`
	OrderNumber string `json:"orderNumber"`
}

// ActionRef points at a previously delivered action so the gateway can
// disable it. MessageRef is the gateway's own id of the carrying message.
type ActionRef struct {
	Kind        string `json:"kind"`
	OrderNumber string `json:"orderNumber"`
	MessageRef  string `json:"messageRef,omitempty"`
}

// Notification is a single outbound message to one participant.
type Notification struct {
	Recipient   int64   `json:"recipient"`
	Kind        Kind    `json:"kind"`
	OrderNumber string  `json:"orderNumber,omitempty"`
	Text        string  `json:"text"`
	Action      *Action `json:"action,omitempty"`
}

// Notifier hands notifications to the delivery channel.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	RetractAction(ctx context.Context, recipient int64, ref ActionRef) error
}

// Module provides the configured Notifier and the Dispatcher.
var Module = fx.Options(
	fx.Provide(NewNotifier),
	fx.Provide(NewDispatcher),
)

// NewNotifier selects the delivery driver.
func NewNotifier(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (Notifier, error) {
	switch cfg.Relay.DeliveryDriver {
	case "log", "":
		logger.Info("delivery driver: log")
		return NewLogNotifier(logger), nil
	case "redis":
		client := goredis.NewClient(cache.RedisOptions(cfg.Cache.Redis))
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("ping delivery redis: %w", err)
				}
				logger.Info("delivery driver: redis", zap.String("channel", cfg.Relay.DeliveryChannel))
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		return NewRedisNotifier(client, cfg.Relay.DeliveryChannel), nil
	default:
		return nil, fmt.Errorf("unsupported delivery driver: %s", cfg.Relay.DeliveryDriver)
	}
}
