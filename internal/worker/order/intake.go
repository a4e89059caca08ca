package order

import (
	"context"
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/messaging"
	ordersvc "github.com/Additional-Code/relay/internal/service/order"
	"github.com/Additional-Code/relay/internal/worker"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/relay/worker/order")

// IdempotencyHeader carries the idempotency key when the producer does not key its messages.
const IdempotencyHeader = "Idempotency-Key"

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewIntakeHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// Creator is the creation path shared with the HTTP channel.
type Creator interface {
	Create(ctx context.Context, in ordersvc.CreateInput) (*ordersvc.CreateResult, error)
}

// NewIntakeHandler feeds creation requests from the intake topic into the
// idempotent creation path. Rejected requests are logged and acknowledged;
// only failures worth retrying are returned.
func NewIntakeHandler(svc *ordersvc.Service, logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.IntakeTopic,
		Handler: intakeHandler(svc, logger),
	}
}

func intakeHandler(svc Creator, logger *zap.Logger) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.orders.intake", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		var in ordersvc.CreateInput
		if err := json.Unmarshal(msg.Value, &in); err != nil {
			logger.Error("discarding undecodable creation request", zap.Int64("offset", msg.Offset), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return nil
		}
		if key := idempotencyKey(msg); key != "" {
			in.IdempotencyKey = key
		}

		res, err := svc.Create(ctx, in)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "create failed")
			if retryable(err) {
				return err
			}
			logger.Warn("creation request rejected",
				zap.Int64("buyer_id", in.BuyerID),
				zap.String("idempotency_key", in.IdempotencyKey),
				zap.Error(err),
			)
			return nil
		}

		logger.Info("creation request processed",
			zap.String("order_number", res.OrderNumber),
			zap.Bool("replayed", res.Replayed),
		)
		return nil
	}
}

func idempotencyKey(msg messaging.Message) string {
	if key := strings.TrimSpace(string(msg.Key)); key != "" {
		return key
	}
	return strings.TrimSpace(msg.Headers[IdempotencyHeader])
}

func retryable(err error) bool {
	return errorbank.From(err).Kind() == errorbank.KindInternal
}
