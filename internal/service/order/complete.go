package order

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/delivery"
	"github.com/Additional-Code/relay/internal/entity"
	"github.com/Additional-Code/relay/internal/service/events"
	"github.com/Additional-Code/relay/internal/service/ordernumber"
	sellersvc "github.com/Additional-Code/relay/internal/service/seller"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

// CompleteInput is the seller's "complete" action. MessageRef identifies the
// notification that carried the action, when the gateway knows it.
type CompleteInput struct {
	ActorID     int64  `json:"senderId"`
	OrderNumber string `json:"orderNumber"`
	MessageRef  string `json:"messageRef,omitempty"`
}

// Complete fulfils an active order on behalf of the seller that owns it.
// Completing a terminal order is a conflict; the stale action is retracted
// and nobody else is notified.
func (s *Service) Complete(ctx context.Context, in CompleteInput) (*entity.Order, error) {
	number := ordernumber.Normalize(in.OrderNumber)
	ctx, span := serviceTracer.Start(ctx, "OrderService.Complete", trace.WithAttributes(
		attribute.String("order.number", number),
		attribute.Int64("actor.id", in.ActorID),
	))
	defer span.End()

	if number == "" || in.ActorID == 0 {
		return nil, errorbank.BadRequest("sender and order number are required")
	}

	order, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, s.storeError(span, err, "order not found", "failed to load order")
	}

	seller, err := s.sellers.ByParticipant(ctx, in.ActorID)
	if err != nil {
		if errors.Is(err, sellersvc.ErrNotFound) {
			return nil, errorbank.Forbidden("you are not a seller")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "seller lookup failed")
		return nil, errorbank.Internal("failed to resolve seller", errorbank.WithCause(err))
	}

	if order.SellerID != seller.ID {
		s.logger.Warn("completion by foreign seller",
			zap.String("order_number", number),
			zap.Int64("owner_seller_id", order.SellerID),
			zap.Int64("actor_seller_id", seller.ID),
		)
		return nil, errorbank.Forbidden("this order is not yours")
	}

	ref := completeActionRef(order.Number, in.MessageRef)
	if order.Status.Terminal() {
		s.dispatcher.Retract(ctx, in.ActorID, ref)
		return nil, alreadyTerminal(order)
	}

	now := s.now()
	ok, err := s.repo.Complete(ctx, order.ID, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to complete order", errorbank.WithCause(err))
	}
	if !ok {
		// Lost a race with another completion or a cancellation.
		current, err := s.repo.GetByID(ctx, order.ID)
		if err != nil {
			current = order
		}
		s.dispatcher.Retract(ctx, in.ActorID, ref)
		return nil, alreadyTerminal(current)
	}

	order.Status = entity.OrderStatusCompleted
	order.CompletedAt = &now
	order.UpdatedAt = now

	s.logger.Info("order completed",
		zap.String("order_number", order.Number),
		zap.Int64("seller_id", seller.ID),
	)
	s.count(ctx, s.completed)

	notes := []delivery.Notification{buyerOrderCompleted(order)}
	if s.observer() != 0 {
		notes = append(notes, observerOrderCompleted(s.observer(), seller, order))
	}
	s.dispatcher.NotifyAll(ctx, notes...)
	s.dispatcher.Retract(ctx, in.ActorID, ref)
	s.events.Publish(ctx, events.ForOrder(events.OrderCompleted, order, now))

	return order, nil
}

func alreadyTerminal(order *entity.Order) error {
	return errorbank.Conflict("order is already "+string(order.Status),
		errorbank.WithDetail("orderNumber", order.Number),
		errorbank.WithDetail("status", string(order.Status)),
	)
}
