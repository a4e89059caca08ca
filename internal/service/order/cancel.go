package order

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/entity"
	"github.com/Additional-Code/relay/internal/service/events"
	sellersvc "github.com/Additional-Code/relay/internal/service/seller"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

// CancelInput is a buyer cancellation reported by the storefront.
type CancelInput struct {
	OrderID  string `json:"orderId"`
	SellerID int64  `json:"sellerId"`
}

// Cancel moves an active order to cancelled and tells the seller. Repeating
// the call for an already cancelled order acknowledges without notifying.
func (s *Service) Cancel(ctx context.Context, in CancelInput) error {
	in.OrderID = trimmed(in.OrderID)
	ctx, span := serviceTracer.Start(ctx, "OrderService.Cancel", trace.WithAttributes(
		attribute.String("order.id", in.OrderID),
		attribute.Int64("seller.id", in.SellerID),
	))
	defer span.End()

	if in.OrderID == "" || in.SellerID == 0 {
		return errorbank.BadRequest("missing required fields: orderId, sellerId")
	}

	order, err := s.repo.GetByID(ctx, in.OrderID)
	if err != nil {
		return s.storeError(span, err, "order not found", "failed to load order")
	}

	seller, err := s.sellers.ByID(ctx, in.SellerID)
	if err != nil {
		if errors.Is(err, sellersvc.ErrNotFound) {
			return errorbank.NotFound("seller not found")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "seller lookup failed")
		return errorbank.Internal("failed to resolve seller", errorbank.WithCause(err))
	}

	if order.SellerID != seller.ID {
		return errorbank.Forbidden("order belongs to another seller")
	}

	switch order.Status {
	case entity.OrderStatusCancelled:
		return nil
	case entity.OrderStatusCompleted:
		return alreadyTerminal(order)
	}

	now := s.now()
	ok, err := s.repo.Cancel(ctx, order.ID, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return errorbank.Internal("failed to cancel order", errorbank.WithCause(err))
	}
	if !ok {
		current, err := s.repo.GetByID(ctx, order.ID)
		if err == nil && current.Status == entity.OrderStatusCancelled {
			return nil
		}
		if err != nil {
			current = order
		}
		return alreadyTerminal(current)
	}

	order.Status = entity.OrderStatusCancelled
	order.UpdatedAt = now

	s.logger.Info("order cancelled", zap.String("order_number", order.Number))
	s.dispatcher.Notify(ctx, sellerOrderCancelled(seller, order))
	s.events.Publish(ctx, events.ForOrder(events.OrderCancelled, order, now))

	return nil
}
