package relay

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/entity"
	orderrepo "github.com/Additional-Code/relay/internal/repository/order"
	sellersvc "github.com/Additional-Code/relay/internal/service/seller"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

// Role is the classification of a participant for a single inbound event.
type Role int

const (
	RoleUnrecognized Role = iota
	RoleActiveBuyer
	RoleSeller
)

func (r Role) String() string {
	switch r {
	case RoleActiveBuyer:
		return "active_buyer"
	case RoleSeller:
		return "seller"
	default:
		return "unrecognized"
	}
}

// Classification is computed once per event. Order is set for RoleActiveBuyer,
// Seller for RoleSeller.
type Classification struct {
	Role   Role
	Order  *entity.Order
	Seller *entity.Seller
}

// ActiveOrders is the part of the order store the classifier needs.
type ActiveOrders interface {
	GetActiveByBuyer(ctx context.Context, buyerID int64) (*entity.Order, error)
}

// Sellers is the part of the seller directory the classifier needs.
type Sellers interface {
	ByParticipant(ctx context.Context, participantID int64) (*entity.Seller, error)
}

// Classifier decides who a participant is right now. A participant holding
// an active order is a buyer even if also registered as a seller: the buyer
// path needs no order number, while sellers always address orders explicitly.
type Classifier struct {
	orders  ActiveOrders
	sellers Sellers
	logger  *zap.Logger
}

// NewClassifier wires a Classifier.
func NewClassifier(orders *orderrepo.Repository, sellers *sellersvc.Directory, logger *zap.Logger) *Classifier {
	return &Classifier{orders: orders, sellers: sellers, logger: logger}
}

// Classify evaluates active buyer, then registered seller, then unrecognized.
func (c *Classifier) Classify(ctx context.Context, participantID int64) (Classification, error) {
	ctx, span := tracer.Start(ctx, "Relay.Classify", trace.WithAttributes(attribute.Int64("participant.id", participantID)))
	defer span.End()

	order, err := c.orders.GetActiveByBuyer(ctx, participantID)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("relay.role", RoleActiveBuyer.String()))
		return Classification{Role: RoleActiveBuyer, Order: order}, nil
	case errors.Is(err, orderrepo.ErrMultipleActive):
		c.logger.Error("participant holds more than one active order", zap.Int64("participant_id", participantID))
		span.RecordError(err)
		return Classification{}, errorbank.Integrity("multiple active orders for participant",
			errorbank.WithDetail("participantId", participantID), errorbank.WithCause(err))
	case !errors.Is(err, orderrepo.ErrNotFound):
		span.RecordError(err)
		return Classification{}, errorbank.Internal("failed to classify participant", errorbank.WithCause(err))
	}

	seller, err := c.sellers.ByParticipant(ctx, participantID)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("relay.role", RoleSeller.String()))
		return Classification{Role: RoleSeller, Seller: seller}, nil
	case !errors.Is(err, sellersvc.ErrNotFound):
		span.RecordError(err)
		return Classification{}, errorbank.Internal("failed to classify participant", errorbank.WithCause(err))
	}

	span.SetAttributes(attribute.String("relay.role", RoleUnrecognized.String()))
	return Classification{Role: RoleUnrecognized}, nil
}
