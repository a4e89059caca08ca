package order

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/cache"
	"github.com/Additional-Code/relay/internal/delivery"
	"github.com/Additional-Code/relay/internal/entity"
	repo "github.com/Additional-Code/relay/internal/repository/order"
	"github.com/Additional-Code/relay/internal/service/events"
	sellersvc "github.com/Additional-Code/relay/internal/service/seller"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

// CreateInput is a creation request from the storefront. The JSON shape is
// shared by the HTTP endpoint and the intake topic.
type CreateInput struct {
	BuyerID        int64             `json:"userId" validate:"required"`
	BuyerName      string            `json:"name"`
	Items          []entity.LineItem `json:"items" validate:"required,min=1,dive"`
	Total          decimal.Decimal   `json:"total"`
	Address        string            `json:"address" validate:"required"`
	PaymentMethod  string            `json:"paymentMethod"`
	DeliveryType   string            `json:"deliveryType"`
	Contact        *entity.Contact   `json:"contact,omitempty"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty" validate:"max=255"`
}

// CreateResult reports the order number handed to the caller. Replayed is
// true when an earlier request with the same idempotency key created it.
type CreateResult struct {
	OrderNumber string
	Replayed    bool
}

// Create validates the request, resolves the seller, allocates an order
// number and persists the order. Notifications are best-effort and never
// change the outcome once the order is stored.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	in.normalize(s.relay.DefaultBuyerName)

	ctx, span := serviceTracer.Start(ctx, "OrderService.Create", trace.WithAttributes(
		attribute.Int64("buyer.id", in.BuyerID),
		attribute.Bool("order.idempotent", in.IdempotencyKey != ""),
	))
	defer span.End()

	if err := s.validateCreate(in); err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" {
		if number, ok := s.lookupIdempotent(ctx, in.IdempotencyKey); ok {
			span.SetAttributes(attribute.Bool("order.replayed", true))
			return &CreateResult{OrderNumber: number, Replayed: true}, nil
		}
	}

	location, seller, err := s.sellers.ResolvePickup(ctx, in.Address)
	if err != nil {
		if errors.Is(err, sellersvc.ErrNotFound) {
			s.logger.Warn("no seller for pickup address", zap.String("address", in.Address))
			return nil, errorbank.NotFound("seller not found for this address", errorbank.WithDetail("address", in.Address))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "seller lookup failed")
		return nil, errorbank.Internal("failed to resolve seller", errorbank.WithCause(err))
	}

	if replay, err := s.ensureNoActiveOrder(ctx, in); err != nil || replay != nil {
		return replay, err
	}

	number, err := s.numbers.Next(ctx, seller.Name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order number failed")
		return nil, errorbank.Internal("failed to allocate order number", errorbank.WithCause(err))
	}

	now := s.now()
	order := &entity.Order{
		ID:               uuid.NewString(),
		Number:           number,
		BuyerID:          in.BuyerID,
		SellerID:         seller.ID,
		PickupLocationID: &location.ID,
		Items:            in.Items,
		Total:            in.Total,
		Contact:          in.contact(),
		Status:           entity.OrderStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		order.IdempotencyKey = &key
	}

	if err := s.repo.Create(ctx, order); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return s.resolveDuplicate(ctx, in)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "repository error")
		return nil, errorbank.Internal("failed to create order", errorbank.WithCause(err))
	}
	span.SetAttributes(attribute.String("order.number", number))

	s.logger.Info("order created",
		zap.String("order_number", number),
		zap.String("order_id", order.ID),
		zap.Int64("buyer_id", order.BuyerID),
		zap.Int64("seller_id", order.SellerID),
	)
	s.count(ctx, s.created)

	if order.IdempotencyKey != nil {
		if err := s.cache.Set(ctx, idempotencyCacheKey(*order.IdempotencyKey), []byte(number), s.relay.IdempotencyKeyTTL); err != nil {
			s.logger.Warn("idempotency cache write failed", zap.String("order_number", number), zap.Error(err))
		}
	}

	notes := []delivery.Notification{sellerNewOrder(seller, order, s.relay.ReplySigil)}
	if s.observer() != 0 {
		notes = append(notes, observerNewOrder(s.observer(), seller, order))
	}
	s.dispatcher.NotifyAll(ctx, notes...)
	s.events.Publish(ctx, events.ForOrder(events.OrderCreated, order, now))

	return &CreateResult{OrderNumber: number}, nil
}

func (s *Service) lookupIdempotent(ctx context.Context, key string) (string, bool) {
	if raw, err := s.cache.Get(ctx, idempotencyCacheKey(key)); err == nil && len(raw) > 0 {
		return string(raw), true
	} else if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("idempotency cache read failed", zap.Error(err))
	}

	order, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			s.logger.Warn("idempotency lookup failed", zap.Error(err))
		}
		return "", false
	}
	return order.Number, true
}

// ensureNoActiveOrder rejects a buyer who already holds an active order. When
// that order carries the request's idempotency key it was created by an
// overlapping attempt of the same request, and its number is replayed.
func (s *Service) ensureNoActiveOrder(ctx context.Context, in CreateInput) (*CreateResult, error) {
	existing, err := s.repo.GetActiveByBuyer(ctx, in.BuyerID)
	switch {
	case err == nil:
		if in.IdempotencyKey != "" && existing.IdempotencyKey != nil && *existing.IdempotencyKey == in.IdempotencyKey {
			return &CreateResult{OrderNumber: existing.Number, Replayed: true}, nil
		}
		return nil, errorbank.Conflict("buyer already has an active order",
			errorbank.WithDetail("orderNumber", existing.Number))
	case errors.Is(err, repo.ErrNotFound):
		return nil, nil
	case errors.Is(err, repo.ErrMultipleActive):
		s.logger.Error("buyer holds more than one active order", zap.Int64("buyer_id", in.BuyerID))
		return nil, errorbank.Integrity("multiple active orders for buyer", errorbank.WithDetail("buyerId", in.BuyerID))
	default:
		return nil, errorbank.Internal("failed to check active orders", errorbank.WithCause(err))
	}
}

// resolveDuplicate explains a unique violation on insert: a concurrent retry
// with the same idempotency key won, or the buyer got an active order in between.
func (s *Service) resolveDuplicate(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if in.IdempotencyKey != "" {
		if existing, err := s.repo.FindByIdempotencyKey(ctx, in.IdempotencyKey); err == nil {
			return &CreateResult{OrderNumber: existing.Number, Replayed: true}, nil
		}
	}
	if replay, err := s.ensureNoActiveOrder(ctx, in); err != nil || replay != nil {
		return replay, err
	}
	return nil, errorbank.Internal("order could not be stored")
}

func (s *Service) validateCreate(in CreateInput) error {
	err := s.validate.Struct(in)
	var missing, invalid []string
	if err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
		}
		for _, fe := range verrs {
			field := fieldPath(fe.Namespace())
			switch fe.Tag() {
			case "required", "min":
				missing = append(missing, field)
			default:
				invalid = append(invalid, field)
			}
		}
	}
	if in.Total.Sign() <= 0 {
		missing = append(missing, "total")
	}
	for i, item := range in.Items {
		if item.UnitPrice.Sign() < 0 {
			invalid = append(invalid, "items["+strconv.Itoa(i)+"].price")
		}
	}

	switch {
	case len(missing) > 0:
		return errorbank.BadRequest("missing required fields: "+strings.Join(missing, ", "),
			errorbank.WithDetail("fields", missing))
	case len(invalid) > 0:
		return errorbank.BadRequest("invalid fields: "+strings.Join(invalid, ", "),
			errorbank.WithDetail("fields", invalid))
	}
	return nil
}

func (in *CreateInput) normalize(defaultBuyerName string) {
	in.BuyerName = trimmed(in.BuyerName)
	if in.BuyerName == "" {
		in.BuyerName = defaultBuyerName
	}
	in.Address = trimmed(in.Address)
	in.PaymentMethod = trimmed(in.PaymentMethod)
	in.DeliveryType = trimmed(in.DeliveryType)
	in.IdempotencyKey = trimmed(in.IdempotencyKey)
}

// contact returns the supplied contact block or builds one from the request.
func (in *CreateInput) contact() entity.Contact {
	if in.Contact != nil {
		c := *in.Contact
		if c.Name == "" {
			c.Name = in.BuyerName
		}
		if c.Address == "" {
			c.Address = in.Address
		}
		return c
	}
	return entity.Contact{
		Name:          in.BuyerName,
		Address:       in.Address,
		PaymentMethod: in.PaymentMethod,
		DeliveryType:  in.DeliveryType,
	}
}

func idempotencyCacheKey(key string) string {
	return cache.Key("idempotency", key)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
