package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/cache"
	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/delivery"
	"github.com/Additional-Code/relay/internal/entity"
	repo "github.com/Additional-Code/relay/internal/repository/order"
	"github.com/Additional-Code/relay/internal/service/events"
	"github.com/Additional-Code/relay/internal/service/ordernumber"
	sellersvc "github.com/Additional-Code/relay/internal/service/seller"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

var (
	serviceTracer = otel.Tracer("github.com/Additional-Code/relay/service/order")
	serviceMeter  = otel.Meter("github.com/Additional-Code/relay/service/order")
)

// Service drives the order lifecycle: creation, completion and cancellation.
type Service struct {
	repo       *repo.Repository
	sellers    *sellersvc.Directory
	numbers    *ordernumber.Generator
	dispatcher *delivery.Dispatcher
	events     *events.Publisher
	cache      cache.Store
	validate   *validator.Validate
	relay      config.Relay
	logger     *zap.Logger
	now        func() time.Time

	created   metric.Int64Counter
	completed metric.Int64Counter
}

// Params defines dependencies for constructing Service.
type Params struct {
	fx.In

	Repository *repo.Repository
	Sellers    *sellersvc.Directory
	Numbers    *ordernumber.Generator
	Dispatcher *delivery.Dispatcher
	Events     *events.Publisher
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewService wires a new Service instance.
func NewService(p Params) *Service {
	s := &Service{
		repo:       p.Repository,
		sellers:    p.Sellers,
		numbers:    p.Numbers,
		dispatcher: p.Dispatcher,
		events:     p.Events,
		cache:      p.Cache,
		validate:   newValidator(),
		relay:      p.Config.Relay,
		logger:     p.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}

	var err error
	if s.created, err = serviceMeter.Int64Counter("relay.orders.created"); err != nil {
		p.Logger.Warn("create orders counter", zap.Error(err))
	}
	if s.completed, err = serviceMeter.Int64Counter("relay.orders.completed"); err != nil {
		p.Logger.Warn("create completions counter", zap.Error(err))
	}
	return s
}

// GetByNumber returns an order by its human readable number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*entity.Order, error) {
	number = ordernumber.Normalize(number)
	ctx, span := serviceTracer.Start(ctx, "OrderService.GetByNumber", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	if number == "" {
		return nil, errorbank.BadRequest("order number is required")
	}
	order, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, s.storeError(span, err, "order not found", "failed to load order")
	}
	return order, nil
}

// Messages returns the conversation log of the order with the given number.
func (s *Service) Messages(ctx context.Context, number string) ([]entity.Message, error) {
	order, err := s.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	messages, err := s.repo.ListMessages(ctx, order.ID)
	if err != nil {
		return nil, errorbank.Internal("failed to load messages", errorbank.WithCause(err))
	}
	return messages, nil
}

func (s *Service) storeError(span trace.Span, err error, notFound, internal string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return errorbank.NotFound(notFound)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "repository error")
	return errorbank.Internal(internal, errorbank.WithCause(err))
}

func (s *Service) observer() int64 {
	return s.relay.ObserverID
}

func (s *Service) count(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(context.WithoutCancel(ctx), 1)
	}
}

func trimmed(v string) string {
	return strings.TrimSpace(v)
}
