package relay

import (
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/relay/internal/dto"
	"github.com/Additional-Code/relay/internal/presentation/http/response"
	orderservice "github.com/Additional-Code/relay/internal/service/order"
	relayservice "github.com/Additional-Code/relay/internal/service/relay"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/relay/transport/http/relay")

// Module wires the conversational gateway endpoints.
var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(Register),
)

// Handler accepts inbound participant traffic from the messaging gateway.
type Handler struct {
	router *relayservice.Router
	orders *orderservice.Service
}

// NewHandler constructs a relay Handler.
func NewHandler(router *relayservice.Router, orders *orderservice.Service) *Handler {
	return &Handler{router: router, orders: orders}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	g := e.Group("/relay")
	g.POST("/messages", h.message)
	g.POST("/actions/complete", h.complete)
}

func (h *Handler) message(c echo.Context) error {
	b := response.New(c)

	var in relayservice.Inbound
	if err := c.Bind(&in); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "relay.message", trace.WithAttributes(
		attribute.Int64("participant.id", in.SenderID),
	))
	defer span.End()

	reply, err := h.router.Handle(ctx, in)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.RelayReply{Reply: reply.Text}).Build()
}

func (h *Handler) complete(c echo.Context) error {
	b := response.New(c)

	var in orderservice.CompleteInput
	if err := c.Bind(&in); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "relay.complete", trace.WithAttributes(
		attribute.Int64("participant.id", in.ActorID),
		attribute.String("order.number", in.OrderNumber),
	))
	defer span.End()

	order, err := h.orders.Complete(ctx, in)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(dto.RelayReply{Reply: "✅ Order " + order.Number + " completed."}).Build()
}
