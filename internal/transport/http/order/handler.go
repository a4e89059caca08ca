package order

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/relay/internal/dto"
	"github.com/Additional-Code/relay/internal/entity"
	"github.com/Additional-Code/relay/internal/presentation/http/response"
	service "github.com/Additional-Code/relay/internal/service/order"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

var httpTracer = otel.Tracer("github.com/Additional-Code/relay/transport/http/order")

// IdempotencyHeader lets storefront retries reuse an earlier order.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes the order creation channel and the order read model.
type Handler struct {
	svc *service.Service
}

// NewHandler constructs an order Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register routes with provided Echo instance.
func Register(e *echo.Echo, h *Handler) {
	e.POST("/api/new-order", h.create)

	g := e.Group("/orders")
	g.POST("", h.create)
	g.POST("/cancellation", h.cancel)
	g.GET("/:number", h.getByNumber)
}

func (h *Handler) create(c echo.Context) error {
	b := response.New(c)

	var in service.CreateInput
	if err := c.Bind(&in); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}
	if key := strings.TrimSpace(c.Request().Header.Get(IdempotencyHeader)); key != "" {
		in.IdempotencyKey = key
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.create", trace.WithAttributes(
		attribute.Int64("buyer.id", in.BuyerID),
	))
	defer span.End()

	res, err := h.svc.Create(ctx, in)
	if err != nil {
		return b.WithError(err).Build()
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		b.WithMeta("replayed", true)
	}
	return b.WithStatus(status).WithData(dto.CreateOrderResponse{
		Status:      "ok",
		OrderNumber: res.OrderNumber,
	}).Build()
}

func (h *Handler) cancel(c echo.Context) error {
	b := response.New(c)

	var in service.CancelInput
	if err := c.Bind(&in); err != nil {
		return b.WithError(errorbank.BadRequest("invalid payload", errorbank.WithCause(err))).Build()
	}

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.cancel", trace.WithAttributes(
		attribute.String("order.id", in.OrderID),
	))
	defer span.End()

	if err := h.svc.Cancel(ctx, in); err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(map[string]string{"status": "ok"}).Build()
}

func (h *Handler) getByNumber(c echo.Context) error {
	b := response.New(c)
	number := c.Param("number")

	ctx, span := httpTracer.Start(c.Request().Context(), "orders.getByNumber", trace.WithAttributes(
		attribute.String("order.number", number),
	))
	defer span.End()

	order, err := h.svc.GetByNumber(ctx, number)
	if err != nil {
		return b.WithError(err).Build()
	}
	return b.WithData(toDTO(order)).Build()
}

func toDTO(order *entity.Order) dto.OrderResponse {
	items := make([]dto.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, dto.LineItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Subtotal:  item.Subtotal().StringFixed(2),
		})
	}
	return dto.OrderResponse{
		ID:          order.ID,
		Number:      order.Number,
		Status:      string(order.Status),
		BuyerID:     order.BuyerID,
		SellerID:    order.SellerID,
		BuyerName:   order.Contact.Name,
		Address:     order.Contact.Address,
		Items:       items,
		Total:       order.Total.StringFixed(2),
		CreatedAt:   order.CreatedAt,
		CompletedAt: order.CompletedAt,
	}
}
