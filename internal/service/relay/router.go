package relay

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/delivery"
	"github.com/Additional-Code/relay/internal/entity"
	orderrepo "github.com/Additional-Code/relay/internal/repository/order"
	"github.com/Additional-Code/relay/internal/service/events"
	"github.com/Additional-Code/relay/internal/service/ordernumber"
	sellersvc "github.com/Additional-Code/relay/internal/service/seller"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

var (
	tracer = otel.Tracer("github.com/Additional-Code/relay/service/relay")
	meter  = otel.Meter("github.com/Additional-Code/relay/service/relay")
)

// Module provides the classifier and router to Fx.
var Module = fx.Provide(NewClassifier, NewRouter)

// Inbound is a free-text message from a participant.
type Inbound struct {
	SenderID int64  `json:"senderId"`
	Text     string `json:"text"`
}

// Reply is what the sender gets back on the conversational channel.
type Reply struct {
	Text string
}

// Router forwards participant messages to their counterpart through the
// relay identity. Rejections come back as errorbank errors whose message is
// the text to show the sender.
type Router struct {
	classifier *Classifier
	orders     *orderrepo.Repository
	sellers    *sellersvc.Directory
	dispatcher *delivery.Dispatcher
	events     *events.Publisher
	relay      config.Relay
	logger     *zap.Logger
	relayed    metric.Int64Counter
	now        func() time.Time
}

// RouterParams defines dependencies for constructing Router.
type RouterParams struct {
	fx.In

	Classifier *Classifier
	Orders     *orderrepo.Repository
	Sellers    *sellersvc.Directory
	Dispatcher *delivery.Dispatcher
	Events     *events.Publisher
	Config     config.Config
	Logger     *zap.Logger
}

// NewRouter wires a Router.
func NewRouter(p RouterParams) *Router {
	relayed, err := meter.Int64Counter("relay.messages.relayed")
	if err != nil {
		p.Logger.Warn("create relayed counter", zap.Error(err))
	}
	return &Router{
		classifier: p.Classifier,
		orders:     p.Orders,
		sellers:    p.Sellers,
		dispatcher: p.Dispatcher,
		events:     p.Events,
		relay:      p.Config.Relay,
		logger:     p.Logger,
		relayed:    relayed,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Handle routes one inbound message.
func (r *Router) Handle(ctx context.Context, in Inbound) (Reply, error) {
	text := strings.TrimSpace(in.Text)
	ctx, span := tracer.Start(ctx, "Relay.Handle", trace.WithAttributes(attribute.Int64("participant.id", in.SenderID)))
	defer span.End()

	if in.SenderID == 0 {
		return Reply{}, errorbank.BadRequest("sender is required")
	}
	if isStartCommand(text) {
		return Reply{Text: textGreeting}, nil
	}

	class, err := r.classifier.Classify(ctx, in.SenderID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		return Reply{}, err
	}

	switch class.Role {
	case RoleActiveBuyer:
		return r.fromBuyer(ctx, in.SenderID, class.Order, text)
	case RoleSeller:
		if !strings.HasPrefix(text, r.relay.ReplySigil) {
			return r.sellerStatus(ctx, class.Seller)
		}
		return r.fromSeller(ctx, in.SenderID, class.Seller, text)
	default:
		return Reply{Text: textGuidance}, nil
	}
}

func (r *Router) fromBuyer(ctx context.Context, senderID int64, order *entity.Order, text string) (Reply, error) {
	if text == "" {
		return Reply{}, errorbank.BadRequest(textEmptyMessage)
	}

	if err := r.appendMessage(ctx, order, senderID, entity.SenderRoleBuyer, text); err != nil {
		return Reply{}, err
	}

	notes := make([]delivery.Notification, 0, 2)
	seller, err := r.sellers.ByID(ctx, order.SellerID)
	if err != nil {
		r.logger.Error("seller of order unavailable; message stored but not forwarded",
			zap.String("order_number", order.Number),
			zap.Int64("seller_id", order.SellerID),
			zap.Error(err),
		)
	} else {
		notes = append(notes, forwardToSeller(seller.ParticipantID, order.Number, text))
	}
	if r.relay.HasObserver() {
		notes = append(notes, observerBuyerCopy(r.relay.ObserverID, order, text))
	}
	r.dispatcher.NotifyAll(ctx, notes...)
	r.published(ctx, order, entity.SenderRoleBuyer)

	return Reply{Text: textSentToSeller}, nil
}

func (r *Router) sellerStatus(ctx context.Context, seller *entity.Seller) (Reply, error) {
	orders, err := r.orders.ListActiveBySeller(ctx, seller.ID)
	if err != nil {
		return Reply{}, errorbank.Internal("failed to list active orders", errorbank.WithCause(err))
	}
	if len(orders) == 0 {
		return Reply{Text: textNoActiveOrders}, nil
	}
	return Reply{Text: activeOrdersList(orders, r.relay.ReplySigil)}, nil
}

func (r *Router) fromSeller(ctx context.Context, senderID int64, seller *entity.Seller, text string) (Reply, error) {
	number, body, err := parseAddressed(text, r.relay.ReplySigil)
	if err != nil {
		return Reply{}, errorbank.BadRequest(usage(r.relay.ReplySigil), errorbank.WithCause(err))
	}
	if body == "" {
		return Reply{}, errorbank.BadRequest(textEmptyReply)
	}

	order, err := r.orders.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, orderrepo.ErrNotFound) {
			return Reply{}, errorbank.NotFound(orderNotFound(number), errorbank.WithDetail("orderNumber", number))
		}
		return Reply{}, errorbank.Internal("failed to load order", errorbank.WithCause(err))
	}
	if order.SellerID != seller.ID {
		r.logger.Warn("seller replied to a foreign order",
			zap.String("order_number", number),
			zap.Int64("seller_id", seller.ID),
		)
		return Reply{}, errorbank.Forbidden(textNotYourOrder)
	}

	if err := r.appendMessage(ctx, order, senderID, entity.SenderRoleSeller, body); err != nil {
		return Reply{}, err
	}

	notes := []delivery.Notification{forwardToBuyer(order, body)}
	if r.relay.HasObserver() {
		notes = append(notes, observerSellerCopy(r.relay.ObserverID, seller, order, body))
	}
	r.dispatcher.NotifyAll(ctx, notes...)
	r.published(ctx, order, entity.SenderRoleSeller)

	return Reply{Text: sentToBuyer(order.Number)}, nil
}

// appendMessage records the message before any forwarding is attempted, so
// the log holds it whatever happens to delivery.
func (r *Router) appendMessage(ctx context.Context, order *entity.Order, senderID int64, role entity.SenderRole, text string) error {
	msg := &entity.Message{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		SenderID:   senderID,
		SenderRole: role,
		Text:       text,
		SentAt:     r.now(),
	}
	if err := r.orders.AppendMessage(ctx, msg); err != nil {
		r.logger.Error("append message failed", zap.String("order_number", order.Number), zap.Error(err))
		return errorbank.Internal("failed to record message", errorbank.WithCause(err))
	}
	return nil
}

func (r *Router) published(ctx context.Context, order *entity.Order, role entity.SenderRole) {
	if r.relayed != nil {
		r.relayed.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(attribute.String("role", string(role))))
	}
	e := events.ForOrder(events.MessageRelayed, order, r.now())
	e.SenderRole = role
	r.events.Publish(ctx, e)
}

var errMalformed = errors.New("malformed addressed message")

// parseAddressed splits "<sigil><number> <text>". The number is normalized;
// a missing number is malformed, a missing text yields an empty body.
func parseAddressed(text, sigil string) (number, body string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), sigil)
	if !ok {
		return "", "", errMalformed
	}
	split := strings.IndexFunc(rest, unicode.IsSpace)
	if split < 0 {
		number = rest
	} else {
		number, body = rest[:split], strings.TrimSpace(rest[split:])
	}
	number = ordernumber.Normalize(number)
	if number == "" {
		return "", "", errMalformed
	}
	return number, body, nil
}

func isStartCommand(text string) bool {
	cmd, _, _ := strings.Cut(text, " ")
	return cmd == "/start"
}
