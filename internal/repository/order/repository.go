package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/relay/internal/database"
	"github.com/Additional-Code/relay/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/relay/repository/order")

var (
	// ErrNotFound is returned when an order is missing.
	ErrNotFound = errors.New("order not found")
	// ErrDuplicate is returned when an insert hits a unique constraint
	// (order number, idempotency key or the one-active-order-per-buyer rule).
	ErrDuplicate = errors.New("order already exists")
	// ErrMultipleActive means storage holds more than one active order for a buyer.
	ErrMultipleActive = errors.New("multiple active orders for buyer")
)

// Repository encapsulates read/write access for orders and their message log.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{
		writer: conns.Writer,
		reader: conns.Reader,
	}
}

// Create persists a new active order. The buyer check in the transaction
// gives the common case a clean ErrDuplicate; concurrent creations are
// settled by the orders_one_active_per_buyer unique index every schema carries.
func (r *Repository) Create(ctx context.Context, order *entity.Order) error {
	if order == nil {
		return errors.New("nil order")
	}
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Create", trace.WithAttributes(attribute.String("order.number", order.Number)))
	defer span.End()

	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		active, err := tx.NewSelect().
			Model((*entity.Order)(nil)).
			Where("buyer_id = ?", order.BuyerID).
			Where("status = ?", entity.OrderStatusActive).
			Count(ctx)
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrDuplicate
		}
		_, err = tx.NewInsert().Model(order).Exec(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) || database.IsUniqueViolation(err) {
			span.SetStatus(codes.Error, "duplicate")
			return ErrDuplicate
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// GetByID fetches an order by primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByID", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	return r.selectOne(ctx, span, r.reader, "id = ?", id)
}

// GetByNumber fetches an order by its human readable number. Reads go to the
// writer so a status written a moment ago is visible to the next event.
func (r *Repository) GetByNumber(ctx context.Context, number string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetByNumber", trace.WithAttributes(attribute.String("order.number", number)))
	defer span.End()

	return r.selectOne(ctx, span, r.writer, "order_number = ?", number)
}

// FindByIdempotencyKey returns the order created under key.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.FindByIdempotencyKey")
	defer span.End()

	return r.selectOne(ctx, span, r.writer, "idempotency_key = ?", key)
}

// GetActiveByBuyer returns the buyer's single active order. More than one row
// is reported as ErrMultipleActive instead of picking one.
func (r *Repository) GetActiveByBuyer(ctx context.Context, buyerID int64) (*entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.GetActiveByBuyer", trace.WithAttributes(attribute.Int64("buyer.id", buyerID)))
	defer span.End()

	var orders []entity.Order
	err := r.writer.NewSelect().
		Model(&orders).
		Where("buyer_id = ?", buyerID).
		Where("status = ?", entity.OrderStatusActive).
		Limit(2).
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}

	switch len(orders) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &orders[0], nil
	default:
		span.SetStatus(codes.Error, "multiple active orders")
		return nil, ErrMultipleActive
	}
}

// ListActiveBySeller returns the seller's active orders, oldest first.
func (r *Repository) ListActiveBySeller(ctx context.Context, sellerID int64) ([]entity.Order, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListActiveBySeller", trace.WithAttributes(attribute.Int64("seller.id", sellerID)))
	defer span.End()

	orders := make([]entity.Order, 0)
	err := r.writer.NewSelect().
		Model(&orders).
		Where("seller_id = ?", sellerID).
		Where("status = ?", entity.OrderStatusActive).
		OrderExpr("created_at ASC, order_number ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return orders, nil
}

// Complete moves an active order to completed and stamps completed_at. The
// status guard lives in the UPDATE itself, so of two concurrent callers only
// one sees transitioned=true.
func (r *Repository) Complete(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Complete", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("status = ?", entity.OrderStatusCompleted).
		Set("completed_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", entity.OrderStatusActive).
		Exec(ctx)
	return transitioned(span, res, err)
}

// Cancel moves an active order to cancelled with the same guard as Complete.
func (r *Repository) Cancel(ctx context.Context, id string, at time.Time) (bool, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.Cancel", trace.WithAttributes(attribute.String("order.id", id)))
	defer span.End()

	res, err := r.writer.NewUpdate().
		Model((*entity.Order)(nil)).
		Set("status = ?", entity.OrderStatusCancelled).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", entity.OrderStatusActive).
		Exec(ctx)
	return transitioned(span, res, err)
}

// AppendMessage inserts a conversation log entry.
func (r *Repository) AppendMessage(ctx context.Context, msg *entity.Message) error {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.AppendMessage", trace.WithAttributes(
		attribute.String("order.id", msg.OrderID),
		attribute.String("message.role", string(msg.SenderRole)),
	))
	defer span.End()

	if _, err := r.writer.NewInsert().Model(msg).Exec(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return err
	}
	return nil
}

// ListMessages returns the conversation log of an order in insertion order.
func (r *Repository) ListMessages(ctx context.Context, orderID string) ([]entity.Message, error) {
	ctx, span := repoTracer.Start(ctx, "OrderRepository.ListMessages", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	messages := make([]entity.Message, 0)
	err := r.reader.NewSelect().
		Model(&messages).
		Where("order_id = ?", orderID).
		OrderExpr("sent_at ASC, id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return messages, nil
}

// CountActiveByBuyer is used by integrity checks and tests.
func (r *Repository) CountActiveByBuyer(ctx context.Context, buyerID int64) (int, error) {
	return r.writer.NewSelect().
		Model((*entity.Order)(nil)).
		Where("buyer_id = ?", buyerID).
		Where("status = ?", entity.OrderStatusActive).
		Count(ctx)
}

func (r *Repository) selectOne(ctx context.Context, span trace.Span, db *bun.DB, where string, arg any) (*entity.Order, error) {
	order := new(entity.Order)
	err := db.NewSelect().Model(order).Where(where, arg).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return order, nil
}

func transitioned(span trace.Span, res sql.Result, err error) (bool, error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "update failed")
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	span.SetAttributes(attribute.Bool("order.transitioned", n == 1))
	return n == 1, nil
}
