package counter

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"

	"github.com/Additional-Code/relay/internal/database"
	"github.com/Additional-Code/relay/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/relay/repository/counter")

// Module provides the counter repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository owns the per-prefix sequence rows.
type Repository struct {
	writer *bun.DB
}

// NewRepository wires the repository on the writer connection; counters are
// never read from a replica.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer}
}

// Increment initialises the row for prefix if missing, bumps it and returns
// the new value, all inside one transaction. The UPDATE takes the row lock so
// concurrent callers on the same prefix queue behind each other.
func (r *Repository) Increment(ctx context.Context, prefix string) (int64, error) {
	ctx, span := repoTracer.Start(ctx, "CounterRepository.Increment", trace.WithAttributes(attribute.String("counter.prefix", prefix)))
	defer span.End()

	var value int64
	err := r.writer.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		seed := &entity.OrderCounter{Prefix: prefix, LastValue: 0}
		if _, err := tx.NewInsert().Model(seed).Ignore().Exec(ctx); err != nil {
			return err
		}

		if _, err := tx.NewUpdate().
			Model((*entity.OrderCounter)(nil)).
			Set("last_value = last_value + 1").
			Where("prefix = ?", prefix).
			Exec(ctx); err != nil {
			return err
		}

		return tx.NewSelect().
			Model((*entity.OrderCounter)(nil)).
			Column("last_value").
			Where("prefix = ?", prefix).
			Scan(ctx, &value)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "increment failed")
		return 0, err
	}

	span.SetAttributes(attribute.Int64("counter.value", value))
	return value, nil
}

// Current returns the last issued value for prefix, zero when none was issued.
func (r *Repository) Current(ctx context.Context, prefix string) (int64, error) {
	var value int64
	err := r.writer.NewSelect().
		Model((*entity.OrderCounter)(nil)).
		Column("last_value").
		Where("prefix = ?", prefix).
		Scan(ctx, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return value, err
}
