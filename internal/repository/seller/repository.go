package seller

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

var repoTracer = otel.Tracer("github.com/Additional-Code/relay/repository/seller")

// ErrNotFound is returned when no seller or pickup location matches.
var ErrNotFound = errors.New("seller not found")

// Module provides the seller registry repository to Fx.
var Module = fx.Provide(NewRepository)

// Repository reads the seller registry and pickup locations.
type Repository struct {
	writer *bun.DB
	reader *bun.DB
}

// NewRepository wires a repository backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer, reader: conns.Reader}
}

// GetByID fetches a seller by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (*entity.Seller, error) {
	ctx, span := repoTracer.Start(ctx, "SellerRepository.GetByID", trace.WithAttributes(attribute.Int64("seller.id", id)))
	defer span.End()

	seller := new(entity.Seller)
	err := r.reader.NewSelect().Model(seller).Where("id = ?", id).Scan(ctx)
	if err := translate(span, err); err != nil {
		return nil, err
	}
	return seller, nil
}

// GetByParticipant fetches the seller registered under a conversational identity.
func (r *Repository) GetByParticipant(ctx context.Context, participantID int64) (*entity.Seller, error) {
	ctx, span := repoTracer.Start(ctx, "SellerRepository.GetByParticipant", trace.WithAttributes(attribute.Int64("participant.id", participantID)))
	defer span.End()

	seller := new(entity.Seller)
	err := r.reader.NewSelect().Model(seller).Where("participant_id = ?", participantID).Scan(ctx)
	if err := translate(span, err); err != nil {
		return nil, err
	}
	return seller, nil
}

// ResolvePickup returns the pickup location at address together with the
// seller serving it. A location without a seller counts as not found.
func (r *Repository) ResolvePickup(ctx context.Context, address string) (*entity.PickupLocation, *entity.Seller, error) {
	ctx, span := repoTracer.Start(ctx, "SellerRepository.ResolvePickup")
	defer span.End()

	location := new(entity.PickupLocation)
	if err := r.reader.NewSelect().Model(location).Where("address = ?", address).Scan(ctx); err != nil {
		return nil, nil, translate(span, err)
	}
	if location.SellerID == nil {
		span.SetStatus(codes.Error, "location has no seller")
		return nil, nil, ErrNotFound
	}

	seller := new(entity.Seller)
	if err := r.reader.NewSelect().Model(seller).Where("id = ?", *location.SellerID).Scan(ctx); err != nil {
		return nil, nil, translate(span, err)
	}
	return location, seller, nil
}

// Upsert registers a seller, keyed by participant id. Used by the seeder.
func (r *Repository) Upsert(ctx context.Context, seller *entity.Seller) error {
	existing := new(entity.Seller)
	err := r.writer.NewSelect().Model(existing).Where("participant_id = ?", seller.ParticipantID).Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = r.writer.NewInsert().Model(seller).Exec(ctx)
		return err
	case err != nil:
		return err
	}
	seller.ID = existing.ID
	_, err = r.writer.NewUpdate().Model(seller).Column("name").WherePK().Exec(ctx)
	return err
}

// AddPickupLocation binds address to sellerID, ignoring duplicates.
func (r *Repository) AddPickupLocation(ctx context.Context, address string, sellerID int64) error {
	location := &entity.PickupLocation{Address: address, SellerID: &sellerID}
	_, err := r.writer.NewInsert().Model(location).Ignore().Exec(ctx)
	return err
}

func translate(span trace.Span, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		span.SetStatus(codes.Error, "not found")
		return ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return err
	}
	return nil
}
