package seller

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/cache"
	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/entity"
	repo "github.com/Additional-Code/relay/internal/repository/seller"
)

// ErrNotFound is returned when the registry has no matching seller.
var ErrNotFound = repo.ErrNotFound

// Module provides the seller directory to Fx.
var Module = fx.Provide(NewDirectory)

// Directory answers seller registry questions, fronted by the cache. The
// registry is maintained outside this service, so entries simply expire.
type Directory struct {
	repo   *repo.Repository
	cache  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

// Params defines dependencies for constructing Directory.
type Params struct {
	fx.In

	Repository *repo.Repository
	Cache      cache.Store
	Config     config.Config
	Logger     *zap.Logger
}

// NewDirectory wires a Directory.
func NewDirectory(p Params) *Directory {
	return &Directory{
		repo:   p.Repository,
		cache:  p.Cache,
		ttl:    p.Config.Relay.SellerCacheTTL,
		logger: p.Logger,
	}
}

// ByParticipant returns the seller registered for a conversational identity.
func (d *Directory) ByParticipant(ctx context.Context, participantID int64) (*entity.Seller, error) {
	key := cache.Key("seller", "participant", strconv.FormatInt(participantID, 10))
	return d.cached(ctx, key, func() (*entity.Seller, error) {
		return d.repo.GetByParticipant(ctx, participantID)
	})
}

// ByID returns the seller with the given registry id.
func (d *Directory) ByID(ctx context.Context, id int64) (*entity.Seller, error) {
	key := cache.Key("seller", "id", strconv.FormatInt(id, 10))
	return d.cached(ctx, key, func() (*entity.Seller, error) {
		return d.repo.GetByID(ctx, id)
	})
}

// ResolvePickup returns the pickup location and its seller for an address.
func (d *Directory) ResolvePickup(ctx context.Context, address string) (*entity.PickupLocation, *entity.Seller, error) {
	return d.repo.ResolvePickup(ctx, address)
}

func (d *Directory) cached(ctx context.Context, key string, load func() (*entity.Seller, error)) (*entity.Seller, error) {
	var seller entity.Seller
	err := cache.GetJSON(ctx, d.cache, key, &seller)
	if err == nil {
		return &seller, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		d.logger.Warn("seller cache read failed", zap.String("key", key), zap.Error(err))
	}

	loaded, err := load()
	if err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, d.cache, key, loaded, d.ttl); err != nil {
		d.logger.Warn("seller cache write failed", zap.String("key", key), zap.Error(err))
	}
	return loaded, nil
}
