package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/internal/entity"
	sellerrepo "github.com/Additional-Code/relay/internal/repository/seller"
)

// Module provides the seeder to Fx.
var Module = fx.Provide(New)

// SellerFixture describes one seller and the pickup addresses it serves.
type SellerFixture struct {
	Name          string   `json:"name"`
	ParticipantID int64    `json:"participantId"`
	Addresses     []string `json:"addresses"`
}

// DefaultSellers are used for local setups when no fixture file is given.
var DefaultSellers = []SellerFixture{
	{Name: "Emerald Bakery", ParticipantID: 1001, Addresses: []string{"12 Baker St", "3 Market Sq"}},
	{Name: "Orchard Produce", ParticipantID: 1002, Addresses: []string{"77 Orchard Rd"}},
	{Name: "42 Deli", ParticipantID: 1003, Addresses: []string{"42 Station Ave"}},
}

// Seeder registers sellers and pickup locations for local/dev setups.
type Seeder struct {
	sellers *sellerrepo.Repository
	logger  *zap.Logger
}

// New constructs a Seeder backed by the seller registry.
func New(sellers *sellerrepo.Repository, logger *zap.Logger) *Seeder {
	return &Seeder{sellers: sellers, logger: logger}
}

// LoadFixtures reads seller fixtures from a JSON file.
func LoadFixtures(path string) ([]SellerFixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	var fixtures []SellerFixture
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return fixtures, nil
}

// Sellers upserts every fixture and binds its addresses. Running it twice
// leaves the registry unchanged.
func (s *Seeder) Sellers(ctx context.Context, fixtures []SellerFixture) error {
	locations := 0
	for _, f := range fixtures {
		if f.Name == "" || f.ParticipantID == 0 {
			return fmt.Errorf("fixture needs name and participantId: %+v", f)
		}
		seller := &entity.Seller{Name: f.Name, ParticipantID: f.ParticipantID}
		if err := s.sellers.Upsert(ctx, seller); err != nil {
			return fmt.Errorf("upsert seller %q: %w", f.Name, err)
		}
		for _, address := range f.Addresses {
			if err := s.sellers.AddPickupLocation(ctx, address, seller.ID); err != nil {
				return fmt.Errorf("add pickup %q: %w", address, err)
			}
			locations++
		}
	}

	if s.logger != nil {
		s.logger.Info("seeded sellers", zap.Int("sellers", len(fixtures)), zap.Int("pickup_locations", locations))
	}
	return nil
}
