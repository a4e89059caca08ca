package seeder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/relay/internal/database/databasetest"
	sellerrepo "github.com/Additional-Code/relay/internal/repository/seller"
)

func TestSellersIsRepeatable(t *testing.T) {
	ctx := context.Background()
	repo := sellerrepo.NewRepository(databasetest.New(t))
	s := New(repo, zaptest.NewLogger(t))

	require.NoError(t, s.Sellers(ctx, DefaultSellers))
	require.NoError(t, s.Sellers(ctx, DefaultSellers))

	for _, f := range DefaultSellers {
		seller, err := repo.GetByParticipant(ctx, f.ParticipantID)
		require.NoError(t, err)
		assert.Equal(t, f.Name, seller.Name)

		for _, address := range f.Addresses {
			_, owner, err := repo.ResolvePickup(ctx, address)
			require.NoError(t, err)
			assert.Equal(t, seller.ID, owner.ID)
		}
	}
}

func TestSellersRenames(t *testing.T) {
	ctx := context.Background()
	repo := sellerrepo.NewRepository(databasetest.New(t))
	s := New(repo, zaptest.NewLogger(t))

	require.NoError(t, s.Sellers(ctx, []SellerFixture{{Name: "Old Name", ParticipantID: 7}}))
	require.NoError(t, s.Sellers(ctx, []SellerFixture{{Name: "New Name", ParticipantID: 7}}))

	seller, err := repo.GetByParticipant(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "New Name", seller.Name)
}

func TestSellersRejectsIncompleteFixture(t *testing.T) {
	repo := sellerrepo.NewRepository(databasetest.New(t))
	err := New(repo, nil).Sellers(context.Background(), []SellerFixture{{Name: "Nameless"}})
	assert.Error(t, err)
}

func TestLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sellers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"name": "Harbor Fish", "participantId": 2001, "addresses": ["1 Pier Rd"]}
	]`), 0o600))

	fixtures, err := LoadFixtures(path)
	require.NoError(t, err)
	assert.Equal(t, []SellerFixture{{Name: "Harbor Fish", ParticipantID: 2001, Addresses: []string{"1 Pier Rd"}}}, fixtures)

	_, err = LoadFixtures(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
