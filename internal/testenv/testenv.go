// Package testenv assembles the order and relay services over a migrated
// sqlite database, a miniredis cache and a recording notifier.
package testenv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/relay/internal/cache"
	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/database"
	"github.com/Additional-Code/relay/internal/database/databasetest"
	"github.com/Additional-Code/relay/internal/delivery"
	"github.com/Additional-Code/relay/internal/delivery/deliverytest"
	"github.com/Additional-Code/relay/internal/entity"
	"github.com/Additional-Code/relay/internal/messaging"
	counterrepo "github.com/Additional-Code/relay/internal/repository/counter"
	orderrepo "github.com/Additional-Code/relay/internal/repository/order"
	sellerrepo "github.com/Additional-Code/relay/internal/repository/seller"
	"github.com/Additional-Code/relay/internal/service/events"
	ordersvc "github.com/Additional-Code/relay/internal/service/order"
	"github.com/Additional-Code/relay/internal/service/ordernumber"
	"github.com/Additional-Code/relay/internal/service/relay"
	sellersvc "github.com/Additional-Code/relay/internal/service/seller"
)

// ObserverID is the oversight identity configured by New.
const ObserverID int64 = 900

// Env is a fully wired service graph for tests.
type Env struct {
	Config     config.Config
	Conns      *database.Connections
	Redis      *miniredis.Miniredis
	Cache      cache.Store
	Orders     *orderrepo.Repository
	SellerRepo *sellerrepo.Repository
	Counters   *counterrepo.Repository
	Sellers    *sellersvc.Directory
	Numbers    *ordernumber.Generator
	Notifier   *deliverytest.Recorder
	Dispatcher *delivery.Dispatcher
	Service    *ordersvc.Service
	Router     *relay.Router
}

// Config returns the relay configuration used by New.
func Config() config.Config {
	return config.Config{
		Cache: config.Cache{Enabled: true, Driver: "redis", DefaultTTL: time.Minute},
		Relay: config.Relay{
			ObserverID:        ObserverID,
			ReplySigil:        "#",
			FallbackPrefix:    "X",
			DefaultBuyerName:  "Buyer",
			DeliveryDriver:    "log",
			DeliveryTimeout:   time.Second,
			SellerCacheTTL:    time.Minute,
			IdempotencyKeyTTL: time.Hour,
		},
	}
}

// New builds an Env. Mutators adjust the configuration before wiring.
func New(t testing.TB, mutators ...func(*config.Config)) *Env {
	t.Helper()

	cfg := Config()
	for _, m := range mutators {
		m(&cfg)
	}

	logger := zaptest.NewLogger(t)
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &Env{
		Config:   cfg,
		Conns:    databasetest.New(t),
		Redis:    mr,
		Cache:    cache.NewRedisStore(client, cfg.Cache.DefaultTTL),
		Notifier: deliverytest.NewRecorder(),
	}
	env.Orders = orderrepo.NewRepository(env.Conns)
	env.SellerRepo = sellerrepo.NewRepository(env.Conns)
	env.Counters = counterrepo.NewRepository(env.Conns)
	env.Sellers = sellersvc.NewDirectory(sellersvc.Params{
		Repository: env.SellerRepo,
		Cache:      env.Cache,
		Config:     cfg,
		Logger:     logger,
	})
	env.Numbers = ordernumber.NewGenerator(env.Counters, cfg)
	env.Dispatcher = delivery.NewDispatcher(env.Notifier, cfg, logger)

	publisher := events.NewPublisher(messaging.Noop(""), cfg, logger)
	env.Service = ordersvc.NewService(ordersvc.Params{
		Repository: env.Orders,
		Sellers:    env.Sellers,
		Numbers:    env.Numbers,
		Dispatcher: env.Dispatcher,
		Events:     publisher,
		Cache:      env.Cache,
		Config:     cfg,
		Logger:     logger,
	})
	env.Router = relay.NewRouter(relay.RouterParams{
		Classifier: relay.NewClassifier(env.Orders, env.Sellers, logger),
		Orders:     env.Orders,
		Sellers:    env.Sellers,
		Dispatcher: env.Dispatcher,
		Events:     publisher,
		Config:     cfg,
		Logger:     logger,
	})
	return env
}

// Seller registers a seller serving addresses.
func (e *Env) Seller(t testing.TB, name string, participantID int64, addresses ...string) *entity.Seller {
	t.Helper()

	ctx := context.Background()
	seller := &entity.Seller{Name: name, ParticipantID: participantID}
	require.NoError(t, e.SellerRepo.Upsert(ctx, seller))
	for _, address := range addresses {
		require.NoError(t, e.SellerRepo.AddPickupLocation(ctx, address, seller.ID))
	}
	return seller
}

// Order creates an active order for buyerID at address and returns it.
func (e *Env) Order(t testing.TB, buyerID int64, buyerName, address string) *entity.Order {
	t.Helper()

	ctx := context.Background()
	res, err := e.Service.Create(ctx, CreateInput(buyerID, buyerName, address))
	require.NoError(t, err)
	order, err := e.Orders.GetByNumber(ctx, res.OrderNumber)
	require.NoError(t, err)
	return order
}

// CreateInput is a valid creation request with a single line item.
func CreateInput(buyerID int64, buyerName, address string) ordersvc.CreateInput {
	return ordersvc.CreateInput{
		BuyerID:       buyerID,
		BuyerName:     buyerName,
		Items:         []entity.LineItem{{Name: "Sourdough", Quantity: 2, UnitPrice: decimal.RequireFromString("4.50")}},
		Total:         decimal.RequireFromString("9.00"),
		Address:       address,
		PaymentMethod: "cash",
		DeliveryType:  "pickup",
	}
}
