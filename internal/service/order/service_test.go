package order_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/Additional-Code/relay/internal/delivery"
	"github.com/Additional-Code/relay/internal/entity"
	ordersvc "github.com/Additional-Code/relay/internal/service/order"
	"github.com/Additional-Code/relay/internal/testenv"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

const (
	sellerParticipant int64 = 500
	otherParticipant  int64 = 600
	address                 = "12 Baker St"
)

func TestCreateNumbersPerSellerPrefix(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	seller := env.Seller(t, "Ecostore", sellerParticipant, address)

	first, err := env.Service.Create(ctx, testenv.CreateInput(1, "Ana", address))
	require.NoError(t, err)
	second, err := env.Service.Create(ctx, testenv.CreateInput(2, "Ben", address))
	require.NoError(t, err)

	assert.Equal(t, "E1", first.OrderNumber)
	assert.Equal(t, "E2", second.OrderNumber)
	assert.False(t, first.Replayed)

	order, err := env.Orders.GetByNumber(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, seller.ID, order.SellerID)
	assert.Equal(t, entity.OrderStatusActive, order.Status)
	assert.Equal(t, "Ana", order.Contact.Name)
	require.NotNil(t, order.PickupLocationID)

	toSeller := env.Notifier.To(sellerParticipant)
	require.Len(t, toSeller, 2)
	assert.Equal(t, delivery.KindSellerNewOrder, toSeller[0].Kind)
	assert.Contains(t, toSeller[0].Text, "NEW ORDER E1")
	assert.Contains(t, toSeller[0].Text, "Payment: Cash")
	assert.Contains(t, toSeller[0].Text, "#E1 <text>")
	require.NotNil(t, toSeller[0].Action)
	assert.Equal(t, delivery.ActionComplete, toSeller[0].Action.Kind)
	assert.Equal(t, "E1", toSeller[0].Action.OrderNumber)

	toObserver := env.Notifier.To(testenv.ObserverID)
	require.Len(t, toObserver, 2)
	assert.Contains(t, toObserver[0].Text, "Ecostore")
}

func TestCreateIsIdempotent(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.Seller(t, "Ecostore", sellerParticipant, address)

	in := testenv.CreateInput(1, "Ana", address)
	in.IdempotencyKey = "checkout-77"

	first, err := env.Service.Create(ctx, in)
	require.NoError(t, err)
	second, err := env.Service.Create(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	assert.True(t, second.Replayed)

	// Without the cache entry the key still resolves through the store.
	env.Redis.FlushAll()
	third, err := env.Service.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.OrderNumber, third.OrderNumber)

	current, err := env.Counters.Current(ctx, "E")
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
	assert.Len(t, env.Notifier.To(sellerParticipant), 1)
}

type holdKey struct{}

// holdPickupLookup parks the first marked query against pickup_locations
// until release is closed.
type holdPickupLookup struct {
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (h *holdPickupLookup) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	if ctx.Value(holdKey{}) != nil && strings.Contains(event.Query, "pickup_locations") {
		h.once.Do(func() {
			close(h.reached)
			<-h.release
		})
	}
	return ctx
}

func (h *holdPickupLookup) AfterQuery(context.Context, *bun.QueryEvent) {}

func TestCreateRetryOverlappingOriginalReplays(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.Seller(t, "Ecostore", sellerParticipant, address)

	hook := &holdPickupLookup{reached: make(chan struct{}), release: make(chan struct{})}
	env.Conns.Writer.AddQueryHook(hook)
	if env.Conns.Reader != env.Conns.Writer {
		env.Conns.Reader.AddQueryHook(hook)
	}

	in := testenv.CreateInput(1, "Ana", address)
	in.IdempotencyKey = "checkout-timeout"

	type outcome struct {
		res *ordersvc.CreateResult
		err error
	}
	retried := make(chan outcome, 1)
	go func() {
		res, err := env.Service.Create(context.WithValue(ctx, holdKey{}, true), in)
		retried <- outcome{res: res, err: err}
	}()

	select {
	case <-hook.reached:
	case <-time.After(5 * time.Second):
		t.Fatal("retry never reached the pickup lookup")
	}

	// The retry has already missed the idempotency lookup; the original commits now.
	original, err := env.Service.Create(ctx, in)
	require.NoError(t, err)
	close(hook.release)

	var retry outcome
	select {
	case retry = <-retried:
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not finish")
	}
	require.NoError(t, retry.err)
	assert.Equal(t, original.OrderNumber, retry.res.OrderNumber)
	assert.True(t, retry.res.Replayed)

	current, err := env.Counters.Current(ctx, "E")
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
	assert.Len(t, env.Notifier.To(sellerParticipant), 1)
}

func TestCreateUnknownAddress(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.Seller(t, "Ecostore", sellerParticipant, address)

	_, err := env.Service.Create(ctx, testenv.CreateInput(1, "Ana", "1 Nowhere Ln"))
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
	assert.Equal(t, "seller not found for this address", errorbank.From(err).Message())

	current, err := env.Counters.Current(ctx, "E")
	require.NoError(t, err)
	assert.Zero(t, current)
	assert.Empty(t, env.Notifier.Sent())
}

func TestCreateValidation(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()

	_, err := env.Service.Create(ctx, ordersvc.CreateInput{Address: address})
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
	msg := errorbank.From(err).Message()
	assert.Contains(t, msg, "missing required fields")
	assert.Contains(t, msg, "userId")
	assert.Contains(t, msg, "items")
	assert.Contains(t, msg, "total")

	in := testenv.CreateInput(1, "Ana", address)
	in.Items[0].Quantity = 0
	_, err = env.Service.Create(ctx, in)
	require.Error(t, err)
	assert.Contains(t, errorbank.From(err).Message(), "items[0].quantity")
}

func TestCreateDefaultsBuyerName(t *testing.T) {
	env := testenv.New(t)
	env.Seller(t, "Ecostore", sellerParticipant, address)

	order := env.Order(t, 1, "  ", address)
	assert.Equal(t, "Buyer", order.Contact.Name)
}

func TestCreateSecondActiveOrderConflicts(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.Seller(t, "Ecostore", sellerParticipant, address)

	env.Order(t, 1, "Ana", address)
	_, err := env.Service.Create(ctx, testenv.CreateInput(1, "Ana", address))
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindConflict))

	count, err := env.Orders.CountActiveByBuyer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateSucceedsWhenSellerUnreachable(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.Seller(t, "Ecostore", sellerParticipant, address)
	env.Notifier.Unreachable(sellerParticipant)

	res, err := env.Service.Create(ctx, testenv.CreateInput(1, "Ana", address))
	require.NoError(t, err)
	assert.Equal(t, "E1", res.OrderNumber)
	assert.Len(t, env.Notifier.To(testenv.ObserverID), 1)
}

func TestCompleteThenRetry(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.Seller(t, "Ecostore", sellerParticipant, address)
	order := env.Order(t, 1, "Ana", address)
	env.Notifier.Reset()

	in := ordersvc.CompleteInput{ActorID: sellerParticipant, OrderNumber: "e1", MessageRef: "msg-1"}
	completed, err := env.Service.Complete(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCompleted, completed.Status)

	toBuyer := env.Notifier.To(order.BuyerID)
	require.Len(t, toBuyer, 1)
	assert.Equal(t, delivery.KindBuyerOrderCompleted, toBuyer[0].Kind)
	assert.Len(t, env.Notifier.To(testenv.ObserverID), 1)
	require.Len(t, env.Notifier.Retracted(), 1)
	assert.Equal(t, "msg-1", env.Notifier.Retracted()[0].Ref.MessageRef)

	stored, err := env.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CompletedAt)
	completedAt := *stored.CompletedAt

	sent := len(env.Notifier.Sent())
	_, err = env.Service.Complete(ctx, in)
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindConflict))
	assert.Len(t, env.Notifier.Sent(), sent)
	assert.Len(t, env.Notifier.Retracted(), 2)

	stored, err = env.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.CompletedAt.Equal(completedAt))
}

func TestCompleteConcurrentlyOnlyOneWins(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.Seller(t, "Ecostore", sellerParticipant, address)
	env.Order(t, 1, "Ana", address)

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Service.Complete(ctx, ordersvc.CompleteInput{ActorID: sellerParticipant, OrderNumber: "E1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errorbank.IsKind(err, errorbank.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)
	assert.Len(t, env.Notifier.To(1), 1)
}

func TestCompleteAuthorization(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.Seller(t, "Ecostore", sellerParticipant, address)
	env.Seller(t, "Orchard", otherParticipant, "77 Orchard Rd")
	env.Order(t, 1, "Ana", address)

	_, err := env.Service.Complete(ctx, ordersvc.CompleteInput{ActorID: 1, OrderNumber: "E1"})
	assert.True(t, errorbank.IsKind(err, errorbank.KindForbidden), "buyer is not a seller")

	_, err = env.Service.Complete(ctx, ordersvc.CompleteInput{ActorID: otherParticipant, OrderNumber: "E1"})
	assert.True(t, errorbank.IsKind(err, errorbank.KindForbidden), "foreign seller on active order")

	_, err = env.Service.Complete(ctx, ordersvc.CompleteInput{ActorID: sellerParticipant, OrderNumber: "E1"})
	require.NoError(t, err)

	_, err = env.Service.Complete(ctx, ordersvc.CompleteInput{ActorID: otherParticipant, OrderNumber: "E1"})
	assert.True(t, errorbank.IsKind(err, errorbank.KindForbidden), "foreign seller on completed order")

	_, err = env.Service.Complete(ctx, ordersvc.CompleteInput{ActorID: sellerParticipant, OrderNumber: "E404"})
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}

func TestCancel(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	seller := env.Seller(t, "Ecostore", sellerParticipant, address)
	other := env.Seller(t, "Orchard", otherParticipant, "77 Orchard Rd")
	order := env.Order(t, 1, "Ana", address)
	env.Notifier.Reset()

	err := env.Service.Cancel(ctx, ordersvc.CancelInput{OrderID: order.ID, SellerID: other.ID})
	assert.True(t, errorbank.IsKind(err, errorbank.KindForbidden))

	require.NoError(t, env.Service.Cancel(ctx, ordersvc.CancelInput{OrderID: order.ID, SellerID: seller.ID}))
	toSeller := env.Notifier.To(sellerParticipant)
	require.Len(t, toSeller, 1)
	assert.Equal(t, delivery.KindSellerOrderCancelled, toSeller[0].Kind)
	assert.Empty(t, env.Notifier.To(order.BuyerID))

	stored, err := env.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCancelled, stored.Status)

	require.NoError(t, env.Service.Cancel(ctx, ordersvc.CancelInput{OrderID: order.ID, SellerID: seller.ID}))
	assert.Len(t, env.Notifier.To(sellerParticipant), 1)

	_, err = env.Service.Complete(ctx, ordersvc.CompleteInput{ActorID: sellerParticipant, OrderNumber: order.Number})
	assert.True(t, errorbank.IsKind(err, errorbank.KindConflict))
}

func TestCancelRejections(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	seller := env.Seller(t, "Ecostore", sellerParticipant, address)
	order := env.Order(t, 1, "Ana", address)

	err := env.Service.Cancel(ctx, ordersvc.CancelInput{OrderID: order.ID})
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))

	err = env.Service.Cancel(ctx, ordersvc.CancelInput{OrderID: "missing", SellerID: seller.ID})
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))

	err = env.Service.Cancel(ctx, ordersvc.CancelInput{OrderID: order.ID, SellerID: 9999})
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))

	_, err = env.Service.Complete(ctx, ordersvc.CompleteInput{ActorID: sellerParticipant, OrderNumber: order.Number})
	require.NoError(t, err)
	err = env.Service.Cancel(ctx, ordersvc.CancelInput{OrderID: order.ID, SellerID: seller.ID})
	assert.True(t, errorbank.IsKind(err, errorbank.KindConflict))
}

func TestMessagesByNumber(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.Seller(t, "Ecostore", sellerParticipant, address)
	env.Order(t, 1, "Ana", address)

	messages, err := env.Service.Messages(ctx, "E1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	_, err = env.Service.Messages(ctx, "E2")
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))
}
