package delivery_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/relay/internal/delivery"
)

func newRedis(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisNotifierWithoutGatewayFails(t *testing.T) {
	client := newRedis(t)
	n := delivery.NewRedisNotifier(client, "relay:outbound")

	err := n.Send(context.Background(), delivery.Notification{Recipient: 1, Kind: delivery.KindObserverCopy, Text: "hi"})
	assert.ErrorIs(t, err, delivery.ErrDelivery)
}

func TestRedisNotifierPublishesEnvelopes(t *testing.T) {
	client := newRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, "relay:outbound")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	ch := sub.Channel()

	n := delivery.NewRedisNotifier(client, "relay:outbound")
	require.NoError(t, n.Send(ctx, delivery.Notification{
		Recipient:   7,
		Kind:        delivery.KindSellerNewOrder,
		OrderNumber: "E1",
		Text:        "new order",
		Action:      &delivery.Action{Kind: delivery.ActionComplete, Label: "Complete", OrderNumber: "E1"},
	}))
	require.NoError(t, n.RetractAction(ctx, 7, delivery.ActionRef{Kind: delivery.ActionComplete, OrderNumber: "E1", MessageRef: "m-1"}))

	var envelopes []delivery.Envelope
	for len(envelopes) < 2 {
		select {
		case msg := <-ch:
			var env delivery.Envelope
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
			envelopes = append(envelopes, env)
		case <-time.After(2 * time.Second):
			t.Fatal("envelope not received")
		}
	}

	assert.Equal(t, delivery.OpSend, envelopes[0].Op)
	require.NotNil(t, envelopes[0].Notification)
	assert.Equal(t, int64(7), envelopes[0].Notification.Recipient)
	require.NotNil(t, envelopes[0].Notification.Action)
	assert.Equal(t, "E1", envelopes[0].Notification.Action.OrderNumber)

	assert.Equal(t, delivery.OpRetract, envelopes[1].Op)
	assert.Equal(t, int64(7), envelopes[1].Recipient)
	require.NotNil(t, envelopes[1].Retract)
	assert.Equal(t, "m-1", envelopes[1].Retract.MessageRef)
}
