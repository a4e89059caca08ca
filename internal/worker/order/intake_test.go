package order

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/relay/internal/messaging"
	ordersvc "github.com/Additional-Code/relay/internal/service/order"
	"github.com/Additional-Code/relay/pkg/errorbank"
)

type fakeCreator struct {
	calls []ordersvc.CreateInput
	err   error
}

func (f *fakeCreator) Create(_ context.Context, in ordersvc.CreateInput) (*ordersvc.CreateResult, error) {
	f.calls = append(f.calls, in)
	if f.err != nil {
		return nil, f.err
	}
	return &ordersvc.CreateResult{OrderNumber: "E1"}, nil
}

const payload = `{"userId": 7, "name": "Ana", "address": "12 Baker St", "idempotencyKey": "body-key"}`

func TestIntakeIdempotencyKey(t *testing.T) {
	cases := []struct {
		name string
		msg  messaging.Message
		want string
	}{
		{
			name: "message key wins",
			msg:  messaging.Message{Key: []byte("msg-key"), Headers: map[string]string{IdempotencyHeader: "hdr-key"}},
			want: "msg-key",
		},
		{
			name: "header fallback",
			msg:  messaging.Message{Headers: map[string]string{IdempotencyHeader: " hdr-key "}},
			want: "hdr-key",
		},
		{
			name: "body key kept",
			msg:  messaging.Message{},
			want: "body-key",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			creator := &fakeCreator{}
			tc.msg.Value = []byte(payload)

			err := intakeHandler(creator, zaptest.NewLogger(t))(context.Background(), tc.msg)
			require.NoError(t, err)
			require.Len(t, creator.calls, 1)
			assert.Equal(t, tc.want, creator.calls[0].IdempotencyKey)
			assert.Equal(t, int64(7), creator.calls[0].BuyerID)
		})
	}
}

func TestIntakeAcknowledgesRejections(t *testing.T) {
	for _, rejection := range []error{
		errorbank.BadRequest("missing required fields: items"),
		errorbank.NotFound("no seller serves this address"),
		errorbank.Conflict("buyer already has an active order"),
	} {
		creator := &fakeCreator{err: rejection}
		err := intakeHandler(creator, zaptest.NewLogger(t))(context.Background(), messaging.Message{Value: []byte(payload)})
		assert.NoError(t, err)
	}
}

func TestIntakeRetriesInternalFailures(t *testing.T) {
	cause := errors.New("connection reset")
	creator := &fakeCreator{err: errorbank.Internal("failed to create order", errorbank.WithCause(cause))}

	err := intakeHandler(creator, zaptest.NewLogger(t))(context.Background(), messaging.Message{Value: []byte(payload)})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestIntakeDiscardsUndecodable(t *testing.T) {
	creator := &fakeCreator{}

	err := intakeHandler(creator, zaptest.NewLogger(t))(context.Background(), messaging.Message{Value: []byte("{not json")})
	assert.NoError(t, err)
	assert.Empty(t, creator.calls)
}
