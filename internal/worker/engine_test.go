package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/messaging"
)

func newEngine(t *testing.T, regs ...HandlerRegistration) *Engine {
	t.Helper()
	return NewEngine(Params{
		Client:        messaging.Noop("orders.intake"),
		Logger:        zaptest.NewLogger(t),
		Config:        config.Config{},
		Registrations: regs,
	})
}

func TestDispatchRoutesByTopic(t *testing.T) {
	var got messaging.Message
	engine := newEngine(t, HandlerRegistration{
		Topic: "orders.intake",
		Handler: func(ctx context.Context, msg messaging.Message) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			got = msg
			return nil
		},
	})

	msg := messaging.Message{Topic: "orders.intake", Value: []byte("{}")}
	require.NoError(t, engine.dispatch(context.Background(), 0, msg))
	assert.Equal(t, msg, got)

	assert.NoError(t, engine.dispatch(context.Background(), 0, messaging.Message{Topic: "unknown"}))
}

func TestDispatchReturnsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	engine := newEngine(t, HandlerRegistration{
		Topic:   "orders.intake",
		Handler: func(context.Context, messaging.Message) error { return boom },
	})

	err := engine.dispatch(context.Background(), 1, messaging.Message{Topic: "orders.intake"})
	assert.ErrorIs(t, err, boom)
}

func TestDispatchRecoversPanics(t *testing.T) {
	engine := newEngine(t, HandlerRegistration{
		Topic:   "orders.intake",
		Handler: func(context.Context, messaging.Message) error { panic("nil seller") },
	})

	err := engine.dispatch(context.Background(), 0, messaging.Message{Topic: "orders.intake"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil seller")
}

func TestNewEngineSkipsIncompleteRegistrations(t *testing.T) {
	engine := newEngine(t,
		HandlerRegistration{Topic: "", Handler: func(context.Context, messaging.Message) error { return nil }},
		HandlerRegistration{Topic: "orders.intake"},
	)
	assert.Empty(t, engine.registrations)
}

func TestStartDisabledIsNoop(t *testing.T) {
	engine := newEngine(t, HandlerRegistration{
		Topic:   "orders.intake",
		Handler: func(context.Context, messaging.Message) error { return nil },
	})

	require.NoError(t, engine.start(context.Background()))
	assert.Nil(t, engine.cancel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, engine.stop(ctx))
}
