package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "#", cfg.Relay.ReplySigil)
	assert.Equal(t, "X", cfg.Relay.FallbackPrefix)
	assert.Equal(t, "log", cfg.Relay.DeliveryDriver)
	assert.False(t, cfg.Relay.HasObserver())
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
	assert.Equal(t, "relay.orders.intake", cfg.Messaging.Kafka.IntakeTopic)
	assert.Equal(t, 1.0, cfg.Observability.TraceSample)
	assert.Equal(t, "/metrics", cfg.Observability.PrometheusPath)
	assert.Equal(t, 10*time.Second, cfg.GRPC.HealthInterval)
	assert.Equal(t, 3, cfg.Messaging.Workers.MaxAttempts)
}

func TestNewRelayOverrides(t *testing.T) {
	t.Setenv("RELAY_OBSERVER_ID", "777")
	t.Setenv("RELAY_REPLY_SIGIL", " @ ")
	t.Setenv("RELAY_FALLBACK_PREFIX", "q")
	t.Setenv("RELAY_DELIVERY_TIMEOUT", "250ms")
	t.Setenv("RELAY_DELIVERY_DRIVER", "REDIS")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, int64(777), cfg.Relay.ObserverID)
	assert.True(t, cfg.Relay.HasObserver())
	assert.Equal(t, "@", cfg.Relay.ReplySigil)
	assert.Equal(t, "Q", cfg.Relay.FallbackPrefix)
	assert.Equal(t, "redis", cfg.Relay.DeliveryDriver)
	assert.Equal(t, 250*time.Millisecond, cfg.Relay.DeliveryTimeout)
}

func TestNewRejectsInvalidRelaySettings(t *testing.T) {
	cases := map[string]map[string]string{
		"multi-character sigil":    {"RELAY_REPLY_SIGIL": "##"},
		"multi-character fallback": {"RELAY_FALLBACK_PREFIX": "XY"},
		"unknown delivery driver":  {"RELAY_DELIVERY_DRIVER": "carrier-pigeon"},
		"sample ratio above one":   {"OBS_TRACE_SAMPLE_RATIO": "1.5"},
		"redis delivery sans cache": {
			"RELAY_DELIVERY_DRIVER": "redis",
			"CACHE_ENABLED":         "false",
		},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := New()
			assert.Error(t, err)
		})
	}
}

func TestNewMessagingDisabledUsesNoop(t *testing.T) {
	t.Setenv("MESSAGING_ENABLED", "false")
	t.Setenv("MESSAGING_DRIVER", "kafka")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "noop", cfg.Messaging.Driver)
}
