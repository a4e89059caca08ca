package grpc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/database/databasetest"
)

type flakyDB struct {
	mu   sync.Mutex
	down bool
}

func (f *flakyDB) set(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyDB) PingContext(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	return nil
}

func status(t *testing.T, hs *health.Server) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.NoError(t, err)
	return resp.GetStatus()
}

func TestDBHealthFollowsDatabase(t *testing.T) {
	hs := health.NewServer()
	db := &flakyDB{}
	dh := &dbHealth{hs: hs, db: db, logger: zaptest.NewLogger(t)}

	dh.check(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, hs))

	db.set(true)
	dh.check(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, hs))

	db.set(false)
	dh.check(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, hs))
}

func TestDBHealthWatchRechecks(t *testing.T) {
	hs := health.NewServer()
	db := &flakyDB{}
	dh := &dbHealth{hs: hs, db: db, logger: zaptest.NewLogger(t)}
	dh.check(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		dh.watch(ctx, 5*time.Millisecond)
	}()
	defer func() {
		cancel()
		<-done
	}()

	db.set(true)
	assert.Eventually(t, func() bool {
		return status(t, hs) == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 5*time.Millisecond)

	db.set(false)
	assert.Eventually(t, func() bool {
		return status(t, hs) == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)
}

func TestRegisterServesAfterStart(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	hs := health.NewServer()
	var cfg config.Config
	cfg.GRPC.HealthInterval = time.Hour

	Register(lc, cfg, grpc.NewServer(), hs, databasetest.New(t), zaptest.NewLogger(t))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, hs))

	lc.RequireStart()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, hs))
	lc.RequireStop()
}
