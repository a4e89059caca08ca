// Package databasetest opens migrated in-memory sqlite databases for tests.
package databasetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/database"
	"github.com/Additional-Code/relay/internal/migration"
)

var seq atomic.Int64

// New returns connections to a fresh, fully migrated sqlite database that is
// closed when the test ends.
func New(t testing.TB) *database.Connections {
	t.Helper()

	dsn := fmt.Sprintf("file:relaytest%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", seq.Add(1))
	conns, err := database.Open(config.Database{Driver: "sqlite", WriterDSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	mig, err := migration.NewForDriver("sqlite", conns.Writer, nil)
	require.NoError(t, err)
	require.NoError(t, mig.Up(context.Background()))

	return conns
}
