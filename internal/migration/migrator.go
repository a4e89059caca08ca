package migration

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/relay/db/migrations"
	"github.com/Additional-Code/relay/internal/config"
	"github.com/Additional-Code/relay/internal/database"
)

const migrationsRoot = "sql"

// Module provides the migrator to Fx.
var Module = fx.Provide(New)

// AutoMigrate applies pending migrations on start when DB_AUTO_MIGRATE is set.
func AutoMigrate(lc fx.Lifecycle, cfg config.Config, m *Migrator) {
	if !cfg.Database.AutoMigrate {
		return
	}
	lc.Append(fx.Hook{OnStart: m.Up})
}

// goose keeps dialect and base FS in package globals.
var gooseMu sync.Mutex

// Migrator wraps goose operations.
type Migrator struct {
	db      *bun.DB
	dialect string
	dir     string
	logger  *zap.Logger
}

// New constructs a goose-backed migrator.
func New(cfg config.Config, conns *database.Connections, logger *zap.Logger) (*Migrator, error) {
	return NewForDriver(cfg.Database.Driver, conns.Writer, logger)
}

// NewForDriver builds a migrator for an already opened database.
func NewForDriver(driver string, db *bun.DB, logger *zap.Logger) (*Migrator, error) {
	dialect, err := gooseDialect(driver)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Migrator{
		db:      db,
		dialect: dialect,
		dir:     path.Join(migrationsRoot, dialectDir(dialect)),
		logger:  logger,
	}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.withGoose(func() error {
		if err := goose.UpContext(ctx, m.db.DB, m.dir); err != nil {
			if isNoMigrationErr(err) {
				m.logger.Info("no migrations to apply")

				return nil
			}
			return err
		}

		m.logger.Info("migrations applied", zap.String("dir", m.dir))

		return nil
	})
}

// Down rolls back migrations. Steps <=0 defaults to 1; all=true rolls everything back.
func (m *Migrator) Down(ctx context.Context, steps int, all bool) error {
	return m.withGoose(func() error {
		if all {
			if err := goose.DownToContext(ctx, m.db.DB, m.dir, 0); err != nil {
				if isNoMigrationErr(err) {
					m.logger.Info("no migrations to rollback")

					return nil
				}
				return err
			}
			m.logger.Info("migrations rolled back", zap.String("mode", "all"))

			return nil
		}

		if steps <= 0 {
			steps = 1
		}

		for i := 0; i < steps; i++ {
			if err := goose.DownContext(ctx, m.db.DB, m.dir); err != nil {
				if isNoMigrationErr(err) {
					m.logger.Info("no migrations to rollback")

					return nil
				}
				return err
			}
		}

		m.logger.Info("migrations rolled back", zap.Int("steps", steps))

		return nil
	})
}

func (m *Migrator) withGoose(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(m.dialect); err != nil {
		return err
	}
	return fn()
}

func gooseDialect(driver string) (string, error) {
	switch driver {
	case "postgres", "pg":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported goose dialect for driver %s", driver)
	}
}

func dialectDir(dialect string) string {
	if dialect == "sqlite3" {
		return "sqlite"
	}
	return dialect
}

func isNoMigrationErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, goose.ErrNoNextVersion) || errors.Is(err, goose.ErrNoMigrationFiles) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "no migrations")
}
