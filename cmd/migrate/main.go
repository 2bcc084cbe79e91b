// Command migrate применяет встроенные миграции схемы marketplace: каталог, заказы,
// outbox, timeline и попытки оформления.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

const envPostgresDSN = "MARKETPLACE_POSTGRES_DSN"

// Направления миграции.
const (
	directionUp     = "up"
	directionDown   = "down"
	directionStatus = "status"
	// directionCheck завершается ошибкой, если есть неприменённые миграции: gate перед выкладкой.
	directionCheck = "check"
)

// errPendingMigrations: схема отстаёт от бинарника.
var errPendingMigrations = errors.New("schema has pending migrations")

type config struct {
	direction string
	steps     int
	dsn       string
	timeout   time.Duration
}

// migrator: операции postgres.Store, нужные команде.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationStatus, error)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:], os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, cfg.dsn)
	if err != nil {
		log.WithError(err).Fatal("open postgres store")
	}
	defer store.Close()

	if err := run(ctx, cfg, store, os.Stdout); err != nil {
		store.Close()
		log.WithError(err).WithField("direction", cfg.direction).Fatal("migrate failed")
	}
}

func readConfig(args []string, getenv func(string) string) (config, error) {
	cfg := config{}
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.direction, "direction", directionUp, "migration direction: up|down|status|check")
	fs.IntVar(&cfg.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&cfg.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	fs.DurationVar(&cfg.timeout, "timeout", 30*time.Second, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	cfg.direction = strings.ToLower(strings.TrimSpace(cfg.direction))
	cfg.dsn = strings.TrimSpace(cfg.dsn)
	if cfg.dsn == "" {
		cfg.dsn = strings.TrimSpace(getenv(envPostgresDSN))
	}

	switch cfg.direction {
	case directionUp, directionStatus, directionCheck:
	case directionDown:
		if cfg.steps <= 0 {
			cfg.steps = 1
		}
	default:
		return config{}, fmt.Errorf("unsupported direction %q (use up|down|status|check)", cfg.direction)
	}
	switch {
	case cfg.dsn == "":
		return config{}, fmt.Errorf("%s (or -dsn) is required", envPostgresDSN)
	case cfg.steps < 0:
		return config{}, errors.New("steps must be >= 0")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be > 0")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config, m migrator, out io.Writer) error {
	var prefix string
	switch cfg.direction {
	case directionUp:
		if err := m.MigrateUp(ctx, cfg.steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		prefix = "migrate up ok"
	case directionDown:
		if err := m.MigrateDown(ctx, cfg.steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		prefix = "migrate down ok"
	default:
		prefix = "migration status"
	}

	status, err := m.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, _ = fmt.Fprintln(out, formatStatus(prefix, status))

	if cfg.direction == directionCheck && status.Pending > 0 {
		return fmt.Errorf("%w: %d pending at version %d", errPendingMigrations, status.Pending, status.Version)
	}
	return nil
}

func formatStatus(prefix string, status postgres.MigrationStatus) string {
	return fmt.Sprintf("%s: version=%d applied=%d pending=%d", prefix, status.Version, status.Applied, status.Pending)
}
