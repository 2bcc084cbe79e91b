package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus: текущая версия схемы и число применённых миграций.
type MigrationStatus struct {
	Version int64
	Applied int
	Pending int
}

// newProvider собирает goose provider над встроенными миграциями.
// Session locker берёт pg_advisory_lock, поэтому параллельные запуски не мешают друг другу.
func (s *Store) newProvider() (*goose.Provider, func() error, error) {
	if s == nil || s.pool == nil {
		return nil, nil, errStoreNotInitialized
	}

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, nil, fmt.Errorf("create migration locker: %w", err)
	}

	db := s.DB()
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations, goose.WithSessionLocker(locker))
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("create migration provider: %w", err)
	}
	return provider, db.Close, nil
}

// MigrateUp применяет up-миграции. steps=0 означает «все доступные».
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	provider, closeDB, err := s.newProvider()
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	if steps <= 0 {
		if _, err := provider.Up(ctx); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	}
	for i := 0; i < steps; i++ {
		if _, err := provider.UpByOne(ctx); err != nil {
			if errors.Is(err, goose.ErrNoNextVersion) {
				return nil
			}
			return fmt.Errorf("migrate up step %d: %w", i+1, err)
		}
	}
	return nil
}

// MigrateDown откатывает миграции. steps<=0 интерпретируется как 1 шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}

	provider, closeDB, err := s.newProvider()
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	for i := 0; i < steps; i++ {
		if _, err := provider.Down(ctx); err != nil {
			if errors.Is(err, goose.ErrNoNextVersion) {
				return nil
			}
			return fmt.Errorf("migrate down step %d: %w", i+1, err)
		}
	}
	return nil
}

// MigrationStatus возвращает версию схемы и число применённых и ожидающих миграций.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	provider, closeDB, err := s.newProvider()
	if err != nil {
		return MigrationStatus{}, err
	}
	defer func() { _ = closeDB() }()

	var status MigrationStatus
	if status.Version, err = provider.GetDBVersion(ctx); err != nil {
		return MigrationStatus{}, fmt.Errorf("query migration version: %w", err)
	}
	results, err := provider.Status(ctx)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("query migration status: %w", err)
	}
	for _, result := range results {
		if result.State == goose.StateApplied {
			status.Applied++
		} else {
			status.Pending++
		}
	}
	return status, nil
}

// embeddedMigrations возвращает имена встроенных файлов миграций.
func embeddedMigrations() ([]string, error) {
	return fs.Glob(migrationsFS, "migrations/*.sql")
}
