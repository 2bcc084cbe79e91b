package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

// runtimeDependencies: хранилища выбранного драйвера.
type runtimeDependencies struct {
	catalog          domain.CatalogRepository
	orders           domain.OrderRepository
	tx               domain.TxManager
	carts            domain.CartStore
	outboxRepo       domain.OutboxRepository
	timelineRepo     domain.TimelineRepository
	checkoutAttempts domain.CheckoutAttemptRepository

	ping  func(ctx context.Context) error
	close func()
}

// initRuntimeDependencies открывает хранилище. Корзины всегда в памяти: они живут вместе с сессией.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("используется in-memory хранилище")
		return &runtimeDependencies{
			catalog:          memory.NewCatalogRepository(store),
			orders:           memory.NewOrderRepository(store),
			tx:               memory.NewTxManager(store),
			carts:            memory.NewCartStore(),
			outboxRepo:       store.Outbox(),
			timelineRepo:     store.Timeline(),
			checkoutAttempts: memory.NewCheckoutAttemptRepository(),
			ping:             store.Ping,
			close:            func() {},
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires MARKETPLACE_POSTGRES_DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		logger.Info("используется postgres хранилище")
		return &runtimeDependencies{
			catalog:          postgres.NewCatalogRepository(store),
			orders:           postgres.NewOrderRepository(store),
			tx:               postgres.NewTxManager(store),
			carts:            memory.NewCartStore(),
			outboxRepo:       postgres.NewOutboxRepository(store),
			timelineRepo:     postgres.NewTimelineRepository(store),
			checkoutAttempts: postgres.NewCheckoutAttemptRepository(store),
			ping:             store.Ping,
			close:            store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
