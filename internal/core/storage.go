package core

import (
	"context"
	"fmt"
	"io"

	"kolcrm/internal/config"
	"kolcrm/internal/infra/persistence/memory"
	"kolcrm/internal/infra/persistence/postgres"
	"kolcrm/internal/infra/persistence/redis"
	"kolcrm/internal/infra/persistence/sqlite"
	"kolcrm/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // ephemeral
	StorageSQLite   StorageDriver = "sqlite"   // embedded file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageRedis    StorageDriver = "redis"    // Redis keys
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// loadReporter is implemented by stores that tolerate malformed buckets.
type loadReporter interface {
	LoadProblems() []memory.BucketError
}

// OpenPersistentStore opens the backend named by cfg.Driver, defaulting to
// sqlite. Buckets that failed to decode are logged and start empty. The
// returned closer releases backend connections.
func OpenPersistentStore(ctx context.Context, cfg config.StorageConfig, engine *RulesEngine, logger Logger, opts ...memory.Option) (PersistentStore, io.Closer, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	var (
		store  PersistentStore
		closer io.Closer = nopCloser{}
		err    error
	)
	switch driver {
	case StorageMemory:
		store = memory.NewStore(engine, opts...)
	case StorageSQLite:
		var s *sqlite.Store
		s, err = sqlite.NewStore(cfg.SQLitePath, engine, opts...)
		store, closer = s, s
	case StoragePostgres:
		var s *postgres.Store
		s, err = postgres.NewStore(ctx, cfg.PostgresDSN, engine, opts...)
		store, closer = s, s
	case StorageRedis:
		var s *redis.Store
		s, err = redis.NewStore(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}, engine, opts...)
		store, closer = s, s
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if r, ok := store.(loadReporter); ok {
		for _, p := range r.LoadProblems() {
			logger.Warn("discarded malformed bucket", "driver", string(driver), "bucket", p.Bucket, "error", p.Err)
		}
	}
	logger.Info("storage opened", "driver", string(driver))
	return store, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
