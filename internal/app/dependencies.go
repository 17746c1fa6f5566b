package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/shop/internal/health"
	"github.com/vladislavdragonenkov/shop/internal/storage/memory"
	"github.com/vladislavdragonenkov/shop/internal/storage/postgres"
	"github.com/vladislavdragonenkov/shop/internal/storage/redis"
)

// runtimeDependencies — хранилище и внешние подключения, выбранные конфигурацией.
type runtimeDependencies struct {
	store           domain.Store
	idempotencyRepo domain.IdempotencyRepository
	// sequence задан, только если номера заказов выдаёт Redis.
	sequence domain.OrderSequence

	storageChecker healthcheck.Checker
	redisChecker   healthcheck.Checker

	closers []func() error
}

// closeFn закрывает подключения в обратном порядке.
func (d *runtimeDependencies) closeFn() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		deps.store = store
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		deps.storageChecker = healthcheck.NewPingChecker("storage", store.Ping)
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		if strings.TrimSpace(cfg.PostgresDSN) == "" {
			return nil, errors.New("postgres dsn is required for postgres storage driver")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = deps.closeFn()
				return nil, fmt.Errorf("migrate postgres schema: %w", err)
			}
		}
		deps.store = store
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.storageChecker = healthcheck.NewPingChecker("postgres", store.Ping)
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if err := initOrderSequence(ctx, cfg, deps, logger); err != nil {
		_ = deps.closeFn()
		return nil, err
	}

	return deps, nil
}

// initOrderSequence подключает Redis-счётчик номеров заказов, если он выбран.
func initOrderSequence(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	switch strings.ToLower(strings.TrimSpace(cfg.OrderSequenceDriver)) {
	case "", SequenceDriverStorage:
		return nil
	case SequenceDriverRedis:
	default:
		return fmt.Errorf("unsupported order sequence driver %q", cfg.OrderSequenceDriver)
	}

	client := redis.NewClient(redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	deps.closers = append(deps.closers, client.Close)

	sequence := redis.NewOrderSequence(client)
	if err := sequence.Ping(ctx); err != nil {
		return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	deps.sequence = sequence
	deps.redisChecker = healthcheck.NewPingChecker("redis", sequence.Ping)
	logger.WithField("redis_addr", cfg.RedisAddr).Info("order numbers allocated by redis")
	return nil
}

// outboxBacklogChecker отдаёт degraded, когда backlog outbox больше limit.
func outboxBacklogChecker(repo domain.OutboxRepository, limit int) healthcheck.Checker {
	return healthcheck.NewOptionalChecker("outbox", func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if limit > 0 && stats.PendingCount > limit {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, limit)
		}
		return nil
	})
}
