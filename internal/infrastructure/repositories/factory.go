package repositories

import (
	"context"

	"peerlink/internal/core/ports"
	"peerlink/internal/infrastructure/repositories/memory"
	redisrepo "peerlink/internal/infrastructure/repositories/redis"
	"peerlink/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory selects the backing store for peer connection records.
// When Redis is enabled but unreachable at startup it degrades to the
// in-memory store rather than failing the whole client.
type RepositoryFactory struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	f := &RepositoryFactory{logger: logger}

	if !cfg.Redis.Enabled {
		logger.Info("using memory connection store")
		return f, nil
	}

	client, err := redisrepo.Dial(redisrepo.Options{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Warnw("Redis unavailable, falling back to memory connection store",
			"error", err,
		)
		return f, nil
	}

	f.client = client
	logger.Info("using Redis connection store")
	return f, nil
}

// CreateConnectionsRepository returns the store picked at construction time.
func (f *RepositoryFactory) CreateConnectionsRepository() ports.ConnectionsRepository {
	if f.client != nil {
		return redisrepo.NewRedisConnectionsRepository(f.client)
	}
	return memory.NewMemoryConnectionsRepository()
}

func (f *RepositoryFactory) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// HealthCheck pings Redis when it is the active store. The memory store has
// no failure mode worth reporting.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.client != nil {
		return f.client.Ping(ctx).Err()
	}
	return nil
}
