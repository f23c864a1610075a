package repositories

import (
	"context"

	"rillnet/internal/core/ports"
	"rillnet/internal/infrastructure/repositories/memory"
	redisrepo "rillnet/internal/infrastructure/repositories/redis"
	"rillnet/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates the forwarder directory with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory forwarder directory",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis forwarder directory")
		}
	}

	if !factory.useRedis {
		logger.Info("using in-memory forwarder directory")
	}

	return factory, nil
}

// CreateForwarderDirectory creates the stream-id-to-instance directory
// (Redis-backed for multi-instance fleets, memory otherwise).
func (f *RepositoryFactory) CreateForwarderDirectory() ports.ForwarderDirectory {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisForwarderDirectory(f.redisClient)
	}
	return memory.NewMemoryForwarderDirectory()
}

// RedisClient exposes the underlying client (nil if Redis is disabled)
// for components that need it directly, such as the ForwardEvent bus.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
