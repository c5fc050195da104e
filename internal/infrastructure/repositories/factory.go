package repositories

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/infrastructure/repositories/memory"
	redisrepo "github.com/kingcam214/creatorvault-ultrastate-sub003/internal/infrastructure/repositories/redis"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/pkg/config"
)

// RepositoryFactory wires storage. Room state is always the in-memory
// store, which is authoritative; Redis only carries the optional presence
// mirror and degrades to nothing when unreachable.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

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
			logger.Warnw("failed to connect to Redis, running without presence mirror",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
		}
	}

	return factory, nil
}

// CreateRoomStore returns the authoritative in-memory room store.
func (f *RepositoryFactory) CreateRoomStore() ports.RoomStore {
	return memory.NewMemoryRoomStore()
}

// CreatePresenceStore returns the Redis presence mirror, or nil when
// Redis is disabled or unreachable.
func (f *RepositoryFactory) CreatePresenceStore() ports.PresenceStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisPresenceStore(f.redisClient)
	}
	return nil
}

// RedisClient exposes the shared client for the event bus; nil when
// Redis is not in use.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks the Redis connection when one is in use.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
