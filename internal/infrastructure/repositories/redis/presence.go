package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/domain"
	"github.com/kingcam214/creatorvault-ultrastate-sub003/internal/core/ports"
)

const (
	streamKeyPrefix = "cvlive:stream:"
	activeSetKey    = "cvlive:active"

	// presenceTTL bounds how long a stale mirror entry survives a
	// coordinator crash. Live entries are refreshed on every mutation.
	presenceTTL = 90 * time.Second
)

// RedisPresenceStore mirrors the active-room table into Redis so the rest
// of the platform can read it without calling the coordinator. The
// in-memory store stays authoritative; the mirror is best effort.
type RedisPresenceStore struct {
	client *redis.Client
}

func NewRedisPresenceStore(client *redis.Client) ports.PresenceStore {
	return &RedisPresenceStore{client: client}
}

func streamKey(id domain.StreamID) string {
	return fmt.Sprintf("%s%d", streamKeyPrefix, id)
}

func (s *RedisPresenceStore) SetRoom(ctx context.Context, status domain.StreamStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal stream status: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, streamKey(status.StreamID), data, presenceTTL)
	pipe.SAdd(ctx, activeSetKey, int64(status.StreamID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mirror stream %d: %w", status.StreamID, err)
	}
	return nil
}

func (s *RedisPresenceStore) RemoveRoom(ctx context.Context, streamID domain.StreamID) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, streamKey(streamID))
	pipe.SRem(ctx, activeSetKey, int64(streamID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unmirror stream %d: %w", streamID, err)
	}
	return nil
}

func (s *RedisPresenceStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
