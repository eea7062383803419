package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"peerlink/internal/core/domain"
	"peerlink/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// recordTTL bounds how long a stale record survives a client crash.
const recordTTL = 24 * time.Hour

type RedisConnectionsRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisConnectionsRepository(client *redis.Client) ports.ConnectionsRepository {
	return &RedisConnectionsRepository{
		client: client,
		prefix: "peerlink:conn:",
	}
}

func (r *RedisConnectionsRepository) recordKey(id domain.PeerID) string {
	return r.prefix + string(id)
}

func (r *RedisConnectionsRepository) indexKey() string {
	return "peerlink:conns"
}

func (r *RedisConnectionsRepository) Add(ctx context.Context, record *domain.PeerRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal peer record: %w", err)
	}

	key := r.recordKey(record.ID)
	ok, err := r.client.SetNX(ctx, key, data, recordTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to set peer record in Redis: %w", err)
	}
	if !ok {
		return fmt.Errorf("peer record already exists: %s", record.ID)
	}

	if err := r.client.SAdd(ctx, r.indexKey(), string(record.ID)).Err(); err != nil {
		return fmt.Errorf("failed to index peer record: %w", err)
	}
	return nil
}

func (r *RedisConnectionsRepository) Get(ctx context.Context, id domain.PeerID) (*domain.PeerRecord, error) {
	data, err := r.client.Get(ctx, r.recordKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrPeerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get peer record from Redis: %w", err)
	}

	var record domain.PeerRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal peer record: %w", err)
	}
	return &record, nil
}

func (r *RedisConnectionsRepository) UpdateStates(
	ctx context.Context,
	id domain.PeerID,
	conn domain.PeerConnectionState,
	ice domain.IceConnectionState,
) error {
	record, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	if conn != "" {
		record.ConnectionState = conn
	}
	if ice != "" {
		record.IceState = ice
	}
	record.LastSeen = time.Now()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal peer record: %w", err)
	}
	if err := r.client.Set(ctx, r.recordKey(id), data, recordTTL).Err(); err != nil {
		return fmt.Errorf("failed to update peer record in Redis: %w", err)
	}
	return nil
}

func (r *RedisConnectionsRepository) Remove(ctx context.Context, id domain.PeerID) error {
	removed, err := r.client.Del(ctx, r.recordKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete peer record from Redis: %w", err)
	}
	if removed == 0 {
		return domain.ErrPeerNotFound
	}
	if err := r.client.SRem(ctx, r.indexKey(), string(id)).Err(); err != nil {
		return fmt.Errorf("failed to unindex peer record: %w", err)
	}
	return nil
}

func (r *RedisConnectionsRepository) List(ctx context.Context) ([]*domain.PeerRecord, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list peer records: %w", err)
	}

	records := make([]*domain.PeerRecord, 0, len(ids))
	for _, id := range ids {
		record, err := r.Get(ctx, domain.PeerID(id))
		if err == domain.ErrPeerNotFound {
			// Expired record still referenced by the index.
			_ = r.client.SRem(ctx, r.indexKey(), id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
