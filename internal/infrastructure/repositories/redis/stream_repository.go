package redis

import (
	"context"
	"fmt"

	"rillnet/internal/core/ports"
	"rillnet/pkg/tracing"

	"github.com/redis/go-redis/v9"
)

// RedisForwarderDirectory implements ports.ForwarderDirectory against a
// Redis instance shared by every process in the fleet: it lets one
// ingest instance answer "which instance is hosting stream X's
// publisher" without a shared in-memory map.
type RedisForwarderDirectory struct {
	client *redis.Client
	prefix string
}

func NewRedisForwarderDirectory(client *redis.Client) ports.ForwarderDirectory {
	return &RedisForwarderDirectory{
		client: client,
		prefix: "rillnet:forwarder:",
	}
}

func (r *RedisForwarderDirectory) streamKey(id string) string {
	return r.prefix + id
}

func (r *RedisForwarderDirectory) indexKey() string {
	return r.prefix + "index"
}

func (r *RedisForwarderDirectory) Set(ctx context.Context, streamID, instanceAddr string) error {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "set", "forwarder_directory")
	defer span.End()
	if err := r.client.Set(ctx, r.streamKey(streamID), instanceAddr, 0).Err(); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("set forwarder location: %w", err)
	}
	if err := r.client.SAdd(ctx, r.indexKey(), streamID).Err(); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("index forwarder stream: %w", err)
	}
	return nil
}

func (r *RedisForwarderDirectory) Get(ctx context.Context, streamID string) (string, bool, error) {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "get", "forwarder_directory")
	defer span.End()
	addr, err := r.client.Get(ctx, r.streamKey(streamID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", false, fmt.Errorf("get forwarder location: %w", err)
	}
	return addr, true, nil
}

func (r *RedisForwarderDirectory) Delete(ctx context.Context, streamID string) error {
	ctx, span := tracing.TraceDatabaseOperation(ctx, "delete", "forwarder_directory")
	defer span.End()
	if err := r.client.Del(ctx, r.streamKey(streamID)).Err(); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("delete forwarder location: %w", err)
	}
	if err := r.client.SRem(ctx, r.indexKey(), streamID).Err(); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("deindex forwarder stream: %w", err)
	}
	return nil
}

func (r *RedisForwarderDirectory) ListStreams(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list forwarder streams: %w", err)
	}
	return ids, nil
}
