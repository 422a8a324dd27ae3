package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisTransport stores rows as hashes with a per-target pending index:
//
//	{prefix}:cmd:{id}              hash of the row
//	{prefix}:pending:{target}      zset of pending ids scored by created_at
//	{prefix}:target:{target}       zset of every id for the target
type RedisTransport struct {
	client *redis.Client
	prefix string
}

// NewRedisTransport builds a client without connecting. An unreachable
// server surfaces as ErrTransportUnavailable on each call.
func NewRedisTransport(redisURL, prefix string) (*RedisTransport, error) {
	u := strings.TrimSpace(redisURL)
	if u == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(u)
	if err != nil {
		return nil, err
	}
	return NewRedisTransportWithClient(redis.NewClient(opts), prefix), nil
}

// Ping checks the server is reachable.
func (t *RedisTransport) Ping(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return nil
}

// NewRedisTransportWithClient wraps an existing client.
func NewRedisTransportWithClient(client *redis.Client, prefix string) *RedisTransport {
	if prefix == "" {
		prefix = "ggmhub"
	}
	return &RedisTransport{client: client, prefix: prefix}
}

func (t *RedisTransport) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}

func (t *RedisTransport) cmdKey(id string) string { return t.prefix + ":cmd:" + id }
func (t *RedisTransport) pendingKey(target string) string {
	return t.prefix + ":pending:" + target
}
func (t *RedisTransport) targetKey(target string) string {
	return t.prefix + ":target:" + target
}

func (t *RedisTransport) GetPendingCommands(ctx context.Context, status Status, target string) ([]Command, error) {
	index := t.targetKey(target)
	if status == StatusPending {
		index = t.pendingKey(target)
	}

	ids, err := t.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := t.client.Pipeline()
	results := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		results[i] = pipe.HGetAll(ctx, t.cmdKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	commands := make([]Command, 0, len(ids))
	for _, res := range results {
		fields := res.Val()
		if len(fields) == 0 {
			continue
		}
		cmd := commandFromHash(fields)
		if cmd.Status == status && cmd.Target == target {
			commands = append(commands, cmd)
		}
	}
	return commands, nil
}

func (t *RedisTransport) PostCommandUpdate(ctx context.Context, id string, status Status, result string, completedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	key := t.cmdKey(id)

	err := t.client.Watch(ctx, func(tx *redis.Tx) error {
		fields, err := tx.HMGet(ctx, key, "status", "target").Result()
		if err != nil {
			return err
		}
		current, _ := fields[0].(string)
		target, _ := fields[1].(string)
		if current == "" {
			return fmt.Errorf("command %s not found", id)
		}
		if Status(current) != StatusPending {
			return fmt.Errorf("command %s is already %s", id, current)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"status", string(status),
				"result", Truncate(result),
				"completed_at", completedAt.UTC().Format(time.RFC3339Nano))
			pipe.ZRem(ctx, t.pendingKey(target), id)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("command %s changed concurrently: %w", id, err)
	}
	return err
}

func (t *RedisTransport) PostCommand(ctx context.Context, command, data, source, target string, createdAt time.Time) (string, error) {
	id := uuid.NewString()
	score := float64(createdAt.UnixMilli())

	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, t.cmdKey(id),
			"id", id,
			"command", command,
			"data", data,
			"source", source,
			"target", target,
			"status", string(StatusPending),
			"created_at", createdAt.UTC().Format(time.RFC3339Nano))
		pipe.ZAdd(ctx, t.pendingKey(target), redis.Z{Score: score, Member: id})
		pipe.ZAdd(ctx, t.targetKey(target), redis.Z{Score: score, Member: id})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return id, nil
}

func commandFromHash(f map[string]string) Command {
	cmd := Command{
		ID:        f["id"],
		Command:   f["command"],
		Data:      f["data"],
		Source:    f["source"],
		Target:    f["target"],
		Status:    Status(f["status"]),
		CreatedAt: parseSheetTime(f["created_at"]),
		Result:    f["result"],
	}
	if ts := parseSheetTime(f["completed_at"]); !ts.IsZero() {
		cmd.CompletedAt = &ts
	}
	return cmd
}
