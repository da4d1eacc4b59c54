package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisConfig configures Redis access for the append log.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis is a Store backend over a per-partition sorted set (order) and hash
// (record bodies).
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis constructs a Redis-backed store and verifies connectivity.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "threatcorr"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis store: %w", err)
	}

	return &Redis{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// Put upserts a record into the partition log.
func (s *Redis) Put(ctx context.Context, partition string, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, s.indexKey(partition), redis.Z{
		Score:  float64(rec.TS.UnixNano()),
		Member: rec.ID,
	})
	pipe.HSet(ctx, s.bodyKey(partition), rec.ID, body)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	return nil
}

// Scan returns records with TS >= since in chronological order.
func (s *Redis) Scan(ctx context.Context, partition string, since time.Time) ([]Record, error) {
	min := "-inf"
	if !since.IsZero() {
		min = strconv.FormatInt(since.UnixNano(), 10)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(partition), &redis.ZRangeBy{
		Min: min,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan partition %s: %w", partition, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.fetch(ctx, partition, ids)
}

// Evict removes the count oldest records and returns them.
func (s *Redis) Evict(ctx context.Context, partition string, count int) ([]Record, error) {
	if count <= 0 {
		return nil, nil
	}
	popped, err := s.client.ZPopMin(ctx, s.indexKey(partition), int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("evict from partition %s: %w", partition, err)
	}
	if len(popped) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(popped))
	for _, z := range popped {
		if id, ok := z.Member.(string); ok {
			ids = append(ids, id)
		}
	}
	evicted, err := s.fetch(ctx, partition, ids)
	if err != nil {
		return nil, err
	}
	if err := s.client.HDel(ctx, s.bodyKey(partition), ids...).Err(); err != nil {
		return nil, fmt.Errorf("delete evicted bodies in %s: %w", partition, err)
	}
	return evicted, nil
}

// Len returns the partition size.
func (s *Redis) Len(ctx context.Context, partition string) (int, error) {
	n, err := s.client.ZCard(ctx, s.indexKey(partition)).Result()
	if err != nil {
		return 0, fmt.Errorf("len of partition %s: %w", partition, err)
	}
	return int(n), nil
}

// Close releases the Redis client.
func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) fetch(ctx context.Context, partition string, ids []string) ([]Record, error) {
	bodies, err := s.client.HMGet(ctx, s.bodyKey(partition), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch bodies in %s: %w", partition, err)
	}
	out := make([]Record, 0, len(ids))
	for _, body := range bodies {
		raw, ok := body.(string)
		if !ok || raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Redis) indexKey(partition string) string {
	return s.prefix + ":log:" + partition
}

func (s *Redis) bodyKey(partition string) string {
	return s.prefix + ":rec:" + partition
}
