package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// entryVersion tags every cached value. Entries written with another version are
// treated as misses, so a deploy that changes the tenant shape never decodes stale data.
const entryVersion = 1

type entry struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// RedisOptions configures the tenant cache connection. Addr may list several
// comma-separated nodes for a cluster or sentinel setup.
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	PingTimeout time.Duration
}

// RedisClient implements CacheClient on a single node, cluster or sentinel deployment.
type RedisClient struct {
	rdb redis.UniversalClient
}

var _ CacheClient = (*RedisClient)(nil)

// NewRedisClient connects and pings. A failed ping closes the client.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*RedisClient, error) {
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 2 * time.Second
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    splitAddrs(opts.Addr),
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisClient{rdb: rdb}, nil
}

// Get returns ErrMiss when the key is absent, unreadable or from another entry version.
func (c *RedisClient) Get(ctx context.Context, key string, dest any) error {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return decodeEntry(raw, dest)
}

func (c *RedisClient) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := encodeEntry(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

// Del unlinks the key; the server frees the value asynchronously.
func (c *RedisClient) Del(ctx context.Context, key string) error {
	return c.rdb.Unlink(ctx, key).Err()
}

func (c *RedisClient) Close() error {
	return c.rdb.Close()
}

func encodeEntry(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return json.Marshal(entry{Version: entryVersion, Data: data})
}

func decodeEntry(raw []byte, dest any) error {
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil || e.Version != entryVersion {
		return ErrMiss
	}
	if err := json.Unmarshal(e.Data, dest); err != nil {
		return ErrMiss
	}
	return nil
}

func splitAddrs(addr string) []string {
	var out []string
	for _, a := range strings.Split(addr, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
