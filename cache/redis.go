// Package cache is the backend's optional redis read-through cache for
// resources. A nil *RedisStore is valid and behaves as an always-empty cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"relaygate/config"
)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Connect dials redis and verifies it answers. An empty address disables the
// cache and returns nil.
func Connect(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Address, err)
	}
	return NewRedisStore(client, cfg.TTL), nil
}

func itemKey(domain string, id int64) string {
	return fmt.Sprintf("relaygate:%s:%d", domain, id)
}

// The cached list of a domain is stored under its current version. Every
// write bumps the version, so a list read from the database before a
// concurrent write lands under a version nobody asks for again.
func versionKey(domain string) string {
	return fmt.Sprintf("relaygate:%s:listver", domain)
}

func listKey(domain string, version int64) string {
	return fmt.Sprintf("relaygate:%s:all:%d", domain, version)
}

// Get loads one cached resource into out and reports whether it was present.
func (r *RedisStore) Get(ctx context.Context, domain string, id int64, out any) (bool, error) {
	if r == nil {
		return false, nil
	}
	return r.get(ctx, itemKey(domain, id), out)
}

// Put caches one resource read from the database. The list is untouched.
func (r *RedisStore) Put(ctx context.Context, domain string, id int64, v any) error {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, itemKey(domain, id), data, r.ttl).Err()
}

// Set caches one resource after a write and bumps the domain's list version.
func (r *RedisStore) Set(ctx context.Context, domain string, id int64, v any) error {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, itemKey(domain, id), data, r.ttl)
	pipe.Incr(ctx, versionKey(domain))
	_, err = pipe.Exec(ctx)
	return err
}

// ListVersion returns the domain's current list version. Read it before
// loading the list from the database and pass it to SetList.
func (r *RedisStore) ListVersion(ctx context.Context, domain string) (int64, error) {
	if r == nil {
		return 0, nil
	}
	v, err := r.client.Get(ctx, versionKey(domain)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// GetList loads the cached full list of a domain at version into out.
func (r *RedisStore) GetList(ctx context.Context, domain string, version int64, out any) (bool, error) {
	if r == nil {
		return false, nil
	}
	return r.get(ctx, listKey(domain, version), out)
}

func (r *RedisStore) SetList(ctx context.Context, domain string, version int64, v any) error {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, listKey(domain, version), data, r.ttl).Err()
}

// Invalidate drops one resource and bumps the domain's list version.
func (r *RedisStore) Invalidate(ctx context.Context, domain string, id int64) error {
	if r == nil {
		return nil
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, itemKey(domain, id))
	pipe.Incr(ctx, versionKey(domain))
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisStore) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
