// Copyright 2025 VentureScope
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBackend is the distributed MemoryBackend implementation. Multiple
// runtime instances share one Redis, so every write must be safe under
// concurrent writers from other processes; the backend relies on Redis
// atomicity per command and never caches locally.
type RedisBackend struct {
	url    string
	client *redis.Client
}

// NewRedisBackend creates a backend for the given Redis URL
// (format: redis://host:port or redis://host:port/db)
func NewRedisBackend(url string) *RedisBackend {
	return &RedisBackend{url: url}
}

// Connect parses the URL, opens the connection pool, and verifies
// reachability with a ping.
func (b *RedisBackend) Connect(ctx context.Context) error {
	opts, err := redis.ParseURL(b.url)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	b.client = client
	return nil
}

// Disconnect closes the connection pool
func (b *RedisBackend) Disconnect(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.client = nil
	return err
}

// Store writes a value with an optional TTL (zero means no expiry)
func (b *RedisBackend) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if b.client == nil {
		return fmt.Errorf("redis backend not connected")
	}
	if err := b.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

// Retrieve returns the value for key, or (nil, nil) on a miss
func (b *RedisBackend) Retrieve(ctx context.Context, key string) ([]byte, error) {
	if b.client == nil {
		return nil, fmt.Errorf("redis backend not connected")
	}
	data, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve %s: %w", key, err)
	}
	return data, nil
}

// Delete removes a key, reporting whether it was present
func (b *RedisBackend) Delete(ctx context.Context, key string) (bool, error) {
	if b.client == nil {
		return false, fmt.Errorf("redis backend not connected")
	}
	removed, err := b.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return removed > 0, nil
}

// Exists reports whether a live value is stored under key
func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	if b.client == nil {
		return false, fmt.Errorf("redis backend not connected")
	}
	count, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", key, err)
	}
	return count > 0, nil
}

// Keys returns all keys matching a Redis glob pattern
func (b *RedisBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	if b.client == nil {
		return nil, fmt.Errorf("redis backend not connected")
	}
	keys, err := b.client.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys for %s: %w", pattern, err)
	}
	return keys, nil
}

// Expire resets the TTL on an existing key, reporting whether it was present
func (b *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if b.client == nil {
		return false, fmt.Errorf("redis backend not connected")
	}
	if ttl <= 0 {
		ok, err := b.client.Persist(ctx, key).Result()
		if err != nil {
			return false, fmt.Errorf("failed to persist %s: %w", key, err)
		}
		return ok, nil
	}
	ok, err := b.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to expire %s: %w", key, err)
	}
	return ok, nil
}
