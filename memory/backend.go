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
	"path"
	"sync"
	"time"
)

// MemoryBackend is the TTL key/value store contract consumed by the
// Manager. Values are opaque serialized bytes; a zero TTL means no expiry.
// Retrieve returns (nil, nil) on a miss so callers can distinguish absent
// keys from transport failures.
type MemoryBackend interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Store(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Retrieve(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type storedValue struct {
	data      []byte
	expiresAt time.Time // zero means no expiry
}

func (v storedValue) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && now.After(v.expiresAt)
}

// InMemoryBackend is the single-node MemoryBackend implementation with
// thread-safe access and lazy expiry on read.
type InMemoryBackend struct {
	mu     sync.RWMutex
	values map[string]storedValue
	now    func() time.Time
}

// NewInMemoryBackend creates an empty in-process backend
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		values: make(map[string]storedValue),
		now:    time.Now,
	}
}

// Connect is a no-op for the in-process backend
func (b *InMemoryBackend) Connect(ctx context.Context) error { return nil }

// Disconnect drops all stored values
func (b *InMemoryBackend) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values = make(map[string]storedValue)
	return nil
}

// Store writes a value, replacing any previous one under the same key
func (b *InMemoryBackend) Store(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := storedValue{data: value}
	if ttl > 0 {
		v.expiresAt = b.now().Add(ttl)
	}
	b.values[key] = v
	return nil
}

// Retrieve returns the value for key, or (nil, nil) if the key is absent
// or expired. Expired entries are removed on access.
func (b *InMemoryBackend) Retrieve(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, exists := b.values[key]
	if !exists {
		return nil, nil
	}
	if v.expired(b.now()) {
		delete(b.values, key)
		return nil, nil
	}

	data := make([]byte, len(v.data))
	copy(data, v.data)
	return data, nil
}

// Delete removes a key, reporting whether it was present
func (b *InMemoryBackend) Delete(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, exists := b.values[key]
	if !exists {
		return false, nil
	}
	delete(b.values, key)
	return !v.expired(b.now()), nil
}

// Exists reports whether a live value is stored under key
func (b *InMemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, exists := b.values[key]
	if !exists {
		return false, nil
	}
	if v.expired(b.now()) {
		delete(b.values, key)
		return false, nil
	}
	return true, nil
}

// Keys returns all live keys matching a Redis-style glob pattern
func (b *InMemoryBackend) Keys(ctx context.Context, pattern string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	keys := make([]string, 0)
	for key, v := range b.values {
		if v.expired(now) {
			delete(b.values, key)
			continue
		}
		matched, err := path.Match(pattern, key)
		if err != nil {
			return nil, err
		}
		if matched {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Expire resets the TTL on an existing key, reporting whether it was present
func (b *InMemoryBackend) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, exists := b.values[key]
	if !exists || v.expired(b.now()) {
		return false, nil
	}

	if ttl > 0 {
		v.expiresAt = b.now().Add(ttl)
	} else {
		v.expiresAt = time.Time{}
	}
	b.values[key] = v
	return true, nil
}
