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
	"testing"
	"time"
)

func TestInMemoryBackend_StoreRetrieve(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()

	if err := b.Store(ctx, "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	data, err := b.Retrieve(ctx, "k1")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("expected 'v1', got '%s'", data)
	}

	// Miss returns (nil, nil), not an error
	data, err = b.Retrieve(ctx, "absent")
	if err != nil {
		t.Fatalf("unexpected error on miss: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil on miss, got %v", data)
	}
}

func TestInMemoryBackend_TTLExpiry(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()

	now := time.Now()
	b.now = func() time.Time { return now }

	if err := b.Store(ctx, "fleeting", []byte("x"), 10*time.Second); err != nil {
		t.Fatalf("store failed: %v", err)
	}

	data, _ := b.Retrieve(ctx, "fleeting")
	if data == nil {
		t.Fatal("expected value before expiry")
	}

	now = now.Add(11 * time.Second)

	data, err := b.Retrieve(ctx, "fleeting")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != nil {
		t.Error("expected nil after expiry")
	}

	// Expired entries are gone for Exists too
	exists, _ := b.Exists(ctx, "fleeting")
	if exists {
		t.Error("expected exists=false after expiry")
	}
}

func TestInMemoryBackend_Delete(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()

	_ = b.Store(ctx, "k1", []byte("v1"), 0)

	removed, err := b.Delete(ctx, "k1")
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if !removed {
		t.Error("expected removed=true for present key")
	}

	removed, _ = b.Delete(ctx, "k1")
	if removed {
		t.Error("expected removed=false for absent key")
	}
}

func TestInMemoryBackend_KeysGlob(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()

	_ = b.Store(ctx, "memory:a1:short_term:agent_private:x", []byte("1"), 0)
	_ = b.Store(ctx, "memory:a1:long_term:agent_private:y", []byte("2"), 0)
	_ = b.Store(ctx, "memory:a2:short_term:agent_private:x", []byte("3"), 0)
	_ = b.Store(ctx, "patterns:index:p1", []byte("4"), 0)

	keys, err := b.Keys(ctx, "memory:a1:*:*:*")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %d: %v", len(keys), keys)
	}

	keys, _ = b.Keys(ctx, "patterns:index:*")
	if len(keys) != 1 {
		t.Errorf("expected 1 pattern key, got %d", len(keys))
	}
}

func TestInMemoryBackend_Expire(t *testing.T) {
	b := NewInMemoryBackend()
	ctx := context.Background()

	now := time.Now()
	b.now = func() time.Time { return now }

	_ = b.Store(ctx, "k1", []byte("v1"), 0)

	ok, err := b.Expire(ctx, "k1", 5*time.Second)
	if err != nil || !ok {
		t.Fatalf("expected expire to succeed, ok=%v err=%v", ok, err)
	}

	now = now.Add(6 * time.Second)
	data, _ := b.Retrieve(ctx, "k1")
	if data != nil {
		t.Error("expected expiry after Expire ttl passed")
	}

	ok, _ = b.Expire(ctx, "unknown", time.Second)
	if ok {
		t.Error("expected expire=false for unknown key")
	}
}
