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

	"venturescope/platform/shared/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(config.Default().Memory, NewInMemoryBackend(), NewInMemoryQueue())
}

func TestManager_StoreThenRetrieveIsCacheHit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.StoreMemory(ctx, "a1", MemoryTypeShortTerm, ScopeAgentPrivate, "k1",
		map[string]interface{}{"finding": "tam is large"}, nil, 0, 1.0)
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected an entry id")
	}

	entry, err := m.RetrieveMemory(ctx, "a1", MemoryTypeShortTerm, ScopeAgentPrivate, "k1")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected the just-stored entry")
	}
	if entry.AccessCount != 1 {
		t.Errorf("expected access_count 1, got %d", entry.AccessCount)
	}

	stats := m.GetMemoryStats()
	if stats.CacheHits != 1 || stats.CacheMisses != 0 {
		t.Errorf("expected 1 hit / 0 misses, got %d / %d", stats.CacheHits, stats.CacheMisses)
	}
	if stats.CacheHitRate != 1.0 {
		t.Errorf("expected hit rate 1.0, got %f", stats.CacheHitRate)
	}
}

func TestManager_CacheMissFallsThroughToBackend(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.StoreMemory(ctx, "a1", MemoryTypeLongTerm, ScopeAgentPrivate, "k1", "v1", nil, 0, 1.0)
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}

	// Drop the local cache to force the backend path
	m.mu.Lock()
	m.cache = make(map[string]*MemoryEntry)
	m.mu.Unlock()

	entry, err := m.RetrieveMemory(ctx, "a1", MemoryTypeLongTerm, ScopeAgentPrivate, "k1")
	if err != nil {
		t.Fatalf("retrieve failed: %v", err)
	}
	if entry == nil || entry.Value != "v1" {
		t.Fatalf("expected backend value, got %+v", entry)
	}
	if entry.AccessCount != 1 {
		t.Errorf("expected access_count 1, got %d", entry.AccessCount)
	}

	stats := m.GetMemoryStats()
	if stats.CacheMisses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.CacheMisses)
	}

	// The incremented access count was written back to the backend
	m.mu.Lock()
	m.cache = make(map[string]*MemoryEntry)
	m.mu.Unlock()

	entry, _ = m.RetrieveMemory(ctx, "a1", MemoryTypeLongTerm, ScopeAgentPrivate, "k1")
	if entry.AccessCount != 2 {
		t.Errorf("expected access_count 2 after writeback, got %d", entry.AccessCount)
	}
}

func TestManager_ExpiredEntryNeverReturned(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	m.now = func() time.Time { return now }

	backend := m.backend.(*InMemoryBackend)
	backend.now = m.now

	_, err := m.StoreMemory(ctx, "a1", MemoryTypeCache, ScopeAgentPrivate, "k1", "v", nil, time.Minute, 1.0)
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}

	now = now.Add(2 * time.Minute)

	entry, err := m.RetrieveMemory(ctx, "a1", MemoryTypeCache, ScopeAgentPrivate, "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != nil {
		t.Errorf("expected nil for expired entry, got %+v", entry)
	}
}

func TestManager_SearchMemories(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, _ = m.StoreMemory(ctx, "a1", MemoryTypeShortTerm, ScopeAgentPrivate, "tam:us", 1, nil, 0, 1.0)
	_, _ = m.StoreMemory(ctx, "a1", MemoryTypeShortTerm, ScopeAgentPrivate, "tam:eu", 2, nil, 0, 1.0)
	_, _ = m.StoreMemory(ctx, "a1", MemoryTypeLongTerm, ScopeAgentPrivate, "sam:us", 3, nil, 0, 1.0)
	_, _ = m.StoreMemory(ctx, "a2", MemoryTypeShortTerm, ScopeAgentPrivate, "tam:us", 4, nil, 0, 1.0)

	results, err := m.SearchMemories(ctx, "a1", MemoryTypeShortTerm, ScopeAgentPrivate, "tam:*", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results, got %d", len(results))
	}

	// Type wildcard widens the match
	results, _ = m.SearchMemories(ctx, "a1", "", "", "*", 10)
	if len(results) != 3 {
		t.Errorf("expected 3 results for owner a1, got %d", len(results))
	}

	// Limit caps results
	results, _ = m.SearchMemories(ctx, "a1", "", "", "*", 1)
	if len(results) != 1 {
		t.Errorf("expected limit to cap at 1, got %d", len(results))
	}
}

func TestManager_DeleteMemory(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, _ = m.StoreMemory(ctx, "a1", MemoryTypeShortTerm, ScopeAgentPrivate, "k", "v", nil, 0, 1.0)

	removed, err := m.DeleteMemory(ctx, "a1", MemoryTypeShortTerm, ScopeAgentPrivate, "k")
	if err != nil || !removed {
		t.Fatalf("expected delete to remove, removed=%v err=%v", removed, err)
	}

	entry, _ := m.RetrieveMemory(ctx, "a1", MemoryTypeShortTerm, ScopeAgentPrivate, "k")
	if entry != nil {
		t.Error("expected nil after delete")
	}

	removed, _ = m.DeleteMemory(ctx, "a1", MemoryTypeShortTerm, ScopeAgentPrivate, "k")
	if removed {
		t.Error("expected removed=false for absent entry")
	}
}

func TestManager_SharedScopeAnnouncesOnQueue(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	queue := m.queue.(*InMemoryQueue)

	_, _ = m.StoreMemory(ctx, "a1", MemoryTypeShortTerm, ScopeAgentPrivate, "private", "v", nil, 0, 1.0)
	if queue.Len() != 0 {
		t.Fatalf("private scope must not announce, queue has %d", queue.Len())
	}

	_, _ = m.StoreMemory(ctx, "a1", MemoryTypeShared, ScopeGlobalShared, "public", "v", nil, 0, 1.0)
	if queue.Len() != 1 {
		t.Fatalf("expected 1 announcement, got %d", queue.Len())
	}

	envelopes, err := m.ReceiveSharedKnowledge(ctx, "a2")
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envelopes))
	}
	if envelopes[0].Kind != KindMemoryAnnouncement {
		t.Errorf("expected memory_announcement, got %s", envelopes[0].Kind)
	}
	if envelopes[0].Memory.Key != "public" {
		t.Errorf("unexpected announced key: %s", envelopes[0].Memory.Key)
	}
}

func TestManager_ReceiveAcknowledgesIrrelevantMessages(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	queue := m.queue.(*InMemoryQueue)

	// One addressed elsewhere, one broadcast
	_ = m.ShareKnowledge(ctx, "a1", "insight", map[string]interface{}{"x": 1}, []string{"a9"})
	_ = m.ShareKnowledge(ctx, "a1", "insight", map[string]interface{}{"x": 2}, nil)

	envelopes, err := m.ReceiveSharedKnowledge(ctx, "a2")
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("expected only the broadcast, got %d", len(envelopes))
	}

	// Every inspected message was acknowledged, including the irrelevant one
	if queue.Len() != 0 {
		t.Errorf("expected empty queue after receive, got %d", queue.Len())
	}
}

func TestManager_InitializeShutdown(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// A second Shutdown is a no-op, not a panic
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("repeated shutdown failed: %v", err)
	}
}

func TestManager_ReceiveDrainsBeyondOneBatch(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	queue := m.queue.(*InMemoryQueue)

	// More messages than a single receive batch returns
	for i := 0; i < 25; i++ {
		if err := m.ShareKnowledge(ctx, "a1", "insight", map[string]interface{}{"n": i}, nil); err != nil {
			t.Fatalf("share %d failed: %v", i, err)
		}
	}

	envelopes, err := m.ReceiveSharedKnowledge(ctx, "a2")
	if err != nil {
		t.Fatalf("receive failed: %v", err)
	}
	if len(envelopes) != 25 {
		t.Errorf("expected all 25 messages in one drain, got %d", len(envelopes))
	}
	if queue.Len() != 0 {
		t.Errorf("expected empty queue after drain, got %d", queue.Len())
	}
}
