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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"venturescope/platform/shared/config"
	"venturescope/platform/shared/logger"
)

// MemoryType classifies how long a memory entry is expected to live and
// what it is used for.
type MemoryType string

const (
	MemoryTypeShortTerm MemoryType = "short_term"
	MemoryTypeLongTerm  MemoryType = "long_term"
	MemoryTypeShared    MemoryType = "shared"
	MemoryTypePattern   MemoryType = "pattern"
	MemoryTypeCache     MemoryType = "cache"
)

// MemoryScope is the visibility tier of a memory entry
type MemoryScope string

const (
	ScopeAgentPrivate   MemoryScope = "agent_private"
	ScopeAgentShared    MemoryScope = "agent_shared"
	ScopeWorkflowShared MemoryScope = "workflow_shared"
	ScopeGlobalShared   MemoryScope = "global_shared"
)

// MemoryEntry is one stored fact, owned by an agent and possibly shared
type MemoryEntry struct {
	ID              string                 `json:"id"`
	OwnerAgentID    string                 `json:"owner_agent_id"`
	MemoryType      MemoryType             `json:"memory_type"`
	Scope           MemoryScope            `json:"scope"`
	Key             string                 `json:"key"`
	Value           interface{}            `json:"value"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	ExpiresAt       *time.Time             `json:"expires_at,omitempty"`
	AccessCount     int64                  `json:"access_count"`
	ConfidenceScore float64                `json:"confidence_score"`
}

// Expired reports whether the entry's TTL has passed. Entries with no
// expiry never expire.
func (e *MemoryEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Stats is a snapshot of the manager's observability counters
type Stats struct {
	EntriesStored    int64   `json:"entries_stored"`
	EntriesRetrieved int64   `json:"entries_retrieved"`
	CacheHits        int64   `json:"cache_hits"`
	CacheMisses      int64   `json:"cache_misses"`
	PatternsLearned  int64   `json:"patterns_learned"`
	PatternsApplied  int64   `json:"patterns_applied"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
}

// Manager owns agent memory and asynchronous knowledge sharing. It fronts
// the backend with a local in-process cache, learns validation patterns
// from completed workflows, and runs two background workers: an expiry
// sweep and a pattern-maintenance loop.
//
// The Manager depends only on the MemoryBackend and KnowledgeQueue
// interfaces; its behavior is identical whichever implementation pair the
// deployment wires in.
type Manager struct {
	cfg     config.MemoryConfig
	backend MemoryBackend
	queue   KnowledgeQueue
	log     *logger.Logger

	mu       sync.RWMutex
	cache    map[string]*MemoryEntry
	patterns map[string]*ValidationPattern

	statsMu          sync.Mutex
	entriesStored    int64
	entriesRetrieved int64
	cacheHits        int64
	cacheMisses      int64
	patternsLearned  int64
	patternsApplied  int64

	now func() time.Time

	workersOnce sync.Once
	stopOnce    sync.Once
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewManager creates a Manager on the given adapter pair. Call Initialize
// before use.
func NewManager(cfg config.MemoryConfig, backend MemoryBackend, queue KnowledgeQueue) *Manager {
	return &Manager{
		cfg:      cfg,
		backend:  backend,
		queue:    queue,
		log:      logger.New("memory-manager"),
		cache:    make(map[string]*MemoryEntry),
		patterns: make(map[string]*ValidationPattern),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Initialize connects both adapters, loads persisted patterns into the
// in-memory index, and starts the background workers.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.backend.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect memory backend: %w", err)
	}
	if err := m.queue.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect knowledge queue: %w", err)
	}

	if err := m.loadPatterns(ctx); err != nil {
		return fmt.Errorf("failed to load patterns: %w", err)
	}

	m.workersOnce.Do(func() {
		m.wg.Add(2)
		go m.expirySweepWorker()
		go m.patternMaintenanceWorker()
	})

	m.log.Info("", "", "Memory manager initialized", map[string]interface{}{
		"patterns_loaded": len(m.patterns),
	})
	return nil
}

// Shutdown stops the workers, persists the pattern index, and disconnects
// both adapters. No worker tick is left running when it returns. Safe to
// call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()

	if err := m.persistPatterns(ctx); err != nil {
		m.log.ErrorWithErr("", "", "Failed to persist patterns on shutdown", err, nil)
	}

	var firstErr error
	if err := m.queue.Disconnect(ctx); err != nil {
		firstErr = err
	}
	if err := m.backend.Disconnect(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	m.log.Info("", "", "Memory manager shut down", nil)
	return firstErr
}

// memoryKey builds the composite backend/cache key for an entry
func memoryKey(ownerAgentID string, memoryType MemoryType, scope MemoryScope, key string) string {
	return fmt.Sprintf("memory:%s:%s:%s:%s", ownerAgentID, memoryType, scope, key)
}

// StoreMemory writes an entry to the backend and the local cache, then
// announces it on the knowledge queue unless the scope is agent-private.
// A zero ttl means no expiry; a non-positive confidence defaults to 1.0.
// Returns the new entry's id.
func (m *Manager) StoreMemory(ctx context.Context, ownerAgentID string, memoryType MemoryType, scope MemoryScope, key string, value interface{}, metadata map[string]interface{}, ttl time.Duration, confidence float64) (string, error) {
	if confidence <= 0 {
		confidence = 1.0
	}

	now := m.now()
	entry := &MemoryEntry{
		ID:              uuid.New().String(),
		OwnerAgentID:    ownerAgentID,
		MemoryType:      memoryType,
		Scope:           scope,
		Key:             key,
		Value:           value,
		Metadata:        metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
		ConfidenceScore: confidence,
	}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}

	storageKey := memoryKey(ownerAgentID, memoryType, scope, key)
	if err := m.backend.Store(ctx, storageKey, data, ttl); err != nil {
		return "", err
	}

	m.mu.Lock()
	m.cache[storageKey] = entry
	m.mu.Unlock()

	m.statsMu.Lock()
	m.entriesStored++
	m.statsMu.Unlock()

	if scope != ScopeAgentPrivate {
		if err := m.announceEntry(ctx, entry); err != nil {
			// The entry is durably stored; a lost announcement only delays
			// observation by other agents until they read the backend.
			m.log.ErrorWithErr(ownerAgentID, "", "Failed to announce memory entry", err, map[string]interface{}{
				"entry_id": entry.ID,
			})
		}
	}

	return entry.ID, nil
}

// announceEntry publishes a stored non-private entry to the knowledge
// queue. Global-shared entries broadcast; narrower scopes address the
// agents named in metadata under "target_agent_ids" when present, and
// broadcast otherwise.
func (m *Manager) announceEntry(ctx context.Context, entry *MemoryEntry) error {
	var targets []string
	if entry.Scope != ScopeGlobalShared {
		targets = targetsFromMetadata(entry.Metadata)
	}

	envelope := KnowledgeEnvelope{
		Kind:    KindMemoryAnnouncement,
		Targets: targets,
		Memory: &MemoryAnnouncement{
			EntryID:      entry.ID,
			OwnerAgentID: entry.OwnerAgentID,
			MemoryType:   entry.MemoryType,
			Scope:        entry.Scope,
			Key:          entry.Key,
			Value:        entry.Value,
		},
	}
	return m.queue.Send(ctx, envelope, 0)
}

func targetsFromMetadata(metadata map[string]interface{}) []string {
	raw, ok := metadata["target_agent_ids"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		targets := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				targets = append(targets, s)
			}
		}
		return targets
	default:
		return nil
	}
}

// RetrieveMemory returns the entry for (owner, type, scope, key), or
// (nil, nil) if absent or expired. The local cache is consulted first;
// every successful retrieval increments the entry's access count, and on
// a cache miss the incremented count is written back to the backend.
func (m *Manager) RetrieveMemory(ctx context.Context, ownerAgentID string, memoryType MemoryType, scope MemoryScope, key string) (*MemoryEntry, error) {
	storageKey := memoryKey(ownerAgentID, memoryType, scope, key)
	now := m.now()

	m.mu.Lock()
	if cached, ok := m.cache[storageKey]; ok {
		if cached.Expired(now) {
			delete(m.cache, storageKey)
		} else {
			cached.AccessCount++
			cached.UpdatedAt = now
			snapshot := *cached
			m.mu.Unlock()

			m.statsMu.Lock()
			m.cacheHits++
			m.entriesRetrieved++
			m.statsMu.Unlock()
			return &snapshot, nil
		}
	}
	m.mu.Unlock()

	m.statsMu.Lock()
	m.cacheMisses++
	m.statsMu.Unlock()

	data, err := m.backend.Retrieve(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var entry MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry %s: %w", storageKey, err)
	}
	if entry.Expired(now) {
		_, _ = m.backend.Delete(ctx, storageKey)
		return nil, nil
	}

	entry.AccessCount++
	entry.UpdatedAt = now

	m.mu.Lock()
	m.cache[storageKey] = &entry
	m.mu.Unlock()

	if updated, err := json.Marshal(&entry); err == nil {
		if err := m.backend.Store(ctx, storageKey, updated, remainingTTL(&entry, now)); err != nil {
			m.log.ErrorWithErr(ownerAgentID, "", "Failed to write back access count", err, map[string]interface{}{
				"key": storageKey,
			})
		}
	}

	m.statsMu.Lock()
	m.entriesRetrieved++
	m.statsMu.Unlock()

	snapshot := entry
	return &snapshot, nil
}

// remainingTTL preserves an entry's original expiry across a rewrite
func remainingTTL(entry *MemoryEntry, now time.Time) time.Duration {
	if entry.ExpiresAt == nil {
		return 0
	}
	remaining := entry.ExpiresAt.Sub(now)
	if remaining < time.Second {
		remaining = time.Second
	}
	return remaining
}

// SearchMemories pattern-matches backend keys for the given owner, with
// optional type/scope filters (empty means any), and returns up to limit
// live entries. Expired entries found along the way are deleted.
func (m *Manager) SearchMemories(ctx context.Context, ownerAgentID string, memoryType MemoryType, scope MemoryScope, keyPattern string, limit int) ([]*MemoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if keyPattern == "" {
		keyPattern = "*"
	}

	typeGlob := "*"
	if memoryType != "" {
		typeGlob = string(memoryType)
	}
	scopeGlob := "*"
	if scope != "" {
		scopeGlob = string(scope)
	}

	pattern := fmt.Sprintf("memory:%s:%s:%s:%s", ownerAgentID, typeGlob, scopeGlob, keyPattern)
	keys, err := m.backend.Keys(ctx, pattern)
	if err != nil {
		return nil, err
	}

	now := m.now()
	results := make([]*MemoryEntry, 0, limit)
	for _, storageKey := range keys {
		if len(results) >= limit {
			break
		}
		data, err := m.backend.Retrieve(ctx, storageKey)
		if err != nil || data == nil {
			continue
		}
		var entry MemoryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.Expired(now) {
			_, _ = m.backend.Delete(ctx, storageKey)
			m.mu.Lock()
			delete(m.cache, storageKey)
			m.mu.Unlock()
			continue
		}
		results = append(results, &entry)
	}
	return results, nil
}

// DeleteMemory removes an entry from both the backend and the local
// cache, reporting whether anything was removed.
func (m *Manager) DeleteMemory(ctx context.Context, ownerAgentID string, memoryType MemoryType, scope MemoryScope, key string) (bool, error) {
	storageKey := memoryKey(ownerAgentID, memoryType, scope, key)

	m.mu.Lock()
	_, cached := m.cache[storageKey]
	delete(m.cache, storageKey)
	m.mu.Unlock()

	removed, err := m.backend.Delete(ctx, storageKey)
	if err != nil {
		return false, err
	}
	return removed || cached, nil
}

// ShareKnowledge publishes an insight to the knowledge queue. A nil
// targetAgentIDs means broadcast to all agents.
func (m *Manager) ShareKnowledge(ctx context.Context, senderAgentID, knowledgeType string, content map[string]interface{}, targetAgentIDs []string) error {
	envelope := KnowledgeEnvelope{
		Kind:    KindKnowledgeShare,
		Targets: targetAgentIDs,
		Knowledge: &KnowledgePayload{
			SenderAgentID: senderAgentID,
			KnowledgeType: knowledgeType,
			Content:       content,
			SharedAt:      m.now(),
		},
	}
	if err := m.queue.Send(ctx, envelope, 0); err != nil {
		return fmt.Errorf("failed to share knowledge: %w", err)
	}

	m.log.Debug(senderAgentID, "", "Knowledge shared", map[string]interface{}{
		"knowledge_type": knowledgeType,
		"broadcast":      len(targetAgentIDs) == 0,
	})
	return nil
}

// ReceiveSharedKnowledge drains available queue messages for agentID and
// returns the envelopes addressed to it or broadcast. Every inspected
// message is acknowledged, relevant or not: a broadcast is expected to
// have been fanned out to all interested readers already, so nothing is
// requeued.
func (m *Manager) ReceiveSharedKnowledge(ctx context.Context, agentID string) ([]KnowledgeEnvelope, error) {
	relevant := make([]KnowledgeEnvelope, 0)

	// The first batch honors the configured wait; follow-up batches poll
	// without waiting so a drained queue returns promptly.
	wait := m.cfg.ReceiveWait()
	for {
		messages, err := m.queue.Receive(ctx, 10, wait)
		if err != nil {
			return nil, fmt.Errorf("failed to receive knowledge: %w", err)
		}
		if len(messages) == 0 {
			return relevant, nil
		}

		for _, msg := range messages {
			if err := m.queue.Delete(ctx, msg.Receipt); err != nil {
				m.log.ErrorWithErr(agentID, "", "Failed to acknowledge message", err, map[string]interface{}{
					"message_id": msg.ID,
				})
			}
			if msg.Body.AddressedTo(agentID) {
				relevant = append(relevant, msg.Body)
			}
		}
		wait = 0
	}
}

// GetMemoryStats returns a snapshot of the manager's counters
func (m *Manager) GetMemoryStats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	stats := Stats{
		EntriesStored:    m.entriesStored,
		EntriesRetrieved: m.entriesRetrieved,
		CacheHits:        m.cacheHits,
		CacheMisses:      m.cacheMisses,
		PatternsLearned:  m.patternsLearned,
		PatternsApplied:  m.patternsApplied,
	}
	if total := stats.CacheHits + stats.CacheMisses; total > 0 {
		stats.CacheHitRate = float64(stats.CacheHits) / float64(total)
	}
	return stats
}

// expirySweepWorker periodically removes expired entries from the local
// cache and the backend.
func (m *Manager) expirySweepWorker() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepExpired(context.Background())
		}
	}
}

// sweepExpired removes all expired memory entries. The backend pass keys
// over "memory:*" only; the pattern index is maintained by the decay
// worker instead.
func (m *Manager) sweepExpired(ctx context.Context) {
	now := m.now()

	m.mu.Lock()
	for key, entry := range m.cache {
		if entry.Expired(now) {
			delete(m.cache, key)
		}
	}
	m.mu.Unlock()

	keys, err := m.backend.Keys(ctx, "memory:*")
	if err != nil {
		m.log.ErrorWithErr("", "", "Expiry sweep failed to list keys", err, nil)
		return
	}

	removed := 0
	for _, storageKey := range keys {
		data, err := m.backend.Retrieve(ctx, storageKey)
		if err != nil || data == nil {
			continue
		}
		var entry MemoryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if entry.Expired(now) {
			if ok, _ := m.backend.Delete(ctx, storageKey); ok {
				removed++
			}
		}
	}

	if removed > 0 {
		m.log.Info("", "", "Expiry sweep removed entries", map[string]interface{}{
			"removed": removed,
		})
	}
}

// patternMaintenanceWorker periodically decays and prunes stale patterns
func (m *Manager) patternMaintenanceWorker() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PatternMaintenanceInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.decayPatterns(context.Background())
		}
	}
}
