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

package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"venturescope/platform/shared/config"
)

func newTestManager(maxSessions int) *Manager {
	cfg := config.Default().Session
	cfg.MaxActiveSessions = maxSessions
	return NewManager(cfg)
}

func TestCreate_Defaults(t *testing.T) {
	m := newTestManager(10)

	s, err := m.Create("market_analyst", "owner-1", map[string]interface{}{"seed": 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if s.Status != StatusCreated {
		t.Errorf("expected status created, got %s", s.Status)
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		t.Error("expires_at must be after created_at")
	}
	if s.StateData["seed"] != 1 {
		t.Error("metadata must seed state_data")
	}
}

func TestCreate_CapacityError(t *testing.T) {
	m := newTestManager(2)

	if _, err := m.Create("a", "o", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := m.Create("a", "o", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = m.Create("a", "o", nil)
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}

	// A terminal session frees capacity
	if !m.Terminate(second.ID) {
		t.Fatal("terminate failed")
	}
	if _, err := m.Create("a", "o", nil); err != nil {
		t.Errorf("expected capacity after termination, got %v", err)
	}
}

func TestCreate_CapacityUnderConcurrency(t *testing.T) {
	const limit = 20
	m := newTestManager(limit)

	var wg sync.WaitGroup
	created := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Create("a", "o", nil); err == nil {
				created <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(created)

	count := 0
	for range created {
		count++
	}
	if count != limit {
		t.Errorf("expected exactly %d creations, got %d", limit, count)
	}
}

func TestUpdateStatusAndState(t *testing.T) {
	m := newTestManager(10)
	s, _ := m.Create("a", "o", nil)

	if !m.UpdateStatus(s.ID, StatusRunning, map[string]interface{}{"step": "analyze"}) {
		t.Fatal("update status failed")
	}
	got := m.Get(s.ID)
	if got.Status != StatusRunning || got.StateData["step"] != "analyze" {
		t.Errorf("unexpected session: %+v", got)
	}

	if !m.UpdateState(s.ID, map[string]interface{}{"step": "synthesize"}) {
		t.Fatal("update state failed")
	}
	got = m.Get(s.ID)
	if got.Status != StatusRunning {
		t.Error("update state must not change status")
	}
	if got.StateData["step"] != "synthesize" {
		t.Error("patch must merge into state_data")
	}

	// Unknown ids report false, never an error
	if m.UpdateStatus("missing", StatusRunning, nil) {
		t.Error("expected false for unknown id")
	}
	if m.UpdateState("missing", nil) {
		t.Error("expected false for unknown id")
	}
}

func TestTerminateKeepsRecord(t *testing.T) {
	m := newTestManager(10)
	s, _ := m.Create("a", "o", nil)

	if !m.Terminate(s.ID) {
		t.Fatal("terminate failed")
	}
	got := m.Get(s.ID)
	if got == nil {
		t.Fatal("terminated session must remain until cleanup or expiry")
	}
	if got.Status != StatusTerminated {
		t.Errorf("expected terminated, got %s", got.Status)
	}

	if !m.Cleanup(s.ID) {
		t.Fatal("cleanup failed")
	}
	if m.Get(s.ID) != nil {
		t.Error("expected nil after cleanup")
	}
	if m.Cleanup(s.ID) {
		t.Error("expected false for repeated cleanup")
	}
}

func TestExpiryAndExtend(t *testing.T) {
	m := newTestManager(10)

	now := time.Now()
	m.now = func() time.Time { return now }

	s, _ := m.Create("a", "o", nil)

	// Past expiry the session is invisible and eagerly evicted
	now = now.Add(m.cfg.DefaultTTL() + time.Second)
	if m.Get(s.ID) != nil {
		t.Fatal("expected nil for expired session")
	}

	// Extend keeps a session alive past the default TTL
	now = time.Now()
	s2, _ := m.Create("a", "o", nil)
	if !m.Extend(s2.ID, time.Hour) {
		t.Fatal("extend failed")
	}
	now = now.Add(m.cfg.DefaultTTL() + 30*time.Minute)
	if m.Get(s2.ID) == nil {
		t.Error("expected extended session to survive")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	m := newTestManager(10)

	now := time.Now()
	m.now = func() time.Time { return now }

	s, _ := m.Create("a", "o", nil)
	now = now.Add(m.cfg.DefaultTTL() + time.Second)

	m.sweepExpired()

	m.mu.RLock()
	_, exists := m.sessions[s.ID]
	m.mu.RUnlock()
	if exists {
		t.Error("expected sweep to physically remove the record")
	}
}

func TestListFilters(t *testing.T) {
	m := newTestManager(10)

	a1, _ := m.Create("market_analyst", "owner-1", nil)
	_, _ = m.Create("market_analyst", "owner-2", nil)
	_, _ = m.Create("competitor_scout", "owner-1", nil)
	m.UpdateStatus(a1.ID, StatusRunning, nil)

	if got := len(m.List(Filter{})); got != 3 {
		t.Errorf("expected 3 sessions, got %d", got)
	}
	if got := len(m.List(Filter{OwnerID: "owner-1"})); got != 2 {
		t.Errorf("expected 2 for owner-1, got %d", got)
	}
	// Filters combine with AND semantics
	if got := len(m.List(Filter{OwnerID: "owner-1", AgentType: "market_analyst", Status: StatusRunning})); got != 1 {
		t.Errorf("expected 1 combined match, got %d", got)
	}
	if got := len(m.List(Filter{OwnerID: "owner-1", Status: StatusPaused})); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestCountByStatus_IncludesZeroCounts(t *testing.T) {
	m := newTestManager(10)

	s, _ := m.Create("a", "o", nil)
	m.UpdateStatus(s.ID, StatusRunning, nil)
	_, _ = m.Create("a", "o", nil)

	counts := m.CountByStatus()
	if len(counts) != len(allStatuses) {
		t.Errorf("expected every status present, got %d entries", len(counts))
	}
	if counts[StatusRunning] != 1 || counts[StatusCreated] != 1 {
		t.Errorf("unexpected counts: %+v", counts)
	}
	if counts[StatusFailed] != 0 {
		t.Errorf("expected zero count for failed, got %d", counts[StatusFailed])
	}
}

func TestStartStop(t *testing.T) {
	m := newTestManager(10)
	m.Start()
	m.Stop()

	// A second Stop is a no-op, not a panic
	m.Stop()
}
