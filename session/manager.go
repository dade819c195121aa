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
	"time"

	"github.com/google/uuid"

	"venturescope/platform/shared/config"
	"venturescope/platform/shared/logger"
)

// Status is the lifecycle state of a session
type Status string

const (
	StatusCreated      Status = "created"
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusPaused       Status = "paused"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusTerminated   Status = "terminated"
)

// allStatuses is used to report zero counts for empty statuses
var allStatuses = []Status{
	StatusCreated, StatusInitializing, StatusRunning, StatusPaused,
	StatusCompleted, StatusFailed, StatusTerminated,
}

// Terminal reports whether the status counts against the active-session
// capacity limit. Terminal sessions stay in the table until cleanup or
// expiry but no longer consume capacity.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	default:
		return false
	}
}

// ErrCapacity is returned by Create when the non-terminal session count
// has reached the configured maximum. It is the only error a caller sees
// from this package: capacity is actionable backpressure, while unknown
// ids are benign races with expiry and reported as false instead.
var ErrCapacity = errors.New("session capacity reached")

// Session is one bounded execution context for an agent invocation
type Session struct {
	ID        string                 `json:"id"`
	AgentType string                 `json:"agent_type"`
	OwnerID   string                 `json:"owner_id"`
	Status    Status                 `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	ExpiresAt time.Time              `json:"expires_at"`
	StateData map[string]interface{} `json:"state_data"`
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) clone() *Session {
	copied := *s
	copied.StateData = make(map[string]interface{}, len(s.StateData))
	for k, v := range s.StateData {
		copied.StateData[k] = v
	}
	return &copied
}

// Filter selects sessions in List. Empty fields match everything;
// provided fields are combined with AND semantics.
type Filter struct {
	OwnerID   string
	AgentType string
	Status    Status
}

func (f Filter) matches(s *Session) bool {
	if f.OwnerID != "" && s.OwnerID != f.OwnerID {
		return false
	}
	if f.AgentType != "" && s.AgentType != f.AgentType {
		return false
	}
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	return true
}

// Manager issues, mutates, and reaps sessions, enforcing a maximum number
// of concurrently non-terminal sessions. All operations on unknown ids
// return false rather than an error.
type Manager struct {
	cfg config.SessionConfig
	log *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	now func() time.Time

	sweepOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates a session manager. Call Start to begin the expiry
// sweep.
func NewManager(cfg config.SessionConfig) *Manager {
	return &Manager{
		cfg:      cfg,
		log:      logger.New("session-manager"),
		sessions: make(map[string]*Session),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Create allocates a new session in status created with the default TTL.
// Returns ErrCapacity if the non-terminal session count is already at the
// configured maximum; the check and the insert happen under one lock so
// concurrent creators cannot overshoot the limit.
func (m *Manager) Create(agentType, ownerID string, metadata map[string]interface{}) (*Session, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	active := 0
	for _, s := range m.sessions {
		if !s.Status.Terminal() && !s.expired(now) {
			active++
		}
	}
	if active >= m.cfg.MaxActiveSessions {
		return nil, ErrCapacity
	}

	stateData := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		stateData[k] = v
	}

	session := &Session{
		ID:        uuid.New().String(),
		AgentType: agentType,
		OwnerID:   ownerID,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.cfg.DefaultTTL()),
		StateData: stateData,
	}
	m.sessions[session.ID] = session

	m.log.Debug("", "", "Session created", map[string]interface{}{
		"session_id": session.ID,
		"agent_type": agentType,
		"owner_id":   ownerID,
	})
	return session.clone(), nil
}

// UpdateStatus sets a session's status and optionally merges a state
// patch, reporting false for unknown ids.
func (m *Manager) UpdateStatus(id string, status Status, patch map[string]interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return false
	}
	session.Status = status
	for k, v := range patch {
		session.StateData[k] = v
	}
	session.UpdatedAt = m.now()
	return true
}

// UpdateState merges a patch into a session's state data without changing
// its status, reporting false for unknown ids.
func (m *Manager) UpdateState(id string, patch map[string]interface{}) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return false
	}
	for k, v := range patch {
		session.StateData[k] = v
	}
	session.UpdatedAt = m.now()
	return true
}

// Terminate marks a session terminated without removing the record
func (m *Manager) Terminate(id string) bool {
	return m.UpdateStatus(id, StatusTerminated, nil)
}

// Cleanup removes a session record entirely regardless of status
func (m *Manager) Cleanup(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Extend pushes a session's expiry forward by the given duration
func (m *Manager) Extend(id string, by time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return false
	}
	session.ExpiresAt = session.ExpiresAt.Add(by)
	session.UpdatedAt = m.now()
	return true
}

// Get returns a snapshot of a session, or nil if the id is unknown or the
// session has expired. Expired sessions found here are removed eagerly
// rather than waiting for the next sweep.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if session.expired(m.now()) {
		delete(m.sessions, id)
		return nil
	}
	return session.clone()
}

// List returns snapshots of all live sessions matching the filter
func (m *Manager) List(filter Filter) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	out := make([]*Session, 0)
	for _, session := range m.sessions {
		if session.expired(now) {
			continue
		}
		if filter.matches(session) {
			out = append(out, session.clone())
		}
	}
	return out
}

// CountByStatus returns live session counts grouped by status. Statuses
// with no sessions are included with a zero count.
func (m *Manager) CountByStatus() map[Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		counts[status] = 0
	}

	now := m.now()
	for _, session := range m.sessions {
		if session.expired(now) {
			continue
		}
		counts[session.Status]++
	}
	return counts
}

// Start begins the periodic expiry sweep. Safe to call once.
func (m *Manager) Start() {
	m.sweepOnce.Do(func() {
		m.wg.Add(1)
		go m.sweepWorker()
	})
}

// Stop cancels the sweep and waits for any in-flight tick to finish.
// Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepExpired()
		}
	}
}

// sweepExpired physically removes sessions whose expiry has passed
func (m *Manager) sweepExpired() {
	now := m.now()

	m.mu.Lock()
	removed := 0
	for id, session := range m.sessions {
		if session.expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	m.mu.Unlock()

	if removed > 0 {
		m.log.Info("", "", "Expired sessions removed", map[string]interface{}{
			"removed": removed,
		})
	}
}
