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
	"sync"
	"time"

	"github.com/google/uuid"
)

// MessageKind discriminates the knowledge queue's message union so
// consumers can match on the kind instead of probing map keys.
type MessageKind string

const (
	// KindKnowledgeShare carries an explicit agent-to-agents insight
	KindKnowledgeShare MessageKind = "knowledge_share"
	// KindMemoryAnnouncement carries a non-private memory entry written
	// through the manager, fanned out so readers need not poll the backend
	KindMemoryAnnouncement MessageKind = "memory_announcement"
)

// KnowledgePayload is the body of a knowledge_share message
type KnowledgePayload struct {
	SenderAgentID string                 `json:"sender_agent_id"`
	KnowledgeType string                 `json:"knowledge_type"`
	Content       map[string]interface{} `json:"content"`
	SharedAt      time.Time              `json:"shared_at"`
}

// MemoryAnnouncement is the body of a memory_announcement message
type MemoryAnnouncement struct {
	EntryID      string      `json:"entry_id"`
	OwnerAgentID string      `json:"owner_agent_id"`
	MemoryType   MemoryType  `json:"memory_type"`
	Scope        MemoryScope `json:"scope"`
	Key          string      `json:"key"`
	Value        interface{} `json:"value"`
}

// KnowledgeEnvelope is the tagged union flowing through the queue.
// Exactly one of Knowledge/Memory is set, selected by Kind. A nil
// Targets slice means broadcast to all agents.
type KnowledgeEnvelope struct {
	Kind      MessageKind         `json:"kind"`
	Targets   []string            `json:"targets,omitempty"`
	Knowledge *KnowledgePayload   `json:"knowledge,omitempty"`
	Memory    *MemoryAnnouncement `json:"memory,omitempty"`
}

// AddressedTo reports whether the envelope is for the given agent,
// either directly or via broadcast.
func (e KnowledgeEnvelope) AddressedTo(agentID string) bool {
	if len(e.Targets) == 0 {
		return true
	}
	for _, target := range e.Targets {
		if target == agentID {
			return true
		}
	}
	return false
}

// QueueMessage is one received queue message. Receipt must be passed back
// to Delete to acknowledge; unacknowledged messages are redelivered
// (at-least-once), so consumers must tolerate duplicates.
type QueueMessage struct {
	ID      string
	Receipt string
	Body    KnowledgeEnvelope
}

// KnowledgeQueue is the at-least-once message queue contract used for
// asynchronous knowledge sharing between agents.
type KnowledgeQueue interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, envelope KnowledgeEnvelope, delay time.Duration) error
	Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]QueueMessage, error)
	Delete(ctx context.Context, receipt string) error
}

// inMemoryVisibilityTimeout mirrors the redelivery window of the
// distributed queue: messages received but not deleted become visible
// again after this long.
const inMemoryVisibilityTimeout = 30 * time.Second

type queuedMessage struct {
	id            string
	envelope      KnowledgeEnvelope
	visibleAt     time.Time
	receipt       string
	inFlightUntil time.Time
}

// InMemoryQueue is the single-node KnowledgeQueue implementation. It
// reproduces the distributed queue's semantics (delays, receipts,
// redelivery of unacknowledged messages) so manager behavior is identical
// across deployment modes.
type InMemoryQueue struct {
	mu       sync.Mutex
	messages []*queuedMessage
	now      func() time.Time
}

// NewInMemoryQueue creates an empty in-process queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{now: time.Now}
}

// Connect is a no-op for the in-process queue
func (q *InMemoryQueue) Connect(ctx context.Context) error { return nil }

// Disconnect drops all pending messages
func (q *InMemoryQueue) Disconnect(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = nil
	return nil
}

// Send enqueues an envelope, optionally delaying its first delivery
func (q *InMemoryQueue) Send(ctx context.Context, envelope KnowledgeEnvelope, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.messages = append(q.messages, &queuedMessage{
		id:        uuid.New().String(),
		envelope:  envelope,
		visibleAt: q.now().Add(delay),
	})
	return nil
}

// Receive returns up to maxMessages visible messages, polling until wait
// elapses if none are immediately available. Received messages are hidden
// until deleted or until the visibility timeout passes.
func (q *InMemoryQueue) Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]QueueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	deadline := q.now().Add(wait)

	for {
		if batch := q.claimVisible(maxMessages); len(batch) > 0 {
			return batch, nil
		}
		if !q.now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (q *InMemoryQueue) claimVisible(maxMessages int) []QueueMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	batch := make([]QueueMessage, 0, maxMessages)
	for _, msg := range q.messages {
		if len(batch) >= maxMessages {
			break
		}
		if now.Before(msg.visibleAt) || now.Before(msg.inFlightUntil) {
			continue
		}
		msg.receipt = uuid.New().String()
		msg.inFlightUntil = now.Add(inMemoryVisibilityTimeout)
		batch = append(batch, QueueMessage{
			ID:      msg.id,
			Receipt: msg.receipt,
			Body:    msg.envelope,
		})
	}
	return batch
}

// Delete acknowledges a received message by its receipt. Unknown receipts
// are ignored: the message may have timed out and been redelivered.
func (q *InMemoryQueue) Delete(ctx context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, msg := range q.messages {
		if msg.receipt == receipt {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len reports the number of messages held, visible or not
func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
