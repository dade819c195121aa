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

package supervisor

import (
	"sync"
	"time"
)

// AgentRegistration is a capability-tagged worker known to the Supervisor
type AgentRegistration struct {
	AgentID      string    `json:"agent_id"`
	AgentType    string    `json:"agent_type"`
	Capabilities []string  `json:"capabilities"`
	RegisteredAt time.Time `json:"registered_at"`
}

// HasCapability reports whether the agent advertises the given capability
func (r *AgentRegistration) HasCapability(capability string) bool {
	for _, c := range r.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// registry is the Supervisor's agent table. Registrations never expire;
// re-registering an id replaces its type and capabilities.
type registry struct {
	mu     sync.RWMutex
	agents map[string]*AgentRegistration
	now    func() time.Time
}

func newRegistry() *registry {
	return &registry{
		agents: make(map[string]*AgentRegistration),
		now:    time.Now,
	}
}

// register upserts an agent. Idempotent: re-registration updates the
// existing record and preserves its original registration time.
func (r *registry) register(agentID, agentType string, capabilities []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	caps := make([]string, len(capabilities))
	copy(caps, capabilities)

	if existing, ok := r.agents[agentID]; ok {
		existing.AgentType = agentType
		existing.Capabilities = caps
		return
	}

	r.agents[agentID] = &AgentRegistration{
		AgentID:      agentID,
		AgentType:    agentType,
		Capabilities: caps,
		RegisteredAt: r.now(),
	}
}

// get returns a snapshot of one registration, or nil if unknown
func (r *registry) get(agentID string) *AgentRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return nil
	}
	copied := *agent
	copied.Capabilities = append([]string(nil), agent.Capabilities...)
	return &copied
}

// matchCapabilities returns all agents advertising at least one of the
// requested capabilities. An empty request matches every agent.
func (r *registry) matchCapabilities(requested []string) []*AgentRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*AgentRegistration, 0)
	for _, agent := range r.agents {
		if len(requested) == 0 || anyCapability(agent, requested) {
			copied := *agent
			copied.Capabilities = append([]string(nil), agent.Capabilities...)
			matched = append(matched, &copied)
		}
	}
	return matched
}

func anyCapability(agent *AgentRegistration, requested []string) bool {
	for _, capability := range requested {
		if agent.HasCapability(capability) {
			return true
		}
	}
	return false
}

// count returns the number of registered agents
func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
