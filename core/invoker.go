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

package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"venturescope/platform/shared/types"
	"venturescope/platform/supervisor"
)

// agentTaskRequest is the wire payload sent to an agent's analyze endpoint
type agentTaskRequest struct {
	Request  *types.ValidationRequest `json:"request"`
	Insights map[string]interface{}   `json:"insights,omitempty"`
}

// HTTPAgentInvoker dispatches agent tasks over HTTP. Agents advertise an
// endpoint when they register; each task is one POST to that endpoint
// with the validation request and any pattern insights, returning a
// structured AgentResult.
type HTTPAgentInvoker struct {
	client *http.Client

	mu        sync.RWMutex
	endpoints map[string]string
}

// NewHTTPAgentInvoker creates an invoker with a shared HTTP client. The
// per-task deadline comes from the caller's context, so the client itself
// carries no timeout.
func NewHTTPAgentInvoker() *HTTPAgentInvoker {
	return &HTTPAgentInvoker{
		client:    &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 10, IdleConnTimeout: 90 * time.Second}},
		endpoints: make(map[string]string),
	}
}

// SetEndpoint records where an agent receives tasks. Called when the
// agent registers; re-registration overwrites.
func (i *HTTPAgentInvoker) SetEndpoint(agentID, endpoint string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.endpoints[agentID] = endpoint
}

// Invoke posts one task to the agent's endpoint and decodes the result
func (i *HTTPAgentInvoker) Invoke(ctx context.Context, agent *supervisor.AgentRegistration, request *types.ValidationRequest, insights map[string]interface{}) (*types.AgentResult, error) {
	i.mu.RLock()
	endpoint, ok := i.endpoints[agent.AgentID]
	i.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no endpoint registered for agent %s", agent.AgentID)
	}

	body, err := json.Marshal(agentTaskRequest{Request: request, Insights: insights})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build task request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent %s unreachable: %w", agent.AgentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent %s returned status %d", agent.AgentID, resp.StatusCode)
	}

	var result types.AgentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("agent %s returned an undecodable result: %w", agent.AgentID, err)
	}
	result.AgentID = agent.AgentID
	if result.AgentType == "" {
		result.AgentType = agent.AgentType
	}
	return &result, nil
}
