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

package types

import "time"

// ValidationRequest describes one business-concept validation to be run
// through the multi-agent workflow. AnalysisScopes selects which agent
// capabilities the supervisor should dispatch (empty means all registered).
type ValidationRequest struct {
	RequestID       string                 `json:"request_id"`
	OwnerID         string                 `json:"owner_id"`
	BusinessConcept string                 `json:"business_concept"`
	TargetMarket    string                 `json:"target_market"`
	AnalysisScopes  []string               `json:"analysis_scopes,omitempty"`
	Context         map[string]interface{} `json:"context,omitempty"`
}

// AgentResult is the structured output of one agent invocation.
// Score is on a 0-100 scale.
type AgentResult struct {
	AgentID    string                 `json:"agent_id"`
	AgentType  string                 `json:"agent_type"`
	Score      float64                `json:"score"`
	Findings   map[string]interface{} `json:"findings,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
}

// Succeeded reports whether the agent produced a usable result
func (r *AgentResult) Succeeded() bool {
	return r != nil && r.Error == ""
}

// ValidationResult is the synthesized outcome of one workflow run.
// A partially failed workflow still produces a result built from the
// agents that succeeded; FailedAgents records which ones did not.
type ValidationResult struct {
	WorkflowID   string                  `json:"workflow_id"`
	RequestID    string                  `json:"request_id"`
	OverallScore float64                 `json:"overall_score"`
	AgentResults map[string]*AgentResult `json:"agent_results"`
	FailedAgents []string                `json:"failed_agents,omitempty"`
	Summary      string                  `json:"summary"`
	CompletedAt  time.Time               `json:"completed_at"`
}
