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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"venturescope/platform/memory"
	"venturescope/platform/shared/config"
	"venturescope/platform/shared/logger"
	"venturescope/platform/shared/types"
)

// Phase is one stage of the workflow state machine. Phases advance in
// strict order and are never skipped or revisited; failed is absorbing.
type Phase string

const (
	PhaseInitialization    Phase = "initialization"
	PhaseTaskDistribution  Phase = "task_distribution"
	PhaseParallelExecution Phase = "parallel_execution"
	PhaseSynthesis         Phase = "synthesis"
	PhaseCompleted         Phase = "completed"
	PhaseFailed            Phase = "failed"
)

// Terminal reports whether the phase ends the workflow
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Workflow is one multi-agent run for a validation request. Mutated only
// by the Supervisor as phases advance.
type Workflow struct {
	ID            string
	OwnerID       string
	Request       *types.ValidationRequest
	Phase         Phase
	Progress      float64
	AgentCount    int
	ErrorCount    int
	Results       map[string]*types.AgentResult
	SharedContext map[string]interface{}
	Result        *types.ValidationResult
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WorkflowStatus is the externally observable state of a workflow
type WorkflowStatus struct {
	WorkflowID string  `json:"workflow_id"`
	Phase      Phase   `json:"phase"`
	Progress   float64 `json:"progress"`
	ErrorCount int     `json:"error_count"`
	AgentCount int     `json:"agent_count"`
}

// AgentMessage is a point-to-point hand-off between two agents in the
// same workflow. Delivery is best-effort: a full inbox drops the message
// rather than blocking the sender.
type AgentMessage struct {
	SenderID    string                 `json:"sender_id"`
	RecipientID string                 `json:"recipient_id"`
	MessageType string                 `json:"message_type"`
	Content     map[string]interface{} `json:"content"`
	Priority    int                    `json:"priority"`
	SentAt      time.Time              `json:"sent_at"`
}

// maxInboxSize bounds per-agent message inboxes
const maxInboxSize = 100

// AgentInvoker executes one agent's analysis task. Implementations call
// out to the external reasoning service; the Supervisor only depends on
// this interface.
type AgentInvoker interface {
	Invoke(ctx context.Context, agent *AgentRegistration, request *types.ValidationRequest, insights map[string]interface{}) (*types.AgentResult, error)
}

// Supervisor orchestrates multi-agent validation workflows: it owns the
// agent registry, drives each workflow through its phases, relays agent
// messages, and runs the market monitoring loop.
type Supervisor struct {
	cfg     config.WorkflowConfig
	log     *logger.Logger
	agents  *registry
	memory  *memory.Manager
	invoker AgentInvoker
	monitor *Monitor

	mu        sync.RWMutex
	workflows map[string]*Workflow
	inboxes   map[string][]AgentMessage

	now func() time.Time
}

// NewSupervisor creates a Supervisor. The memory manager is used to seed
// workflows with learned pattern insights and to record new patterns on
// completion; invoker performs the actual agent calls.
func NewSupervisor(cfg config.WorkflowConfig, monitoringCfg config.MonitoringConfig, mem *memory.Manager, invoker AgentInvoker, journal *AlertJournal) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		log:       logger.New("supervisor"),
		agents:    newRegistry(),
		memory:    mem,
		invoker:   invoker,
		workflows: make(map[string]*Workflow),
		inboxes:   make(map[string][]AgentMessage),
		now:       time.Now,
	}
	s.monitor = newMonitor(monitoringCfg, s, journal)
	return s
}

// Monitor returns the supervisor's monitoring loop
func (s *Supervisor) Monitor() *Monitor {
	return s.monitor
}

// RegisterAgent upserts an agent into the registry. Idempotent:
// re-registration with the same id updates capabilities and never fails.
func (s *Supervisor) RegisterAgent(agentID, agentType string, capabilities []string) bool {
	s.agents.register(agentID, agentType, capabilities)
	s.log.Info(agentID, "", "Agent registered", map[string]interface{}{
		"agent_type":   agentType,
		"capabilities": capabilities,
	})
	return true
}

// StartWorkflow creates a workflow at phase initialization and advances
// it asynchronously through the remaining phases. The run is bounded by
// the configured maximum execution time, detached from the caller's
// context so the caller returning does not cancel the workflow.
func (s *Supervisor) StartWorkflow(ownerID string, request *types.ValidationRequest) (string, error) {
	if request == nil || request.BusinessConcept == "" {
		return "", fmt.Errorf("validation request requires a business concept")
	}

	now := s.now()
	workflow := &Workflow{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		Request:       request,
		Phase:         PhaseInitialization,
		Results:       make(map[string]*types.AgentResult),
		SharedContext: make(map[string]interface{}),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	s.mu.Lock()
	s.workflows[workflow.ID] = workflow
	s.mu.Unlock()

	workflowsStarted.Inc()
	s.log.Info("", workflow.ID, "Workflow started", map[string]interface{}{
		"owner_id":      ownerID,
		"target_market": request.TargetMarket,
	})

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MaxExecution())
		defer cancel()
		s.run(ctx, workflow.ID)
	}()

	return workflow.ID, nil
}

// run drives one workflow through its phases
func (s *Supervisor) run(ctx context.Context, workflowID string) {
	started := s.now()

	request := s.workflowRequest(workflowID)
	if request == nil {
		return
	}

	// initialization: seed shared context with insights from previously
	// learned patterns for the same or similar concepts
	insights := s.collectPatternInsights(request)
	if len(insights) > 0 {
		s.updateWorkflow(workflowID, func(w *Workflow) {
			w.SharedContext["pattern_insights"] = insights
		})
	}

	// task_distribution: select agents whose capabilities match the
	// requested analysis scopes
	s.setPhase(workflowID, PhaseTaskDistribution)
	selected := s.agents.matchCapabilities(request.AnalysisScopes)
	if len(selected) == 0 {
		s.failWorkflow(workflowID, "no registered agents match the requested analysis scopes")
		return
	}
	s.updateWorkflow(workflowID, func(w *Workflow) {
		w.AgentCount = len(selected)
	})

	// parallel_execution: invoke every selected agent concurrently and
	// collect results as they arrive
	s.setPhase(workflowID, PhaseParallelExecution)
	s.executeAgents(ctx, workflowID, request, selected, insights)

	// A workflow that ran past its maximum execution time fails outright;
	// whatever results came back before the deadline are not synthesized.
	if ctx.Err() != nil {
		s.failWorkflow(workflowID, fmt.Sprintf("workflow exceeded maximum execution time of %s", s.cfg.MaxExecution()))
		return
	}

	// synthesis: combine whatever subset succeeded into one result, or
	// fail if too many agents failed
	s.setPhase(workflowID, PhaseSynthesis)
	result, err := s.synthesize(workflowID, request)
	if err != nil {
		s.failWorkflow(workflowID, err.Error())
		return
	}
	if ctx.Err() != nil {
		s.failWorkflow(workflowID, fmt.Sprintf("workflow exceeded maximum execution time of %s", s.cfg.MaxExecution()))
		return
	}

	// Pattern learning gets its own context: the workflow deadline may be
	// about to expire, and a pattern store must not fail because the run
	// finished close to it.
	learnCtx, cancelLearn := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelLearn()
	if _, err := s.memory.LearnValidationPattern(learnCtx, request, result); err != nil {
		s.log.ErrorWithErr("", workflowID, "Failed to learn pattern from result", err, nil)
	}

	s.updateWorkflow(workflowID, func(w *Workflow) {
		w.Result = result
		w.Phase = PhaseCompleted
		w.Progress = 1.0
	})

	workflowsCompleted.Inc()
	workflowDuration.Observe(s.now().Sub(started).Seconds())
	s.log.InfoWithDuration("", workflowID, "Workflow completed",
		float64(s.now().Sub(started).Milliseconds()), map[string]interface{}{
			"overall_score": result.OverallScore,
			"failed_agents": len(result.FailedAgents),
		})
}

// collectPatternInsights gathers insight bundles from patterns matching
// the request, marking each pattern as used.
func (s *Supervisor) collectPatternInsights(request *types.ValidationRequest) []map[string]interface{} {
	patterns := s.memory.FindSimilarPatterns(request.BusinessConcept, request.TargetMarket, 3)
	insights := make([]map[string]interface{}, 0, len(patterns))
	for _, pattern := range patterns {
		insight, err := s.memory.ApplyPatternInsights(pattern.PatternID, request)
		if err != nil {
			continue
		}
		insights = append(insights, insight)
	}
	return insights
}

// executeAgents fans out one task per agent and waits for all to finish.
// A single agent failure increments error_count but never aborts the
// workflow; the failure threshold is evaluated later, at synthesis.
func (s *Supervisor) executeAgents(ctx context.Context, workflowID string, request *types.ValidationRequest, selected []*AgentRegistration, insights []map[string]interface{}) {
	var wg sync.WaitGroup
	total := len(selected)

	var insightBundle map[string]interface{}
	if len(insights) > 0 {
		insightBundle = map[string]interface{}{"patterns": insights}
	}

	for _, agent := range selected {
		wg.Add(1)
		go func(agent *AgentRegistration) {
			defer wg.Done()

			taskCtx, cancel := context.WithTimeout(ctx, s.cfg.AgentTaskTimeout())
			defer cancel()

			taskStart := s.now()
			result, err := s.invoker.Invoke(taskCtx, agent, request, insightBundle)
			if err != nil {
				result = &types.AgentResult{
					AgentID:   agent.AgentID,
					AgentType: agent.AgentType,
					Error:     err.Error(),
				}
			}
			if result.AgentID == "" {
				result.AgentID = agent.AgentID
			}
			if result.DurationMS == 0 {
				result.DurationMS = s.now().Sub(taskStart).Milliseconds()
			}

			outcome := "success"
			if !result.Succeeded() {
				outcome = "failure"
			}
			agentInvocations.WithLabelValues(agent.AgentType, outcome).Inc()

			s.updateWorkflow(workflowID, func(w *Workflow) {
				w.Results[agent.AgentID] = result
				if !result.Succeeded() {
					w.ErrorCount++
				}
				// Progress tracks the fraction of agents that have reported
				// a terminal result, saturating just below 1.0 until the
				// completed phase sets it exactly.
				progress := 0.95 * float64(len(w.Results)) / float64(total)
				if progress > w.Progress {
					w.Progress = progress
				}
			})

			if !result.Succeeded() {
				s.log.Warn(agent.AgentID, workflowID, "Agent task failed", map[string]interface{}{
					"error": result.Error,
				})
			}
		}(agent)
	}

	wg.Wait()
}

// synthesize combines per-agent outputs into one ValidationResult. The
// workflow fails here if no agent succeeded or the failure ratio exceeds
// the configured threshold.
func (s *Supervisor) synthesize(workflowID string, request *types.ValidationRequest) (*types.ValidationResult, error) {
	s.mu.RLock()
	workflow, ok := s.workflows[workflowID]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("workflow vanished during synthesis")
	}

	results := make(map[string]*types.AgentResult, len(workflow.Results))
	for id, r := range workflow.Results {
		results[id] = r
	}
	agentCount := workflow.AgentCount
	errorCount := workflow.ErrorCount
	s.mu.RUnlock()

	successes := 0
	failed := make([]string, 0)
	var scoreSum float64
	for agentID, result := range results {
		if result.Succeeded() {
			successes++
			scoreSum += result.Score
		} else {
			failed = append(failed, agentID)
		}
	}

	if successes == 0 {
		return nil, fmt.Errorf("all %d agents failed", agentCount)
	}
	if agentCount > 0 {
		ratio := float64(errorCount) / float64(agentCount)
		if ratio > s.cfg.MaxAgentFailureRatio {
			return nil, fmt.Errorf("agent failure ratio %.2f exceeds threshold %.2f", ratio, s.cfg.MaxAgentFailureRatio)
		}
	}

	overall := scoreSum / float64(successes)
	return &types.ValidationResult{
		WorkflowID:   workflowID,
		RequestID:    request.RequestID,
		OverallScore: overall,
		AgentResults: results,
		FailedAgents: failed,
		Summary:      fmt.Sprintf("%d of %d agents scored %s at %.1f overall", successes, agentCount, request.TargetMarket, overall),
		CompletedAt:  s.now(),
	}, nil
}

// GetWorkflowStatus returns the observable state of a workflow, or nil
// for unknown ids.
func (s *Supervisor) GetWorkflowStatus(workflowID string) *WorkflowStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, ok := s.workflows[workflowID]
	if !ok {
		return nil
	}
	return &WorkflowStatus{
		WorkflowID: workflow.ID,
		Phase:      workflow.Phase,
		Progress:   workflow.Progress,
		ErrorCount: workflow.ErrorCount,
		AgentCount: workflow.AgentCount,
	}
}

// GetWorkflowResult returns the synthesized result of a completed
// workflow, or nil if the workflow is unknown or not yet completed.
func (s *Supervisor) GetWorkflowResult(workflowID string) *types.ValidationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflow, ok := s.workflows[workflowID]
	if !ok {
		return nil
	}
	return workflow.Result
}

// SendMessage relays a point-to-point message between two agents.
// Best-effort: returns false without blocking when the recipient's inbox
// is full.
func (s *Supervisor) SendMessage(senderID, recipientID, messageType string, content map[string]interface{}, priority int) bool {
	msg := AgentMessage{
		SenderID:    senderID,
		RecipientID: recipientID,
		MessageType: messageType,
		Content:     content,
		Priority:    priority,
		SentAt:      s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inbox := s.inboxes[recipientID]
	if len(inbox) >= maxInboxSize {
		return false
	}
	s.inboxes[recipientID] = append(inbox, msg)
	return true
}

// DrainMessages returns and clears an agent's inbox
func (s *Supervisor) DrainMessages(agentID string) []AgentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	inbox := s.inboxes[agentID]
	delete(s.inboxes, agentID)
	return inbox
}

// ActiveWorkflowCount returns the number of workflows not yet terminal
func (s *Supervisor) ActiveWorkflowCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, workflow := range s.workflows {
		if !workflow.Phase.Terminal() {
			active++
		}
	}
	return active
}

// RegisteredAgentCount returns the size of the agent registry
func (s *Supervisor) RegisteredAgentCount() int {
	return s.agents.count()
}

func (s *Supervisor) workflowRequest(workflowID string) *types.ValidationRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if workflow, ok := s.workflows[workflowID]; ok {
		return workflow.Request
	}
	return nil
}

func (s *Supervisor) setPhase(workflowID string, phase Phase) {
	s.updateWorkflow(workflowID, func(w *Workflow) {
		w.Phase = phase
	})
	s.log.Debug("", workflowID, "Workflow phase advanced", map[string]interface{}{
		"phase": string(phase),
	})
}

func (s *Supervisor) failWorkflow(workflowID, reason string) {
	s.updateWorkflow(workflowID, func(w *Workflow) {
		w.Phase = PhaseFailed
		w.FailureReason = reason
	})
	workflowsFailed.Inc()
	s.log.Error("", workflowID, "Workflow failed", map[string]interface{}{
		"reason": reason,
	})
}

func (s *Supervisor) updateWorkflow(workflowID string, mutate func(*Workflow)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if workflow, ok := s.workflows[workflowID]; ok {
		mutate(workflow)
		workflow.UpdatedAt = s.now()
	}
}
