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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"venturescope/platform/shared/types"
)

// patternSuccessBar is the overall score at or above which a validation
// outcome is recorded with success indicators.
const patternSuccessBar = 70.0

// patternOwnerID owns the global-shared pattern memory entries
const patternOwnerID = "pattern-engine"

// patternIndexPrefix namespaces the persisted pattern index in the backend
const patternIndexPrefix = "patterns:index:"

// ValidationPattern is a learned association between a business-concept
// fingerprint and a prior analysis outcome. Patterns are reused to inform
// future analyses of the same or similar concepts.
type ValidationPattern struct {
	PatternID          string                 `json:"pattern_id"`
	ConceptFingerprint string                 `json:"concept_fingerprint"`
	TargetMarket       string                 `json:"target_market"`
	Outcome            map[string]interface{} `json:"outcome"`
	SuccessIndicators  []string               `json:"success_indicators,omitempty"`
	FailureIndicators  []string               `json:"failure_indicators,omitempty"`
	ConfidenceScore    float64                `json:"confidence_score"`
	UsageCount         int64                  `json:"usage_count"`
	CreatedAt          time.Time              `json:"created_at"`
	LastUsedAt         time.Time              `json:"last_used_at"`
}

// ConceptFingerprint computes the stable content fingerprint of a business
// concept. The text is case-normalized and trimmed first, so concepts
// differing only in letter case or surrounding whitespace fingerprint
// identically.
func ConceptFingerprint(conceptText string) string {
	normalized := strings.ToLower(strings.TrimSpace(conceptText))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// LearnValidationPattern records the outcome of a completed validation as
// a reusable pattern: in the in-memory index, in the persisted index, and
// as a global-shared pattern memory entry keyed by the fingerprint.
// Returns the new pattern's id.
func (m *Manager) LearnValidationPattern(ctx context.Context, request *types.ValidationRequest, result *types.ValidationResult) (string, error) {
	now := m.now()
	pattern := &ValidationPattern{
		PatternID:          uuid.New().String(),
		ConceptFingerprint: ConceptFingerprint(request.BusinessConcept),
		TargetMarket:       request.TargetMarket,
		Outcome: map[string]interface{}{
			"overall_score": result.OverallScore,
			"summary":       result.Summary,
			"agent_count":   len(result.AgentResults),
			"failed_agents": result.FailedAgents,
		},
		ConfidenceScore: result.OverallScore / 100.0,
		CreatedAt:       now,
		LastUsedAt:      now,
	}
	if pattern.ConfidenceScore > 1.0 {
		pattern.ConfidenceScore = 1.0
	}
	if pattern.ConfidenceScore < 0 {
		pattern.ConfidenceScore = 0
	}

	if result.OverallScore >= patternSuccessBar {
		pattern.SuccessIndicators = indicatorTags(result)
	} else {
		pattern.FailureIndicators = indicatorTags(result)
	}

	m.mu.Lock()
	m.patterns[pattern.PatternID] = pattern
	m.mu.Unlock()

	if err := m.persistPattern(ctx, pattern); err != nil {
		return "", err
	}

	if _, err := m.StoreMemory(ctx, patternOwnerID, MemoryTypePattern, ScopeGlobalShared,
		pattern.ConceptFingerprint, pattern, nil, 0, pattern.ConfidenceScore); err != nil {
		return "", fmt.Errorf("failed to store pattern memory entry: %w", err)
	}

	m.statsMu.Lock()
	m.patternsLearned++
	m.statsMu.Unlock()

	m.log.Info("", result.WorkflowID, "Validation pattern learned", map[string]interface{}{
		"pattern_id":    pattern.PatternID,
		"target_market": pattern.TargetMarket,
		"confidence":    pattern.ConfidenceScore,
	})
	return pattern.PatternID, nil
}

// indicatorTags derives per-agent outcome tags from a validation result
func indicatorTags(result *types.ValidationResult) []string {
	tags := make([]string, 0, len(result.AgentResults))
	for _, agentResult := range result.AgentResults {
		if agentResult.Succeeded() {
			tags = append(tags, fmt.Sprintf("%s:score=%.0f", agentResult.AgentType, agentResult.Score))
		} else {
			tags = append(tags, fmt.Sprintf("%s:failed", agentResult.AgentType))
		}
	}
	sort.Strings(tags)
	return tags
}

// FindSimilarPatterns returns up to limit patterns matching the concept.
// Exact fingerprint matches come first, ranked by usage count then
// confidence; if the fingerprint is unknown, same-target-market patterns
// are returned instead, ranked by confidence then usage count.
func (m *Manager) FindSimilarPatterns(conceptText, targetMarket string, limit int) []*ValidationPattern {
	if limit <= 0 {
		limit = 5
	}
	fingerprint := ConceptFingerprint(conceptText)

	m.mu.RLock()
	exact := make([]*ValidationPattern, 0)
	market := make([]*ValidationPattern, 0)
	for _, pattern := range m.patterns {
		if pattern.ConceptFingerprint == fingerprint {
			exact = append(exact, pattern)
		} else if targetMarket != "" && pattern.TargetMarket == targetMarket {
			market = append(market, pattern)
		}
	}
	m.mu.RUnlock()

	if len(exact) > 0 {
		sort.Slice(exact, func(i, j int) bool {
			if exact[i].UsageCount != exact[j].UsageCount {
				return exact[i].UsageCount > exact[j].UsageCount
			}
			return exact[i].ConfidenceScore > exact[j].ConfidenceScore
		})
		return clonePatterns(exact, limit)
	}

	sort.Slice(market, func(i, j int) bool {
		if market[i].ConfidenceScore != market[j].ConfidenceScore {
			return market[i].ConfidenceScore > market[j].ConfidenceScore
		}
		return market[i].UsageCount > market[j].UsageCount
	})
	return clonePatterns(market, limit)
}

func clonePatterns(patterns []*ValidationPattern, limit int) []*ValidationPattern {
	if len(patterns) > limit {
		patterns = patterns[:limit]
	}
	out := make([]*ValidationPattern, len(patterns))
	for i, pattern := range patterns {
		copied := *pattern
		out[i] = &copied
	}
	return out
}

// ApplyPatternInsights marks a pattern as used and returns a structured
// insight bundle for the caller to fold into a new analysis.
func (m *Manager) ApplyPatternInsights(patternID string, request *types.ValidationRequest) (map[string]interface{}, error) {
	now := m.now()

	m.mu.Lock()
	pattern, ok := m.patterns[patternID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("unknown pattern: %s", patternID)
	}
	pattern.UsageCount++
	pattern.LastUsedAt = now
	snapshot := *pattern
	m.mu.Unlock()

	m.statsMu.Lock()
	m.patternsApplied++
	m.statsMu.Unlock()

	insights := map[string]interface{}{
		"pattern_id":         snapshot.PatternID,
		"historical_outcome": snapshot.Outcome,
		"success_factors":    snapshot.SuccessIndicators,
		"failure_factors":    snapshot.FailureIndicators,
		"confidence":         snapshot.ConfidenceScore,
		"usage_count":        snapshot.UsageCount,
	}
	if request != nil && snapshot.TargetMarket == request.TargetMarket {
		insights["market_match"] = true
		insights["market_insights"] = map[string]interface{}{
			"target_market":    snapshot.TargetMarket,
			"prior_indicators": append(snapshot.SuccessIndicators, snapshot.FailureIndicators...),
		}
	}
	return insights, nil
}

// decayPatterns reduces the confidence of patterns unused for longer than
// the decay window and removes any pattern that falls below the
// confidence floor, from both the index and the backend.
func (m *Manager) decayPatterns(ctx context.Context) {
	now := m.now()
	decayAfter := m.cfg.PatternDecayAfter()
	factor := m.cfg.PatternDecayFactor
	floor := m.cfg.PatternConfidenceFloor

	type prunedPattern struct {
		id          string
		fingerprint string
	}

	var pruned []prunedPattern
	decayed := 0

	m.mu.Lock()
	for id, pattern := range m.patterns {
		if now.Sub(pattern.LastUsedAt) <= decayAfter {
			continue
		}
		pattern.ConfidenceScore *= 1 - factor
		decayed++
		if pattern.ConfidenceScore < floor {
			delete(m.patterns, id)
			pruned = append(pruned, prunedPattern{id: id, fingerprint: pattern.ConceptFingerprint})
		}
	}
	m.mu.Unlock()

	for _, p := range pruned {
		_, _ = m.backend.Delete(ctx, patternIndexPrefix+p.id)
		_, _ = m.DeleteMemory(ctx, patternOwnerID, MemoryTypePattern, ScopeGlobalShared, p.fingerprint)
	}

	if decayed > 0 {
		m.log.Info("", "", "Pattern maintenance completed", map[string]interface{}{
			"decayed": decayed,
			"pruned":  len(pruned),
		})
	}
}

// persistPattern writes one pattern index record to the backend
func (m *Manager) persistPattern(ctx context.Context, pattern *ValidationPattern) error {
	data, err := json.Marshal(pattern)
	if err != nil {
		return fmt.Errorf("failed to marshal pattern %s: %w", pattern.PatternID, err)
	}
	if err := m.backend.Store(ctx, patternIndexPrefix+pattern.PatternID, data, 0); err != nil {
		return fmt.Errorf("failed to persist pattern %s: %w", pattern.PatternID, err)
	}
	return nil
}

// persistPatterns writes the entire in-memory pattern index back to the
// backend. Called on shutdown.
func (m *Manager) persistPatterns(ctx context.Context) error {
	m.mu.RLock()
	patterns := make([]*ValidationPattern, 0, len(m.patterns))
	for _, pattern := range m.patterns {
		copied := *pattern
		patterns = append(patterns, &copied)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, pattern := range patterns {
		if err := m.persistPattern(ctx, pattern); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// loadPatterns populates the in-memory index from persisted pattern
// records. Malformed records are skipped with a warning rather than
// failing startup.
func (m *Manager) loadPatterns(ctx context.Context) error {
	keys, err := m.backend.Keys(ctx, patternIndexPrefix+"*")
	if err != nil {
		return err
	}

	loaded := 0
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		data, err := m.backend.Retrieve(ctx, key)
		if err != nil || data == nil {
			continue
		}
		var pattern ValidationPattern
		if err := json.Unmarshal(data, &pattern); err != nil {
			m.log.Warn("", "", "Skipping malformed pattern record", map[string]interface{}{
				"key": key,
			})
			continue
		}
		m.patterns[pattern.PatternID] = &pattern
		loaded++
	}

	if loaded > 0 {
		m.log.Info("", "", "Patterns loaded from backend", map[string]interface{}{
			"count": loaded,
		})
	}
	return nil
}
