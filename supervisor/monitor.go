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
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"venturescope/platform/shared/config"
	"venturescope/platform/shared/logger"
)

// ImpactLevel grades how strongly a market condition affects running
// validations.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

var impactRank = map[ImpactLevel]int{
	ImpactLow:      0,
	ImpactMedium:   1,
	ImpactHigh:     2,
	ImpactCritical: 3,
}

// AtLeast reports whether the level meets or exceeds the bar
func (l ImpactLevel) AtLeast(bar ImpactLevel) bool {
	return impactRank[l] >= impactRank[bar]
}

// MarketCondition is a snapshot of an externally observed signal.
// Signals carries the numeric values tracked assumptions are diffed
// against.
type MarketCondition struct {
	ConditionID string             `json:"condition_id"`
	Description string             `json:"description"`
	ImpactLevel ImpactLevel        `json:"impact_level"`
	Signals     map[string]float64 `json:"signals,omitempty"`
	ObservedAt  time.Time          `json:"observed_at"`
}

// AlertEvent is a runtime-raised notification of a monitored condition
type AlertEvent struct {
	AlertID             string    `json:"alert_id"`
	EventType           string    `json:"event_type"`
	Title               string    `json:"title"`
	Description         string    `json:"description"`
	Severity            string    `json:"severity"`
	ConditionID         string    `json:"condition_id,omitempty"`
	AffectedWorkflowIDs []string  `json:"affected_workflow_ids,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	Resolved            bool      `json:"resolved"`
}

// AssumptionChange describes material drift between a workflow's tracked
// assumption and the currently observed market signal.
type AssumptionChange struct {
	WorkflowID    string  `json:"workflow_id"`
	Assumption    string  `json:"assumption"`
	BaselineValue float64 `json:"baseline_value"`
	CurrentValue  float64 `json:"current_value"`
	Drift         float64 `json:"drift"`
}

func (c AssumptionChange) String() string {
	return fmt.Sprintf("assumption %q drifted %.1f%% (baseline %.3f, now %.3f)",
		c.Assumption, c.Drift*100, c.BaselineValue, c.CurrentValue)
}

// ConditionSource supplies market conditions each monitoring tick
type ConditionSource interface {
	Poll(ctx context.Context) ([]MarketCondition, error)
}

// AlertHandler is invoked synchronously for every raised alert
type AlertHandler func(AlertEvent)

// AssumptionChangeHandler is invoked when a tracked assumption drifts
type AssumptionChangeHandler func(workflowID string, change AssumptionChange)

// MonitoringStats is the observable state of the monitoring loop
type MonitoringStats struct {
	IsMonitoring          bool          `json:"is_monitoring"`
	Interval              time.Duration `json:"interval"`
	MarketConditions      int           `json:"market_conditions_count"`
	ActiveAlerts          int           `json:"active_alerts_count"`
	TrackedValidations    int           `json:"tracked_validations_count"`
	RegisteredSourceCount int           `json:"registered_source_count"`
}

// Monitor runs the market condition monitoring loop, independent of any
// single workflow: it polls condition sources, raises and auto-resolves
// alerts, and detects drift in tracked validation assumptions.
type Monitor struct {
	cfg        config.MonitoringConfig
	log        *logger.Logger
	supervisor *Supervisor
	journal    *AlertJournal

	mu                 sync.RWMutex
	running            bool
	sources            []ConditionSource
	conditions         map[string]MarketCondition
	activeAlerts       map[string]*AlertEvent
	assumptions        map[string]map[string]float64
	alertHandlers      []AlertHandler
	assumptionHandlers []AssumptionChangeHandler

	now    func() time.Time
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newMonitor(cfg config.MonitoringConfig, supervisor *Supervisor, journal *AlertJournal) *Monitor {
	return &Monitor{
		cfg:          cfg,
		log:          logger.New("monitor"),
		supervisor:   supervisor,
		journal:      journal,
		conditions:   make(map[string]MarketCondition),
		activeAlerts: make(map[string]*AlertEvent),
		assumptions:  make(map[string]map[string]float64),
		now:          time.Now,
	}
}

// AddConditionSource registers an external source polled each tick
func (m *Monitor) AddConditionSource(source ConditionSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, source)
}

// AddAlertHandler registers a handler invoked for every raised alert.
// Multiple handlers are supported; a panicking handler does not stop the
// loop or the remaining handlers.
func (m *Monitor) AddAlertHandler(handler AlertHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertHandlers = append(m.alertHandlers, handler)
}

// AddAssumptionChangeHandler registers a handler invoked on material
// drift of a tracked assumption.
func (m *Monitor) AddAssumptionChangeHandler(handler AssumptionChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assumptionHandlers = append(m.assumptionHandlers, handler)
}

// TrackValidationAssumptions registers a numeric baseline for a workflow,
// overwriting any prior baseline for the same id.
func (m *Monitor) TrackValidationAssumptions(workflowID string, assumptions map[string]float64) {
	baseline := make(map[string]float64, len(assumptions))
	for k, v := range assumptions {
		baseline[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.assumptions[workflowID] = baseline
}

// StartMonitoring begins the loop. Idempotent: calling it while running
// is a no-op.
func (m *Monitor) StartMonitoring() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop()

	m.log.Info("", "", "Monitoring started", map[string]interface{}{
		"interval_seconds": int(m.cfg.Interval().Seconds()),
	})
}

// StopMonitoring cancels the loop and waits for any in-flight tick to
// finish. Idempotent.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info("", "", "Monitoring stopped", nil)
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Tick(context.Background())
		}
	}
}

// Tick runs one monitoring pass: poll sources, refresh conditions, raise
// alerts past the severity bar, check assumption drift, and resolve
// alerts whose condition has cleared.
func (m *Monitor) Tick(ctx context.Context) {
	monitoringTicks.Inc()

	m.pollSources(ctx)
	m.raiseConditionAlerts()
	m.checkAssumptionDrift()
	m.resolveClearedAlerts()
}

func (m *Monitor) pollSources(ctx context.Context) {
	m.mu.RLock()
	sources := append([]ConditionSource(nil), m.sources...)
	m.mu.RUnlock()

	for _, source := range sources {
		conditions, err := source.Poll(ctx)
		if err != nil {
			m.log.ErrorWithErr("", "", "Condition source poll failed", err, nil)
			continue
		}
		m.mu.Lock()
		for _, condition := range conditions {
			if condition.ObservedAt.IsZero() {
				condition.ObservedAt = m.now()
			}
			m.conditions[condition.ConditionID] = condition
		}
		m.mu.Unlock()
	}
}

// raiseConditionAlerts creates one alert per condition at or above the
// configured impact bar, skipping conditions that already have an active
// alert.
func (m *Monitor) raiseConditionAlerts() {
	bar := ImpactLevel(m.cfg.AlertImpactBar)

	m.mu.RLock()
	toRaise := make([]MarketCondition, 0)
	for _, condition := range m.conditions {
		if !condition.ImpactLevel.AtLeast(bar) {
			continue
		}
		if m.hasActiveAlertForCondition(condition.ConditionID) {
			continue
		}
		toRaise = append(toRaise, condition)
	}
	m.mu.RUnlock()

	for _, condition := range toRaise {
		m.RaiseAlert(AlertEvent{
			EventType:   "market_condition",
			Title:       fmt.Sprintf("Market condition %s at %s impact", condition.ConditionID, condition.ImpactLevel),
			Description: condition.Description,
			Severity:    severityForImpact(condition.ImpactLevel),
			ConditionID: condition.ConditionID,
		})
	}
}

// hasActiveAlertForCondition must be called with at least a read lock held
func (m *Monitor) hasActiveAlertForCondition(conditionID string) bool {
	for _, alert := range m.activeAlerts {
		if alert.ConditionID == conditionID && !alert.Resolved {
			return true
		}
	}
	return false
}

func severityForImpact(level ImpactLevel) string {
	switch level {
	case ImpactCritical:
		return "critical"
	case ImpactHigh:
		return "error"
	case ImpactMedium:
		return "warning"
	default:
		return "info"
	}
}

// RaiseAlert records an alert as active and invokes every registered
// alert handler synchronously. Handler panics are contained.
func (m *Monitor) RaiseAlert(event AlertEvent) string {
	if event.AlertID == "" {
		event.AlertID = uuid.New().String()
	}
	event.CreatedAt = m.now()
	event.Resolved = false

	m.mu.Lock()
	m.activeAlerts[event.AlertID] = &event
	handlers := append([]AlertHandler(nil), m.alertHandlers...)
	active := len(m.activeAlerts)
	m.mu.Unlock()

	activeAlertsGauge.Set(float64(active))

	if m.journal != nil {
		m.journal.Record(event)
	}

	for _, handler := range handlers {
		m.invokeAlertHandler(handler, event)
	}

	m.log.Warn("", "", "Alert raised", map[string]interface{}{
		"alert_id": event.AlertID,
		"severity": event.Severity,
		"title":    event.Title,
	})
	return event.AlertID
}

func (m *Monitor) invokeAlertHandler(handler AlertHandler, event AlertEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("", "", "Alert handler panicked", map[string]interface{}{
				"alert_id": event.AlertID,
				"panic":    fmt.Sprintf("%v", r),
			})
		}
	}()
	handler(event)
}

// ResolveAlert marks an alert resolved, removing it from the active set.
// Returns false for unknown or already resolved ids.
func (m *Monitor) ResolveAlert(alertID string) bool {
	m.mu.Lock()
	alert, ok := m.activeAlerts[alertID]
	if !ok || alert.Resolved {
		m.mu.Unlock()
		return false
	}
	alert.Resolved = true
	delete(m.activeAlerts, alertID)
	active := len(m.activeAlerts)
	m.mu.Unlock()

	activeAlertsGauge.Set(float64(active))
	return true
}

// resolveClearedAlerts resolves active alerts whose underlying condition
// has disappeared or dropped below the impact bar.
func (m *Monitor) resolveClearedAlerts() {
	bar := ImpactLevel(m.cfg.AlertImpactBar)

	m.mu.RLock()
	cleared := make([]string, 0)
	for id, alert := range m.activeAlerts {
		if alert.ConditionID == "" {
			continue // manually raised, manually resolved
		}
		condition, exists := m.conditions[alert.ConditionID]
		if !exists || !condition.ImpactLevel.AtLeast(bar) {
			cleared = append(cleared, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range cleared {
		if m.ResolveAlert(id) {
			m.log.Info("", "", "Alert auto-resolved", map[string]interface{}{
				"alert_id": id,
			})
		}
	}
}

// checkAssumptionDrift diffs every tracked baseline against the current
// market signals and invokes the assumption-change handlers on material
// drift.
func (m *Monitor) checkAssumptionDrift() {
	m.mu.RLock()
	signals := m.currentSignals()
	changes := make([]AssumptionChange, 0)
	for workflowID, baseline := range m.assumptions {
		for assumption, baseValue := range baseline {
			current, observed := signals[assumption]
			if !observed {
				continue
			}
			drift := relativeDrift(baseValue, current)
			if drift > m.cfg.DriftThreshold {
				changes = append(changes, AssumptionChange{
					WorkflowID:    workflowID,
					Assumption:    assumption,
					BaselineValue: baseValue,
					CurrentValue:  current,
					Drift:         drift,
				})
			}
		}
	}
	handlers := append([]AssumptionChangeHandler(nil), m.assumptionHandlers...)
	m.mu.RUnlock()

	for _, change := range changes {
		m.log.Warn("", change.WorkflowID, "Validation assumption drifted", map[string]interface{}{
			"assumption": change.Assumption,
			"drift":      change.Drift,
		})
		for _, handler := range handlers {
			m.invokeAssumptionHandler(handler, change)
		}
	}
}

func (m *Monitor) invokeAssumptionHandler(handler AssumptionChangeHandler, change AssumptionChange) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("", change.WorkflowID, "Assumption handler panicked", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
			})
		}
	}()
	handler(change.WorkflowID, change)
}

// currentSignals flattens condition signals into one map, later
// observations winning. Caller must hold at least a read lock.
func (m *Monitor) currentSignals() map[string]float64 {
	latest := make(map[string]time.Time)
	signals := make(map[string]float64)
	for _, condition := range m.conditions {
		for key, value := range condition.Signals {
			if seen, ok := latest[key]; !ok || condition.ObservedAt.After(seen) {
				latest[key] = condition.ObservedAt
				signals[key] = value
			}
		}
	}
	return signals
}

func relativeDrift(baseline, current float64) float64 {
	if baseline == 0 {
		if current == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(current-baseline) / math.Abs(baseline)
}

// GetMonitoringStats returns a snapshot of the loop's state
func (m *Monitor) GetMonitoringStats() MonitoringStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return MonitoringStats{
		IsMonitoring:          m.running,
		Interval:              m.cfg.Interval(),
		MarketConditions:      len(m.conditions),
		ActiveAlerts:          len(m.activeAlerts),
		TrackedValidations:    len(m.assumptions),
		RegisteredSourceCount: len(m.sources),
	}
}

// ActiveAlerts returns snapshots of all unresolved alerts
func (m *Monitor) ActiveAlerts() []AlertEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]AlertEvent, 0, len(m.activeAlerts))
	for _, alert := range m.activeAlerts {
		alerts = append(alerts, *alert)
	}
	return alerts
}
