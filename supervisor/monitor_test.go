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
	"sync"
	"testing"

	"venturescope/platform/shared/config"
)

// staticSource serves a fixed set of conditions
type staticSource struct {
	mu         sync.Mutex
	conditions []MarketCondition
}

func (s *staticSource) Poll(ctx context.Context) ([]MarketCondition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MarketCondition(nil), s.conditions...), nil
}

func (s *staticSource) set(conditions []MarketCondition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conditions = conditions
}

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	s := newTestSupervisor(t, &scriptedInvoker{})
	return s.Monitor()
}

func TestMonitor_RaisesAlertPastImpactBar(t *testing.T) {
	m := newTestMonitor(t)

	source := &staticSource{conditions: []MarketCondition{
		{ConditionID: "c1", Description: "funding freeze", ImpactLevel: ImpactCritical},
		{ConditionID: "c2", Description: "minor churn", ImpactLevel: ImpactLow},
	}}
	m.AddConditionSource(source)

	var received []AlertEvent
	m.AddAlertHandler(func(e AlertEvent) { received = append(received, e) })

	m.Tick(context.Background())

	if len(received) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(received))
	}
	if received[0].Severity != "critical" {
		t.Errorf("expected critical severity, got %s", received[0].Severity)
	}

	// Second tick must not re-raise for the same active condition
	m.Tick(context.Background())
	if len(received) != 1 {
		t.Errorf("expected no duplicate alert, got %d", len(received))
	}

	stats := m.GetMonitoringStats()
	if stats.ActiveAlerts != 1 || stats.MarketConditions != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestMonitor_AutoResolvesClearedConditions(t *testing.T) {
	m := newTestMonitor(t)

	source := &staticSource{conditions: []MarketCondition{
		{ConditionID: "c1", Description: "supply shock", ImpactLevel: ImpactHigh},
	}}
	m.AddConditionSource(source)

	m.Tick(context.Background())
	if m.GetMonitoringStats().ActiveAlerts != 1 {
		t.Fatal("expected 1 active alert")
	}

	// The condition subsides below the bar
	source.set([]MarketCondition{
		{ConditionID: "c1", Description: "supply shock easing", ImpactLevel: ImpactLow},
	})
	m.Tick(context.Background())

	if got := m.GetMonitoringStats().ActiveAlerts; got != 0 {
		t.Errorf("expected alert auto-resolved, %d still active", got)
	}
}

func TestMonitor_HandlerPanicDoesNotStopOthers(t *testing.T) {
	m := newTestMonitor(t)

	called := false
	m.AddAlertHandler(func(e AlertEvent) { panic("bad handler") })
	m.AddAlertHandler(func(e AlertEvent) { called = true })

	m.RaiseAlert(AlertEvent{EventType: "manual", Title: "test", Severity: "warning"})

	if !called {
		t.Error("a panicking handler must not stop the remaining handlers")
	}
}

func TestMonitor_AssumptionDrift(t *testing.T) {
	m := newTestMonitor(t)

	source := &staticSource{conditions: []MarketCondition{
		{ConditionID: "c1", ImpactLevel: ImpactLow, Signals: map[string]float64{"cac": 130}},
	}}
	m.AddConditionSource(source)

	var changes []AssumptionChange
	m.AddAssumptionChangeHandler(func(workflowID string, change AssumptionChange) {
		changes = append(changes, change)
	})

	// Baseline cac=100; observed 130 is 30% drift, above the 20% threshold
	m.TrackValidationAssumptions("w1", map[string]float64{"cac": 100, "ltv": 900})
	m.Tick(context.Background())

	if len(changes) != 1 {
		t.Fatalf("expected 1 drift notification, got %d", len(changes))
	}
	if changes[0].WorkflowID != "w1" || changes[0].Assumption != "cac" {
		t.Errorf("unexpected change: %+v", changes[0])
	}

	// Within threshold produces no notification
	changes = nil
	source.set([]MarketCondition{
		{ConditionID: "c1", ImpactLevel: ImpactLow, Signals: map[string]float64{"cac": 110}},
	})
	m.Tick(context.Background())
	if len(changes) != 0 {
		t.Errorf("expected no drift below threshold, got %d", len(changes))
	}
}

func TestMonitor_TrackOverwritesBaseline(t *testing.T) {
	m := newTestMonitor(t)

	m.TrackValidationAssumptions("w1", map[string]float64{"cac": 100})
	m.TrackValidationAssumptions("w1", map[string]float64{"cac": 130})

	if m.GetMonitoringStats().TrackedValidations != 1 {
		t.Error("re-tracking must overwrite, not accumulate")
	}

	m.mu.RLock()
	baseline := m.assumptions["w1"]["cac"]
	m.mu.RUnlock()
	if baseline != 130 {
		t.Errorf("expected baseline 130, got %f", baseline)
	}
}

func TestMonitor_StartStopIdempotent(t *testing.T) {
	m := newTestMonitor(t)

	m.StartMonitoring()
	m.StartMonitoring()
	if !m.GetMonitoringStats().IsMonitoring {
		t.Error("expected monitoring running")
	}

	m.StopMonitoring()
	m.StopMonitoring()
	if m.GetMonitoringStats().IsMonitoring {
		t.Error("expected monitoring stopped")
	}

	// Restart after stop works
	m.StartMonitoring()
	m.StopMonitoring()
}

func TestMonitor_ManualResolve(t *testing.T) {
	m := newTestMonitor(t)

	id := m.RaiseAlert(AlertEvent{EventType: "manual", Title: "x", Severity: "info"})
	if !m.ResolveAlert(id) {
		t.Fatal("resolve failed")
	}
	if m.ResolveAlert(id) {
		t.Error("expected false for already resolved alert")
	}
	if len(m.ActiveAlerts()) != 0 {
		t.Error("resolved alerts must leave the active set")
	}
}

func TestMonitor_ConfigDrivenBar(t *testing.T) {
	cfg := config.Default()
	cfg.Monitoring.AlertImpactBar = "critical"
	s := NewSupervisor(cfg.Workflow, cfg.Monitoring, nil, &scriptedInvoker{}, nil)
	m := s.Monitor()

	source := &staticSource{conditions: []MarketCondition{
		{ConditionID: "c1", ImpactLevel: ImpactHigh},
	}}
	m.AddConditionSource(source)
	m.Tick(context.Background())

	if m.GetMonitoringStats().ActiveAlerts != 0 {
		t.Error("high impact must not alert when the bar is critical")
	}
}
