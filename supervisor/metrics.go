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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workflowsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venturescope_workflows_started_total",
		Help: "Validation workflows started",
	})
	workflowsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venturescope_workflows_completed_total",
		Help: "Validation workflows that reached the completed phase",
	})
	workflowsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venturescope_workflows_failed_total",
		Help: "Validation workflows that entered the failed phase",
	})
	agentInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "venturescope_agent_invocations_total",
		Help: "Agent task invocations by agent type and outcome",
	}, []string{"agent_type", "outcome"})
	workflowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "venturescope_workflow_duration_seconds",
		Help:    "End-to-end workflow duration",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
	activeAlertsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "venturescope_active_alerts",
		Help: "Unresolved monitoring alerts",
	})
	monitoringTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "venturescope_monitoring_ticks_total",
		Help: "Monitoring loop ticks executed",
	})
)
