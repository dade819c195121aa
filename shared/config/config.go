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

// Package config loads the runtime configuration from YAML with
// environment-variable overrides. All tunable thresholds (session capacity,
// alert severity bar, assumption drift threshold, pattern decay policy)
// live here rather than as hardcoded constants.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"venturescope/platform/shared/types"
)

// RuntimeConfig is the complete configuration for one runtime instance
type RuntimeConfig struct {
	Deployment types.DeploymentConfig `yaml:"deployment"`
	HTTP       HTTPConfig             `yaml:"http"`
	Session    SessionConfig          `yaml:"session"`
	Workflow   WorkflowConfig         `yaml:"workflow"`
	Monitoring MonitoringConfig       `yaml:"monitoring"`
	Memory     MemoryConfig           `yaml:"memory"`
	Alerts     AlertJournalConfig     `yaml:"alerts"`
}

// HTTPConfig configures the health/stats surface
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// SessionConfig configures the session manager
type SessionConfig struct {
	MaxActiveSessions    int `yaml:"max_active_sessions"`
	DefaultTTLSeconds    int `yaml:"default_ttl_seconds"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
}

// DefaultTTL returns the session TTL as a duration
func (c SessionConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// SweepInterval returns the expiry sweep interval as a duration
func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// WorkflowConfig configures the workflow supervisor
type WorkflowConfig struct {
	MaxExecutionSeconds     int `yaml:"max_execution_seconds"`
	AgentTaskTimeoutSeconds int `yaml:"agent_task_timeout_seconds"`
	// MaxAgentFailureRatio is the fraction of agents that may fail before
	// the workflow is marked failed at synthesis. 1.0 means a workflow
	// fails only when no agent succeeds.
	MaxAgentFailureRatio float64 `yaml:"max_agent_failure_ratio"`
}

// MaxExecution returns the workflow deadline as a duration
func (c WorkflowConfig) MaxExecution() time.Duration {
	return time.Duration(c.MaxExecutionSeconds) * time.Second
}

// AgentTaskTimeout returns the per-agent invocation timeout as a duration
func (c WorkflowConfig) AgentTaskTimeout() time.Duration {
	return time.Duration(c.AgentTaskTimeoutSeconds) * time.Second
}

// MonitoringConfig configures the market condition monitoring loop
type MonitoringConfig struct {
	Enabled         bool   `yaml:"enabled"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	AlertImpactBar  string `yaml:"alert_impact_bar"`
	// DriftThreshold is the relative change in a tracked assumption value
	// that triggers assumption-change notifications (0.2 = 20%)
	DriftThreshold float64 `yaml:"drift_threshold"`
}

// Interval returns the monitoring tick interval as a duration
func (c MonitoringConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// MemoryConfig configures the memory manager and its background workers
type MemoryConfig struct {
	SweepIntervalSeconds              int     `yaml:"sweep_interval_seconds"`
	PatternMaintenanceIntervalSeconds int     `yaml:"pattern_maintenance_interval_seconds"`
	PatternDecayAfterDays             int     `yaml:"pattern_decay_after_days"`
	PatternDecayFactor                float64 `yaml:"pattern_decay_factor"`
	PatternConfidenceFloor            float64 `yaml:"pattern_confidence_floor"`
	ReceiveWaitSeconds                int     `yaml:"receive_wait_seconds"`
}

// SweepInterval returns the expiry sweep interval as a duration
func (c MemoryConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// PatternMaintenanceInterval returns the decay worker interval as a duration
func (c MemoryConfig) PatternMaintenanceInterval() time.Duration {
	return time.Duration(c.PatternMaintenanceIntervalSeconds) * time.Second
}

// PatternDecayAfter returns how long a pattern may go unused before decay
func (c MemoryConfig) PatternDecayAfter() time.Duration {
	return time.Duration(c.PatternDecayAfterDays) * 24 * time.Hour
}

// ReceiveWait returns the queue long-poll duration for knowledge receipt
func (c MemoryConfig) ReceiveWait() time.Duration {
	return time.Duration(c.ReceiveWaitSeconds) * time.Second
}

// AlertJournalConfig configures asynchronous alert persistence.
// An empty DatabaseURL disables the journal.
type AlertJournalConfig struct {
	DatabaseURL  string `yaml:"database_url"`
	QueueSize    int    `yaml:"queue_size"`
	Workers      int    `yaml:"workers"`
	FallbackPath string `yaml:"fallback_path"`
}

// Default returns the runtime configuration defaults. Every value can be
// overridden by the YAML file or environment variables.
func Default() RuntimeConfig {
	return RuntimeConfig{
		Deployment: types.DefaultSingleNodeConfig(),
		HTTP:       HTTPConfig{Port: 8090},
		Session: SessionConfig{
			MaxActiveSessions:    100,
			DefaultTTLSeconds:    3600,
			SweepIntervalSeconds: 300,
		},
		Workflow: WorkflowConfig{
			MaxExecutionSeconds:     600,
			AgentTaskTimeoutSeconds: 120,
			MaxAgentFailureRatio:    1.0,
		},
		Monitoring: MonitoringConfig{
			Enabled:         true,
			IntervalSeconds: 60,
			AlertImpactBar:  "high",
			DriftThreshold:  0.2,
		},
		Memory: MemoryConfig{
			SweepIntervalSeconds:              300,
			PatternMaintenanceIntervalSeconds: 3600,
			PatternDecayAfterDays:             30,
			PatternDecayFactor:                0.05,
			PatternConfidenceFloor:            0.1,
			ReceiveWaitSeconds:                1,
		},
		Alerts: AlertJournalConfig{
			QueueSize:    1000,
			Workers:      2,
			FallbackPath: "/tmp/venturescope-alerts.jsonl",
		},
	}
}

// Load reads the configuration file at path (empty path means defaults
// only), applies environment overrides, and validates the result.
func Load(path string) (RuntimeConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// applyEnvOverrides maps deployment-level environment variables onto the
// configuration. Environment wins over the file.
func applyEnvOverrides(cfg *RuntimeConfig) {
	if v := os.Getenv("DEPLOYMENT_MODE"); v != "" {
		cfg.Deployment.Mode = types.DeploymentMode(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Deployment.RedisURL = v
	}
	if v := os.Getenv("KNOWLEDGE_QUEUE_URL"); v != "" {
		cfg.Deployment.QueueURL = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Deployment.AWSRegion = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Alerts.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Port = port
		}
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface later as runtime failures.
func (c RuntimeConfig) Validate() error {
	if !c.Deployment.Mode.IsValid() {
		return fmt.Errorf("invalid deployment mode: %s", c.Deployment.Mode)
	}
	if c.Deployment.IsDistributed() {
		if c.Deployment.RedisURL == "" {
			return fmt.Errorf("distributed deployment requires deployment.redis_url")
		}
		if c.Deployment.QueueURL == "" {
			return fmt.Errorf("distributed deployment requires deployment.queue_url")
		}
	}
	if c.Session.MaxActiveSessions <= 0 {
		return fmt.Errorf("session.max_active_sessions must be positive, got %d", c.Session.MaxActiveSessions)
	}
	if c.Workflow.MaxAgentFailureRatio < 0 || c.Workflow.MaxAgentFailureRatio > 1 {
		return fmt.Errorf("workflow.max_agent_failure_ratio must be in [0,1], got %f", c.Workflow.MaxAgentFailureRatio)
	}
	if c.Memory.PatternDecayFactor < 0 || c.Memory.PatternDecayFactor >= 1 {
		return fmt.Errorf("memory.pattern_decay_factor must be in [0,1), got %f", c.Memory.PatternDecayFactor)
	}
	if c.Memory.PatternConfidenceFloor < 0 || c.Memory.PatternConfidenceFloor > 1 {
		return fmt.Errorf("memory.pattern_confidence_floor must be in [0,1], got %f", c.Memory.PatternConfidenceFloor)
	}
	return nil
}
