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

/*
Package logger provides structured JSON logging for VentureScope runtime
components.

# Overview

The logger package provides structured logging that outputs JSON to stdout,
making logs easily consumable by CloudWatch, ELK stack, or other log
aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (session, supervisor, memory, etc.)
  - Instance ID and container name (for distributed tracing)
  - Agent ID (for per-agent correlation)
  - Workflow ID (for workflow correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("supervisor")

Log messages with agent and workflow context:

	log.Info("market-analyst", "wf-456", "Task dispatched", map[string]interface{}{
	    "agent_type": "market_analysis",
	})

Log errors with the underlying error attached:

	log.ErrorWithErr("market-analyst", "wf-456", "Task failed", err, nil)

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("market-analyst", "wf-456", "Task completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Output Format

Log entries are output as single-line JSON:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"supervisor","instance_id":"i-abc123","container":"runtime-xyz",
	 "agent_id":"market-analyst","workflow_id":"wf-456",
	 "message":"Task dispatched","fields":{"agent_type":"market_analysis"}}

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
