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
Package types provides shared type definitions used across VentureScope
runtime components.

# Overview

This package contains common types shared between the session manager,
workflow supervisor, and memory manager. It provides a single source of
truth for shared data structures.

# Deployment Modes

The runtime supports two deployment modes, configured via DeploymentConfig:

Single-node mode:
  - In-process memory backend and knowledge queue
  - No external infrastructure required
  - Suitable for development and single-instance deployments

Distributed mode:
  - Redis-backed memory backend shared across instances
  - SQS-backed knowledge queue with at-least-once delivery
  - Suitable for multi-node deployments

# Usage

Determine deployment mode and configure adapters:

	config := types.DefaultSingleNodeConfig()

	// Or for distributed deployments
	config := types.DefaultDistributedConfig(redisURL, queueURL, "us-east-1")

	if config.IsDistributed() {
	    // Redis and SQS adapters are wired in
	}

# Thread Safety

All types in this package are value types and are safe for concurrent use.
*/
package types
