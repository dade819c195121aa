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
	"fmt"

	"venturescope/platform/shared/types"
)

// OpenBackend selects the MemoryBackend implementation for the deployment
// mode: in-process storage for single-node, Redis for distributed.
func OpenBackend(cfg types.DeploymentConfig) (MemoryBackend, error) {
	switch cfg.Mode {
	case types.DeploymentModeSingleNode:
		return NewInMemoryBackend(), nil
	case types.DeploymentModeDistributed:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("distributed mode requires a Redis URL")
		}
		return NewRedisBackend(cfg.RedisURL), nil
	default:
		return nil, fmt.Errorf("unknown deployment mode: %s", cfg.Mode)
	}
}

// OpenQueue selects the KnowledgeQueue implementation for the deployment
// mode: an in-process queue for single-node, SQS for distributed.
func OpenQueue(cfg types.DeploymentConfig) (KnowledgeQueue, error) {
	switch cfg.Mode {
	case types.DeploymentModeSingleNode:
		return NewInMemoryQueue(), nil
	case types.DeploymentModeDistributed:
		if cfg.QueueURL == "" {
			return nil, fmt.Errorf("distributed mode requires a queue URL")
		}
		return NewSQSQueue(cfg.QueueURL, cfg.AWSRegion), nil
	default:
		return nil, fmt.Errorf("unknown deployment mode: %s", cfg.Mode)
	}
}
