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

// Package types provides shared type definitions used across VentureScope
// runtime components. This file defines deployment mode configuration for
// single-node vs distributed deployments.
package types

// DeploymentMode represents the deployment type
type DeploymentMode string

const (
	// DeploymentModeSingleNode runs the memory backend and knowledge queue
	// in-process. Suitable for development and single-instance deployments.
	DeploymentModeSingleNode DeploymentMode = "single_node"
	// DeploymentModeDistributed uses Redis for the memory backend and SQS
	// for the knowledge queue, shared across runtime instances.
	DeploymentModeDistributed DeploymentMode = "distributed"
)

// String returns the string representation of the DeploymentMode
func (m DeploymentMode) String() string {
	return string(m)
}

// IsValid returns true if the DeploymentMode is a valid known value
func (m DeploymentMode) IsValid() bool {
	switch m {
	case DeploymentModeSingleNode, DeploymentModeDistributed:
		return true
	default:
		return false
	}
}

// DeploymentConfig contains deployment-specific settings that select the
// memory backend and knowledge queue implementations at start-up.
//
// The selection changes only where data lives, never the observable
// behavior of the memory manager.
type DeploymentConfig struct {
	// Mode is the deployment type (single_node or distributed)
	Mode DeploymentMode `json:"mode" yaml:"mode"`

	// RedisURL is the memory backend address for distributed deployments
	// (format: redis://host:port or redis://host:port/db)
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`

	// QueueURL is the SQS queue URL for distributed deployments
	QueueURL string `json:"queue_url,omitempty" yaml:"queue_url,omitempty"`

	// AWSRegion is the region for the SQS knowledge queue
	AWSRegion string `json:"aws_region,omitempty" yaml:"aws_region,omitempty"`
}

// DefaultSingleNodeConfig returns the default configuration for
// single-node deployments. Both adapters run in-process.
func DefaultSingleNodeConfig() DeploymentConfig {
	return DeploymentConfig{
		Mode: DeploymentModeSingleNode,
	}
}

// DefaultDistributedConfig returns the default configuration for
// distributed deployments backed by Redis and SQS.
func DefaultDistributedConfig(redisURL, queueURL, region string) DeploymentConfig {
	return DeploymentConfig{
		Mode:      DeploymentModeDistributed,
		RedisURL:  redisURL,
		QueueURL:  queueURL,
		AWSRegion: region,
	}
}

// IsSingleNode returns true if this is a single-node deployment
func (c DeploymentConfig) IsSingleNode() bool {
	return c.Mode == DeploymentModeSingleNode
}

// IsDistributed returns true if this is a distributed deployment
func (c DeploymentConfig) IsDistributed() bool {
	return c.Mode == DeploymentModeDistributed
}
