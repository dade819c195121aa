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

package types

import "testing"

func TestDeploymentMode_IsValid(t *testing.T) {
	tests := []struct {
		mode DeploymentMode
		want bool
	}{
		{DeploymentModeSingleNode, true},
		{DeploymentModeDistributed, true},
		{DeploymentMode("cluster"), false},
		{DeploymentMode(""), false},
	}

	for _, tt := range tests {
		if got := tt.mode.IsValid(); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}

func TestDefaultConfigs(t *testing.T) {
	single := DefaultSingleNodeConfig()
	if !single.IsSingleNode() || single.IsDistributed() {
		t.Errorf("unexpected single-node config: %+v", single)
	}

	dist := DefaultDistributedConfig("redis://x:6379", "https://queue", "us-east-1")
	if !dist.IsDistributed() {
		t.Errorf("unexpected distributed config: %+v", dist)
	}
	if dist.RedisURL == "" || dist.QueueURL == "" || dist.AWSRegion == "" {
		t.Error("distributed config must carry its wiring")
	}
}

func TestAgentResult_Succeeded(t *testing.T) {
	var nilResult *AgentResult
	if nilResult.Succeeded() {
		t.Error("nil result must not count as success")
	}
	if (&AgentResult{Error: "boom"}).Succeeded() {
		t.Error("errored result must not count as success")
	}
	if !(&AgentResult{Score: 50}).Succeeded() {
		t.Error("clean result must count as success")
	}
}
