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

import "testing"

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := newRegistry()

	r.register("a1", "market_analyst", []string{"market_sizing"})
	r.register("a1", "market_analyst", []string{"market_sizing", "competitor_scan"})

	if r.count() != 1 {
		t.Fatalf("expected 1 registration, got %d", r.count())
	}

	agent := r.get("a1")
	if agent == nil {
		t.Fatal("expected registration")
	}
	if len(agent.Capabilities) != 2 {
		t.Errorf("re-registration must update capabilities, got %v", agent.Capabilities)
	}
	if !agent.HasCapability("competitor_scan") {
		t.Error("expected updated capability")
	}
}

func TestRegistry_MatchCapabilities(t *testing.T) {
	r := newRegistry()
	r.register("a1", "market_analyst", []string{"market_sizing"})
	r.register("a2", "competitor_scout", []string{"competitor_scan"})
	r.register("a3", "finance_modeler", []string{"unit_economics", "market_sizing"})

	tests := []struct {
		name      string
		requested []string
		want      int
	}{
		{name: "single capability", requested: []string{"market_sizing"}, want: 2},
		{name: "any of several", requested: []string{"competitor_scan", "unit_economics"}, want: 2},
		{name: "no match", requested: []string{"regulatory_review"}, want: 0},
		{name: "empty request matches all", requested: nil, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(r.matchCapabilities(tt.requested)); got != tt.want {
				t.Errorf("expected %d agents, got %d", tt.want, got)
			}
		})
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := newRegistry()
	if r.get("ghost") != nil {
		t.Error("expected nil for unknown agent")
	}
}
