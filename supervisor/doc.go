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

// Package supervisor orchestrates multi-agent validation workflows.
//
// A workflow advances through a fixed phase sequence (initialization,
// task distribution, parallel execution, synthesis, completed) with
// failed as an absorbing state. Agents register with capability tags and
// are dispatched concurrently; individual failures never abort a run,
// the failure threshold is evaluated once at synthesis.
//
// The package also owns the market monitoring loop: condition sources
// are polled on a fixed interval, high-impact conditions raise alerts
// (persisted asynchronously through the AlertJournal), and tracked
// validation assumptions are diffed against current signals to detect
// drift.
package supervisor
