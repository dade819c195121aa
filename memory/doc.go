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

// Package memory implements agent memory and knowledge sharing for the
// VentureScope runtime.
//
// The Manager fronts a pluggable TTL key/value backend (in-process or
// Redis) with a local cache, publishes non-private writes on a knowledge
// queue (in-process or SQS) so agents can observe each other's memory
// without polling, and learns validation patterns from completed
// workflows. Both adapters are selected at startup by deployment mode via
// OpenBackend and OpenQueue; Manager behavior is identical either way.
package memory
