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

// Package main is the entry point for the VentureScope runtime service.
//
// The runtime hosts the agent session manager, the memory and
// knowledge-sharing manager, and the workflow supervisor with its market
// monitoring loop. Validation agents register over HTTP and are invoked
// concurrently per workflow.
//
// Usage:
//
//	./runtime
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8090)
//	CONFIG_PATH - YAML configuration file (optional)
//	DEPLOYMENT_MODE - single_node or distributed
//	REDIS_URL - Redis URL for the distributed memory backend
//	KNOWLEDGE_QUEUE_URL - SQS queue URL for distributed knowledge sharing
//	AWS_REGION - AWS region for the queue client
//	DATABASE_URL - PostgreSQL connection string for the alert journal
package main

import (
	"venturescope/platform/core"
)

func main() {
	core.Run()
}
