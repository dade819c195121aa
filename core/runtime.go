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

package core

import (
	"context"
	"fmt"

	"venturescope/platform/memory"
	"venturescope/platform/session"
	"venturescope/platform/shared/config"
	"venturescope/platform/shared/logger"
	"venturescope/platform/supervisor"
)

// Runtime is the explicit context object holding every runtime component.
// It is constructed once at process start and passed by reference to
// whatever needs it; there is no process-wide singleton.
type Runtime struct {
	Config     config.RuntimeConfig
	Sessions   *session.Manager
	Memory     *memory.Manager
	Supervisor *supervisor.Supervisor
	Journal    *supervisor.AlertJournal

	log *logger.Logger
}

// New wires the runtime components together from the configuration. The
// invoker performs the actual agent calls; the memory backend and
// knowledge queue are resolved from the deployment mode.
func New(cfg config.RuntimeConfig, invoker supervisor.AgentInvoker) (*Runtime, error) {
	backend, err := memory.OpenBackend(cfg.Deployment)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory backend: %w", err)
	}
	queue, err := memory.OpenQueue(cfg.Deployment)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge queue: %w", err)
	}

	journal, err := supervisor.NewAlertJournal(cfg.Alerts)
	if err != nil {
		return nil, fmt.Errorf("failed to start alert journal: %w", err)
	}

	mem := memory.NewManager(cfg.Memory, backend, queue)

	return &Runtime{
		Config:     cfg,
		Sessions:   session.NewManager(cfg.Session),
		Memory:     mem,
		Supervisor: supervisor.NewSupervisor(cfg.Workflow, cfg.Monitoring, mem, invoker, journal),
		Journal:    journal,
		log:        logger.New("runtime"),
	}, nil
}

// Initialize connects adapters and starts every background worker
func (r *Runtime) Initialize(ctx context.Context) error {
	if err := r.Memory.Initialize(ctx); err != nil {
		return err
	}
	r.Sessions.Start()
	if r.Config.Monitoring.Enabled {
		r.Supervisor.Monitor().StartMonitoring()
	}

	r.log.Info("", "", "Runtime initialized", map[string]interface{}{
		"deployment_mode": string(r.Config.Deployment.Mode),
	})
	return nil
}

// Shutdown stops all workers and disconnects. Safe to call once, after a
// successful Initialize.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.Supervisor.Monitor().StopMonitoring()
	r.Sessions.Stop()

	var firstErr error
	if err := r.Memory.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if r.Journal != nil {
		if err := r.Journal.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	r.log.Info("", "", "Runtime shut down", nil)
	return firstErr
}
