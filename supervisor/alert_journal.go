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

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"venturescope/platform/shared/config"
	"venturescope/platform/shared/logger"
)

// AlertJournal persists alert events to Postgres asynchronously so that
// raising an alert never blocks on the database. Events that cannot be
// written after retries go to a JSONL fallback file instead of being
// lost.
type AlertJournal struct {
	cfg config.AlertJournalConfig
	log *logger.Logger

	queue        chan AlertEvent
	db           *sql.DB
	fallbackFile *os.File
	fallbackMu   sync.Mutex
	wg           sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool

	statsMu   sync.Mutex
	queued    uint64
	persisted uint64
	failed    uint64
}

// NewAlertJournal opens the database and fallback file and starts the
// worker pool. A nil return with nil error means journaling is disabled
// (no database URL configured).
func NewAlertJournal(cfg config.AlertJournalConfig) (*AlertJournal, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open alert database: %w", err)
	}
	return newAlertJournal(cfg, db)
}

// newAlertJournal finishes construction around an already open database
func newAlertJournal(cfg config.AlertJournalConfig, db *sql.DB) (*AlertJournal, error) {
	fallbackFile, err := os.OpenFile(cfg.FallbackPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open fallback file: %w", err)
	}

	j := &AlertJournal{
		cfg:          cfg,
		log:          logger.New("alert-journal"),
		queue:        make(chan AlertEvent, cfg.QueueSize),
		db:           db,
		fallbackFile: fallbackFile,
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		j.wg.Add(1)
		go j.worker(i)
	}

	j.log.Info("", "", "Alert journal started", map[string]interface{}{
		"workers":  workers,
		"fallback": cfg.FallbackPath,
	})
	return j, nil
}

// Record queues an alert event for persistence. When the queue is full,
// or the journal has already shut down, the event goes to the fallback
// file rather than blocking or panicking.
func (j *AlertJournal) Record(event AlertEvent) {
	j.closeMu.RLock()
	defer j.closeMu.RUnlock()

	if j.closed {
		if err := j.writeToFallback(event); err != nil {
			j.log.ErrorWithErr("", "", "Alert recorded after shutdown and fallback failed", err, map[string]interface{}{
				"alert_id": event.AlertID,
			})
		}
		return
	}

	select {
	case j.queue <- event:
		j.statsMu.Lock()
		j.queued++
		j.statsMu.Unlock()
	default:
		if err := j.writeToFallback(event); err != nil {
			j.log.ErrorWithErr("", "", "Failed to write alert to fallback", err, map[string]interface{}{
				"alert_id": event.AlertID,
			})
		}
	}
}

// worker drains the queue, retrying each insert with backoff before
// falling back to the JSONL file.
func (j *AlertJournal) worker(id int) {
	defer j.wg.Done()

	for event := range j.queue {
		var err error
		for retry := 0; retry < 3; retry++ {
			if err = j.insert(event); err == nil {
				j.statsMu.Lock()
				j.persisted++
				j.statsMu.Unlock()
				break
			}
			time.Sleep(time.Millisecond * time.Duration(100*(retry+1)))
		}

		if err != nil {
			j.statsMu.Lock()
			j.failed++
			j.statsMu.Unlock()
			if fallbackErr := j.writeToFallback(event); fallbackErr != nil {
				j.log.ErrorWithErr("", "", "Worker failed to write fallback", fallbackErr, map[string]interface{}{
					"worker": id,
				})
			}
		}
	}
}

func (j *AlertJournal) insert(event AlertEvent) error {
	workflowIDs, _ := json.Marshal(event.AffectedWorkflowIDs)
	_, err := j.db.Exec(`
		INSERT INTO alert_events (alert_id, event_type, title, description, severity, condition_id, affected_workflow_ids, created_at, resolved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (alert_id) DO UPDATE SET resolved = EXCLUDED.resolved`,
		event.AlertID,
		event.EventType,
		event.Title,
		event.Description,
		event.Severity,
		event.ConditionID,
		workflowIDs,
		event.CreatedAt,
		event.Resolved,
	)
	return err
}

func (j *AlertJournal) writeToFallback(event AlertEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	j.fallbackMu.Lock()
	defer j.fallbackMu.Unlock()

	if _, err := fmt.Fprintf(j.fallbackFile, "%s\n", data); err != nil {
		return fmt.Errorf("failed to append fallback: %w", err)
	}
	return j.fallbackFile.Sync()
}

// Shutdown stops accepting events and waits for the workers to drain the
// queue. If ctx expires first, remaining events are dumped to the
// fallback file. Safe to call more than once.
func (j *AlertJournal) Shutdown(ctx context.Context) error {
	j.closeMu.Lock()
	if j.closed {
		j.closeMu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	j.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		for event := range j.queue {
			_ = j.writeToFallback(event)
		}
		err = ctx.Err()
	}

	_ = j.fallbackFile.Close()
	if closeErr := j.db.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	j.statsMu.Lock()
	j.log.Info("", "", "Alert journal shut down", map[string]interface{}{
		"persisted": j.persisted,
		"failed":    j.failed,
	})
	j.statsMu.Unlock()
	return err
}

// GetStats returns journal counters
func (j *AlertJournal) GetStats() map[string]interface{} {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()
	return map[string]interface{}{
		"queued":    j.queued,
		"persisted": j.persisted,
		"failed":    j.failed,
		"pending":   len(j.queue),
	}
}
