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
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"venturescope/platform/shared/config"
)

func newTestJournal(t *testing.T) (*AlertJournal, sqlmock.Sqlmock, string) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	fallback := filepath.Join(t.TempDir(), "alerts.jsonl")
	cfg := config.AlertJournalConfig{
		DatabaseURL:  "postgres://test",
		QueueSize:    10,
		Workers:      1,
		FallbackPath: fallback,
	}

	j, err := newAlertJournal(cfg, db)
	if err != nil {
		t.Fatalf("failed to build journal: %v", err)
	}
	return j, mock, fallback
}

func TestAlertJournal_DisabledWithoutDatabaseURL(t *testing.T) {
	j, err := NewAlertJournal(config.AlertJournalConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j != nil {
		t.Error("expected nil journal when no database is configured")
	}
}

func TestAlertJournal_PersistsEvent(t *testing.T) {
	j, mock, _ := newTestJournal(t)

	mock.ExpectExec("INSERT INTO alert_events").
		WithArgs("alert-1", "market_condition", "title", "desc", "error",
			"c1", sqlmock.AnyArg(), sqlmock.AnyArg(), false).
		WillReturnResult(sqlmock.NewResult(1, 1))

	j.Record(AlertEvent{
		AlertID:     "alert-1",
		EventType:   "market_condition",
		Title:       "title",
		Description: "desc",
		Severity:    "error",
		ConditionID: "c1",
		CreatedAt:   time.Now(),
	})

	mock.ExpectClose()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}

	stats := j.GetStats()
	if stats["persisted"] != uint64(1) {
		t.Errorf("expected 1 persisted, got %v", stats["persisted"])
	}
}

func TestAlertJournal_FallbackAfterRetries(t *testing.T) {
	j, mock, fallback := newTestJournal(t)

	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO alert_events").
			WillReturnError(os.ErrDeadlineExceeded)
	}

	j.Record(AlertEvent{AlertID: "alert-2", Title: "db down", Severity: "critical"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = j.Shutdown(ctx)

	f, err := os.Open(fallback)
	if err != nil {
		t.Fatalf("failed to open fallback: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("expected a fallback line")
	}
	var event AlertEvent
	if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
		t.Fatalf("fallback line is not valid JSON: %v", err)
	}
	if event.AlertID != "alert-2" {
		t.Errorf("unexpected fallback event: %+v", event)
	}

	stats := j.GetStats()
	if stats["failed"] != uint64(1) {
		t.Errorf("expected 1 failed, got %v", stats["failed"])
	}
}

func TestAlertJournal_RecordAfterShutdown(t *testing.T) {
	j, mock, _ := newTestJournal(t)
	mock.ExpectClose()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// Must not panic: the event goes to the fallback path instead of the
	// closed queue.
	j.Record(AlertEvent{AlertID: "alert-late", Title: "raised during teardown"})

	// A second Shutdown is a no-op
	if err := j.Shutdown(ctx); err != nil {
		t.Fatalf("repeated shutdown failed: %v", err)
	}
}
