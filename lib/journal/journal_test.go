// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/switchyard-systems/switchyard/lib/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openTestJournal(t *testing.T) (*Journal, *clock.ManualClock) {
	t.Helper()
	manual := clock.Manual(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	journal, err := Open(filepath.Join(t.TempDir(), "journal.db"), manual, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := journal.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return journal, manual
}

func TestRecordAndRecent(t *testing.T) {
	journal, manual := openTestJournal(t)
	ctx := context.Background()

	journal.Record(ctx, KindSpawn, "render", 101, "")
	manual.Advance(time.Second)
	journal.Record(ctx, KindPatch, "render", 101, "2 redirects")
	manual.Advance(time.Second)
	journal.Record(ctx, KindExit, "render", 101, "signal: killed")

	events, err := journal.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	// Newest first.
	if events[0].Kind != KindExit || events[2].Kind != KindSpawn {
		t.Errorf("unexpected order: %v, %v, %v", events[0].Kind, events[1].Kind, events[2].Kind)
	}
	if events[0].PID != 101 {
		t.Errorf("PID = %d", events[0].PID)
	}
	if events[1].Detail != "2 redirects" {
		t.Errorf("Detail = %q", events[1].Detail)
	}
	if !events[0].Time.After(events[2].Time) {
		t.Errorf("timestamps not monotonic: %v vs %v", events[0].Time, events[2].Time)
	}
}

func TestRecentFiltersByProgram(t *testing.T) {
	journal, _ := openTestJournal(t)
	ctx := context.Background()

	journal.Record(ctx, KindSpawn, "render", 1, "")
	journal.Record(ctx, KindSpawn, "events", 2, "")
	journal.Record(ctx, KindExit, "render", 1, "exit status 0")

	events, err := journal.Recent(ctx, "render", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events for render, want 2", len(events))
	}
	for _, event := range events {
		if event.Program != "render" {
			t.Errorf("leaked program %q", event.Program)
		}
	}
}

func TestRecentLimit(t *testing.T) {
	journal, _ := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		journal.Record(ctx, KindCheckIn, "render", 1, "")
	}
	events, err := journal.Recent(ctx, "", 4)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
}

func TestReopenKeepsEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	journal, err := Open(path, clock.Real(), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	journal.Record(ctx, KindShutdown, "", 0, "clean")
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, clock.Real(), testLogger())
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer reopened.Close()
	events, err := reopened.Recent(ctx, "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindShutdown {
		t.Fatalf("events after reopen: %+v", events)
	}
}
