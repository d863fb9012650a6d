package coredb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCollectStorageStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)

	journal := NewJournal(db, 0)
	for _, runID := range []string{"run-1", "run-1", "run-2"} {
		if _, err := journal.Append(ctx, runID, "", "step.log", []byte(`{"m":1}`), time.Time{}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	stats, err := CollectStorageStats(ctx, db)
	if err != nil {
		t.Fatalf("collect stats: %v", err)
	}
	if stats.Driver != sqliteDriverName {
		t.Fatalf("expected driver %q, got %q", sqliteDriverName, stats.Driver)
	}
	if stats.Path != db.Path() {
		t.Fatalf("expected path %q, got %q", db.Path(), stats.Path)
	}
	if stats.MaxBytes <= 0 || stats.BytesUsed <= 0 {
		t.Fatalf("unexpected sizes: used=%d max=%d", stats.BytesUsed, stats.MaxBytes)
	}
	if stats.Runs != 2 || stats.Events != 3 {
		t.Fatalf("expected 2 runs and 3 events, got %d and %d", stats.Runs, stats.Events)
	}
	if stats.JournalBytes != 3*int64(len(`{"m":1}`)) {
		t.Fatalf("unexpected journal bytes %d", stats.JournalBytes)
	}
	if stats.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", stats.SchemaVersion)
	}
	if !stats.OK || stats.EvictionActive {
		t.Fatalf("unexpected health flags: %+v", stats)
	}
}

func TestCollectStorageStatsNoDB(t *testing.T) {
	t.Parallel()
	if _, err := CollectStorageStats(context.Background(), nil); err == nil {
		t.Fatalf("expected error when db nil")
	}
}

func TestOpenAcceptsEmptyExistingFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, dbFileName), []byte{}, 0o600); err != nil {
		t.Fatalf("seed db file: %v", err)
	}
	db, err := Open(ctx, Options{DataDir: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := CollectStorageStats(ctx, db); err != nil {
		t.Fatalf("collect stats on fresh db: %v", err)
	}
}

func TestOpenAppliesSizeCaps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, err := Open(ctx, Options{DataDir: t.TempDir(), MaxBytes: 1 << 20, JournalMaxBytes: 4096})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	stats, err := CollectStorageStats(ctx, db)
	if err != nil {
		t.Fatalf("collect stats: %v", err)
	}
	if stats.MaxBytes != 1<<20 {
		t.Fatalf("expected max bytes %d, got %d", 1<<20, stats.MaxBytes)
	}
	if stats.JournalMaxBytes != 4096 {
		t.Fatalf("expected journal max bytes 4096, got %d", stats.JournalMaxBytes)
	}
}

func TestFullDatabaseIsQuotaExceeded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db, err := Open(ctx, Options{DataDir: t.TempDir(), MaxBytes: 16 * pageSize, JournalMaxBytes: 1 << 30})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	journal := NewJournal(db, 0)
	payload := make([]byte, pageSize)
	for i := range payload {
		payload[i] = 'x'
	}
	for i := 0; i < 64; i++ {
		_, err = journal.Append(ctx, "run-1", "", "step.log", payload, time.Time{})
		if err != nil {
			break
		}
	}
	if err == nil {
		t.Fatalf("expected the size cap to stop appends")
	}
	if !IsQuotaExceeded(err) {
		t.Fatalf("expected a full database to count as quota exceeded, got %v", err)
	}
}
