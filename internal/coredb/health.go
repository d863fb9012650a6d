// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// StorageStats summarises the journal DB for `journal stats`.
type StorageStats struct {
	Path            string `json:"path" yaml:"path"`
	Driver          string `json:"driver" yaml:"driver"`
	OK              bool   `json:"ok" yaml:"ok"`
	BytesUsed       int64  `json:"bytes_used" yaml:"bytes_used"`
	MaxBytes        int64  `json:"max_bytes" yaml:"max_bytes"`
	JournalBytes    int64  `json:"journal_bytes" yaml:"journal_bytes"`
	JournalMaxBytes int64  `json:"journal_max_bytes" yaml:"journal_max_bytes"`
	Runs            int64  `json:"runs" yaml:"runs"`
	Events          int64  `json:"events" yaml:"events"`
	EvictionActive  bool   `json:"eviction_active" yaml:"eviction_active"`
	SchemaVersion   int64  `json:"schema_version" yaml:"schema_version"`
}

// CollectStorageStats inspects the backing SQLite database.
func CollectStorageStats(ctx context.Context, db *DB) (StorageStats, error) {
	if db == nil || db.sql == nil {
		return StorageStats{}, errors.New("coredb: database not initialised")
	}
	conn := db.sql
	stats := StorageStats{Path: db.path, Driver: sqliteDriverName, JournalMaxBytes: db.opts.JournalMaxBytes}

	pageSize, err := querySingleInt(ctx, conn, "PRAGMA page_size;")
	if err != nil {
		return stats, fmt.Errorf("coredb: lookup page_size: %w", err)
	}
	pageCount, err := querySingleInt(ctx, conn, "PRAGMA page_count;")
	if err != nil {
		return stats, fmt.Errorf("coredb: lookup page_count: %w", err)
	}
	maxPageCount, err := querySingleInt(ctx, conn, "PRAGMA max_page_count;")
	if err != nil {
		return stats, fmt.Errorf("coredb: lookup max_page_count: %w", err)
	}
	if stats.SchemaVersion, err = querySingleInt(ctx, conn, "PRAGMA user_version;"); err != nil {
		return stats, fmt.Errorf("coredb: lookup user_version: %w", err)
	}

	if err := conn.QueryRowContext(ctx, `
SELECT COALESCE(SUM(length(payload)), 0), COUNT(*), COUNT(DISTINCT run_id)
FROM login_journal`).Scan(&stats.JournalBytes, &stats.Events, &stats.Runs); err != nil {
		return stats, fmt.Errorf("coredb: journal inspection: %w", err)
	}

	stats.BytesUsed = pageCount * pageSize
	stats.MaxBytes = maxPageCount * pageSize
	if stats.MaxBytes <= 0 {
		stats.MaxBytes = db.opts.MaxBytes
	}
	stats.OK = stats.MaxBytes == 0 || stats.BytesUsed < stats.MaxBytes
	if stats.JournalMaxBytes > 0 && stats.JournalBytes >= (stats.JournalMaxBytes*9)/10 {
		stats.EvictionActive = true
	}
	return stats, nil
}

func querySingleInt(ctx context.Context, conn *sql.DB, stmt string) (int64, error) {
	var out sql.NullInt64
	if err := conn.QueryRowContext(ctx, stmt).Scan(&out); err != nil {
		return 0, err
	}
	return out.Int64, nil
}
