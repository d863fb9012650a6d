// SPDX-License-Identifier: AGPL-3.0-or-later

// Package coredb stores the optional login run journal in SQLite.
package coredb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/flowd-org/ptylogin/internal/paths"
	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName = "sqlite"
	dbFileName       = "ptylogin.db"

	busyTimeout = 5 * time.Second
	pageSize    = 4096

	defaultGlobalMaxBytes  = 64 << 20 // 64 MiB
	defaultJournalMaxBytes = 16 << 20 // 16 MiB
)

// Options controls where the journal lives and how large it may grow.
type Options struct {
	// DataDir holds the DB file. Empty uses paths.DataDir.
	DataDir string
	// MaxBytes caps the whole file; SQLite reports SQLITE_FULL beyond it.
	MaxBytes int64
	// JournalMaxBytes caps journal payloads; the oldest runs are evicted
	// beyond it.
	JournalMaxBytes int64
}

func (o Options) resolved() Options {
	if o.DataDir == "" {
		o.DataDir = paths.DataDir()
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = defaultGlobalMaxBytes
	}
	if o.JournalMaxBytes <= 0 {
		o.JournalMaxBytes = defaultJournalMaxBytes
	}
	return o
}

// DB is an open journal database. A login run holds it for the lifetime of
// one process, so a single connection is enough.
type DB struct {
	sql  *sql.DB
	path string
	opts Options
}

// Open creates the data directory when missing, opens ptylogin.db and brings
// its schema up to date.
func Open(ctx context.Context, opts Options) (*DB, error) {
	opts = opts.resolved()
	if err := os.MkdirAll(opts.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	path := filepath.Join(opts.DataDir, dbFileName)

	conn, err := sql.Open(sqliteDriverName, dataSource(path, opts.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := applyMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &DB{sql: conn, path: path, opts: opts}, nil
}

// dataSource puts every pragma in the DSN so they apply to each connection
// the pool opens, including the size cap.
func dataSource(path string, maxBytes int64) string {
	maxPages := maxBytes / pageSize
	if maxPages <= 0 {
		maxPages = 1
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", fmt.Sprintf("page_size(%d)", pageSize))
	q.Add("_pragma", fmt.Sprintf("max_page_count(%d)", maxPages))
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

// Close releases the connection.
func (db *DB) Close() error {
	if db == nil || db.sql == nil {
		return nil
	}
	return db.sql.Close()
}

// Path returns the DB file location.
func (db *DB) Path() string {
	if db == nil {
		return ""
	}
	return db.path
}
