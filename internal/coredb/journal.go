// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrJournalQuotaExceeded indicates the requested append cannot be satisfied
// because the payload is larger than the configured journal limit.
var ErrJournalQuotaExceeded = errors.New("coredb: journal quota exceeded")

// JournalEntry represents a persisted run event.
type JournalEntry struct {
	Seq       int64
	RunID     string
	Step      string
	EventType string
	Payload   []byte
	Timestamp time.Time
}

// RunSummary describes one journaled run.
type RunSummary struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	Events    int64     `json:"events" yaml:"events"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
	LastAt    time.Time `json:"last_at" yaml:"last_at"`
}

// Journal provides append-only persistence backed by the DB.
type Journal struct {
	db       *sql.DB
	maxBytes int64
	nowFn    func() time.Time
}

// NewJournal returns a Journal backed by db. When maxBytes is zero or
// negative the DB's resolved JournalMaxBytes is used.
func NewJournal(db *DB, maxBytes int64) *Journal {
	if db == nil {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = db.opts.JournalMaxBytes
	}
	if maxBytes <= 0 {
		maxBytes = defaultJournalMaxBytes
	}
	return &Journal{
		db:       db.sql,
		maxBytes: maxBytes,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Append stores an event for the provided run, evicting the oldest entries
// when the journal would grow past its budget. Eviction and insertion share
// one transaction.
func (j *Journal) Append(ctx context.Context, runID, step, eventType string, payload []byte, ts time.Time) (entry JournalEntry, err error) {
	if j == nil {
		return entry, nil
	}
	if runID == "" {
		return entry, fmt.Errorf("append journal: run id required")
	}
	if len(payload) == 0 {
		return entry, fmt.Errorf("append journal: payload required")
	}
	payloadBytes := int64(len(payload))
	if payloadBytes > j.maxBytes {
		return entry, ErrJournalQuotaExceeded
	}

	now := ts
	if now.IsZero() {
		now = j.nowFn()
	}

	var tx *sql.Tx
	tx, err = j.db.BeginTx(ctx, nil)
	if err != nil {
		return entry, fmt.Errorf("begin journal tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existingBytes int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(length(payload)), 0) FROM login_journal`).Scan(&existingBytes); err != nil {
		err = fmt.Errorf("journal size lookup: %w", err)
		return entry, err
	}

	for existingBytes+payloadBytes > j.maxBytes {
		var seq, size int64
		err = tx.QueryRowContext(ctx, `SELECT seq, length(payload) FROM login_journal ORDER BY seq ASC LIMIT 1`).Scan(&seq, &size)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			break
		}
		if err != nil {
			err = fmt.Errorf("journal eviction lookup: %w", err)
			return entry, err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM login_journal WHERE seq = ?`, seq); err != nil {
			err = fmt.Errorf("journal eviction delete seq=%d: %w", seq, err)
			return entry, err
		}
		existingBytes -= size
		if existingBytes < 0 {
			existingBytes = 0
		}
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
INSERT INTO login_journal (run_id, step, event_type, payload, ts)
VALUES (?, ?, ?, ?, ?)
`, runID, step, eventType, payload, now.UnixMilli())
	if err != nil {
		err = fmt.Errorf("journal insert: %w", err)
		return entry, err
	}
	var seq int64
	seq, err = res.LastInsertId()
	if err != nil {
		err = fmt.Errorf("journal last insert id: %w", err)
		return entry, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("journal commit: %w", err)
		return entry, err
	}

	return JournalEntry{
		Seq:       seq,
		RunID:     runID,
		Step:      step,
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
		Timestamp: now,
	}, nil
}

// Bounds returns the earliest and latest sequence currently retained for the
// provided run. A zero earliest indicates no events are stored.
func (j *Journal) Bounds(ctx context.Context, runID string) (earliest, latest int64, err error) {
	if j == nil {
		return 0, 0, nil
	}
	if err = j.db.QueryRowContext(ctx, `
SELECT COALESCE(MIN(seq), 0), COALESCE(MAX(seq), 0)
FROM login_journal WHERE run_id = ?
`, runID).Scan(&earliest, &latest); err != nil {
		return 0, 0, fmt.Errorf("journal bounds: %w", err)
	}
	return earliest, latest, nil
}

// ForEach streams events for the supplied run strictly after afterSeq in
// ascending order. Iteration halts if the callback returns an error.
func (j *Journal) ForEach(ctx context.Context, runID string, afterSeq int64, fn func(JournalEntry) error) error {
	if j == nil || fn == nil {
		return nil
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT seq, step, event_type, payload, ts
FROM login_journal
WHERE run_id = ? AND seq > ?
ORDER BY seq ASC
`, runID, afterSeq)
	if err != nil {
		return fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry    = JournalEntry{RunID: runID}
			payload  []byte
			tsMillis int64
		)
		if err := rows.Scan(&entry.Seq, &entry.Step, &entry.EventType, &payload, &tsMillis); err != nil {
			return fmt.Errorf("journal scan: %w", err)
		}
		entry.Payload = append([]byte(nil), payload...)
		entry.Timestamp = time.UnixMilli(tsMillis).UTC()
		if err := fn(entry); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("journal rows: %w", err)
	}
	return nil
}

// Runs lists journaled runs, most recent first, up to limit (0 for all).
func (j *Journal) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if j == nil {
		return nil, nil
	}
	query := `
SELECT run_id, COUNT(*), MIN(ts), MAX(ts)
FROM login_journal
GROUP BY run_id
ORDER BY MAX(seq) DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var (
			s             RunSummary
			first, latest int64
		)
		if err := rows.Scan(&s.RunID, &s.Events, &first, &latest); err != nil {
			return nil, fmt.Errorf("journal runs scan: %w", err)
		}
		s.StartedAt = time.UnixMilli(first).UTC()
		s.LastAt = time.UnixMilli(latest).UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal runs rows: %w", err)
	}
	return out, nil
}
