// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/flowd-org/ptylogin/internal/coredb"
)

// JournalSink persists every event into the run journal. Failures are logged
// and never interrupt the login flow; once the database reports it is full
// the sink stops writing for the rest of the run.
type JournalSink struct {
	builder
	journal *coredb.Journal
	logger  *slog.Logger

	mu       sync.Mutex
	seq      int64
	disabled bool
}

// NewJournalSink returns nil when journal is nil so callers can pass the
// result straight to NewCompositeSink.
func NewJournalSink(journal *coredb.Journal, logger *slog.Logger) *JournalSink {
	if journal == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &JournalSink{journal: journal, logger: logger}
	s.builder = builder{record: s.persist}
	return s
}

func (s *JournalSink) persist(ev RunEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return
	}

	s.seq++
	ev.Sequence = s.seq
	ev.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encode run event", slog.String("run_id", ev.RunID), slog.String("event", ev.Type), slog.String("error", err.Error()))
		return
	}
	if _, err := s.journal.Append(context.Background(), ev.RunID, ev.Step, ev.Type, payload, ev.Timestamp); err != nil {
		s.logger.Error("persist run event", slog.String("run_id", ev.RunID), slog.String("event", ev.Type), slog.String("error", err.Error()))
		if coredb.IsQuotaExceeded(err) && !errors.Is(err, coredb.ErrJournalQuotaExceeded) {
			s.disabled = true
			s.logger.Warn("journal full, further events for this run are not persisted", slog.String("run_id", ev.RunID))
		}
	}
}
