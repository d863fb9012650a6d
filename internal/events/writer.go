// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// StepWriter mirrors terminal output of one step. Complete lines are redacted,
// copied to out and emitted as step.log events; a trailing partial line (for
// example a prompt without newline) is held back until Flush.
type StepWriter struct {
	mu       sync.Mutex
	emitter  Sink
	runID    string
	stepID   string
	out      io.Writer
	buf      bytes.Buffer
	redactor *Redactor
}

func NewStepWriter(em Sink, runID, stepID string, out io.Writer, redactor *Redactor) *StepWriter {
	return &StepWriter{emitter: em, runID: runID, stepID: stepID, out: out, redactor: redactor}
}

func (w *StepWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	start := 0
	for i, b := range p {
		if b == '\n' {
			w.buf.Write(p[start:i])
			if err := w.flushLine(true); err != nil {
				return 0, err
			}
			start = i + 1
		}
	}
	if start < len(p) {
		w.buf.Write(p[start:])
	}
	return len(p), nil
}

func (w *StepWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		return w.flushLine(false)
	}
	return nil
}

func (w *StepWriter) flushLine(newline bool) error {
	line := strings.TrimRight(w.buf.String(), "\r")
	w.buf.Reset()
	line = w.redactor.Redact(line)
	if w.out != nil {
		text := line
		if newline {
			text += "\n"
		}
		if _, err := io.WriteString(w.out, text); err != nil {
			return err
		}
	}
	if w.emitter != nil {
		w.emitter.EmitStepLog(w.runID, w.stepID, line)
	}
	return nil
}
