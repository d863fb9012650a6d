// SPDX-License-Identifier: AGPL-3.0-or-later
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	TypeRunStart   = "run.start"
	TypeRunFinish  = "run.finish"
	TypeStepStart  = "step.start"
	TypeStepLog    = "step.log"
	TypeStepWarn   = "step.warn"
	TypeStepFinish = "step.finish"
)

type RunEvent struct {
	Sequence  int64                  `json:"sequence"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	RunID     string                 `json:"run_id"`
	Step      string                 `json:"step,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// builder turns Sink calls into RunEvents and hands them to record.
type builder struct {
	record func(RunEvent)
}

func (b builder) EmitRunStart(runID, tool string) {
	b.record(RunEvent{
		Type:  TypeRunStart,
		RunID: runID,
		Data:  map[string]interface{}{"tool": tool},
	})
}

func (b builder) EmitRunFinish(runID string, status string, err error) {
	data := map[string]interface{}{"status": status}
	if err != nil {
		data["error"] = err.Error()
	}
	b.record(RunEvent{Type: TypeRunFinish, RunID: runID, Data: data})
}

func (b builder) EmitStepStart(runID, step, command string) {
	b.record(RunEvent{Type: TypeStepStart, RunID: runID, Step: step, Message: command})
}

func (b builder) EmitStepLog(runID, step, message string) {
	if message == "" {
		return
	}
	b.record(RunEvent{Type: TypeStepLog, RunID: runID, Step: step, Message: message})
}

func (b builder) EmitStepWarn(runID, step string, err error) {
	ev := RunEvent{Type: TypeStepWarn, RunID: runID, Step: step}
	if err != nil {
		ev.Message = err.Error()
	}
	b.record(ev)
}

func (b builder) EmitStepFinish(runID, step string, exitCode int, err error) {
	status := "completed"
	if err != nil {
		status = "failed"
	}
	data := map[string]interface{}{"exit_code": exitCode, "status": status}
	if err != nil {
		data["error"] = err.Error()
	}
	b.record(RunEvent{Type: TypeStepFinish, RunID: runID, Step: step, Data: data})
}

// Emitter renders events to a writer, either as NDJSON or as one
// human-readable line per event.
type Emitter struct {
	builder
	mu   sync.Mutex
	seq  int64
	out  io.Writer
	json bool
}

// NewEmitter returns nil when out is nil.
func NewEmitter(out io.Writer, json bool) *Emitter {
	if out == nil {
		return nil
	}
	e := &Emitter{out: out, json: json}
	e.builder = builder{record: e.emit}
	return e
}

func (e *Emitter) nextSeq() int64 {
	e.seq++
	return e.seq
}

func (e *Emitter) emit(ev RunEvent) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ev.Sequence = e.nextSeq()
	ev.Timestamp = time.Now().UTC()

	if e.json {
		payload, err := json.Marshal(ev)
		if err != nil {
			fmt.Fprintf(e.out, "{\"error\":%q}\n", err.Error())
			return
		}
		fmt.Fprintf(e.out, "%s\n", payload)
		return
	}

	fmt.Fprintln(e.out, FormatText(ev))
}

// FormatText renders ev as a single human-readable line.
func FormatText(ev RunEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s", ev.Sequence, ev.Type)
	if ev.RunID != "" {
		fmt.Fprintf(&b, " run=%s", ev.RunID)
	}
	if ev.Step != "" {
		fmt.Fprintf(&b, " step=%s", ev.Step)
	}
	if ev.Message != "" {
		fmt.Fprintf(&b, " msg=%s", ev.Message)
	}
	if len(ev.Data) > 0 {
		keys := make([]string, 0, len(ev.Data))
		for k := range ev.Data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" data={")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s:%v", k, ev.Data[k])
		}
		b.WriteString("}")
	}
	return b.String()
}

func GenerateRunID() string {
	return "run-" + uuid.NewString()
}
