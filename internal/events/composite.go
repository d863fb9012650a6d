// SPDX-License-Identifier: AGPL-3.0-or-later
package events

// Sink represents something that can consume run events.
type Sink interface {
	EmitRunStart(runID, tool string)
	EmitRunFinish(runID, status string, err error)
	EmitStepStart(runID, step, command string)
	EmitStepLog(runID, step, message string)
	EmitStepWarn(runID, step string, err error)
	EmitStepFinish(runID, step string, exitCode int, err error)
}

// CompositeSink fan-outs emitted events to multiple sinks.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink returns a sink that forwards events to all provided sinks.
func NewCompositeSink(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if !isNilSink(s) {
			filtered = append(filtered, s)
		}
	}
	switch len(filtered) {
	case 0:
		return nil
	case 1:
		return filtered[0]
	default:
		return &CompositeSink{sinks: filtered}
	}
}

// isNilSink also catches typed nils from NewEmitter and NewJournalSink.
func isNilSink(s Sink) bool {
	switch v := s.(type) {
	case nil:
		return true
	case *Emitter:
		return v == nil
	case *JournalSink:
		return v == nil
	case *CompositeSink:
		return v == nil
	default:
		return false
	}
}

func (c *CompositeSink) EmitRunStart(runID, tool string) {
	for _, s := range c.sinks {
		s.EmitRunStart(runID, tool)
	}
}

func (c *CompositeSink) EmitRunFinish(runID, status string, err error) {
	for _, s := range c.sinks {
		s.EmitRunFinish(runID, status, err)
	}
}

func (c *CompositeSink) EmitStepStart(runID, step, command string) {
	for _, s := range c.sinks {
		s.EmitStepStart(runID, step, command)
	}
}

func (c *CompositeSink) EmitStepLog(runID, step, message string) {
	for _, s := range c.sinks {
		s.EmitStepLog(runID, step, message)
	}
}

func (c *CompositeSink) EmitStepWarn(runID, step string, err error) {
	for _, s := range c.sinks {
		s.EmitStepWarn(runID, step, err)
	}
}

func (c *CompositeSink) EmitStepFinish(runID, step string, exitCode int, err error) {
	for _, s := range c.sinks {
		s.EmitStepFinish(runID, step, exitCode, err)
	}
}
