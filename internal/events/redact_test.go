package events

import (
	"bytes"
	"testing"
)

func TestRedactorReplacesSecrets(t *testing.T) {
	redactor := NewRedactor("token", "")
	line := redactor.Redact("value token here")
	if line != "value [secret] here" {
		t.Fatalf("expected redaction, got %s", line)
	}
	var nilRedactor *Redactor
	if got := nilRedactor.Redact("token"); got != "token" {
		t.Fatalf("expected nil redactor to pass through, got %s", got)
	}
}

func TestRedactorAddAfterCreation(t *testing.T) {
	redactor := NewRedactor("hunter2")
	redactor.Add("12345")
	if got := redactor.Redact("code 12345 pw hunter2"); got != "code [secret] pw [secret]" {
		t.Fatalf("unexpected redaction: %s", got)
	}
}

func TestRedactorPrefersLongestSecret(t *testing.T) {
	redactor := NewRedactor("abc", "abcdef")
	if got := redactor.Redact("xabcdefx"); got != "x[secret]x" {
		t.Fatalf("expected whole secret redacted, got %s", got)
	}
}

func TestRedactArgs(t *testing.T) {
	redactor := NewRedactor("S3CRET")
	args := []string{"authenticator", "add", "--from-secret", "S3CRET", "alice"}
	got := redactor.RedactArgs(args)
	if got[3] != secretToken {
		t.Fatalf("expected secret arg redacted, got %v", got)
	}
	if args[3] != "S3CRET" {
		t.Fatalf("input slice must not be modified")
	}
}

type recordingSink struct {
	builder
	events []RunEvent
}

func newRecordingSink() *recordingSink {
	s := &recordingSink{}
	s.builder = builder{record: func(ev RunEvent) { s.events = append(s.events, ev) }}
	return s
}

func TestStepWriterRedactsMirrorAndEvents(t *testing.T) {
	var out bytes.Buffer
	sink := newRecordingSink()
	w := NewStepWriter(sink, "run-1", "register", &out, NewRedactor("hunter2"))

	if _, err := w.Write([]byte("echo hunter2\r\nPass")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("word:")); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "echo [secret]\n" {
		t.Fatalf("unexpected mirror before flush: %q", got)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "echo [secret]\nPassword:" {
		t.Fatalf("unexpected mirror after flush: %q", got)
	}
	if len(sink.events) != 2 {
		t.Fatalf("expected 2 log events, got %d", len(sink.events))
	}
	if sink.events[0].Message != "echo [secret]" || sink.events[1].Message != "Password:" {
		t.Fatalf("unexpected events: %#v", sink.events)
	}
}
