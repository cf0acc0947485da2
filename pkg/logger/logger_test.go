package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithBudgetID(ctx, "budget-1")

	log.Error(ctx, "boom", errors.New("boom"))

	for _, want := range []string{`"request_id"`, `"budget_id":"budget-1"`, `"stack"`, `"error":"boom"`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Fatalf("expected %s in entry=%s", want, buf.String())
		}
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf, WarnStack: true})
	log.Warn(context.Background(), "warny")
	if !bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack when warn stack enabled; entry=%s", buf.String())
	}

	buf.Reset()
	quiet := New(Options{ServiceName: "test", Output: buf})
	quiet.WarnErr(context.Background(), "rate unavailable", errors.New("timeout"))
	if bytes.Contains(buf.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected no stack when warn stack disabled; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"error":"timeout"`)) {
		t.Fatalf("expected error field; entry=%s", buf.String())
	}
}

func TestLoggerEventFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "worker", Output: buf})
	ctx := log.WithEvent(context.Background(), "budget_submitted", "evt-1")
	log.Info(ctx, "handled")
	if !bytes.Contains(buf.Bytes(), []byte(`"event_type":"budget_submitted"`)) {
		t.Fatalf("missing event_type; entry=%s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"service":"worker"`)) {
		t.Fatalf("missing service; entry=%s", buf.String())
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" DEBUG "); lvl != zerolog.DebugLevel {
		t.Fatalf("expected debug, got %v", lvl)
	}
}

func TestContextFieldsAccumulate(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Output: buf, Format: "json"})

	ctx := log.WithUserID(context.Background(), "u-1")
	ctx = log.WithFields(ctx, map[string]any{"attempt": 2})
	log.Info(ctx, "retrying")
	log.Info(context.Background(), "plain")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected two entries, got %q", buf.String())
	}
	if !bytes.Contains(lines[0], []byte(`"user_id":"u-1"`)) || !bytes.Contains(lines[0], []byte(`"attempt":2`)) {
		t.Fatalf("missing context fields; entry=%s", lines[0])
	}
	if bytes.Contains(lines[1], []byte(`"user_id"`)) {
		t.Fatalf("fields leaked into a bare context; entry=%s", lines[1])
	}
}

func TestErrorStackStartsAtCaller(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Error(context.Background(), "boom", nil)

	var entry struct {
		Stack string `json:"stack"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}
	if !strings.HasPrefix(entry.Stack, "github.com/angelmondragon/budgetdesk-backend/pkg/logger.TestErrorStackStartsAtCaller") {
		t.Fatalf("stack should start at the caller, got %q", entry.Stack)
	}
}
