package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"strings"
	"testing"
	"time"

	"backtestlab/internal/testsupport"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := logger
	logger = log.New(&buf, "", 0)
	t.Cleanup(func() { logger = orig })
	return &buf
}

func TestLogEventIncludesRunInfo(t *testing.T) {
	buf := captureLogger(t)
	ctx := WithRunInfo(context.Background(), RunInfo{RunID: "run_1", WindowID: "2"})
	LogEvent(ctx, "info", "bar_advanced", map[string]any{"bar": 5})

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got %q: %v", buf.String(), err)
	}
	if decoded["run_id"] != "run_1" || decoded["window_id"] != "2" {
		t.Fatalf("expected run info fields, got %+v", decoded)
	}
	if decoded["event"] != "bar_advanced" {
		t.Fatalf("expected event field, got %+v", decoded)
	}
}

func TestLogEventRedactsConfigField(t *testing.T) {
	buf := captureLogger(t)
	LogEvent(context.Background(), "info", "config_loaded", map[string]any{
		"config": map[string]any{"dsn": "postgres://secret"},
	})
	if strings.Contains(buf.String(), "postgres://secret") {
		t.Fatalf("expected dsn redacted from log line, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED]") {
		t.Fatalf("expected redaction marker in log line, got %q", buf.String())
	}
}

func TestLogRunStartAndStop(t *testing.T) {
	buf := captureLogger(t)
	LogRunStart(context.Background(), "momentum_20", 0, 100)
	LogRunStop(context.Background(), 100, false, 50*time.Millisecond)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	var start map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &start); err != nil {
		t.Fatalf("invalid start line: %v", err)
	}
	if start["event"] != "run_start" || start["strategy"] != "momentum_20" {
		t.Fatalf("unexpected start payload: %+v", start)
	}
}

func TestLogWindowIncludesError(t *testing.T) {
	buf := captureLogger(t)
	LogWindow(context.Background(), 3, 1.2, -0.4, errTest{"boom"})

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["success"] != false {
		t.Fatalf("expected success=false, got %+v", decoded)
	}
	if decoded["error"] != "boom" {
		t.Fatalf("expected error message, got %+v", decoded)
	}
}

type errTest struct{ msg string }

func (e errTest) Error() string { return e.msg }

func TestLogEventUsesClockFromContext(t *testing.T) {
	buf := captureLogger(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ctx := testsupport.WithClock(context.Background(), testsupport.FixedClock{T: fixed})
	LogEvent(ctx, "info", "bar_advanced", nil)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["ts"] != fixed.Format(time.RFC3339) {
		t.Fatalf("expected ts from injected clock %s, got %v", fixed.Format(time.RFC3339), decoded["ts"])
	}
}
