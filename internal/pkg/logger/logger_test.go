package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(level, format string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	log := New(Config{
		Level:       level,
		Format:      format,
		Output:      &buf,
		ServiceName: "manimd-test",
	})
	return log, &buf
}

func lastLine(buf *bytes.Buffer) map[string]any {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	_ = json.Unmarshal([]byte(lines[len(lines)-1]), &out)
	return out
}

func TestJSONOutput(t *testing.T) {
	log, buf := newBufferLogger("info", "json")
	log.Info("job admitted", "job_id", "abc")

	entry := lastLine(buf)
	if entry["msg"] != "job admitted" {
		t.Errorf("expected msg, got %v", entry["msg"])
	}
	if entry["service"] != "manimd-test" {
		t.Errorf("expected service attribute, got %v", entry["service"])
	}
	if entry["job_id"] != "abc" {
		t.Errorf("expected job_id attribute, got %v", entry["job_id"])
	}
}

func TestTextOutput(t *testing.T) {
	log, buf := newBufferLogger("info", "text")
	log.Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text format, got %q", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferLogger("warn", "json")

	log.Debug("debug msg")
	log.Info("info msg")
	log.Warn("warn msg")
	log.Error("error msg")

	out := buf.String()
	if strings.Contains(out, "debug msg") || strings.Contains(out, "info msg") {
		t.Error("expected debug/info suppressed at warn level")
	}
	if !strings.Contains(out, "warn msg") || !strings.Contains(out, "error msg") {
		t.Error("expected warn/error emitted")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{" Info ", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := parseLevel(tt.in); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWithHelpers(t *testing.T) {
	t.Run("WithJobID", func(t *testing.T) {
		log, buf := newBufferLogger("info", "json")
		log.WithJobID("job42").Info("x")
		if entry := lastLine(buf); entry["job_id"] != "job42" {
			t.Errorf("expected job_id, got %v", entry)
		}
	})

	t.Run("WithRequestID", func(t *testing.T) {
		log, buf := newBufferLogger("info", "json")
		log.WithRequestID("req1").Info("x")
		if entry := lastLine(buf); entry["request_id"] != "req1" {
			t.Errorf("expected request_id, got %v", entry)
		}
	})

	t.Run("WithComponent", func(t *testing.T) {
		log, buf := newBufferLogger("info", "json")
		log.WithComponent("dispatch").Info("x")
		if entry := lastLine(buf); entry["component"] != "dispatch" {
			t.Errorf("expected component, got %v", entry)
		}
	})

	t.Run("WithError", func(t *testing.T) {
		log, buf := newBufferLogger("info", "json")
		log.WithError(fmt.Errorf("boom")).Error("x")
		if entry := lastLine(buf); entry["error"] != "boom" {
			t.Errorf("expected error attribute, got %v", entry)
		}
	})

	t.Run("WithError nil", func(t *testing.T) {
		log, _ := newBufferLogger("info", "json")
		if log.WithError(nil) != log {
			t.Error("expected nil error to return the same logger")
		}
	})

	t.Run("chaining does not mutate parent", func(t *testing.T) {
		log, buf := newBufferLogger("info", "json")
		_ = log.WithJobID("child")
		log.Info("parent entry")
		if entry := lastLine(buf); entry["job_id"] != nil {
			t.Error("parent logger must not inherit child attributes")
		}
	})
}

func TestFromContext(t *testing.T) {
	log, buf := newBufferLogger("info", "json")

	ctx := ContextWithRequestID(context.Background(), "req9")
	ctx = ContextWithJobID(ctx, "job9")

	log.FromContext(ctx).Info("x")
	entry := lastLine(buf)
	if entry["request_id"] != "req9" || entry["job_id"] != "job9" {
		t.Errorf("expected both ids from context, got %v", entry)
	}

	t.Run("empty context", func(t *testing.T) {
		log, buf := newBufferLogger("info", "json")
		log.FromContext(context.Background()).Info("x")
		entry := lastLine(buf)
		if entry["request_id"] != nil || entry["job_id"] != nil {
			t.Errorf("expected no ids, got %v", entry)
		}
	})
}

func TestNewDefaultsOutput(t *testing.T) {
	// nil output must not panic; it falls back to stdout
	log := New(Config{Level: "error", Format: "json"})
	if log == nil {
		t.Fatal("expected logger")
	}
}
