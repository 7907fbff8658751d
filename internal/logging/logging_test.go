package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Writer: &buf})

	log.With(String("sensor", "gravity")).Info(context.Background(), "forward done",
		Int("readings", 4), Float("misfit", 0.5), Err(errors.New("late")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "forward done" || rec["sensor"] != "gravity" || rec["error"] != "late" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["readings"] != float64(4) {
		t.Fatalf("readings = %v, want 4", rec["readings"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Writer: &buf})
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestEnsureRunID(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatalf("expected a run id")
	}
	again, same := EnsureRunID(ctx)
	if same != id || RunIDFromContext(again) != id {
		t.Fatalf("EnsureRunID replaced an existing id")
	}
	if RunIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty run id on bare context")
	}
}

func TestWithRunLoggerAnnotates(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Writer: &buf})
	ctx, log := WithRunLogger(context.Background(), base)
	log.Info(ctx, "hello")

	if !strings.Contains(buf.String(), RunIDFromContext(ctx)) {
		t.Fatalf("log line %q missing run id", buf.String())
	}
}

func TestContextLogger(t *testing.T) {
	if LoggerFromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on bare context")
	}
	ctx := ContextWithLogger(context.Background(), nil)
	if LoggerFromContext(ctx) == nil {
		t.Fatalf("expected noop logger to be stored")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	cfg := ConfigFromEnv(Config{Format: "text"})
	if cfg.Level != "debug" {
		t.Fatalf("Level = %q, want the environment value", cfg.Level)
	}
	if cfg.Format != "text" {
		t.Fatalf("Format = %q, an explicit value should win", cfg.Format)
	}
}

func TestBoolAndAnyFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "json", Writer: &buf})
	log.Info(context.Background(), "solve", Bool("converged", true), Any("sensors", []string{"thermal"}))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if rec["converged"] != true {
		t.Fatalf("converged = %v", rec["converged"])
	}
	if s, ok := rec["sensors"].([]any); !ok || len(s) != 1 || s[0] != "thermal" {
		t.Fatalf("sensors = %v", rec["sensors"])
	}
}
