package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFieldsAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf}).With(String("component", "animator"))

	ctx := ContextWithRequestID(context.Background(), "req-1")
	log.Info(ctx, "route set", Int("waypoints", 3), Float64("length", 12.5), Err(errors.New("boom")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	want := map[string]any{
		"msg":        "route set",
		"level":      "INFO",
		"component":  "animator",
		"waypoints":  float64(3),
		"length":     12.5,
		"error":      "boom",
		"request_id": "req-1",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Fatalf("entry[%q] = %v, want %v (entry %v)", k, entry[k], v, entry)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
		warnSeen  bool
	}{
		{level: "debug", debugSeen: true, warnSeen: true},
		{level: "", debugSeen: false, warnSeen: true},
		{level: "error", debugSeen: false, warnSeen: false},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		log := New(Config{Level: tc.level, Output: &buf})
		log.Debug(context.Background(), "dbg")
		log.Warn(context.Background(), "wrn")

		out := buf.String()
		if got := strings.Contains(out, "msg=dbg"); got != tc.debugSeen {
			t.Fatalf("level %q: debug logged = %v, want %v", tc.level, got, tc.debugSeen)
		}
		if got := strings.Contains(out, "msg=wrn"); got != tc.warnSeen {
			t.Fatalf("level %q: warn logged = %v, want %v", tc.level, got, tc.warnSeen)
		}
	}
}

func TestEnsureRequestID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if len(id) != 24 {
		t.Fatalf("generated id %q, want 24 hex chars", id)
	}
	again, same := EnsureRequestID(ctx)
	if same != id || RequestIDFromContext(again) != id {
		t.Fatalf("existing request id was replaced: %q vs %q", same, id)
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatalf("empty context should have no request id")
	}
}

func TestNoopAndOrNoop(t *testing.T) {
	if OrNoop(nil) == nil {
		t.Fatalf("OrNoop(nil) returned nil")
	}
	l := Noop().With(String("k", "v"))
	l.Error(context.Background(), "dropped")

	var buf bytes.Buffer
	lg := New(Config{Output: &buf})
	if OrNoop(lg) != lg {
		t.Fatalf("OrNoop should return a non-nil logger unchanged")
	}
	if f := Err(nil); f.Key != "error" || f.Value != "" {
		t.Fatalf("Err(nil) = %+v", f)
	}
}
