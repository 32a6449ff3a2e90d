package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLoggerEmitsJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(&buf, "atlas-server")
	l.Info(context.Background(), "dataset published", map[string]any{"dataset": "110/homo_sapiens/GRCh38"})

	line := strings.TrimRight(buf.String(), "\n")
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Msg != "dataset published" || ev.Level != LevelInfo {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestLoggerEnrichesFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultLogger(&buf, "atlas-server")
	ctx := ContextWithRequestID(context.Background(), "req-123")
	l.Info(ctx, "query served", nil)

	if !strings.Contains(buf.String(), `"k":"request_id","v":"req-123"`) {
		t.Fatalf("expected request_id field in output: %s", buf.String())
	}
}

func TestLoggerRespectsLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, Options{Service: "atlas-server", Level: LevelWarn})
	l.Info(context.Background(), "should be dropped", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got: %s", buf.String())
	}
	l.Warn(context.Background(), "should appear", nil)
	if buf.Len() == 0 {
		t.Fatalf("expected output at or above configured level")
	}
}
