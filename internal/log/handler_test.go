package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/ErlanBelekov/otp-auth/internal/bus"
	ctxlog "github.com/ErlanBelekov/otp-auth/internal/log"
	"github.com/ErlanBelekov/otp-auth/internal/requestid"
)

func logLine(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(ctxlog.NewContextHandler(slog.NewJSONHandler(&buf, nil)))
	logger.With("component", "test").InfoContext(ctx, "hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	return out
}

func TestContextHandler_AddsRequestID(t *testing.T) {
	out := logLine(t, requestid.WithRequestID(context.Background(), "req-1"))
	if out["request_id"] != "req-1" {
		t.Errorf("request_id = %v, want req-1", out["request_id"])
	}
	if _, ok := out["event_id"]; ok {
		t.Errorf("unexpected event_id in %v", out)
	}
	if out["component"] != "test" {
		t.Errorf("component = %v, want test", out["component"])
	}
}

func TestContextHandler_AddsEventID(t *testing.T) {
	out := logLine(t, bus.WithEventID(context.Background(), "evt-1"))
	if out["event_id"] != "evt-1" {
		t.Errorf("event_id = %v, want evt-1", out["event_id"])
	}
}
