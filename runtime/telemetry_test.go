package runtime

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupTelemetry_NoEndpoint(t *testing.T) {
	tel, err := SetupTelemetry(context.Background(), TelemetryConfig{ServiceName: "ivrflow"})
	if err != nil {
		t.Fatalf("SetupTelemetry error: %v", err)
	}
	if tel.LogHandler != nil {
		t.Error("expected no log handler without endpoint")
	}

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	if tel.Logger(l) != l {
		t.Error("Logger should return the logger unchanged")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown error: %v", err)
	}
}

func TestTelemetry_LoggerTeesRecords(t *testing.T) {
	var console, exported bytes.Buffer
	tel := &Telemetry{
		LogHandler: slog.NewTextHandler(&exported, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	base := slog.New(slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo}))
	l := tel.Logger(base).With("call_id", "c1").WithGroup("node")

	l.Debug("Collecting digits", "id", "get_account")
	l.Info("Node executed", "id", "welcome")

	if strings.Contains(console.String(), "Collecting digits") {
		t.Error("debug record reached the console handler")
	}
	if !strings.Contains(console.String(), "call_id=c1 node.id=welcome") {
		t.Errorf("console output = %q", console.String())
	}
	if !strings.Contains(exported.String(), "node.id=get_account") || !strings.Contains(exported.String(), "Node executed") {
		t.Errorf("exported output = %q", exported.String())
	}
	if l.Enabled(context.Background(), slog.LevelDebug-4) {
		t.Error("level below every handler reported enabled")
	}
}
