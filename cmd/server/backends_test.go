package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/media-bridge/internal/config"
	"github.com/lexiqai/media-bridge/internal/resilience"
)

func TestStreamURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://abc.ngrok-free.dev", "wss://abc.ngrok-free.dev/streams/twilio"},
		{"https://abc.ngrok-free.dev/", "wss://abc.ngrok-free.dev/streams/twilio"},
		{"http://localhost:8080", "ws://localhost:8080/streams/twilio"},
		{"wss://bridge.example.com", "wss://bridge.example.com/streams/twilio"},
	}

	for _, tt := range tests {
		if got := streamURL(tt.in); got != tt.want {
			t.Errorf("streamURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewAgentLookup_None(t *testing.T) {
	lookup, checks, closeFn, err := newAgentLookup(context.Background(), &config.Config{AgentConfigBackend: config.AgentBackendNone})
	if err != nil {
		t.Fatalf("newAgentLookup() failed: %v", err)
	}
	defer closeFn()

	if lookup != nil {
		t.Error("Expected nil lookup for the none backend")
	}
	if len(checks) != 0 {
		t.Errorf("Expected no readiness checks, got %d", len(checks))
	}
}

func TestNewAgentLookup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	yaml := "agents:\n  - organization_id: org_1\n    agent_id: agent_1\n    greeting: Hi\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	lookup, _, closeFn, err := newAgentLookup(context.Background(), &config.Config{
		AgentConfigBackend: config.AgentBackendFile,
		AgentConfigFile:    path,
	})
	if err != nil {
		t.Fatalf("newAgentLookup() failed: %v", err)
	}
	defer closeFn()

	cfg, err := lookup.GetAgentConfig(context.Background(), "org_1", "agent_1")
	if err != nil || cfg.Greeting != "Hi" {
		t.Errorf("Unexpected lookup result %+v, %v", cfg, err)
	}
}

func TestNewAgentLookup_Unknown(t *testing.T) {
	if _, _, _, err := newAgentLookup(context.Background(), &config.Config{AgentConfigBackend: "redis"}); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestPingCheck(t *testing.T) {
	ok, err := pingCheck(func(context.Context) error { return nil })(context.Background())
	if !ok || err != nil {
		t.Errorf("Expected healthy, got %v %v", ok, err)
	}

	ok, err = pingCheck(func(context.Context) error { return errors.New("down") })(context.Background())
	if ok || err == nil {
		t.Error("Expected unhealthy")
	}
}

func TestLogBreakerStats(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	cb := resilience.NewCircuitBreaker("tts_stats_test", 5, time.Second)
	cb.RecordResult(true)
	cb.RecordResult(false)

	logBreakerStats(logger, cb)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected one JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["breaker"] != "tts_stats_test" {
		t.Errorf("breaker = %v, want tts_stats_test", entry["breaker"])
	}
	if entry["state"] != "closed" {
		t.Errorf("state = %v, want closed", entry["state"])
	}
	if entry["requests"] != float64(2) || entry["failures"] != float64(1) {
		t.Errorf("requests/failures = %v/%v, want 2/1", entry["requests"], entry["failures"])
	}
}
