package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/media-bridge/internal/agentconfig"
	"github.com/lexiqai/media-bridge/internal/config"
	"github.com/lexiqai/media-bridge/internal/observability"
	"github.com/lexiqai/media-bridge/internal/resilience"
)

// newAgentLookup builds the configured agent config backend and its readiness checks.
// A nil lookup means every call uses the default greeting.
func newAgentLookup(ctx context.Context, cfg *config.Config) (agentconfig.Lookup, map[string]observability.HealthCheckFunc, func(), error) {
	checks := map[string]observability.HealthCheckFunc{}
	noop := func() {}

	switch cfg.AgentConfigBackend {
	case config.AgentBackendFile:
		store, err := agentconfig.LoadFile(cfg.AgentConfigFile)
		if err != nil {
			return nil, nil, noop, err
		}
		logger := observability.GetLogger()
		logger.Info().
			Str("path", cfg.AgentConfigFile).
			Int("agents", store.Len()).
			Msg("Loaded agent config file")
		return store, checks, noop, nil

	case config.AgentBackendGRPC:
		client, err := agentconfig.NewGRPCClient(cfg.AgentConfigGRPCURL, cfg.AgentConfigTLSEnabled)
		if err != nil {
			return nil, nil, noop, err
		}
		checks["agent_config_grpc"] = pingCheck(client.Ping)
		return client, checks, func() { client.Close() }, nil

	case config.AgentBackendPostgres:
		store, err := agentconfig.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, noop, err
		}
		checks["agent_config_postgres"] = pingCheck(store.Ping)
		return store, checks, store.Close, nil

	case config.AgentBackendNone:
		return nil, checks, noop, nil

	default:
		return nil, nil, noop, fmt.Errorf("unknown agent config backend %q", cfg.AgentConfigBackend)
	}
}

func pingCheck(ping func(context.Context) error) observability.HealthCheckFunc {
	return func(ctx context.Context) (bool, error) {
		if err := ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
}

// streamURL turns a public https base URL into the wss stream endpoint
func streamURL(publicURL string) string {
	base := strings.TrimSuffix(publicURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/streams/twilio"
}

// logBreakerStats reports lifetime breaker counters, typically on shutdown
func logBreakerStats(logger zerolog.Logger, breakers ...*resilience.CircuitBreaker) {
	for _, cb := range breakers {
		state, requests, failures, failureRate := cb.GetStats()
		logger.Info().
			Str("breaker", cb.Name()).
			Str("state", state.String()).
			Int64("requests", requests).
			Int64("failures", failures).
			Float64("failure_rate_pct", failureRate).
			Msg("Circuit breaker stats")
	}
}
