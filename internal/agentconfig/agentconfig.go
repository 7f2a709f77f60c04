// Package agentconfig resolves the greeting an agent speaks when a call connects.
package agentconfig

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lexiqai/media-bridge/internal/observability"
	"github.com/lexiqai/media-bridge/internal/resilience"
)

// DefaultGreeting is spoken when the agent has no greeting configured
const DefaultGreeting = "Hello! How can I help you today?"

// Greeting sources, used as metric labels
const (
	SourceAgent   = "agent"
	SourceDefault = "default"
)

// ErrNotFound is returned by a Lookup when no agent matches
var ErrNotFound = errors.New("agent config not found")

// AgentConfig is the subset of agent settings the media bridge needs
type AgentConfig struct {
	Greeting string
}

// Lookup fetches an agent's configuration from a backing store
type Lookup interface {
	GetAgentConfig(ctx context.Context, organizationID, agentID string) (*AgentConfig, error)
}

// Resolver wraps a Lookup and always produces a non-empty greeting
type Resolver struct {
	lookup  Lookup
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	logger  zerolog.Logger
}

// NewResolver creates a resolver. A nil lookup always yields DefaultGreeting;
// breaker is optional.
func NewResolver(lookup Lookup, timeout time.Duration, breaker *resilience.CircuitBreaker) *Resolver {
	return &Resolver{
		lookup:  lookup,
		timeout: timeout,
		breaker: breaker,
		logger:  observability.GetLogger().With().Str("component", "agentconfig").Logger(),
	}
}

// Greeting returns the greeting text for an agent and where it came from.
// Any lookup failure falls back to DefaultGreeting.
func (r *Resolver) Greeting(ctx context.Context, organizationID, agentID string) (string, string) {
	if r == nil || r.lookup == nil || organizationID == "" || agentID == "" {
		return DefaultGreeting, SourceDefault
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := observability.StartSpan(ctx, "agentconfig.Greeting")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.organization_id", organizationID),
		attribute.String("agent.id", agentID),
	)

	var cfg *AgentConfig
	call := func() error {
		var err error
		cfg, err = r.lookup.GetAgentConfig(ctx, organizationID, agentID)
		if errors.Is(err, ErrNotFound) {
			// A missing agent is an answer, not an outage
			return nil
		}
		return err
	}

	var err error
	if r.breaker != nil {
		err = r.breaker.Call(call)
	} else {
		err = call()
	}

	if err != nil {
		span.RecordError(err)
		r.logger.Warn().Err(err).
			Str("organization_id", organizationID).
			Str("agent_id", agentID).
			Msg("Agent config lookup failed, using default greeting")
		return DefaultGreeting, SourceDefault
	}

	if cfg == nil || strings.TrimSpace(cfg.Greeting) == "" {
		return DefaultGreeting, SourceDefault
	}
	return cfg.Greeting, SourceAgent
}
