package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/media-bridge/internal/agentconfig"
	"github.com/lexiqai/media-bridge/internal/auth"
	"github.com/lexiqai/media-bridge/internal/config"
	"github.com/lexiqai/media-bridge/internal/observability"
	"github.com/lexiqai/media-bridge/internal/resilience"
	"github.com/lexiqai/media-bridge/internal/telephony"
	"github.com/lexiqai/media-bridge/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("tts_api_url", cfg.TTSAPIURL).
		Str("agent_config_backend", cfg.AgentConfigBackend).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Media Bridge Service starting")

	// Root context for every stream; cancelled on shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lookup, checks, closeLookup, err := newAgentLookup(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize agent config backend")
	}
	defer closeLookup()

	retryConfig := resilience.NoRetry()
	if cfg.RetryMaxAttempts > 1 {
		retryConfig = &resilience.RetryConfig{
			MaxAttempts:       cfg.RetryMaxAttempts,
			InitialBackoff:    time.Duration(cfg.RetryInitialBackoff) * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		}
	}

	ttsBreaker := resilience.NewCircuitBreaker("tts", cfg.CircuitBreakerMaxFailures, cfg.BreakerResetTimeout())
	agentBreaker := resilience.NewCircuitBreaker("agentconfig", cfg.CircuitBreakerMaxFailures, cfg.BreakerResetTimeout())

	synthesizer := tts.NewClient(tts.ClientConfig{
		APIURL:       cfg.TTSAPIURL,
		APIKey:       cfg.TTSAPIKey,
		Model:        cfg.TTSModel,
		DefaultVoice: cfg.TTSDefaultVoice,
		Timeout:      cfg.SynthesisTimeout(),
		Retry:        retryConfig,
		Breaker:      ttsBreaker,
	}, &http.Client{})

	greetings := agentconfig.NewResolver(lookup, cfg.LookupTimeout(), agentBreaker)

	// Create HTTP server
	mux := http.NewServeMux()

	// Register Twilio WebSocket handler
	streams := &telephony.HandlerConfig{
		Session: &telephony.SessionConfig{
			Verifier:         auth.NewVerifier(cfg.StreamTokenSecret),
			Greetings:        greetings,
			Synthesizer:      synthesizer,
			DefaultVoice:     cfg.TTSDefaultVoice,
			PrebufferFrames:  cfg.PacerPrebufferFrames,
			MaxBufferedBytes: cfg.PacerMaxBufferedBytes,
			MaxPayloadChars:  cfg.MediaMaxPayloadChars,
		},
		WriteQueueFrames: cfg.SocketWriteQueueFrames,
	}
	mux.HandleFunc("/streams/twilio", telephony.HandleTwilioWS(ctx, streams))

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		endpoint := fmt.Sprintf("ws://localhost:%s/streams/twilio", cfg.Port)
		if cfg.PublicURL != "" {
			endpoint = streamURL(cfg.PublicURL)
		}
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", endpoint).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Cancelled ctx has already started closing every stream with 1001
	if err := streams.Drain(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Media streams did not close before shutdown deadline")
	}
	logBreakerStats(logger, ttsBreaker, agentBreaker)

	logger.Info().Msg("Server exited gracefully")
}
