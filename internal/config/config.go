package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Agent configuration backends
const (
	AgentBackendNone     = "none"
	AgentBackendFile     = "file"
	AgentBackendGRPC     = "grpc"
	AgentBackendPostgres = "postgres"
)

// Config holds all configuration for the media bridge service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service (e.g. https://xxx.ngrok-free.dev when behind ngrok).
	// Only used to log the stream endpoint.
	PublicURL string `envconfig:"PUBLIC_URL" default:""`

	// Shared HMAC secret for stream capability tokens
	StreamTokenSecret string `envconfig:"STREAM_TOKEN_SECRET" required:"true"`

	// Text-to-speech endpoint (OpenAI-compatible /audio/speech returning WAV)
	TTSAPIURL       string `envconfig:"TTS_API_URL" default:"https://api.openai.com/v1/audio/speech"`
	TTSAPIKey       string `envconfig:"TTS_API_KEY" required:"true"`
	TTSModel        string `envconfig:"TTS_MODEL" default:"gpt-4o-mini-tts"`
	TTSDefaultVoice string `envconfig:"TTS_DEFAULT_VOICE" default:"alloy"`
	TTSTimeout      int    `envconfig:"TTS_TIMEOUT" default:"15"` // seconds, bounds the whole greeting synthesis

	// Agent configuration lookup
	AgentConfigBackend    string `envconfig:"AGENT_CONFIG_BACKEND" default:"none"` // none, file, grpc, postgres
	AgentConfigFile       string `envconfig:"AGENT_CONFIG_FILE" default:"agents.yaml"`
	AgentConfigGRPCURL    string `envconfig:"AGENT_CONFIG_GRPC_URL" default:"localhost:50051"`
	AgentConfigTLSEnabled bool   `envconfig:"AGENT_CONFIG_TLS_ENABLED" default:"false"`
	DatabaseURL           string `envconfig:"DATABASE_URL" default:""`
	AgentLookupTimeout    int    `envconfig:"AGENT_LOOKUP_TIMEOUT" default:"2000"` // milliseconds

	// Outbound pacing
	PacerPrebufferFrames   int `envconfig:"PACER_PREBUFFER_FRAMES" default:"5"`         // 5 frames = 100ms
	PacerMaxBufferedBytes  int `envconfig:"PACER_MAX_BUFFERED_BYTES" default:"2097152"` // 2MB socket backlog ceiling
	MediaMaxPayloadChars   int `envconfig:"MEDIA_MAX_PAYLOAD_CHARS" default:"4096"`     // base64 chars per inbound frame
	SocketWriteQueueFrames int `envconfig:"SOCKET_WRITE_QUEUE_FRAMES" default:"8192"`   // pending outbound messages

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"1"`             // 1 = no retry
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express
func (c *Config) Validate() error {
	if c.StreamTokenSecret == "" {
		return fmt.Errorf("STREAM_TOKEN_SECRET is required")
	}
	if c.TTSAPIKey == "" {
		return fmt.Errorf("TTS_API_KEY is required")
	}

	switch c.AgentConfigBackend {
	case AgentBackendNone:
	case AgentBackendFile:
		if c.AgentConfigFile == "" {
			return fmt.Errorf("AGENT_CONFIG_FILE is required for the file backend")
		}
	case AgentBackendGRPC:
		if c.AgentConfigGRPCURL == "" {
			return fmt.Errorf("AGENT_CONFIG_GRPC_URL is required for the grpc backend")
		}
	case AgentBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown AGENT_CONFIG_BACKEND %q", c.AgentConfigBackend)
	}

	if c.PacerPrebufferFrames < 1 {
		return fmt.Errorf("PACER_PREBUFFER_FRAMES must be at least 1")
	}
	if c.PacerMaxBufferedBytes < 1 {
		return fmt.Errorf("PACER_MAX_BUFFERED_BYTES must be positive")
	}

	return nil
}

// SynthesisTimeout bounds the greeting synthesis request; zero disables it
func (c *Config) SynthesisTimeout() time.Duration {
	return time.Duration(c.TTSTimeout) * time.Second
}

// LookupTimeout bounds the agent greeting lookup
func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.AgentLookupTimeout) * time.Millisecond
}

// BreakerResetTimeout is how long an open circuit waits before probing
func (c *Config) BreakerResetTimeout() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}
