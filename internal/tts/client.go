package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lexiqai/media-bridge/internal/observability"
	"github.com/lexiqai/media-bridge/internal/resilience"
)

const (
	responseFormatWAV = "wav"
	maxErrorBody      = 512
	maxAudioBytes     = 32 << 20
)

// ClientConfig configures the HTTP synthesis client
type ClientConfig struct {
	APIURL       string
	APIKey       string
	Model        string
	DefaultVoice string
	Timeout      time.Duration // per call, covers all retry attempts; zero disables

	Retry   *resilience.RetryConfig     // nil = single attempt
	Breaker *resilience.CircuitBreaker // optional
}

// Client synthesizes speech over an OpenAI-compatible HTTP endpoint
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

// NewClient creates a synthesis client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.Retry == nil {
		cfg.Retry = resilience.NoRetry()
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// Synthesize requests WAV audio for text. An empty voice uses the configured default.
func (c *Client) Synthesize(ctx context.Context, voice, text string) ([]byte, error) {
	if voice == "" {
		voice = c.cfg.DefaultVoice
	}

	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	ctx, span := observability.StartSpan(ctx, "tts.Synthesize")
	defer span.End()
	span.SetAttributes(
		attribute.String("tts.voice", voice),
		attribute.Int("tts.input_chars", len(text)),
	)

	body, err := json.Marshal(speechRequest{
		Model:          c.cfg.Model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: responseFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var audio []byte
	attempt := func(ctx context.Context) error {
		var err error
		audio, err = c.do(ctx, body)
		return err
	}

	err = resilience.Retry(ctx, func(ctx context.Context) error {
		if c.cfg.Breaker == nil {
			return attempt(ctx)
		}
		return c.cfg.Breaker.Call(func() error { return attempt(ctx) })
	}, c.cfg.Retry, resilience.IsRetryableNetworkError)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("tts.audio_bytes", len(audio)))
	return audio, nil
}

func (c *Client) do(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		if statusErr.Temporary() {
			return nil, resilience.NewRetryableError(statusErr)
		}
		return nil, statusErr
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}

// StatusCode extracts the provider status from err, or 0 if there is none
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
