package tts

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyAudio is returned when the provider answers 2xx with no body
var ErrEmptyAudio = errors.New("tts provider returned empty audio")

// Synthesizer turns text into a complete WAV file
type Synthesizer interface {
	Synthesize(ctx context.Context, voice, text string) ([]byte, error)
}

// StatusError reports a non-2xx response from the provider
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tts provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("tts provider returned status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request is worth repeating
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// speechRequest is the body of an OpenAI-compatible /audio/speech call
type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}
