package telephony

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/media-bridge/internal/audio"
	"github.com/lexiqai/media-bridge/internal/auth"
)

func newStreamServer(t *testing.T, synth *fakeSynth) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	handler := HandleTwilioWS(ctx, &HandlerConfig{
		Session: &SessionConfig{
			Verifier:         auth.NewVerifier(testSecret),
			Greetings:        &recordingGreetings{text: "Thanks for calling."},
			Synthesizer:      synth,
			DefaultVoice:     "alloy",
			PrebufferFrames:  5,
			MaxBufferedBytes: 2 * 1024 * 1024,
			FrameInterval:    5 * time.Millisecond,
		},
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

// readUntilClose drains messages and returns the close code and the media payloads seen
func readUntilClose(t *testing.T, conn *websocket.Conn) (int, [][]byte) {
	t.Helper()

	var frames [][]byte
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				t.Fatalf("Expected close frame, got %v", err)
			}
			return closeErr.Code, frames
		}

		var msg TwilioMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("Server sent invalid JSON: %v", err)
		}
		payload, _ := base64.StdEncoding.DecodeString(msg.Media.Payload)
		frames = append(frames, payload)
	}
}

func TestHandleTwilioWS_ExpiredTokenRejected(t *testing.T) {
	synth := &fakeSynth{wav: makeWAV(8000, tone(800, 1000))}
	conn := dial(t, newStreamServer(t, synth))

	start := startMessage(t, map[string]string{
		paramToken: signToken(t, "org_1", "agent_1", time.Now().Add(-10*time.Second)),
	})
	if err := conn.WriteMessage(websocket.TextMessage, start); err != nil {
		t.Fatalf("WriteMessage() failed: %v", err)
	}

	code, frames := readUntilClose(t, conn)
	if code != CloseAuthRejected {
		t.Errorf("Close code = %d, want %d", code, CloseAuthRejected)
	}
	if len(frames) != 0 {
		t.Errorf("Expected no media before rejection, got %d frames", len(frames))
	}
	if texts, _ := synth.calls(); len(texts) != 0 {
		t.Errorf("Expected no synthesis, got %d calls", len(texts))
	}
}

func TestHandleTwilioWS_PlaysGreetingThenStops(t *testing.T) {
	samples := tone(320, 1000)
	conn := dial(t, newStreamServer(t, &fakeSynth{wav: makeWAV(8000, samples)}))

	start := startMessage(t, map[string]string{
		paramToken: signToken(t, "org_1", "agent_1", time.Now().Add(time.Minute)),
	})
	if err := conn.WriteMessage(websocket.TextMessage, start); err != nil {
		t.Fatalf("WriteMessage() failed: %v", err)
	}

	want := audio.Frames(audio.EncodeMuLaw(samples))
	for i := 0; i < len(want)+2; i++ {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() %d failed: %v", i, err)
		}

		var msg TwilioMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if msg.Event != "media" || msg.StreamSid != "MZ123" {
			t.Fatalf("Unexpected outbound message %s", raw)
		}
		payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			t.Fatalf("Invalid payload: %v", err)
		}
		if len(payload) != audio.FrameSize {
			t.Errorf("Frame %d is %d bytes, want %d", i, len(payload), audio.FrameSize)
		}

		expected := audio.SilenceFrame()
		if i < len(want) {
			expected = want[i]
		}
		if !bytes.Equal(payload, expected) {
			t.Errorf("Frame %d does not match expected audio", i)
		}
	}

	stop := []byte(`{"event":"stop","streamSid":"MZ123","stop":{"accountSid":"AC123","callSid":"CA123"}}`)
	if err := conn.WriteMessage(websocket.TextMessage, stop); err != nil {
		t.Fatalf("WriteMessage() failed: %v", err)
	}

	code, _ := readUntilClose(t, conn)
	if code != websocket.CloseNormalClosure {
		t.Errorf("Close code = %d, want %d", code, websocket.CloseNormalClosure)
	}
}

func TestHandleTwilioWS_ShutdownClosesStreams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &HandlerConfig{
		Session: &SessionConfig{
			Verifier:      auth.NewVerifier(testSecret),
			Greetings:     &recordingGreetings{text: "Hi."},
			FrameInterval: time.Hour,
		},
	}
	server := httptest.NewServer(HandleTwilioWS(ctx, cfg))
	defer server.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(server.URL, "http"))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"connected","protocol":"Call","version":"1.0.0"}`)); err != nil {
		t.Fatalf("WriteMessage() failed: %v", err)
	}

	// Open streams keep Drain waiting
	pending, cancelPending := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelPending()
	if err := cfg.Drain(pending); err == nil {
		t.Error("Expected Drain to time out while a stream is open")
	}

	cancel()

	code, _ := readUntilClose(t, conn)
	if code != websocket.CloseGoingAway {
		t.Errorf("Close code = %d, want %d", code, websocket.CloseGoingAway)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelDrain()
	if err := cfg.Drain(drainCtx); err != nil {
		t.Errorf("Drain() after shutdown = %v, want nil", err)
	}
}
