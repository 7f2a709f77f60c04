package telephony

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/media-bridge/internal/observability"
)

const (
	maxMessageSize = 64 * 1024
	// DefaultWriteQueueFrames is the outbound message backlog per socket
	DefaultWriteQueueFrames = 8192
)

var upgrader = websocket.Upgrader{
	// Twilio does not send an Origin header; streams are authorized by token
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// HandlerConfig configures the Twilio media stream endpoint
type HandlerConfig struct {
	Session          *SessionConfig
	WriteQueueFrames int

	// Streams still running; hijacked connections are invisible to http.Server.Shutdown
	active sync.WaitGroup
}

// Drain blocks until every stream handler has returned or ctx is done.
// Call it after http.Server.Shutdown so no new stream can start.
func (c *HandlerConfig) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleTwilioWS is the main entry point for Twilio WebSocket connections.
// Cancelling ctx closes every open stream with a going-away code.
func HandleTwilioWS(ctx context.Context, cfg *HandlerConfig) http.HandlerFunc {
	logger := observability.GetLogger().With().Str("component", "telephony").Logger()

	return func(w http.ResponseWriter, r *http.Request) {
		cfg.active.Add(1)
		defer cfg.active.Done()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written an HTTP error response
			logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxMessageSize)

		queueSize := cfg.WriteQueueFrames
		if queueSize <= 0 {
			queueSize = DefaultWriteQueueFrames
		}
		sock := newWSConn(conn, queueSize)
		session := NewSession(ctx, sock, cfg.Session)

		logger.Info().Str("remote_addr", r.RemoteAddr).Msg("New Twilio WebSocket connection established")

		var g errgroup.Group
		g.Go(func() error {
			if err := sock.writeLoop(); err != nil {
				session.Close(ReasonSocketError)
				return err
			}
			return nil
		})
		g.Go(func() error {
			return readLoop(conn, session)
		})

		if err := g.Wait(); err != nil {
			logger.Debug().Err(err).Msg("Media stream connection ended with error")
		}
		session.Wait()
	}
}

// readLoop feeds gateway messages to the session until the socket fails or
// the close handshake completes.
func readLoop(conn *websocket.Conn, session *Session) error {
	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				session.Close(ReasonRemoteClosed)
				return nil
			}
			select {
			case <-session.Done():
				// Read deadline set by our own close frame
				return nil
			default:
			}
			session.Close(ReasonSocketError)
			return err
		}

		if messageType != websocket.TextMessage {
			continue
		}
		session.HandleMessage(message)
	}
}
