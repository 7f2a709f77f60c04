package telephony

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrSocketClosed is returned when sending after Close
	ErrSocketClosed = errors.New("socket closed")
	// ErrSendQueueFull is returned when the writer cannot keep up
	ErrSendQueueFull = errors.New("socket send queue full")
)

const (
	writeWait        = 10 * time.Second
	closeGracePeriod = time.Second
)

// Socket is the outbound half of a gateway connection
type Socket interface {
	// Send queues a text message without blocking
	Send(msg []byte) error
	// BufferedAmount is the number of bytes queued but not yet written
	BufferedAmount() int
	// Close sends a close frame; it is safe to call more than once
	Close(code int, reason string) error
}

// wsConn serializes writes to a gorilla connection through one writer goroutine.
// gorilla allows a single concurrent writer; WriteControl may run alongside it.
type wsConn struct {
	conn    *websocket.Conn
	out     chan []byte
	pending atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

var _ Socket = (*wsConn)(nil)

func newWSConn(conn *websocket.Conn, queueSize int) *wsConn {
	if queueSize < 1 {
		queueSize = 1
	}
	return &wsConn{
		conn: conn,
		out:  make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

func (c *wsConn) Send(msg []byte) error {
	select {
	case <-c.done:
		return ErrSocketClosed
	default:
	}

	c.pending.Add(int64(len(msg)))
	select {
	case c.out <- msg:
		return nil
	default:
		c.pending.Add(-int64(len(msg)))
		return ErrSendQueueFull
	}
}

func (c *wsConn) BufferedAmount() int {
	return int(c.pending.Load())
}

// writeLoop drains the send queue until Close. Returns the first write error.
func (c *wsConn) writeLoop() error {
	for {
		select {
		case <-c.done:
			return nil
		case msg := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.TextMessage, msg)
			c.pending.Add(-int64(len(msg)))
			if err != nil {
				select {
				case <-c.done:
					return nil
				default:
					return err
				}
			}
		}
	}
}

// Close sends a close frame and gives the peer closeGracePeriod to answer
// before the read loop times out.
func (c *wsConn) Close(code int, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(closeGracePeriod)
		err = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		c.conn.SetReadDeadline(deadline)
	})
	return err
}
