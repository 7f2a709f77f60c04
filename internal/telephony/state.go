package telephony

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// SessionState represents the lifecycle state of a media stream
type SessionState int

const (
	// StateAwaitingStart is the state before Twilio sends the start event
	StateAwaitingStart SessionState = iota
	// StateAuthenticating is while the capability token is checked
	StateAuthenticating
	// StateSynthesizingGreeting is while the greeting is looked up and synthesized
	StateSynthesizingGreeting
	// StatePlayingGreeting is while greeting frames are handed to the pacer
	StatePlayingGreeting
	// StateBridgeActive is once the greeting is enqueued; caller audio is accepted
	StateBridgeActive
	// StateClosed is the final state
	StateClosed
)

// String returns the string representation of the state
func (s SessionState) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting-start"
	case StateAuthenticating:
		return "authenticating"
	case StateSynthesizingGreeting:
		return "synthesizing-greeting"
	case StatePlayingGreeting:
		return "playing-greeting"
	case StateBridgeActive:
		return "bridge-active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// validTransitions defines which state transitions are allowed
var validTransitions = map[SessionState][]SessionState{
	StateAwaitingStart:        {StateAuthenticating, StateClosed},
	StateAuthenticating:       {StateSynthesizingGreeting, StateClosed},
	StateSynthesizingGreeting: {StatePlayingGreeting, StateClosed},
	StatePlayingGreeting:      {StateBridgeActive, StateClosed},
	StateBridgeActive:         {StateClosed},
	StateClosed:               {}, // Terminal state, no transitions allowed
}

// CanTransitionTo checks if a transition from current state to next state is valid
func (s SessionState) CanTransitionTo(next SessionState) bool {
	for _, state := range validTransitions[s] {
		if state == next {
			return true
		}
	}
	return false
}

// AcceptsCallerAudio reports whether inbound media may reach the bridge
func (s SessionState) AcceptsCallerAudio() bool {
	return s == StateBridgeActive
}

// IsTerminal returns true if this is a terminal state
func (s SessionState) IsTerminal() bool {
	return s == StateClosed
}

// CloseAuthRejected is the websocket close code sent when the capability token fails
const CloseAuthRejected = 4001

// CloseReason explains why a session was closed
type CloseReason int

const (
	// ReasonStop means Twilio sent a stop event
	ReasonStop CloseReason = iota
	// ReasonRemoteClosed means the gateway closed the socket
	ReasonRemoteClosed
	// ReasonSocketError means a read or write on the socket failed
	ReasonSocketError
	// ReasonAuthRejected means the capability token was missing or invalid
	ReasonAuthRejected
	// ReasonShutdown means the server is shutting down
	ReasonShutdown
)

// String returns the metrics label for the reason
func (r CloseReason) String() string {
	switch r {
	case ReasonStop:
		return "stop"
	case ReasonRemoteClosed:
		return "remote_closed"
	case ReasonSocketError:
		return "socket_error"
	case ReasonAuthRejected:
		return "auth_rejected"
	case ReasonShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("unknown(%d)", r)
	}
}

// CloseCode returns the websocket close code sent for the reason
func (r CloseReason) CloseCode() int {
	switch r {
	case ReasonAuthRejected:
		return CloseAuthRejected
	case ReasonShutdown:
		return websocket.CloseGoingAway
	case ReasonSocketError:
		return websocket.CloseInternalServerErr
	default:
		return websocket.CloseNormalClosure
	}
}

// closeText is the human-readable part of the close frame
func (r CloseReason) closeText() string {
	switch r {
	case ReasonAuthRejected:
		return "auth rejected"
	case ReasonShutdown:
		return "server shutting down"
	default:
		return ""
	}
}
