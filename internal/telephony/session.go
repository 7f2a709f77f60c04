package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/media-bridge/internal/audio"
	"github.com/lexiqai/media-bridge/internal/auth"
	"github.com/lexiqai/media-bridge/internal/observability"
	"github.com/lexiqai/media-bridge/internal/tts"
)

// DefaultMaxPayloadChars bounds one inbound base64 media payload
const DefaultMaxPayloadChars = 4096

// GreetingResolver produces the greeting text for an agent. It must not fail.
type GreetingResolver interface {
	Greeting(ctx context.Context, organizationID, agentID string) (text string, source string)
}

// SessionConfig holds the collaborators and limits shared by all sessions
type SessionConfig struct {
	Verifier    *auth.Verifier
	Greetings   GreetingResolver
	Synthesizer tts.Synthesizer
	NewBridge   BridgeFactory // defaults to NewMeteringBridge

	DefaultVoice     string
	PrebufferFrames  int
	MaxBufferedBytes int
	MaxPayloadChars  int
	FrameInterval    time.Duration
}

// Session holds the state of a single media stream
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	sock  Socket
	cfg   *SessionConfig
	queue *audio.FrameQueue
	pacer *Pacer

	// Written once while handling start, before any goroutine is launched
	streamSid string

	mu             sync.Mutex
	state          SessionState
	callSid        string
	organizationID string
	agentID        string
	voice          string
	bridge         Bridge

	// Serializes Bridge.Forward with Bridge.Close
	forwardMu sync.Mutex

	greetingReady chan struct{}
	closed        chan struct{}
	closeOnce     sync.Once

	correlationID string
	metrics       *observability.Metrics
	logger        zerolog.Logger
}

// NewSession creates a session bound to sock. Cancelling parent closes it.
func NewSession(parent context.Context, sock Socket, cfg *SessionConfig) *Session {
	ctx, cancel := context.WithCancel(parent)
	group, ctx := errgroup.WithContext(ctx)

	correlationID := observability.NewCorrelationID()
	metrics := observability.NewCallMetrics()
	metrics.RecordCallStart()

	s := &Session{
		ctx:           ctx,
		cancel:        cancel,
		group:         group,
		sock:          sock,
		cfg:           cfg,
		queue:         audio.NewFrameQueue(),
		state:         StateAwaitingStart,
		greetingReady: make(chan struct{}),
		closed:        make(chan struct{}),
		correlationID: correlationID,
		metrics:       metrics,
		logger: observability.WithCorrelationID(correlationID).
			With().
			Str("component", "telephony").
			Logger(),
	}

	s.pacer = NewPacer(s.queue, &streamSink{session: s}, PacerConfig{
		Interval:         cfg.FrameInterval,
		PrebufferFrames:  cfg.PrebufferFrames,
		MaxBufferedBytes: cfg.MaxBufferedBytes,
	}, metrics)

	// Fires on parent cancellation; after Close it is a no-op
	context.AfterFunc(ctx, func() { s.Close(ReasonShutdown) })
	return s
}

// State returns the current lifecycle state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready is closed once the greeting has been enqueued and caller audio is accepted
func (s *Session) Ready() <-chan struct{} {
	return s.greetingReady
}

// Done is closed once Close has finished
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Wait blocks until the pacer and greeting goroutines have exited
func (s *Session) Wait() error {
	return s.group.Wait()
}

// transition must be called with mu held
func (s *Session) transition(next SessionState) bool {
	if !s.state.CanTransitionTo(next) {
		if s.state != StateClosed {
			s.logger.Warn().
				Str("from", s.state.String()).
				Str("to", next.String()).
				Msg("Invalid session state transition")
		}
		return false
	}
	s.logger.Debug().Str("from", s.state.String()).Str("to", next.String()).Msg("Session state changed")
	s.state = next
	return true
}

// HandleMessage processes one text frame from the gateway
func (s *Session) HandleMessage(raw []byte) {
	var msg TwilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Ignoring malformed Twilio message")
		s.metrics.RecordError("malformed_message", "telephony")
		return
	}

	switch msg.Event {
	case eventStart:
		if msg.Start == nil {
			s.logger.Warn().Msg("Start event without start payload")
			return
		}
		s.handleStart(msg.Start)

	case eventMedia:
		if msg.Media == nil {
			s.metrics.RecordInboundDiscarded("malformed")
			return
		}
		s.handleMedia(msg.Media)

	case eventStop:
		s.logger.Info().Msg("Twilio stop event received")
		s.Close(ReasonStop)

	case eventConnected, eventMark, eventDTMF:
		s.logger.Debug().Str("event", msg.Event).Msg("Ignoring Twilio event")

	default:
		s.logger.Debug().Str("event", msg.Event).Msg("Unknown Twilio event")
	}
}

func (s *Session) handleStart(start *TwilioStart) {
	params := start.CustomParameters

	s.mu.Lock()
	if s.state != StateAwaitingStart {
		state := s.state
		s.mu.Unlock()
		s.logger.Warn().Str("state", state.String()).Msg("Ignoring duplicate start event")
		return
	}
	s.streamSid = start.StreamSid
	s.callSid = start.CallSid
	s.logger = s.logger.With().
		Str("call_sid", start.CallSid).
		Str("stream_sid", start.StreamSid).
		Logger()
	s.transition(StateAuthenticating)
	s.mu.Unlock()

	s.logger.Info().Msg("Media stream started")

	claims, err := s.authenticate(params[paramToken])
	if err != nil {
		cause := authCause(err)
		s.logger.Warn().Err(err).Str("cause", cause).Msg("Stream token rejected")
		s.metrics.RecordAuthRejected(cause)
		s.Close(ReasonAuthRejected)
		return
	}

	organizationID := reconcile(s.logger, "organization_id", claims.OrganizationID, params[paramOrganizationID])
	agentID := reconcile(s.logger, "agent_id", claims.AgentID, params[paramAgentID])
	voice := params[paramVoice]
	if voice == "" {
		voice = s.cfg.DefaultVoice
	}

	newBridge := s.cfg.NewBridge
	if newBridge == nil {
		newBridge = NewMeteringBridge
	}

	s.mu.Lock()
	if !s.transition(StateSynthesizingGreeting) {
		s.mu.Unlock()
		return
	}
	s.organizationID = organizationID
	s.agentID = agentID
	s.voice = voice
	s.logger = s.logger.With().
		Str("organization_id", organizationID).
		Str("agent_id", agentID).
		Logger()
	s.bridge = newBridge(StreamInfo{
		StreamSid:      s.streamSid,
		CallSid:        s.callSid,
		OrganizationID: organizationID,
		AgentID:        agentID,
	}, s.logger)
	s.mu.Unlock()

	s.group.Go(func() error {
		s.pacer.Run(s.ctx)
		return nil
	})
	s.group.Go(func() error {
		s.runGreeting(s.ctx, organizationID, agentID, voice)
		return nil
	})
}

var errMissingToken = errors.New("stream token missing")

func (s *Session) authenticate(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, errMissingToken
	}
	if s.cfg.Verifier == nil {
		return nil, auth.ErrMissingSecret
	}
	return s.cfg.Verifier.Verify(token)
}

func authCause(err error) string {
	switch {
	case errors.Is(err, errMissingToken):
		return "missing"
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		return "bad_signature"
	case errors.Is(err, auth.ErrMissingSecret):
		return "misconfigured"
	default:
		return "malformed"
	}
}

// reconcile prefers the signed claim; a differing in-band value only warns
func reconcile(logger zerolog.Logger, field, claim, param string) string {
	if claim == "" {
		return param
	}
	if param != "" && param != claim {
		logger.Warn().
			Str("field", field).
			Str("token_value", claim).
			Str("param_value", param).
			Msg("Stream parameter does not match token claim, using token")
	}
	return claim
}

func (s *Session) runGreeting(ctx context.Context, organizationID, agentID, voice string) {
	text, source := s.cfg.Greetings.Greeting(ctx, organizationID, agentID)
	s.metrics.RecordGreetingSource(source)
	s.logger.Debug().Str("source", source).Msg("Greeting resolved")

	frames := s.synthesizeGreeting(ctx, voice, text)
	s.finishGreeting(frames)
}

// synthesizeGreeting returns nil on any failure; the call proceeds without a greeting
func (s *Session) synthesizeGreeting(ctx context.Context, voice, text string) [][]byte {
	if s.cfg.Synthesizer == nil {
		return nil
	}

	s.metrics.RecordTTSStart()
	wav, err := s.cfg.Synthesizer.Synthesize(ctx, voice, text)
	s.metrics.RecordTTSEnd(err == nil)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Greeting synthesis failed, continuing without greeting")
			s.metrics.RecordError("tts_error", "tts")
		}
		return nil
	}

	pcm := audio.ParseWAV(wav)
	if pcm == nil {
		s.logger.Warn().Int("bytes", len(wav)).Msg("Unsupported greeting audio, continuing without greeting")
		s.metrics.RecordError("unsupported_wav", "audio")
		return nil
	}

	samples := audio.ResampleTo8k(pcm.Samples, pcm.SampleRate)
	return audio.Frames(audio.EncodeMuLaw(samples))
}

// finishGreeting enqueues frames and opens the bridge. It is a no-op once closed.
func (s *Session) finishGreeting(frames [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.transition(StatePlayingGreeting) {
		return
	}
	s.queue.Push(frames...)
	s.pacer.MarkEndOfStream()
	s.transition(StateBridgeActive)
	close(s.greetingReady)

	s.metrics.RecordGreetingFrames(len(frames))
	s.logger.Info().
		Int("frames", len(frames)).
		Dur("duration", time.Duration(len(frames))*FrameInterval).
		Msg("Greeting enqueued, bridge active")
}

func (s *Session) handleMedia(media *TwilioMedia) {
	if !s.State().AcceptsCallerAudio() {
		s.metrics.RecordInboundDiscarded("greeting")
		return
	}

	maxChars := s.cfg.MaxPayloadChars
	if maxChars <= 0 {
		maxChars = DefaultMaxPayloadChars
	}
	if len(media.Payload) > maxChars {
		s.logger.Warn().Int("chars", len(media.Payload)).Int("max", maxChars).Msg("Dropping oversized media payload")
		s.metrics.RecordInboundDiscarded("oversized")
		return
	}

	frame, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil || len(frame) == 0 {
		s.logger.Warn().Err(err).Msg("Dropping malformed media payload")
		s.metrics.RecordInboundDiscarded("malformed")
		return
	}

	s.forwardMu.Lock()
	defer s.forwardMu.Unlock()

	// Close may have run since the first check
	s.mu.Lock()
	state := s.state
	bridge := s.bridge
	s.mu.Unlock()

	if bridge == nil || !state.AcceptsCallerAudio() {
		return
	}
	bridge.Forward(frame)
}

// Close ends the session once; later calls are no-ops. Any pending greeting
// result is discarded and the pacer stops.
func (s *Session) Close(reason CloseReason) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		from := s.state
		s.transition(StateClosed)
		bridge := s.bridge
		s.bridge = nil
		logger := s.logger
		s.mu.Unlock()

		s.cancel()
		s.queue.Clear()
		if bridge != nil {
			s.forwardMu.Lock()
			bridge.Close()
			s.forwardMu.Unlock()
		}

		if err := s.sock.Close(reason.CloseCode(), reason.closeText()); err != nil {
			logger.Debug().Err(err).Msg("Close frame not delivered")
		}
		s.metrics.RecordCallEnd(reason.String())

		logger.Info().
			Str("reason", reason.String()).
			Str("from_state", from.String()).
			Msg("Media stream closed")
		close(s.closed)
	})
}

// streamSink wraps frames in Twilio media messages
type streamSink struct {
	session *Session
}

func (k *streamSink) SendFrame(frame []byte) error {
	msg, err := json.Marshal(outboundMedia{
		Event:     eventMedia,
		StreamSid: k.session.streamSid,
		Media:     outboundAudio{Payload: base64.StdEncoding.EncodeToString(frame)},
	})
	if err != nil {
		return err
	}
	if err := k.session.sock.Send(msg); err != nil {
		return err
	}
	k.session.metrics.RecordAudioBytes("outbound", int64(len(frame)))
	return nil
}

func (k *streamSink) BufferedAmount() int {
	return k.session.sock.BufferedAmount()
}
