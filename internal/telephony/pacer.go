package telephony

import (
	"context"
	"sync"
	"time"

	"github.com/lexiqai/media-bridge/internal/audio"
	"github.com/lexiqai/media-bridge/internal/observability"
)

// FrameInterval is the playback duration of one frame
const FrameInterval = 20 * time.Millisecond

// FrameSink transmits paced frames to the caller
type FrameSink interface {
	SendFrame(frame []byte) error
	BufferedAmount() int
}

// PacerConfig configures outbound pacing
type PacerConfig struct {
	Interval         time.Duration // tick period, defaults to FrameInterval
	PrebufferFrames  int           // frames queued before playback starts
	MaxBufferedBytes int           // socket backlog above which frames are dropped
}

// TickOutcome describes what a single pacer tick did
type TickOutcome int

const (
	// TickWaiting means playback has not started; nothing was sent
	TickWaiting TickOutcome = iota
	// TickAudio means a queued frame was sent
	TickAudio
	// TickSilence means the queue was empty and a silence frame was sent
	TickSilence
	// TickDropped means the socket was backed up and the frame was discarded
	TickDropped
)

func (o TickOutcome) String() string {
	switch o {
	case TickAudio:
		return observability.FrameAudio
	case TickSilence:
		return observability.FrameSilence
	case TickDropped:
		return observability.FrameDropped
	default:
		return "waiting"
	}
}

// Pacer releases one frame per tick from a FrameQueue to a FrameSink
type Pacer struct {
	queue   *audio.FrameQueue
	sink    FrameSink
	cfg     PacerConfig
	silence []byte
	metrics *observability.Metrics

	mu          sync.Mutex
	started     bool
	endOfStream bool
}

// NewPacer creates a pacer. metrics may be nil.
func NewPacer(queue *audio.FrameQueue, sink FrameSink, cfg PacerConfig, metrics *observability.Metrics) *Pacer {
	if cfg.Interval <= 0 {
		cfg.Interval = FrameInterval
	}
	if cfg.PrebufferFrames < 1 {
		cfg.PrebufferFrames = 1
	}
	return &Pacer{
		queue:   queue,
		sink:    sink,
		cfg:     cfg,
		silence: audio.SilenceFrame(),
		metrics: metrics,
	}
}

// MarkEndOfStream signals that the producer will enqueue nothing more, so a
// short greeting below the prebuffer threshold still plays.
func (p *Pacer) MarkEndOfStream() {
	p.mu.Lock()
	p.endOfStream = true
	p.mu.Unlock()
}

// Started reports whether playback has begun
func (p *Pacer) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Tick performs one pacing step
func (p *Pacer) Tick() TickOutcome {
	if !p.ready() {
		return TickWaiting
	}

	frame, ok := p.queue.Pop()
	outcome := TickAudio
	if !ok {
		frame = p.silence
		outcome = TickSilence
	}

	if p.sink.BufferedAmount() > p.cfg.MaxBufferedBytes {
		return TickDropped
	}
	if err := p.sink.SendFrame(frame); err != nil {
		return TickDropped
	}
	return outcome
}

func (p *Pacer) ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return true
	}
	queued := p.queue.Len()
	if queued >= p.cfg.PrebufferFrames || (p.endOfStream && queued > 0) {
		p.started = true
	}
	return p.started
}

// Run ticks until ctx is done
func (p *Pacer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			outcome := p.Tick()
			if outcome != TickWaiting && p.metrics != nil {
				p.metrics.RecordOutboundFrame(outcome.String())
			}
		}
	}
}
