package telephony

import (
	"github.com/rs/zerolog"

	"github.com/lexiqai/media-bridge/internal/audio"
	"github.com/lexiqai/media-bridge/internal/observability"
)

// StreamInfo identifies the call a bridge serves
type StreamInfo struct {
	StreamSid      string
	CallSid        string
	OrganizationID string
	AgentID        string
}

// Bridge receives caller audio once the greeting has been enqueued.
// A conversational backend plugs in here.
type Bridge interface {
	// Forward receives one decoded µ-law frame from the caller
	Forward(frame []byte)
	// Close is called once when the session ends
	Close()
}

// BridgeFactory creates a bridge for a newly authenticated stream
type BridgeFactory func(info StreamInfo, logger zerolog.Logger) Bridge

// meterEvery is how many frames the metering bridge aggregates per log line (1s)
const meterEvery = 50

// meteringBridge logs caller audio levels; it does not talk to any backend
type meteringBridge struct {
	logger  zerolog.Logger
	metrics *observability.Metrics

	frames int
	sumRMS float64
	peak   float64
}

// NewMeteringBridge returns the default bridge
func NewMeteringBridge(info StreamInfo, logger zerolog.Logger) Bridge {
	return &meteringBridge{
		logger:  logger.With().Str("component", "bridge").Logger(),
		metrics: observability.NewCallMetrics(),
	}
}

func (b *meteringBridge) Forward(frame []byte) {
	b.metrics.RecordAudioBytes("inbound", int64(len(frame)))

	rms := audio.CalculateRMS(audio.DecodeMuLaw(frame))
	b.frames++
	b.sumRMS += rms
	if rms > b.peak {
		b.peak = rms
	}

	if b.frames%meterEvery == 0 {
		b.logger.Debug().
			Int("frames", b.frames).
			Float64("avg_rms", b.sumRMS/meterEvery).
			Float64("peak_rms", b.peak).
			Msg("Caller audio level")
		b.sumRMS = 0
		b.peak = 0
	}
}

func (b *meteringBridge) Close() {
	b.logger.Debug().Int("frames", b.frames).Msg("Bridge closed")
}
