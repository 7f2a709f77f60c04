package telephony

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lexiqai/media-bridge/internal/audio"
)

type fakeSink struct {
	mu       sync.Mutex
	frames   [][]byte
	buffered int
	err      error
}

func (f *fakeSink) SendFrame(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, append([]byte(nil), frame...))
	return nil
}

func (f *fakeSink) BufferedAmount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffered
}

func (f *fakeSink) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func frameOf(b byte) []byte {
	return bytes.Repeat([]byte{b}, audio.FrameSize)
}

func newTestPacer(prebuffer int) (*Pacer, *audio.FrameQueue, *fakeSink) {
	queue := audio.NewFrameQueue()
	sink := &fakeSink{}
	pacer := NewPacer(queue, sink, PacerConfig{
		PrebufferFrames:  prebuffer,
		MaxBufferedBytes: 2 * 1024 * 1024,
	}, nil)
	return pacer, queue, sink
}

func TestPacer_WaitsForPrebuffer(t *testing.T) {
	pacer, queue, sink := newTestPacer(5)

	for i := 0; i < 4; i++ {
		queue.Push(frameOf(byte(i)))
		if got := pacer.Tick(); got != TickWaiting {
			t.Fatalf("Tick with %d frames queued = %s, want waiting", queue.Len(), got)
		}
	}
	if len(sink.sent()) != 0 {
		t.Fatalf("Expected nothing sent before prebuffer, got %d frames", len(sink.sent()))
	}

	queue.Push(frameOf(4))
	if got := pacer.Tick(); got != TickAudio {
		t.Fatalf("Tick at threshold = %s, want audio", got)
	}
	if !pacer.Started() {
		t.Error("Expected pacer to be started")
	}

	sent := sink.sent()
	if len(sent) != 1 || sent[0][0] != 0 {
		t.Errorf("Expected first queued frame to be sent first, got %v", sent)
	}
}

func TestPacer_PreservesOrder(t *testing.T) {
	pacer, queue, sink := newTestPacer(3)

	for i := 0; i < 6; i++ {
		queue.Push(frameOf(byte(i)))
	}
	for i := 0; i < 6; i++ {
		if got := pacer.Tick(); got != TickAudio {
			t.Fatalf("Tick %d = %s, want audio", i, got)
		}
	}

	for i, frame := range sink.sent() {
		if frame[0] != byte(i) {
			t.Errorf("Frame %d has marker %d", i, frame[0])
		}
	}
}

func TestPacer_SilenceWhenQueueRunsDry(t *testing.T) {
	pacer, queue, sink := newTestPacer(2)
	queue.Push(frameOf(1), frameOf(2))

	outcomes := []TickOutcome{pacer.Tick(), pacer.Tick(), pacer.Tick(), pacer.Tick()}
	want := []TickOutcome{TickAudio, TickAudio, TickSilence, TickSilence}
	for i := range want {
		if outcomes[i] != want[i] {
			t.Errorf("Tick %d = %s, want %s", i, outcomes[i], want[i])
		}
	}

	sent := sink.sent()
	if len(sent) != 4 {
		t.Fatalf("Expected a frame on every tick once started, got %d", len(sent))
	}
	for _, frame := range sent[2:] {
		if !bytes.Equal(frame, audio.SilenceFrame()) {
			t.Error("Expected silence frame when queue is empty")
		}
	}
	for _, frame := range sent {
		if len(frame) != audio.FrameSize {
			t.Errorf("Frame length = %d, want %d", len(frame), audio.FrameSize)
		}
	}

	// Late frames resume playback without a new prebuffer
	queue.Push(frameOf(3))
	if got := pacer.Tick(); got != TickAudio {
		t.Errorf("Tick after refill = %s, want audio", got)
	}
}

func TestPacer_EndOfStreamStartsShortGreeting(t *testing.T) {
	pacer, queue, sink := newTestPacer(5)
	queue.Push(frameOf(7), frameOf(8))

	if got := pacer.Tick(); got != TickWaiting {
		t.Fatalf("Tick before end of stream = %s, want waiting", got)
	}

	pacer.MarkEndOfStream()
	if got := pacer.Tick(); got != TickAudio {
		t.Fatalf("Tick after end of stream = %s, want audio", got)
	}
	if sent := sink.sent(); len(sent) != 1 || sent[0][0] != 7 {
		t.Errorf("Unexpected frames sent: %d", len(sent))
	}
}

func TestPacer_EmptyGreetingStaysIdle(t *testing.T) {
	pacer, _, sink := newTestPacer(5)
	pacer.MarkEndOfStream()

	for i := 0; i < 10; i++ {
		if got := pacer.Tick(); got != TickWaiting {
			t.Fatalf("Tick %d = %s, want waiting", i, got)
		}
	}
	if len(sink.sent()) != 0 {
		t.Errorf("Expected no frames, got %d", len(sink.sent()))
	}
}

func TestPacer_DropsUnderBackpressure(t *testing.T) {
	pacer, queue, sink := newTestPacer(1)
	queue.Push(frameOf(1), frameOf(2), frameOf(3))

	sink.mu.Lock()
	sink.buffered = 2*1024*1024 + 1
	sink.mu.Unlock()

	if got := pacer.Tick(); got != TickDropped {
		t.Fatalf("Tick under backpressure = %s, want dropped", got)
	}
	if len(sink.sent()) != 0 {
		t.Fatal("Expected no frame sent under backpressure")
	}
	if queue.Len() != 2 {
		t.Errorf("Expected dropped frame to be consumed, queue has %d", queue.Len())
	}

	sink.mu.Lock()
	sink.buffered = 2 * 1024 * 1024
	sink.mu.Unlock()

	if got := pacer.Tick(); got != TickAudio {
		t.Fatalf("Tick at ceiling = %s, want audio", got)
	}
	if sent := sink.sent(); len(sent) != 1 || sent[0][0] != 2 {
		t.Errorf("Expected frame 2 after the drop, got %v", sent)
	}
}

func TestPacer_SendErrorCountsAsDrop(t *testing.T) {
	pacer, queue, sink := newTestPacer(1)
	queue.Push(frameOf(1))
	sink.err = errors.New("queue full")

	if got := pacer.Tick(); got != TickDropped {
		t.Errorf("Tick with failing sink = %s, want dropped", got)
	}
}

func TestPacer_RunStopsOnCancel(t *testing.T) {
	queue := audio.NewFrameQueue()
	sink := &fakeSink{}
	pacer := NewPacer(queue, sink, PacerConfig{
		Interval:         2 * time.Millisecond,
		PrebufferFrames:  1,
		MaxBufferedBytes: 1 << 20,
	}, nil)
	queue.Push(frameOf(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pacer.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(sink.sent()) < 3 {
		select {
		case <-deadline:
			t.Fatal("Pacer did not emit frames")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sentAtStop := len(sink.sent())
	time.Sleep(10 * time.Millisecond)
	if got := len(sink.sent()); got != sentAtStop {
		t.Errorf("Pacer sent %d frames after stopping", got-sentAtStop)
	}
}
