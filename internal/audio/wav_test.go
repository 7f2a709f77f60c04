package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

type wavFormat struct {
	format     uint16
	channels   uint16
	sampleRate uint32
	bits       uint16
	extra      []byte // chunk inserted between fmt and data
}

func buildWAV(wf wavFormat, samples []int16) []byte {
	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}

	var body bytes.Buffer
	body.WriteString("WAVE")
	body.WriteString("fmt ")
	binary.Write(&body, binary.LittleEndian, uint32(16))
	binary.Write(&body, binary.LittleEndian, wf.format)
	binary.Write(&body, binary.LittleEndian, wf.channels)
	binary.Write(&body, binary.LittleEndian, wf.sampleRate)
	binary.Write(&body, binary.LittleEndian, wf.sampleRate*uint32(wf.channels)*uint32(wf.bits/8))
	binary.Write(&body, binary.LittleEndian, wf.channels*wf.bits/8)
	binary.Write(&body, binary.LittleEndian, wf.bits)
	body.Write(wf.extra)
	body.WriteString("data")
	binary.Write(&body, binary.LittleEndian, uint32(data.Len()))
	body.Write(data.Bytes())

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func monoPCM16(rate uint32) wavFormat {
	return wavFormat{format: 1, channels: 1, sampleRate: rate, bits: 16}
}

func TestParseWAV_Mono16(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	pcm := ParseWAV(buildWAV(monoPCM16(16000), samples))
	if pcm == nil {
		t.Fatal("Expected parsed PCM, got nil")
	}

	if pcm.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", pcm.SampleRate)
	}
	if len(pcm.Samples) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(pcm.Samples))
	}
	for i := range samples {
		if pcm.Samples[i] != samples[i] {
			t.Errorf("Expected sample %d at index %d, got %d", samples[i], i, pcm.Samples[i])
		}
	}
}

func TestParseWAV_SkipsUnknownChunks(t *testing.T) {
	// Odd-sized LIST chunk followed by its pad byte
	var list bytes.Buffer
	list.WriteString("LIST")
	binary.Write(&list, binary.LittleEndian, uint32(3))
	list.Write([]byte{'a', 'b', 'c', 0})

	wf := monoPCM16(8000)
	wf.extra = list.Bytes()

	pcm := ParseWAV(buildWAV(wf, []int16{7, 8, 9}))
	if pcm == nil {
		t.Fatal("Expected parsed PCM, got nil")
	}
	if len(pcm.Samples) != 3 || pcm.Samples[2] != 9 {
		t.Errorf("Expected samples [7 8 9], got %v", pcm.Samples)
	}
}

func TestParseWAV_Unsupported(t *testing.T) {
	tests := []struct {
		name string
		format wavFormat
	}{
		{"stereo", wavFormat{format: 1, channels: 2, sampleRate: 16000, bits: 16}},
		{"8-bit", wavFormat{format: 1, channels: 1, sampleRate: 16000, bits: 8}},
		{"24-bit", wavFormat{format: 1, channels: 1, sampleRate: 16000, bits: 24}},
		{"float", wavFormat{format: 3, channels: 1, sampleRate: 16000, bits: 16}},
		{"mulaw", wavFormat{format: 7, channels: 1, sampleRate: 8000, bits: 16}},
		{"extensible", wavFormat{format: 0xFFFE, channels: 1, sampleRate: 16000, bits: 16}},
		{"zero rate", wavFormat{format: 1, channels: 1, sampleRate: 0, bits: 16}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if pcm := ParseWAV(buildWAV(tt.format, []int16{1, 2, 3, 4})); pcm != nil {
				t.Errorf("Expected nil for %s, got %+v", tt.name, pcm)
			}
		})
	}
}

func TestParseWAV_Malformed(t *testing.T) {
	valid := buildWAV(monoPCM16(8000), []int16{1, 2, 3, 4})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("RIFF")},
		{"not riff", append([]byte("RIFX"), valid[4:]...)},
		{"not wave", append(append([]byte{}, valid[:8]...), append([]byte("AVI "), valid[12:]...)...)},
		{"header only", valid[:12]},
		{"truncated fmt", valid[:24]},
		{"json body", []byte(`{"error":"quota exceeded"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if pcm := ParseWAV(tt.data); pcm != nil {
				t.Errorf("Expected nil, got %+v", pcm)
			}
		})
	}
}

func TestParseWAV_DataBeforeFmt(t *testing.T) {
	var body bytes.Buffer
	body.WriteString("RIFF")
	binary.Write(&body, binary.LittleEndian, uint32(16))
	body.WriteString("WAVE")
	body.WriteString("data")
	binary.Write(&body, binary.LittleEndian, uint32(4))
	body.Write([]byte{1, 0, 2, 0})

	if pcm := ParseWAV(body.Bytes()); pcm != nil {
		t.Errorf("Expected nil when data precedes fmt, got %+v", pcm)
	}
}

func TestParseWAV_TruncatedData(t *testing.T) {
	wav := buildWAV(monoPCM16(8000), []int16{1, 2, 3, 4, 5})
	// Drop the last sample and a half; the declared data size now overruns
	truncated := wav[:len(wav)-3]

	pcm := ParseWAV(truncated)
	if pcm == nil {
		t.Fatal("Expected partial PCM for truncated data chunk")
	}
	if len(pcm.Samples) != 3 {
		t.Errorf("Expected 3 whole samples, got %d", len(pcm.Samples))
	}
}

func TestParseWAV_StreamingPlaceholderSize(t *testing.T) {
	wav := buildWAV(monoPCM16(24000), []int16{5, 6})
	// Streaming encoders write 0xFFFFFFFF when the length is unknown
	binary.LittleEndian.PutUint32(wav[len(wav)-8:], 0xFFFFFFFF)

	pcm := ParseWAV(wav)
	if pcm == nil {
		t.Fatal("Expected PCM with placeholder data size")
	}
	if len(pcm.Samples) != 2 {
		t.Errorf("Expected 2 samples, got %d", len(pcm.Samples))
	}
}
