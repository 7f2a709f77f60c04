package audio

import (
	"encoding/binary"
)

const (
	wavFormatPCM  = 1
	fmtChunkMinSz = 16
)

// PCM holds mono 16-bit linear samples extracted from a WAV container
type PCM struct {
	SampleRate int
	Samples    []int16
}

// ParseWAV extracts mono PCM16 samples from a RIFF/WAVE byte slice.
// It returns nil for anything other than uncompressed PCM, 1 channel,
// 16 bits per sample, and for malformed or truncated containers.
func ParseWAV(data []byte) *PCM {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil
	}

	var (
		haveFmt    bool
		sampleRate uint32
	)

	total := int64(len(data))
	offset := int64(12)
	for offset+8 <= total {
		chunkID := string(data[offset : offset+4])
		chunkSize := int64(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < fmtChunkMinSz || body+fmtChunkMinSz > total {
				return nil
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			channels := binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample := binary.LittleEndian.Uint16(data[body+14 : body+16])

			if format != wavFormatPCM || channels != 1 || bitsPerSample != 16 || sampleRate == 0 {
				return nil
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil
			}
			// Streaming encoders may write a placeholder size, clamp to what arrived
			end := body + chunkSize
			if end > total {
				end = total
			}
			raw := data[body:end]
			samples := make([]int16, len(raw)/2)
			for i := range samples {
				samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
			}
			return &PCM{SampleRate: int(sampleRate), Samples: samples}
		}

		// Chunks are word aligned
		offset = body + chunkSize + chunkSize&1
	}

	return nil
}
