package audio

import (
	"math"

	"github.com/zaf/g711"
)

const (
	// SampleRate is the telephony sample rate (8kHz narrowband)
	SampleRate = 8000

	// FrameSize is the number of µ-law bytes in one 20ms frame at 8kHz
	FrameSize = 160

	// silenceByte is µ-law digital silence (encoded zero)
	silenceByte = 0xFF
)

// SilenceFrame returns a fresh 160-byte frame of µ-law digital silence
func SilenceFrame() []byte {
	frame := make([]byte, FrameSize)
	for i := range frame {
		frame[i] = silenceByte
	}
	return frame
}

// EncodeMuLaw converts 16-bit linear PCM samples to G.711 µ-law bytes.
// One output byte per input sample.
func EncodeMuLaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, sample := range samples {
		// -32768 has no positive counterpart in int16
		if sample == math.MinInt16 {
			sample = -math.MaxInt16
		}
		out[i] = g711.EncodeUlawFrame(sample)
	}
	return out
}

// DecodeMuLaw converts G.711 µ-law bytes to 16-bit linear PCM samples
func DecodeMuLaw(mulaw []byte) []int16 {
	out := make([]int16, len(mulaw))
	for i, b := range mulaw {
		out[i] = g711.DecodeUlawFrame(b)
	}
	return out
}

// Downsample16kTo8k halves the sample rate by keeping every other sample.
// No anti-aliasing filter is applied; narrowband speech tolerates it.
func Downsample16kTo8k(samples []int16) []int16 {
	out := make([]int16, (len(samples)+1)/2)
	for i := range out {
		out[i] = samples[i*2]
	}
	return out
}

// ResampleTo8k brings mono PCM at sampleRate down (or up) to 8kHz.
// 16kHz input uses plain decimation, other rates use linear interpolation.
func ResampleTo8k(samples []int16, sampleRate int) []int16 {
	switch sampleRate {
	case SampleRate:
		return samples
	case 2 * SampleRate:
		return Downsample16kTo8k(samples)
	default:
		return resample(samples, sampleRate, SampleRate)
	}
}

// resample performs simple linear interpolation resampling
func resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || inputRate <= 0 || outputRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		if idx0 >= len(samples) {
			idx0 = len(samples) - 1
		}
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// Frames splits a µ-law stream into FrameSize chunks. A short tail is padded
// with silence so every frame is exactly FrameSize bytes.
func Frames(mulaw []byte) [][]byte {
	if len(mulaw) == 0 {
		return nil
	}

	frames := make([][]byte, 0, (len(mulaw)+FrameSize-1)/FrameSize)
	for start := 0; start < len(mulaw); start += FrameSize {
		frame := SilenceFrame()
		copy(frame, mulaw[start:])
		frames = append(frames, frame)
	}
	return frames
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
// Useful for detecting audio levels and silence
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
