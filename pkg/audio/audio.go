// Package audio provides the fixed-format PCM primitives shared by the
// capture and playback pipelines: the Frame type, the box-filter resampler,
// and the float32 ↔ PCM16 codec.
//
// The wire format is fixed by protocol contract, not negotiated: frames do
// not carry rate or format metadata. Inbound audio (capture → recognition)
// is always 16 kHz, outbound audio (synthesis → playback) is always 48 kHz;
// both are little-endian signed 16-bit mono PCM.
package audio

import "time"

// Fixed per-direction sample rates. The transport never negotiates these.
const (
	// CaptureRate is the sample rate of audio sent to the recognition
	// adapter, in Hz.
	CaptureRate = 16000

	// PlaybackRate is the sample rate of audio produced by the synthesis
	// adapter, in Hz.
	PlaybackRate = 48000
)

// Frame is an immutable buffer of little-endian signed 16-bit mono PCM
// samples. Callers must not mutate a Frame after handing it to another
// component; share freely, copy never.
type Frame []byte

// SampleCount returns the number of int16 samples in the frame. A trailing
// odd byte, which cannot occur on a well-formed frame, is ignored.
func (f Frame) SampleCount() int {
	return len(f) / 2
}

// Duration returns the playback duration of the frame at the given sample
// rate. Returns zero for a non-positive rate.
func (f Frame) Duration(rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(f.SampleCount()) * time.Second / time.Duration(rate)
}

// Sample returns the i-th int16 sample. The caller is responsible for
// bounds: i must be in [0, SampleCount()).
func (f Frame) Sample(i int) int16 {
	return int16(f[i*2]) | int16(f[i*2+1])<<8
}

// FrameFromSamples packs int16 samples into a little-endian Frame.
func FrameFromSamples(samples []int16) Frame {
	out := make(Frame, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// Resample converts float32 samples from srcRate to dstRate using box-filter
// decimation: each output sample is the mean of every input sample whose time
// window maps onto it. Averaging the window rather than picking the nearest
// sample suppresses the aliasing that plain decimation introduces.
//
// If srcRate equals dstRate the input slice is returned unchanged. Rates
// must be positive; otherwise the input is returned as-is.
func Resample(in []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return in
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(float64(len(in))/ratio + 0.5)
	if outLen == 0 {
		return nil
	}

	out := make([]float32, outLen)
	srcStart := 0
	for i := range out {
		srcEnd := int(float64(i+1)*ratio + 0.5)
		var sum float64
		count := 0
		for j := srcStart; j < srcEnd && j < len(in); j++ {
			sum += float64(in[j])
			count++
		}
		if count > 0 {
			out[i] = float32(sum / float64(count))
		}
		srcStart = srcEnd
	}
	return out
}

// EncodePCM16 converts float32 samples in the nominal range [-1, 1] to a
// PCM16 Frame. Samples are clamped first; negative values scale by 32768 and
// positive values by 32767, matching the asymmetric full-scale range of
// signed 16-bit PCM (so -1.0 → -32768 and 1.0 → 32767 exactly).
func EncodePCM16(in []float32) Frame {
	out := make(Frame, len(in)*2)
	for i, v := range in {
		if v < -1 {
			v = -1
		} else if v > 1 {
			v = 1
		}
		var s int16
		if v < 0 {
			s = int16(v * 32768)
		} else {
			s = int16(v * 32767)
		}
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodePCM16 converts a PCM16 Frame back to float32 samples in [-1, 1),
// dividing uniformly by 32768. This is the playback-side inverse of
// [EncodePCM16]; the codec round-trips within one quantisation step.
func DecodePCM16(f Frame) []float32 {
	out := make([]float32, f.SampleCount())
	for i := range out {
		out[i] = float32(f.Sample(i)) / 32768
	}
	return out
}
