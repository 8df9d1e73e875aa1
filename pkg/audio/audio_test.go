package audio_test

import (
	"math"
	"testing"
	"time"

	"github.com/causerie-ai/causerie/pkg/audio"
)

func TestFrameFromSamplesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	f := audio.FrameFromSamples(samples)
	if got := f.SampleCount(); got != len(samples) {
		t.Fatalf("SampleCount = %d, want %d", got, len(samples))
	}
	for i, want := range samples {
		if got := f.Sample(i); got != want {
			t.Errorf("sample %d: got %d, want %d", i, got, want)
		}
	}
}

func TestFrameDuration(t *testing.T) {
	// 480 samples at 48 kHz is exactly 10 ms.
	f := make(audio.Frame, 480*2)
	if got := f.Duration(audio.PlaybackRate); got != 10*time.Millisecond {
		t.Errorf("Duration = %v, want 10ms", got)
	}
	if got := f.Duration(0); got != 0 {
		t.Errorf("Duration with zero rate = %v, want 0", got)
	}
}

func TestResampleIdentity(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3, 0.4}
	out := audio.Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d changed: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestResampleConstantInput(t *testing.T) {
	// Box-filter averaging of a constant signal must produce the same constant.
	in := make([]float32, 4800)
	for i := range in {
		in[i] = 0.25
	}
	out := audio.Resample(in, 48000, 16000)
	if len(out) != 1600 {
		t.Fatalf("expected 1600 output samples, got %d", len(out))
	}
	for i, v := range out {
		if math.Abs(float64(v)-0.25) > 1e-6 {
			t.Fatalf("sample %d: got %v, want 0.25", i, v)
		}
	}
}

func TestResampleAveragesWindow(t *testing.T) {
	// 2:1 decimation of alternating ±1 should average each pair to zero.
	in := []float32{1, -1, 1, -1, 1, -1, 1, -1}
	out := audio.Resample(in, 32000, 16000)
	if len(out) != 4 {
		t.Fatalf("expected 4 output samples, got %d", len(out))
	}
	for i, v := range out {
		if v != 0 {
			t.Errorf("sample %d: got %v, want 0", i, v)
		}
	}
}

func TestResampleEmptyInput(t *testing.T) {
	if out := audio.Resample(nil, 48000, 16000); len(out) != 0 {
		t.Errorf("expected empty output, got %d samples", len(out))
	}
}

func TestEncodePCM16FullScale(t *testing.T) {
	f := audio.EncodePCM16([]float32{1.0, -1.0, 0.0})
	want := []int16{32767, -32768, 0}
	for i, w := range want {
		if got := f.Sample(i); got != w {
			t.Errorf("sample %d: got %d, want %d", i, got, w)
		}
	}
}

func TestEncodePCM16Clamps(t *testing.T) {
	f := audio.EncodePCM16([]float32{2.5, -3.0})
	if got := f.Sample(0); got != 32767 {
		t.Errorf("over-range positive: got %d, want 32767", got)
	}
	if got := f.Sample(1); got != -32768 {
		t.Errorf("over-range negative: got %d, want -32768", got)
	}
}

func TestDecodePCM16(t *testing.T) {
	f := audio.FrameFromSamples([]int16{-32768, 0, 16384})
	out := audio.DecodePCM16(f)
	want := []float32{-1.0, 0.0, 0.5}
	for i, w := range want {
		if out[i] != w {
			t.Errorf("sample %d: got %v, want %v", i, out[i], w)
		}
	}
}
