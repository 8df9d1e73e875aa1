package client

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/causerie-ai/causerie/pkg/audio"
)

// frameDuration is the capture frame cadence.
const frameDuration = 20 * time.Millisecond

// PCMSource reads raw little-endian PCM16 mono audio from an io.Reader and
// yields 20 ms frames at the reader's sample rate. When paced, ReadFrame
// sleeps to match real time so a file behaves like a live microphone.
type PCMSource struct {
	r     io.ReadCloser
	rate  int
	paced bool
	buf   []byte
	next  time.Time
}

// NewPCMSource wraps r as a capture source at the given sample rate. Set
// paced for pre-recorded input that should be delivered at wall-clock speed.
func NewPCMSource(r io.ReadCloser, rate int, paced bool) *PCMSource {
	samplesPerFrame := rate * int(frameDuration) / int(time.Second)
	return &PCMSource{
		r:     r,
		rate:  rate,
		paced: paced,
		buf:   make([]byte, samplesPerFrame*2),
	}
}

// NewFileSource opens a raw PCM16 file as a paced capture source.
func NewFileSource(path string, rate int) (*PCMSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("client: open capture file: %w", err)
	}
	return NewPCMSource(f, rate, true), nil
}

// NewStdinSource wraps standard input as an unpaced capture source, for
// piping live audio from an external recorder such as arecord or sox.
func NewStdinSource(rate int) *PCMSource {
	return NewPCMSource(os.Stdin, rate, false)
}

// ReadFrame returns the next frame as float32 samples. A short final read is
// returned as a short frame; the following call reports io.EOF.
func (s *PCMSource) ReadFrame() ([]float32, error) {
	if s.paced {
		s.pace()
	}
	n, err := io.ReadFull(s.r, s.buf)
	if n == 0 {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("client: read capture: %w", err)
	}
	return audio.DecodePCM16(audio.Frame(s.buf[:n&^1])), nil
}

// SampleRate returns the source's native sample rate.
func (s *PCMSource) SampleRate() int { return s.rate }

// Close closes the underlying reader.
func (s *PCMSource) Close() error { return s.r.Close() }

// pace sleeps until the next frame boundary.
func (s *PCMSource) pace() {
	now := time.Now()
	if s.next.IsZero() {
		s.next = now
	}
	if wait := s.next.Sub(now); wait > 0 {
		time.Sleep(wait)
	}
	s.next = s.next.Add(frameDuration)
}

var _ CaptureSource = (*PCMSource)(nil)
