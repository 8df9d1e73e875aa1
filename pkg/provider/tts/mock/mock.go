// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify the
// text and SpeakConfig passed to the TTS backend. Each Speak call produces a
// Stream that emits Chunks then completes; tests can hold a stream open with
// HoldOpen and finish or stop it explicitly.
//
// Example:
//
//	p := &mock.Provider{Chunks: [][]byte{pcm1, pcm2}}
//	st, _ := p.Speak(ctx, "bonjour", tts.SpeakConfig{})
package mock

import (
	"context"
	"sync"

	"github.com/causerie-ai/causerie/pkg/provider/tts"
)

// SpeakCall records a single invocation of Speak.
type SpeakCall struct {
	// Ctx is the context passed to Speak.
	Ctx context.Context
	// Text is the utterance passed to Speak.
	Text string
	// Cfg is the SpeakConfig passed to Speak.
	Cfg tts.SpeakConfig
	// Stream is the stream Speak returned for this call.
	Stream *Stream
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the sequence of audio byte slices each returned Stream emits.
	Chunks [][]byte

	// SpeakErr, if non-nil, is returned as the error from Speak instead of
	// starting a stream.
	SpeakErr error

	// Result is delivered by each stream when it completes naturally.
	// A zero Result (clean completion) unless set.
	Result tts.Result

	// HoldOpen, when true, keeps streams open after emitting Chunks until the
	// test calls Finish or Stop on them.
	HoldOpen bool

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall
}

// Speak records the call and returns a new Stream emitting Chunks.
func (p *Provider) Speak(ctx context.Context, text string, cfg tts.SpeakConfig) (tts.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SpeakErr != nil {
		p.SpeakCalls = append(p.SpeakCalls, SpeakCall{Ctx: ctx, Text: text, Cfg: cfg})
		return nil, p.SpeakErr
	}

	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)

	st := &Stream{
		audio:  make(chan []byte, len(chunks)+1),
		done:   make(chan tts.Result, 1),
		result: p.Result,
	}
	for _, c := range chunks {
		st.audio <- c
	}
	if !p.HoldOpen {
		st.Finish(p.Result)
	}

	p.SpeakCalls = append(p.SpeakCalls, SpeakCall{Ctx: ctx, Text: text, Cfg: cfg, Stream: st})
	return st, nil
}

// SpeakCallCount returns the number of Speak calls. Thread-safe.
func (p *Provider) SpeakCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SpeakCalls)
}

// LastCall returns the most recent SpeakCall, or nil if none. Thread-safe.
func (p *Provider) LastCall() *SpeakCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.SpeakCalls) == 0 {
		return nil
	}
	c := p.SpeakCalls[len(p.SpeakCalls)-1]
	return &c
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SpeakCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// Stream is a mock in-flight synthesis. Emit feeds additional audio chunks;
// Finish and Stop terminate it.
type Stream struct {
	audio  chan []byte
	done   chan tts.Result
	result tts.Result

	mu       sync.Mutex
	finished bool
	stopped  bool
}

// Audio returns the chunk channel.
func (s *Stream) Audio() <-chan []byte { return s.audio }

// Done returns the terminal result channel.
func (s *Stream) Done() <-chan tts.Result { return s.done }

// Stop marks the stream stopped and terminates it with Stopped=true.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	s.Finish(tts.Result{Stopped: true})
}

// Emit queues an additional audio chunk. Panics if the stream has finished;
// tests control the ordering.
func (s *Stream) Emit(chunk []byte) {
	s.audio <- chunk
}

// Finish closes the audio channel and delivers res. Safe to call once; later
// calls are no-ops.
func (s *Stream) Finish(res tts.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.finished = true
	close(s.audio)
	s.done <- res
	close(s.done)
}

// WasStopped reports whether Stop was called. Thread-safe.
func (s *Stream) WasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Ensure Stream implements tts.Stream at compile time.
var _ tts.Stream = (*Stream)(nil)
