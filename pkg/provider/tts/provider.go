// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g. Deepgram Aura) and
// presents a uniform one-shot streaming interface. The primary entry point is
// Speak, which synthesises a single utterance and returns a Stream emitting
// raw PCM audio chunks as they become available, so playback can begin before
// synthesis completes.
//
// Implementations must be safe for concurrent use. A session runs at most one
// synthesis at a time; enforcing that is the caller's job, not the provider's.
package tts

import "context"

// SpeakConfig describes the voice and output format for one synthesis.
type SpeakConfig struct {
	// Voice is the provider-specific voice identifier. Empty selects the
	// provider default.
	Voice string

	// SampleRate is the output sample rate in Hz. Sessions synthesise at
	// 48000. Zero uses the provider default.
	SampleRate int
}

// Stream is one in-flight synthesis. The audio channel carries raw PCM16
// chunks in synthesis order; Done resolves exactly once, after the audio
// channel is closed.
type Stream interface {
	// Audio returns a read-only channel of raw PCM byte chunks. It is closed
	// when synthesis finishes, fails, or is stopped. The caller must drain it
	// to avoid blocking the provider's internal goroutines.
	Audio() <-chan []byte

	// Done returns a channel that delivers exactly one Result after the audio
	// channel has closed, then is itself closed.
	Done() <-chan Result

	// Stop abandons the synthesis and discards any audio not yet emitted.
	// Safe to call multiple times and after completion.
	Stop()
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Speak starts synthesising text and returns a live Stream. The text is
	// complete at call time; providers flush it immediately.
	//
	// Returns an error only if synthesis cannot be started (e.g.
	// authentication failure or ctx already cancelled). Failures after start
	// are reported through the Stream's Result.
	Speak(ctx context.Context, text string, cfg SpeakConfig) (Stream, error)
}
