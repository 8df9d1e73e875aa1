// Package stt defines the Provider interface for streaming Speech-to-Text
// backends.
//
// An STT provider wraps a real-time transcription service (e.g. Deepgram) and
// exposes a uniform streaming interface. The central abstraction is Stream:
// once opened, a stream accepts raw PCM16 audio chunks and emits a single
// ordered sequence of Events carrying interim transcripts, committed
// transcripts, and voice-activity boundaries.
//
// Implementations must be safe for concurrent use. Audio input and the event
// channel are goroutine-safe by construction.
package stt

import "context"

// StreamConfig describes the audio format and recognition hints for a new STT
// stream. All fields must be compatible with what the underlying provider
// supports; see each provider's documentation for valid ranges.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Sessions send 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// STT providers).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g. "fr", "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// Keywords is a list of vocabulary hints that increase recognition
	// probability for words the learner is currently practicing.
	Keywords []string

	// InterimResults enables low-latency partial transcripts.
	InterimResults bool

	// VADEvents enables speech-boundary events (EventSpeechStarted,
	// EventSpeechEnded) for providers that detect them server-side.
	VADEvents bool

	// EndpointingMs is the silence duration, in milliseconds, after which the
	// provider finalises the in-flight utterance. Zero uses the provider
	// default.
	EndpointingMs int

	// UtteranceEndMs is the gap, in milliseconds, after which the provider
	// emits an utterance-end marker. Zero disables the marker.
	UtteranceEndMs int
}

// Stream represents an open STT streaming session. It is an interface so that
// test code can provide mock implementations without a live provider
// connection.
//
// Callers must call Close when the stream is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type Stream interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. The chunk must match the SampleRate, Channels, and
	// bit-depth agreed in StreamConfig. Calling SendAudio after Close returns
	// an error.
	SendAudio(chunk []byte) error

	// Events returns a read-only channel emitting the stream's event sequence
	// in provider order. The channel is closed after an EventClosed is
	// delivered; no events follow it.
	Events() <-chan Event

	// Close terminates the stream, flushes any pending audio, and releases
	// all associated resources. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; multiple streams may be
// open simultaneously, one per connected session.
type Provider interface {
	// StartStream opens a new streaming transcription session with the given
	// audio format and recognition configuration. The returned Stream is
	// ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session (e.g.
	// authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the Stream and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}
