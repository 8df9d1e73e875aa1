package stt

import "time"

// EventKind discriminates the values on a Stream's event channel.
type EventKind int

const (
	// EventPartial carries an interim transcript. Each partial supersedes the
	// previous one for the same utterance.
	EventPartial EventKind = iota

	// EventFinal carries a committed transcript.
	EventFinal

	// EventSpeechStarted marks the onset of voice activity.
	EventSpeechStarted

	// EventSpeechEnded marks the end of voice activity.
	EventSpeechEnded

	// EventUtteranceEnd marks a silence gap long enough that the provider
	// considers the utterance complete.
	EventUtteranceEnd

	// EventError carries a stream-level failure. The stream is unusable
	// afterwards; EventClosed follows.
	EventError

	// EventClosed is the last event on the channel, emitted whether the
	// stream ended cleanly or after an error.
	EventClosed
)

// String returns the kind's wire-style name, for logs.
func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventSpeechStarted:
		return "speech_started"
	case EventSpeechEnded:
		return "speech_ended"
	case EventUtteranceEnd:
		return "utterance_end"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one element of a Stream's ordered event sequence.
type Event struct {
	Kind EventKind

	// Transcript is set for EventPartial and EventFinal.
	Transcript Transcript

	// Err is set for EventError.
	Err error
}

// Transcript represents a speech-to-text result. Both partial (interim) and
// final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0 to 1.0). May be zero
	// if the provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available. May be nil for
	// providers that don't support word-level output.
	Words []WordDetail

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}
