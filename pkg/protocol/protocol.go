// Package protocol defines the text-framed control records exchanged over a
// session's WebSocket, shared by the server and the Go client.
//
// Every transport message is exactly one record: binary frames carry raw
// PCM16 audio (16 kHz inbound, 48 kHz outbound) with no header, and text
// frames carry one JSON record with a `type` discriminant. The two are never
// mixed within a message.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the discriminant of a control record.
type Type string

// Client → server record types.
const (
	// TypeGetLessonPlan requests a snapshot of the current lesson plan.
	TypeGetLessonPlan Type = "get_lesson_plan"

	// TypeReset clears conversation history and learned facts without
	// closing the connection.
	TypeReset Type = "reset"

	// TypeStopTTS cancels the active synthesis, if any.
	TypeStopTTS Type = "stop_tts"

	// TypeSpeakWord requests one-shot synthesis of a single vocabulary word.
	// Honoured only while no synthesis is active.
	TypeSpeakWord Type = "speak_word"
)

// Server → client record types.
const (
	// TypePartial carries an ephemeral interim transcript. Superseded by the
	// next partial or by the final.
	TypePartial Type = "partial"

	// TypeFinal carries a committed transcript.
	TypeFinal Type = "final"

	// TypeTutorResponse carries the tutor's reply text.
	TypeTutorResponse Type = "tutor_response"

	// TypeTutorNotes carries the structured learning metadata attached to a
	// reply.
	TypeTutorNotes Type = "tutor_notes"

	// TypeTTSState announces a synthesis state change. Speaking=false always
	// carries a reason.
	TypeTTSState Type = "tts_state"

	// TypeLessonPlan carries a lesson plan snapshot.
	TypeLessonPlan Type = "lesson_plan"

	// TypeVocabUpdate carries newly learned vocabulary items.
	TypeVocabUpdate Type = "vocab_update"

	// TypeStatus carries a non-fatal diagnostic.
	TypeStatus Type = "status"

	// TypeVAD carries a voice-activity boundary notice.
	TypeVAD Type = "vad"
)

// StopReason tags why synthesis stopped.
type StopReason string

const (
	ReasonStop       StopReason = "stop"
	ReasonDone       StopReason = "done"
	ReasonBargeIn    StopReason = "barge_in"
	ReasonError      StopReason = "error"
	ReasonClientStop StopReason = "client_stop"
	ReasonClose      StopReason = "close"
)

// VADEvent is a voice-activity boundary.
type VADEvent string

const (
	VADSpeechStarted VADEvent = "speech_started"
	VADSpeechEnded   VADEvent = "speech_ended"
)

// StepStatus is the progress state of one lesson step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCurrent   StepStatus = "current"
	StepCompleted StepStatus = "completed"
)

// LessonStep is one unit of the lesson plan.
type LessonStep struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

// LessonPlan is a snapshot of the session's learning plan.
type LessonPlan struct {
	Steps []LessonStep `json:"steps"`
}

// VocabItem is one vocabulary entry surfaced to the learner.
type VocabItem struct {
	Word          string `json:"word"`
	Translation   string `json:"translation,omitempty"`
	Pronunciation string `json:"pronunciation,omitempty"`
	Practiced     int    `json:"practiced,omitempty"`
}

// Notes is the structured learning metadata a reply carries alongside its
// speech: the tutor's running assessment of the learner.
type Notes struct {
	CEFRGuess   string   `json:"cefr_guess,omitempty"`
	Corrections []string `json:"corrections,omitempty"`
	NewVocab    []string `json:"new_vocab,omitempty"`
	NextStep    string   `json:"next_step,omitempty"`
}

// Message is one control record. Which payload fields are meaningful depends
// on Type; all are omitted from the wire encoding when unset.
type Message struct {
	Type Type `json:"type"`

	// speak_word
	Word string `json:"word,omitempty"`

	// partial, final
	Text string `json:"text,omitempty"`

	// tutor_response
	Speech string `json:"speech,omitempty"`

	// tts_state
	Speaking *bool      `json:"speaking,omitempty"`
	Reason   StopReason `json:"reason,omitempty"`

	// lesson_plan
	Lesson *LessonPlan `json:"lesson,omitempty"`

	// vocab_update
	Vocab []VocabItem `json:"vocab,omitempty"`

	// tutor_notes
	Notes *Notes `json:"notes,omitempty"`

	// status
	OK     *bool  `json:"ok,omitempty"`
	Status string `json:"message,omitempty"`
	Error  string `json:"error,omitempty"`

	// vad
	Event VADEvent `json:"event,omitempty"`
}

// ErrUnknownType is returned by Decode for records whose type is missing or
// not part of the protocol. Callers treat this as malformed input: log and
// drop, never crash the session.
var ErrUnknownType = errors.New("protocol: unknown message type")

var knownTypes = map[Type]bool{
	TypeGetLessonPlan: true,
	TypeReset:         true,
	TypeStopTTS:       true,
	TypeSpeakWord:     true,
	TypePartial:       true,
	TypeFinal:         true,
	TypeTutorResponse: true,
	TypeTutorNotes:    true,
	TypeTTSState:      true,
	TypeLessonPlan:    true,
	TypeVocabUpdate:   true,
	TypeStatus:        true,
	TypeVAD:           true,
}

// Decode parses one text frame into a Message. Returns [ErrUnknownType]
// (wrapped with the offending type) when the discriminant is unrecognised.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("protocol: decode: %w", err)
	}
	if !knownTypes[m.Type] {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return m, nil
}

// Encode serialises m to one text frame.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Type, err)
	}
	return data, nil
}

// ─── Constructors ────────────────────────────────────────────────────────────

// Partial builds an ephemeral transcript record.
func Partial(text string) Message {
	return Message{Type: TypePartial, Text: text}
}

// Final builds a committed transcript record.
func Final(text string) Message {
	return Message{Type: TypeFinal, Text: text}
}

// TutorResponse builds a reply-text record.
func TutorResponse(speech string) Message {
	return Message{Type: TypeTutorResponse, Speech: speech}
}

// TutorNotes builds a learning-metadata record.
func TutorNotes(notes Notes) Message {
	return Message{Type: TypeTutorNotes, Notes: &notes}
}

// TTSState builds a synthesis state-change record. The reason is included
// only when synthesis stops.
func TTSState(speaking bool, reason StopReason) Message {
	m := Message{Type: TypeTTSState, Speaking: &speaking}
	if !speaking {
		m.Reason = reason
	}
	return m
}

// LessonPlanMsg builds a lesson plan snapshot record.
func LessonPlanMsg(plan LessonPlan) Message {
	return Message{Type: TypeLessonPlan, Lesson: &plan}
}

// VocabUpdate builds a vocabulary update record.
func VocabUpdate(items []VocabItem) Message {
	return Message{Type: TypeVocabUpdate, Vocab: items}
}

// StatusOK builds a non-fatal informational status record.
func StatusOK(message string) Message {
	ok := true
	return Message{Type: TypeStatus, OK: &ok, Status: message}
}

// StatusErr builds a non-fatal error status record.
func StatusErr(message string, err error) Message {
	ok := false
	m := Message{Type: TypeStatus, OK: &ok, Status: message}
	if err != nil {
		m.Error = err.Error()
	}
	return m
}

// VAD builds a voice-activity boundary record.
func VAD(event VADEvent) Message {
	return Message{Type: TypeVAD, Event: event}
}
