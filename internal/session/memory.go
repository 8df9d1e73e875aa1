// Package session holds the per-learner state a tutoring session accumulates:
// bounded conversation history, learned vocabulary, recurring errors, and the
// tutor's running CEFR estimate.
//
// A Memory is owned by its session's event loop and is not safe for
// concurrent use.
package session

import (
	"strings"
	"time"

	"github.com/causerie-ai/causerie/pkg/protocol"
	"github.com/causerie-ai/causerie/pkg/provider/llm"
)

// Retention caps. History keeps the most recent turns; vocabulary keeps the
// earliest-learned words so a long session does not forget its fundamentals.
const (
	HistoryCap = 20
	VocabCap   = 60

	// errorKeyLen truncates correction text into a stable map key so minor
	// rephrasings of the same correction still count as one recurring error.
	errorKeyLen = 80
)

// VocabEntry is one vocabulary item the learner has encountered.
type VocabEntry struct {
	Word          string
	Translation   string
	Pronunciation string
	Practiced     int
	AddedAt       time.Time
}

// ErrorCount pairs a correction with how often the tutor has had to repeat it.
type ErrorCount struct {
	Correction string
	Count      int
}

// Memory is the complete mutable state of one tutoring session.
type Memory struct {
	history   []llm.Message
	turns     int
	vocab     []VocabEntry
	vocabIdx  map[string]int
	recurring map[string]*ErrorCount
	errOrder  []string
	cefr      string

	now func() time.Time
}

// NewMemory returns an empty session memory.
func NewMemory() *Memory {
	return &Memory{
		vocabIdx:  make(map[string]int),
		recurring: make(map[string]*ErrorCount),
		now:       time.Now,
	}
}

// AddUserTurn appends a committed learner transcript to the history.
func (m *Memory) AddUserTurn(text string) {
	m.appendTurn(llm.Message{Role: llm.RoleUser, Content: text})
}

// AddTutorTurn appends a tutor reply to the history.
func (m *Memory) AddTutorTurn(text string) {
	m.appendTurn(llm.Message{Role: llm.RoleAssistant, Content: text})
}

func (m *Memory) appendTurn(msg llm.Message) {
	m.history = append(m.history, msg)
	m.turns++
	if len(m.history) > HistoryCap {
		m.history = m.history[len(m.history)-HistoryCap:]
	}
}

// History returns a copy of the retained conversation, oldest first.
func (m *Memory) History() []llm.Message {
	out := make([]llm.Message, len(m.history))
	copy(out, m.history)
	return out
}

// ApplyNotes folds a reply's learning metadata into the session state and
// returns any vocabulary items that were newly added, for surfacing to the
// client.
func (m *Memory) ApplyNotes(notes protocol.Notes) []protocol.VocabItem {
	if notes.CEFRGuess != "" {
		m.cefr = notes.CEFRGuess
	}
	for _, c := range notes.Corrections {
		m.recordError(c)
	}

	var added []protocol.VocabItem
	for _, w := range notes.NewVocab {
		if entry, ok := m.addVocab(w); ok {
			added = append(added, protocol.VocabItem{
				Word:          entry.Word,
				Translation:   entry.Translation,
				Pronunciation: entry.Pronunciation,
			})
		}
	}
	return added
}

// recordError increments the recurring-error counter under a truncated key.
func (m *Memory) recordError(correction string) {
	correction = strings.TrimSpace(correction)
	if correction == "" {
		return
	}
	key := errorKey(correction)
	if ec, ok := m.recurring[key]; ok {
		ec.Count++
		return
	}
	m.recurring[key] = &ErrorCount{Correction: correction, Count: 1}
	m.errOrder = append(m.errOrder, key)
}

func errorKey(correction string) string {
	key := strings.ToLower(correction)
	if len(key) > errorKeyLen {
		key = key[:errorKeyLen]
	}
	return key
}

// addVocab inserts a word if it is new and the vocabulary cap allows. The
// word may carry an inline gloss ("word - translation"); anything after the
// first separator becomes the translation.
func (m *Memory) addVocab(raw string) (VocabEntry, bool) {
	word, translation := splitGloss(raw)
	if word == "" {
		return VocabEntry{}, false
	}
	key := vocabKey(word)
	if _, exists := m.vocabIdx[key]; exists {
		return VocabEntry{}, false
	}
	if len(m.vocab) >= VocabCap {
		return VocabEntry{}, false
	}
	entry := VocabEntry{Word: word, Translation: translation, AddedAt: m.now()}
	m.vocabIdx[key] = len(m.vocab)
	m.vocab = append(m.vocab, entry)
	return entry, true
}

// splitGloss splits "word - translation" or "word: translation" forms.
func splitGloss(raw string) (word, translation string) {
	raw = strings.TrimSpace(raw)
	for _, sep := range []string{" - ", " – ", ": ", " = "} {
		if i := strings.Index(raw, sep); i > 0 {
			return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+len(sep):])
		}
	}
	return raw, ""
}

func vocabKey(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// MarkPracticed increments the practice counter for a known word. Reports
// whether the word was in the vocabulary.
func (m *Memory) MarkPracticed(word string) bool {
	idx, ok := m.vocabIdx[vocabKey(word)]
	if !ok {
		return false
	}
	m.vocab[idx].Practiced++
	return true
}

// Vocab returns the learned vocabulary as protocol items, oldest first.
func (m *Memory) Vocab() []protocol.VocabItem {
	out := make([]protocol.VocabItem, 0, len(m.vocab))
	for _, v := range m.vocab {
		out = append(out, protocol.VocabItem{
			Word:          v.Word,
			Translation:   v.Translation,
			Pronunciation: v.Pronunciation,
			Practiced:     v.Practiced,
		})
	}
	return out
}

// VocabWords returns just the learned words, for STT recognition hints.
func (m *Memory) VocabWords() []string {
	out := make([]string, 0, len(m.vocab))
	for _, v := range m.vocab {
		out = append(out, v.Word)
	}
	return out
}

// RecurringErrors returns corrections in first-seen order with their counts.
func (m *Memory) RecurringErrors() []ErrorCount {
	out := make([]ErrorCount, 0, len(m.errOrder))
	for _, key := range m.errOrder {
		out = append(out, *m.recurring[key])
	}
	return out
}

// CEFR returns the tutor's current level estimate, or "" before the first
// assessment.
func (m *Memory) CEFR() string { return m.cefr }

// ExchangeCount returns the number of retained history turns.
func (m *Memory) ExchangeCount() int { return len(m.history) }

// TotalTurns returns the number of turns added over the session's lifetime,
// including ones the history cap has since evicted.
func (m *Memory) TotalTurns() int { return m.turns }

// Clone returns an independent deep copy. The event loop hands clones to
// reply-generation goroutines so they can read session state while the loop
// keeps mutating the original.
func (m *Memory) Clone() *Memory {
	cp := &Memory{
		history:   make([]llm.Message, len(m.history)),
		turns:     m.turns,
		vocab:     make([]VocabEntry, len(m.vocab)),
		vocabIdx:  make(map[string]int, len(m.vocabIdx)),
		recurring: make(map[string]*ErrorCount, len(m.recurring)),
		errOrder:  make([]string, len(m.errOrder)),
		cefr:      m.cefr,
		now:       m.now,
	}
	copy(cp.history, m.history)
	copy(cp.vocab, m.vocab)
	copy(cp.errOrder, m.errOrder)
	for k, v := range m.vocabIdx {
		cp.vocabIdx[k] = v
	}
	for k, v := range m.recurring {
		ec := *v
		cp.recurring[k] = &ec
	}
	return cp
}

// Reset clears all accumulated state, returning the memory to its initial
// empty form.
func (m *Memory) Reset() {
	m.history = nil
	m.turns = 0
	m.vocab = nil
	m.vocabIdx = make(map[string]int)
	m.recurring = make(map[string]*ErrorCount)
	m.errOrder = nil
	m.cefr = ""
}
