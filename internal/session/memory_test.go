package session

import (
	"fmt"
	"testing"

	"github.com/causerie-ai/causerie/pkg/protocol"
	"github.com/causerie-ai/causerie/pkg/provider/llm"
)

func TestHistoryAlternatesRoles(t *testing.T) {
	m := NewMemory()
	m.AddUserTurn("bonjour")
	m.AddTutorTurn("Bonjour ! Comment ça va ?")

	h := m.History()
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2", len(h))
	}
	if h[0].Role != llm.RoleUser || h[1].Role != llm.RoleAssistant {
		t.Errorf("roles = %q, %q", h[0].Role, h[1].Role)
	}
}

func TestHistoryKeepsMostRecentTurns(t *testing.T) {
	m := NewMemory()
	for i := 0; i < HistoryCap+7; i++ {
		m.AddUserTurn(fmt.Sprintf("turn %d", i))
	}

	h := m.History()
	if len(h) != HistoryCap {
		t.Fatalf("history length = %d, want %d", len(h), HistoryCap)
	}
	if h[0].Content != "turn 7" {
		t.Errorf("oldest retained = %q, want turn 7", h[0].Content)
	}
	if h[len(h)-1].Content != fmt.Sprintf("turn %d", HistoryCap+6) {
		t.Errorf("newest retained = %q", h[len(h)-1].Content)
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	m := NewMemory()
	m.AddUserTurn("original")
	h := m.History()
	h[0].Content = "mutated"
	if m.History()[0].Content != "original" {
		t.Error("History() must not expose internal state")
	}
}

func TestApplyNotesRecordsCEFR(t *testing.T) {
	m := NewMemory()
	m.ApplyNotes(protocol.Notes{CEFRGuess: "A2"})
	if m.CEFR() != "A2" {
		t.Errorf("cefr = %q, want A2", m.CEFR())
	}

	// An empty guess must not erase the previous estimate.
	m.ApplyNotes(protocol.Notes{})
	if m.CEFR() != "A2" {
		t.Errorf("cefr after empty notes = %q, want A2", m.CEFR())
	}
}

func TestApplyNotesCountsRecurringErrors(t *testing.T) {
	m := NewMemory()
	m.ApplyNotes(protocol.Notes{Corrections: []string{"Use 'je suis' not 'je es'"}})
	m.ApplyNotes(protocol.Notes{Corrections: []string{"use 'je suis' not 'je es'"}})

	errs := m.RecurringErrors()
	if len(errs) != 1 {
		t.Fatalf("recurring errors = %d, want 1 (case differences share a key)", len(errs))
	}
	if errs[0].Count != 2 {
		t.Errorf("count = %d, want 2", errs[0].Count)
	}
}

func TestRecurringErrorsTruncatedKey(t *testing.T) {
	m := NewMemory()
	long := make([]byte, 120)
	for i := range long {
		long[i] = 'a'
	}
	// Same first 80 chars, different tails: one recurring error.
	m.ApplyNotes(protocol.Notes{Corrections: []string{string(long) + "x"}})
	m.ApplyNotes(protocol.Notes{Corrections: []string{string(long) + "y"}})

	errs := m.RecurringErrors()
	if len(errs) != 1 {
		t.Fatalf("recurring errors = %d, want 1", len(errs))
	}
	if errs[0].Count != 2 {
		t.Errorf("count = %d, want 2", errs[0].Count)
	}
}

func TestApplyNotesAddsVocabOnce(t *testing.T) {
	m := NewMemory()
	added := m.ApplyNotes(protocol.Notes{NewVocab: []string{"fromage - cheese"}})
	if len(added) != 1 {
		t.Fatalf("added = %d, want 1", len(added))
	}
	if added[0].Word != "fromage" || added[0].Translation != "cheese" {
		t.Errorf("added = %+v", added[0])
	}

	again := m.ApplyNotes(protocol.Notes{NewVocab: []string{"Fromage"}})
	if len(again) != 0 {
		t.Errorf("duplicate word re-added: %+v", again)
	}
	if len(m.Vocab()) != 1 {
		t.Errorf("vocab size = %d, want 1", len(m.Vocab()))
	}
}

func TestVocabCapKeepsEarliestWords(t *testing.T) {
	m := NewMemory()
	for i := 0; i < VocabCap+10; i++ {
		m.ApplyNotes(protocol.Notes{NewVocab: []string{fmt.Sprintf("mot%d", i)}})
	}

	vocab := m.Vocab()
	if len(vocab) != VocabCap {
		t.Fatalf("vocab size = %d, want %d", len(vocab), VocabCap)
	}
	if vocab[0].Word != "mot0" {
		t.Errorf("first word = %q, want mot0", vocab[0].Word)
	}
	if vocab[len(vocab)-1].Word != fmt.Sprintf("mot%d", VocabCap-1) {
		t.Errorf("last word = %q", vocab[len(vocab)-1].Word)
	}
}

func TestMarkPracticed(t *testing.T) {
	m := NewMemory()
	m.ApplyNotes(protocol.Notes{NewVocab: []string{"bonjour"}})

	if !m.MarkPracticed("Bonjour") {
		t.Fatal("expected case-insensitive match")
	}
	if m.MarkPracticed("inconnu") {
		t.Error("unknown word should not match")
	}
	if got := m.Vocab()[0].Practiced; got != 1 {
		t.Errorf("practiced = %d, want 1", got)
	}
}

func TestSplitGloss(t *testing.T) {
	cases := []struct {
		raw, word, translation string
	}{
		{"fromage - cheese", "fromage", "cheese"},
		{"pain: bread", "pain", "bread"},
		{"eau = water", "eau", "water"},
		{"bonjour", "bonjour", ""},
		{"  chat  ", "chat", ""},
	}
	for _, tc := range cases {
		word, translation := splitGloss(tc.raw)
		if word != tc.word || translation != tc.translation {
			t.Errorf("splitGloss(%q) = %q, %q; want %q, %q", tc.raw, word, translation, tc.word, tc.translation)
		}
	}
}

func TestResetClearsEverything(t *testing.T) {
	m := NewMemory()
	m.AddUserTurn("bonjour")
	m.ApplyNotes(protocol.Notes{
		CEFRGuess:   "B1",
		Corrections: []string{"fix this"},
		NewVocab:    []string{"chien"},
	})

	m.Reset()

	if m.ExchangeCount() != 0 {
		t.Error("history not cleared")
	}
	if len(m.Vocab()) != 0 {
		t.Error("vocab not cleared")
	}
	if len(m.RecurringErrors()) != 0 {
		t.Error("recurring errors not cleared")
	}
	if m.CEFR() != "" {
		t.Error("cefr not cleared")
	}

	// Memory stays usable after reset.
	added := m.ApplyNotes(protocol.Notes{NewVocab: []string{"chien"}})
	if len(added) != 1 {
		t.Error("vocab index not rebuilt after reset")
	}
}
