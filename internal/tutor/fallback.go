package tutor

import (
	"context"
	"strings"
	"sync"

	"github.com/causerie-ai/causerie/internal/session"
	"github.com/causerie-ai/causerie/pkg/protocol"
)

// englishMarkers are function words that almost never appear in French
// speech. Two or more in one utterance is a strong signal the learner slid
// back into English.
var englishMarkers = map[string]bool{
	"the": true, "and": true, "is": true, "are": true, "was": true,
	"i'm": true, "it's": true, "don't": true, "can't": true, "what": true,
	"how": true, "do": true, "you": true, "this": true, "that": true,
	"have": true, "want": true, "would": true, "like": true, "think": true,
}

// drills is the canned rotation the fallback brain walks through. Each entry
// keeps the conversation moving with a simple prompt the learner can answer
// regardless of level.
var drills = []Reply{
	{
		Speech: "Très bien ! Comment ça va aujourd'hui ? (How are you today?)",
		Notes:  protocol.Notes{NextStep: "Answer with 'ça va bien' or 'ça va mal'"},
	},
	{
		Speech: "D'accord. Qu'est-ce que tu as mangé aujourd'hui ? (What did you eat today?)",
		Notes: protocol.Notes{
			NewVocab: []string{"manger - to eat"},
			NextStep: "Use 'j'ai mangé' to describe a meal",
		},
	},
	{
		Speech: "Super ! Décris ta journée en une phrase, s'il te plaît.",
		Notes:  protocol.Notes{NextStep: "Build one full sentence about your day"},
	},
	{
		Speech: "Bien ! Est-ce que tu peux compter de un à cinq ?",
		Notes: protocol.Notes{
			NewVocab: []string{"compter - to count"},
			NextStep: "Count: un, deux, trois, quatre, cinq",
		},
	},
}

// englishNudge is the reply when the learner speaks English: acknowledge,
// then pull them back into French.
var englishNudge = Reply{
	Speech: "Essayons en français ! Répète après moi : « Bonjour, comment ça va ? »",
	Notes:  protocol.Notes{NextStep: "Repeat the greeting in French"},
}

// Fallback is a canned-reply brain that never fails. It is registered last
// in the Engine so a session always has a reply, whatever happens to the LLM
// backends.
type Fallback struct {
	mu   sync.Mutex
	next int
}

// NewFallback returns a Fallback brain starting at the top of the drill
// rotation.
func NewFallback() *Fallback {
	return &Fallback{}
}

// Name implements Brain.
func (f *Fallback) Name() string { return "fallback" }

// Reply implements Brain. It never returns an error.
func (f *Fallback) Reply(_ context.Context, _ *session.Memory, userText string) (Reply, error) {
	if looksEnglish(userText) {
		return englishNudge, nil
	}

	f.mu.Lock()
	reply := drills[f.next%len(drills)]
	f.next++
	f.mu.Unlock()
	return reply, nil
}

// looksEnglish reports whether the utterance reads as English rather than
// French, based on marker-word density.
func looksEnglish(text string) bool {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return false
	}
	hits := 0
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"")
		if englishMarkers[f] {
			hits++
		}
	}
	return hits >= 2 || (len(fields) <= 3 && hits >= 1)
}

var _ Brain = (*Fallback)(nil)
