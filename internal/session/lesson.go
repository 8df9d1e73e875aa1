package session

import "github.com/causerie-ai/causerie/pkg/protocol"

// curriculum is the fixed progression a session walks through. Progress is
// derived from accumulated session state rather than asked of the LLM, so a
// lesson plan snapshot is always available, even when every model backend is
// down.
var curriculum = []protocol.LessonStep{
	{Title: "Greetings", Description: "Say hello, goodbye, and introduce yourself"},
	{Title: "Small talk", Description: "Ask and answer simple questions about your day"},
	{Title: "Everyday vocabulary", Description: "Name common objects, places, and activities"},
	{Title: "Ordering and shopping", Description: "Handle a café, restaurant, or market exchange"},
	{Title: "Talking about the past", Description: "Describe what you did using the passé composé"},
	{Title: "Expressing opinions", Description: "Agree, disagree, and explain why"},
}

// Progress thresholds per curriculum step: a step is considered done once the
// learner has both exchanged enough turns and picked up enough vocabulary.
const (
	turnsPerStep = 6
	wordsPerStep = 4
)

// LessonPlan derives the current plan snapshot from session state: steps the
// learner has worked through are completed, the step in progress is current,
// and the rest are pending.
func (m *Memory) LessonPlan() protocol.LessonPlan {
	byTurns := m.turns / turnsPerStep
	byWords := len(m.vocab) / wordsPerStep
	progress := byTurns
	if byWords < progress {
		progress = byWords
	}
	if progress >= len(curriculum) {
		progress = len(curriculum) - 1
	}

	steps := make([]protocol.LessonStep, len(curriculum))
	copy(steps, curriculum)
	for i := range steps {
		switch {
		case i < progress:
			steps[i].Status = protocol.StepCompleted
		case i == progress:
			steps[i].Status = protocol.StepCurrent
		default:
			steps[i].Status = protocol.StepPending
		}
	}
	return protocol.LessonPlan{Steps: steps}
}
