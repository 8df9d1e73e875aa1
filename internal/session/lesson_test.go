package session

import (
	"fmt"
	"testing"

	"github.com/causerie-ai/causerie/pkg/protocol"
)

func TestLessonPlanFreshSession(t *testing.T) {
	m := NewMemory()
	plan := m.LessonPlan()

	if len(plan.Steps) != len(curriculum) {
		t.Fatalf("steps = %d, want %d", len(plan.Steps), len(curriculum))
	}
	if plan.Steps[0].Status != protocol.StepCurrent {
		t.Errorf("first step = %q, want current", plan.Steps[0].Status)
	}
	for i := 1; i < len(plan.Steps); i++ {
		if plan.Steps[i].Status != protocol.StepPending {
			t.Errorf("step %d = %q, want pending", i, plan.Steps[i].Status)
		}
	}
}

func TestLessonPlanAdvancesWithProgress(t *testing.T) {
	m := NewMemory()
	for i := 0; i < turnsPerStep*2; i++ {
		m.AddUserTurn("salut")
	}
	for i := 0; i < wordsPerStep*2; i++ {
		m.ApplyNotes(protocol.Notes{NewVocab: []string{fmt.Sprintf("mot%d", i)}})
	}

	plan := m.LessonPlan()
	if plan.Steps[0].Status != protocol.StepCompleted {
		t.Errorf("step 0 = %q, want completed", plan.Steps[0].Status)
	}
	if plan.Steps[1].Status != protocol.StepCompleted {
		t.Errorf("step 1 = %q, want completed", plan.Steps[1].Status)
	}
	if plan.Steps[2].Status != protocol.StepCurrent {
		t.Errorf("step 2 = %q, want current", plan.Steps[2].Status)
	}
}

func TestLessonPlanRequiresBothTurnsAndWords(t *testing.T) {
	// Lots of turns but no vocabulary: still on the first step.
	m := NewMemory()
	for i := 0; i < HistoryCap; i++ {
		m.AddUserTurn("salut")
	}

	plan := m.LessonPlan()
	if plan.Steps[0].Status != protocol.StepCurrent {
		t.Errorf("step 0 = %q, want current (no vocab learned yet)", plan.Steps[0].Status)
	}
}

func TestLessonPlanNeverExceedsLastStep(t *testing.T) {
	m := NewMemory()
	for i := 0; i < turnsPerStep*(len(curriculum)+2); i++ {
		m.AddUserTurn("salut")
	}
	for i := 0; i < VocabCap; i++ {
		m.ApplyNotes(protocol.Notes{NewVocab: []string{fmt.Sprintf("mot%d", i)}})
	}

	plan := m.LessonPlan()
	last := plan.Steps[len(plan.Steps)-1]
	if last.Status != protocol.StepCurrent {
		t.Errorf("last step = %q, want current (plan saturates at the end)", last.Status)
	}
}
