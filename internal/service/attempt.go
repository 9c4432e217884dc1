package service

import (
	"sync"

	"github.com/stemsi/exstem-agent/internal/model"
)

// attempt is the mutable state shared by the sequencer and answer edits.
type attempt struct {
	mu       sync.RWMutex
	session  *model.TestSession
	question *model.QuestionState
	drafts   map[string]model.Answer
	// committed is true once the current question's answer was accepted by
	// the backend and has not been edited since.
	committed bool
}

func (a *attempt) completed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session.Completed
}

// currentAnswer returns the draft for the current question, or a blank answer.
// Caller holds a.mu.
func (a *attempt) currentAnswer() model.Answer {
	if d, ok := a.drafts[a.question.ID]; ok {
		return d
	}
	return model.BlankAnswer(a.question)
}
