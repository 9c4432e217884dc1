// Package journal records attempt telemetry: what was submitted, when, and
// whether a deadline or the student triggered it.
package journal

import (
	"time"

	"github.com/google/uuid"
)

// Kind enumerates journal event types.
type Kind string

const (
	KindAnswerSubmitted   Kind = "answer_submitted"
	KindQuestionAdvanced  Kind = "question_advanced"
	KindTestFinalized     Kind = "test_finalized"
	KindSubmitFailed      Kind = "submit_failed"
	KindFetchFailed       Kind = "fetch_failed"
	KindFinalizeFailed    Kind = "finalize_failed"
	KindProtocolViolation Kind = "protocol_violation"
	KindExpiry            Kind = "expiry"
)

// Event is one journal entry.
type Event struct {
	ID            uuid.UUID `json:"id"`
	TestID        string    `json:"test_id"`
	StudentID     int       `json:"student_id,omitempty"`
	QuestionID    string    `json:"question_id"`
	QuestionIndex int       `json:"question_index"`
	Kind          Kind      `json:"kind"`
	IsTimeout     bool      `json:"is_timeout"`
	Detail        string    `json:"detail,omitempty"`
	// OccurredAt is reconciled server time when available, local time otherwise.
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent creates an event with a fresh id.
func NewEvent(kind Kind, testID, questionID string, index int, at time.Time) Event {
	return Event{
		ID:            uuid.New(),
		TestID:        testID,
		QuestionID:    questionID,
		QuestionIndex: index,
		Kind:          kind,
		OccurredAt:    at,
	}
}
