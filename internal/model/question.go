package model

import "time"

// QuestionType enumerates the kinds of questions a test may contain.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple-choice"
	QuestionTypeTrueFalse      QuestionType = "true-false"
	QuestionTypeShortAnswer    QuestionType = "short-answer"
	QuestionTypeEssay          QuestionType = "essay"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeTrueFalse, QuestionTypeShortAnswer, QuestionTypeEssay:
		return true
	}
	return false
}

// QuestionState is the question currently displayed to the student.
// It is replaced wholesale when the session advances.
type QuestionState struct {
	ID      string       `json:"id"`
	Body    string       `json:"body"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
	// TimeLimit is zero when only the overall test deadline applies.
	TimeLimit time.Duration `json:"-"`
	StartedAt time.Time     `json:"started_at"`
	EndAt     time.Time     `json:"end_at"`
}

// HasTimeLimit reports whether the question carries its own deadline.
func (q *QuestionState) HasTimeLimit() bool {
	return q.TimeLimit > 0 && !q.EndAt.IsZero()
}

// TimeLimitSeconds is the per-question limit in whole seconds, for the UI.
func (q *QuestionState) TimeLimitSeconds() int {
	return int(q.TimeLimit / time.Second)
}
