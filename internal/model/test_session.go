package model

import "time"

// TestSession is one student's attempt at a test.
type TestSession struct {
	TestID      string `json:"test_id"`
	AccessToken string `json:"-"`
	// QuestionOrder is fixed for the lifetime of the session.
	QuestionOrder []string      `json:"question_order"`
	CurrentIndex  int           `json:"current_index"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"-"`
	// Answers holds the last answer committed to the backend per question.
	Answers   map[string]Answer `json:"-"`
	Completed bool              `json:"completed"`
}

// NewTestSession creates a session pointing at currentQuestionID.
// It returns ErrUnknownQuestion if the id is not part of order.
func NewTestSession(testID, token string, order []string, currentQuestionID string, startedAt time.Time, duration time.Duration) (*TestSession, error) {
	if len(order) == 0 {
		return nil, ErrNoQuestions
	}

	idx := -1
	for i, id := range order {
		if id == currentQuestionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrUnknownQuestion
	}

	return &TestSession{
		TestID:        testID,
		AccessToken:   token,
		QuestionOrder: append([]string(nil), order...),
		CurrentIndex:  idx,
		StartedAt:     startedAt,
		Duration:      duration,
		Answers:       make(map[string]Answer, len(order)),
	}, nil
}

// Deadline is the absolute end of the whole test.
func (s *TestSession) Deadline() time.Time {
	return s.StartedAt.Add(s.Duration)
}

// CurrentQuestionID returns the id at CurrentIndex.
func (s *TestSession) CurrentQuestionID() string {
	return s.QuestionOrder[s.CurrentIndex]
}

// IsLast reports whether the current question is the final one.
func (s *TestSession) IsLast() bool {
	return s.CurrentIndex == len(s.QuestionOrder)-1
}

// NextQuestionID returns the id following the current question.
func (s *TestSession) NextQuestionID() (string, bool) {
	if s.IsLast() {
		return "", false
	}
	return s.QuestionOrder[s.CurrentIndex+1], true
}
