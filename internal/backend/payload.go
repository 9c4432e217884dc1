package backend

import (
	"encoding/json"
	"time"
)

// envelope mirrors the backend's {data, error, metadata} response shape.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionPayload is the "fetch test session" response.
type SessionPayload struct {
	Questions         []string   `json:"questions"`
	StartedAt         time.Time  `json:"startedAt"`
	DurationMin       int        `json:"durationMin"`
	CurrentQuestionID string     `json:"currentQuestionId"`
	ServerTime        *time.Time `json:"serverTime"`
}

// Duration is the overall test duration.
func (p *SessionPayload) Duration() time.Duration {
	return time.Duration(p.DurationMin) * time.Minute
}

// QuestionPayload is the "fetch question" response.
type QuestionPayload struct {
	ID        string     `json:"id"`
	Body      string     `json:"body"`
	Type      string     `json:"type"`
	Options   []string   `json:"options,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	EndAt     *time.Time `json:"endAt"`
	// TimeLimit is in seconds; absent means no per-question limit.
	TimeLimit  *int       `json:"timeLimit,omitempty"`
	ServerTime *time.Time `json:"serverTime"`
}

// SubmitPayload is the "submit answer" response.
type SubmitPayload struct {
	ServerTime *time.Time `json:"serverTime"`
}

type submitRequest struct {
	Answer string `json:"answer"`
}
