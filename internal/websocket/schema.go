package websocket

// ─── Actions (Client → Agent) ───────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionNext   Action = "next"
	ActionPing   Action = "ping"
)

// RequestPayload is every message the UI sends; fields unused by an action
// are left empty.
type RequestPayload struct {
	Action     Action `json:"action" binding:"required,oneof=answer next ping"`
	QuestionID string `json:"question_id" binding:"omitempty,question_id"`
	Answer     string `json:"answer" binding:"max=20000"`
}

// ─── Events (Agent → Client) ────────────────────────────────────────

type Event string

const (
	EventSnapshot Event = "snapshot"
	EventSaved    Event = "saved"
	EventOutcome  Event = "outcome"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

// Response is the envelope for every message pushed to the UI. Session
// events (tick, question, completed) reuse it with their own event name.
type Response struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorResponse carries a machine-readable code next to the message.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}
