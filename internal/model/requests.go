package model

// AnswerRequest is the body of PUT /api/v1/attempt/answers/:question_id.
// Answer is the raw input: option text or index, "true"/"false", or free text.
type AnswerRequest struct {
	Answer string `json:"answer" binding:"max=20000"`
}
