package service

import (
	"errors"

	"github.com/stemsi/exstem-agent/internal/backend"
	"github.com/stemsi/exstem-agent/internal/clock"
)

var (
	ErrNotStarted         = errors.New("attempt has not been started")
	ErrAttemptCompleted   = errors.New("attempt is already completed")
	ErrNotCurrentQuestion = errors.New("only the current question can be answered")
	ErrSubmissionInFlight = errors.New("answer is being submitted")
)

// IsProtocolViolation reports whether err was caused by a malformed backend
// response: a missing server timestamp or a question other than the one
// requested.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, clock.ErrMissingServerTime) || errors.Is(err, backend.ErrQuestionMismatch)
}
