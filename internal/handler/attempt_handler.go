package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-agent/internal/journal"
	"github.com/stemsi/exstem-agent/internal/model"
	"github.com/stemsi/exstem-agent/internal/response"
	"github.com/stemsi/exstem-agent/internal/service"
	"github.com/stemsi/exstem-agent/internal/validator"
)

// Attempt is the part of the session service the handlers drive.
type Attempt interface {
	TestID() string
	View() (*service.View, error)
	EditAnswer(ctx context.Context, questionID, raw string) (model.Answer, error)
	AdvanceOrSubmit(ctx context.Context, isTimeout bool) (service.Outcome, error)
	Subscribe() (<-chan service.Event, func())
}

// EventLister reads journaled attempt events.
type EventLister interface {
	ListByTest(ctx context.Context, testID string, limit int) ([]journal.Event, error)
}

// AttemptHandler serves the local attempt API for the UI.
type AttemptHandler struct {
	attempt Attempt
	events  EventLister
	log     zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler. events may be nil when the
// journal database is not configured.
func NewAttemptHandler(attempt Attempt, events EventLister, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempt: attempt,
		events:  events,
		log:     log.With().Str("component", "attempt_handler").Logger(),
	}
}

// GetAttempt godoc
// GET /api/v1/attempt
// Returns the current question, position, draft and timer state.
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	view, err := h.attempt.View()
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// SaveAnswer godoc
// PUT /api/v1/attempt/answers/:question_id
// Stores the draft answer for the current question.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	questionID := c.Param("question_id")
	if !validator.ValidQuestionID(questionID) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"question_id": "question_id is not a valid question id"})
		return
	}

	var req model.AnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.attempt.EditAnswer(c.Request.Context(), questionID, req.Answer)
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"question_id": questionID,
		"answer":      answer.WireValue(),
		"blank":       answer.Blank(),
	})
}

// Next godoc
// POST /api/v1/attempt/next
// Submits the current answer and moves on, or finalizes on the last question.
// Returns 202 when another submission is already in flight.
func (h *AttemptHandler) Next(c *gin.Context) {
	outcome, err := h.attempt.AdvanceOrSubmit(c.Request.Context(), false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Manual advance failed")
		failWithError(c, err)
		return
	}

	if outcome == service.OutcomeIgnored {
		response.Success(c, http.StatusAccepted, gin.H{"outcome": outcome})
		return
	}

	view, err := h.attempt.View()
	if err != nil {
		failWithError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"outcome": outcome, "attempt": view})
}

// ListEvents godoc
// GET /api/v1/attempt/events?limit=100
// Returns journaled events for this test, newest first.
func (h *AttemptHandler) ListEvents(c *gin.Context) {
	if h.events == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrJournalDisabled)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"limit": "limit must be between 1 and 1000"})
		return
	}

	events, err := h.events.ListByTest(c.Request.Context(), h.attempt.TestID(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("List journal events failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if events == nil {
		events = []journal.Event{}
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}
