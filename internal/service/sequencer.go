package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-agent/internal/clock"
	"github.com/stemsi/exstem-agent/internal/journal"
	"github.com/stemsi/exstem-agent/internal/model"
)

// Outcome is the result of one AdvanceOrSubmit call.
type Outcome string

const (
	// OutcomeIgnored means another operation was in flight or the attempt was
	// already completed. Nothing happened.
	OutcomeIgnored   Outcome = "ignored"
	OutcomeAdvanced  Outcome = "advanced"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Sequencer serializes "commit the current answer, then advance or finish".
// At most one operation runs at a time; concurrent callers are rejected
// rather than queued.
type Sequencer struct {
	backend Backend
	clock   ServerClock
	journal Journal
	att     *attempt
	log     zerolog.Logger

	inFlight atomic.Bool

	onQuestion func(q *model.QuestionState)
	onComplete func()
}

func newSequencer(b Backend, clk ServerClock, j Journal, att *attempt, log zerolog.Logger) *Sequencer {
	return &Sequencer{
		backend:    b,
		clock:      clk,
		journal:    j,
		att:        att,
		log:        log.With().Str("component", "sequencer").Logger(),
		onQuestion: func(*model.QuestionState) {},
		onComplete: func() {},
	}
}

// Busy reports whether an operation is in flight.
func (s *Sequencer) Busy() bool {
	return s.inFlight.Load()
}

// AdvanceOrSubmit submits the current answer, then finalizes the test on the
// last question or moves to the next one. isTimeout is recorded for
// telemetry only; both paths behave identically.
//
// On error the session stays on the same question and the call can be retried.
// An answer that was already committed is not submitted again on retry.
func (s *Sequencer) AdvanceOrSubmit(ctx context.Context, isTimeout bool) (Outcome, error) {
	if s.att.completed() {
		return OutcomeIgnored, nil
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug().Bool("is_timeout", isTimeout).Msg("Operation in flight, trigger dropped")
		return OutcomeIgnored, nil
	}
	defer s.inFlight.Store(false)

	// In-flight network calls run to completion even if the trigger goes away.
	ctx = context.WithoutCancel(ctx)

	s.att.mu.RLock()
	sess := s.att.session
	if sess.Completed {
		s.att.mu.RUnlock()
		return OutcomeIgnored, nil
	}
	testID := sess.TestID
	index := sess.CurrentIndex
	question := s.att.question
	answer := s.att.currentAnswer()
	committed := s.att.committed
	nextID, hasNext := sess.NextQuestionID()
	s.att.mu.RUnlock()

	log := s.log.With().
		Str("test_id", testID).
		Str("question_id", question.ID).
		Int("index", index).
		Bool("is_timeout", isTimeout).
		Logger()

	if !committed {
		resp, err := s.backend.SubmitAnswer(ctx, testID, question.ID, answer.WireValue())
		if err == nil {
			err = s.sync(resp.ServerTime)
		}
		if err != nil {
			s.record(ctx, failureKind(err, journal.KindSubmitFailed), question.ID, index, isTimeout, err.Error())
			log.Warn().Err(err).Msg("Answer submission failed")
			return OutcomeFailed, err
		}

		s.att.mu.Lock()
		sess.Answers[question.ID] = answer
		// EditAnswer refuses edits while in flight, so the draft still equals answer.
		s.att.committed = true
		s.att.mu.Unlock()

		s.record(ctx, journal.KindAnswerSubmitted, question.ID, index, isTimeout, "")
		log.Info().Bool("blank", answer.Blank()).Msg("Answer submitted")
	}

	if !hasNext {
		if err := s.backend.Finalize(ctx, testID); err != nil {
			s.record(ctx, journal.KindFinalizeFailed, question.ID, index, isTimeout, err.Error())
			log.Warn().Err(err).Msg("Finalize failed")
			return OutcomeFailed, err
		}

		s.att.mu.Lock()
		sess.Completed = true
		s.att.mu.Unlock()

		s.record(ctx, journal.KindTestFinalized, question.ID, index, isTimeout, "")
		log.Info().Msg("Test finalized")
		s.onComplete()
		return OutcomeCompleted, nil
	}

	next, err := s.fetchQuestion(ctx, testID, nextID)
	if err != nil {
		s.record(ctx, failureKind(err, journal.KindFetchFailed), nextID, index+1, isTimeout, err.Error())
		log.Warn().Err(err).Str("next_question_id", nextID).Msg("Next question fetch failed")
		return OutcomeFailed, err
	}

	s.att.mu.Lock()
	sess.CurrentIndex = index + 1
	s.att.question = next
	s.att.committed = false
	s.att.mu.Unlock()

	s.record(ctx, journal.KindQuestionAdvanced, next.ID, index+1, isTimeout, "")
	log.Info().Str("next_question_id", next.ID).Msg("Advanced to next question")
	s.onQuestion(next)
	return OutcomeAdvanced, nil
}

func (s *Sequencer) fetchQuestion(ctx context.Context, testID, questionID string) (*model.QuestionState, error) {
	payload, err := s.backend.FetchQuestion(ctx, testID, questionID)
	if err != nil {
		return nil, err
	}
	q, err := payload.ToQuestionState(questionID)
	if err != nil {
		return nil, err
	}
	if err := s.sync(payload.ServerTime); err != nil {
		return nil, fmt.Errorf("question %s: %w", questionID, err)
	}
	return q, nil
}

func (s *Sequencer) sync(serverTime *time.Time) error {
	if serverTime == nil {
		return clock.ErrMissingServerTime
	}
	return s.clock.Sync(*serverTime)
}

func (s *Sequencer) record(ctx context.Context, kind journal.Kind, questionID string, index int, isTimeout bool, detail string) {
	at, err := s.clock.Now()
	if err != nil {
		at = time.Now()
	}

	s.att.mu.RLock()
	testID := s.att.session.TestID
	s.att.mu.RUnlock()

	e := journal.NewEvent(kind, testID, questionID, index, at)
	e.IsTimeout = isTimeout
	e.Detail = detail
	if err := s.journal.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("Journal publish failed")
	}
}

func failureKind(err error, fallback journal.Kind) journal.Kind {
	if IsProtocolViolation(err) {
		return journal.KindProtocolViolation
	}
	return fallback
}
