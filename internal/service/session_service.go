package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-agent/internal/clock"
	"github.com/stemsi/exstem-agent/internal/journal"
	"github.com/stemsi/exstem-agent/internal/model"
	"github.com/stemsi/exstem-agent/internal/timer"
)

// SessionService runs one student's attempt: it loads the session, keeps the
// timer armed for the current question and routes manual and timed
// advancement through the Sequencer.
type SessionService struct {
	testID      string
	accessToken string

	backend Backend
	clock   ServerClock
	drafts  DraftStore
	journal Journal
	log     zerolog.Logger

	engine *timer.Engine
	hub    *Hub

	started atomic.Bool
	att     *attempt
	seq     *Sequencer

	done     chan struct{}
	doneOnce sync.Once
}

// NewSessionService creates a SessionService. drafts and j may be nil.
func NewSessionService(
	testID, accessToken string,
	b Backend,
	clk ServerClock,
	drafts DraftStore,
	j Journal,
	log zerolog.Logger,
	tickInterval time.Duration,
) *SessionService {
	if drafts == nil {
		drafts = nopDrafts{}
	}
	if j == nil {
		j = nopJournal{}
	}

	s := &SessionService{
		testID:      testID,
		accessToken: accessToken,
		backend:     b,
		clock:       clk,
		drafts:      drafts,
		journal:     j,
		log:         log.With().Str("component", "session_service").Str("test_id", testID).Logger(),
		hub:         NewHub(),
		done:        make(chan struct{}),
	}
	s.engine = timer.NewEngine(clk, s.handleExpiry, log,
		timer.WithInterval(tickInterval),
		timer.WithObserver(func(snap timer.Snapshot) {
			s.hub.Publish(Event{Type: EventTick, Data: snap})
		}),
	)
	return s
}

// Start fetches the session and its current question, syncs the clock on
// both responses, restores autosaved drafts and arms the timer.
func (s *SessionService) Start(ctx context.Context) error {
	if s.started.Load() {
		return nil
	}

	sp, err := s.backend.FetchSession(ctx, s.testID)
	if err != nil {
		return err
	}
	if sp.ServerTime == nil {
		return fmt.Errorf("fetch session: %w", clock.ErrMissingServerTime)
	}
	if err := s.clock.Sync(*sp.ServerTime); err != nil {
		return fmt.Errorf("fetch session: %w", err)
	}

	sess, err := model.NewTestSession(s.testID, s.accessToken, sp.Questions, sp.CurrentQuestionID, sp.StartedAt, sp.Duration())
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}

	att := &attempt{session: sess, drafts: map[string]model.Answer{}}
	seq := newSequencer(s.backend, s.clock, s.journal, att, s.log)

	q, err := seq.fetchQuestion(ctx, s.testID, sess.CurrentQuestionID())
	if err != nil {
		return fmt.Errorf("fetch current question: %w", err)
	}
	att.question = q

	drafts, err := s.drafts.Load(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Draft restore failed, starting with empty answers")
	} else {
		att.drafts = drafts
	}

	seq.onQuestion = s.installQuestion
	seq.onComplete = s.complete
	s.att = att
	s.seq = seq
	s.started.Store(true)

	s.installQuestion(q)

	s.log.Info().
		Int("questions", len(sess.QuestionOrder)).
		Int("current_index", sess.CurrentIndex).
		Time("deadline", sess.Deadline()).
		Int("restored_drafts", len(att.drafts)).
		Msg("Attempt started")
	return nil
}

// Run drives the timer until ctx is cancelled or the attempt completes.
func (s *SessionService) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.engine.Run(ctx)
}

// Done is closed once the test has been finalized.
func (s *SessionService) Done() <-chan struct{} {
	return s.done
}

// TestID returns the id of the test being taken.
func (s *SessionService) TestID() string {
	return s.testID
}

// Tick runs one timer tick immediately.
func (s *SessionService) Tick(ctx context.Context) (timer.Snapshot, error) {
	return s.engine.Tick(ctx)
}

// Subscribe streams UI events.
func (s *SessionService) Subscribe() (<-chan Event, func()) {
	return s.hub.Subscribe(16)
}

// AdvanceOrSubmit is the manual "Next"/"Finish" action.
func (s *SessionService) AdvanceOrSubmit(ctx context.Context, isTimeout bool) (Outcome, error) {
	if !s.started.Load() {
		return OutcomeIgnored, ErrNotStarted
	}
	outcome, err := s.seq.AdvanceOrSubmit(ctx, isTimeout)
	if err != nil {
		s.hub.Publish(Event{Type: EventError, Data: errorData(err)})
	}
	return outcome, err
}

// EditAnswer parses raw input for the current question and autosaves it.
func (s *SessionService) EditAnswer(ctx context.Context, questionID, raw string) (model.Answer, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}

	s.att.mu.Lock()
	if s.att.session.Completed {
		s.att.mu.Unlock()
		return nil, ErrAttemptCompleted
	}
	if questionID != s.att.question.ID {
		s.att.mu.Unlock()
		return nil, ErrNotCurrentQuestion
	}
	// The sequencer snapshots the answer under att.mu after taking its slot.
	if s.seq.Busy() {
		s.att.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	a, err := model.ParseAnswer(s.att.question, raw)
	if err != nil {
		s.att.mu.Unlock()
		return nil, err
	}
	if prev, ok := s.att.drafts[questionID]; !ok || prev != a {
		s.att.committed = false
	}
	s.att.drafts[questionID] = a
	s.att.mu.Unlock()

	if err := s.drafts.Save(ctx, questionID, a); err != nil {
		// The in-memory draft is still submitted; only reload recovery is lost.
		s.log.Warn().Err(err).Str("question_id", questionID).Msg("Draft autosave failed")
	}
	return a, nil
}

// View is a read-only snapshot of the attempt for the UI.
type View struct {
	TestID        string               `json:"test_id"`
	QuestionIndex int                  `json:"question_index"`
	QuestionCount int                  `json:"question_count"`
	Question      *model.QuestionState `json:"question,omitempty"`
	TimeLimitSec  int                  `json:"time_limit_sec,omitempty"`
	Draft         string               `json:"draft"`
	Answered      []string             `json:"answered"`
	Completed     bool                 `json:"completed"`
	Busy          bool                 `json:"busy"`
	Timer         timer.Snapshot       `json:"timer"`
}

// View returns the current attempt state.
func (s *SessionService) View() (*View, error) {
	if !s.started.Load() {
		return nil, ErrNotStarted
	}

	s.att.mu.RLock()
	sess := s.att.session
	q := *s.att.question
	q.Options = append([]string(nil), q.Options...)
	v := &View{
		TestID:        sess.TestID,
		QuestionIndex: sess.CurrentIndex,
		QuestionCount: len(sess.QuestionOrder),
		Question:      &q,
		TimeLimitSec:  q.TimeLimitSeconds(),
		Draft:         s.att.currentAnswer().WireValue(),
		Answered:      make([]string, 0, len(sess.Answers)),
		Completed:     sess.Completed,
	}
	for id := range sess.Answers {
		v.Answered = append(v.Answered, id)
	}
	s.att.mu.RUnlock()

	sort.Strings(v.Answered)
	v.Busy = s.seq.Busy()
	v.Timer = s.engine.Last()
	return v, nil
}

func (s *SessionService) handleExpiry(ctx context.Context, e timer.Expiry) bool {
	s.att.mu.RLock()
	index := s.att.session.CurrentIndex
	s.att.mu.RUnlock()

	ev := journal.NewEvent(journal.KindExpiry, s.testID, e.QuestionID, index, e.At)
	ev.IsTimeout = true
	ev.Detail = string(e.Reason)
	if err := s.journal.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Msg("Journal publish failed")
	}

	outcome, err := s.AdvanceOrSubmit(ctx, true)
	if err != nil {
		s.log.Warn().Err(err).Str("reason", string(e.Reason)).Msg("Timed submission failed")
		return true
	}
	return outcome != OutcomeIgnored
}

func (s *SessionService) installQuestion(q *model.QuestionState) {
	s.att.mu.Lock()
	// Restored drafts predate this fetch of the question.
	if draft, ok := s.att.drafts[q.ID]; ok {
		if a, fits := model.ReconcileAnswer(q, draft); fits {
			s.att.drafts[q.ID] = a
		} else {
			delete(s.att.drafts, q.ID)
			s.log.Warn().Str("question_id", q.ID).Str("draft_type", string(draft.QuestionType())).Msg("Discarded draft that does not fit the question")
		}
	}
	d := timer.Deadlines{
		QuestionID: q.ID,
		TestEnd:    s.att.session.Deadline(),
	}
	index := s.att.session.CurrentIndex
	s.att.mu.Unlock()

	if q.HasTimeLimit() {
		d.QuestionEnd = q.EndAt
		d.QuestionLimit = q.TimeLimit
	}
	s.engine.Reset(d)

	s.hub.Publish(Event{Type: EventQuestion, Data: map[string]interface{}{
		"question_index": index,
		"question":       q,
	}})
}

func (s *SessionService) complete() {
	s.engine.Disarm()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.drafts.Clear(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Draft cleanup failed")
	}

	s.hub.Publish(Event{Type: EventCompleted, Data: map[string]bool{"completed": true}})
	s.doneOnce.Do(func() { close(s.done) })
}

func errorData(err error) map[string]interface{} {
	return map[string]interface{}{
		"message":            err.Error(),
		"protocol_violation": IsProtocolViolation(err),
	}
}
