// Package timer derives remaining time for the test and the current question
// from the reconciled server clock and raises expiry events.
package timer

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotArmed is returned by Tick before Reset installs deadlines, or after Disarm.
var ErrNotArmed = errors.New("timer has no active question")

// Clock is the reconciled server clock.
type Clock interface {
	Now() (time.Time, error)
}

// State of the timer for the current question.
type State string

const (
	StateRunning State = "running"
	StateExpired State = "expired"
)

// Reason names the deadline that was crossed.
type Reason string

const (
	ReasonTest     Reason = "test"
	ReasonQuestion Reason = "question"
)

// Deadlines are the fixed inputs for one question.
type Deadlines struct {
	QuestionID string
	TestEnd    time.Time
	// QuestionEnd and QuestionLimit are zero when the question has no own limit.
	QuestionEnd   time.Time
	QuestionLimit time.Duration
}

func (d Deadlines) hasQuestionLimit() bool {
	return d.QuestionLimit > 0 && !d.QuestionEnd.IsZero()
}

// Snapshot is the display state computed on one tick.
type Snapshot struct {
	QuestionID        string    `json:"question_id"`
	ServerNow         time.Time `json:"server_now"`
	TestRemaining     int       `json:"test_remaining_sec"`
	QuestionRemaining int       `json:"question_remaining_sec"`
	HasQuestionLimit  bool      `json:"has_question_limit"`
	// Progress is the per-question bar in percent; 100 when there is no limit.
	Progress float64 `json:"progress"`
	State    State   `json:"state"`
}

// Expiry describes a deadline crossing.
type Expiry struct {
	QuestionID string
	Reason     Reason
	At         time.Time
}

// ExpiryFunc handles an expiry. It returns false when the trigger was dropped
// without effect, in which case the deadline is re-detected on the next tick.
type ExpiryFunc func(ctx context.Context, e Expiry) bool

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the tick period used by Run. Default is one second.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithObserver registers fn to receive every snapshot produced by Tick.
func WithObserver(fn func(Snapshot)) Option {
	return func(e *Engine) { e.observer = fn }
}

// Engine tracks one question at a time.
type Engine struct {
	clock    Clock
	onExpiry ExpiryFunc
	observer func(Snapshot)
	interval time.Duration
	log      zerolog.Logger

	mu            sync.Mutex
	armed         bool
	deadlines     Deadlines
	generation    uint64
	testFired     bool
	questionFired bool
	progress      float64
	last          Snapshot
}

// NewEngine creates an unarmed Engine.
func NewEngine(clock Clock, onExpiry ExpiryFunc, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		clock:    clock,
		onExpiry: onExpiry,
		interval: time.Second,
		log:      log.With().Str("component", "timer").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reset installs the deadlines of a new question and returns to Running.
func (e *Engine) Reset(d Deadlines) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.armed = true
	e.deadlines = d
	e.generation++
	e.testFired = false
	e.questionFired = false
	e.progress = 100
	e.last = Snapshot{}
}

// Disarm stops expiry detection, e.g. once the session is completed.
func (e *Engine) Disarm() {
	e.mu.Lock()
	e.armed = false
	e.generation++
	e.mu.Unlock()
}

// Last returns the most recent snapshot.
func (e *Engine) Last() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Tick recomputes remaining time and dispatches at most one expiry.
func (e *Engine) Tick(ctx context.Context) (Snapshot, error) {
	now, err := e.clock.Now()
	if err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	if !e.armed {
		e.mu.Unlock()
		return Snapshot{}, ErrNotArmed
	}

	d := e.deadlines
	snap := Snapshot{
		QuestionID:       d.QuestionID,
		ServerNow:        now,
		TestRemaining:    remainingSeconds(d.TestEnd.Sub(now)),
		HasQuestionLimit: d.hasQuestionLimit(),
		Progress:         100,
	}

	if snap.HasQuestionLimit {
		left := d.QuestionEnd.Sub(now)
		snap.QuestionRemaining = remainingSeconds(left)

		pct := float64(clampDuration(left)) / float64(d.QuestionLimit) * 100
		if pct > 100 {
			pct = 100
		}
		// A tick that would move the bar backwards arrived out of order.
		if pct > e.progress {
			pct = e.progress
		}
		e.progress = pct
		snap.Progress = pct
	} else {
		snap.QuestionRemaining = snap.TestRemaining
	}

	var fire *Expiry
	testCrossed := !now.Before(d.TestEnd)
	questionCrossed := snap.HasQuestionLimit && !now.Before(d.QuestionEnd)

	switch {
	case testCrossed && !e.testFired:
		e.testFired = true
		fire = &Expiry{QuestionID: d.QuestionID, Reason: ReasonTest, At: now}
	case questionCrossed && !e.questionFired && !e.testFired:
		e.questionFired = true
		fire = &Expiry{QuestionID: d.QuestionID, Reason: ReasonQuestion, At: now}
	}

	snap.State = StateRunning
	if e.testFired || e.questionFired {
		snap.State = StateExpired
	}
	e.last = snap
	gen := e.generation
	e.mu.Unlock()

	if fire != nil {
		e.log.Info().
			Str("question_id", fire.QuestionID).
			Str("reason", string(fire.Reason)).
			Msg("Deadline crossed")
		go e.dispatch(ctx, gen, *fire)
	}

	if e.observer != nil {
		e.observer(snap)
	}
	return snap, nil
}

// Run ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.log.Info().Dur("interval", e.interval).Msg("Timer started")

	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("Timer stopped")
			return
		case <-ticker.C:
			if _, err := e.Tick(ctx); err != nil && !errors.Is(err, ErrNotArmed) {
				e.log.Warn().Err(err).Msg("Tick skipped")
			}
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, gen uint64, ex Expiry) {
	if e.onExpiry == nil || e.onExpiry(ctx, ex) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation != gen {
		return
	}
	switch ex.Reason {
	case ReasonTest:
		e.testFired = false
	case ReasonQuestion:
		e.questionFired = false
	}
}

func clampDuration(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// remainingSeconds rounds up so a countdown shows 1 until the deadline is reached.
func remainingSeconds(d time.Duration) int {
	return int(math.Ceil(clampDuration(d).Seconds()))
}
