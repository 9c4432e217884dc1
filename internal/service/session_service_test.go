package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-agent/internal/clock"
	"github.com/stemsi/exstem-agent/internal/journal"
	"github.com/stemsi/exstem-agent/internal/model"
)

// One-minute test, one question without its own limit, no student action:
// the deadline triggers exactly one timed submission and the test is finalized.
func TestTestDeadlineFinalizesUnattendedAttempt(t *testing.T) {
	h := startHarness(t, 1, essayQuestion("q1"))

	ctx := context.Background()
	for s := 1; s <= 61; s++ {
		h.local.Advance(time.Second)
		_, _ = h.svc.Tick(ctx)
	}

	select {
	case <-h.svc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("attempt was not finalized after the deadline")
	}

	if n := len(h.backend.submitCalls()); n != 1 {
		t.Fatalf("expected exactly one timed submission, got %d", n)
	}
	if n := h.backend.finalizeCalls(); n != 1 {
		t.Fatalf("expected exactly one finalize, got %d", n)
	}
	v, _ := h.svc.View()
	if !v.Completed {
		t.Fatal("expected completed attempt")
	}

	var timeoutSubmits int
	h.journal.mu.Lock()
	for _, e := range h.journal.events {
		if e.Kind == journal.KindAnswerSubmitted && e.IsTimeout {
			timeoutSubmits++
		}
	}
	h.journal.mu.Unlock()
	if timeoutSubmits != 1 {
		t.Fatalf("expected one timed submission in the journal, got %d", timeoutSubmits)
	}
}

// Three questions, none answered: once the test deadline passes, every
// remaining question is submitted blank in order before the test is finalized.
func TestTestDeadlineSubmitsRemainingQuestionsThenFinalizes(t *testing.T) {
	h := startHarness(t, 1, essayQuestion("q1"), essayQuestion("q2"), essayQuestion("q3"))

	ctx := context.Background()
	for s := 1; s <= 60; s++ {
		h.local.Advance(time.Second)
		_, _ = h.svc.Tick(ctx)
	}

	// Each installed question re-arms expiry detection on the next tick.
	deadline := time.Now().Add(2 * time.Second)
	for done := false; !done; {
		select {
		case <-h.svc.Done():
			done = true
		default:
			if time.Now().After(deadline) {
				t.Fatalf("attempt was not finalized, submissions so far %+v", h.backend.submitCalls())
			}
			_, _ = h.svc.Tick(ctx)
			time.Sleep(10 * time.Millisecond)
		}
	}

	calls := h.backend.submitCalls()
	if len(calls) != 3 {
		t.Fatalf("expected three timed submissions, got %+v", calls)
	}
	for i, c := range calls {
		if want := fmt.Sprintf("q%d", i+1); c.QuestionID != want || c.Answer != "" {
			t.Fatalf("submission %d: expected blank answer for %s, got %+v", i, want, c)
		}
	}
	if n := h.backend.finalizeCalls(); n != 1 {
		t.Fatalf("expected exactly one finalize, got %d", n)
	}
}

func TestStartRestoresDrafts(t *testing.T) {
	local := &fakeLocal{now: localBase}
	fb := newFakeBackend(local, 10, mcQuestion("q1", nil), essayQuestion("q2"))
	drafts := &memDrafts{saved: map[string]model.Answer{
		"q1": model.ChoiceAnswer{Index: 2, Text: "Berlin"},
	}}

	svc := NewSessionService("test-1", "tok", fb, clock.NewReconciler(local.Now), drafts, nil, zerolog.Nop(), time.Second)
	if _, err := svc.View(); err != ErrNotStarted {
		t.Fatalf("expected ErrNotStarted before Start, got %v", err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	v, err := svc.View()
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if v.Draft != "Berlin" || v.QuestionCount != 2 || v.Question.ID != "q1" {
		t.Fatalf("unexpected view after restore %+v", v)
	}

	if _, err := svc.AdvanceOrSubmit(context.Background(), false); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if calls := fb.submitCalls(); calls[0].Answer != "Berlin" {
		t.Fatalf("restored draft was not submitted: %+v", calls)
	}
}

func TestRestoredDraftMustFitQuestion(t *testing.T) {
	cases := []struct {
		name  string
		draft model.Answer
	}{
		{"other type", model.TrueFalseAnswer{Value: true, Set: true}},
		{"unknown option", model.ChoiceAnswer{Index: 5, Text: "Madrid"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			local := &fakeLocal{now: localBase}
			fb := newFakeBackend(local, 10, mcQuestion("q1", nil))
			drafts := &memDrafts{saved: map[string]model.Answer{"q1": tc.draft}}

			svc := NewSessionService("test-1", "tok", fb, clock.NewReconciler(local.Now), drafts, nil, zerolog.Nop(), time.Second)
			if err := svc.Start(context.Background()); err != nil {
				t.Fatalf("start: %v", err)
			}
			if v, _ := svc.View(); v.Draft != "" {
				t.Fatalf("expected mismatched draft to be discarded, got %q", v.Draft)
			}

			if _, err := svc.AdvanceOrSubmit(context.Background(), false); err != nil {
				t.Fatalf("finish: %v", err)
			}
			if calls := fb.submitCalls(); len(calls) != 1 || calls[0].Answer != "" {
				t.Fatalf("expected blank submission, got %+v", calls)
			}
		})
	}
}

func TestStartUsesReconciledClock(t *testing.T) {
	h := startHarness(t, 10, essayQuestion("q1"))
	snap, err := h.svc.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	// The local clock is an hour behind the backend; remaining time must
	// still be the full ten minutes.
	if snap.TestRemaining != 600 {
		t.Fatalf("expected 600s remaining, got %d", snap.TestRemaining)
	}
}

func TestCompletionIsPublished(t *testing.T) {
	h := startHarness(t, 10, essayQuestion("q1"))
	events, unsubscribe := h.svc.Subscribe()
	defer unsubscribe()

	if _, err := h.svc.AdvanceOrSubmit(context.Background(), false); err != nil {
		t.Fatalf("advance: %v", err)
	}
	e := <-events
	if e.Type != EventCompleted {
		t.Fatalf("expected completed event, got %s", e.Type)
	}
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	events, unsubscribe := hub.Subscribe(1)

	hub.Publish(Event{Type: EventTick})
	hub.Publish(Event{Type: EventError})

	if e := <-events; e.Type != EventTick {
		t.Fatalf("expected first event to be kept, got %s", e.Type)
	}
	unsubscribe()
	unsubscribe()
	if _, ok := <-events; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
	hub.Publish(Event{Type: EventTick})
}
