package timer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now, nil
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var t0 = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

func recorder() (ExpiryFunc, <-chan Expiry) {
	ch := make(chan Expiry, 16)
	return func(_ context.Context, e Expiry) bool {
		ch <- e
		return true
	}, ch
}

func expectNoExpiry(t *testing.T, ch <-chan Expiry) {
	t.Helper()
	select {
	case e := <-ch:
		t.Fatalf("unexpected expiry %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitExpiry(t *testing.T, ch <-chan Expiry) Expiry {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("expiry was not dispatched")
	}
	return Expiry{}
}

func TestTickBeforeReset(t *testing.T) {
	e := NewEngine(&fakeClock{now: t0}, nil, zerolog.Nop())
	if _, err := e.Tick(context.Background()); !errors.Is(err, ErrNotArmed) {
		t.Fatalf("expected ErrNotArmed, got %v", err)
	}
}

func TestRemainingIsClampedAndRoundedUp(t *testing.T) {
	clk := &fakeClock{now: t0}
	e := NewEngine(clk, func(context.Context, Expiry) bool { return true }, zerolog.Nop())
	e.Reset(Deadlines{
		QuestionID:    "q1",
		TestEnd:       t0.Add(time.Minute),
		QuestionEnd:   t0.Add(30 * time.Second),
		QuestionLimit: 30 * time.Second,
	})

	clk.Set(t0.Add(10*time.Second + 400*time.Millisecond))
	snap, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if snap.TestRemaining != 50 || snap.QuestionRemaining != 20 {
		t.Fatalf("unexpected remaining test=%d question=%d", snap.TestRemaining, snap.QuestionRemaining)
	}

	clk.Set(t0.Add(2 * time.Minute))
	snap, _ = e.Tick(context.Background())
	if snap.TestRemaining != 0 || snap.QuestionRemaining != 0 {
		t.Fatalf("expected clamped zeros, got test=%d question=%d", snap.TestRemaining, snap.QuestionRemaining)
	}
	if snap.Progress != 0 {
		t.Fatalf("expected empty bar, got %v", snap.Progress)
	}
}

func TestProgressNeverIncreasesWithinQuestion(t *testing.T) {
	clk := &fakeClock{now: t0}
	e := NewEngine(clk, func(context.Context, Expiry) bool { return true }, zerolog.Nop())
	e.Reset(Deadlines{
		QuestionID:    "q1",
		TestEnd:       t0.Add(time.Hour),
		QuestionEnd:   t0.Add(30 * time.Second),
		QuestionLimit: 30 * time.Second,
	})

	// Ticks arrive out of order: 15s, 12s, 20s, 3s.
	offsets := []time.Duration{15, 12, 20, 3}
	prev := 100.0
	for _, off := range offsets {
		clk.Set(t0.Add(off * time.Second))
		snap, err := e.Tick(context.Background())
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if snap.Progress > prev {
			t.Fatalf("progress increased from %v to %v at %ds", prev, snap.Progress, off)
		}
		prev = snap.Progress
	}
	if prev != float64(10)/30*100 {
		t.Fatalf("expected progress at the 20s mark, got %v", prev)
	}
}

func TestQuestionWithoutLimitShowsFullBar(t *testing.T) {
	clk := &fakeClock{now: t0}
	e := NewEngine(clk, nil, zerolog.Nop())
	e.Reset(Deadlines{QuestionID: "q1", TestEnd: t0.Add(time.Minute)})

	clk.Set(t0.Add(45 * time.Second))
	snap, _ := e.Tick(context.Background())
	if snap.HasQuestionLimit || snap.Progress != 100 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.QuestionRemaining != snap.TestRemaining {
		t.Fatalf("question remaining should follow the test, got %+v", snap)
	}
}

func TestExpiryFiresOncePerDeadline(t *testing.T) {
	clk := &fakeClock{now: t0}
	fn, ch := recorder()
	e := NewEngine(clk, fn, zerolog.Nop())
	e.Reset(Deadlines{
		QuestionID:    "q1",
		TestEnd:       t0.Add(time.Hour),
		QuestionEnd:   t0.Add(30 * time.Second),
		QuestionLimit: 30 * time.Second,
	})

	for s := 0; s <= 40; s++ {
		clk.Set(t0.Add(time.Duration(s) * time.Second))
		snap, _ := e.Tick(context.Background())
		if s < 30 && snap.State != StateRunning {
			t.Fatalf("expected running at %ds", s)
		}
		if s >= 30 && snap.State != StateExpired {
			t.Fatalf("expected expired at %ds", s)
		}
	}

	got := waitExpiry(t, ch)
	if got.Reason != ReasonQuestion || got.QuestionID != "q1" {
		t.Fatalf("unexpected expiry %+v", got)
	}
	expectNoExpiry(t, ch)
}

func TestTestDeadlineTakesPrecedence(t *testing.T) {
	clk := &fakeClock{now: t0}
	fn, ch := recorder()
	e := NewEngine(clk, fn, zerolog.Nop())
	e.Reset(Deadlines{
		QuestionID:    "q1",
		TestEnd:       t0.Add(30 * time.Second),
		QuestionEnd:   t0.Add(30 * time.Second),
		QuestionLimit: 30 * time.Second,
	})

	clk.Set(t0.Add(31 * time.Second))
	_, _ = e.Tick(context.Background())
	_, _ = e.Tick(context.Background())

	got := waitExpiry(t, ch)
	if got.Reason != ReasonTest {
		t.Fatalf("expected test-level expiry, got %+v", got)
	}
	expectNoExpiry(t, ch)
}

func TestDroppedExpiryIsRedetected(t *testing.T) {
	clk := &fakeClock{now: t0}
	var mu sync.Mutex
	calls := 0
	e := NewEngine(clk, func(context.Context, Expiry) bool {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return calls > 1 // first trigger is dropped, as if a submission were in flight
	}, zerolog.Nop())
	e.Reset(Deadlines{QuestionID: "q1", TestEnd: t0.Add(time.Minute)})

	clk.Set(t0.Add(61 * time.Second))
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, _ = e.Tick(context.Background())
		mu.Lock()
		n := calls
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected the expiry to be re-dispatched exactly once more, got %d calls", calls)
	}
}

func TestResetStartsFreshRunningState(t *testing.T) {
	clk := &fakeClock{now: t0}
	fn, ch := recorder()
	e := NewEngine(clk, fn, zerolog.Nop())
	e.Reset(Deadlines{
		QuestionID:    "q1",
		TestEnd:       t0.Add(time.Hour),
		QuestionEnd:   t0.Add(10 * time.Second),
		QuestionLimit: 10 * time.Second,
	})
	clk.Set(t0.Add(11 * time.Second))
	_, _ = e.Tick(context.Background())
	waitExpiry(t, ch)

	e.Reset(Deadlines{
		QuestionID:    "q2",
		TestEnd:       t0.Add(time.Hour),
		QuestionEnd:   t0.Add(41 * time.Second),
		QuestionLimit: 30 * time.Second,
	})
	snap, _ := e.Tick(context.Background())
	if snap.State != StateRunning || snap.QuestionID != "q2" || snap.Progress != 100 {
		t.Fatalf("expected fresh running state for q2, got %+v", snap)
	}
	expectNoExpiry(t, ch)
}

func TestDisarmStopsTicks(t *testing.T) {
	clk := &fakeClock{now: t0}
	e := NewEngine(clk, nil, zerolog.Nop())
	e.Reset(Deadlines{QuestionID: "q1", TestEnd: t0.Add(time.Minute)})
	e.Disarm()
	if _, err := e.Tick(context.Background()); !errors.Is(err, ErrNotArmed) {
		t.Fatalf("expected ErrNotArmed after disarm, got %v", err)
	}
}

func TestObserverReceivesSnapshots(t *testing.T) {
	clk := &fakeClock{now: t0}
	var got []Snapshot
	e := NewEngine(clk, nil, zerolog.Nop(), WithObserver(func(s Snapshot) { got = append(got, s) }))
	e.Reset(Deadlines{QuestionID: "q1", TestEnd: t0.Add(time.Minute)})
	_, _ = e.Tick(context.Background())
	_, _ = e.Tick(context.Background())
	if len(got) != 2 || got[1].TestRemaining != 60 {
		t.Fatalf("unexpected observed snapshots %+v", got)
	}
	if e.Last() != got[1] {
		t.Fatalf("Last() should return the latest snapshot")
	}
}
