package clock

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeLocal struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeLocal) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeLocal) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestNowBeforeSync(t *testing.T) {
	r := NewReconciler(nil)
	if _, err := r.Now(); !errors.Is(err, ErrNotSynced) {
		t.Fatalf("expected ErrNotSynced, got %v", err)
	}
}

func TestNowRightAfterSyncIsServerTime(t *testing.T) {
	local := &fakeLocal{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewReconciler(local.Now)

	syncs := []time.Time{
		time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 5, 10, 7, 59, 0, 0, time.UTC), // server clock moved backwards
		time.Date(2025, 5, 10, 8, 30, 0, 0, time.UTC),
	}
	for _, ts := range syncs {
		local.Advance(3 * time.Second)
		if err := r.Sync(ts); err != nil {
			t.Fatalf("sync: %v", err)
		}
		got, err := r.Now()
		if err != nil {
			t.Fatalf("now: %v", err)
		}
		if !got.Equal(ts) {
			t.Fatalf("expected %s right after sync, got %s", ts, got)
		}
	}
}

func TestNowAdvancesWithLocalClock(t *testing.T) {
	local := &fakeLocal{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewReconciler(local.Now)
	server := time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)
	if err := r.Sync(server); err != nil {
		t.Fatalf("sync: %v", err)
	}

	for _, d := range []time.Duration{0, time.Second, 90 * time.Second, 2 * time.Hour} {
		local.now = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Add(d)
		got, _ := r.Now()
		if !got.Equal(server.Add(d)) {
			t.Fatalf("after %s expected %s, got %s", d, server.Add(d), got)
		}
	}
	if r.Drift() <= 0 {
		t.Fatalf("expected positive drift, got %s", r.Drift())
	}
}

func TestSyncWithoutServerTimeKeepsOffset(t *testing.T) {
	local := &fakeLocal{now: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewReconciler(local.Now)
	server := time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)
	_ = r.Sync(server)

	before, _ := r.Offset()
	local.Advance(time.Minute)
	if err := r.Sync(time.Time{}); !errors.Is(err, ErrMissingServerTime) {
		t.Fatalf("expected ErrMissingServerTime, got %v", err)
	}
	after, _ := r.Offset()
	if after != before {
		t.Fatalf("offset changed after rejected sync: %+v -> %+v", before, after)
	}
	got, _ := r.Now()
	if !got.Equal(server.Add(time.Minute)) {
		t.Fatalf("expected %s, got %s", server.Add(time.Minute), got)
	}
}
