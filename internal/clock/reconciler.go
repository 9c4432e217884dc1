// Package clock keeps a drift-corrected estimate of the backend's clock.
//
// Question and test deadlines are issued by the server, so every deadline
// comparison in the agent goes through Reconciler.Now instead of time.Now.
package clock

import (
	"errors"
	"sync"
	"time"

	"github.com/stemsi/exstem-agent/internal/model"
)

var (
	// ErrNotSynced is returned by Now before the first successful Sync.
	ErrNotSynced = errors.New("clock has not been synced with the server")
	// ErrMissingServerTime is returned by Sync when the server omitted its timestamp.
	ErrMissingServerTime = errors.New("response carries no server time")
)

// Reconciler maps the local clock onto server time using the offset
// observed at the last sync. It is safe for concurrent use.
type Reconciler struct {
	local func() time.Time

	mu     sync.RWMutex
	offset *model.ClockOffset
}

// NewReconciler creates a Reconciler reading the local clock from local.
// A nil local uses time.Now.
func NewReconciler(local func() time.Time) *Reconciler {
	if local == nil {
		local = time.Now
	}
	return &Reconciler{local: local}
}

// Sync records serverTime as "now" on the server. The previous offset is
// kept when serverTime is zero.
func (r *Reconciler) Sync(serverTime time.Time) error {
	if serverTime.IsZero() {
		return ErrMissingServerTime
	}

	offset := &model.ClockOffset{
		ServerTimeAtSync: serverTime,
		LocalTimeAtSync:  r.local(),
	}

	r.mu.Lock()
	r.offset = offset
	r.mu.Unlock()
	return nil
}

// Now returns the reconciled server time.
func (r *Reconciler) Now() (time.Time, error) {
	r.mu.RLock()
	offset := r.offset
	r.mu.RUnlock()

	if offset == nil {
		return time.Time{}, ErrNotSynced
	}
	return offset.At(r.local()), nil
}

// Offset returns a copy of the last offset and whether one exists.
func (r *Reconciler) Offset() (model.ClockOffset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.offset == nil {
		return model.ClockOffset{}, false
	}
	return *r.offset, true
}

// Drift is server time minus local time at the last sync.
func (r *Reconciler) Drift() time.Duration {
	o, ok := r.Offset()
	if !ok {
		return 0
	}
	return o.ServerTimeAtSync.Sub(o.LocalTimeAtSync)
}
