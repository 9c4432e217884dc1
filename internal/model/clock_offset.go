package model

import "time"

// ClockOffset pairs a server timestamp with the local time it was observed at.
// Both fields are always replaced together.
type ClockOffset struct {
	ServerTimeAtSync time.Time `json:"server_time_at_sync"`
	LocalTimeAtSync  time.Time `json:"local_time_at_sync"`
}

// At projects the server clock to the given local instant.
func (o ClockOffset) At(local time.Time) time.Time {
	return o.ServerTimeAtSync.Add(local.Sub(o.LocalTimeAtSync))
}
