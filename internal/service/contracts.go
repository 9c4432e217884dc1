package service

import (
	"context"
	"time"

	"github.com/stemsi/exstem-agent/internal/backend"
	"github.com/stemsi/exstem-agent/internal/journal"
	"github.com/stemsi/exstem-agent/internal/model"
)

// Backend is the part of the OTMS API an attempt needs.
type Backend interface {
	FetchSession(ctx context.Context, testID string) (*backend.SessionPayload, error)
	FetchQuestion(ctx context.Context, testID, questionID string) (*backend.QuestionPayload, error)
	SubmitAnswer(ctx context.Context, testID, questionID, answer string) (*backend.SubmitPayload, error)
	Finalize(ctx context.Context, testID string) error
}

// ServerClock is the reconciled clock.
type ServerClock interface {
	Sync(serverTime time.Time) error
	Now() (time.Time, error)
}

// DraftStore autosaves answers that have not been submitted yet.
type DraftStore interface {
	Save(ctx context.Context, questionID string, a model.Answer) error
	Load(ctx context.Context) (map[string]model.Answer, error)
	Clear(ctx context.Context) error
}

// Journal receives attempt telemetry.
type Journal interface {
	Publish(ctx context.Context, e journal.Event) error
}

type nopDrafts struct{}

func (nopDrafts) Save(context.Context, string, model.Answer) error { return nil }
func (nopDrafts) Load(context.Context) (map[string]model.Answer, error) {
	return map[string]model.Answer{}, nil
}
func (nopDrafts) Clear(context.Context) error { return nil }

type nopJournal struct{}

func (nopJournal) Publish(context.Context, journal.Event) error { return nil }
