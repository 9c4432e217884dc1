package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-agent/internal/backend"
	"github.com/stemsi/exstem-agent/internal/clock"
	"github.com/stemsi/exstem-agent/internal/journal"
	"github.com/stemsi/exstem-agent/internal/model"
)

// drift between the (fake) local clock and the backend clock.
const drift = time.Hour

var localBase = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

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

type submitCall struct {
	QuestionID string
	Answer     string
}

type fakeBackend struct {
	local *fakeLocal

	mu          sync.Mutex
	session     backend.SessionPayload
	questions   map[string]backend.QuestionPayload
	submitErr   error
	finalizeErr error
	fetchErr    error
	omitTime    bool
	gate        chan struct{}
	started     chan struct{}
	submits     []submitCall
	finalizes   int
	fetches     []string
}

func newFakeBackend(local *fakeLocal, durationMin int, qs ...backend.QuestionPayload) *fakeBackend {
	fb := &fakeBackend{local: local, questions: map[string]backend.QuestionPayload{}}
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.ID)
		fb.questions[q.ID] = q
	}
	fb.session = backend.SessionPayload{
		Questions:         ids,
		StartedAt:         local.Now().Add(drift),
		DurationMin:       durationMin,
		CurrentQuestionID: ids[0],
	}
	return fb
}

func (f *fakeBackend) serverTime() *time.Time {
	if f.omitTime {
		return nil
	}
	t := f.local.Now().Add(drift)
	return &t
}

func (f *fakeBackend) FetchSession(ctx context.Context, testID string) (*backend.SessionPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.session
	s.ServerTime = f.serverTime()
	return &s, nil
}

func (f *fakeBackend) FetchQuestion(ctx context.Context, testID, questionID string) (*backend.QuestionPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, questionID)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	q := f.questions[questionID]
	q.StartedAt = f.local.Now().Add(drift)
	if q.TimeLimit != nil {
		end := q.StartedAt.Add(time.Duration(*q.TimeLimit) * time.Second)
		q.EndAt = &end
	}
	q.ServerTime = f.serverTime()
	return &q, nil
}

func (f *fakeBackend) SubmitAnswer(ctx context.Context, testID, questionID, answer string) (*backend.SubmitPayload, error) {
	f.mu.Lock()
	gate, started := f.gate, f.started
	f.submits = append(f.submits, submitCall{QuestionID: questionID, Answer: answer})
	err := f.submitErr
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return &backend.SubmitPayload{ServerTime: f.serverTime()}, nil
}

func (f *fakeBackend) Finalize(ctx context.Context, testID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizes++
	return f.finalizeErr
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeBackend) submitCalls() []submitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submitCall(nil), f.submits...)
}

func (f *fakeBackend) finalizeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finalizes
}

type memDrafts struct {
	mu      sync.Mutex
	saved   map[string]model.Answer
	cleared bool
}

func (m *memDrafts) Save(_ context.Context, qid string, a model.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]model.Answer{}
	}
	m.saved[qid] = a
	return nil
}

func (m *memDrafts) Load(context.Context) (map[string]model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]model.Answer{}
	for k, v := range m.saved {
		out[k] = v
	}
	return out, nil
}

func (m *memDrafts) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = nil
	m.cleared = true
	return nil
}

type memJournal struct {
	mu     sync.Mutex
	events []journal.Event
}

func (m *memJournal) Publish(_ context.Context, e journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memJournal) kinds() []journal.Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]journal.Kind, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Kind)
	}
	return out
}

func intPtr(v int) *int { return &v }

func mcQuestion(id string, limit *int) backend.QuestionPayload {
	return backend.QuestionPayload{
		ID:        id,
		Body:      "Capital of Italy?",
		Type:      string(model.QuestionTypeMultipleChoice),
		Options:   []string{"Paris", "Rome", "Berlin"},
		TimeLimit: limit,
	}
}

func essayQuestion(id string) backend.QuestionPayload {
	return backend.QuestionPayload{ID: id, Body: "Explain.", Type: string(model.QuestionTypeEssay)}
}

type harness struct {
	local   *fakeLocal
	backend *fakeBackend
	clock   *clock.Reconciler
	drafts  *memDrafts
	journal *memJournal
	svc     *SessionService
}

func startHarness(t *testing.T, durationMin int, qs ...backend.QuestionPayload) *harness {
	t.Helper()
	local := &fakeLocal{now: localBase}
	h := &harness{
		local:   local,
		backend: newFakeBackend(local, durationMin, qs...),
		clock:   clock.NewReconciler(local.Now),
		drafts:  &memDrafts{},
		journal: &memJournal{},
	}
	h.svc = NewSessionService("test-1", "tok", h.backend, h.clock, h.drafts, h.journal, zerolog.Nop(), time.Second)
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}
