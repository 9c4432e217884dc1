package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-agent/internal/journal"
)

// EventRepository handles journal data access.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// InsertBatch writes events in one statement. Duplicate ids are ignored so a
// requeued batch can be replayed.
func (r *EventRepository) InsertBatch(ctx context.Context, events []journal.Event) error {
	n := len(events)
	if n == 0 {
		return nil
	}

	ids := make([]uuid.UUID, n)
	testIDs := make([]string, n)
	studentIDs := make([]int, n)
	questionIDs := make([]string, n)
	indexes := make([]int, n)
	kinds := make([]string, n)
	timeouts := make([]bool, n)
	details := make([]string, n)
	occurred := make([]time.Time, n)

	for i, e := range events {
		ids[i] = e.ID
		testIDs[i] = e.TestID
		studentIDs[i] = e.StudentID
		questionIDs[i] = e.QuestionID
		indexes[i] = e.QuestionIndex
		kinds[i] = string(e.Kind)
		timeouts[i] = e.IsTimeout
		details[i] = e.Detail
		occurred[i] = e.OccurredAt
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_events
		   (id, test_id, student_id, question_id, question_index, kind, is_timeout, detail, occurred_at)
		 SELECT * FROM UNNEST(
		   $1::uuid[], $2::text[], $3::int[], $4::text[], $5::int[],
		   $6::text[], $7::bool[], $8::text[], $9::timestamptz[]
		 )
		 ON CONFLICT (id) DO NOTHING`,
		ids, testIDs, studentIDs, questionIDs, indexes, kinds, timeouts, details, occurred,
	)
	return err
}

// Insert writes a single event.
func (r *EventRepository) Insert(ctx context.Context, e journal.Event) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_events
		   (id, test_id, student_id, question_id, question_index, kind, is_timeout, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		e.ID, e.TestID, e.StudentID, e.QuestionID, e.QuestionIndex, string(e.Kind), e.IsTimeout, e.Detail, e.OccurredAt,
	)
	return err
}

// ListByTest returns the most recent events of a test, newest first.
func (r *EventRepository) ListByTest(ctx context.Context, testID string, limit int) ([]journal.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, student_id, question_id, question_index, kind, is_timeout, detail, occurred_at
		 FROM attempt_events
		 WHERE test_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`, testID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []journal.Event
	for rows.Next() {
		var e journal.Event
		var kind string
		if err := rows.Scan(&e.ID, &e.TestID, &e.StudentID, &e.QuestionID, &e.QuestionIndex, &kind, &e.IsTimeout, &e.Detail, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Kind = journal.Kind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}
