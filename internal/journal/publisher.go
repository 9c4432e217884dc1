package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-agent/internal/config"
)

// RedisPublisher queues events for the journal worker.
type RedisPublisher struct {
	rdb       *redis.Client
	studentID int
	log       zerolog.Logger
}

// NewRedisPublisher creates a RedisPublisher stamping events with studentID.
func NewRedisPublisher(rdb *redis.Client, studentID int, log zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		rdb:       rdb,
		studentID: studentID,
		log:       log.With().Str("component", "journal_publisher").Logger(),
	}
}

// Publish pushes e onto the persist queue.
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	if e.StudentID == 0 {
		e.StudentID = p.studentID
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.rdb.RPush(ctx, config.WorkerKey.PersistAttemptEventsQueue, raw).Err(); err != nil {
		return fmt.Errorf("queue event: %w", err)
	}
	p.log.Debug().Str("kind", string(e.Kind)).Str("question_id", e.QuestionID).Msg("Event queued")
	return nil
}
