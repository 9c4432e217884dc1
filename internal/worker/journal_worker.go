package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-agent/internal/config"
	"github.com/stemsi/exstem-agent/internal/journal"
)

const (
	JournalBatchTimeout = 2 * time.Second
	JournalPollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventSink persists journal events.
type EventSink interface {
	InsertBatch(ctx context.Context, events []journal.Event) error
	Insert(ctx context.Context, e journal.Event) error
}

// JournalWorker consumes persist_attempt_events_queue and writes batches to PostgreSQL.
type JournalWorker struct {
	sink      EventSink
	rdb       *redis.Client
	batchSize int
	log       zerolog.Logger
}

// NewJournalWorker creates a new JournalWorker.
func NewJournalWorker(sink EventSink, rdb *redis.Client, batchSize int, log zerolog.Logger) *JournalWorker {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &JournalWorker{
		sink:      sink,
		rdb:       rdb,
		batchSize: batchSize,
		log:       log.With().Str("component", "journal_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *JournalWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]journal.Event, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= JournalBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			batch = w.drain(context.Background(), batch)
			w.flushSafe(context.Background(), batch)
			w.log.Info().Msg("Worker stopped")
			return

		default:
			item, err := w.rdb.BLPop(ctx, JournalPollTimeout, config.WorkerKey.PersistAttemptEventsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			if e, ok := w.decode(item[1]); ok {
				batch = append(batch, e)
			}
		}
	}
}

func (w *JournalWorker) decode(raw string) (journal.Event, bool) {
	var e journal.Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		w.log.Error().Err(err).Msg("Invalid JSON payload")
		return e, false
	}
	return e, true
}

// flushSafe writes the batch, falling back to single inserts and requeueing
// whatever still fails.
func (w *JournalWorker) flushSafe(ctx context.Context, batch []journal.Event) {
	if len(batch) == 0 {
		return
	}

	err := w.sink.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Batch persisted")
		return
	}
	w.log.Warn().Err(err).Msg("Bulk insert failed, using fallback")

	for _, e := range batch {
		if err := w.sink.Insert(ctx, e); err != nil {
			w.log.Error().Err(err).Str("event_id", e.ID.String()).Msg("Insert failed, requeueing")
			w.requeue(ctx, e)
		}
	}
}

func (w *JournalWorker) requeue(ctx context.Context, e journal.Event) {
	raw, err := json.Marshal(e)
	if err != nil {
		w.log.Error().Err(err).Str("event_id", e.ID.String()).Msg("Requeue encode failed, event lost")
		return
	}
	if err := w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptEventsQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Str("event_id", e.ID.String()).Msg("Requeue failed, event lost")
	}
}

// drain pulls everything left in the queue into batch before shutdown.
func (w *JournalWorker) drain(ctx context.Context, batch []journal.Event) []journal.Event {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAttemptEventsQueue).Result()
		if err != nil {
			break
		}
		if e, ok := w.decode(raw); ok {
			batch = append(batch, e)
			drained++
		}
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
	return batch
}
