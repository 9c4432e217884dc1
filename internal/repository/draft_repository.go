package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-agent/internal/config"
	"github.com/stemsi/exstem-agent/internal/model"
)

// DraftRepository autosaves answer drafts in a Redis hash so a restarted
// agent or reloaded UI picks up where the student left off.
type DraftRepository struct {
	rdb *redis.Client
	key string
}

// NewDraftRepository creates a DraftRepository for one attempt.
func NewDraftRepository(rdb *redis.Client, fingerprint, testID string) *DraftRepository {
	return &DraftRepository{
		rdb: rdb,
		key: config.CacheKey.AttemptDraftsKey(fingerprint, testID),
	}
}

// Save stores the draft for questionID, overwriting any previous one.
func (r *DraftRepository) Save(ctx context.Context, questionID string, a model.Answer) error {
	raw, err := model.MarshalAnswer(a)
	if err != nil {
		return err
	}
	if err := r.rdb.HSet(ctx, r.key, questionID, raw).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Load returns all drafts. Entries that cannot be decoded are skipped.
func (r *DraftRepository) Load(ctx context.Context) (map[string]model.Answer, error) {
	fields, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load drafts: %w", err)
	}

	drafts := make(map[string]model.Answer, len(fields))
	for qid, raw := range fields {
		a, err := model.UnmarshalAnswer([]byte(raw))
		if err != nil {
			continue
		}
		drafts[qid] = a
	}
	return drafts, nil
}

// Clear removes every draft of the attempt.
func (r *DraftRepository) Clear(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}
