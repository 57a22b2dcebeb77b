package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fundly/internal/wizard/models"
	id "fundly/pkg/domain"
)

const draftKeyPrefix = "fundly:draft:"

// RedisDraftStore keeps drafts as JSON records with a TTL, so abandoned
// drafts expire without a sweeper.
type RedisDraftStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisDraftStore {
	return &RedisDraftStore{client: client}
}

func draftKey(draftID id.DraftID) string {
	return draftKeyPrefix + draftID.String()
}

func (s *RedisDraftStore) Save(ctx context.Context, draft *models.Draft, ttl time.Duration) error {
	payload, err := json.Marshal(models.ToRecord(draft))
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, draftKey(draft.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *RedisDraftStore) Get(ctx context.Context, draftID id.DraftID) (*models.Draft, error) {
	payload, err := s.client.Get(ctx, draftKey(draftID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	var record models.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return models.FromRecord(record)
}

func (s *RedisDraftStore) Delete(ctx context.Context, draftID id.DraftID) error {
	if err := s.client.Del(ctx, draftKey(draftID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
