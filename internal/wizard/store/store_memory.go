package store

import (
	"context"
	"sync"
	"time"

	"fundly/internal/wizard/models"
	id "fundly/pkg/domain"
	"fundly/pkg/platform/sentinel"
	"fundly/pkg/requestcontext"
)

// ErrNotFound is returned for drafts that never existed or have expired.
var ErrNotFound = sentinel.ErrNotFound

type entry struct {
	draft     *models.Draft
	expiresAt time.Time
}

// InMemoryDraftStore keeps drafts in process. Expired drafts are dropped on
// read and by Sweep.
type InMemoryDraftStore struct {
	mu     sync.Mutex
	drafts map[id.DraftID]entry
}

func NewInMemoryDraftStore() *InMemoryDraftStore {
	return &InMemoryDraftStore{drafts: make(map[id.DraftID]entry)}
}

func (s *InMemoryDraftStore) Save(ctx context.Context, draft *models.Draft, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[draft.ID] = entry{
		draft:     draft.Clone(),
		expiresAt: requestcontext.Now(ctx).Add(ttl),
	}
	return nil
}

func (s *InMemoryDraftStore) Get(ctx context.Context, draftID id.DraftID) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.drafts[draftID]
	if !ok {
		return nil, ErrNotFound
	}
	if !requestcontext.Now(ctx).Before(e.expiresAt) {
		delete(s.drafts, draftID)
		return nil, ErrNotFound
	}
	return e.draft.Clone(), nil
}

func (s *InMemoryDraftStore) Delete(_ context.Context, draftID id.DraftID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, draftID)
	return nil
}

// Sweep drops expired drafts and reports how many were removed.
func (s *InMemoryDraftStore) Sweep(ctx context.Context) int {
	now := requestcontext.Now(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.drafts {
		if !now.Before(e.expiresAt) {
			delete(s.drafts, key)
			removed++
		}
	}
	return removed
}
