package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fundly/internal/campaign/models"
	id "fundly/pkg/domain"
	"fundly/pkg/platform/sentinel"
)

// ErrNotFound is returned when a project does not exist or was deleted.
var ErrNotFound = sentinel.ErrNotFound

type record struct {
	project   models.Project
	deletedAt *time.Time
}

// InMemoryStore keeps projects in process memory. Returned projects are
// copies; callers persist changes through Update.
type InMemoryStore struct {
	mu       sync.RWMutex
	projects map[id.ProjectID]*record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{projects: make(map[id.ProjectID]*record)}
}

func (s *InMemoryStore) Create(_ context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[project.ID]; exists {
		return fmt.Errorf("project %s: %w", project.ID, sentinel.ErrConflict)
	}
	s.projects[project.ID] = &record{project: *project}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, projectID id.ProjectID) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.projects[projectID]
	if !ok || rec.deletedAt != nil {
		return nil, ErrNotFound
	}
	p := rec.project
	return &p, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Project, 0, len(s.projects))
	for _, rec := range s.projects {
		if rec.deletedAt != nil {
			continue
		}
		p := rec.project
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Update(_ context.Context, project *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.projects[project.ID]
	if !ok || rec.deletedAt != nil {
		return ErrNotFound
	}
	rec.project = *project
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, projectID id.ProjectID, deletedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.projects[projectID]
	if !ok || rec.deletedAt != nil {
		return ErrNotFound
	}
	rec.deletedAt = &deletedAt
	return nil
}

// Exclusive runs fn directly. A memory store lives in one process, where the
// ledger's own key lock already serializes writers.
func (s *InMemoryStore) Exclusive(ctx context.Context, _ id.ProjectID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
