package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fundly/internal/donor/models"
	id "fundly/pkg/domain"
	"fundly/pkg/platform/sentinel"
)

var ErrNotFound = sentinel.ErrNotFound

type InMemoryStore struct {
	mu     sync.RWMutex
	donors map[id.DonorID]models.Donor
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{donors: make(map[id.DonorID]models.Donor)}
}

func (s *InMemoryStore) Create(_ context.Context, donor *models.Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.donors[donor.ID]; exists {
		return fmt.Errorf("donor %s: %w", donor.ID, sentinel.ErrConflict)
	}
	s.donors[donor.ID] = *donor
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, donorID id.DonorID) (*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donors[donorID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

// FindByContact returns the earliest donor matching email or phone.
func (s *InMemoryStore) FindByContact(_ context.Context, info models.ContactInfo) (*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Donor
	for _, d := range s.donors {
		if !d.Matches(info) {
			continue
		}
		if found == nil || d.MemberSince.Before(found.MemberSince) {
			c := d
			found = &c
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *InMemoryStore) Update(_ context.Context, donor *models.Donor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.donors[donor.ID]; !ok {
		return ErrNotFound
	}
	s.donors[donor.ID] = *donor
	return nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Donor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Donor, 0, len(s.donors))
	for _, d := range s.donors {
		c := d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MemberSince.Before(out[j].MemberSince)
	})
	return out, nil
}
