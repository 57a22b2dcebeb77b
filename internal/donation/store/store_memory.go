package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	campaignModels "fundly/internal/campaign/models"
	"fundly/internal/donation/models"
	donorModels "fundly/internal/donor/models"
	id "fundly/pkg/domain"
	"fundly/pkg/platform/sentinel"
)

var ErrNotFound = sentinel.ErrNotFound

// InMemoryStore keeps donations in process memory. It also answers the
// aggregation queries used by the ledger and the donor directory.
type InMemoryStore struct {
	mu          sync.RWMutex
	donations   map[id.DonationID]models.Donation
	byReference map[string]id.DonationID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		donations:   make(map[id.DonationID]models.Donation),
		byReference: make(map[string]id.DonationID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, d *models.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.donations[d.ID]; exists {
		return fmt.Errorf("donation %s: %w", d.ID, sentinel.ErrConflict)
	}
	if d.Reference != "" {
		if _, taken := s.byReference[d.Reference]; taken {
			return fmt.Errorf("reference %s: %w", d.Reference, sentinel.ErrConflict)
		}
		s.byReference[d.Reference] = d.ID
	}
	s.donations[d.ID] = *d
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, donationID id.DonationID) (*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.donations[donationID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *InMemoryStore) FindByReference(_ context.Context, reference string) (*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	donationID, ok := s.byReference[reference]
	if !ok {
		return nil, ErrNotFound
	}
	d := s.donations[donationID]
	return &d, nil
}

func (s *InMemoryStore) Update(_ context.Context, d *models.Donation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.donations[d.ID]; !ok {
		return ErrNotFound
	}
	s.donations[d.ID] = *d
	return nil
}

// List returns matching donations, oldest first.
func (s *InMemoryStore) List(_ context.Context, filter models.Filter) ([]*models.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Donation, 0)
	for _, d := range s.donations {
		if !filter.Match(&d) {
			continue
		}
		c := d
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// ProjectFunding sums verified amounts and counts distinct named donors.
func (s *InMemoryStore) ProjectFunding(_ context.Context, projectID id.ProjectID) (campaignModels.Funding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var funding campaignModels.Funding
	donors := make(map[id.DonorID]struct{})
	for _, d := range s.donations {
		if d.ProjectID != projectID || !d.CountsTowardFunding() {
			continue
		}
		funding.RaisedAmount += d.Amount
		if !d.IsAnonymous && d.DonorID != nil {
			donors[*d.DonorID] = struct{}{}
		}
	}
	funding.DonorsCount = len(donors)
	return funding, nil
}

// DonorTotals sums verified amounts and counts donations that did not fail.
func (s *InMemoryStore) DonorTotals(_ context.Context, donorID id.DonorID) (donorModels.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var totals donorModels.Totals
	for _, d := range s.donations {
		if d.DonorID == nil || *d.DonorID != donorID {
			continue
		}
		if d.Status != models.DonationStatusFailed {
			totals.DonationCount++
		}
		if d.CountsTowardFunding() {
			totals.TotalDonated += d.Amount
		}
	}
	return totals, nil
}
