package service

import (
	"context"
	"sort"

	"fundly/internal/donation/models"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
)

func (s *Service) ListByProject(ctx context.Context, projectID id.ProjectID) ([]*models.Donation, error) {
	return s.list(ctx, models.Filter{ProjectID: &projectID})
}

func (s *Service) ListByDonor(ctx context.Context, donorID id.DonorID) ([]*models.Donation, error) {
	return s.list(ctx, models.Filter{DonorID: &donorID})
}

// MonthlyVerifiedTotals groups verified donations by the calendar month of
// their creation date, in UTC, oldest month first.
func (s *Service) MonthlyVerifiedTotals(ctx context.Context) ([]models.MonthlyTotal, error) {
	donations, err := s.list(ctx, models.Filter{Status: models.DonationStatusVerified})
	if err != nil {
		return nil, err
	}
	byMonth := make(map[string]*models.MonthlyTotal)
	for _, d := range donations {
		month := d.Date.UTC().Format("2006-01")
		total, ok := byMonth[month]
		if !ok {
			total = &models.MonthlyTotal{Month: month}
			byMonth[month] = total
		}
		total.Amount += d.Amount
		total.Count++
	}
	out := make([]models.MonthlyTotal, 0, len(byMonth))
	for _, total := range byMonth {
		out = append(out, *total)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// Distribution counts donations per status and per method, optionally for a
// single project.
func (s *Service) Distribution(ctx context.Context, projectID *id.ProjectID) (models.Distribution, error) {
	donations, err := s.list(ctx, models.Filter{ProjectID: projectID})
	if err != nil {
		return models.Distribution{}, err
	}
	dist := models.Distribution{
		ByStatus: make(map[models.DonationStatus]int),
		ByMethod: make(map[models.PaymentMethod]int),
	}
	for _, d := range donations {
		dist.ByStatus[d.Status]++
		dist.ByMethod[d.Method]++
	}
	return dist, nil
}

func (s *Service) list(ctx context.Context, filter models.Filter) ([]*models.Donation, error) {
	donations, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list donations")
	}
	return donations, nil
}
