package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"fundly/internal/donor/models"
	"fundly/internal/platform/metrics"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/platform/keylock"
	"fundly/pkg/platform/sentinel"
	"fundly/pkg/requestcontext"
)

var tracer = otel.Tracer("fundly/internal/donor")

// resolveKey serializes resolution so that two first donations with the
// same contact details cannot create two donors.
const resolveKey = "donor-resolution"

type Store interface {
	Create(ctx context.Context, donor *models.Donor) error
	FindByID(ctx context.Context, donorID id.DonorID) (*models.Donor, error)
	FindByContact(ctx context.Context, info models.ContactInfo) (*models.Donor, error)
	Update(ctx context.Context, donor *models.Donor) error
}

// TotalsSource derives a donor's totals from their donations.
type TotalsSource interface {
	DonorTotals(ctx context.Context, donorID id.DonorID) (models.Totals, error)
}

// Service is the donor directory.
type Service struct {
	store   Store
	totals  TotalsSource
	locks   *keylock.Locker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLocker(l *keylock.Locker) Option {
	return func(s *Service) {
		s.locks = l
	}
}

func New(store Store, totals TotalsSource, opts ...Option) *Service {
	s := &Service{store: store, totals: totals}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = keylock.New()
	}
	return s
}

// Resolve returns the donor matching the normalized email or phone, creating
// one with MemberSince set to now when nothing matches.
func (s *Service) Resolve(ctx context.Context, info models.ContactInfo) (*models.Donor, error) {
	if info.NormalizedEmail() == "" && info.NormalizedPhone() == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "email or phone is required to resolve a donor")
	}

	var donor *models.Donor
	err := s.locks.Do(ctx, resolveKey, func(ctx context.Context) error {
		existing, err := s.store.FindByContact(ctx, info)
		if err == nil {
			donor = existing
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up donor")
		}

		created, err := models.NewDonor(id.NewDonorID(), info, requestcontext.Now(ctx))
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if err := s.store.Create(ctx, created); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create donor")
		}
		s.logAudit(ctx, "donor_created", "donor_id", created.ID.String())
		s.metrics.IncrementDonorsCreated()
		donor = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return donor, nil
}

func (s *Service) Get(ctx context.Context, donorID id.DonorID) (*models.Donor, error) {
	d, err := s.store.FindByID(ctx, donorID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "donor not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donor")
	}
	return d, nil
}

// Recompute re-derives totalDonated and donationCount from the donor's
// donations.
func (s *Service) Recompute(ctx context.Context, donorID id.DonorID) error {
	ctx, span := tracer.Start(ctx, "donor.Recompute")
	defer span.End()
	span.SetAttributes(attribute.String("donor_id", donorID.String()))

	start := time.Now()
	defer s.metrics.ObserveRecompute(start)

	return s.locks.Do(ctx, donorID.String(), func(ctx context.Context) error {
		donor, err := s.store.FindByID(ctx, donorID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "donor not found")
			}
			span.RecordError(err)
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donor")
		}
		totals, err := s.totals.DonorTotals(ctx, donorID)
		if err != nil {
			span.RecordError(err)
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate donor totals")
		}
		donor.ApplyTotals(totals)
		if err := s.store.Update(ctx, donor); err != nil {
			span.RecordError(err)
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save donor totals")
		}
		return nil
	})
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
