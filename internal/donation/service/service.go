package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"fundly/internal/donation/models"
	"fundly/internal/notify"
	"fundly/internal/platform/metrics"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/platform/keylock"
	"fundly/pkg/platform/sentinel"
	"fundly/pkg/requestcontext"
)

var tracer = otel.Tracer("fundly/internal/donation")

type Store interface {
	Create(ctx context.Context, donation *models.Donation) error
	FindByID(ctx context.Context, donationID id.DonationID) (*models.Donation, error)
	FindByReference(ctx context.Context, reference string) (*models.Donation, error)
	Update(ctx context.Context, donation *models.Donation) error
	List(ctx context.Context, filter models.Filter) ([]*models.Donation, error)
}

// ProjectLedger recomputes a project's funding from its donations.
type ProjectLedger interface {
	Recompute(ctx context.Context, projectID id.ProjectID) error
}

// DonorDirectory recomputes a donor's totals from their donations.
type DonorDirectory interface {
	Recompute(ctx context.Context, donorID id.DonorID) error
}

type Notifier interface {
	Notify(ctx context.Context, event notify.Event) error
}

// Service is the donation record store. Every status change is followed by
// the project and donor recomputes; when those cannot complete the change is
// rolled back.
type Service struct {
	store    Store
	ledger   ProjectLedger
	donors   DonorDirectory
	notifier Notifier
	locks    *keylock.Locker
	retry    func() backoff.BackOff
	logger   *slog.Logger
	metrics  *metrics.Metrics

	notifyTimeout time.Duration
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

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithNotifyTimeout bounds each notification delivery.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithRetryPolicy sets the backoff used for aggregate recomputes.
func WithRetryPolicy(policy func() backoff.BackOff) Option {
	return func(s *Service) {
		s.retry = policy
	}
}

const defaultNotifyTimeout = 5 * time.Second

func defaultRetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 5 * time.Second
	return backoff.WithMaxRetries(b, 4)
}

func New(store Store, ledger ProjectLedger, donors DonorDirectory, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ledger: ledger,
		donors: donors,
		locks:  keylock.New(),
		retry:  defaultRetryPolicy,

		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create records a pending donation for a finalized draft. The donor's
// donation count includes pending donations, so it is recomputed here.
func (s *Service) Create(ctx context.Context, params models.NewDonationParams) (*models.Donation, error) {
	donation, err := s.create(ctx, params)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, donation, notify.TypeDonationCreated)
	return donation, nil
}

// CreateCard records a card donation together with the gateway's
// synchronous answer. A success or a decline is applied before any event is
// emitted; a pending answer leaves the donation for the callback. If the
// settlement cannot be applied the donation is still returned, pending.
func (s *Service) CreateCard(ctx context.Context, params models.NewDonationParams, outcome models.CardOutcome, reason string) (*models.Donation, error) {
	if params.Method != models.MethodCard {
		return nil, dErrors.New(dErrors.CodeBadRequest, "donation was not paid by card")
	}
	apply, err := cardTransition(outcome, reason)
	if err != nil {
		return nil, err
	}
	donation, err := s.create(ctx, params)
	if err != nil {
		return nil, err
	}
	if apply == nil {
		s.notify(ctx, donation, notify.TypeDonationCreated)
		return donation, nil
	}

	pending := *donation
	settled, err := s.transition(ctx, donation.ID, apply)
	if err != nil {
		s.logError(ctx, "card settlement at creation failed", err, "donation_id", donation.ID.String())
		s.notify(ctx, &pending, notify.TypeDonationCreated)
		return &pending, nil
	}
	s.notify(ctx, &pending, notify.TypeDonationCreated)
	s.notify(ctx, settled, notify.TypeDonationStatusChanged)
	return settled, nil
}

func (s *Service) create(ctx context.Context, params models.NewDonationParams) (*models.Donation, error) {
	ctx, span := tracer.Start(ctx, "donation.Create")
	defer span.End()

	donation, err := models.NewDonation(id.NewDonationID(), params, requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}
	span.SetAttributes(
		attribute.String("donation_id", donation.ID.String()),
		attribute.String("method", donation.Method.String()),
	)
	if err := s.store.Create(ctx, donation); err != nil {
		span.RecordError(err)
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "donation reference already in use")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create donation")
	}

	if donation.DonorID != nil {
		if err := s.retryRecompute(ctx, "donor", func(ctx context.Context) error {
			return s.donors.Recompute(ctx, *donation.DonorID)
		}); err != nil {
			s.logError(ctx, "donor recompute after create failed", err, "donation_id", donation.ID.String())
		}
	}

	s.logAudit(ctx, "donation_created",
		"donation_id", donation.ID.String(),
		"project_id", donation.ProjectID.String(),
		"method", donation.Method.String(),
		"amount", donation.Amount,
	)
	s.metrics.IncrementDonationsCreated(donation.Method.String())
	return donation, nil
}

// ApplyCardOutcome settles a card donation from the gateway's answer.
// Success verifies it; failure or cancellation fails it with the reason.
// A pending outcome leaves it untouched.
func (s *Service) ApplyCardOutcome(ctx context.Context, donationID id.DonationID, outcome models.CardOutcome, reason string) (*models.Donation, error) {
	apply, err := cardTransition(outcome, reason)
	if err != nil {
		return nil, err
	}
	if apply == nil {
		return s.Get(ctx, donationID)
	}
	return s.changeStatus(ctx, donationID, apply)
}

// cardTransition maps a gateway outcome to a status change. Pending maps to
// no change.
func cardTransition(outcome models.CardOutcome, reason string) (func(*models.Donation, time.Time) error, error) {
	switch outcome {
	case models.CardOutcomeSuccess:
		return func(d *models.Donation, now time.Time) error {
			if d.Method != models.MethodCard {
				return dErrors.New(dErrors.CodeBadRequest, "donation was not paid by card")
			}
			return d.Verify(now)
		}, nil
	case models.CardOutcomeFailure, models.CardOutcomeCancelled:
		if reason == "" {
			reason = "card payment " + string(outcome)
		}
		return func(d *models.Donation, now time.Time) error {
			if d.Method != models.MethodCard {
				return dErrors.New(dErrors.CodeBadRequest, "donation was not paid by card")
			}
			return d.Fail(reason, now)
		}, nil
	case models.CardOutcomePending:
		return nil, nil
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown card outcome")
	}
}

// Review applies an administrator's decision on a bank transfer receipt.
func (s *Service) Review(ctx context.Context, donationID id.DonationID, decision models.ReviewDecision, reason string) (*models.Donation, error) {
	switch decision {
	case models.DecisionVerified:
		return s.changeStatus(ctx, donationID, func(d *models.Donation, now time.Time) error {
			if d.Method != models.MethodBankTransfer {
				return dErrors.New(dErrors.CodeBadRequest, "only bank transfers are reviewed")
			}
			return d.Verify(now)
		})
	case models.DecisionFailed:
		return s.changeStatus(ctx, donationID, func(d *models.Donation, now time.Time) error {
			if d.Method != models.MethodBankTransfer {
				return dErrors.New(dErrors.CodeBadRequest, "only bank transfers are reviewed")
			}
			return d.Fail(reason, now)
		})
	default:
		return nil, dErrors.New(dErrors.CodeBadRequest, "decision must be verified or failed")
	}
}

func (s *Service) changeStatus(ctx context.Context, donationID id.DonationID, apply func(*models.Donation, time.Time) error) (*models.Donation, error) {
	donation, err := s.transition(ctx, donationID, apply)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, donation, notify.TypeDonationStatusChanged)
	return donation, nil
}

// transition applies a status change under the donation's lock and
// recomputes the aggregates, rolling back when they cannot be recomputed.
func (s *Service) transition(ctx context.Context, donationID id.DonationID, apply func(*models.Donation, time.Time) error) (*models.Donation, error) {
	ctx, span := tracer.Start(ctx, "donation.ChangeStatus")
	defer span.End()
	span.SetAttributes(attribute.String("donation_id", donationID.String()))

	var result *models.Donation
	err := s.locks.Do(ctx, donationID.String(), func(ctx context.Context) error {
		donation, err := s.load(ctx, donationID)
		if err != nil {
			return err
		}
		previous := *donation

		if err := apply(donation, requestcontext.Now(ctx)); err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeConflict, err.Error())
			}
			return err
		}
		if err := s.store.Update(ctx, donation); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save donation status")
		}

		if err := s.recomputeAggregates(ctx, donation); err != nil {
			span.RecordError(err)
			s.rollback(ctx, &previous)
			return dErrors.Wrap(err, dErrors.CodeInternal, "donation status change rolled back")
		}
		result = donation
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "donation_status_changed",
		"donation_id", result.ID.String(),
		"project_id", result.ProjectID.String(),
		"status", result.Status.String(),
		"reason", result.FailureReason,
	)
	s.metrics.IncrementDonationTransition(result.Status.String())
	return result, nil
}

func (s *Service) recomputeAggregates(ctx context.Context, d *models.Donation) error {
	if err := s.retryRecompute(ctx, "project", func(ctx context.Context) error {
		return s.ledger.Recompute(ctx, d.ProjectID)
	}); err != nil {
		return err
	}
	if d.IsAnonymous || d.DonorID == nil {
		return nil
	}
	return s.retryRecompute(ctx, "donor", func(ctx context.Context) error {
		return s.donors.Recompute(ctx, *d.DonorID)
	})
}

// rollback restores the prior donation row and re-derives the aggregates
// from it, so totals again match the stored verified set.
func (s *Service) rollback(ctx context.Context, previous *models.Donation) {
	if err := s.store.Update(ctx, previous); err != nil {
		s.logError(ctx, "donation rollback failed", err, "donation_id", previous.ID.String())
		return
	}
	if err := s.recomputeAggregates(ctx, previous); err != nil {
		s.logError(ctx, "aggregate recompute after rollback failed", err, "donation_id", previous.ID.String())
	}
}

func (s *Service) retryRecompute(ctx context.Context, aggregate string, op func(ctx context.Context) error) error {
	attempt := func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if dErrors.HasCode(err, dErrors.CodeNotFound) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	onRetry := func(err error, wait time.Duration) {
		s.metrics.IncrementRecomputeRetry(aggregate)
		if s.logger != nil {
			s.logger.WarnContext(ctx, "aggregate recompute retry",
				"aggregate", aggregate,
				"wait", wait,
				"error", err,
			)
		}
	}
	return backoff.RetryNotify(attempt, backoff.WithContext(s.retry(), ctx), onRetry)
}

func (s *Service) Get(ctx context.Context, donationID id.DonationID) (*models.Donation, error) {
	return s.load(ctx, donationID)
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*models.Donation, error) {
	d, err := s.store.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "donation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donation")
	}
	return d, nil
}

func (s *Service) load(ctx context.Context, donationID id.DonationID) (*models.Donation, error) {
	d, err := s.store.FindByID(ctx, donationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "donation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load donation")
	}
	return d, nil
}

// notify is fire-and-forget: failures are logged, never returned. Delivery
// runs detached from the caller's context under its own timeout.
func (s *Service) notify(ctx context.Context, d *models.Donation, eventType notify.EventType) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	event := notify.Event{
		Type:       eventType,
		OccurredAt: requestcontext.Now(ctx),
		DonationID: d.ID.String(),
		ProjectID:  d.ProjectID.String(),
		Status:     d.Status.String(),
		Amount:     d.Amount,
		Method:     d.Method.String(),
		Reason:     d.FailureReason,
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logError(ctx, "notification failed", err, "donation_id", d.ID.String(), "type", string(eventType))
	}
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

func (s *Service) logError(ctx context.Context, msg string, err error, attributes ...any) {
	if s.logger == nil {
		return
	}
	args := append(attributes, "error", err)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		args = append(args, "request_id", requestID)
	}
	s.logger.ErrorContext(ctx, msg, args...)
}
