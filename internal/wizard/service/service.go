package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"fundly/internal/amount"
	donationModels "fundly/internal/donation/models"
	donorModels "fundly/internal/donor/models"
	"fundly/internal/notify"
	"fundly/internal/platform/metrics"
	"fundly/internal/wizard/models"
	"fundly/internal/wizard/ports"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/email"
	"fundly/pkg/platform/keylock"
	"fundly/pkg/platform/sentinel"
	"fundly/pkg/requestcontext"
)

var tracer = otel.Tracer("fundly/internal/wizard")

const (
	DefaultResendCooldown = 45 * time.Second
	DefaultDraftTTL       = 24 * time.Hour
	DefaultLoginURL       = "/login"

	referencePrefix = "PLG-"
	notifyTimeout   = 5 * time.Second
)

type Config struct {
	ResendCooldown time.Duration
	DraftTTL       time.Duration
	// LoginURL is where unauthenticated donors are sent before the amount
	// step can complete.
	LoginURL      string
	MinimumAmount int64
}

// Dependencies are the collaborators every wizard needs.
type Dependencies struct {
	Drafts    ports.DraftStore
	Ledger    ports.ProjectLedger
	Donors    ports.DonorDirectory
	Donations ports.Donations
	Gateway   ports.PaymentGateway
	Verifier  ports.Verifier
	Receipts  ports.ReceiptStore
}

// Service drives drafts through the pledge steps. Every operation loads the
// draft, applies one transition and saves it, so a failed step leaves the
// stored draft untouched.
type Service struct {
	drafts     ports.DraftStore
	ledger     ports.ProjectLedger
	donors     ports.DonorDirectory
	donations  ports.Donations
	gateway    ports.PaymentGateway
	verifier   ports.Verifier
	receipts   ports.ReceiptStore
	notifier   ports.Notifier
	amounts    *amount.Validator
	cfg        Config
	locks      *keylock.Locker
	references func() string
	logger     *slog.Logger
	metrics    *metrics.Metrics
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

func WithNotifier(n ports.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithLocker(l *keylock.Locker) Option {
	return func(s *Service) {
		s.locks = l
	}
}

// WithReferenceGenerator replaces the bank transfer reference source.
func WithReferenceGenerator(gen func() string) Option {
	return func(s *Service) {
		s.references = gen
	}
}

func newReference() string {
	return referencePrefix + ulid.Make().String()
}

func New(deps Dependencies, cfg Config, opts ...Option) (*Service, error) {
	switch {
	case deps.Drafts == nil:
		return nil, errors.New("draft store is required")
	case deps.Ledger == nil:
		return nil, errors.New("project ledger is required")
	case deps.Donors == nil:
		return nil, errors.New("donor directory is required")
	case deps.Donations == nil:
		return nil, errors.New("donation store is required")
	case deps.Gateway == nil:
		return nil, errors.New("payment gateway is required")
	case deps.Verifier == nil:
		return nil, errors.New("verifier is required")
	case deps.Receipts == nil:
		return nil, errors.New("receipt store is required")
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = DefaultResendCooldown
	}
	if cfg.DraftTTL <= 0 {
		cfg.DraftTTL = DefaultDraftTTL
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	s := &Service{
		drafts:     deps.Drafts,
		ledger:     deps.Ledger,
		donors:     deps.Donors,
		donations:  deps.Donations,
		gateway:    deps.Gateway,
		verifier:   deps.Verifier,
		receipts:   deps.Receipts,
		amounts:    amount.NewValidator(cfg.MinimumAmount),
		cfg:        cfg,
		locks:      keylock.New(),
		references: newReference,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Begin starts a draft for a project that still accepts pledges. The draft
// belongs to the signed-in user, the browser session, or both.
func (s *Service) Begin(ctx context.Context, projectID id.ProjectID) (*models.Draft, error) {
	ctx, span := tracer.Start(ctx, "wizard.Begin")
	defer span.End()

	owner := ownerFrom(ctx)
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "a browser session or signed-in user is required")
	}
	if _, err := s.ledger.EnsureAcceptsPledges(ctx, projectID); err != nil {
		return nil, err
	}
	draft, err := models.NewDraft(id.NewDraftID(), projectID, owner, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, err.Error())
	}
	if err := s.save(ctx, draft); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("draft_id", draft.ID.String()))

	s.metrics.IncrementDraftsStarted()
	s.logAudit(ctx, "draft_started",
		"draft_id", draft.ID.String(),
		"project_id", projectID.String(),
	)
	return draft, nil
}

// Get returns a draft so a client can resume it at its current step.
func (s *Service) Get(ctx context.Context, draftID id.DraftID) (*models.Draft, error) {
	d, err := s.load(ctx, draftID)
	return d, s.observe(ctx, "get", err)
}

// SubmitAmount completes the amount step. Unauthenticated callers get an
// unauthorized error carrying where to sign in and where to come back to;
// the draft is not touched.
func (s *Service) SubmitAmount(ctx context.Context, draftID id.DraftID, in models.AmountInput) (*models.Draft, error) {
	var result *models.Draft
	err := s.withDraft(ctx, draftID, func(ctx context.Context, d *models.Draft) error {
		user, ok := requestcontext.CurrentUser(ctx)
		if !ok {
			return dErrors.WithMeta(dErrors.CodeUnauthorized, "sign in to continue your pledge", map[string]string{
				"login_url": s.cfg.LoginURL,
				"continue":  continuePath(d.ID),
			})
		}
		if err := d.Expect(models.StepAmount); err != nil {
			return err
		}
		units, err := s.parseAmount(in)
		if err != nil {
			return err
		}
		var prefill *donorModels.ContactInfo
		if user.Name != "" || user.Email != "" {
			name := user.Name
			if name == "" {
				name = email.DisplayName(user.Email)
			}
			prefill = &donorModels.ContactInfo{Name: name, Email: user.Email}
		}
		if err := d.SubmitAmount(models.Pledge{Amount: units, Anonymous: in.Anonymous}, prefill, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.save(ctx, d); err != nil {
			return err
		}
		s.stepCompleted(ctx, d, models.StepAmount)
		result = d
		return nil
	})
	return result, s.observe(ctx, "submit_amount", err)
}

func (s *Service) parseAmount(in models.AmountInput) (int64, error) {
	if strings.TrimSpace(in.Raw) != "" {
		return s.amounts.Parse(in.Raw)
	}
	return s.amounts.Validate(in.Preset)
}

// SubmitIdentity validates every contact field at once, sends a
// verification code and moves the draft to the verification step.
//
// A donor who went back while the resend window still runs does not get a
// new code: unchanged details reuse the code already sent, changed details
// are refused with rate_limited until the window closes.
func (s *Service) SubmitIdentity(ctx context.Context, draftID id.DraftID, info donorModels.ContactInfo) (*models.Draft, error) {
	info = models.NormalizeIdentity(info)
	var result *models.Draft
	var issued bool
	err := s.withDraft(ctx, draftID, func(ctx context.Context, d *models.Draft) error {
		step, ok := d.Step.(models.IdentityStep)
		if !ok {
			return d.Expect(models.StepIdentity)
		}
		if err := models.ValidateIdentity(info); err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if remaining := d.CodeCooldown(now); remaining > 0 {
			if step.Prefill == nil || !sameRecipient(*step.Prefill, info) {
				s.metrics.IncrementVerificationResend("rejected")
				return cooldownError(remaining)
			}
			if err := d.SubmitIdentity(info, time.Time{}, now); err != nil {
				return err
			}
			if err := s.save(ctx, d); err != nil {
				return err
			}
			s.stepCompleted(ctx, d, models.StepIdentity)
			result = d
			return nil
		}
		if err := d.SubmitIdentity(info, now.Add(s.cfg.ResendCooldown), now); err != nil {
			return err
		}
		if err := s.issueCode(ctx, d, info); err != nil {
			return err
		}
		if err := s.save(ctx, d); err != nil {
			return err
		}
		s.stepCompleted(ctx, d, models.StepIdentity)
		result = d
		issued = true
		return nil
	})
	if issued {
		s.codeIssued(ctx, result, info)
	}
	return result, s.observe(ctx, "submit_identity", err)
}

// SubmitCode checks the verification code. Malformed codes never reach the
// verifier; a rejected code leaves the draft at the verification step.
func (s *Service) SubmitCode(ctx context.Context, draftID id.DraftID, code string) (*models.Draft, error) {
	code = strings.TrimSpace(code)
	var result *models.Draft
	err := s.withDraft(ctx, draftID, func(ctx context.Context, d *models.Draft) error {
		if err := d.Expect(models.StepVerification); err != nil {
			return err
		}
		if err := models.ValidateCode(code); err != nil {
			return err
		}
		ok, err := s.verifier.CheckCode(ctx, d.ID.String(), code)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeExternalFailure, "verification service unavailable")
		}
		if !ok {
			return dErrors.New(dErrors.CodeExternalFailure, "verification code was not accepted")
		}
		if err := d.PassVerification(requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.save(ctx, d); err != nil {
			return err
		}
		s.stepCompleted(ctx, d, models.StepVerification)
		result = d
		return nil
	})
	return result, s.observe(ctx, "submit_code", err)
}

// ResendCode issues a new code once the cooldown has elapsed and returns the
// new cooldown. While the cooldown runs it fails with rate_limited and the
// remaining seconds.
func (s *Service) ResendCode(ctx context.Context, draftID id.DraftID) (time.Duration, error) {
	var cooldown time.Duration
	var (
		issuedFor *models.Draft
		recipient donorModels.ContactInfo
	)
	err := s.withDraft(ctx, draftID, func(ctx context.Context, d *models.Draft) error {
		now := requestcontext.Now(ctx)
		remaining, err := d.ResendCooldown(now)
		if err != nil {
			return err
		}
		if remaining > 0 {
			s.metrics.IncrementVerificationResend("rejected")
			return cooldownError(remaining)
		}
		donor, _ := d.Donor()
		if err := s.issueCode(ctx, d, donor); err != nil {
			return err
		}
		if err := d.RestartResendWindow(now.Add(s.cfg.ResendCooldown), now); err != nil {
			return err
		}
		if err := s.save(ctx, d); err != nil {
			return err
		}
		s.metrics.IncrementVerificationResend("sent")
		cooldown = s.cfg.ResendCooldown
		issuedFor, recipient = d, donor
		return nil
	})
	if issuedFor != nil {
		s.codeIssued(ctx, issuedFor, recipient)
	}
	return cooldown, s.observe(ctx, "resend_code", err)
}

// sameRecipient reports whether a code sent to a would also reach b.
func sameRecipient(a, b donorModels.ContactInfo) bool {
	return a.NormalizedEmail() == b.NormalizedEmail() && a.NormalizedPhone() == b.NormalizedPhone()
}

func cooldownError(remaining time.Duration) error {
	secs := int(math.Ceil(remaining.Seconds()))
	return dErrors.WithMeta(dErrors.CodeRateLimited,
		fmt.Sprintf("a new code can be requested in %d seconds", secs),
		map[string]string{"retry_after": strconv.Itoa(secs)})
}

// GoBack returns the draft to an earlier step, clearing everything after it.
func (s *Service) GoBack(ctx context.Context, draftID id.DraftID, target string) (*models.Draft, error) {
	step, ok := models.ParseStepName(target)
	if !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown step "+target)
	}
	var result *models.Draft
	err := s.withDraft(ctx, draftID, func(ctx context.Context, d *models.Draft) error {
		from := d.StepName()
		if err := d.GoBack(step, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := s.save(ctx, d); err != nil {
			return err
		}
		s.logAudit(ctx, "draft_went_back",
			"draft_id", d.ID.String(),
			"from", from.String(),
			"to", step.String(),
		)
		result = d
		return nil
	})
	return result, s.observe(ctx, "go_back", err)
}

// SelectMethod chooses how to pay. Card hands off to the gateway: success
// or an accepted redirect finalizes the draft, failure or cancellation
// keeps it at the method step with nothing recorded. Bank transfer assigns
// a reference and moves on to the receipt step.
func (s *Service) SelectMethod(ctx context.Context, draftID id.DraftID, method string) (*models.MethodResult, error) {
	m, ok := donationModels.ParsePaymentMethod(method)
	if !ok || !m.IsWizardMethod() {
		return nil, dErrors.NewValidation("invalid payment method", map[string]string{
			models.FieldMethod: "choose card or bank_transfer",
		})
	}
	var result *models.MethodResult
	err := s.withDraft(ctx, draftID, func(ctx context.Context, d *models.Draft) error {
		step, err := d.RequireMethodStep()
		if err != nil {
			return err
		}
		if _, err := s.ledger.EnsureAcceptsPledges(ctx, d.ProjectID); err != nil {
			return err
		}
		if m == donationModels.MethodBankTransfer {
			if err := d.ChooseBankTransfer(s.references(), requestcontext.Now(ctx)); err != nil {
				return err
			}
			if err := s.save(ctx, d); err != nil {
				return err
			}
			s.stepCompleted(ctx, d, models.StepMethod)
			result = &models.MethodResult{Draft: d}
			return nil
		}

		card, err := s.gateway.InitiateCardPayment(ctx, step.Pledge.Amount, d.ID.String())
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeExternalFailure, "card payment could not be started")
		}
		switch card.Outcome {
		case donationModels.CardOutcomeSuccess, donationModels.CardOutcomePending:
			s.stepCompleted(ctx, d, models.StepMethod)
			thanks, err := s.finalize(ctx, d, finalizeInput{
				method:    donationModels.MethodCard,
				reference: card.TransactionID,
				outcome:   card.Outcome,
			})
			if err != nil {
				return err
			}
			result = &models.MethodResult{ThankYou: thanks}
			return nil
		case donationModels.CardOutcomeFailure, donationModels.CardOutcomeCancelled:
			reason := card.Reason
			if reason == "" {
				reason = "card payment " + string(card.Outcome)
			}
			s.logAudit(ctx, "card_payment_not_completed",
				"draft_id", d.ID.String(),
				"outcome", string(card.Outcome),
				"reason", reason,
			)
			return dErrors.New(dErrors.CodeExternalFailure, reason)
		default:
			return dErrors.New(dErrors.CodeExternalFailure, "payment gateway returned an unknown outcome")
		}
	})
	return result, s.observe(ctx, "select_method", err)
}

// SubmitReceipt stores the bank transfer receipt and finalizes the draft.
func (s *Service) SubmitReceipt(ctx context.Context, draftID id.DraftID, att models.Attachment) (*models.ThankYou, error) {
	if len(att.Body) == 0 {
		return nil, dErrors.NewValidation("receipt is required", map[string]string{
			models.FieldFile: "attach the transfer receipt",
		})
	}
	var result *models.ThankYou
	err := s.withDraft(ctx, draftID, func(ctx context.Context, d *models.Draft) error {
		step, err := d.RequireReceiptStep()
		if err != nil {
			return err
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		key := fmt.Sprintf("receipts/%s/%s", d.ProjectID, step.Reference)
		stored, err := s.receipts.Put(ctx, key, contentType, att.Body)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store receipt")
		}
		s.stepCompleted(ctx, d, models.StepReceipt)
		thanks, err := s.finalize(ctx, d, finalizeInput{
			method:    donationModels.MethodBankTransfer,
			reference: step.Reference,
			receipt:   stored,
		})
		if err != nil {
			return err
		}
		result = thanks
		return nil
	})
	return result, s.observe(ctx, "submit_receipt", err)
}

// Abandon discards a draft. Nothing durable exists before finalization, so
// there is nothing else to undo.
func (s *Service) Abandon(ctx context.Context, draftID id.DraftID) error {
	err := s.withDraft(ctx, draftID, func(ctx context.Context, d *models.Draft) error {
		if err := s.drafts.Delete(ctx, d.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to discard draft")
		}
		s.metrics.IncrementWizardAbandoned()
		s.logAudit(ctx, "draft_abandoned",
			"draft_id", d.ID.String(),
			"step", d.StepName().String(),
		)
		return nil
	})
	return s.observe(ctx, "abandon", err)
}

type finalizeInput struct {
	method    donationModels.PaymentMethod
	reference string
	receipt   string
	outcome   donationModels.CardOutcome
}

// finalize commits the draft as a donation and clears it. A synchronous card
// answer is recorded with the donation itself.
func (s *Service) finalize(ctx context.Context, d *models.Draft, in finalizeInput) (*models.ThankYou, error) {
	ctx, span := tracer.Start(ctx, "wizard.Finalize")
	defer span.End()
	defer s.metrics.ObserveFinalize(time.Now())
	span.SetAttributes(
		attribute.String("draft_id", d.ID.String()),
		attribute.String("method", in.method.String()),
	)

	pledge, hasPledge := d.Pledge()
	contact, hasDonor := d.Donor()
	if !hasPledge || !hasDonor || !d.VerificationPassed() {
		return nil, dErrors.New(dErrors.CodeInvalidState, "draft "+d.ID.String()+" is not ready to finalize")
	}

	params := donationModels.NewDonationParams{
		ProjectID:         d.ProjectID,
		Amount:            pledge.Amount,
		Method:            in.method,
		Reference:         in.reference,
		ReceiptAttachment: in.receipt,
		IsAnonymous:       pledge.Anonymous,
	}
	if !pledge.Anonymous {
		donor, err := s.donors.Resolve(ctx, contact)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		params.DonorID = &donor.ID
	}
	var donation *donationModels.Donation
	var err error
	if in.method == donationModels.MethodCard {
		donation, err = s.donations.CreateCard(ctx, params, in.outcome, "")
	} else {
		donation, err = s.donations.Create(ctx, params)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.drafts.Delete(ctx, d.ID); err != nil {
		s.logError(ctx, "failed to clear finalized draft", err, "draft_id", d.ID.String())
	}
	s.metrics.IncrementWizardStep("finalize")
	s.logAudit(ctx, "draft_finalized",
		"draft_id", d.ID.String(),
		"donation_id", donation.ID.String(),
		"project_id", d.ProjectID.String(),
		"method", in.method.String(),
		"status", donation.Status.String(),
	)
	return &models.ThankYou{
		DonationID: donation.ID,
		ProjectID:  donation.ProjectID,
		Status:     donation.Status,
		Method:     donation.Method,
		Amount:     donation.Amount,
		Reference:  donation.Reference,
	}, nil
}

func (s *Service) issueCode(ctx context.Context, d *models.Draft, recipient donorModels.ContactInfo) error {
	if err := s.verifier.IssueCode(ctx, d.ID.String(), recipient); err != nil {
		return dErrors.Wrap(err, dErrors.CodeExternalFailure, "verification code could not be sent")
	}
	return nil
}

// codeIssued announces a sent code. It runs after the draft lock is
// released, detached from the request and bounded by notifyTimeout.
func (s *Service) codeIssued(ctx context.Context, d *models.Draft, recipient donorModels.ContactInfo) {
	if s.notifier == nil {
		return
	}
	event := notify.Event{
		Type:       notify.TypeVerificationCodeIssued,
		OccurredAt: requestcontext.Now(ctx),
		DraftID:    d.ID.String(),
		ProjectID:  d.ProjectID.String(),
		Recipient:  recipient.Email,
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logError(ctx, "notification failed", err, "draft_id", d.ID.String(), "type", string(event.Type))
	}
}

// withDraft runs fn on a freshly loaded copy of the draft while holding the
// draft's lock.
func (s *Service) withDraft(ctx context.Context, draftID id.DraftID, fn func(ctx context.Context, d *models.Draft) error) error {
	return s.locks.Do(ctx, "draft:"+draftID.String(), func(ctx context.Context) error {
		d, err := s.load(ctx, draftID)
		if err != nil {
			return err
		}
		return fn(ctx, d)
	})
}

// load fetches a draft the caller owns. A visitor who signs in mid-wizard
// keeps the draft started under their browser session.
func (s *Service) load(ctx context.Context, draftID id.DraftID) (*models.Draft, error) {
	d, err := s.drafts.Get(ctx, draftID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "draft not found or expired")
		}
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load draft")
	}
	caller := ownerFrom(ctx)
	if !d.Owner.Allows(caller.UserID, caller.Session) {
		return nil, dErrors.New(dErrors.CodeForbidden, "draft belongs to another visitor")
	}
	if d.Owner.UserID == "" && caller.UserID != "" {
		d.Owner.UserID = caller.UserID
	}
	return d, nil
}

func (s *Service) save(ctx context.Context, d *models.Draft) error {
	if err := s.drafts.Save(ctx, d, s.cfg.DraftTTL); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save draft")
	}
	return nil
}

func (s *Service) stepCompleted(ctx context.Context, d *models.Draft, step models.StepName) {
	s.metrics.IncrementWizardStep(step.String())
	s.logAudit(ctx, "draft_step_completed",
		"draft_id", d.ID.String(),
		"step", step.String(),
		"next", d.StepName().String(),
	)
}

// observe logs routing defects. Invalid state means a client skipped a
// step, which is never a user error.
func (s *Service) observe(ctx context.Context, op string, err error) error {
	if err != nil && dErrors.HasCode(err, dErrors.CodeInvalidState) {
		s.logError(ctx, "wizard step out of order", err, "operation", op)
	}
	return err
}

func ownerFrom(ctx context.Context) models.Owner {
	owner := models.Owner{Session: requestcontext.BrowserSession(ctx)}
	if user, ok := requestcontext.CurrentUser(ctx); ok {
		owner.UserID = user.ID.String()
	}
	return owner
}

func continuePath(draftID id.DraftID) string {
	return "/pledges/" + draftID.String()
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
