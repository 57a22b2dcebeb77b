package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	campaignModels "fundly/internal/campaign/models"
	campaignService "fundly/internal/campaign/service"
	campaignStore "fundly/internal/campaign/store"
	donationModels "fundly/internal/donation/models"
	donationService "fundly/internal/donation/service"
	donationStore "fundly/internal/donation/store"
	donorModels "fundly/internal/donor/models"
	donorService "fundly/internal/donor/service"
	donorStore "fundly/internal/donor/store"
	"fundly/internal/notify"
	"fundly/internal/wizard/models"
	"fundly/internal/wizard/ports"
	"fundly/internal/wizard/ports/mocks"
	"fundly/internal/wizard/store"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/requestcontext"
)

// =============================================================================
// Wizard Service Test Suite
// =============================================================================
// The ledger, directory and record store are the real services over memory
// stores; only the external collaborators are mocked.

type WizardSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	gateway   *mocks.MockPaymentGateway
	verifier  *mocks.MockVerifier
	receipts  *mocks.MockReceiptStore
	notifier  *mocks.MockNotifier
	drafts    *store.InMemoryDraftStore
	donations *donationStore.InMemoryStore
	ledger    *campaignService.Service
	service   *Service

	now     time.Time
	user    requestcontext.User
	session string
	project *campaignModels.Project
}

func TestWizardSuite(t *testing.T) {
	suite.Run(t, new(WizardSuite))
}

func (s *WizardSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.gateway = mocks.NewMockPaymentGateway(s.ctrl)
	s.verifier = mocks.NewMockVerifier(s.ctrl)
	s.receipts = mocks.NewMockReceiptStore(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.user = requestcontext.User{ID: id.UserID(uuid.New()), Name: "Ana Pérez", Email: "ana@example.com"}
	s.session = "sess-1"

	s.drafts = store.NewInMemoryDraftStore()
	s.donations = donationStore.NewInMemoryStore()
	s.ledger = campaignService.New(campaignStore.NewInMemoryStore(), s.donations)
	directory := donorService.New(donorStore.NewInMemoryStore(), s.donations)
	records := donationService.New(s.donations, s.ledger, directory)

	svc, err := New(Dependencies{
		Drafts:    s.drafts,
		Ledger:    s.ledger,
		Donors:    directory,
		Donations: records,
		Gateway:   s.gateway,
		Verifier:  s.verifier,
		Receipts:  s.receipts,
	}, Config{LoginURL: "https://auth.example.com/login"},
		WithNotifier(s.notifier),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithReferenceGenerator(func() string { return "PLG-TEST" }),
	)
	s.Require().NoError(err)
	s.service = svc

	p, err := s.ledger.CreateProject(s.ctx(), &campaignModels.CreateProjectRequest{
		Title: "Clean water", GoalAmount: 25000, EndDate: s.now.AddDate(0, 1, 0),
	})
	s.Require().NoError(err)
	s.project = p
}

func (s *WizardSuite) TearDownTest() {
	s.ctrl.Finish()
}

// ctx is a signed-in visitor at the suite clock.
func (s *WizardSuite) ctx() context.Context {
	return s.ctxAt(0)
}

func (s *WizardSuite) ctxAt(offset time.Duration) context.Context {
	ctx := requestcontext.WithUser(context.Background(), s.user)
	ctx = requestcontext.WithBrowserSession(ctx, s.session)
	return requestcontext.WithTime(ctx, s.now.Add(offset))
}

func (s *WizardSuite) anonymousCtx() context.Context {
	ctx := requestcontext.WithBrowserSession(context.Background(), s.session)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *WizardSuite) validIdentity() donorModels.ContactInfo {
	return donorModels.ContactInfo{Name: "Ana Pérez", Email: "Ana@Example.com", Phone: "600 123 456", CountryCode: "+34"}
}

func (s *WizardSuite) begin() *models.Draft {
	d, err := s.service.Begin(s.ctx(), s.project.ID)
	s.Require().NoError(err)
	return d
}

func (s *WizardSuite) toVerification(anonymous bool) *models.Draft {
	d := s.begin()
	_, err := s.service.SubmitAmount(s.ctx(), d.ID, models.AmountInput{Raw: "200", Anonymous: anonymous})
	s.Require().NoError(err)
	s.verifier.EXPECT().IssueCode(gomock.Any(), d.ID.String(), gomock.Any()).Return(nil)
	d, err = s.service.SubmitIdentity(s.ctx(), d.ID, s.validIdentity())
	s.Require().NoError(err)
	return d
}

func (s *WizardSuite) toMethod(anonymous bool) *models.Draft {
	d := s.toVerification(anonymous)
	s.verifier.EXPECT().CheckCode(gomock.Any(), d.ID.String(), "123456").Return(true, nil)
	d, err := s.service.SubmitCode(s.ctx(), d.ID, "123456")
	s.Require().NoError(err)
	s.Require().Equal(models.StepMethod, d.StepName())
	return d
}

func (s *WizardSuite) projectDonations() []*donationModels.Donation {
	list, err := s.donations.List(context.Background(), donationModels.Filter{ProjectID: &s.project.ID})
	s.Require().NoError(err)
	return list
}

func (s *WizardSuite) raised() int64 {
	p, err := s.ledger.GetProject(s.ctx(), s.project.ID)
	s.Require().NoError(err)
	return p.RaisedAmount()
}

// =============================================================================
// Constructor
// =============================================================================

func (s *WizardSuite) TestNewRequiresCollaborators() {
	_, err := New(Dependencies{}, Config{})
	s.Error(err)
	s.Contains(err.Error(), "draft store is required")
}

// =============================================================================
// Begin / ownership
// =============================================================================

func (s *WizardSuite) TestBegin() {
	s.Run("starts at the amount step", func() {
		d := s.begin()
		s.Equal(models.StepAmount, d.StepName())
		s.Equal(s.session, d.Owner.Session)
		s.Equal(s.user.ID.String(), d.Owner.UserID)
	})

	s.Run("rejects a stopped project", func() {
		_, err := s.ledger.Stop(s.ctx(), s.project.ID)
		s.Require().NoError(err)
		_, err = s.service.Begin(s.ctx(), s.project.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		_, err = s.ledger.Resume(s.ctx(), s.project.ID)
		s.Require().NoError(err)
	})

	s.Run("requires some caller identity", func() {
		_, err := s.service.Begin(requestcontext.WithTime(context.Background(), s.now), s.project.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *WizardSuite) TestDraftsAreOwned() {
	d := s.begin()
	stranger := requestcontext.WithTime(requestcontext.WithBrowserSession(context.Background(), "other-session"), s.now)
	_, err := s.service.Get(stranger, d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.Get(s.ctx(), id.NewDraftID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// =============================================================================
// Amount step
// =============================================================================

func (s *WizardSuite) TestAmountRequiresSignIn() {
	d, err := s.service.Begin(s.anonymousCtx(), s.project.ID)
	s.Require().NoError(err)

	_, err = s.service.SubmitAmount(s.anonymousCtx(), d.ID, models.AmountInput{Raw: "200"})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	meta := dErrors.MetaOf(err)
	s.Equal("https://auth.example.com/login", meta["login_url"])
	s.Equal("/pledges/"+d.ID.String(), meta["continue"])

	s.Run("signing in with the same browser session continues the draft", func() {
		got, err := s.service.SubmitAmount(s.ctx(), d.ID, models.AmountInput{Raw: "200"})
		s.Require().NoError(err)
		s.Equal(models.StepIdentity, got.StepName())
		s.Equal(s.user.ID.String(), got.Owner.UserID)
	})
}

func (s *WizardSuite) TestAmountBelowMinimumThenAccepted() {
	d := s.begin()

	_, err := s.service.SubmitAmount(s.ctx(), d.ID, models.AmountInput{Raw: "5"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(dErrors.FieldsOf(err)["amount"], "at least 10")

	stored, err := s.service.Get(s.ctx(), d.ID)
	s.Require().NoError(err)
	s.Equal(models.StepAmount, stored.StepName())

	got, err := s.service.SubmitAmount(s.ctx(), d.ID, models.AmountInput{Raw: "200"})
	s.Require().NoError(err)
	step, ok := got.Step.(models.IdentityStep)
	s.Require().True(ok)
	s.Equal(int64(200), step.Pledge.Amount)
	s.Require().NotNil(step.Prefill)
	s.Equal(s.user.Email, step.Prefill.Email)
}

func (s *WizardSuite) TestPrefillDerivesNameFromEmail() {
	user := requestcontext.User{ID: id.UserID(uuid.New()), Email: "maria.lopez+fund@example.com"}
	ctx := requestcontext.WithTime(requestcontext.WithUser(context.Background(), user), s.now)

	d, err := s.service.Begin(ctx, s.project.ID)
	s.Require().NoError(err)
	got, err := s.service.SubmitAmount(ctx, d.ID, models.AmountInput{Raw: "25"})
	s.Require().NoError(err)
	step, ok := got.Step.(models.IdentityStep)
	s.Require().True(ok)
	s.Require().NotNil(step.Prefill)
	s.Equal("Maria Lopez", step.Prefill.Name)
	s.Equal(user.Email, step.Prefill.Email)
}

func (s *WizardSuite) TestAmountFromPreset() {
	d := s.begin()
	got, err := s.service.SubmitAmount(s.ctx(), d.ID, models.AmountInput{Preset: 50})
	s.Require().NoError(err)
	pledge, _ := got.Pledge()
	s.Equal(int64(50), pledge.Amount)
}

// =============================================================================
// Identity and verification
// =============================================================================

func (s *WizardSuite) TestIdentityReportsAllFields() {
	d := s.begin()
	_, err := s.service.SubmitAmount(s.ctx(), d.ID, models.AmountInput{Raw: "200"})
	s.Require().NoError(err)

	_, err = s.service.SubmitIdentity(s.ctx(), d.ID, donorModels.ContactInfo{Email: "bad", Phone: "12"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	fields := dErrors.FieldsOf(err)
	s.Len(fields, 3)

	stored, err := s.service.Get(s.ctx(), d.ID)
	s.Require().NoError(err)
	s.Equal(models.StepIdentity, stored.StepName())
}

func (s *WizardSuite) TestIdentityKeepsStepWhenCodeCannotBeSent() {
	d := s.begin()
	_, err := s.service.SubmitAmount(s.ctx(), d.ID, models.AmountInput{Raw: "200"})
	s.Require().NoError(err)
	s.verifier.EXPECT().IssueCode(gomock.Any(), d.ID.String(), gomock.Any()).Return(errors.New("sms provider down"))

	_, err = s.service.SubmitIdentity(s.ctx(), d.ID, s.validIdentity())
	s.True(dErrors.HasCode(err, dErrors.CodeExternalFailure))

	stored, err := s.service.Get(s.ctx(), d.ID)
	s.Require().NoError(err)
	s.Equal(models.StepIdentity, stored.StepName())
}

func (s *WizardSuite) TestCodeShapeIsCheckedLocally() {
	d := s.toVerification(false)

	_, err := s.service.SubmitCode(s.ctx(), d.ID, "123")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal("incomplete code", dErrors.FieldsOf(err)["code"])
}

func (s *WizardSuite) TestRejectedCodeDoesNotAdvance() {
	d := s.toVerification(false)
	s.verifier.EXPECT().CheckCode(gomock.Any(), d.ID.String(), "654321").Return(false, nil)

	_, err := s.service.SubmitCode(s.ctx(), d.ID, "654321")
	s.True(dErrors.HasCode(err, dErrors.CodeExternalFailure))

	stored, err := s.service.Get(s.ctx(), d.ID)
	s.Require().NoError(err)
	s.Equal(models.StepVerification, stored.StepName())
}

func (s *WizardSuite) TestResendCooldown() {
	d := s.toVerification(false)

	_, err := s.service.ResendCode(s.ctxAt(10*time.Second), d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Equal("35", dErrors.MetaOf(err)["retry_after"])

	s.verifier.EXPECT().IssueCode(gomock.Any(), d.ID.String(), gomock.Any()).Return(nil)
	cooldown, err := s.service.ResendCode(s.ctxAt(45*time.Second), d.ID)
	s.Require().NoError(err)
	s.Equal(45*time.Second, cooldown)

	_, err = s.service.ResendCode(s.ctxAt(46*time.Second), d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Equal("44", dErrors.MetaOf(err)["retry_after"])
}

func (s *WizardSuite) TestGoingBackToIdentityKeepsResendCooldown() {
	d := s.toVerification(false)

	for i := 0; i < 3; i++ {
		_, err := s.service.GoBack(s.ctx(), d.ID, "identity")
		s.Require().NoError(err)
		got, err := s.service.SubmitIdentity(s.ctx(), d.ID, s.validIdentity())
		s.Require().NoError(err, "same recipient reuses the code already sent")
		s.Equal(models.StepVerification, got.StepName())
	}

	_, err := s.service.ResendCode(s.ctxAt(10*time.Second), d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Equal("35", dErrors.MetaOf(err)["retry_after"])

	_, err = s.service.GoBack(s.ctxAt(10*time.Second), d.ID, "identity")
	s.Require().NoError(err)
	changed := s.validIdentity()
	changed.Email = "other@example.com"
	_, err = s.service.SubmitIdentity(s.ctxAt(10*time.Second), d.ID, changed)
	s.True(dErrors.HasCode(err, dErrors.CodeRateLimited))
	s.Equal("35", dErrors.MetaOf(err)["retry_after"])

	s.verifier.EXPECT().IssueCode(gomock.Any(), d.ID.String(), gomock.Any()).Return(nil)
	got, err := s.service.SubmitIdentity(s.ctxAt(45*time.Second), d.ID, changed)
	s.Require().NoError(err)
	s.Equal(models.StepVerification, got.StepName())
}

// =============================================================================
// Step ordering
// =============================================================================

func (s *WizardSuite) TestStepsCannotBeSkipped() {
	d := s.begin()

	_, err := s.service.SubmitCode(s.ctx(), d.ID, "123456")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	_, err = s.service.SubmitIdentity(s.ctx(), d.ID, s.validIdentity())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	_, err = s.service.SelectMethod(s.ctx(), d.ID, "card")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	_, err = s.service.SubmitReceipt(s.ctx(), d.ID, models.Attachment{Body: []byte("pdf")})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	_, err = s.service.ResendCode(s.ctx(), d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	stored, err := s.service.Get(s.ctx(), d.ID)
	s.Require().NoError(err)
	s.Equal(models.StepAmount, stored.StepName())
	s.Empty(s.projectDonations())
}

func (s *WizardSuite) TestGoBackKeepsEarlierAnswers() {
	d := s.toMethod(false)

	got, err := s.service.GoBack(s.ctx(), d.ID, "identity")
	s.Require().NoError(err)
	step, ok := got.Step.(models.IdentityStep)
	s.Require().True(ok)
	s.Equal(int64(200), step.Pledge.Amount)
	s.Require().NotNil(step.Prefill)
	s.Equal("Ana Pérez", step.Prefill.Name)

	_, err = s.service.GoBack(s.ctx(), d.ID, "receipt")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	_, err = s.service.GoBack(s.ctx(), d.ID, "nowhere")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

// =============================================================================
// Payment method and finalization
// =============================================================================

func (s *WizardSuite) TestCardSuccessFinalizesVerified() {
	d := s.toMethod(false)
	s.gateway.EXPECT().InitiateCardPayment(gomock.Any(), int64(200), d.ID.String()).
		Return(ports.CardResult{Outcome: donationModels.CardOutcomeSuccess, TransactionID: "txn-1"}, nil)

	result, err := s.service.SelectMethod(s.ctx(), d.ID, "card")
	s.Require().NoError(err)
	s.Require().NotNil(result.ThankYou)
	s.Equal(donationModels.DonationStatusVerified, result.ThankYou.Status)
	s.Equal("txn-1", result.ThankYou.Reference)
	s.Equal(int64(200), s.raised())

	_, err = s.service.Get(s.ctx(), d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "finalized drafts are cleared")

	donations := s.projectDonations()
	s.Require().Len(donations, 1)
	s.NotNil(donations[0].DonorID)
}

// stalledNotifier holds every delivery until its context ends.
type stalledNotifier struct{}

func (stalledNotifier) Notify(ctx context.Context, _ notify.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *WizardSuite) TestCardSuccessIsSettledWhenNotificationsStall() {
	directory := donorService.New(donorStore.NewInMemoryStore(), s.donations)
	records := donationService.New(s.donations, s.ledger, directory,
		donationService.WithNotifier(stalledNotifier{}),
		donationService.WithNotifyTimeout(50*time.Millisecond),
	)
	svc, err := New(Dependencies{
		Drafts:    s.drafts,
		Ledger:    s.ledger,
		Donors:    directory,
		Donations: records,
		Gateway:   s.gateway,
		Verifier:  s.verifier,
		Receipts:  s.receipts,
	}, Config{}, WithNotifier(s.notifier))
	s.Require().NoError(err)
	s.service = svc

	d := s.toMethod(false)
	s.gateway.EXPECT().InitiateCardPayment(gomock.Any(), int64(200), d.ID.String()).
		Return(ports.CardResult{Outcome: donationModels.CardOutcomeSuccess, TransactionID: "txn-stall"}, nil)

	result, err := s.service.SelectMethod(s.ctx(), d.ID, "card")
	s.Require().NoError(err)
	s.Require().NotNil(result.ThankYou)
	s.Equal(donationModels.DonationStatusVerified, result.ThankYou.Status)
	s.Equal(int64(200), s.raised())

	stored, err := records.GetByReference(s.ctx(), "txn-stall")
	s.Require().NoError(err)
	s.Equal(donationModels.DonationStatusVerified, stored.Status)
}

func (s *WizardSuite) TestCardCancelledRecordsNothing() {
	d := s.toMethod(false)
	s.gateway.EXPECT().InitiateCardPayment(gomock.Any(), int64(200), d.ID.String()).
		Return(ports.CardResult{Outcome: donationModels.CardOutcomeCancelled}, nil)

	_, err := s.service.SelectMethod(s.ctx(), d.ID, "card")
	s.True(dErrors.HasCode(err, dErrors.CodeExternalFailure))
	s.Empty(s.projectDonations())
	s.Zero(s.raised())

	stored, err := s.service.Get(s.ctx(), d.ID)
	s.Require().NoError(err)
	s.Equal(models.StepMethod, stored.StepName())

	s.Run("retry from the method step succeeds", func() {
		s.gateway.EXPECT().InitiateCardPayment(gomock.Any(), int64(200), d.ID.String()).
			Return(ports.CardResult{Outcome: donationModels.CardOutcomeSuccess, TransactionID: "txn-2"}, nil)
		result, err := s.service.SelectMethod(s.ctx(), d.ID, "card")
		s.Require().NoError(err)
		s.Equal(donationModels.DonationStatusVerified, result.ThankYou.Status)
		s.Len(s.projectDonations(), 1)
	})
}

func (s *WizardSuite) TestCardGatewayErrorIsExternalFailure() {
	d := s.toMethod(false)
	s.gateway.EXPECT().InitiateCardPayment(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(ports.CardResult{}, errors.New("timeout"))

	_, err := s.service.SelectMethod(s.ctx(), d.ID, "card")
	s.True(dErrors.HasCode(err, dErrors.CodeExternalFailure))
	s.Empty(s.projectDonations())
}

func (s *WizardSuite) TestCardPendingRecordsPendingDonation() {
	d := s.toMethod(false)
	s.gateway.EXPECT().InitiateCardPayment(gomock.Any(), int64(200), d.ID.String()).
		Return(ports.CardResult{Outcome: donationModels.CardOutcomePending, TransactionID: "txn-9"}, nil)

	result, err := s.service.SelectMethod(s.ctx(), d.ID, "card")
	s.Require().NoError(err)
	s.Equal(donationModels.DonationStatusPending, result.ThankYou.Status)
	s.Zero(s.raised())

	donation, err := s.donations.FindByReference(context.Background(), "txn-9")
	s.Require().NoError(err)
	s.Equal(result.ThankYou.DonationID, donation.ID)
}

func (s *WizardSuite) TestBankTransferFinalizesPending() {
	d := s.toMethod(false)

	result, err := s.service.SelectMethod(s.ctx(), d.ID, "bank_transfer")
	s.Require().NoError(err)
	s.Nil(result.ThankYou)
	receiptStep, err := result.Draft.RequireReceiptStep()
	s.Require().NoError(err)
	s.Equal("PLG-TEST", receiptStep.Reference)

	_, err = s.service.SubmitReceipt(s.ctx(), d.ID, models.Attachment{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	s.receipts.EXPECT().
		Put(gomock.Any(), "receipts/"+s.project.ID.String()+"/PLG-TEST", "application/pdf", []byte("%PDF")).
		Return("mem://receipts/PLG-TEST", nil)
	thanks, err := s.service.SubmitReceipt(s.ctx(), d.ID, models.Attachment{ContentType: "application/pdf", Body: []byte("%PDF")})
	s.Require().NoError(err)
	s.Equal(donationModels.DonationStatusPending, thanks.Status)
	s.Equal(donationModels.MethodBankTransfer, thanks.Method)
	s.Equal("PLG-TEST", thanks.Reference)
	s.Zero(s.raised(), "bank transfers count only after review")

	donations := s.projectDonations()
	s.Require().Len(donations, 1)
	s.Equal("mem://receipts/PLG-TEST", donations[0].ReceiptAttachment)
}

func (s *WizardSuite) TestAnonymousPledgeHasNoDonor() {
	d := s.toMethod(true)
	s.gateway.EXPECT().InitiateCardPayment(gomock.Any(), int64(200), d.ID.String()).
		Return(ports.CardResult{Outcome: donationModels.CardOutcomeSuccess, TransactionID: "txn-a"}, nil)

	_, err := s.service.SelectMethod(s.ctx(), d.ID, "card")
	s.Require().NoError(err)

	donations := s.projectDonations()
	s.Require().Len(donations, 1)
	s.Nil(donations[0].DonorID)
	s.True(donations[0].IsAnonymous)

	p, err := s.ledger.GetProject(s.ctx(), s.project.ID)
	s.Require().NoError(err)
	s.Equal(int64(200), p.RaisedAmount())
	s.Zero(p.DonorsCount())
}

func (s *WizardSuite) TestMethodRechecksProject() {
	d := s.toMethod(false)
	_, err := s.ledger.Stop(s.ctx(), s.project.ID)
	s.Require().NoError(err)

	_, err = s.service.SelectMethod(s.ctx(), d.ID, "bank_transfer")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *WizardSuite) TestUnknownMethodIsValidation() {
	d := s.toMethod(false)
	_, err := s.service.SelectMethod(s.ctx(), d.ID, "paypal")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.True(strings.Contains(dErrors.FieldsOf(err)[models.FieldMethod], "card"))
}

func (s *WizardSuite) TestAbandonLeavesNoTrace() {
	d := s.toMethod(false)
	s.Require().NoError(s.service.Abandon(s.ctx(), d.ID))

	_, err := s.service.Get(s.ctx(), d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Empty(s.projectDonations())
}

// TestFullPathsInOrder walks both branches end to end from fresh drafts.
func (s *WizardSuite) TestFullPathsInOrder() {
	for _, method := range []string{"card", "bank_transfer"} {
		s.Run(method, func() {
			d := s.toMethod(false)
			if method == "card" {
				s.gateway.EXPECT().InitiateCardPayment(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(ports.CardResult{Outcome: donationModels.CardOutcomeSuccess, TransactionID: "txn-" + d.ID.String()}, nil)
				result, err := s.service.SelectMethod(s.ctx(), d.ID, method)
				s.Require().NoError(err)
				s.NotNil(result.ThankYou)
				return
			}
			s.service.references = func() string { return "PLG-" + d.ID.String() }
			_, err := s.service.SelectMethod(s.ctx(), d.ID, method)
			s.Require().NoError(err)
			s.receipts.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("ref", nil)
			thanks, err := s.service.SubmitReceipt(s.ctx(), d.ID, models.Attachment{Body: []byte("x")})
			s.Require().NoError(err)
			s.Equal(donationModels.DonationStatusPending, thanks.Status)
		})
	}
}
