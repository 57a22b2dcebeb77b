package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/suite"

	campaignModels "fundly/internal/campaign/models"
	campaignService "fundly/internal/campaign/service"
	campaignStore "fundly/internal/campaign/store"
	"fundly/internal/donation/models"
	"fundly/internal/donation/store"
	donorModels "fundly/internal/donor/models"
	donorService "fundly/internal/donor/service"
	donorStore "fundly/internal/donor/store"
	"fundly/internal/notify"
	id "fundly/pkg/domain"
	dErrors "fundly/pkg/domain-errors"
	"fundly/pkg/requestcontext"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, e notify.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

// stalledNotifier holds every delivery until its context ends.
type stalledNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *stalledNotifier) Notify(ctx context.Context, _ notify.Event) error {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

// flakyLedger fails the first n recomputes before delegating.
type flakyLedger struct {
	next     ProjectLedger
	failures int
	calls    int
}

func (f *flakyLedger) Recompute(ctx context.Context, projectID id.ProjectID) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("ledger unavailable")
	}
	return f.next.Recompute(ctx, projectID)
}

type RecordStoreSuite struct {
	suite.Suite
	ctx       context.Context
	now       time.Time
	donations *store.InMemoryStore
	projects  *campaignStore.InMemoryStore
	ledger    *campaignService.Service
	directory *donorService.Service
	notifier  *captureNotifier
	service   *Service
}

func TestRecordStoreSuite(t *testing.T) {
	suite.Run(t, new(RecordStoreSuite))
}

func fastRetry() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 2)
}

func (s *RecordStoreSuite) SetupTest() {
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.donations = store.NewInMemoryStore()
	s.projects = campaignStore.NewInMemoryStore()
	s.ledger = campaignService.New(s.projects, s.donations)
	s.directory = donorService.New(donorStore.NewInMemoryStore(), s.donations)
	s.notifier = &captureNotifier{}
	s.service = s.newService(s.ledger)
}

func (s *RecordStoreSuite) newService(ledger ProjectLedger) *Service {
	return New(s.donations, ledger, s.directory,
		WithNotifier(s.notifier),
		WithRetryPolicy(fastRetry),
	)
}

func (s *RecordStoreSuite) createProject(goal int64) *campaignModels.Project {
	p, err := s.ledger.CreateProject(s.ctx, &campaignModels.CreateProjectRequest{
		Title: "Shelter", GoalAmount: goal, EndDate: s.now.AddDate(0, 1, 0),
	})
	s.Require().NoError(err)
	return p
}

func (s *RecordStoreSuite) resolveDonor(email string) *donorModels.Donor {
	d, err := s.directory.Resolve(s.ctx, donorModels.ContactInfo{Name: "Donor", Email: email})
	s.Require().NoError(err)
	return d
}

func (s *RecordStoreSuite) bankTransfer(projectID id.ProjectID, donorID *id.DonorID, amount int64, ref string) *models.Donation {
	d, err := s.service.Create(s.ctx, models.NewDonationParams{
		ProjectID:         projectID,
		DonorID:           donorID,
		IsAnonymous:       donorID == nil,
		Amount:            amount,
		Method:            models.MethodBankTransfer,
		Reference:         ref,
		ReceiptAttachment: "receipts/" + ref,
	})
	s.Require().NoError(err)
	return d
}

func (s *RecordStoreSuite) card(projectID id.ProjectID, donorID *id.DonorID, amount int64) *models.Donation {
	d, err := s.service.Create(s.ctx, models.NewDonationParams{
		ProjectID:   projectID,
		DonorID:     donorID,
		IsAnonymous: donorID == nil,
		Amount:      amount,
		Method:      models.MethodCard,
	})
	s.Require().NoError(err)
	return d
}

func (s *RecordStoreSuite) raised(projectID id.ProjectID) int64 {
	p, err := s.ledger.GetProject(s.ctx, projectID)
	s.Require().NoError(err)
	return p.RaisedAmount()
}

// A bank transfer stays pending and uncounted until reviewed, then counts once.
func (s *RecordStoreSuite) TestBankTransferReview() {
	project := s.createProject(10000)
	donor := s.resolveDonor("ana@example.org")

	d := s.bankTransfer(project.ID, &donor.ID, 700, "PLG-A1")
	s.Equal(models.DonationStatusPending, d.Status)
	s.Equal("PLG-A1", d.Reference)
	s.Zero(s.raised(project.ID))

	got, err := s.directory.Get(s.ctx, donor.ID)
	s.Require().NoError(err)
	s.Equal(1, got.DonationCount(), "pending donations count")
	s.Zero(got.TotalDonated())

	verified, err := s.service.Review(s.ctx, d.ID, models.DecisionVerified, "")
	s.Require().NoError(err)
	s.Equal(models.DonationStatusVerified, verified.Status)
	s.Equal(int64(700), s.raised(project.ID))

	_, err = s.service.Review(s.ctx, d.ID, models.DecisionVerified, "")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Equal(int64(700), s.raised(project.ID), "counted exactly once")

	got, err = s.directory.Get(s.ctx, donor.ID)
	s.Require().NoError(err)
	s.Equal(int64(700), got.TotalDonated())
}

func (s *RecordStoreSuite) TestReviewFailure() {
	project := s.createProject(10000)
	donor := s.resolveDonor("ben@example.org")
	d := s.bankTransfer(project.ID, &donor.ID, 300, "PLG-B1")

	failed, err := s.service.Review(s.ctx, d.ID, models.DecisionFailed, "reference mismatched")
	s.Require().NoError(err)
	s.Equal("reference mismatched", failed.FailureReason)
	s.Zero(s.raised(project.ID))

	got, err := s.directory.Get(s.ctx, donor.ID)
	s.Require().NoError(err)
	s.Zero(got.DonationCount(), "failed donations do not count")

	s.Run("card donations are not reviewed", func() {
		c := s.card(project.ID, &donor.ID, 100)
		_, err := s.service.Review(s.ctx, c.ID, models.DecisionVerified, "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown decision", func() {
		_, err := s.service.Review(s.ctx, d.ID, "maybe", "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *RecordStoreSuite) TestCardOutcomes() {
	project := s.createProject(1000)
	donor := s.resolveDonor("cy@example.org")

	s.Run("success verifies and funds", func() {
		d := s.card(project.ID, &donor.ID, 1000)
		got, err := s.service.ApplyCardOutcome(s.ctx, d.ID, models.CardOutcomeSuccess, "")
		s.Require().NoError(err)
		s.Equal(models.DonationStatusVerified, got.Status)

		p, err := s.ledger.GetProject(s.ctx, project.ID)
		s.Require().NoError(err)
		s.Equal(campaignModels.ProjectStatusFunded, p.Status)
		s.Equal(1, p.DonorsCount())
	})

	s.Run("cancellation fails with default reason", func() {
		d := s.card(project.ID, &donor.ID, 50)
		got, err := s.service.ApplyCardOutcome(s.ctx, d.ID, models.CardOutcomeCancelled, "")
		s.Require().NoError(err)
		s.Equal(models.DonationStatusFailed, got.Status)
		s.Equal("card payment cancelled", got.FailureReason)
	})

	s.Run("pending leaves donation untouched", func() {
		d := s.card(project.ID, &donor.ID, 50)
		got, err := s.service.ApplyCardOutcome(s.ctx, d.ID, models.CardOutcomePending, "")
		s.Require().NoError(err)
		s.Equal(models.DonationStatusPending, got.Status)
	})
}

func (s *RecordStoreSuite) TestAnonymousDonationsCountTowardRaisedOnly() {
	project := s.createProject(5000)
	donor := s.resolveDonor("di@example.org")

	anon := s.card(project.ID, nil, 400)
	named := s.card(project.ID, &donor.ID, 600)
	_, err := s.service.ApplyCardOutcome(s.ctx, anon.ID, models.CardOutcomeSuccess, "")
	s.Require().NoError(err)
	_, err = s.service.ApplyCardOutcome(s.ctx, named.ID, models.CardOutcomeSuccess, "")
	s.Require().NoError(err)

	p, err := s.ledger.GetProject(s.ctx, project.ID)
	s.Require().NoError(err)
	s.Equal(int64(1000), p.RaisedAmount())
	s.Equal(1, p.DonorsCount())
}

func (s *RecordStoreSuite) TestRecomputeRetriesThenSucceeds() {
	project := s.createProject(5000)
	ledger := &flakyLedger{next: s.ledger, failures: 2}
	svc := s.newService(ledger)

	d := s.card(project.ID, nil, 250)
	_, err := svc.ApplyCardOutcome(s.ctx, d.ID, models.CardOutcomeSuccess, "")
	s.Require().NoError(err)
	s.Equal(3, ledger.calls)
	s.Equal(int64(250), s.raised(project.ID))
}

func (s *RecordStoreSuite) TestRecomputeExhaustedRollsBack() {
	project := s.createProject(5000)
	ledger := &flakyLedger{next: s.ledger, failures: 3}
	svc := s.newService(ledger)

	d := s.card(project.ID, nil, 250)
	_, err := svc.ApplyCardOutcome(s.ctx, d.ID, models.CardOutcomeSuccess, "")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := s.service.Get(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(models.DonationStatusPending, stored.Status)
	s.Zero(s.raised(project.ID))
}

func (s *RecordStoreSuite) TestRecomputeOnDeletedProjectIsNoop() {
	project := s.createProject(5000)
	d := s.card(project.ID, nil, 250)
	s.Require().NoError(s.ledger.DeleteProject(s.ctx, project.ID))

	got, err := s.service.ApplyCardOutcome(s.ctx, d.ID, models.CardOutcomeSuccess, "")
	s.Require().NoError(err)
	s.Equal(models.DonationStatusVerified, got.Status)

	history, err := s.service.ListByProject(s.ctx, project.ID)
	s.Require().NoError(err)
	s.Len(history, 1, "donations stay queryable")
}

func (s *RecordStoreSuite) TestNotificationsAreFireAndForget() {
	project := s.createProject(5000)
	s.notifier.err = errors.New("broker down")

	d := s.card(project.ID, nil, 100)
	got, err := s.service.ApplyCardOutcome(s.ctx, d.ID, models.CardOutcomeSuccess, "")
	s.Require().NoError(err)
	s.Equal(models.DonationStatusVerified, got.Status)

	s.Require().Len(s.notifier.events, 2)
	s.Equal(notify.TypeDonationCreated, s.notifier.events[0].Type)
	s.Equal(notify.TypeDonationStatusChanged, s.notifier.events[1].Type)
	s.Equal("verified", s.notifier.events[1].Status)
}

func (s *RecordStoreSuite) TestCreateCardSettlesBeforeNotifying() {
	project := s.createProject(5000)
	donor := s.resolveDonor("dee@example.org")

	s.Run("success is verified and counted", func() {
		s.notifier.events = nil
		got, err := s.service.CreateCard(s.ctx, models.NewDonationParams{
			ProjectID: project.ID, DonorID: &donor.ID, Amount: 400, Method: models.MethodCard, Reference: "txn-ok",
		}, models.CardOutcomeSuccess, "")
		s.Require().NoError(err)
		s.Equal(models.DonationStatusVerified, got.Status)
		s.Equal(int64(400), s.raised(project.ID))

		s.Require().Len(s.notifier.events, 2)
		s.Equal(notify.TypeDonationCreated, s.notifier.events[0].Type)
		s.Equal("pending", s.notifier.events[0].Status)
		s.Equal("verified", s.notifier.events[1].Status)
	})

	s.Run("pending stays for the callback", func() {
		s.notifier.events = nil
		got, err := s.service.CreateCard(s.ctx, models.NewDonationParams{
			ProjectID: project.ID, IsAnonymous: true, Amount: 99, Method: models.MethodCard, Reference: "txn-wait",
		}, models.CardOutcomePending, "")
		s.Require().NoError(err)
		s.Equal(models.DonationStatusPending, got.Status)
		s.Len(s.notifier.events, 1)
	})

	s.Run("unknown outcome records nothing", func() {
		_, err := s.service.CreateCard(s.ctx, models.NewDonationParams{
			ProjectID: project.ID, IsAnonymous: true, Amount: 10, Method: models.MethodCard, Reference: "txn-odd",
		}, "maybe", "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		_, err = s.service.GetByReference(s.ctx, "txn-odd")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("bank transfers are refused", func() {
		_, err := s.service.CreateCard(s.ctx, models.NewDonationParams{
			ProjectID: project.ID, IsAnonymous: true, Amount: 10, Method: models.MethodBankTransfer, Reference: "PLG-X",
		}, models.CardOutcomeSuccess, "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *RecordStoreSuite) TestStalledNotifierDoesNotBlockSettlement() {
	project := s.createProject(5000)
	stalled := &stalledNotifier{}
	svc := New(s.donations, s.ledger, s.directory,
		WithNotifier(stalled),
		WithNotifyTimeout(20*time.Millisecond),
		WithRetryPolicy(fastRetry),
	)

	ctx, cancel := context.WithCancel(s.ctx)
	start := time.Now()
	got, err := svc.CreateCard(ctx, models.NewDonationParams{
		ProjectID: project.ID, IsAnonymous: true, Amount: 500, Method: models.MethodCard, Reference: "txn-slow",
	}, models.CardOutcomeSuccess, "")
	cancel()
	s.Require().NoError(err)
	s.Equal(models.DonationStatusVerified, got.Status)
	s.Equal(int64(500), s.raised(project.ID))
	s.Less(time.Since(start), time.Second)
	s.Equal(2, stalled.calls)
}

func (s *RecordStoreSuite) TestDuplicateReference() {
	project := s.createProject(5000)
	s.bankTransfer(project.ID, nil, 100, "PLG-DUP")
	_, err := s.service.Create(s.ctx, models.NewDonationParams{
		ProjectID: project.ID, IsAnonymous: true, Amount: 100,
		Method: models.MethodBankTransfer, Reference: "PLG-DUP",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	found, err := s.service.GetByReference(s.ctx, "PLG-DUP")
	s.Require().NoError(err)
	s.Equal(int64(100), found.Amount)
}

// Raised and donor totals always equal the verified sums, whatever the order
// of status changes.
func (s *RecordStoreSuite) TestAggregatesMatchVerifiedSet() {
	project := s.createProject(1_000_000)
	ana := s.resolveDonor("ana@example.org")
	ben := s.resolveDonor("ben@example.org")

	type step struct {
		donor   *id.DonorID
		amount  int64
		outcome models.CardOutcome
	}
	steps := []step{
		{&ana.ID, 100, models.CardOutcomeSuccess},
		{&ben.ID, 250, models.CardOutcomeFailure},
		{nil, 75, models.CardOutcomeSuccess},
		{&ben.ID, 40, models.CardOutcomeSuccess},
		{&ana.ID, 15, models.CardOutcomePending},
		{&ana.ID, 5, models.CardOutcomeCancelled},
	}
	for _, st := range steps {
		d := s.card(project.ID, st.donor, st.amount)
		_, err := s.service.ApplyCardOutcome(s.ctx, d.ID, st.outcome, "")
		s.Require().NoError(err)
	}

	all, err := s.service.ListByProject(s.ctx, project.ID)
	s.Require().NoError(err)
	var verified int64
	for _, d := range all {
		if d.IsVerified() {
			verified += d.Amount
		}
	}
	s.Equal(verified, s.raised(project.ID))
	s.Equal(int64(215), verified)

	for donorID, want := range map[id.DonorID]struct {
		total int64
		count int
	}{ana.ID: {100, 2}, ben.ID: {40, 1}} {
		d, err := s.directory.Get(s.ctx, donorID)
		s.Require().NoError(err)
		s.Equal(want.total, d.TotalDonated())
		s.Equal(want.count, d.DonationCount())
	}

	byDonor, err := s.service.ListByDonor(s.ctx, ana.ID)
	s.Require().NoError(err)
	s.Len(byDonor, 3)
}

func (s *RecordStoreSuite) TestReports() {
	project := s.createProject(1_000_000)
	march := s.card(project.ID, nil, 100)
	_, err := s.service.ApplyCardOutcome(s.ctx, march.ID, models.CardOutcomeSuccess, "")
	s.Require().NoError(err)

	aprilCtx := requestcontext.WithTime(context.Background(), s.now.AddDate(0, 1, 0))
	april, err := s.service.Create(aprilCtx, models.NewDonationParams{
		ProjectID: project.ID, IsAnonymous: true, Amount: 300, Method: models.MethodCard,
	})
	s.Require().NoError(err)
	_, err = s.service.ApplyCardOutcome(aprilCtx, april.ID, models.CardOutcomeSuccess, "")
	s.Require().NoError(err)
	s.bankTransfer(project.ID, nil, 999, "PLG-R1")

	monthly, err := s.service.MonthlyVerifiedTotals(s.ctx)
	s.Require().NoError(err)
	s.Equal([]models.MonthlyTotal{
		{Month: "2026-03", Amount: 100, Count: 1},
		{Month: "2026-04", Amount: 300, Count: 1},
	}, monthly)

	dist, err := s.service.Distribution(s.ctx, &project.ID)
	s.Require().NoError(err)
	s.Equal(2, dist.ByStatus[models.DonationStatusVerified])
	s.Equal(1, dist.ByStatus[models.DonationStatusPending])
	s.Equal(2, dist.ByMethod[models.MethodCard])
	s.Equal(1, dist.ByMethod[models.MethodBankTransfer])
}
