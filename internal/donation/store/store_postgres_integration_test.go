//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fundly/internal/donation/models"
	"fundly/internal/donation/store"
	id "fundly/pkg/domain"
	"fundly/pkg/platform/sentinel"
	"fundly/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "donations"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) create(p models.NewDonationParams) *models.Donation {
	d, err := models.NewDonation(id.NewDonationID(), p, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(context.Background(), d))
	return d
}

func (s *PostgresStoreSuite) TestAggregates() {
	ctx := context.Background()
	projectID := id.NewProjectID()
	ana, ben := id.NewDonorID(), id.NewDonorID()

	verify := func(d *models.Donation) {
		s.Require().NoError(d.Verify(s.now))
		s.Require().NoError(s.store.Update(ctx, d))
	}

	verify(s.create(models.NewDonationParams{ProjectID: projectID, DonorID: &ana, Amount: 100, Method: models.MethodCard}))
	verify(s.create(models.NewDonationParams{ProjectID: projectID, DonorID: &ana, Amount: 50, Method: models.MethodCard}))
	verify(s.create(models.NewDonationParams{ProjectID: projectID, IsAnonymous: true, Amount: 30, Method: models.MethodCard}))
	failed := s.create(models.NewDonationParams{ProjectID: projectID, DonorID: &ben, Amount: 70, Method: models.MethodCard})
	s.Require().NoError(failed.Fail("declined", s.now))
	s.Require().NoError(s.store.Update(ctx, failed))
	s.create(models.NewDonationParams{ProjectID: projectID, DonorID: &ben, Amount: 20, Method: models.MethodBankTransfer, Reference: "PLG-PG1"})

	funding, err := s.store.ProjectFunding(ctx, projectID)
	s.Require().NoError(err)
	s.Equal(int64(180), funding.RaisedAmount)
	s.Equal(1, funding.DonorsCount)

	totals, err := s.store.DonorTotals(ctx, ben)
	s.Require().NoError(err)
	s.Zero(totals.TotalDonated)
	s.Equal(1, totals.DonationCount)

	list, err := s.store.List(ctx, models.Filter{ProjectID: &projectID, Status: models.DonationStatusVerified})
	s.Require().NoError(err)
	s.Len(list, 3)
}

func (s *PostgresStoreSuite) TestReferenceIsUnique() {
	ctx := context.Background()
	s.create(models.NewDonationParams{ProjectID: id.NewProjectID(), IsAnonymous: true, Amount: 10, Method: models.MethodBankTransfer, Reference: "PLG-DUP"})

	dup, err := models.NewDonation(id.NewDonationID(), models.NewDonationParams{
		ProjectID: id.NewProjectID(), IsAnonymous: true, Amount: 10, Method: models.MethodBankTransfer, Reference: "PLG-DUP",
	}, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(ctx, dup), sentinel.ErrConflict)

	found, err := s.store.FindByReference(ctx, "PLG-DUP")
	s.Require().NoError(err)
	s.Nil(found.DonorID)
	s.True(found.IsAnonymous)
}
