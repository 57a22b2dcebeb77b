//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"fundly/internal/donor/models"
	"fundly/internal/donor/store"
	id "fundly/pkg/domain"
	"fundly/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
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
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "donors"))
}

func (s *PostgresStoreSuite) TestFindByContact() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	d, err := models.NewDonor(id.NewDonorID(), models.ContactInfo{
		Name: "Ana", Email: "Ana@Example.org", Phone: "612 345 678", CountryCode: "+31",
	}, now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(ctx, d))

	byEmail, err := s.store.FindByContact(ctx, models.ContactInfo{Email: "ana@example.ORG"})
	s.Require().NoError(err)
	s.Equal(d.ID, byEmail.ID)

	byPhone, err := s.store.FindByContact(ctx, models.ContactInfo{Email: "x@example.org", Phone: "612-345-678", CountryCode: "31"})
	s.Require().NoError(err)
	s.Equal(d.ID, byPhone.ID)

	_, err = s.store.FindByContact(ctx, models.ContactInfo{Email: "nobody@example.org"})
	s.ErrorIs(err, store.ErrNotFound)

	d.ApplyTotals(models.Totals{TotalDonated: 90, DonationCount: 2})
	s.Require().NoError(s.store.Update(ctx, d))
	got, err := s.store.FindByID(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(int64(90), got.TotalDonated())
	s.Equal(2, got.DonationCount())
}
