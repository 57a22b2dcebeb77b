//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	donorModels "fundly/internal/donor/models"
	"fundly/internal/wizard/models"
	"fundly/internal/wizard/store"
	id "fundly/pkg/domain"
	"fundly/pkg/testutil/containers"
)

type RedisDraftStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisDraftStore
}

func TestRedisDraftStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisDraftStoreSuite))
}

func (s *RedisDraftStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = store.NewRedis(s.redis.Client)
}

func (s *RedisDraftStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisDraftStoreSuite) TestRoundTripAtReceiptStep() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	d, err := models.NewDraft(id.NewDraftID(), id.NewProjectID(), models.Owner{UserID: "u-1"}, now)
	s.Require().NoError(err)
	s.Require().NoError(d.SubmitAmount(models.Pledge{Amount: 200}, nil, now))
	s.Require().NoError(d.SubmitIdentity(donorModels.ContactInfo{Name: "Ana", Email: "ana@example.com", Phone: "600123456", CountryCode: "34"}, now.Add(45*time.Second), now))
	s.Require().NoError(d.PassVerification(now))
	s.Require().NoError(d.ChooseBankTransfer("PLG-01", now))

	s.Require().NoError(s.store.Save(ctx, d, time.Hour))
	got, err := s.store.Get(ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(d.Step, got.Step)
	s.Equal(d.Owner, got.Owner)

	ttl, err := s.redis.Client.TTL(ctx, "fundly:draft:"+d.ID.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisDraftStoreSuite) TestMissingDraft() {
	_, err := s.store.Get(context.Background(), id.NewDraftID())
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *RedisDraftStoreSuite) TestDelete() {
	ctx := context.Background()
	d, err := models.NewDraft(id.NewDraftID(), id.NewProjectID(), models.Owner{Session: "s"}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(ctx, d, time.Hour))
	s.Require().NoError(s.store.Delete(ctx, d.ID))
	_, err = s.store.Get(ctx, d.ID)
	s.ErrorIs(err, store.ErrNotFound)
}
