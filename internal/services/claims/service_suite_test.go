package claims

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	cachemocks "github.com/BearBump/ClaimBox/internal/cache/mocks"
	"github.com/BearBump/ClaimBox/internal/models"
	claimsmocks "github.com/BearBump/ClaimBox/internal/services/claims/mocks"
)

type ServiceSuite struct {
	suite.Suite

	repo  *claimsmocks.MockRepository
	cache *cachemocks.MockBytesCache
	svc   *Service
}

func (s *ServiceSuite) SetupTest() {
	s.repo = &claimsmocks.MockRepository{}
	s.cache = &cachemocks.MockBytesCache{}
	s.svc = New(s.repo, s.cache, 10*time.Minute).WithClock(func() time.Time { return testNow })
}

func (s *ServiceSuite) requested(id uint64, typ models.ClaimType) *models.Claim {
	c, err := models.NewClaim(models.ClaimCreateInput{
		OrderID:      900,
		Type:         typ,
		Reason:       "CHANGED_MIND",
		Quantity:     1,
		RefundAmount: 500,
	}, testNow)
	s.Require().NoError(err)
	c.ID = id
	return c
}

func (s *ServiceSuite) TestRequestClaim_CallsRepo() {
	s.repo.On("CreateClaim", mock.Anything, mock.AnythingOfType("*models.Claim")).
		Return(&models.Claim{ID: 1, Status: models.ClaimStatusRequested}, nil).
		Once()

	res, err := s.svc.RequestClaim(context.Background(), models.ClaimCreateInput{
		OrderID:      900,
		Type:         models.ClaimTypeCancel,
		Reason:       "CHANGED_MIND",
		Quantity:     1,
		RefundAmount: 500,
	})
	s.Require().NoError(err)
	s.Require().Equal(uint64(1), res.Claim.ID)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestRequestClaim_ValidationSkipsRepo() {
	_, err := s.svc.RequestClaim(context.Background(), models.ClaimCreateInput{})
	s.Require().Error(err)
	s.repo.AssertNotCalled(s.T(), "CreateClaim", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestApprove_LoadTransitionSaveInvalidate() {
	c := s.requested(5, models.ClaimTypeReturn)
	s.repo.On("GetClaimByID", mock.Anything, uint64(5)).Return(c, nil).Once()
	s.repo.On("UpdateClaim", mock.Anything, mock.MatchedBy(func(u *models.Claim) bool {
		return u.ID == 5 && u.Status == models.ClaimStatusApproved && u.ProcessedBy != nil && *u.ProcessedBy == "admin-1"
	})).Return(nil).Once()
	s.cache.On("Del", mock.Anything, "claim:5:current").Return(nil).Once()

	res, err := s.svc.Approve(context.Background(), 5, "admin-1")
	s.Require().NoError(err)
	s.Require().Equal(models.ClaimStatusRequested, res.PrevStatus)
	s.Require().Equal(models.ClaimStatusApproved, res.Claim.Status)
	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestApprove_GuardError_NoSaveNoInvalidate() {
	c := s.requested(5, models.ClaimTypeCancel)
	s.Require().NoError(c.Reject("admin-1", "out of window", testNow))

	s.repo.On("GetClaimByID", mock.Anything, uint64(5)).Return(c, nil).Once()

	_, err := s.svc.Approve(context.Background(), 5, "admin-2")
	var sc *models.StateConflictError
	s.Require().ErrorAs(err, &sc)
	s.repo.AssertNotCalled(s.T(), "UpdateClaim", mock.Anything, mock.Anything)
	s.cache.AssertNotCalled(s.T(), "Del", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestApprove_VersionConflict_NoInvalidate() {
	c := s.requested(5, models.ClaimTypeReturn)
	s.repo.On("GetClaimByID", mock.Anything, uint64(5)).Return(c, nil).Once()
	s.repo.On("UpdateClaim", mock.Anything, mock.Anything).Return(models.ErrVersionConflict).Once()

	_, err := s.svc.Approve(context.Background(), 5, "admin-1")
	s.Require().ErrorIs(err, models.ErrVersionConflict)
	s.cache.AssertNotCalled(s.T(), "Del", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGetClaim_CacheHit_NoDB() {
	c := s.requested(7, models.ClaimTypeReturn)
	b, _ := json.Marshal(c)

	s.cache.On("Get", mock.Anything, "claim:7:current").Return(b, true, nil).Once()

	got, err := s.svc.GetClaim(context.Background(), 7)
	s.Require().NoError(err)
	s.Require().Equal(uint64(7), got.ID)
	s.repo.AssertNotCalled(s.T(), "GetClaimByID", mock.Anything, mock.Anything)
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGetClaim_CacheMiss_SetEvenIfSetFails() {
	c := s.requested(8, models.ClaimTypeExchange)
	s.cache.On("Get", mock.Anything, "claim:8:current").Return([]byte(nil), false, nil).Once()
	s.repo.On("GetClaimByID", mock.Anything, uint64(8)).Return(c, nil).Once()
	s.cache.On("Set", mock.Anything, "claim:8:current", mock.Anything, 10*time.Minute).
		Return(errors.New("set failed")).
		Once()

	got, err := s.svc.GetClaim(context.Background(), 8)
	s.Require().NoError(err)
	s.Require().Equal(uint64(8), got.ID)
	s.repo.AssertExpectations(s.T())
	s.cache.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGetClaim_CacheBadJSON_IsMiss() {
	c := s.requested(9, models.ClaimTypeReturn)
	s.cache.On("Get", mock.Anything, "claim:9:current").Return([]byte("not-json"), true, nil).Once()
	s.repo.On("GetClaimByID", mock.Anything, uint64(9)).Return(c, nil).Once()
	s.cache.On("Set", mock.Anything, "claim:9:current", mock.Anything, 10*time.Minute).Return(nil).Once()

	_, err := s.svc.GetClaim(context.Background(), 9)
	s.Require().NoError(err)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestGetClaim_TTLZero_CacheDisabled() {
	c := s.requested(10, models.ClaimTypeReturn)
	svc := New(s.repo, s.cache, 0).WithClock(func() time.Time { return testNow })
	s.repo.On("GetClaimByID", mock.Anything, uint64(10)).Return(c, nil).Once()

	_, err := svc.GetClaim(context.Background(), 10)
	s.Require().NoError(err)
	s.cache.AssertNotCalled(s.T(), "Get", mock.Anything, mock.Anything)
	s.cache.AssertNotCalled(s.T(), "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestGetClaimsByOrderID_Passthrough() {
	s.repo.On("GetClaimsByOrderID", mock.Anything, uint64(900)).
		Return([]*models.Claim{{ID: 1}, {ID: 2}}, nil).
		Once()

	out, err := s.svc.GetClaimsByOrderID(context.Background(), 900)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	s.repo.AssertExpectations(s.T())
}

func (s *ServiceSuite) TestConfirmReturnReceived_FullPath() {
	c := s.requested(11, models.ClaimTypeReturn)
	s.Require().NoError(c.Approve("admin-1", testNow))
	s.Require().NoError(c.RegisterReturnShipping(models.ReturnMethodCustomerDirectShip, "TRK-9", "CDEK", testNow))
	s.Require().NoError(c.UpdateReturnShippingStatus(models.ReturnShippingDelivered, nil, testNow))

	s.repo.On("GetClaimByID", mock.Anything, uint64(11)).Return(c, nil).Once()
	s.repo.On("UpdateClaim", mock.Anything, mock.MatchedBy(func(u *models.Claim) bool {
		return u.ReturnShippingStatus != nil && *u.ReturnShippingStatus == models.ReturnShippingReceived &&
			u.InspectionResult != nil && *u.InspectionResult == models.InspectionPartial
	})).Return(nil).Once()
	s.cache.On("Del", mock.Anything, "claim:11:current").Return(nil).Once()

	res, err := s.svc.ConfirmReturnReceived(context.Background(), 11, models.InspectionPartial, "one item scratched")
	s.Require().NoError(err)
	s.Require().True(res.ReturnShippingStatusChanged())
	s.repo.AssertExpectations(s.T())
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
