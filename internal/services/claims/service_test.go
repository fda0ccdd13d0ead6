package claims

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BearBump/ClaimBox/internal/models"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeRepo struct {
	created   *models.Claim
	createErr error
	nextID    uint64

	byID    map[uint64]*models.Claim
	getErr  error
	byOrder []*models.Claim

	updated   *models.Claim
	updateErr error
}

func (f *fakeRepo) CreateClaim(ctx context.Context, c *models.Claim) (*models.Claim, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	c.ID = f.nextID
	f.created = c
	return c, nil
}

func (f *fakeRepo) GetClaimByID(ctx context.Context, id uint64) (*models.Claim, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) GetClaimsByOrderID(ctx context.Context, orderID uint64) ([]*models.Claim, error) {
	return f.byOrder, nil
}

func (f *fakeRepo) UpdateClaim(ctx context.Context, c *models.Claim) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = c
	c.Version++
	return nil
}

type fakeCache struct {
	m    map[string][]byte
	dels []string
}

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, ok := c.m[key]
	return b, ok, nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.m[key] = value
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.dels = append(c.dels, key)
	delete(c.m, key)
	return nil
}

func newTestService(r *fakeRepo, c *fakeCache) *Service {
	if c == nil {
		return New(r, nil, 0).WithClock(func() time.Time { return testNow })
	}
	return New(r, c, 10*time.Minute).WithClock(func() time.Time { return testNow })
}

func requestedClaim(t *testing.T, id uint64, typ models.ClaimType) *models.Claim {
	t.Helper()
	c, err := models.NewClaim(models.ClaimCreateInput{
		OrderID:      500,
		Type:         typ,
		Reason:       "DEFECT",
		Quantity:     1,
		RefundAmount: 1000,
	}, testNow)
	require.NoError(t, err)
	c.ID = id
	return c
}

func TestService_RequestClaim(t *testing.T) {
	r := &fakeRepo{nextID: 42}
	s := newTestService(r, nil)

	res, err := s.RequestClaim(context.Background(), models.ClaimCreateInput{
		OrderID:      500,
		Type:         models.ClaimTypeReturn,
		Reason:       "DEFECT",
		Quantity:     2,
		RefundAmount: 3000,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(42), res.Claim.ID)
	require.Equal(t, models.ClaimStatusRequested, res.Claim.Status)
	require.True(t, res.StatusChanged())
}

func TestService_RequestClaim_validate(t *testing.T) {
	r := &fakeRepo{}
	s := newTestService(r, nil)

	_, err := s.RequestClaim(context.Background(), models.ClaimCreateInput{})
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Nil(t, r.created)
}

func TestService_Approve(t *testing.T) {
	c := requestedClaim(t, 7, models.ClaimTypeReturn)
	r := &fakeRepo{byID: map[uint64]*models.Claim{7: c}}
	s := newTestService(r, nil)

	res, err := s.Approve(context.Background(), 7, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.ClaimStatusApproved, res.Claim.Status)
	require.Equal(t, models.ClaimStatusRequested, res.PrevStatus)
	require.True(t, res.StatusChanged())
	require.NotNil(t, r.updated)
}

func TestService_Approve_validateID(t *testing.T) {
	r := &fakeRepo{byID: map[uint64]*models.Claim{}}
	s := newTestService(r, nil)

	_, err := s.Approve(context.Background(), 0, "admin-1")
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestService_Approve_notFound(t *testing.T) {
	r := &fakeRepo{byID: map[uint64]*models.Claim{}}
	s := newTestService(r, nil)

	_, err := s.Approve(context.Background(), 99, "admin-1")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_Approve_conflictNotSaved(t *testing.T) {
	c := requestedClaim(t, 7, models.ClaimTypeCancel)
	require.NoError(t, c.Approve("admin-1", testNow))
	require.NoError(t, c.Complete("admin-1", testNow))

	r := &fakeRepo{byID: map[uint64]*models.Claim{7: c}}
	s := newTestService(r, nil)

	_, err := s.Approve(context.Background(), 7, "admin-2")
	var sc *models.StateConflictError
	require.ErrorAs(t, err, &sc)
	require.Nil(t, r.updated) // до UpdateClaim не дошли
}

func TestService_Approve_versionConflictPassthrough(t *testing.T) {
	c := requestedClaim(t, 7, models.ClaimTypeReturn)
	r := &fakeRepo{byID: map[uint64]*models.Claim{7: c}, updateErr: models.ErrVersionConflict}
	s := newTestService(r, nil)

	_, err := s.Approve(context.Background(), 7, "admin-1")
	require.ErrorIs(t, err, models.ErrVersionConflict)
}

func TestService_UpdateReturnShippingStatus_flow(t *testing.T) {
	c := requestedClaim(t, 3, models.ClaimTypeReturn)
	require.NoError(t, c.Approve("admin-1", testNow))
	require.NoError(t, c.RegisterReturnShipping(models.ReturnMethodCustomerDirectShip, "TRK-1", "CDEK", testNow))

	r := &fakeRepo{byID: map[uint64]*models.Claim{3: c}}
	s := newTestService(r, nil)

	res, err := s.UpdateReturnShippingStatus(context.Background(), 3, models.ReturnShippingInTransit, nil)
	require.NoError(t, err)
	require.False(t, res.StatusChanged())
	require.True(t, res.ReturnShippingStatusChanged())
	require.Equal(t, models.ReturnShippingShipped, *res.PrevReturnShippingStatus)
	require.Equal(t, models.ReturnShippingInTransit, *res.Claim.ReturnShippingStatus)
}

func TestService_Complete_returnTrack(t *testing.T) {
	c := requestedClaim(t, 4, models.ClaimTypeReturn)
	require.NoError(t, c.Approve("admin-1", testNow))
	require.NoError(t, c.RegisterReturnShipping(models.ReturnMethodPrepaidLabel, "TRK-2", "POST_RU", testNow))
	require.NoError(t, c.UpdateReturnShippingStatus(models.ReturnShippingDelivered, nil, testNow))
	require.NoError(t, c.ConfirmReturnReceived(models.InspectionPass, "ok", testNow))

	r := &fakeRepo{byID: map[uint64]*models.Claim{4: c}}
	s := newTestService(r, nil)

	res, err := s.Complete(context.Background(), 4, "admin-2")
	require.NoError(t, err)
	require.Equal(t, models.ClaimStatusCompleted, res.Claim.Status)
}

func TestService_GetClaim_cacheHit(t *testing.T) {
	r := &fakeRepo{byID: map[uint64]*models.Claim{}}
	c := &fakeCache{m: map[string][]byte{}}
	s := newTestService(r, c)

	want := requestedClaim(t, 11, models.ClaimTypeCancel)
	b, _ := json.Marshal(want)
	c.m["claim:11:current"] = b

	got, err := s.GetClaim(context.Background(), 11)
	require.NoError(t, err)
	require.Equal(t, uint64(11), got.ID)
	require.Equal(t, models.ClaimStatusRequested, got.Status)
}

func TestService_GetClaim_missFillsCache(t *testing.T) {
	want := requestedClaim(t, 12, models.ClaimTypeReturn)
	r := &fakeRepo{byID: map[uint64]*models.Claim{12: want}}
	c := &fakeCache{m: map[string][]byte{}}
	s := newTestService(r, c)

	got, err := s.GetClaim(context.Background(), 12)
	require.NoError(t, err)
	require.Equal(t, uint64(12), got.ID)
	require.Contains(t, c.m, "claim:12:current")
}

func TestService_Transition_invalidatesCache(t *testing.T) {
	claim := requestedClaim(t, 13, models.ClaimTypeReturn)
	r := &fakeRepo{byID: map[uint64]*models.Claim{13: claim}}
	c := &fakeCache{m: map[string][]byte{"claim:13:current": []byte("stale")}}
	s := newTestService(r, c)

	_, err := s.Approve(context.Background(), 13, "admin-1")
	require.NoError(t, err)
	require.Contains(t, c.dels, "claim:13:current")
	require.NotContains(t, c.m, "claim:13:current")
}

func TestService_GetClaimsByOrderID(t *testing.T) {
	r := &fakeRepo{byOrder: []*models.Claim{{ID: 1}, {ID: 2}}}
	s := newTestService(r, nil)

	out, err := s.GetClaimsByOrderID(context.Background(), 500)
	require.NoError(t, err)
	require.Len(t, out, 2)

	_, err = s.GetClaimsByOrderID(context.Background(), 0)
	require.Error(t, err)
}
