package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/BearBump/ClaimBox/internal/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateClaim(ctx context.Context, c *models.Claim) (*models.Claim, error) {
	args := m.Called(ctx, c)
	var out *models.Claim
	if v := args.Get(0); v != nil {
		out = v.(*models.Claim)
	}
	return out, args.Error(1)
}

func (m *MockRepository) GetClaimByID(ctx context.Context, id uint64) (*models.Claim, error) {
	args := m.Called(ctx, id)
	var out *models.Claim
	if v := args.Get(0); v != nil {
		out = v.(*models.Claim)
	}
	return out, args.Error(1)
}

func (m *MockRepository) GetClaimsByOrderID(ctx context.Context, orderID uint64) ([]*models.Claim, error) {
	args := m.Called(ctx, orderID)
	var out []*models.Claim
	if v := args.Get(0); v != nil {
		out = v.([]*models.Claim)
	}
	return out, args.Error(1)
}

func (m *MockRepository) UpdateClaim(ctx context.Context, c *models.Claim) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}
