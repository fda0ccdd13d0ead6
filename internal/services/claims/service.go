package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BearBump/ClaimBox/internal/cache"
	"github.com/BearBump/ClaimBox/internal/metrics"
	"github.com/BearBump/ClaimBox/internal/models"
)

type Repository interface {
	CreateClaim(ctx context.Context, c *models.Claim) (*models.Claim, error)
	GetClaimByID(ctx context.Context, id uint64) (*models.Claim, error)
	GetClaimsByOrderID(ctx context.Context, orderID uint64) ([]*models.Claim, error)
	UpdateClaim(ctx context.Context, c *models.Claim) error
}

// Service — жизненный цикл претензии: load -> один переход агрегата -> save.
// Никаких ретраев и никакой публикации событий здесь нет; конфликт версий
// уходит вызывающему как есть.
type Service struct {
	repo       Repository
	cache      cache.BytesCache
	currentTTL time.Duration
	now        func() time.Time
}

func New(repo Repository, c cache.BytesCache, currentTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		cache:      c,
		currentTTL: currentTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock подменяет источник времени (тесты).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Result отдаёт вызывающему "что изменилось": публикация нотификаций —
// его забота, не наша.
type Result struct {
	Claim     *models.Claim
	Operation string

	PrevStatus               models.ClaimStatus
	PrevReturnShippingStatus *models.ReturnShippingStatus
}

func (r *Result) StatusChanged() bool {
	return r.Claim.Status != r.PrevStatus
}

func (r *Result) ReturnShippingStatusChanged() bool {
	prev, cur := r.PrevReturnShippingStatus, r.Claim.ReturnShippingStatus
	if prev == nil && cur == nil {
		return false
	}
	if prev == nil || cur == nil {
		return true
	}
	return *prev != *cur
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrVersionConflict):
		return "version_conflict"
	}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return "validation"
	}
	var sc *models.StateConflictError
	if errors.As(err, &sc) {
		return "state_conflict"
	}
	return "error"
}

func (s *Service) RequestClaim(ctx context.Context, in models.ClaimCreateInput) (res *Result, err error) {
	defer func() { metrics.TransitionsTotal.WithLabelValues("request", resultLabel(err)).Inc() }()

	c, err := models.NewClaim(in, s.now())
	if err != nil {
		return nil, err
	}
	created, err := s.repo.CreateClaim(ctx, c)
	if err != nil {
		return nil, err
	}
	return &Result{Claim: created, Operation: "request"}, nil
}

// transition — общий каркас команды: один load, один чистый переход, один save.
func (s *Service) transition(ctx context.Context, op string, claimID uint64, apply func(c *models.Claim, now time.Time) error) (res *Result, err error) {
	defer func() { metrics.TransitionsTotal.WithLabelValues(op, resultLabel(err)).Inc() }()

	if claimID == 0 {
		return nil, &models.ValidationError{Field: "claimId", Reason: "required"}
	}

	c, err := s.repo.GetClaimByID(ctx, claimID)
	if err != nil {
		return nil, err
	}

	res = &Result{
		Operation:                op,
		PrevStatus:               c.Status,
		PrevReturnShippingStatus: c.ReturnShippingStatus,
	}

	if err = apply(c, s.now()); err != nil {
		return nil, err
	}
	if err = s.repo.UpdateClaim(ctx, c); err != nil {
		return nil, err
	}

	s.invalidate(ctx, c.ID)
	res.Claim = c
	return res, nil
}

func (s *Service) Approve(ctx context.Context, claimID uint64, adminID string) (*Result, error) {
	return s.transition(ctx, "approve", claimID, func(c *models.Claim, now time.Time) error {
		return c.Approve(adminID, now)
	})
}

func (s *Service) Reject(ctx context.Context, claimID uint64, adminID, reason string) (*Result, error) {
	return s.transition(ctx, "reject", claimID, func(c *models.Claim, now time.Time) error {
		return c.Reject(adminID, reason, now)
	})
}

func (s *Service) ScheduleReturnPickup(ctx context.Context, claimID uint64, address, phone string, scheduledAt time.Time) (*Result, error) {
	return s.transition(ctx, "scheduleReturnPickup", claimID, func(c *models.Claim, now time.Time) error {
		return c.ScheduleReturnPickup(address, phone, scheduledAt, now)
	})
}

func (s *Service) RegisterReturnShipping(ctx context.Context, claimID uint64, method models.ReturnShippingMethod, trackingNumber, carrier string) (*Result, error) {
	return s.transition(ctx, "registerReturnShipping", claimID, func(c *models.Claim, now time.Time) error {
		return c.RegisterReturnShipping(method, trackingNumber, carrier, now)
	})
}

func (s *Service) UpdateReturnShippingStatus(ctx context.Context, claimID uint64, status models.ReturnShippingStatus, trackingNumber *string) (*Result, error) {
	return s.transition(ctx, "updateReturnShippingStatus", claimID, func(c *models.Claim, now time.Time) error {
		return c.UpdateReturnShippingStatus(status, trackingNumber, now)
	})
}

func (s *Service) ConfirmReturnReceived(ctx context.Context, claimID uint64, result models.InspectionResult, note string) (*Result, error) {
	return s.transition(ctx, "confirmReturnReceived", claimID, func(c *models.Claim, now time.Time) error {
		return c.ConfirmReturnReceived(result, note, now)
	})
}

func (s *Service) RegisterExchangeShipping(ctx context.Context, claimID uint64, trackingNumber, carrier string) (*Result, error) {
	return s.transition(ctx, "registerExchangeShipping", claimID, func(c *models.Claim, now time.Time) error {
		return c.RegisterExchangeShipping(trackingNumber, carrier, now)
	})
}

func (s *Service) ConfirmExchangeDelivered(ctx context.Context, claimID uint64) (*Result, error) {
	return s.transition(ctx, "confirmExchangeDelivered", claimID, func(c *models.Claim, now time.Time) error {
		return c.ConfirmExchangeDelivered(now)
	})
}

func (s *Service) Complete(ctx context.Context, claimID uint64, adminID string) (*Result, error) {
	return s.transition(ctx, "complete", claimID, func(c *models.Claim, now time.Time) error {
		return c.Complete(adminID, now)
	})
}

// GetClaim читает текущее состояние, best-effort через кэш.
// Путь записи кэшем не пользуется никогда: переход всегда стартует со свежего
// снапшота из БД.
func (s *Service) GetClaim(ctx context.Context, claimID uint64) (*models.Claim, error) {
	if claimID == 0 {
		return nil, &models.ValidationError{Field: "claimId", Reason: "required"}
	}

	if s.cache != nil && s.currentTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, currentKey(claimID)); err == nil && ok {
			var c models.Claim
			if json.Unmarshal(b, &c) == nil {
				return &c, nil
			}
		}
	}

	c, err := s.repo.GetClaimByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && s.currentTTL > 0 {
		if b, err := json.Marshal(c); err == nil {
			_ = s.cache.Set(ctx, currentKey(claimID), b, s.currentTTL)
		}
	}
	return c, nil
}

func (s *Service) GetClaimsByOrderID(ctx context.Context, orderID uint64) ([]*models.Claim, error) {
	if orderID == 0 {
		return nil, &models.ValidationError{Field: "orderId", Reason: "required"}
	}
	return s.repo.GetClaimsByOrderID(ctx, orderID)
}

func (s *Service) invalidate(ctx context.Context, claimID uint64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Del(ctx, currentKey(claimID))
}

func currentKey(id uint64) string {
	return fmt.Sprintf("claim:%d:current", id)
}
