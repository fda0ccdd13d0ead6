package pgclaims

import (
	"context"

	"github.com/BearBump/ClaimBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const claimColumns = `
  id, claim_number, order_id, order_item_id, claim_type, reason, reason_detail,
  quantity, refund_amount, status, processed_by, processed_at, reject_reason,
  return_shipping_method, return_shipping_status, return_tracking_number, return_carrier,
  return_pickup_scheduled_at, return_pickup_address, return_customer_phone,
  return_received_at, inspection_result, inspection_note,
  exchange_tracking_number, exchange_carrier, exchange_shipped_at, exchange_delivered_at,
  version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	var c models.Claim
	var status string
	var claimType string
	var method, retStatus, inspection *string

	if err := row.Scan(
		&c.ID, &c.ClaimNumber, &c.OrderID, &c.OrderItemID, &claimType, &c.Reason, &c.ReasonDetail,
		&c.Quantity, &c.RefundAmount, &status, &c.ProcessedBy, &c.ProcessedAt, &c.RejectReason,
		&method, &retStatus, &c.ReturnTrackingNumber, &c.ReturnCarrier,
		&c.ReturnPickupScheduledAt, &c.ReturnPickupAddress, &c.ReturnCustomerPhone,
		&c.ReturnReceivedAt, &inspection, &c.InspectionNote,
		&c.ExchangeTrackingNumber, &c.ExchangeCarrier, &c.ExchangeShippedAt, &c.ExchangeDeliveredAt,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.Type = models.ClaimType(claimType)
	c.Status = models.ClaimStatus(status)
	c.ReturnShippingMethod = enumVal[models.ReturnShippingMethod](method)
	c.ReturnShippingStatus = enumVal[models.ReturnShippingStatus](retStatus)
	c.InspectionResult = enumVal[models.InspectionResult](inspection)
	return &c, nil
}

func enumVal[T ~string](p *string) *T {
	if p == nil {
		return nil
	}
	v := T(*p)
	return &v
}

func enumPtr[T ~string](p *T) *string {
	if p == nil {
		return nil
	}
	v := string(*p)
	return &v
}

// CreateClaim присваивает claimId при первой записи.
func (s *Storage) CreateClaim(ctx context.Context, c *models.Claim) (*models.Claim, error) {
	err := s.db.QueryRow(ctx, `
INSERT INTO claims (
  claim_number, order_id, order_item_id, claim_type, reason, reason_detail,
  quantity, refund_amount, status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id, version
`, c.ClaimNumber, c.OrderID, c.OrderItemID, string(c.Type), c.Reason, c.ReasonDetail,
		c.Quantity, c.RefundAmount, string(c.Status), c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	).Scan(&c.ID, &c.Version)
	if err != nil {
		return nil, errors.Wrap(err, "insert claim")
	}
	return c, nil
}

func (s *Storage) GetClaimByID(ctx context.Context, id uint64) (*models.Claim, error) {
	row := s.db.QueryRow(ctx, `SELECT`+claimColumns+` FROM claims WHERE id = $1`, id)
	c, err := scanClaim(row)
	if err == pgx.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select claim")
	}
	return c, nil
}

func (s *Storage) GetClaimsByOrderID(ctx context.Context, orderID uint64) ([]*models.Claim, error) {
	rows, err := s.db.Query(ctx, `SELECT`+claimColumns+` FROM claims WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select claims by order")
	}
	defer rows.Close()

	out := make([]*models.Claim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan claim")
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpdateClaim пишет новое состояние только если версия не уехала с момента load.
// Проигравший гонку получает models.ErrVersionConflict и перечитывает.
func (s *Storage) UpdateClaim(ctx context.Context, c *models.Claim) error {
	var newVersion int32
	err := s.db.QueryRow(ctx, `
UPDATE claims
SET
  status = $3,
  processed_by = $4,
  processed_at = $5,
  reject_reason = $6,
  return_shipping_method = $7,
  return_shipping_status = $8,
  return_tracking_number = $9,
  return_carrier = $10,
  return_pickup_scheduled_at = $11,
  return_pickup_address = $12,
  return_customer_phone = $13,
  return_received_at = $14,
  inspection_result = $15,
  inspection_note = $16,
  exchange_tracking_number = $17,
  exchange_carrier = $18,
  exchange_shipped_at = $19,
  exchange_delivered_at = $20,
  version = version + 1,
  updated_at = $21
WHERE id = $1 AND version = $2
RETURNING version
`, c.ID, c.Version,
		string(c.Status), c.ProcessedBy, c.ProcessedAt, c.RejectReason,
		enumPtr(c.ReturnShippingMethod), enumPtr(c.ReturnShippingStatus),
		c.ReturnTrackingNumber, c.ReturnCarrier,
		c.ReturnPickupScheduledAt, c.ReturnPickupAddress, c.ReturnCustomerPhone,
		c.ReturnReceivedAt, enumPtr(c.InspectionResult), c.InspectionNote,
		c.ExchangeTrackingNumber, c.ExchangeCarrier, c.ExchangeShippedAt, c.ExchangeDeliveredAt,
		c.UpdatedAt.UTC(),
	).Scan(&newVersion)

	if err == pgx.ErrNoRows {
		// 0 строк: либо претензии нет, либо версия устарела.
		var exists bool
		if qErr := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM claims WHERE id = $1)`, c.ID).Scan(&exists); qErr != nil {
			return errors.Wrap(qErr, "check claim exists")
		}
		if !exists {
			return models.ErrNotFound
		}
		return models.ErrVersionConflict
	}
	if err != nil {
		return errors.Wrap(err, "update claim")
	}

	c.Version = newVersion
	return nil
}
