package pgclaims

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS claims (
  id BIGSERIAL PRIMARY KEY,
  claim_number TEXT NOT NULL UNIQUE,
  order_id BIGINT NOT NULL,
  order_item_id BIGINT NULL,
  claim_type TEXT NOT NULL,
  reason TEXT NOT NULL,
  reason_detail TEXT NOT NULL DEFAULT '',
  quantity INT NOT NULL,
  refund_amount BIGINT NOT NULL,
  status TEXT NOT NULL,
  processed_by TEXT NULL,
  processed_at TIMESTAMPTZ NULL,
  reject_reason TEXT NULL,
  return_shipping_method TEXT NULL,
  return_shipping_status TEXT NULL,
  return_tracking_number TEXT NULL,
  return_carrier TEXT NULL,
  return_pickup_scheduled_at TIMESTAMPTZ NULL,
  return_pickup_address TEXT NULL,
  return_customer_phone TEXT NULL,
  return_received_at TIMESTAMPTZ NULL,
  inspection_result TEXT NULL,
  inspection_note TEXT NULL,
  exchange_tracking_number TEXT NULL,
  exchange_carrier TEXT NULL,
  exchange_shipped_at TIMESTAMPTZ NULL,
  exchange_delivered_at TIMESTAMPTZ NULL,
  version INT NOT NULL DEFAULT 0,
  last_reminded_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_order_id ON claims(order_id)`,
		// Частичный индекс под sweep зависших возвратов.
		`
CREATE INDEX IF NOT EXISTS idx_claims_stale_returns ON claims(updated_at)
WHERE status = 'APPROVED' AND return_shipping_status IN ('PICKUP_SCHEDULED','SHIPPED','IN_TRANSIT','DELIVERED')`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
