package pgclaims

import (
	"context"
	"time"

	"github.com/BearBump/ClaimBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// SweepStaleReturns выбирает претензии, у которых обратная доставка давно не
// двигалась, и "бронирует" их отметкой last_reminded_at, чтобы параллельный
// воркер не разослал напоминания повторно. SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) SweepStaleReturns(ctx context.Context, now time.Time, staleAfter, remindEvery time.Duration, limit int) ([]*models.Claim, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	staleBefore := now.UTC().Add(-staleAfter)
	remindBefore := now.UTC().Add(-remindEvery)

	rows, err := tx.Query(ctx, `
SELECT`+claimColumns+`
FROM claims
WHERE status = 'APPROVED'
  AND return_shipping_status IN ('PICKUP_SCHEDULED','SHIPPED','IN_TRANSIT','DELIVERED')
  AND updated_at <= $1
  AND (last_reminded_at IS NULL OR last_reminded_at <= $2)
ORDER BY updated_at ASC
LIMIT $3
FOR UPDATE SKIP LOCKED
`, staleBefore, remindBefore, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select stale returns")
	}
	defer rows.Close()

	var picked []*models.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan stale return")
		}
		picked = append(picked, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	for _, c := range picked {
		if _, err := tx.Exec(ctx, `UPDATE claims SET last_reminded_at = $2 WHERE id = $1`, c.ID, now.UTC()); err != nil {
			return nil, errors.Wrap(err, "mark reminded")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
