package messages

import "time"

// ReturnShippingUpdated — нормализованный апдейт обратной доставки от
// перевозчика (вебхук-шлюз приводит сырые статусы к нашим до публикации).
type ReturnShippingUpdated struct {
	ClaimID uint64 `json:"claim_id"`

	Status         string  `json:"status"`
	TrackingNumber *string `json:"tracking_number,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
