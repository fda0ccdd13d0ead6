package messages

import "time"

// ReturnStaleReminder — обратная доставка по претензии давно не двигалась.
// Слушает сервис нотификаций (напоминание клиенту/оператору).
type ReturnStaleReminder struct {
	ClaimID     uint64 `json:"claim_id"`
	ClaimNumber string `json:"claim_number"`
	OrderID     uint64 `json:"order_id"`

	ReturnShippingStatus string  `json:"return_shipping_status"`
	ReturnCarrier        *string `json:"return_carrier,omitempty"`

	StaleSince time.Time `json:"stale_since"`
	DetectedAt time.Time `json:"detected_at"`
}
