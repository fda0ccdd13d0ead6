package messages

import "time"

// ClaimStatusChanged публикуется после успешного перехода претензии.
// Ядро ничего не публикует само: это делает вызывающая сторона (API/консьюмер),
// а слушают нотификации и телеметрия.
type ClaimStatusChanged struct {
	ClaimID     uint64 `json:"claim_id"`
	ClaimNumber string `json:"claim_number"`
	OrderID     uint64 `json:"order_id"`

	ClaimType string `json:"claim_type"`
	Operation string `json:"operation"`

	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`

	OldReturnShippingStatus string `json:"old_return_shipping_status,omitempty"`
	NewReturnShippingStatus string `json:"new_return_shipping_status,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}
