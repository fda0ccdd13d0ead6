package models

import "time"

// Тип претензии фиксируется при создании и не меняется.
type ClaimType string

const (
	ClaimTypeCancel   ClaimType = "CANCEL"
	ClaimTypeReturn   ClaimType = "RETURN"
	ClaimTypeExchange ClaimType = "EXCHANGE"
)

func (t ClaimType) IsValid() bool {
	switch t {
	case ClaimTypeCancel, ClaimTypeReturn, ClaimTypeExchange:
		return true
	default:
		return false
	}
}

// HasReturnLeg: у CANCEL нет физического возврата.
func (t ClaimType) HasReturnLeg() bool {
	return t == ClaimTypeReturn || t == ClaimTypeExchange
}

type ClaimStatus string

const (
	ClaimStatusRequested ClaimStatus = "REQUESTED"
	ClaimStatusApproved  ClaimStatus = "APPROVED"
	ClaimStatusRejected  ClaimStatus = "REJECTED"
	ClaimStatusCompleted ClaimStatus = "COMPLETED"
)

func (s ClaimStatus) IsValid() bool {
	switch s {
	case ClaimStatusRequested, ClaimStatusApproved, ClaimStatusRejected, ClaimStatusCompleted:
		return true
	default:
		return false
	}
}

// Из терминального статуса переходов нет.
func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimStatusRejected || s == ClaimStatusCompleted
}

type ReturnShippingMethod string

const (
	ReturnMethodPickup             ReturnShippingMethod = "PICKUP"
	ReturnMethodCustomerDirectShip ReturnShippingMethod = "CUSTOMER_DIRECT_SHIP"
	ReturnMethodPrepaidLabel       ReturnShippingMethod = "PREPAID_LABEL"
)

func (m ReturnShippingMethod) IsValid() bool {
	switch m {
	case ReturnMethodPickup, ReturnMethodCustomerDirectShip, ReturnMethodPrepaidLabel:
		return true
	default:
		return false
	}
}

// Статусы обратной доставки, строго по возрастанию этапов.
type ReturnShippingStatus string

const (
	ReturnShippingPickupScheduled ReturnShippingStatus = "PICKUP_SCHEDULED"
	ReturnShippingShipped         ReturnShippingStatus = "SHIPPED"
	ReturnShippingInTransit       ReturnShippingStatus = "IN_TRANSIT"
	ReturnShippingDelivered       ReturnShippingStatus = "DELIVERED"
	ReturnShippingReceived        ReturnShippingStatus = "RECEIVED"
)

func (s ReturnShippingStatus) IsValid() bool {
	return s.Rank() > 0
}

// Rank задаёт порядок этапов: назад двигаться нельзя.
func (s ReturnShippingStatus) Rank() int {
	switch s {
	case ReturnShippingPickupScheduled:
		return 1
	case ReturnShippingShipped:
		return 2
	case ReturnShippingInTransit:
		return 3
	case ReturnShippingDelivered:
		return 4
	case ReturnShippingReceived:
		return 5
	default:
		return 0
	}
}

// InCarrierHands: товар передан перевозчику либо уже доехал до склада,
// но приёмка ещё не оформлена.
func (s ReturnShippingStatus) InCarrierHands() bool {
	return s == ReturnShippingShipped || s == ReturnShippingInTransit || s == ReturnShippingDelivered
}

type InspectionResult string

const (
	InspectionPass    InspectionResult = "PASS"
	InspectionFail    InspectionResult = "FAIL"
	InspectionPartial InspectionResult = "PARTIAL"
)

func (r InspectionResult) IsValid() bool {
	switch r {
	case InspectionPass, InspectionFail, InspectionPartial:
		return true
	default:
		return false
	}
}

// Claim — корень агрегата претензии (отмена/возврат/обмен по позиции заказа).
// Все переходы выполняются методами из transitions.go; "now" всегда приходит
// снаружи, внутри агрегата часы не читаются.
type Claim struct {
	ID          uint64
	ClaimNumber string

	OrderID     uint64
	OrderItemID *uint64 // nil — претензия на весь заказ

	Type         ClaimType
	Reason       string
	ReasonDetail string

	Quantity     int32
	RefundAmount int64 // сумма в минорных единицах, считается выше по потоку

	Status ClaimStatus

	ProcessedBy  *string
	ProcessedAt  *time.Time
	RejectReason *string

	ReturnShippingMethod    *ReturnShippingMethod
	ReturnShippingStatus    *ReturnShippingStatus
	ReturnTrackingNumber    *string
	ReturnCarrier           *string
	ReturnPickupScheduledAt *time.Time
	ReturnPickupAddress     *string
	ReturnCustomerPhone     *string
	ReturnReceivedAt        *time.Time
	InspectionResult        *InspectionResult
	InspectionNote          *string

	ExchangeTrackingNumber *string
	ExchangeCarrier        *string
	ExchangeShippedAt      *time.Time
	ExchangeDeliveredAt    *time.Time

	// Version меняет только хранилище при успешной записи.
	Version int32

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ClaimCreateInput struct {
	OrderID      uint64
	OrderItemID  *uint64
	Type         ClaimType
	Reason       string
	ReasonDetail string
	Quantity     int32
	RefundAmount int64
}
