package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Переходы агрегата. Контракт единый: сначала валидация команды, потом guard'ы
// состояния, и только после этого мутация. Ошибка = агрегат не тронут.

func (c *Claim) conflict(op, reason string) error {
	return &StateConflictError{Op: op, Status: c.Status, Reason: reason}
}

func (c *Claim) touch(now time.Time) {
	c.UpdatedAt = now
}

// NewClaim создаёт претензию в статусе REQUESTED и присваивает claim number.
// Количество и сумма к возврату провалидированы выше по потоку относительно
// заказа; здесь проверяем только внутреннюю корректность.
func NewClaim(in ClaimCreateInput, now time.Time) (*Claim, error) {
	if !in.Type.IsValid() {
		return nil, invalid("claimType", "must be CANCEL, RETURN or EXCHANGE")
	}
	if in.OrderID == 0 {
		return nil, invalid("orderId", "required")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, invalid("claimReason", "required")
	}
	if in.Quantity <= 0 {
		return nil, invalid("quantity", "must be positive")
	}
	if in.RefundAmount < 0 {
		return nil, invalid("refundAmount", "must not be negative")
	}

	return &Claim{
		ClaimNumber:  newClaimNumber(now),
		OrderID:      in.OrderID,
		OrderItemID:  in.OrderItemID,
		Type:         in.Type,
		Reason:       in.Reason,
		ReasonDetail: in.ReasonDetail,
		Quantity:     in.Quantity,
		RefundAmount: in.RefundAmount,
		Status:       ClaimStatusRequested,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Человекочитаемый номер, назначается один раз при создании.
func newClaimNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("CR%s-%s", now.UTC().Format("20060102"), suffix)
}

func (c *Claim) Approve(adminID string, now time.Time) error {
	if strings.TrimSpace(adminID) == "" {
		return invalid("processedBy", "required")
	}
	if c.Status != ClaimStatusRequested {
		return c.conflict("approve", "only REQUESTED claims can be approved")
	}

	c.Status = ClaimStatusApproved
	c.ProcessedBy = &adminID
	c.ProcessedAt = &now
	c.touch(now)
	return nil
}

func (c *Claim) Reject(adminID, reason string, now time.Time) error {
	if strings.TrimSpace(adminID) == "" {
		return invalid("processedBy", "required")
	}
	if strings.TrimSpace(reason) == "" {
		return invalid("rejectReason", "required")
	}
	if c.Status != ClaimStatusRequested {
		return c.conflict("reject", "only REQUESTED claims can be rejected")
	}

	c.Status = ClaimStatusRejected
	c.RejectReason = &reason
	c.ProcessedBy = &adminID
	c.ProcessedAt = &now
	c.touch(now)
	return nil
}

// guardReturnLeg — общие предусловия для старта/перерегистрации обратной доставки.
func (c *Claim) guardReturnLeg(op string) error {
	if c.Status.IsTerminal() {
		return c.conflict(op, "claim is in a terminal state")
	}
	if c.Status != ClaimStatusApproved {
		return c.conflict(op, "claim is not APPROVED")
	}
	if !c.Type.HasReturnLeg() {
		return c.conflict(op, "CANCEL claims have no return leg")
	}
	if c.ReturnReceivedAt != nil {
		return c.conflict(op, "return already received")
	}
	return nil
}

func (c *Claim) ScheduleReturnPickup(address, phone string, scheduledAt, now time.Time) error {
	if strings.TrimSpace(address) == "" {
		return invalid("returnPickupAddress", "required")
	}
	if strings.TrimSpace(phone) == "" {
		return invalid("returnCustomerPhone", "required")
	}
	if scheduledAt.IsZero() {
		return invalid("returnPickupScheduledAt", "required")
	}
	if err := c.guardReturnLeg("scheduleReturnPickup"); err != nil {
		return err
	}

	method := ReturnMethodPickup
	status := ReturnShippingPickupScheduled
	c.ReturnShippingMethod = &method
	c.ReturnShippingStatus = &status
	c.ReturnPickupScheduledAt = &scheduledAt
	c.ReturnPickupAddress = &address
	c.ReturnCustomerPhone = &phone
	c.touch(now)
	return nil
}

func (c *Claim) RegisterReturnShipping(method ReturnShippingMethod, trackingNumber, carrier string, now time.Time) error {
	if !method.IsValid() || method == ReturnMethodPickup {
		return invalid("returnShippingMethod", "must be CUSTOMER_DIRECT_SHIP or PREPAID_LABEL")
	}
	if strings.TrimSpace(trackingNumber) == "" {
		return invalid("returnTrackingNumber", "required")
	}
	if strings.TrimSpace(carrier) == "" {
		return invalid("returnCarrier", "required")
	}
	if err := c.guardReturnLeg("registerReturnShipping"); err != nil {
		return err
	}

	status := ReturnShippingShipped
	c.ReturnShippingMethod = &method
	c.ReturnShippingStatus = &status
	c.ReturnTrackingNumber = &trackingNumber
	c.ReturnCarrier = &carrier
	c.touch(now)
	return nil
}

// UpdateReturnShippingStatus продвигает статус обратной доставки вперёд.
// RECEIVED сюда не принимаем: приёмка идёт через ConfirmReturnReceived,
// потому что несёт результат инспекции.
func (c *Claim) UpdateReturnShippingStatus(target ReturnShippingStatus, trackingNumber *string, now time.Time) error {
	if !target.IsValid() {
		return invalid("returnShippingStatus", "unknown status")
	}
	if target == ReturnShippingReceived {
		return invalid("returnShippingStatus", "use confirmReturnReceived for receipt")
	}
	if c.Status.IsTerminal() {
		return c.conflict("updateReturnShippingStatus", "claim is in a terminal state")
	}
	if c.ReturnShippingStatus == nil {
		return c.conflict("updateReturnShippingStatus", "return leg not started")
	}
	if target.Rank() < c.ReturnShippingStatus.Rank() {
		return c.conflict("updateReturnShippingStatus",
			fmt.Sprintf("cannot move back from %s to %s", *c.ReturnShippingStatus, target))
	}

	c.ReturnShippingStatus = &target
	if trackingNumber != nil && strings.TrimSpace(*trackingNumber) != "" {
		c.ReturnTrackingNumber = trackingNumber
	}
	c.touch(now)
	return nil
}

func (c *Claim) ConfirmReturnReceived(result InspectionResult, note string, now time.Time) error {
	if !result.IsValid() {
		return invalid("inspectionResult", "must be PASS, FAIL or PARTIAL")
	}
	if c.Status.IsTerminal() {
		return c.conflict("confirmReturnReceived", "claim is in a terminal state")
	}
	if c.ReturnShippingStatus == nil {
		return c.conflict("confirmReturnReceived", "return leg not started")
	}
	if *c.ReturnShippingStatus == ReturnShippingReceived {
		return c.conflict("confirmReturnReceived", "return already received")
	}
	if !c.ReturnShippingStatus.InCarrierHands() {
		return c.conflict("confirmReturnReceived",
			fmt.Sprintf("item not handed to carrier yet (%s)", *c.ReturnShippingStatus))
	}

	status := ReturnShippingReceived
	c.ReturnShippingStatus = &status
	c.ReturnReceivedAt = &now
	c.InspectionResult = &result
	if strings.TrimSpace(note) != "" {
		c.InspectionNote = &note
	}
	c.touch(now)
	return nil
}

func (c *Claim) RegisterExchangeShipping(trackingNumber, carrier string, now time.Time) error {
	if strings.TrimSpace(trackingNumber) == "" {
		return invalid("exchangeTrackingNumber", "required")
	}
	if strings.TrimSpace(carrier) == "" {
		return invalid("exchangeCarrier", "required")
	}
	if c.Status.IsTerminal() {
		return c.conflict("registerExchangeShipping", "claim is in a terminal state")
	}
	if c.Type != ClaimTypeExchange {
		return c.conflict("registerExchangeShipping", "claim is not an EXCHANGE")
	}
	if c.InspectionResult == nil {
		return c.conflict("registerExchangeShipping", "return not inspected yet")
	}
	if *c.InspectionResult != InspectionPass {
		return c.conflict("registerExchangeShipping",
			fmt.Sprintf("inspection result is %s, replacement shipment is blocked", *c.InspectionResult))
	}
	if c.ExchangeShippedAt != nil {
		return c.conflict("registerExchangeShipping", "exchange already shipped")
	}

	c.ExchangeTrackingNumber = &trackingNumber
	c.ExchangeCarrier = &carrier
	c.ExchangeShippedAt = &now
	c.touch(now)
	return nil
}

func (c *Claim) ConfirmExchangeDelivered(now time.Time) error {
	if c.Status.IsTerminal() {
		return c.conflict("confirmExchangeDelivered", "claim is in a terminal state")
	}
	if c.ExchangeShippedAt == nil {
		return c.conflict("confirmExchangeDelivered", "exchange not shipped")
	}
	if c.ExchangeDeliveredAt != nil {
		return c.conflict("confirmExchangeDelivered", "exchange already delivered")
	}

	c.ExchangeDeliveredAt = &now
	c.touch(now)
	return nil
}

// Complete закрывает претензию. Для RETURN с FAIL/PARTIAL инспекцией завершение
// разрешено: решение о сумме возврата принимает внешний процесс, не мы.
func (c *Claim) Complete(adminID string, now time.Time) error {
	if strings.TrimSpace(adminID) == "" {
		return invalid("processedBy", "required")
	}
	if c.Status.IsTerminal() {
		return c.conflict("complete", "claim is in a terminal state")
	}

	switch c.Type {
	case ClaimTypeCancel:
		if c.Status != ClaimStatusApproved {
			return c.conflict("complete", "CANCEL claim is not APPROVED")
		}
	case ClaimTypeReturn:
		if c.InspectionResult == nil {
			return c.conflict("complete", "RETURN claim has no inspection result")
		}
	case ClaimTypeExchange:
		if c.ExchangeDeliveredAt == nil {
			return c.conflict("complete", "EXCHANGE claim has no delivery confirmation")
		}
	}

	c.Status = ClaimStatusCompleted
	c.ProcessedBy = &adminID
	c.ProcessedAt = &now
	c.touch(now)
	return nil
}
