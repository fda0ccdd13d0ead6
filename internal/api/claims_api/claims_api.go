package claims_api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BearBump/ClaimBox/internal/broker/messages"
	"github.com/BearBump/ClaimBox/internal/models"
	"github.com/BearBump/ClaimBox/internal/services/claims"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// ClaimsAPI — JSON-слой над сервисом претензий. Маппинг ошибок в коды
// и публикация ClaimStatusChanged живут здесь, не в ядре.
type ClaimsAPI struct {
	svc      *claims.Service
	producer Producer
	topic    string
}

func New(svc *claims.Service, producer Producer, topic string) *ClaimsAPI {
	return &ClaimsAPI{svc: svc, producer: producer, topic: topic}
}

func (a *ClaimsAPI) Routes(r chi.Router) {
	r.Route("/v1/claims", func(r chi.Router) {
		r.Post("/", a.createClaim)
		r.Get("/", a.listClaimsByOrder)
		r.Route("/{claimID}", func(r chi.Router) {
			r.Get("/", a.getClaim)
			r.Post("/approve", a.approve)
			r.Post("/reject", a.reject)
			r.Post("/return-pickup", a.scheduleReturnPickup)
			r.Post("/return-shipping", a.registerReturnShipping)
			r.Post("/return-shipping/status", a.updateReturnShippingStatus)
			r.Post("/return-received", a.confirmReturnReceived)
			r.Post("/exchange-shipping", a.registerExchangeShipping)
			r.Post("/exchange-delivered", a.confirmExchangeDelivered)
			r.Post("/complete", a.complete)
		})
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field})
		return
	}
	if errors.Is(err, models.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "claim not found"})
		return
	}
	if errors.Is(err, models.ErrVersionConflict) {
		// конкурентная запись, клиенту стоит повторить
		writeJSON(w, http.StatusConflict, errorResponse{Error: "claim was modified concurrently", Retryable: true})
		return
	}
	var sc *models.StateConflictError
	if errors.As(err, &sc) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: sc.Error()})
		return
	}
	slog.Error("claims api", "error", err.Error())
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

type claimResponse struct {
	ID          uint64  `json:"id"`
	ClaimNumber string  `json:"claimNumber"`
	OrderID     uint64  `json:"orderId"`
	OrderItemID *uint64 `json:"orderItemId,omitempty"`

	ClaimType    string `json:"claimType"`
	ClaimReason  string `json:"claimReason"`
	ReasonDetail string `json:"reasonDetail,omitempty"`

	Quantity     int32 `json:"quantity"`
	RefundAmount int64 `json:"refundAmount"`

	Status string `json:"status"`

	ProcessedBy  *string    `json:"processedBy,omitempty"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
	RejectReason *string    `json:"rejectReason,omitempty"`

	ReturnShippingMethod    *string    `json:"returnShippingMethod,omitempty"`
	ReturnShippingStatus    *string    `json:"returnShippingStatus,omitempty"`
	ReturnTrackingNumber    *string    `json:"returnTrackingNumber,omitempty"`
	ReturnCarrier           *string    `json:"returnCarrier,omitempty"`
	ReturnPickupScheduledAt *time.Time `json:"returnPickupScheduledAt,omitempty"`
	ReturnPickupAddress     *string    `json:"returnPickupAddress,omitempty"`
	ReturnCustomerPhone     *string    `json:"returnCustomerPhone,omitempty"`
	ReturnReceivedAt        *time.Time `json:"returnReceivedAt,omitempty"`
	InspectionResult        *string    `json:"inspectionResult,omitempty"`
	InspectionNote          *string    `json:"inspectionNote,omitempty"`

	ExchangeTrackingNumber *string    `json:"exchangeTrackingNumber,omitempty"`
	ExchangeCarrier        *string    `json:"exchangeCarrier,omitempty"`
	ExchangeShippedAt      *time.Time `json:"exchangeShippedAt,omitempty"`
	ExchangeDeliveredAt    *time.Time `json:"exchangeDeliveredAt,omitempty"`

	Version   int32     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toClaimResponse(c *models.Claim) claimResponse {
	return claimResponse{
		ID:          c.ID,
		ClaimNumber: c.ClaimNumber,
		OrderID:     c.OrderID,
		OrderItemID: c.OrderItemID,

		ClaimType:    string(c.Type),
		ClaimReason:  c.Reason,
		ReasonDetail: c.ReasonDetail,

		Quantity:     c.Quantity,
		RefundAmount: c.RefundAmount,

		Status: string(c.Status),

		ProcessedBy:  c.ProcessedBy,
		ProcessedAt:  c.ProcessedAt,
		RejectReason: c.RejectReason,

		ReturnShippingMethod:    enumStr(c.ReturnShippingMethod),
		ReturnShippingStatus:    enumStr(c.ReturnShippingStatus),
		ReturnTrackingNumber:    c.ReturnTrackingNumber,
		ReturnCarrier:           c.ReturnCarrier,
		ReturnPickupScheduledAt: c.ReturnPickupScheduledAt,
		ReturnPickupAddress:     c.ReturnPickupAddress,
		ReturnCustomerPhone:     c.ReturnCustomerPhone,
		ReturnReceivedAt:        c.ReturnReceivedAt,
		InspectionResult:        enumStr(c.InspectionResult),
		InspectionNote:          c.InspectionNote,

		ExchangeTrackingNumber: c.ExchangeTrackingNumber,
		ExchangeCarrier:        c.ExchangeCarrier,
		ExchangeShippedAt:      c.ExchangeShippedAt,
		ExchangeDeliveredAt:    c.ExchangeDeliveredAt,

		Version:   c.Version,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func enumStr[T ~string](p *T) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}

func claimIDFromURL(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "claimID"), 10, 64)
	if err != nil || id == 0 {
		return 0, &models.ValidationError{Field: "claimId", Reason: "must be a positive integer"}
	}
	return id, nil
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &models.ValidationError{Field: "body", Reason: "invalid json"}
	}
	return nil
}

type createClaimRequest struct {
	OrderID      uint64  `json:"orderId"`
	OrderItemID  *uint64 `json:"orderItemId"`
	ClaimType    string  `json:"claimType"`
	ClaimReason  string  `json:"claimReason"`
	ReasonDetail string  `json:"reasonDetail"`
	Quantity     int32   `json:"quantity"`
	RefundAmount int64   `json:"refundAmount"`
}

func (a *ClaimsAPI) createClaim(w http.ResponseWriter, r *http.Request) {
	var req createClaimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := a.svc.RequestClaim(r.Context(), models.ClaimCreateInput{
		OrderID:      req.OrderID,
		OrderItemID:  req.OrderItemID,
		Type:         models.ClaimType(req.ClaimType),
		Reason:       req.ClaimReason,
		ReasonDetail: req.ReasonDetail,
		Quantity:     req.Quantity,
		RefundAmount: req.RefundAmount,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	a.notify(r.Context(), res)
	writeJSON(w, http.StatusCreated, toClaimResponse(res.Claim))
}

func (a *ClaimsAPI) getClaim(w http.ResponseWriter, r *http.Request) {
	id, err := claimIDFromURL(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := a.svc.GetClaim(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(c))
}

func (a *ClaimsAPI) listClaimsByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseUint(r.URL.Query().Get("orderId"), 10, 64)
	if err != nil || orderID == 0 {
		writeError(w, &models.ValidationError{Field: "orderId", Reason: "must be a positive integer"})
		return
	}
	cs, err := a.svc.GetClaimsByOrderID(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]claimResponse, 0, len(cs))
	for _, c := range cs {
		out = append(out, toClaimResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"claims": out})
}

type adminRequest struct {
	AdminID string `json:"adminId"`
}

func (a *ClaimsAPI) approve(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(ctx context.Context, id uint64) (*claims.Result, error) {
		var req adminRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return a.svc.Approve(ctx, id, req.AdminID)
	})
}

type rejectRequest struct {
	AdminID string `json:"adminId"`
	Reason  string `json:"reason"`
}

func (a *ClaimsAPI) reject(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(ctx context.Context, id uint64) (*claims.Result, error) {
		var req rejectRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return a.svc.Reject(ctx, id, req.AdminID, req.Reason)
	})
}

type returnPickupRequest struct {
	Address     string    `json:"address"`
	Phone       string    `json:"phone"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

func (a *ClaimsAPI) scheduleReturnPickup(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(ctx context.Context, id uint64) (*claims.Result, error) {
		var req returnPickupRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return a.svc.ScheduleReturnPickup(ctx, id, req.Address, req.Phone, req.ScheduledAt)
	})
}

type returnShippingRequest struct {
	Method         string `json:"method"`
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
}

func (a *ClaimsAPI) registerReturnShipping(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(ctx context.Context, id uint64) (*claims.Result, error) {
		var req returnShippingRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return a.svc.RegisterReturnShipping(ctx, id, models.ReturnShippingMethod(req.Method), req.TrackingNumber, req.Carrier)
	})
}

type returnShippingStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"trackingNumber"`
}

func (a *ClaimsAPI) updateReturnShippingStatus(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(ctx context.Context, id uint64) (*claims.Result, error) {
		var req returnShippingStatusRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return a.svc.UpdateReturnShippingStatus(ctx, id, models.ReturnShippingStatus(req.Status), req.TrackingNumber)
	})
}

type returnReceivedRequest struct {
	InspectionResult string `json:"inspectionResult"`
	InspectionNote   string `json:"inspectionNote"`
}

func (a *ClaimsAPI) confirmReturnReceived(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(ctx context.Context, id uint64) (*claims.Result, error) {
		var req returnReceivedRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return a.svc.ConfirmReturnReceived(ctx, id, models.InspectionResult(req.InspectionResult), req.InspectionNote)
	})
}

type exchangeShippingRequest struct {
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
}

func (a *ClaimsAPI) registerExchangeShipping(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(ctx context.Context, id uint64) (*claims.Result, error) {
		var req exchangeShippingRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return a.svc.RegisterExchangeShipping(ctx, id, req.TrackingNumber, req.Carrier)
	})
}

func (a *ClaimsAPI) confirmExchangeDelivered(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(ctx context.Context, id uint64) (*claims.Result, error) {
		return a.svc.ConfirmExchangeDelivered(ctx, id)
	})
}

func (a *ClaimsAPI) complete(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, func(ctx context.Context, id uint64) (*claims.Result, error) {
		var req adminRequest
		if err := decodeBody(r, &req); err != nil {
			return nil, err
		}
		return a.svc.Complete(ctx, id, req.AdminID)
	})
}

func (a *ClaimsAPI) transition(w http.ResponseWriter, r *http.Request, do func(ctx context.Context, id uint64) (*claims.Result, error)) {
	id, err := claimIDFromURL(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := do(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	a.notify(r.Context(), res)
	writeJSON(w, http.StatusOK, toClaimResponse(res.Claim))
}

// notify публикует ClaimStatusChanged best-effort: переход уже записан,
// падать из-за Kafka нельзя.
func (a *ClaimsAPI) notify(ctx context.Context, res *claims.Result) {
	if a.producer == nil || a.topic == "" {
		return
	}
	if !res.StatusChanged() && !res.ReturnShippingStatusChanged() {
		return
	}

	c := res.Claim
	msg := messages.ClaimStatusChanged{
		ClaimID:     c.ID,
		ClaimNumber: c.ClaimNumber,
		OrderID:     c.OrderID,
		ClaimType:   string(c.Type),
		Operation:   res.Operation,
		NewStatus:   string(c.Status),
		OccurredAt:  c.UpdatedAt,
	}
	if res.Operation != "request" {
		msg.OldStatus = string(res.PrevStatus)
	}
	if res.PrevReturnShippingStatus != nil {
		msg.OldReturnShippingStatus = string(*res.PrevReturnShippingStatus)
	}
	if c.ReturnShippingStatus != nil {
		msg.NewReturnShippingStatus = string(*c.ReturnShippingStatus)
	}

	b, err := json.Marshal(msg)
	if err != nil {
		slog.Error("marshal claim status changed", "claim_id", c.ID, "error", err.Error())
		return
	}
	key := []byte(strconv.FormatUint(c.ID, 10))
	if err := a.producer.Publish(ctx, a.topic, key, b); err != nil {
		slog.Error("publish claim status changed", "claim_id", c.ID, "error", err.Error())
	}
}
