package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/rental-ledger/internal/domain"
	"github.com/segyhp/rental-ledger/internal/service"
	customError "github.com/segyhp/rental-ledger/pkg/errors"
	"github.com/segyhp/rental-ledger/pkg/response"
	"github.com/segyhp/rental-ledger/pkg/utils"
)

const (
	HeaderActorID        = "X-Actor-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// LedgerService is what the HTTP layer needs from the ledger.
type LedgerService interface {
	CreateCharge(ctx context.Context, in service.CreateChargeInput) (*domain.Charge, error)
	GetCharge(ctx context.Context, chargeID string) (*domain.Charge, error)
	ListCharges(ctx context.Context, leaseID string, filter domain.ChargeFilter) ([]*domain.Charge, error)
	VoidCharge(ctx context.Context, chargeID, reason, actorID string) (*domain.Charge, error)
	ApplyLateFee(ctx context.Context, chargeID, actorID string) (*domain.Charge, error)
	RecordPayment(ctx context.Context, in service.RecordPaymentInput) (*domain.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	ListPayments(ctx context.Context, leaseID string) ([]*domain.Payment, error)
	RefundPayment(ctx context.Context, paymentID, actorID string) (*domain.Payment, error)
	GetChargeBalance(ctx context.Context, leaseID string) (*domain.BalanceSummary, error)
	GetLateFeePolicy(ctx context.Context, llcID string) (*domain.LateFeePolicy, error)
	PutLateFeePolicy(ctx context.Context, policy *domain.LateFeePolicy) (*domain.LateFeePolicy, error)
}

type LedgerHandler struct {
	service   LedgerService
	validator *validator.Validate
}

func NewLedgerHandler(service LedgerService) *LedgerHandler {
	return &LedgerHandler{
		service:   service,
		validator: validator.New(),
	}
}

// Register mounts the ledger routes on r.
func (h *LedgerHandler) Register(r *mux.Router) {
	r.HandleFunc("/leases/{leaseId}/charges", h.CreateCharge).Methods(http.MethodPost)
	r.HandleFunc("/leases/{leaseId}/charges", h.ListCharges).Methods(http.MethodGet)
	r.HandleFunc("/leases/{leaseId}/payments", h.RecordPayment).Methods(http.MethodPost)
	r.HandleFunc("/leases/{leaseId}/payments", h.ListPayments).Methods(http.MethodGet)
	r.HandleFunc("/leases/{leaseId}/balance", h.GetChargeBalance).Methods(http.MethodGet)
	r.HandleFunc("/charges/{chargeId}", h.GetCharge).Methods(http.MethodGet)
	r.HandleFunc("/charges/{chargeId}/void", h.VoidCharge).Methods(http.MethodPost)
	r.HandleFunc("/charges/{chargeId}/late-fee", h.ApplyLateFee).Methods(http.MethodPost)
	r.HandleFunc("/payments/{paymentId}", h.GetPayment).Methods(http.MethodGet)
	r.HandleFunc("/payments/{paymentId}/refund", h.RefundPayment).Methods(http.MethodPost)
	r.HandleFunc("/llcs/{llcId}/late-fee-policy", h.GetLateFeePolicy).Methods(http.MethodGet)
	r.HandleFunc("/llcs/{llcId}/late-fee-policy", h.PutLateFeePolicy).Methods(http.MethodPut)
}

type CreateChargeRequest struct {
	Period      string `json:"period,omitempty"`
	Type        string `json:"type" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	DueDate     string `json:"due_date" validate:"required"`
	Description string `json:"description" validate:"max=500"`
}

type VoidChargeRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type AllocationRequest struct {
	ChargeID string `json:"charge_id" validate:"required"`
	Amount   int64  `json:"amount"`
}

type RecordPaymentRequest struct {
	TenantID    string              `json:"tenant_id"`
	Amount      int64               `json:"amount" validate:"required,gt=0"`
	Method      string              `json:"method" validate:"required,oneof=cash check money_order bank_transfer card other"`
	PaymentDate string              `json:"payment_date"`
	Reference   string              `json:"reference" validate:"max=200"`
	Allocations []AllocationRequest `json:"allocations" validate:"omitempty,dive"`
}

type LateFeePolicyRequest struct {
	Enabled      bool            `json:"enabled"`
	FeeType      string          `json:"fee_type" validate:"required,oneof=flat percentage"`
	FeeAmount    decimal.Decimal `json:"fee_amount"`
	MaxFeeAmount *int64          `json:"max_fee_amount" validate:"omitempty,gte=0"`
	GraceDays    int             `json:"grace_days" validate:"gte=0,lte=30"`
}

func (h *LedgerHandler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateChargeRequest
	if !h.decode(w, r, &req) {
		return
	}
	dueDate, err := utils.ParseDate(req.DueDate)
	if err != nil {
		writeError(w, customError.WrapValidation(err.Error()))
		return
	}

	charge, err := h.service.CreateCharge(r.Context(), service.CreateChargeInput{
		LeaseID:     mux.Vars(r)["leaseId"],
		Period:      req.Period,
		Type:        domain.ChargeType(req.Type),
		Amount:      domain.Money(req.Amount),
		DueDate:     dueDate,
		Description: req.Description,
		ActorID:     actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, charge)
}

func (h *LedgerHandler) ListCharges(w http.ResponseWriter, r *http.Request) {
	filter, err := parseChargeFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	charges, err := h.service.ListCharges(r.Context(), mux.Vars(r)["leaseId"], filter)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, charges)
}

func (h *LedgerHandler) GetCharge(w http.ResponseWriter, r *http.Request) {
	charge, err := h.service.GetCharge(r.Context(), mux.Vars(r)["chargeId"])
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, charge)
}

func (h *LedgerHandler) VoidCharge(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req VoidChargeRequest
	if !h.decode(w, r, &req) {
		return
	}

	charge, err := h.service.VoidCharge(r.Context(), mux.Vars(r)["chargeId"], req.Reason, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, charge)
}

func (h *LedgerHandler) ApplyLateFee(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	fee, err := h.service.ApplyLateFee(r.Context(), mux.Vars(r)["chargeId"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, fee)
}

func (h *LedgerHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	in := service.RecordPaymentInput{
		LeaseID:        mux.Vars(r)["leaseId"],
		TenantID:       req.TenantID,
		Amount:         domain.Money(req.Amount),
		Method:         domain.PaymentMethod(req.Method),
		Reference:      req.Reference,
		IdempotencyKey: r.Header.Get(HeaderIdempotencyKey),
		ActorID:        actor,
	}
	if req.PaymentDate != "" {
		d, err := utils.ParseDate(req.PaymentDate)
		if err != nil {
			writeError(w, customError.WrapValidation(err.Error()))
			return
		}
		in.PaymentDate = &d
	}
	if req.Allocations != nil {
		in.Allocations = make([]domain.Allocation, 0, len(req.Allocations))
		for _, a := range req.Allocations {
			in.Allocations = append(in.Allocations, domain.Allocation{ChargeID: a.ChargeID, Amount: domain.Money(a.Amount)})
		}
	}

	payment, err := h.service.RecordPayment(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, payment)
}

func (h *LedgerHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context(), mux.Vars(r)["leaseId"])
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, payments)
}

func (h *LedgerHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.service.GetPayment(r.Context(), mux.Vars(r)["paymentId"])
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, payment)
}

func (h *LedgerHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	payment, err := h.service.RefundPayment(r.Context(), mux.Vars(r)["paymentId"], actor)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, payment)
}

func (h *LedgerHandler) GetChargeBalance(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetChargeBalance(r.Context(), mux.Vars(r)["leaseId"])
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, summary)
}

func (h *LedgerHandler) GetLateFeePolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.service.GetLateFeePolicy(r.Context(), mux.Vars(r)["llcId"])
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, policy)
}

func (h *LedgerHandler) PutLateFeePolicy(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r); !ok {
		return
	}
	var req LateFeePolicyRequest
	if !h.decode(w, r, &req) {
		return
	}

	policy := &domain.LateFeePolicy{
		LLCID:     mux.Vars(r)["llcId"],
		Enabled:   req.Enabled,
		FeeType:   domain.FeeType(req.FeeType),
		FeeAmount: req.FeeAmount,
		GraceDays: req.GraceDays,
	}
	if req.MaxFeeAmount != nil {
		maxFee := domain.Money(*req.MaxFeeAmount)
		policy.MaxFeeAmount = &maxFee
	}

	saved, err := h.service.PutLateFeePolicy(r.Context(), policy)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Success(w, saved)
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (h *LedgerHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, customError.WrapValidation("invalid request body: "+err.Error()))
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		writeError(w, customError.WrapValidation(err.Error()))
		return false
	}
	return true
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get(HeaderActorID))
	if actor == "" {
		response.Unauthorized(w, HeaderActorID+" header is required")
		return "", false
	}
	return actor, true
}

func parseChargeFilter(r *http.Request) (domain.ChargeFilter, error) {
	q := r.URL.Query()
	var filter domain.ChargeFilter
	if v := q.Get("status"); v != "" {
		status := domain.ChargeStatus(v)
		filter.Status = &status
	}
	if v := q.Get("type"); v != "" {
		chargeType := domain.ChargeType(v)
		filter.Type = &chargeType
	}
	for param, dst := range map[string]**time.Time{"due_from": &filter.DueFrom, "due_to": &filter.DueTo} {
		v := q.Get(param)
		if v == "" {
			continue
		}
		d, err := utils.ParseDate(v)
		if err != nil {
			return filter, customError.WrapValidation(param + ": " + err.Error())
		}
		*dst = &d
	}
	return filter, nil
}

// statusFor maps business codes onto HTTP statuses.
func statusFor(code string) int {
	switch code {
	case customError.ErrCodeNotFound:
		return http.StatusNotFound
	case customError.ErrCodeValidation, customError.ErrCodeInvalidAllocation:
		return http.StatusBadRequest
	case customError.ErrCodeInvalidStatus, customError.ErrCodeAlreadyApplied:
		return http.StatusConflict
	case customError.ErrCodeLateFeeDisabled, customError.ErrCodeInvalidType,
		customError.ErrCodeGracePeriod, customError.ErrCodeZeroFee:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	var be *customError.BusinessError
	if !errors.As(err, &be) || !customError.IsBusiness(err) {
		zap.L().Error("request failed", zap.Error(err))
		response.ErrorCode(w, http.StatusInternalServerError, customError.Code(err), "internal error")
		return
	}
	response.ErrorCode(w, statusFor(be.Code), be.Code, be.Message)
}
