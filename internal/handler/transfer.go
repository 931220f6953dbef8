package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/interbank-settlement/internal/auth"
	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
	"github.com/josh-kwaku/interbank-settlement/internal/service/transfer"
)

type transferService interface {
	CreateTransfer(ctx context.Context, req transfer.CreateTransferRequest) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transfer, error)
}

type TransferHandler struct {
	transfers transferService
}

func NewTransferHandler(transfers transferService) *TransferHandler {
	return &TransferHandler{transfers: transfers}
}

type createTransferRequest struct {
	AccountFrom string `json:"accountFrom"`
	AccountTo   string `json:"accountTo"`
	Amount      int64  `json:"amount"`
	Explanation string `json:"explanation"`
}

func (r createTransferRequest) Validate() []FieldError {
	var errs []FieldError

	if r.AccountFrom == "" {
		errs = append(errs, FieldError{Field: "accountFrom", Message: "required"})
	}
	if r.AccountTo == "" {
		errs = append(errs, FieldError{Field: "accountTo", Message: "required"})
	}
	if r.Explanation == "" {
		errs = append(errs, FieldError{Field: "explanation", Message: "required"})
	}

	return errs
}

type transferDTO struct {
	ID           uuid.UUID `json:"id"`
	AccountFrom  string    `json:"accountFrom"`
	AccountTo    string    `json:"accountTo"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Explanation  string    `json:"explanation"`
	SenderName   string    `json:"senderName"`
	ReceiverName string    `json:"receiverName,omitempty"`
	Status       string    `json:"status"`
	StatusDetail string    `json:"statusDetail,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toTransferDTO(t *domain.Transfer) transferDTO {
	return transferDTO{
		ID:           t.ID,
		AccountFrom:  t.AccountFrom,
		AccountTo:    t.AccountTo,
		Amount:       t.Amount,
		Currency:     string(t.Currency),
		Explanation:  t.Explanation,
		SenderName:   t.SenderName,
		ReceiverName: t.ReceiverName,
		Status:       string(t.Status),
		StatusDetail: t.StatusDetail,
		CreatedAt:    t.CreatedAt,
	}
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	t, err := h.transfers.CreateTransfer(r.Context(), transfer.CreateTransferRequest{
		UserID:      userID,
		AccountFrom: req.AccountFrom,
		AccountTo:   req.AccountTo,
		Amount:      req.Amount,
		Explanation: req.Explanation,
	})
	if err != nil {
		log.Warn("transfer creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	logging.AddRequestFields(r.Context(), "transfer_id", t.ID)
	RespondSuccess(w, http.StatusCreated, toTransferDTO(t))
}

func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	limit := queryInt(r, "limit", 20, 1, 100)
	offset := queryInt(r, "offset", 0, 0, 1<<30)

	ts, err := h.transfers.ListTransfers(r.Context(), userID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transfer listing failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]transferDTO, 0, len(ts))
	for i := range ts {
		dtos = append(dtos, toTransferDTO(&ts[i]))
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func queryInt(r *http.Request, key string, def, lo, hi int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return min(max(v, lo), hi)
}
