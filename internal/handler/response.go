package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondDomainError(w http.ResponseWriter, err error) {
	var appErr *AppError

	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		appErr = ErrAccountNotFound
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrForbidden):
		appErr = ErrForbidden
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidAccountTo):
		appErr = ErrInvalidAccountTo
	case errors.Is(err, domain.ErrInvalidCurrency):
		appErr = ErrInvalidCurrency
	case errors.Is(err, domain.ErrRegistryUnavailable):
		appErr = ErrRegistryUnavailable
	case errors.Is(err, domain.ErrConversion):
		appErr = ErrConversionFailed
	case errors.Is(err, domain.ErrInvalidRequest):
		appErr = ErrInvalidRequest
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, nil)
}

type protocolError struct {
	Error string `json:"error"`
}

// RespondProtocolError answers a peer bank with the bare {"error": "..."} body the
// interbank protocol expects. 4xx statuses tell the sender the transfer is refused
// for good; 5xx statuses invite a retry.
func RespondProtocolError(w http.ResponseWriter, err error) {
	status, message := protocolStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("unhandled inbound settlement error", "error", err)
	}
	RespondJSON(w, status, protocolError{Error: message})
}

func protocolStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound, "Account not found"
	case errors.Is(err, domain.ErrBankNotFound):
		return http.StatusNotFound, "Bank prefix not found"
	case errors.Is(err, domain.ErrInvalidAssertion):
		return http.StatusUnauthorized, "Invalid signature"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "Invalid amount"
	case errors.Is(err, domain.ErrInvalidCurrency):
		return http.StatusBadRequest, "Invalid currency"
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "Invalid jwt"
	case errors.Is(err, domain.ErrRegistryUnavailable):
		return http.StatusBadGateway, "Central bank is unavailable"
	case errors.Is(err, domain.ErrTransport):
		return http.StatusBadGateway, "Sender key set is unavailable"
	case errors.Is(err, domain.ErrConversion):
		return http.StatusBadGateway, "Currency conversion is unavailable"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
