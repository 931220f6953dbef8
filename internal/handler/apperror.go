package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrAccountNotFound     = &AppError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "accountFrom not found"}
	ErrForbidden           = &AppError{http.StatusForbidden, "FORBIDDEN", "Forbidden"}
	ErrInsufficientFunds   = &AppError{http.StatusPaymentRequired, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrInvalidAmount       = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Invalid amount"}
	ErrInvalidAccountTo    = &AppError{http.StatusBadRequest, "INVALID_ACCOUNT_TO", "Invalid accountTo"}
	ErrInvalidCurrency     = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrRegistryUnavailable = &AppError{http.StatusBadGateway, "REGISTRY_UNAVAILABLE", "Central bank is unavailable"}
	ErrConversionFailed    = &AppError{http.StatusBadGateway, "CONVERSION_FAILED", "Currency conversion is unavailable"}
)
