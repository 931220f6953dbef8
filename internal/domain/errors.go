package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidCurrency     = errors.New("invalid currency")
	ErrAccountNotFound     = errors.New("account not found")
	ErrBankNotFound        = errors.New("bank prefix not found")
	ErrInvalidAccountTo    = errors.New("invalid accountTo")
	ErrForbidden           = errors.New("forbidden")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrRegistryUnavailable = errors.New("registry authority unavailable")
	ErrTransport           = errors.New("peer bank unreachable")
	ErrSigning             = errors.New("signing failed")
	ErrConversion          = errors.New("currency conversion failed")
	ErrInvalidAssertion    = errors.New("invalid transfer assertion")
	ErrTransferClaimed     = errors.New("transfer claimed by another worker")
	ErrTransferTerminal    = errors.New("transfer already in terminal state")
	ErrDuplicateTransfer   = errors.New("duplicate transfer")
)

// IsRetryable reports whether a settlement failure should send the transfer back to pending.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrRegistryUnavailable),
		errors.Is(err, ErrTransport),
		errors.Is(err, ErrSigning),
		errors.Is(err, ErrConversion):
		return true
	default:
		return false
	}
}
