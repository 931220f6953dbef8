package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const BankPrefixLen = 3

type Account struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Number    string
	Balance   int64
	Currency  Currency
	CreatedAt time.Time
}

// BankPrefix returns the registry prefix encoded in the first characters of an account number.
func BankPrefix(accountNumber string) (string, error) {
	if len(accountNumber) <= BankPrefixLen {
		return "", fmt.Errorf("BankPrefix: account number %q too short: %w", accountNumber, ErrInvalidRequest)
	}
	return accountNumber[:BankPrefixLen], nil
}
