package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransferStatus string

const (
	TransferStatusPending    TransferStatus = "pending"
	TransferStatusInProgress TransferStatus = "in_progress"
	TransferStatusCompleted  TransferStatus = "completed"
	TransferStatusFailed     TransferStatus = "failed"
)

func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusFailed
}

type Transfer struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	AccountFrom   string
	AccountTo     string
	Amount        int64
	Currency      Currency
	Explanation   string
	SenderName    string
	ReceiverName  string
	Status        TransferStatus
	StatusDetail  string
	Attempts      int
	NextAttemptAt time.Time
	ExternalRef   *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (t *Transfer) ExpiresAt(ttl time.Duration) time.Time {
	return t.CreatedAt.Add(ttl)
}

func (t *Transfer) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.After(t.ExpiresAt(ttl))
}

// Assertion is the transfer payload carried inside a signed interbank token.
type Assertion struct {
	AccountFrom string    `json:"accountFrom"`
	AccountTo   string    `json:"accountTo"`
	Amount      int64     `json:"amount"`
	Currency    Currency  `json:"currency"`
	Explanation string    `json:"explanation"`
	SenderName  string    `json:"senderName"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (t *Transfer) Assertion() Assertion {
	return Assertion{
		AccountFrom: t.AccountFrom,
		AccountTo:   t.AccountTo,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Explanation: t.Explanation,
		SenderName:  t.SenderName,
		CreatedAt:   t.CreatedAt,
	}
}
