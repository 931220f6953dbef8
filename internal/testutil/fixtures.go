package testutil

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

func SeedUser(t *testing.T, db *sql.DB, username, name string) *domain.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	u := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	_, err = db.Exec(
		`INSERT INTO users (id, username, name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.Name, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

func SeedAccount(t *testing.T, db *sql.DB, userID uuid.UUID, number, currency string, balance int64) *domain.Account {
	t.Helper()

	a := &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "main",
		Number:    number,
		Balance:   balance,
		Currency:  domain.Currency(currency),
		CreatedAt: time.Now().UTC(),
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, user_id, name, number, balance, currency, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.UserID, a.Name, a.Number, a.Balance, string(a.Currency), a.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed account %s: %v", number, err)
	}
	return a
}

// SeedPendingTransfer inserts a pending transfer without touching balances.
func SeedPendingTransfer(t *testing.T, db *sql.DB, userID uuid.UUID, from, to string, amount int64, createdAt time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := db.Exec(
		`INSERT INTO transfers (id, user_id, account_from, account_to, amount, currency,
			explanation, sender_name, status, next_attempt_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 'EUR', 'seeded', 'Seed', 'pending', $6, $6, $6)`,
		id, userID, from, to, amount, createdAt,
	)
	if err != nil {
		t.Fatalf("seed transfer %s -> %s: %v", from, to, err)
	}
	return id
}

func GetAccountBalance(t *testing.T, db *sql.DB, number string) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM accounts WHERE number = $1`, number).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", number, err)
	}
	return balance
}

func GetTransferStatus(t *testing.T, db *sql.DB, id uuid.UUID) (domain.TransferStatus, string) {
	t.Helper()

	var status domain.TransferStatus
	var detail string
	err := db.QueryRow(`SELECT status, status_detail FROM transfers WHERE id = $1`, id).Scan(&status, &detail)
	if err != nil {
		t.Fatalf("get transfer %s: %v", id, err)
	}
	return status, detail
}

// TransferRecord is the part of a transfers row that tests assert on.
type TransferRecord struct {
	Status       domain.TransferStatus
	StatusDetail string
	Currency     domain.Currency
	ReceiverName string
	Attempts     int
}

// FindTransfer reads a transfer row straight from the table. ok is false when no
// row exists.
func FindTransfer(t *testing.T, db *sql.DB, id uuid.UUID) (rec TransferRecord, ok bool) {
	t.Helper()

	err := db.QueryRow(
		`SELECT status, status_detail, currency, receiver_name, attempts FROM transfers WHERE id = $1`, id,
	).Scan(&rec.Status, &rec.StatusDetail, &rec.Currency, &rec.ReceiverName, &rec.Attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return TransferRecord{}, false
	}
	if err != nil {
		t.Fatalf("find transfer %s: %v", id, err)
	}
	return rec, true
}
