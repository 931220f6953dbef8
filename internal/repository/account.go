package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
)

const accountColumns = `id, user_id, name, number, balance, currency, created_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE number = $1`, number,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByNumber: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetByNumber: %w", err)
	}
	return a, nil
}

// adjustBalance applies delta relative to the stored balance; the non-negative
// check constraint rejects overdrafts.
func adjustBalance(ctx context.Context, tx *sql.Tx, number string, delta int64) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx,
		`UPDATE accounts SET balance = balance + $1 WHERE number = $2 RETURNING balance`,
		delta, number,
	).Scan(&balance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("adjustBalance: %s: %w", number, domain.ErrAccountNotFound)
	case isPQCode(err, pqCheckViolation):
		return 0, fmt.Errorf("adjustBalance: %s: %w", number, domain.ErrInsufficientFunds)
	case err != nil:
		return 0, fmt.Errorf("adjustBalance: %s: %w", number, err)
	}
	return balance, nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(&a.ID, &a.UserID, &a.Name, &a.Number, &a.Balance, &a.Currency, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
