package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
)

type BankRepository struct {
	db *sql.DB
}

func NewBankRepository(db *sql.DB) *BankRepository {
	return &BankRepository{db: db}
}

func (r *BankRepository) List(ctx context.Context) ([]domain.Bank, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT bank_prefix, name, transfer_url, key_set_url, refreshed_at FROM banks ORDER BY bank_prefix`,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var banks []domain.Bank
	for rows.Next() {
		var b domain.Bank
		if err := rows.Scan(&b.Prefix, &b.Name, &b.TransferURL, &b.KeySetURL, &b.RefreshedAt); err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		banks = append(banks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return banks, nil
}

// ReplaceAll swaps the whole bank set in one transaction; on error the previous set survives.
func (r *BankRepository) ReplaceAll(ctx context.Context, banks []domain.Bank) error {
	now := time.Now().UTC()
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM banks`); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		for _, b := range banks {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO banks (bank_prefix, name, transfer_url, key_set_url, refreshed_at)
				VALUES ($1, $2, $3, $4, $5)`,
				b.Prefix, b.Name, b.TransferURL, b.KeySetURL, now,
			)
			if err != nil {
				return fmt.Errorf("insert %s: %w", b.Prefix, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ReplaceAll: %w", err)
	}
	return nil
}
