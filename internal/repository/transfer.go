package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/interbank-settlement/internal/domain"
)

const transferColumns = `id, user_id, account_from, account_to, amount, currency,
	explanation, sender_name, receiver_name, status, status_detail,
	attempts, next_attempt_at, external_ref, created_at, updated_at`

type TransferRepository struct {
	db *sql.DB
}

func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// CreatePending debits the source account and inserts the pending transfer atomically.
func (r *TransferRepository) CreatePending(ctx context.Context, t *domain.Transfer) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := adjustBalance(ctx, tx, t.AccountFrom, -t.Amount); err != nil {
			return err
		}
		return insertTransfer(ctx, tx, t)
	})
	if err != nil {
		return fmt.Errorf("CreatePending: %w", err)
	}
	return nil
}

// RecordInbound inserts a completed inbound transfer and credits creditAmount to its
// destination. A repeated external reference fails before any balance moves.
func (r *TransferRepository) RecordInbound(ctx context.Context, t *domain.Transfer, creditAmount int64) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := insertTransfer(ctx, tx, t); err != nil {
			if IsUniqueViolation(err) {
				return domain.ErrDuplicateTransfer
			}
			return err
		}
		_, err := adjustBalance(ctx, tx, t.AccountTo, creditAmount)
		return err
	})
	if err != nil {
		return fmt.Errorf("RecordInbound: %w", err)
	}
	return nil
}

func (r *TransferRepository) GetByExternalRef(ctx context.Context, ref string) (*domain.Transfer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transferColumns+` FROM transfers WHERE external_ref = $1`, ref,
	)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByExternalRef: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByExternalRef: %w", err)
	}
	return t, nil
}

func (r *TransferRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	return collectTransfers(rows, "ListByUser")
}

// ListDue returns pending transfers whose backoff gate has passed.
func (r *TransferRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Transfer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transferColumns+` FROM transfers
		WHERE status = $1 AND next_attempt_at <= $2
		ORDER BY next_attempt_at LIMIT $3`,
		domain.TransferStatusPending, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListDue: %w", err)
	}
	return collectTransfers(rows, "ListDue")
}

// Claim moves a transfer from pending to in_progress. Only one caller can win.
func (r *TransferRepository) Claim(ctx context.Context, id uuid.UUID) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE transfers SET status = $1, attempts = attempts + 1, updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING attempts`,
		domain.TransferStatusInProgress, id, domain.TransferStatusPending,
	).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("Claim: %w", domain.ErrTransferClaimed)
	}
	if err != nil {
		return 0, fmt.Errorf("Claim: %w", err)
	}
	return attempts, nil
}

// Release hands an in_progress transfer back to pending for a later attempt.
func (r *TransferRepository) Release(ctx context.Context, id uuid.UUID, detail string, nextAttemptAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transfers SET status = $1, status_detail = $2, next_attempt_at = $3, updated_at = now()
		WHERE id = $4 AND status = $5`,
		domain.TransferStatusPending, detail, nextAttemptAt, id, domain.TransferStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return expectOneRow(res, "Release")
}

// ReleaseStale returns claims abandoned before claimedBefore to pending so they are
// dispatched again. Peers deduplicate by transfer id, so a repeat dispatch is safe.
func (r *TransferRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transfers SET status = $1, status_detail = 'Claim abandoned', next_attempt_at = now(), updated_at = now()
		WHERE status = $2 AND updated_at < $3`,
		domain.TransferStatusPending, domain.TransferStatusInProgress, claimedBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("ReleaseStale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ReleaseStale: rows affected: %w", err)
	}
	return n, nil
}

func (r *TransferRepository) Complete(ctx context.Context, id uuid.UUID, receiverName string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transfers SET status = $1, status_detail = '', receiver_name = $2, updated_at = now()
		WHERE id = $3 AND status = $4`,
		domain.TransferStatusCompleted, receiverName, id, domain.TransferStatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return expectOneRow(res, "Complete")
}

// FailAndRefund marks the transfer failed and credits the amount back to the source
// account in one transaction. The status guard makes the refund happen at most once.
func (r *TransferRepository) FailAndRefund(ctx context.Context, id uuid.UUID, from domain.TransferStatus, detail string) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var accountFrom string
		var amount int64
		err := tx.QueryRowContext(ctx,
			`UPDATE transfers SET status = $1, status_detail = $2, updated_at = now()
			WHERE id = $3 AND status = $4
			RETURNING account_from, amount`,
			domain.TransferStatusFailed, detail, id, from,
		).Scan(&accountFrom, &amount)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTransferTerminal
		}
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		_, err = adjustBalance(ctx, tx, accountFrom, amount)
		return err
	})
	if err != nil {
		return fmt.Errorf("FailAndRefund: %w", err)
	}
	return nil
}

func insertTransfer(ctx context.Context, tx *sql.Tx, t *domain.Transfer) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (
			id, user_id, account_from, account_to, amount, currency,
			explanation, sender_name, receiver_name, status, status_detail,
			attempts, next_attempt_at, external_ref, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.UserID, t.AccountFrom, t.AccountTo, t.Amount, t.Currency,
		t.Explanation, t.SenderName, t.ReceiverName, t.Status, t.StatusDetail,
		t.Attempts, t.NextAttemptAt, t.ExternalRef, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insertTransfer: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrTransferTerminal)
	}
	return nil
}

func collectTransfers(rows *sql.Rows, op string) ([]domain.Transfer, error) {
	defer rows.Close()

	var transfers []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		transfers = append(transfers, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return transfers, nil
}

func scanTransfer(s scanner) (*domain.Transfer, error) {
	var t domain.Transfer
	var currency string
	err := s.Scan(
		&t.ID, &t.UserID, &t.AccountFrom, &t.AccountTo, &t.Amount, &currency,
		&t.Explanation, &t.SenderName, &t.ReceiverName, &t.Status, &t.StatusDetail,
		&t.Attempts, &t.NextAttemptAt, &t.ExternalRef, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Currency = domain.Currency(currency)
	return &t, nil
}
