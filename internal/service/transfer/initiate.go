package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
)

type CreateTransferRequest struct {
	UserID      uuid.UUID
	AccountFrom string
	AccountTo   string
	Amount      int64
	Explanation string
}

// CreateTransfer debits the source account and queues a pending transfer for the
// settlement worker. The destination bank is checked up front so obviously wrong
// account numbers are refused before any money moves.
func (s *Service) CreateTransfer(ctx context.Context, req CreateTransferRequest) (*domain.Transfer, error) {
	log := logging.FromContext(ctx)

	if err := validateRequest(req); err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	source, err := s.accounts.GetByNumber(ctx, req.AccountFrom)
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}
	if source.UserID != req.UserID {
		return nil, fmt.Errorf("CreateTransfer: account %s: %w", req.AccountFrom, domain.ErrForbidden)
	}
	if req.Amount > source.Balance {
		return nil, fmt.Errorf("CreateTransfer: %w", domain.ErrInsufficientFunds)
	}

	statusDetail, err := s.checkDestination(ctx, req.AccountTo)
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	sender, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("CreateTransfer: sender: %w", err)
	}

	now := s.now().UTC()
	t := &domain.Transfer{
		ID:            uuid.New(),
		UserID:        req.UserID,
		AccountFrom:   req.AccountFrom,
		AccountTo:     req.AccountTo,
		Amount:        req.Amount,
		Currency:      source.Currency,
		Explanation:   req.Explanation,
		SenderName:    sender.Name,
		Status:        domain.TransferStatusPending,
		StatusDetail:  statusDetail,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.transfers.CreatePending(ctx, t); err != nil {
		return nil, fmt.Errorf("CreateTransfer: %w", err)
	}

	log.Info("transfer queued",
		"transfer_id", t.ID,
		"account_from", t.AccountFrom,
		"account_to", t.AccountTo,
		"amount", t.Amount,
		"currency", t.Currency,
	)
	return t, nil
}

func validateRequest(req CreateTransferRequest) error {
	if req.Amount <= 0 {
		return fmt.Errorf("validateRequest: %w", domain.ErrInvalidAmount)
	}
	if strings.TrimSpace(req.AccountFrom) == "" {
		return fmt.Errorf("validateRequest: accountFrom is required: %w", domain.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Explanation) == "" {
		return fmt.Errorf("validateRequest: explanation is required: %w", domain.ErrInvalidRequest)
	}
	if req.AccountFrom == req.AccountTo {
		return fmt.Errorf("validateRequest: %w", domain.ErrInvalidAccountTo)
	}
	return nil
}

// checkDestination confirms the destination prefix belongs to a known bank. An
// unreachable registry does not block the transfer; the worker retries the lookup
// and the returned detail records why it is still unresolved.
func (s *Service) checkDestination(ctx context.Context, accountTo string) (string, error) {
	prefix, err := domain.BankPrefix(accountTo)
	if err != nil {
		return "", fmt.Errorf("checkDestination: %v: %w", err, domain.ErrInvalidAccountTo)
	}

	_, err = s.banks.Resolve(ctx, prefix)
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, domain.ErrBankNotFound):
		return "", fmt.Errorf("checkDestination: %v: %w", err, domain.ErrInvalidAccountTo)
	case errors.Is(err, domain.ErrRegistryUnavailable):
		logging.FromContext(ctx).Warn("registry unavailable during initiation", "bank_prefix", prefix, "error", err)
		return "Central bank refresh failed: " + err.Error(), nil
	default:
		return "", fmt.Errorf("checkDestination: %w", err)
	}
}
