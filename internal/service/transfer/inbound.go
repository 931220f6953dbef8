package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/events"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
	"github.com/josh-kwaku/interbank-settlement/internal/metrics"
	"github.com/josh-kwaku/interbank-settlement/internal/signing"
)

// ReceiveAssertion settles a transfer sent by a peer bank and returns the name of
// the credited account's owner. No field of the token is trusted until its signature
// has been checked against the sending bank's published keys. Replays of an already
// settled assertion return the recorded receiver name without crediting again.
func (s *Service) ReceiveAssertion(ctx context.Context, token string) (string, error) {
	name, outcome, err := s.receive(ctx, token)
	metrics.InboundOutcomes.WithLabelValues(outcome).Inc()
	logging.AddRequestFields(ctx, "inbound_outcome", outcome)
	if err != nil {
		return "", fmt.Errorf("ReceiveAssertion: %w", err)
	}
	return name, nil
}

func (s *Service) receive(ctx context.Context, token string) (string, string, error) {
	log := logging.FromContext(ctx)

	unverified, err := signing.ParseUnverified(token)
	if err != nil {
		return "", "malformed", err
	}
	logging.AddRequestFields(ctx, "bank_from", unverified.Issuer, "jti", unverified.ID)
	if err := validateAssertion(unverified.Assertion); err != nil {
		return "", "malformed", err
	}

	dest, err := s.accounts.GetByNumber(ctx, unverified.AccountTo)
	if err != nil {
		return "", "rejected", err
	}

	sourcePrefix, err := domain.BankPrefix(unverified.AccountFrom)
	if err != nil {
		return "", "malformed", err
	}
	if sourcePrefix != unverified.Issuer {
		return "", "rejected", fmt.Errorf("issuer %s does not own account %s: %w", unverified.Issuer, unverified.AccountFrom, domain.ErrInvalidAssertion)
	}

	bank, err := s.banks.Resolve(ctx, sourcePrefix)
	if err != nil {
		return "", "rejected", err
	}

	claims, err := s.verifier.Verify(ctx, token, bank)
	if err != nil {
		return "", "rejected", err
	}

	ref := claims.Issuer + ":" + claims.ID
	if prior, err := s.transfers.GetByExternalRef(ctx, ref); err == nil {
		log.Info("duplicate assertion, returning recorded receiver", "external_ref", ref)
		return prior.ReceiverName, "duplicate", nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", "error", err
	}

	credit := claims.Amount
	if claims.Currency != dest.Currency {
		conv, err := s.fx.Convert(ctx, claims.Amount, claims.Currency, dest.Currency)
		if err != nil {
			return "", "conversion_failed", err
		}
		credit = conv.DestAmount
	}

	receiver, err := s.users.GetByID(ctx, dest.UserID)
	if err != nil {
		return "", "error", fmt.Errorf("receiver: %w", err)
	}

	now := s.now().UTC()
	t := &domain.Transfer{
		ID:            uuid.New(),
		UserID:        dest.UserID,
		AccountFrom:   claims.AccountFrom,
		AccountTo:     claims.AccountTo,
		Amount:        credit,
		Currency:      dest.Currency,
		Explanation:   claims.Explanation,
		SenderName:    claims.SenderName,
		ReceiverName:  receiver.Name,
		Status:        domain.TransferStatusCompleted,
		NextAttemptAt: now,
		ExternalRef:   &ref,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.transfers.RecordInbound(ctx, t, credit); err != nil {
		if errors.Is(err, domain.ErrDuplicateTransfer) {
			prior, getErr := s.transfers.GetByExternalRef(ctx, ref)
			if getErr != nil {
				return "", "error", getErr
			}
			return prior.ReceiverName, "duplicate", nil
		}
		return "", "error", err
	}

	log.Info("inbound transfer credited",
		"transfer_id", t.ID,
		"external_ref", ref,
		"account_to", t.AccountTo,
		"amount", credit,
		"currency", t.Currency,
		"source_amount", claims.Amount,
		"source_currency", claims.Currency,
	)
	s.publish(ctx, events.RoutingTransferReceived, events.NewTransferEvent(t, domain.TransferStatusCompleted, ""))

	return receiver.Name, "credited", nil
}

func validateAssertion(a domain.Assertion) error {
	if a.Amount <= 0 {
		return fmt.Errorf("validateAssertion: %w", domain.ErrInvalidAmount)
	}
	if a.AccountTo == "" || a.AccountFrom == "" {
		return fmt.Errorf("validateAssertion: missing account: %w", domain.ErrInvalidRequest)
	}
	if !a.Currency.IsValid() {
		return fmt.Errorf("validateAssertion: %w", domain.ErrInvalidCurrency)
	}
	return nil
}
