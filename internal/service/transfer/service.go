package transfer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/events"
	"github.com/josh-kwaku/interbank-settlement/internal/fx"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
	"github.com/josh-kwaku/interbank-settlement/internal/signing"
)

type transferRepo interface {
	CreatePending(ctx context.Context, t *domain.Transfer) error
	RecordInbound(ctx context.Context, t *domain.Transfer, creditAmount int64) error
	GetByExternalRef(ctx context.Context, ref string) (*domain.Transfer, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transfer, error)
}

type accountRepo interface {
	GetByNumber(ctx context.Context, number string) (*domain.Account, error)
}

type userRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type bankResolver interface {
	Resolve(ctx context.Context, prefix string) (domain.Bank, error)
}

type fxService interface {
	Convert(ctx context.Context, amount int64, from, to domain.Currency) (*fx.Conversion, error)
}

type assertionVerifier interface {
	Verify(ctx context.Context, token string, bank domain.Bank) (*signing.Claims, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, routingKey string, evt events.TransferEvent) error
}

// Service owns the two entry points that create transfers: local initiation and
// inbound assertions from peer banks.
type Service struct {
	transfers transferRepo
	accounts  accountRepo
	users     userRepo
	banks     bankResolver
	fx        fxService
	verifier  assertionVerifier
	events    eventPublisher
	now       func() time.Time
}

func NewService(
	transfers transferRepo,
	accounts accountRepo,
	users userRepo,
	banks bankResolver,
	fxSvc fxService,
	verifier assertionVerifier,
	publisher eventPublisher,
) *Service {
	return &Service{
		transfers: transfers,
		accounts:  accounts,
		users:     users,
		banks:     banks,
		fx:        fxSvc,
		verifier:  verifier,
		events:    publisher,
		now:       time.Now,
	}
}

func (s *Service) ListTransfers(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transfer, error) {
	ts, err := s.transfers.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListTransfers: %w", err)
	}
	return ts, nil
}

func (s *Service) publish(ctx context.Context, routingKey string, evt events.TransferEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, routingKey, evt); err != nil {
		logging.FromContext(ctx).Error("failed to publish settlement event", "routing_key", routingKey, "error", err)
	}
}
