package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/events"
)

type transferStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Transfer, error)
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int64, error)
	Claim(ctx context.Context, id uuid.UUID) (int, error)
	Release(ctx context.Context, id uuid.UUID, detail string, nextAttemptAt time.Time) error
	Complete(ctx context.Context, id uuid.UUID, receiverName string) error
	FailAndRefund(ctx context.Context, id uuid.UUID, from domain.TransferStatus, detail string) error
}

type bankResolver interface {
	Resolve(ctx context.Context, prefix string) (domain.Bank, error)
}

type assertionSigner interface {
	Sign(transferID uuid.UUID, a domain.Assertion) (string, error)
}

type peerDispatcher interface {
	Dispatch(ctx context.Context, transferURL, token string) (string, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, routingKey string, evt events.TransferEvent) error
}
