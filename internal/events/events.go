package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
)

const (
	RoutingTransferCompleted = "transfer.completed"
	RoutingTransferFailed    = "transfer.failed"
	RoutingTransferReceived  = "transfer.received"
)

type TransferEvent struct {
	TransferID   uuid.UUID             `json:"transferId"`
	Status       domain.TransferStatus `json:"status"`
	AccountFrom  string                `json:"accountFrom"`
	AccountTo    string                `json:"accountTo"`
	Amount       int64                 `json:"amount"`
	Currency     domain.Currency       `json:"currency"`
	ReceiverName string                `json:"receiverName,omitempty"`
	Detail       string                `json:"detail,omitempty"`
	OccurredAt   time.Time             `json:"occurredAt"`
}

func NewTransferEvent(t *domain.Transfer, status domain.TransferStatus, detail string) TransferEvent {
	return TransferEvent{
		TransferID:   t.ID,
		Status:       status,
		AccountFrom:  t.AccountFrom,
		AccountTo:    t.AccountTo,
		Amount:       t.Amount,
		Currency:     t.Currency,
		ReceiverName: t.ReceiverName,
		Detail:       detail,
		OccurredAt:   time.Now().UTC(),
	}
}

// LogPublisher is used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, routingKey string, evt TransferEvent) error {
	logging.FromContext(ctx).Info("settlement event",
		"routing_key", routingKey,
		"transfer_id", evt.TransferID,
		"status", evt.Status,
	)
	return nil
}

func (LogPublisher) Close() {}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, evt TransferEvent) error
	Close()
}

// NewPublisher connects to the broker at amqpURL, or returns a LogPublisher when no
// broker is configured.
func NewPublisher(amqpURL, exchange string) (Publisher, error) {
	if amqpURL == "" {
		return LogPublisher{}, nil
	}
	p, err := NewAMQPPublisher(amqpURL, exchange)
	if err != nil {
		return nil, err
	}
	return p, nil
}
