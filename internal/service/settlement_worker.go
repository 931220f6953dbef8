package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/events"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
	"github.com/josh-kwaku/interbank-settlement/internal/metrics"
)

const detailExpired = "Transfer has expired"

type WorkerConfig struct {
	BatchSize       int
	DispatchTimeout time.Duration
	TransferExpiry  time.Duration
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	StaleClaimAfter time.Duration
}

// SettlementWorker drives locally initiated transfers from pending to a terminal
// state. Each Tick handles every due transfer in its own goroutine; the atomic claim
// keeps overlapping ticks from working on the same transfer.
type SettlementWorker struct {
	transfers transferStore
	banks     bankResolver
	signer    assertionSigner
	peers     peerDispatcher
	events    eventPublisher
	logger    *slog.Logger
	cfg       WorkerConfig
	now       func() time.Time

	wg sync.WaitGroup
}

func NewSettlementWorker(
	transfers transferStore,
	banks bankResolver,
	signer assertionSigner,
	peers peerDispatcher,
	publisher eventPublisher,
	logger *slog.Logger,
	cfg WorkerConfig,
) *SettlementWorker {
	return &SettlementWorker{
		transfers: transfers,
		banks:     banks,
		signer:    signer,
		peers:     peers,
		events:    publisher,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Tick starts processing of every due transfer and returns without waiting for it.
func (w *SettlementWorker) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	metrics.WorkerTicks.Inc()
	now := w.now().UTC()

	released, err := w.transfers.ReleaseStale(ctx, now.Add(-w.cfg.StaleClaimAfter))
	if err != nil {
		w.logger.Error("failed to release stale claims", "error", err)
	} else if released > 0 {
		w.logger.Warn("released stale transfer claims", "count", released)
	}

	due, err := w.transfers.ListDue(ctx, now, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("failed to fetch due transfers", "error", err)
		return
	}

	for _, t := range due {
		w.wg.Add(1)
		go func(t domain.Transfer) {
			defer w.wg.Done()
			w.processTransfer(ctx, t)
		}(t)
	}
}

// Wait blocks until every transfer started by previous ticks has finished.
func (w *SettlementWorker) Wait() {
	w.wg.Wait()
}

func (w *SettlementWorker) processTransfer(ctx context.Context, t domain.Transfer) {
	ctx, log := logging.WithTransfer(ctx, w.logger, t.ID, t.AccountTo)
	defer func() {
		if rec := recover(); rec != nil {
			metrics.OutboundOutcomes.WithLabelValues("panic").Inc()
			log.Error("panic while processing transfer", "panic", rec)
		}
	}()

	// Outcomes are recorded even if the tick context is cancelled mid-dispatch.
	recordCtx := context.WithoutCancel(ctx)

	// An expired transfer that was dispatched before is sent once more under the same
	// jti, so a peer that already credited it confirms delivery instead of being refunded.
	expired := t.IsExpired(w.now(), w.cfg.TransferExpiry)
	if expired && t.Attempts == 0 {
		w.fail(recordCtx, &t, domain.TransferStatusPending, detailExpired)
		return
	}

	attempts, err := w.transfers.Claim(ctx, t.ID)
	if err != nil {
		if errors.Is(err, domain.ErrTransferClaimed) {
			log.Debug("transfer already claimed, skipping")
			return
		}
		log.Error("failed to claim transfer", "error", err)
		return
	}

	receiverName, err := w.settle(ctx, &t)
	switch {
	case err == nil:
		w.complete(recordCtx, &t, receiverName)
	case expired:
		log.Warn("expired transfer not confirmed by peer", "error", err)
		w.fail(recordCtx, &t, domain.TransferStatusInProgress, detailExpired)
	case errors.Is(err, domain.ErrBankNotFound):
		prefix, _ := domain.BankPrefix(t.AccountTo)
		w.fail(recordCtx, &t, domain.TransferStatusInProgress, fmt.Sprintf("Bank %s does not exist", prefix))
	case domain.IsRetryable(err):
		w.retry(recordCtx, &t, attempts, retryDetail(err))
	default:
		if rej, ok := IsRejected(err); ok {
			w.fail(recordCtx, &t, domain.TransferStatusInProgress, rej.Reason)
			return
		}
		w.fail(recordCtx, &t, domain.TransferStatusInProgress, err.Error())
	}
}

// settle resolves, signs and dispatches one claimed transfer.
func (w *SettlementWorker) settle(ctx context.Context, t *domain.Transfer) (string, error) {
	prefix, err := domain.BankPrefix(t.AccountTo)
	if err != nil {
		return "", fmt.Errorf("settle: %w", err)
	}

	bank, err := w.banks.Resolve(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("settle: %w", err)
	}

	token, err := w.signer.Sign(t.ID, t.Assertion())
	if err != nil {
		return "", fmt.Errorf("settle: %w", err)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, w.cfg.DispatchTimeout)
	defer cancel()

	receiverName, err := w.peers.Dispatch(dispatchCtx, bank.TransferURL, token)
	if err != nil {
		if dispatchCtx.Err() != nil && !errors.Is(err, domain.ErrTransport) {
			err = fmt.Errorf("%v: %w", err, domain.ErrTransport)
		}
		return "", fmt.Errorf("settle: %w", err)
	}
	return receiverName, nil
}

func (w *SettlementWorker) complete(ctx context.Context, t *domain.Transfer, receiverName string) {
	log := logging.FromContext(ctx)

	if err := w.transfers.Complete(ctx, t.ID, receiverName); err != nil {
		log.Error("failed to record completed transfer", "error", err)
		return
	}
	metrics.OutboundOutcomes.WithLabelValues("completed").Inc()
	log.Info("transfer completed", "receiver_name", receiverName)

	t.ReceiverName = receiverName
	w.publish(ctx, events.RoutingTransferCompleted, events.NewTransferEvent(t, domain.TransferStatusCompleted, ""))
}

func (w *SettlementWorker) fail(ctx context.Context, t *domain.Transfer, from domain.TransferStatus, detail string) {
	log := logging.FromContext(ctx)

	if err := w.transfers.FailAndRefund(ctx, t.ID, from, detail); err != nil {
		if errors.Is(err, domain.ErrTransferTerminal) {
			log.Debug("transfer moved on before it could be failed", "from", from)
			return
		}
		log.Error("failed to record failed transfer", "error", err, "detail", detail)
		return
	}
	metrics.OutboundOutcomes.WithLabelValues("failed").Inc()
	log.Warn("transfer failed and refunded", "detail", detail, "amount", t.Amount, "account_from", t.AccountFrom)

	w.publish(ctx, events.RoutingTransferFailed, events.NewTransferEvent(t, domain.TransferStatusFailed, detail))
}

func (w *SettlementWorker) retry(ctx context.Context, t *domain.Transfer, attempts int, detail string) {
	log := logging.FromContext(ctx)

	// Every retry re-sends the same jti, so only a delivery on the final attempt can go
	// unconfirmed before this refund.
	if w.cfg.MaxAttempts > 0 && attempts >= w.cfg.MaxAttempts {
		w.fail(ctx, t, domain.TransferStatusInProgress, fmt.Sprintf("Gave up after %d attempts: %s", attempts, detail))
		return
	}

	next := w.now().UTC().Add(w.retryDelay(attempts))
	if err := w.transfers.Release(ctx, t.ID, detail, next); err != nil {
		log.Error("failed to release transfer for retry", "error", err)
		return
	}
	metrics.OutboundOutcomes.WithLabelValues("retry").Inc()
	log.Warn("transfer attempt failed, will retry", "detail", detail, "attempt", attempts, "next_attempt_at", next)
}

// retryDelay is the exponential backoff interval that follows the given attempt.
func (w *SettlementWorker) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryBaseDelay
	b.MaxInterval = w.cfg.RetryMaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (w *SettlementWorker) publish(ctx context.Context, routingKey string, evt events.TransferEvent) {
	if w.events == nil {
		return
	}
	if err := w.events.Publish(ctx, routingKey, evt); err != nil {
		logging.FromContext(ctx).Error("failed to publish settlement event", "routing_key", routingKey, "error", err)
	}
}

func retryDetail(err error) string {
	switch {
	case errors.Is(err, domain.ErrRegistryUnavailable):
		return "Central bank refresh failed: " + err.Error()
	case errors.Is(err, domain.ErrSigning):
		return "Signing failed: " + err.Error()
	default:
		return err.Error()
	}
}
