package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
	"github.com/josh-kwaku/interbank-settlement/internal/metrics"
)

// RejectedError is a structured refusal from the destination bank. It is final.
type RejectedError struct {
	StatusCode int
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("peer rejected transfer (status %d): %s", e.StatusCode, e.Reason)
}

func IsRejected(err error) (*RejectedError, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

type PeerClient struct {
	httpClient *http.Client
}

func NewPeerClient(timeout time.Duration) *PeerClient {
	return &PeerClient{
		httpClient: &http.Client{Timeout: timeout},
	}
}

type peerRequest struct {
	JWT string `json:"jwt"`
}

type peerReply struct {
	ReceiverName string `json:"receiverName"`
	Error        string `json:"error"`
}

// Dispatch posts a signed assertion to a peer bank and returns the receiver name it
// reports. Transport failures, 5xx replies and unreadable bodies wrap ErrTransport.
func (c *PeerClient) Dispatch(ctx context.Context, transferURL, token string) (string, error) {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(peerRequest{JWT: token})
	if err != nil {
		return "", fmt.Errorf("Dispatch: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, transferURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("Dispatch: build request: %v: %w", err, domain.ErrTransport)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	log.Info("peer request sent", "transfer_url", transferURL)

	resp, err := c.httpClient.Do(req)
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("Dispatch: send: %v: %w", err, domain.ErrTransport)
	}
	defer resp.Body.Close()

	log.Info("peer response received",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("Dispatch: read body: %v: %w", err, domain.ErrTransport)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", fmt.Errorf("Dispatch: unexpected status %d: %s: %w", resp.StatusCode, truncate(raw), domain.ErrTransport)
	}

	var reply peerReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", fmt.Errorf("Dispatch: decode status %d: %v: %w", resp.StatusCode, err, domain.ErrTransport)
	}

	if reply.Error != "" {
		return "", fmt.Errorf("Dispatch: %w", &RejectedError{StatusCode: resp.StatusCode, Reason: reply.Error})
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("Dispatch: %w", &RejectedError{StatusCode: resp.StatusCode, Reason: http.StatusText(resp.StatusCode)})
	}
	if reply.ReceiverName == "" {
		return "", fmt.Errorf("Dispatch: reply without receiverName: %w", domain.ErrTransport)
	}

	return reply.ReceiverName, nil
}

func truncate(b []byte) string {
	if len(b) > 512 {
		b = b[:512]
	}
	return string(b)
}
