package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
)

type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewClient(url, apiKey string, timeout time.Duration) *Client {
	return &Client{
		url:        strings.TrimSpace(url),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type bankRecord struct {
	BankPrefix  string `json:"bankPrefix"`
	Name        string `json:"name"`
	TransferURL string `json:"transferUrl"`
	KeySetURL   string `json:"keySetUrl"`
}

// FetchBanks downloads the full bank list from the registry authority.
func (c *Client) FetchBanks(ctx context.Context) ([]domain.Bank, error) {
	log := logging.FromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("FetchBanks: build request: %v: %w", err, domain.ErrRegistryUnavailable)
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FetchBanks: send: %v: %w", err, domain.ErrRegistryUnavailable)
	}
	defer resp.Body.Close()

	log.Debug("registry response received",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("FetchBanks: unexpected status %d: %s: %w", resp.StatusCode, string(body), domain.ErrRegistryUnavailable)
	}

	var records []bankRecord
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&records); err != nil {
		return nil, fmt.Errorf("FetchBanks: decode: %v: %w", err, domain.ErrRegistryUnavailable)
	}

	banks := make([]domain.Bank, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if len(rec.BankPrefix) != domain.BankPrefixLen || rec.TransferURL == "" || rec.KeySetURL == "" {
			log.Warn("skipping malformed registry record", "bank_prefix", rec.BankPrefix)
			continue
		}
		if _, dup := seen[rec.BankPrefix]; dup {
			log.Warn("skipping duplicate registry record", "bank_prefix", rec.BankPrefix)
			continue
		}
		seen[rec.BankPrefix] = struct{}{}
		banks = append(banks, domain.Bank{
			Prefix:      rec.BankPrefix,
			Name:        rec.Name,
			TransferURL: rec.TransferURL,
			KeySetURL:   rec.KeySetURL,
		})
	}
	return banks, nil
}
