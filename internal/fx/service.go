package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
)

type Quote struct {
	FromCurrency domain.Currency
	ToCurrency   domain.Currency
	Rate         decimal.Decimal
}

type Conversion struct {
	SourceAmount int64
	DestAmount   int64
	Rate         decimal.Decimal
}

// RateService converts amounts using rates published by an external source keyed by
// base currency.
type RateService struct {
	ratesURL   string
	httpClient *http.Client
}

func NewRateService(ratesURL string, timeout time.Duration) *RateService {
	return &RateService{
		ratesURL:   ratesURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ratesResponse struct {
	Rates map[string]decimal.Decimal `json:"rates"`
}

func (s *RateService) GetRate(ctx context.Context, from, to domain.Currency) (*Quote, error) {
	if !from.IsValid() || !to.IsValid() {
		return nil, fmt.Errorf("GetRate: invalid currency pair %s/%s: %w", from, to, domain.ErrInvalidCurrency)
	}

	if from == to {
		return &Quote{FromCurrency: from, ToCurrency: to, Rate: decimal.NewFromInt(1)}, nil
	}

	rates, err := s.fetchRates(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("GetRate: %w", err)
	}

	rate, ok := rates[string(to)]
	if !ok || !rate.IsPositive() {
		return nil, fmt.Errorf("GetRate: no rate for %s/%s: %w", from, to, domain.ErrConversion)
	}

	return &Quote{FromCurrency: from, ToCurrency: to, Rate: rate}, nil
}

// Convert turns amount (minor units of from) into minor units of to, rounding half
// away from zero.
func (s *RateService) Convert(ctx context.Context, amount int64, from, to domain.Currency) (*Conversion, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("Convert: %w", domain.ErrInvalidAmount)
	}

	quote, err := s.GetRate(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("Convert: %w", err)
	}

	if from == to {
		return &Conversion{SourceAmount: amount, DestAmount: amount, Rate: quote.Rate}, nil
	}

	dest, err := applyRate(amount, from, to, quote.Rate)
	if err != nil {
		return nil, fmt.Errorf("Convert: %w", err)
	}

	return &Conversion{
		SourceAmount: amount,
		DestAmount:   dest,
		Rate:         quote.Rate,
	}, nil
}

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// applyRate rejects results that do not fit in int64 minor units.
func applyRate(amount int64, from, to domain.Currency, rate decimal.Decimal) (int64, error) {
	dest := decimal.NewFromInt(amount).
		Mul(rate).
		Shift(to.MinorUnits() - from.MinorUnits()).
		Round(0)
	if dest.GreaterThan(maxMinorUnits) {
		return 0, fmt.Errorf("applyRate: %s %s exceeds the representable amount: %w", dest, to, domain.ErrInvalidAmount)
	}
	if dest.IntPart() < 1 {
		return 1, nil
	}
	return dest.IntPart(), nil
}

func (s *RateService) fetchRates(ctx context.Context, base domain.Currency) (map[string]decimal.Decimal, error) {
	u, err := url.Parse(s.ratesURL)
	if err != nil {
		return nil, fmt.Errorf("fetchRates: parse url: %v: %w", err, domain.ErrConversion)
	}
	q := u.Query()
	q.Set("base", string(base))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetchRates: build request: %v: %w", err, domain.ErrConversion)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetchRates: send: %v: %w", err, domain.ErrConversion)
	}
	defer resp.Body.Close()

	logging.FromContext(ctx).Debug("rate source response received",
		"base", base,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetchRates: unexpected status %d: %w", resp.StatusCode, domain.ErrConversion)
	}

	var body ratesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("fetchRates: decode: %v: %w", err, domain.ErrConversion)
	}
	return body.Rates, nil
}
