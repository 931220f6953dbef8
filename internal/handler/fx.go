package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/josh-kwaku/interbank-settlement/internal/domain"
	"github.com/josh-kwaku/interbank-settlement/internal/fx"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
)

type fxService interface {
	GetRate(ctx context.Context, from, to domain.Currency) (*fx.Quote, error)
}

type FXHandler struct {
	fx fxService
}

func NewFXHandler(fxSvc fxService) *FXHandler {
	return &FXHandler{fx: fxSvc}
}

type fxRateResponse struct {
	FromCurrency string `json:"fromCurrency"`
	ToCurrency   string `json:"toCurrency"`
	Rate         string `json:"rate"`
	Timestamp    string `json:"timestamp"`
}

func (h *FXHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	from := domain.NormalizeCurrency(r.URL.Query().Get("from"))
	to := domain.NormalizeCurrency(r.URL.Query().Get("to"))

	if fields := validateFXRateParams(from, to); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	quote, err := h.fx.GetRate(r.Context(), from, to)
	if err != nil {
		logging.FromContext(r.Context()).Warn("fx rate lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, fxRateResponse{
		FromCurrency: string(quote.FromCurrency),
		ToCurrency:   string(quote.ToCurrency),
		Rate:         quote.Rate.String(),
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	})
}

func validateFXRateParams(from, to domain.Currency) []FieldError {
	var errs []FieldError

	if from == "" {
		errs = append(errs, FieldError{Field: "from", Message: "required"})
	} else if !from.IsValid() {
		errs = append(errs, FieldError{Field: "from", Message: "must be a 3-letter ISO 4217 code"})
	}

	if to == "" {
		errs = append(errs, FieldError{Field: "to", Message: "required"})
	} else if !to.IsValid() {
		errs = append(errs, FieldError{Field: "to", Message: "must be a 3-letter ISO 4217 code"})
	}

	return errs
}
