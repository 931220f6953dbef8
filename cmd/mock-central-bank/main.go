package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	env "github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/interbank-settlement/internal/logging"
)

type config struct {
	Port   int    `env:"PORT" envDefault:"8081"`
	APIKey string `env:"REGISTRY_API_KEY" envDefault:"dev-key"`
	Banks  string `env:"MOCK_BANKS" envDefault:"[]"`
	AppEnv string `env:"APP_ENV" envDefault:"development"`
}

type bank struct {
	BankPrefix  string `json:"bankPrefix"`
	Name        string `json:"name"`
	TransferURL string `json:"transferUrl"`
	KeySetURL   string `json:"keySetUrl"`
}

// eurRates is quoted against EUR; other bases are derived by cross rate.
var eurRates = map[string]decimal.Decimal{
	"EUR": decimal.NewFromInt(1),
	"USD": decimal.RequireFromString("1.10"),
	"GBP": decimal.RequireFromString("0.86"),
	"JPY": decimal.RequireFromString("161.50"),
	"KWD": decimal.RequireFromString("0.33"),
}

func main() {
	cfg, err := env.ParseAs[config]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("mock-central-bank", "", "info", cfg.AppEnv)

	var banks []bank
	if err := json.Unmarshal([]byte(cfg.Banks), &banks); err != nil {
		slog.Error("MOCK_BANKS is not a JSON bank list", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /banks", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Api-Key") != cfg.APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid api key"})
			return
		}
		writeJSON(w, http.StatusOK, banks)
	})
	mux.HandleFunc("GET /rates", func(w http.ResponseWriter, r *http.Request) {
		base := r.URL.Query().Get("base")
		baseRate, ok := eurRates[base]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unknown base"})
			return
		}
		rates := make(map[string]decimal.Decimal, len(eurRates))
		for code, rate := range eurRates {
			rates[code] = rate.DivRound(baseRate, 8)
		}
		writeJSON(w, http.StatusOK, map[string]any{"base": base, "rates": rates})
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("mock central bank started", "addr", addr, "banks", len(banks))
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
