package handler

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"
)

type bankCounter interface {
	Len() int
}

type HealthHandler struct {
	db    *sql.DB
	banks bankCounter
}

func NewHealthHandler(db *sql.DB, banks bankCounter) *HealthHandler {
	return &HealthHandler{db: db, banks: banks}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness fails only on the database; an empty registry cache is reported but
// tolerated because the first lookup miss refreshes it.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	httpStatus := http.StatusOK

	if err := h.db.PingContext(r.Context()); err != nil {
		slog.Warn("readiness check failed: database unreachable", "error", err)
		dbStatus = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	registryStatus := "ok"
	if h.banks.Len() == 0 {
		registryStatus = "empty"
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]string{
			"database": dbStatus,
			"registry": registryStatus,
		},
	})
}
