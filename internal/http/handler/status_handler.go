package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AyusGup/Hive-Automation/internal/datastore"
	"github.com/AyusGup/Hive-Automation/internal/trader"
)

// StatusReporter exposes the latest loop snapshot.
type StatusReporter interface {
	Status() trader.Status
}

// StatusHandler serves GET /status.
func StatusHandler(src StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, src.Status())
	}
}

// NewMux wires /health, /status and, when repo is non-nil, the PnL routes.
func NewMux(src StatusReporter, repo datastore.Store, pair string) chi.Router {
	r := chi.NewRouter()
	r.Get("/health", HealthHandler(src, DefaultHealthMaxAge, nil))
	if src != nil {
		r.Get("/status", StatusHandler(src))
	}
	if repo != nil {
		NewPnlHandler(repo, pair).RegisterRoutes(r)
	}
	return r
}
