package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AyusGup/Hive-Automation/internal/datastore"
)

// PnlHandler はPnL関連のHTTPリクエストを処理します。
type PnlHandler struct {
	repo datastore.Store
	pair string
}

// NewPnlHandler は新しいPnlHandlerを作成します。
func NewPnlHandler(repo datastore.Store, pair string) *PnlHandler {
	return &PnlHandler{repo: repo, pair: pair}
}

// RegisterRoutes はchiルーターにPnL関連のルートを登録します。
func (h *PnlHandler) RegisterRoutes(r chi.Router) {
	r.Get("/pnl/latest_metrics", h.GetLatestPnlMetrics)
	r.Get("/pnl/last_prices", h.GetLastOrderPrices)
}

// GetLatestPnlMetrics は最新のパフォーマンス指標を取得します。
func (h *PnlHandler) GetLatestPnlMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.repo.FetchLatestPerformanceMetrics(r.Context())
	if err != nil {
		http.Error(w, "Failed to fetch latest PnL metrics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, metrics)
}

// GetLastOrderPrices returns the prices of the latest own buy and sell.
func (h *PnlHandler) GetLastOrderPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.repo.FetchLastOrderPrices(r.Context(), h.pair)
	if err != nil {
		http.Error(w, "Failed to fetch last order prices", http.StatusInternalServerError)
		return
	}
	writeJSON(w, prices)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response to JSON", http.StatusInternalServerError)
	}
}
