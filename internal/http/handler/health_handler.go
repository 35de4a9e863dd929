package handler

import (
	"net/http"
	"time"
)

// DefaultHealthMaxAge is how long the loop may go without a completed
// iteration before /health reports it as stale.
const DefaultHealthMaxAge = 10 * time.Minute

// Health is the body of GET /health.
type Health struct {
	Status     string    `json:"status"` // "ok", "starting" or "stale"
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
	Iterations int       `json:"iterations"`
	Errors     int       `json:"errors"`
}

// HealthHandler serves GET /health for Docker or other supervisors. Without a
// reporter it always answers ok. With one it answers 503 once the trading
// loop has not completed an iteration for longer than maxAge; a loop that has
// not finished its first iteration yet is "starting" and still healthy.
func HealthHandler(src StatusReporter, maxAge time.Duration, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		h := Health{Status: "ok"}
		if src != nil {
			st := src.Status()
			h.UpdatedAt, h.Iterations, h.Errors = st.UpdatedAt, st.Iterations, st.Errors
			switch {
			case st.UpdatedAt.IsZero():
				h.Status = "starting"
			case now().Sub(st.UpdatedAt) > maxAge:
				h.Status = "stale"
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				writeJSON(w, h)
				return
			}
		}
		writeJSON(w, h)
	}
}
