package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Subscribers   int    `json:"subscribers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.hub != nil {
		resp.Subscribers = s.hub.Clients()
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := defaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxAlertLimit)
	}

	alerts, err := s.alerts.ListAlerts(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list alerts", zap.Error(err))
		http.Error(w, "Failed to list alerts", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, alerts)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
