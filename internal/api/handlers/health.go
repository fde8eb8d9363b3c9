// health.go — liveness и readiness пробы.
package handlers

import (
	"log/slog"
	"net/http"
)

// healthResponse — тело ответа health-проб.
type healthResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// healthLive — GET /health/live: процесс жив.
func (h *APIHandler) healthLive(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// healthReady — GET /health/ready: document store отвечает.
func (h *APIHandler) healthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Ping(r.Context()); err != nil {
		h.logger.Warn("Readiness-проба не пройдена", slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status: "not_ready",
			Reason: "document store недоступен",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
