package handler

import (
	"context"
	"net/http"
)

type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

type UndeliveredCounter interface {
	CountUndelivered(ctx context.Context, maxRetries int) (int, error)
}

// StatsHandler serves a human-readable JSON backlog snapshot. Raw
// Prometheus metrics are available at /metrics.
type StatsHandler struct {
	notifications PendingCounter
	outbox        UndeliveredCounter
	maxRetries    int
}

func NewStatsHandler(notifications PendingCounter, outbox UndeliveredCounter, maxRetries int) *StatsHandler {
	return &StatsHandler{notifications: notifications, outbox: outbox, maxRetries: maxRetries}
}

// GetStats handles GET /api/v1/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	pending, err := h.notifications.CountPending(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	undelivered, err := h.outbox.CountUndelivered(r.Context(), h.maxRetries)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"pending_notifications": pending,
		"undelivered_entries":   undelivered,
	})
}
