package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	apimw "github.com/ricirt/pigeonpost/internal/api/middleware"
	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/service"
)

// OutboxHandler exposes staged deliveries and ad-hoc sends.
type OutboxHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewOutboxHandler(svc *service.NotificationService, logger *zap.Logger) *OutboxHandler {
	return &OutboxHandler{svc: svc, logger: logger}
}

// outboxView hides the payload blob.
type outboxView struct {
	ID             string     `json:"id"`
	NotificationID *string    `json:"notification_id,omitempty"`
	RecipientID    string     `json:"recipient_id"`
	Succeeded      bool       `json:"succeeded"`
	FailureCount   int        `json:"failure_count"`
	SentAt         *time.Time `json:"sent_at"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func viewOf(e *domain.OutboxEntry) outboxView {
	return outboxView{
		ID:             e.ID,
		NotificationID: e.NotificationID,
		RecipientID:    e.RecipientID,
		Succeeded:      e.Succeeded,
		FailureCount:   e.FailureCount,
		SentAt:         e.SentAt,
		LastError:      e.LastError,
		CreatedAt:      e.CreatedAt,
	}
}

// List handles GET /api/v1/outbox?notification_id=&succeeded=&page=&limit=
func (h *OutboxHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OutboxFilter{Page: intParam(q.Get("page")), Limit: intParam(q.Get("limit"))}
	if id := q.Get("notification_id"); id != "" {
		filter.NotificationID = &id
	}
	if b, ok := boolParam(q.Get("succeeded")); ok {
		filter.Succeeded = &b
	}

	entries, total, err := h.svc.ListOutbox(r.Context(), filter)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Error("list outbox failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list outbox")
		return
	}
	views := make([]outboxView, len(entries))
	for i, e := range entries {
		views[i] = viewOf(e)
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": views, "total": total})
}

type sendNowBody struct {
	RecipientID string         `json:"recipient_id"`
	Message     domain.Message `json:"message"`
}

// SendNow handles POST /api/v1/outbox
func (h *OutboxHandler) SendNow(w http.ResponseWriter, r *http.Request) {
	var body sendNowBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	e, err := h.svc.SendNow(r.Context(), body.RecipientID, &body.Message)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("ad-hoc send failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, viewOf(e))
}
