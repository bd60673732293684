package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/ricirt/pigeonpost/internal/api/middleware"
	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/service"
)

// NotificationHandler exposes the trigger interface and queue inspection.
type NotificationHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewNotificationHandler(svc *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// enqueueBody is the wire form of domain.EnqueueRequest; the delay is given
// in whole seconds.
type enqueueBody struct {
	SourceType      string     `json:"source_type"`
	SourceID        string     `json:"source_id,omitempty"`
	RenderMethod    string     `json:"render_method,omitempty"`
	RecipientID     *string    `json:"recipient_id,omitempty"`
	RecipientMethod *string    `json:"recipient_method,omitempty"`
	ScheduledFor    *time.Time `json:"scheduled_for,omitempty"`
	DeferForSeconds *int64     `json:"defer_for_seconds,omitempty"`
}

func (b enqueueBody) request() domain.EnqueueRequest {
	req := domain.EnqueueRequest{
		Source:          domain.SourceRef{Type: b.SourceType, ID: b.SourceID},
		RenderMethod:    b.RenderMethod,
		RecipientID:     b.RecipientID,
		RecipientMethod: b.RecipientMethod,
		ScheduledFor:    b.ScheduledFor,
	}
	if b.DeferForSeconds != nil {
		d := time.Duration(*b.DeferForSeconds) * time.Second
		req.DeferFor = &d
	}
	return req
}

// Enqueue handles POST /api/v1/notifications.
// 201 when a notification was created, 200 when a pending one was rescheduled.
func (h *NotificationHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var body enqueueBody
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	n, created, err := h.svc.Enqueue(r.Context(), body.request())
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("enqueue failed", zap.Error(err))
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, n)
}

// GetByID handles GET /api/v1/notifications/{id}
func (h *NotificationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// List handles GET /api/v1/notifications?pending=&source_type=&page=&limit=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.NotificationFilter{Page: intParam(q.Get("page")), Limit: intParam(q.Get("limit"))}
	if b, ok := boolParam(q.Get("pending")); ok {
		filter.Pending = &b
	}
	if st := q.Get("source_type"); st != "" {
		filter.SourceType = &st
	}

	notifications, total, err := h.svc.List(r.Context(), filter)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Error("list notifications failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  notifications,
		"total": total,
	})
}

// CancelAll handles POST /api/v1/notifications/cancel-all, the panic stop.
func (h *NotificationHandler) CancelAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.CancelAllPending(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}
	apimw.Logger(r.Context(), h.logger).Warn("panic stop requested over HTTP", zap.Int64("cancelled", n))
	respondJSON(w, http.StatusOK, map[string]int64{"cancelled": n})
}

func intParam(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func boolParam(s string) (bool, bool) {
	if s == "" {
		return false, false
	}
	b, err := strconv.ParseBool(s)
	return b, err == nil
}
