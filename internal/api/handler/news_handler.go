package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/ricirt/pigeonpost/internal/api/middleware"
	"github.com/ricirt/pigeonpost/internal/news"
)

type NewsHandler struct {
	svc    *news.Service
	logger *zap.Logger
}

func NewNewsHandler(svc *news.Service, logger *zap.Logger) *NewsHandler {
	return &NewsHandler{svc: svc, logger: logger}
}

// Save handles POST /api/v1/news
func (h *NewsHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req news.SaveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	it, err := h.svc.Save(r.Context(), req)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("save news failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, it)
}

// Subscribe handles PUT /api/v1/news/subscriptions/{recipientID}
func (h *NewsHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subscribed bool `json:"subscribed"`
	}
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.svc.Subscribe(r.Context(), chi.URLParam(r, "recipientID"), body.Subscribed); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
