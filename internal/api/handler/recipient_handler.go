package handler

import (
	"net/http"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/service"
)

type RecipientHandler struct {
	svc *service.NotificationService
}

func NewRecipientHandler(svc *service.NotificationService) *RecipientHandler {
	return &RecipientHandler{svc: svc}
}

// Create handles POST /api/v1/recipients
func (h *RecipientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRecipientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rc, err := h.svc.CreateRecipient(r.Context(), req)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rc)
}
