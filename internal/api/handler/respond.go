package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ricirt/pigeonpost/internal/domain"
	"github.com/ricirt/pigeonpost/internal/news"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrRecipientNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConcurrentRun):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnknownSourceType),
		errors.Is(err, domain.ErrUnknownRenderMethod),
		errors.Is(err, domain.ErrUnknownRecipientFunc),
		errors.Is(err, domain.ErrSourceIDRequired),
		errors.Is(err, domain.ErrBlankSourceID),
		errors.Is(err, domain.ErrAmbiguousRecipient),
		errors.Is(err, domain.ErrAmbiguousSchedule),
		errors.Is(err, domain.ErrNegativeDefer),
		errors.Is(err, domain.ErrInvalidRecipient),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, news.ErrEmptySubject):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrTransportUnavailable):
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
