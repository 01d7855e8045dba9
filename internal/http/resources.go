package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	httpmiddleware "github.com/saudemunicipal/console/internal/http/middleware"
	"github.com/saudemunicipal/console/internal/records"
	"github.com/saudemunicipal/console/internal/resource"
	"github.com/saudemunicipal/console/internal/territory"
)

// CreateResource grava novo registro na coleção da rota.
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if err := h.records.Create(r.Context(), req); err != nil {
		h.handleRecordError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// UpdateResource atualiza o registro {id}.
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	req.ID = chi.URLParam(r, "id")
	if err := h.records.Update(r.Context(), req); err != nil {
		h.handleRecordError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteResource remove o registro {id}.
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	if err := h.records.Delete(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id")); err != nil {
		h.handleRecordError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeRecord lê o corpo do formulário. A seleção territorial do corpo tem
// precedência sobre a dos cabeçalhos.
func decodeRecord(w http.ResponseWriter, r *http.Request) (records.Request, bool) {
	var body map[string]any
	if !decodeJSON(w, r, &body) {
		return records.Request{}, false
	}

	sel := httpmiddleware.GetSelection(r.Context())
	if v, ok := body[territory.FieldCityHall].(string); ok {
		sel.CityHallID = strings.TrimSpace(v)
		sel.HealthUnitID = ""
	}
	if v, ok := body[territory.FieldHealthUnit].(string); ok {
		sel.HealthUnitID = strings.TrimSpace(v)
	}

	return records.Request{
		Collection: chi.URLParam(r, "collection"),
		Selection:  sel,
		Body:       body,
	}, true
}

func (h *Handler) handleRecordError(w http.ResponseWriter, err error) {
	var scopeErr *territory.ScopeError
	switch {
	case errors.Is(err, records.ErrUnknownCollection):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, records.ErrMissingID):
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, records.ErrNotAuthenticated):
		WriteError(w, http.StatusUnauthorized, "AUTH", err.Error(), nil)
	case errors.Is(err, records.ErrForbidden):
		WriteError(w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
	case errors.As(err, &scopeErr):
		writeScopeError(w, scopeErr)
	case errors.Is(err, territory.ErrCatalogFetch):
		WriteError(w, http.StatusServiceUnavailable, "CATALOG", "catálogo territorial indisponível", nil)
	case errors.Is(err, records.ErrRemote):
		msg := resource.ServerMessage(err)
		if msg == "" {
			msg = records.ErrRemote.Error()
		}
		WriteError(w, http.StatusBadGateway, "REMOTE", msg, nil)
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
	}
}
