package http

import (
	"errors"
	"net/http"
	"strings"

	httpmiddleware "github.com/saudemunicipal/console/internal/http/middleware"
	"github.com/saudemunicipal/console/internal/metrics"
	"github.com/saudemunicipal/console/internal/model"
	"github.com/saudemunicipal/console/internal/rbac"
	"github.com/saudemunicipal/console/internal/territory"
)

// noticeCatalogUnavailable acompanha listas vazias por falha de carga.
const noticeCatalogUnavailable = "catalog_unavailable"

type listResponse[T any] struct {
	Items  []T    `json:"items"`
	Notice string `json:"notice,omitempty"`
}

type optionsResponse struct {
	territory.Options
	Selection territory.Selection `json:"selection"`
	Notice    string              `json:"notice,omitempty"`
}

// ListCityHalls lista as prefeituras visíveis para o papel atual.
func (h *Handler) ListCityHalls(w http.ResponseWriter, r *http.Request) {
	profile, _ := httpmiddleware.GetProfile(r.Context())

	halls, err := h.catalogs.ListCityHalls(r.Context())
	if err != nil {
		metrics.RecordCatalogFailure(territory.FieldCityHall)
		WriteJSON(w, http.StatusOK, listResponse[model.CityHall]{Items: []model.CityHall{}, Notice: noticeCatalogUnavailable})
		return
	}

	WriteJSON(w, http.StatusOK, listResponse[model.CityHall]{Items: territory.AllowedCityHalls(profile.Role, profile.CityID, halls)})
}

// ListHealthUnits lista as unidades da prefeitura selecionada.
func (h *Handler) ListHealthUnits(w http.ResponseWriter, r *http.Request) {
	profile, _ := httpmiddleware.GetProfile(r.Context())
	cityHallID := effectiveCityHall(profile, httpmiddleware.GetSelection(r.Context()))
	if cityHallID == "" {
		WriteJSON(w, http.StatusOK, listResponse[model.HealthUnit]{Items: []model.HealthUnit{}})
		return
	}

	units, err := h.catalogs.ListHealthUnits(r.Context(), cityHallID)
	if err != nil {
		metrics.RecordCatalogFailure(territory.FieldHealthUnit)
		WriteJSON(w, http.StatusOK, listResponse[model.HealthUnit]{Items: []model.HealthUnit{}, Notice: noticeCatalogUnavailable})
		return
	}

	WriteJSON(w, http.StatusOK, listResponse[model.HealthUnit]{Items: territory.AllowedHealthUnits(cityHallID, units)})
}

// TerritoryOptions devolve o estado dos seletores em cascata.
func (h *Handler) TerritoryOptions(w http.ResponseWriter, r *http.Request) {
	profile, _ := httpmiddleware.GetProfile(r.Context())
	sel := httpmiddleware.GetSelection(r.Context())

	catalog, err := territory.LoadCatalog(r.Context(), h.catalogs, effectiveCityHall(profile, sel))
	resp := optionsResponse{
		Options:   territory.OptionsFor(profile.Role, profile.CityID, sel, catalog),
		Selection: sel,
	}
	if err != nil {
		recordCatalogError(err)
		resp.Notice = noticeCatalogUnavailable
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ValidateSelection confere a seleção territorial de um formulário sem gravar.
func (h *Handler) ValidateSelection(w http.ResponseWriter, r *http.Request) {
	var payload territory.Selection
	if !decodeJSON(w, r, &payload) {
		return
	}

	profile, _ := httpmiddleware.GetProfile(r.Context())
	catalog, err := territory.LoadCatalog(r.Context(), h.catalogs, payload.CityHallID)
	if err != nil {
		recordCatalogError(err)
		if strings.TrimSpace(payload.HealthUnitID) != "" {
			WriteError(w, http.StatusServiceUnavailable, "CATALOG", "catálogo territorial indisponível", nil)
			return
		}
	}

	if err := territory.ValidateFor(profile.Role, profile.CityID, payload, catalog); err != nil {
		h.handleScopeError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (h *Handler) handleScopeError(w http.ResponseWriter, err error) {
	var scopeErr *territory.ScopeError
	if errors.As(err, &scopeErr) {
		metrics.RecordScopeRejection(string(scopeErr.Kind))
		writeScopeError(w, scopeErr)
		return
	}
	WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

func writeScopeError(w http.ResponseWriter, err *territory.ScopeError) {
	WriteError(w, http.StatusUnprocessableEntity, "SCOPE", err.Error(), map[string]string{
		"field": err.Field,
		"kind":  string(err.Kind),
	})
}

// effectiveCityHall limita papéis confinados à própria prefeitura.
func effectiveCityHall(profile model.UserProfile, sel territory.Selection) string {
	if profile.Role != rbac.RoleMaster {
		return strings.TrimSpace(profile.CityID)
	}
	return strings.TrimSpace(sel.CityHallID)
}

func recordCatalogError(err error) {
	var catErr *territory.CatalogError
	if errors.As(err, &catErr) {
		metrics.RecordCatalogFailure(catErr.Field)
	}
}
