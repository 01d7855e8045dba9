package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/saudemunicipal/console/internal/session"
)

type sessionResponse struct {
	session.Snapshot
	Notice string `json:"notice,omitempty"`
}

// GetSession devolve a sessão atual; o aviso de expiração sai uma única vez.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	resp := sessionResponse{Snapshot: h.sessions.Snapshot()}
	if h.sessions.ConsumeExpiredNotice() {
		resp.Notice = "session_expired"
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Login autentica com e-mail ou CPF.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}

	if !decodeJSON(w, r, &payload) {
		return
	}

	if strings.TrimSpace(payload.Identifier) == "" || payload.Password == "" {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "identificador e senha são obrigatórios", nil)
		return
	}

	if _, err := h.sessions.Login(r.Context(), payload.Identifier, payload.Password); err != nil {
		h.handleAuthError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, sessionResponse{Snapshot: h.sessions.Snapshot()})
}

// Logout encerra a sessão; sempre responde sucesso.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context())
	WriteJSON(w, http.StatusOK, sessionResponse{Snapshot: h.sessions.Snapshot()})
}

// Refresh recarrega perfil e permissões.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Refresh(r.Context())
	if err != nil {
		resp := sessionResponse{Snapshot: snap}
		if h.sessions.ConsumeExpiredNotice() {
			resp.Notice = "session_expired"
		}
		WriteError(w, http.StatusUnauthorized, "AUTH", "sessão expirada", resp)
		return
	}
	WriteJSON(w, http.StatusOK, sessionResponse{Snapshot: snap})
}

// Can responde se a ação é permitida para a sessão atual.
func (h *Handler) Can(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	WriteJSON(w, http.StatusOK, map[string]any{
		"action":  action,
		"allowed": h.sessions.Can(action),
	})
}

func (h *Handler) handleAuthError(w http.ResponseWriter, err error) {
	var authErr *session.AuthError
	switch {
	case errors.As(err, &authErr) && errors.Is(err, session.ErrAuthUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", authErr.Message, nil)
	case errors.As(err, &authErr) && errors.Is(err, session.ErrTokenPersist):
		WriteError(w, http.StatusInternalServerError, "AUTH", authErr.Message, nil)
	case errors.As(err, &authErr):
		WriteError(w, http.StatusUnauthorized, "AUTH", authErr.Message, nil)
	case errors.Is(err, session.ErrSuperseded):
		WriteError(w, http.StatusConflict, "SUPERSEDED", "login substituído por outra tentativa", nil)
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
	}
}
