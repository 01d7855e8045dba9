package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError representa resposta de erro HTTP da API de recursos.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("resource api: status %d", e.Status)
	}
	return fmt.Sprintf("resource api: status %d: %s", e.Status, e.Message)
}

// IsUnauthorized informa se a API rejeitou o token ou as credenciais.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// ServerMessage devolve a mensagem enviada pelo servidor, se houver.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// extractMessage entende os formatos {"message":...}, {"error":"..."} e
// {"error":{"message":...}}.
func extractMessage(raw []byte) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(payload.Message); msg != "" {
		return msg
	}
	if len(payload.Error) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(payload.Error, &asString); err == nil {
		return strings.TrimSpace(asString)
	}
	var asObject struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Error, &asObject); err == nil {
		return strings.TrimSpace(asObject.Message)
	}
	return ""
}
