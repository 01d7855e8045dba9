package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/saudemunicipal/console/internal/model"
	"github.com/saudemunicipal/console/internal/rbac"
)

type contextKey string

const (
	ContextKeySubject   contextKey = "subject"
	ContextKeyRole      contextKey = "role"
	ContextKeyProfile   contextKey = "profile"
	ContextKeySelection contextKey = "selection"
)

// SessionReader expõe o usuário autenticado e a checagem de permissão.
type SessionReader interface {
	User() (model.UserProfile, bool)
	Can(action string) bool
}

// RequireSession exige sessão autenticada e injeta o perfil no contexto.
func RequireSession(sessions SessionReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := sessions.User()
			if !ok {
				writeError(w, http.StatusUnauthorized, "AUTH", "sessão não autenticada")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubject, user.ID)
			ctx = context.WithValue(ctx, ContextKeyRole, user.Role)
			ctx = context.WithValue(ctx, ContextKeyProfile, user)
			markUser(ctx, user.ID, user.Role.String())

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission libera a rota quando a sessão possui ao menos uma das
// permissões informadas.
func RequirePermission(sessions SessionReader, permissions ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, p := range permissions {
				if sessions.Can(p) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "FORBIDDEN", "acesso negado")
		})
	}
}

// GetSubject recupera subject do contexto.
func GetSubject(ctx context.Context) string {
	val, _ := ctx.Value(ContextKeySubject).(string)
	return val
}

// GetRole recupera o papel do contexto.
func GetRole(ctx context.Context) rbac.Role {
	val, _ := ctx.Value(ContextKeyRole).(rbac.Role)
	return val
}

// GetProfile recupera o perfil autenticado do contexto.
func GetProfile(ctx context.Context) (model.UserProfile, bool) {
	val, ok := ctx.Value(ContextKeyProfile).(model.UserProfile)
	return val, ok
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
