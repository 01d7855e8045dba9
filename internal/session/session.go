package session

import (
	"errors"
	"time"

	"github.com/saudemunicipal/console/internal/model"
	"github.com/saudemunicipal/console/internal/rbac"
)

// Status é o estado da sessão do console.
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	StatusExpired        Status = "expired"
	StatusError          Status = "error"
)

// Routable informa se o estado dá acesso às telas protegidas. Expired e Error
// são tratados como Anonymous para roteamento.
func (s Status) Routable() bool {
	return s == StatusAuthenticated
}

var (
	// ErrInvalidCredentials indica credenciais recusadas pela API.
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	// ErrAuthUnavailable indica que a API de autenticação não respondeu.
	ErrAuthUnavailable = errors.New("serviço de autenticação indisponível")
	// ErrTokenPersist indica falha ao gravar o token de forma durável.
	ErrTokenPersist = errors.New("não foi possível salvar a sessão")
	// ErrInvalidProfile indica perfil devolvido pela API fora das regras.
	ErrInvalidProfile = errors.New("perfil de usuário inválido")
	// ErrSessionExpired indica token armazenado recusado ou expirado.
	ErrSessionExpired = errors.New("sessão expirada")
	// ErrSuperseded indica que outra operação de sessão mais recente assumiu.
	ErrSuperseded = errors.New("operação de sessão substituída por outra mais recente")
)

// AuthError é o erro de login exibido ao usuário.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// state é o estado interno; token e user só existem juntos em Authenticated.
type state struct {
	status      Status
	token       string
	user        *model.UserProfile
	source      rbac.Source
	tokenExpiry time.Time
}

// Snapshot é a visão imutável da sessão entregue à UI e aos observadores.
type Snapshot struct {
	Status           Status             `json:"status"`
	User             *model.UserProfile `json:"user"`
	Permissions      []string           `json:"permissions"`
	PermissionSource rbac.Source        `json:"permission_source,omitempty"`
	TokenExpiresAt   *time.Time         `json:"token_expires_at,omitempty"`
}

// Authenticated informa se há sessão ativa.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

func (st state) snapshot() Snapshot {
	snap := Snapshot{Status: st.status, Permissions: []string{}}
	if st.user != nil {
		user := *st.user
		snap.User = &user
		snap.Permissions = user.Permissions.List()
		snap.PermissionSource = st.source
	}
	if !st.tokenExpiry.IsZero() {
		exp := st.tokenExpiry
		snap.TokenExpiresAt = &exp
	}
	return snap
}
