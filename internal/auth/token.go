package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrOpaqueToken indica que o token não é um JWT legível; só o servidor pode validá-lo.
	ErrOpaqueToken = errors.New("token opaco")
)

// Claims representa as informações lidas do token de acesso emitido pela API.
type Claims struct {
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenInfo resume o que o console consegue saber localmente sobre o token.
type TokenInfo struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// HasExpiry informa se o token carrega claim exp.
func (i TokenInfo) HasExpiry() bool {
	return !i.ExpiresAt.IsZero()
}

// ExpiredAt informa se o token já estava expirado no instante informado.
func (i TokenInfo) ExpiredAt(now time.Time) bool {
	return i.HasExpiry() && !now.Before(i.ExpiresAt)
}

// Inspect lê as claims sem verificar assinatura. O console não possui o segredo;
// a validação real continua sendo feita pela API em /auth/me.
func Inspect(token string) (TokenInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return TokenInfo{}, ErrOpaqueToken
	}

	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, ErrOpaqueToken
	}

	info := TokenInfo{Subject: claims.Subject, Role: claims.Role}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return info, nil
}

// BearerHeader monta o valor do header Authorization.
func BearerHeader(token string) string {
	return "Bearer " + strings.TrimSpace(token)
}
