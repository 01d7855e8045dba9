package resource

import (
	"context"
	"strings"
)

type tokenKey struct{}

// WithToken fixa o bearer token para as chamadas feitas com este contexto,
// ignorando o TokenSource do cliente. Usado enquanto a sessão ainda não
// persistiu o token recém-emitido.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, strings.TrimSpace(token))
}

// TokenFromContext devolve o token fixado por WithToken, se houver.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey{}).(string)
	return token, ok
}
