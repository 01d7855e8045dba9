package rbac

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrPermissionFetch marca falha ao consultar /rbac/my-permissions.
var ErrPermissionFetch = errors.New("falha ao obter permissões")

// Source indica de onde veio o conjunto efetivo.
type Source string

const (
	SourceServer   Source = "server"
	SourceFallback Source = "fallback"
)

// Resolution é o resultado etiquetado da resolução: permite distinguir
// "o servidor respondeu" de "usamos o catálogo padrão".
type Resolution struct {
	Permissions Set
	Source      Source
	Err         error
}

// Fallback informa se o catálogo estático foi usado.
func (r Resolution) Fallback() bool {
	return r.Source == SourceFallback
}

// Resolve calcula o conjunto efetivo. fetchErr != nil significa falha de
// transporte/servidor; uma lista vazia com fetchErr nil é uma resposta
// legítima de "sem permissões" e não aciona o fallback.
func Resolve(role Role, server []string, fetchErr error) Resolution {
	if fetchErr != nil {
		log.Warn().Err(fetchErr).Str("role", role.String()).Msg("permissões indisponíveis, usando catálogo padrão")
		return Resolution{
			Permissions: DefaultSet(role),
			Source:      SourceFallback,
			Err:         errors.Join(ErrPermissionFetch, fetchErr),
		}
	}
	return Resolution{Permissions: NewSet(server...), Source: SourceServer}
}
