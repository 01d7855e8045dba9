package rbac

import (
	"errors"
	"strings"
)

// Role é o papel do usuário no console. Conjunto fechado: adicionar um papel
// exige atualizar Catalog e o validador territorial.
type Role int

const (
	RoleUnknown Role = iota
	RoleMaster
	RoleAdmin
	RoleDoctor
	RolePatient
)

// ErrUnknownRole indica papel não reconhecido vindo da API.
var ErrUnknownRole = errors.New("papel desconhecido")

// Roles lista os papéis conhecidos em ordem de privilégio.
var Roles = []Role{RoleMaster, RoleAdmin, RoleDoctor, RolePatient}

// ParseRole converte o texto enviado pela API.
func ParseRole(raw string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "MASTER":
		return RoleMaster, nil
	case "ADMIN":
		return RoleAdmin, nil
	case "DOCTOR":
		return RoleDoctor, nil
	case "PATIENT":
		return RolePatient, nil
	default:
		return RoleUnknown, ErrUnknownRole
	}
}

func (r Role) String() string {
	switch r {
	case RoleMaster:
		return "MASTER"
	case RoleAdmin:
		return "ADMIN"
	case RoleDoctor:
		return "DOCTOR"
	case RolePatient:
		return "PATIENT"
	default:
		return "UNKNOWN"
	}
}

// Valid informa se o papel é um dos conhecidos.
func (r Role) Valid() bool {
	switch r {
	case RoleMaster, RoleAdmin, RoleDoctor, RolePatient:
		return true
	default:
		return false
	}
}

// MarshalText permite serializar o papel como texto em JSON.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText aceita papéis desconhecidos como RoleUnknown em vez de falhar,
// para que um perfil com papel novo ainda seja carregado com permissões vazias.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, _ := ParseRole(string(text))
	*r = parsed
	return nil
}
