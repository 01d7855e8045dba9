package rbac

import (
	"sort"
	"strings"
)

// Nomes de permissão no formato <recurso>:<ação>.
const (
	CityHallRead   = "cityhall:read"
	CityHallCreate = "cityhall:create"
	CityHallUpdate = "cityhall:update"
	CityHallDelete = "cityhall:delete"

	HealthUnitRead   = "healthunit:read"
	HealthUnitCreate = "healthunit:create"
	HealthUnitUpdate = "healthunit:update"
	HealthUnitDelete = "healthunit:delete"

	DoctorRead   = "doctor:read"
	DoctorCreate = "doctor:create"
	DoctorUpdate = "doctor:update"
	DoctorDelete = "doctor:delete"

	PatientRead   = "patient:read"
	PatientCreate = "patient:create"
	PatientUpdate = "patient:update"
	PatientDelete = "patient:delete"

	UserRead   = "user:read"
	UserCreate = "user:create"
	UserUpdate = "user:update"
	UserDelete = "user:delete"

	MedicalRecordRead   = "medical_record:read"
	MedicalRecordCreate = "medical_record:create"
	MedicalRecordUpdate = "medical_record:update"

	RBACManage = "rbac:manage"
)

// Permission monta o nome de permissão para recurso e ação.
func Permission(resource, action string) string {
	return strings.ToLower(strings.TrimSpace(resource)) + ":" + strings.ToLower(strings.TrimSpace(action))
}

// Set é o conjunto efetivo de permissões de uma sessão. Valor imutável após
// construído; o zero value nega tudo.
type Set struct {
	items map[string]struct{}
}

// NewSet deduplica os nomes informados, guardando-os exatamente como vieram.
func NewSet(names ...string) Set {
	items := make(map[string]struct{}, len(names))
	for _, name := range names {
		items[name] = struct{}{}
	}
	return Set{items: items}
}

// Can é o gate de permissão: teste de pertinência puro, nega ações desconhecidas
// e ações em branco.
func (s Set) Can(action string) bool {
	if strings.TrimSpace(action) == "" || len(s.items) == 0 {
		return false
	}
	_, ok := s.items[action]
	return ok
}

// Len devolve a quantidade de permissões.
func (s Set) Len() int {
	return len(s.items)
}

// List devolve as permissões em ordem lexicográfica.
func (s Set) List() []string {
	out := make([]string, 0, len(s.items))
	for name := range s.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Equal compara dois conjuntos.
func (s Set) Equal(other Set) bool {
	if len(s.items) != len(other.items) {
		return false
	}
	for name := range s.items {
		if _, ok := other.items[name]; !ok {
			return false
		}
	}
	return true
}

// Can é a forma funcional do gate, útil para quem só tem o conjunto em mãos.
func Can(permissions Set, action string) bool {
	return permissions.Can(action)
}
