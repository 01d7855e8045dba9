package territory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/saudemunicipal/console/internal/model"
	"github.com/saudemunicipal/console/internal/rbac"
)

var (
	// ErrMissingCityHall indica que a prefeitura não foi selecionada.
	ErrMissingCityHall = errors.New("prefeitura não selecionada")
	// ErrUnitNotInCityHall indica unidade de saúde fora da prefeitura escolhida.
	ErrUnitNotInCityHall = errors.New("unidade de saúde não pertence à prefeitura selecionada")
	// ErrCityHallOutOfScope indica prefeitura diferente da do usuário confinado.
	ErrCityHallOutOfScope = errors.New("prefeitura fora do escopo do usuário")
)

// Kind identifica o tipo de erro de escopo.
type Kind string

const (
	KindMissingCityHall    Kind = "MissingCityHall"
	KindUnitNotInCityHall  Kind = "UnitNotInCityHall"
	KindCityHallOutOfScope Kind = "CityHallOutOfScope"
)

// Campos do formulário aos quais o erro se refere.
const (
	FieldCityHall   = "city_hall_id"
	FieldHealthUnit = "health_unit_id"
)

// ScopeError bloqueia o envio e aponta o campo a ser destacado.
type ScopeError struct {
	Kind  Kind
	Field string
}

func (e *ScopeError) Error() string {
	return e.sentinel().Error()
}

// Is permite errors.Is(err, ErrMissingCityHall) etc.
func (e *ScopeError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *ScopeError) sentinel() error {
	switch e.Kind {
	case KindMissingCityHall:
		return ErrMissingCityHall
	case KindUnitNotInCityHall:
		return ErrUnitNotInCityHall
	case KindCityHallOutOfScope:
		return ErrCityHallOutOfScope
	default:
		return fmt.Errorf("erro de escopo %q", string(e.Kind))
	}
}

// Catalog é o snapshot somente leitura de prefeituras e unidades de uma tela.
type Catalog struct {
	CityHalls   []model.CityHall   `json:"city_halls"`
	HealthUnits []model.HealthUnit `json:"health_units"`
}

// Selection é a escolha territorial de um formulário; "" significa vazio.
type Selection struct {
	CityHallID   string `json:"city_hall_id"`
	HealthUnitID string `json:"health_unit_id"`
}

func (s Selection) normalized() Selection {
	return Selection{
		CityHallID:   strings.TrimSpace(s.CityHallID),
		HealthUnitID: strings.TrimSpace(s.HealthUnitID),
	}
}

// confined informa se o papel fica preso à própria prefeitura.
func confined(role rbac.Role) bool {
	switch role {
	case rbac.RoleMaster:
		return false
	case rbac.RoleAdmin, rbac.RoleDoctor, rbac.RolePatient:
		return true
	default:
		return true
	}
}

// AllowedCityHalls devolve as prefeituras selecionáveis. MASTER vê o catálogo
// inteiro na ordem recebida; os demais papéis só a própria prefeitura.
func AllowedCityHalls(role rbac.Role, ownCityID string, halls []model.CityHall) []model.CityHall {
	if !confined(role) {
		out := make([]model.CityHall, len(halls))
		copy(out, halls)
		return out
	}

	ownCityID = strings.TrimSpace(ownCityID)
	if ownCityID == "" {
		return []model.CityHall{}
	}
	for _, hall := range halls {
		if hall.ID == ownCityID {
			return []model.CityHall{hall}
		}
	}
	return []model.CityHall{}
}

// AllowedHealthUnits filtra as unidades da prefeitura selecionada. Sem
// prefeitura selecionada a lista é vazia e o seletor deve ficar desabilitado.
func AllowedHealthUnits(cityHallID string, units []model.HealthUnit) []model.HealthUnit {
	cityHallID = strings.TrimSpace(cityHallID)
	out := []model.HealthUnit{}
	if cityHallID == "" {
		return out
	}
	for _, unit := range units {
		if unit.CityHallID == cityHallID {
			out = append(out, unit)
		}
	}
	return out
}

// Validate é a pré-condição obrigatória de qualquer create/update territorial.
// Unidade ausente do catálogo também falha: o vínculo não pode ser confirmado.
func Validate(role rbac.Role, sel Selection, catalog Catalog) error {
	sel = sel.normalized()

	if role != rbac.RolePatient && sel.CityHallID == "" {
		return &ScopeError{Kind: KindMissingCityHall, Field: FieldCityHall}
	}

	if sel.HealthUnitID != "" {
		unit, ok := findUnit(catalog.HealthUnits, sel.HealthUnitID)
		if !ok || unit.CityHallID != sel.CityHallID {
			return &ScopeError{Kind: KindUnitNotInCityHall, Field: FieldHealthUnit}
		}
	}

	return nil
}

// ValidateFor aplica Validate e, para papéis confinados, exige que a
// prefeitura escolhida seja a do próprio usuário.
func ValidateFor(role rbac.Role, ownCityID string, sel Selection, catalog Catalog) error {
	if err := Validate(role, sel, catalog); err != nil {
		return err
	}
	sel = sel.normalized()
	if role == rbac.RolePatient && sel.CityHallID == "" {
		return nil
	}
	if confined(role) && sel.CityHallID != strings.TrimSpace(ownCityID) {
		return &ScopeError{Kind: KindCityHallOutOfScope, Field: FieldCityHall}
	}
	return nil
}

// DefaultSelection preenche a seleção inicial do formulário conforme o papel:
// ADMIN e DOCTOR já entram na própria prefeitura; MASTER escolhe explicitamente.
func DefaultSelection(profile model.UserProfile) Selection {
	switch profile.Role {
	case rbac.RoleAdmin, rbac.RoleDoctor:
		return Selection{CityHallID: profile.CityID, HealthUnitID: profile.HealthUnitID}.normalized()
	case rbac.RoleMaster, rbac.RolePatient:
		return Selection{}
	default:
		return Selection{}
	}
}

// Options descreve o estado dos seletores em cascata de um formulário.
type Options struct {
	CityHalls          []model.CityHall   `json:"city_halls"`
	HealthUnits        []model.HealthUnit `json:"health_units"`
	CityHallLocked     bool               `json:"city_hall_locked"`
	HealthUnitDisabled bool               `json:"health_unit_disabled"`
}

// OptionsFor calcula opções e travas dos seletores para a seleção atual.
func OptionsFor(role rbac.Role, ownCityID string, sel Selection, catalog Catalog) Options {
	sel = sel.normalized()
	halls := AllowedCityHalls(role, ownCityID, catalog.CityHalls)

	cityHallID := sel.CityHallID
	if confined(role) {
		cityHallID = ""
		if len(halls) == 1 {
			cityHallID = halls[0].ID
		}
	}

	units := AllowedHealthUnits(cityHallID, catalog.HealthUnits)
	return Options{
		CityHalls:          halls,
		HealthUnits:        units,
		CityHallLocked:     confined(role),
		HealthUnitDisabled: cityHallID == "",
	}
}

func findUnit(units []model.HealthUnit, id string) (model.HealthUnit, bool) {
	for _, unit := range units {
		if unit.ID == id {
			return unit, true
		}
	}
	return model.HealthUnit{}, false
}
