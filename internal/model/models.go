package model

import (
	"errors"
	"strings"

	"github.com/saudemunicipal/console/internal/rbac"
)

var (
	// ErrAdminWithoutCityHall indica perfil ADMIN sem prefeitura vinculada.
	ErrAdminWithoutCityHall = errors.New("administrador sem prefeitura vinculada")
	// ErrMissingProfileID indica resposta de perfil sem identificador.
	ErrMissingProfileID = errors.New("perfil sem identificador")
)

// UserProfile representa o usuário autenticado devolvido por /auth/me.
type UserProfile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email"`
	CPF          string    `json:"cpf"`
	Role         rbac.Role `json:"role"`
	CityID       string    `json:"city_id,omitempty"`
	HealthUnitID string    `json:"health_unit_id,omitempty"`
	Permissions  rbac.Set  `json:"-"`
}

// Normalize aplica as regras de vínculo territorial do perfil: MASTER e
// PATIENT nunca carregam unidade de saúde e ADMIN sempre tem prefeitura.
func (p UserProfile) Normalize() (UserProfile, error) {
	p.ID = strings.TrimSpace(p.ID)
	p.CityID = strings.TrimSpace(p.CityID)
	p.HealthUnitID = strings.TrimSpace(p.HealthUnitID)
	p.Email = strings.TrimSpace(p.Email)

	if p.ID == "" {
		return UserProfile{}, ErrMissingProfileID
	}

	switch p.Role {
	case rbac.RoleMaster, rbac.RolePatient:
		p.HealthUnitID = ""
	case rbac.RoleAdmin:
		if p.CityID == "" {
			return UserProfile{}, ErrAdminWithoutCityHall
		}
	case rbac.RoleDoctor:
	default:
		p.HealthUnitID = ""
	}
	return p, nil
}

// CityHall representa a prefeitura, tenant territorial de nível superior.
type CityHall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	City  string `json:"city"`
	State string `json:"state"`
}

// HealthUnit representa a unidade de saúde, sempre filha de uma prefeitura.
type HealthUnit struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CityHallID string `json:"city_hall_id"`
}
