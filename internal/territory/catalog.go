package territory

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saudemunicipal/console/internal/model"
)

// ErrCatalogFetch marca falha ao carregar prefeituras ou unidades.
var ErrCatalogFetch = errors.New("falha ao carregar catálogo territorial")

// CatalogError indica qual seletor ficou vazio por falha de carga.
type CatalogError struct {
	Field string
	Err   error
}

func (e *CatalogError) Error() string {
	return ErrCatalogFetch.Error() + " (" + e.Field + "): " + e.Err.Error()
}

func (e *CatalogError) Unwrap() []error {
	return []error{ErrCatalogFetch, e.Err}
}

// Fetcher é o subconjunto do cliente de recursos usado para o catálogo.
type Fetcher interface {
	ListCityHalls(ctx context.Context) ([]model.CityHall, error)
	ListHealthUnits(ctx context.Context, cityHallID string) ([]model.HealthUnit, error)
}

// LoadCatalog busca as prefeituras e, se houver prefeitura escolhida, suas
// unidades. Em falha o seletor afetado volta vazio e o erro é devolvido para
// que a tela mostre o aviso; o formulário continua utilizável.
func LoadCatalog(ctx context.Context, fetcher Fetcher, cityHallID string) (Catalog, error) {
	catalog := Catalog{CityHalls: []model.CityHall{}, HealthUnits: []model.HealthUnit{}}

	halls, err := fetcher.ListCityHalls(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("catálogo: falha ao listar prefeituras")
		return catalog, &CatalogError{Field: FieldCityHall, Err: err}
	}
	if halls != nil {
		catalog.CityHalls = halls
	}

	cityHallID = strings.TrimSpace(cityHallID)
	if cityHallID == "" {
		return catalog, nil
	}

	units, err := fetcher.ListHealthUnits(ctx, cityHallID)
	if err != nil {
		log.Warn().Err(err).Str("city_hall_id", cityHallID).Msg("catálogo: falha ao listar unidades")
		return catalog, &CatalogError{Field: FieldHealthUnit, Err: err}
	}
	if units != nil {
		catalog.HealthUnits = units
	}
	return catalog, nil
}
