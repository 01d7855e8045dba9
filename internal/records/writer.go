package records

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saudemunicipal/console/internal/metrics"
	"github.com/saudemunicipal/console/internal/model"
	"github.com/saudemunicipal/console/internal/rbac"
	"github.com/saudemunicipal/console/internal/resource"
	"github.com/saudemunicipal/console/internal/territory"
)

var (
	// ErrForbidden indica ausência de permissão para a ação.
	ErrForbidden = errors.New("acesso negado")
	// ErrNotAuthenticated indica ausência de sessão ativa.
	ErrNotAuthenticated = errors.New("sessão não autenticada")
	// ErrUnknownCollection indica coleção não suportada pelo console.
	ErrUnknownCollection = errors.New("coleção desconhecida")
	// ErrMissingID indica update/delete sem identificador.
	ErrMissingID = errors.New("identificador obrigatório")
	// ErrRemote indica que a API recusou ou não concluiu a gravação.
	ErrRemote = errors.New("falha ao gravar na API")
)

// Scope indica quanto do vínculo territorial a coleção carrega.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeCityHall
	ScopeHealthUnit
)

// Collection descreve uma coleção gravável.
type Collection struct {
	Name  string
	Path  string
	Scope Scope
}

var collections = map[string]Collection{
	"cityhall":       {Name: "cityhall", Path: resource.PathCityHalls, Scope: ScopeNone},
	"healthunit":     {Name: "healthunit", Path: resource.PathHealthUnits, Scope: ScopeCityHall},
	"doctor":         {Name: "doctor", Path: resource.PathDoctors, Scope: ScopeHealthUnit},
	"patient":        {Name: "patient", Path: resource.PathPatients, Scope: ScopeHealthUnit},
	"user":           {Name: "user", Path: resource.PathUsers, Scope: ScopeHealthUnit},
	"medical_record": {Name: "medical_record", Path: resource.PathMedicalRecords, Scope: ScopeNone},
}

// Lookup devolve a coleção pelo nome.
func Lookup(name string) (Collection, error) {
	c, ok := collections[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Collection{}, ErrUnknownCollection
	}
	return c, nil
}

// Session é o que o writer precisa saber do usuário atual.
type Session interface {
	User() (model.UserProfile, bool)
}

// Backend é o subconjunto de escrita do cliente de recursos.
type Backend interface {
	Create(ctx context.Context, collection string, body any) error
	Update(ctx context.Context, collection, id string, body any) error
	Delete(ctx context.Context, collection, id string) error
}

// Request descreve uma gravação; o catálogo de validação é sempre buscado
// no Fetcher do writer.
type Request struct {
	Collection string
	ID         string
	Selection  territory.Selection
	Body       map[string]any
}

// Writer garante permissão e escopo territorial antes de qualquer gravação.
type Writer struct {
	session  Session
	backend  Backend
	catalogs territory.Fetcher
}

// NewWriter cria novo writer.
func NewWriter(session Session, backend Backend, catalogs territory.Fetcher) *Writer {
	return &Writer{session: session, backend: backend, catalogs: catalogs}
}

// Create valida e envia POST.
func (w *Writer) Create(ctx context.Context, req Request) error {
	coll, body, err := w.prepare(ctx, req, "create")
	if err != nil {
		return err
	}
	return w.finish(w.backend.Create(ctx, coll.Path, body))
}

// Update valida e envia PUT.
func (w *Writer) Update(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.ID) == "" {
		return ErrMissingID
	}
	coll, body, err := w.prepare(ctx, req, "update")
	if err != nil {
		return err
	}
	return w.finish(w.backend.Update(ctx, coll.Path, req.ID, body))
}

// Delete exige apenas a permissão de remoção.
func (w *Writer) Delete(ctx context.Context, collection, id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingID
	}
	coll, err := Lookup(collection)
	if err != nil {
		return err
	}
	if _, err := w.authorize(coll, "delete"); err != nil {
		return err
	}
	return w.finish(w.backend.Delete(ctx, coll.Path, id))
}

func (w *Writer) authorize(coll Collection, action string) (model.UserProfile, error) {
	user, ok := w.session.User()
	if !ok {
		return model.UserProfile{}, ErrNotAuthenticated
	}
	if !user.Permissions.Can(rbac.Permission(coll.Name, action)) {
		log.Warn().Str("user_id", user.ID).Str("collection", coll.Name).Str("action", action).Msg("gravação negada por permissão")
		return model.UserProfile{}, ErrForbidden
	}
	return user, nil
}

func (w *Writer) prepare(ctx context.Context, req Request, action string) (Collection, map[string]any, error) {
	coll, err := Lookup(req.Collection)
	if err != nil {
		return Collection{}, nil, err
	}
	user, err := w.authorize(coll, action)
	if err != nil {
		return Collection{}, nil, err
	}

	body := make(map[string]any, len(req.Body)+2)
	for k, v := range req.Body {
		body[k] = v
	}
	if coll.Scope == ScopeNone {
		return coll, body, nil
	}

	sel := territory.Selection{
		CityHallID:   strings.TrimSpace(req.Selection.CityHallID),
		HealthUnitID: strings.TrimSpace(req.Selection.HealthUnitID),
	}
	if coll.Scope == ScopeCityHall {
		sel.HealthUnitID = ""
	}

	catalog, err := territory.LoadCatalog(ctx, w.catalogs, sel.CityHallID)
	if err != nil {
		var catErr *territory.CatalogError
		if errors.As(err, &catErr) {
			metrics.RecordCatalogFailure(catErr.Field)
		}
		// sem unidade escolhida o catálogo não participa da validação
		if sel.HealthUnitID != "" {
			return Collection{}, nil, err
		}
	}

	if err := territory.ValidateFor(user.Role, user.CityID, sel, catalog); err != nil {
		var scopeErr *territory.ScopeError
		if errors.As(err, &scopeErr) {
			metrics.RecordScopeRejection(string(scopeErr.Kind))
		}
		log.Warn().Err(err).Str("user_id", user.ID).Str("collection", coll.Name).
			Str("city_hall_id", sel.CityHallID).Str("health_unit_id", sel.HealthUnitID).
			Msg("gravação bloqueada pelo escopo territorial")
		return Collection{}, nil, err
	}

	delete(body, territory.FieldCityHall)
	delete(body, territory.FieldHealthUnit)
	if sel.CityHallID != "" {
		body[territory.FieldCityHall] = sel.CityHallID
	}
	if sel.HealthUnitID != "" {
		body[territory.FieldHealthUnit] = sel.HealthUnitID
	}
	return coll, body, nil
}

// invalidator é implementado por catálogos com cache.
type invalidator interface {
	Invalidate()
}

// finish converte a falha remota e, em sucesso, descarta catálogos em cache
// para que as telas busquem de novo.
func (w *Writer) finish(err error) error {
	if err != nil {
		return errors.Join(ErrRemote, err)
	}
	if inv, ok := w.catalogs.(invalidator); ok {
		inv.Invalidate()
	}
	return nil
}
