package records

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/saudemunicipal/console/internal/model"
	"github.com/saudemunicipal/console/internal/rbac"
	"github.com/saudemunicipal/console/internal/resource"
	"github.com/saudemunicipal/console/internal/territory"
)

type stubSession struct {
	user *model.UserProfile
}

func (s stubSession) User() (model.UserProfile, bool) {
	if s.user == nil {
		return model.UserProfile{}, false
	}
	return *s.user, true
}

type call struct {
	method string
	path   string
	id     string
	body   map[string]any
}

type stubBackend struct {
	calls []call
	err   error
}

func (s *stubBackend) Create(ctx context.Context, collection string, body any) error {
	s.calls = append(s.calls, call{method: http.MethodPost, path: collection, body: body.(map[string]any)})
	return s.err
}

func (s *stubBackend) Update(ctx context.Context, collection, id string, body any) error {
	s.calls = append(s.calls, call{method: http.MethodPut, path: collection, id: id, body: body.(map[string]any)})
	return s.err
}

func (s *stubBackend) Delete(ctx context.Context, collection, id string) error {
	s.calls = append(s.calls, call{method: http.MethodDelete, path: collection, id: id})
	return s.err
}

type stubCatalog struct {
	err error
	// unfiltered devolve todas as unidades, ignorando a prefeitura pedida
	unfiltered bool
}

func (s stubCatalog) ListCityHalls(ctx context.Context) ([]model.CityHall, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []model.CityHall{{ID: "ch-1"}, {ID: "ch-2"}}, nil
}

func (s stubCatalog) ListHealthUnits(ctx context.Context, cityHallID string) ([]model.HealthUnit, error) {
	if s.err != nil {
		return nil, s.err
	}
	all := []model.HealthUnit{
		{ID: "hu-1", CityHallID: "ch-1"},
		{ID: "hu-2", CityHallID: "ch-2"},
	}
	if s.unfiltered {
		return all, nil
	}
	return territory.AllowedHealthUnits(cityHallID, all), nil
}

func master() *model.UserProfile {
	return &model.UserProfile{ID: "u-master", Role: rbac.RoleMaster, Permissions: rbac.DefaultSet(rbac.RoleMaster)}
}

func admin() *model.UserProfile {
	return &model.UserProfile{ID: "u-admin", Role: rbac.RoleAdmin, CityID: "ch-1", Permissions: rbac.DefaultSet(rbac.RoleAdmin)}
}

// Cenário C: MASTER escolhe ch-1 e uma unidade de ch-2.
func TestCreateBlockedWhenUnitBelongsToOtherCityHall(t *testing.T) {
	backend := &stubBackend{}
	for _, catalog := range []stubCatalog{{}, {unfiltered: true}} {
		w := NewWriter(stubSession{user: master()}, backend, catalog)
		err := w.Create(context.Background(), Request{
			Collection: "patient",
			Selection:  territory.Selection{CityHallID: "ch-1", HealthUnitID: "hu-2"},
			Body:       map[string]any{"name": "Maria"},
		})
		if !errors.Is(err, territory.ErrUnitNotInCityHall) {
			t.Fatalf("unfiltered=%v: expected UnitNotInCityHall, got %v", catalog.unfiltered, err)
		}
	}
	if len(backend.calls) != 0 {
		t.Fatalf("create must never be issued, got %+v", backend.calls)
	}
}

func TestCreateInjectsTerritory(t *testing.T) {
	backend := &stubBackend{}
	w := NewWriter(stubSession{user: master()}, backend, stubCatalog{})

	err := w.Create(context.Background(), Request{
		Collection: "Patient",
		Selection:  territory.Selection{CityHallID: "ch-2", HealthUnitID: "hu-2"},
		Body:       map[string]any{"name": "Maria", "city_hall_id": "forjado"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(backend.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(backend.calls))
	}
	got := backend.calls[0]
	if got.path != resource.PathPatients || got.body["city_hall_id"] != "ch-2" || got.body["health_unit_id"] != "hu-2" || got.body["name"] != "Maria" {
		t.Fatalf("unexpected call %+v", got)
	}
}

func TestCreateRules(t *testing.T) {
	tests := []struct {
		name    string
		user    *model.UserProfile
		req     Request
		catalog stubCatalog
		want    error
	}{
		{"sem sessão", nil, Request{Collection: "patient"}, stubCatalog{}, ErrNotAuthenticated},
		{"coleção desconhecida", master(), Request{Collection: "exame"}, stubCatalog{}, ErrUnknownCollection},
		{"sem permissão", admin(), Request{Collection: "cityhall"}, stubCatalog{}, ErrForbidden},
		{"master sem prefeitura", master(), Request{Collection: "doctor"}, stubCatalog{}, territory.ErrMissingCityHall},
		{"admin fora da própria prefeitura", admin(), Request{Collection: "doctor", Selection: territory.Selection{CityHallID: "ch-2"}}, stubCatalog{}, territory.ErrCityHallOutOfScope},
		{"catálogo indisponível com unidade", master(), Request{Collection: "doctor", Selection: territory.Selection{CityHallID: "ch-1", HealthUnitID: "hu-1"}}, stubCatalog{err: errors.New("503")}, territory.ErrCatalogFetch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := &stubBackend{}
			w := NewWriter(stubSession{user: tc.user}, backend, tc.catalog)
			err := w.Create(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(backend.calls) != 0 {
				t.Fatalf("no call may reach the API, got %+v", backend.calls)
			}
		})
	}
}

func TestHealthUnitOnlyNeedsCityHall(t *testing.T) {
	backend := &stubBackend{}
	w := NewWriter(stubSession{user: admin()}, backend, stubCatalog{err: errors.New("fora do ar")})

	err := w.Create(context.Background(), Request{
		Collection: "healthunit",
		Selection:  territory.Selection{CityHallID: "ch-1", HealthUnitID: "ignorada"},
		Body:       map[string]any{"name": "UBS Nova"},
	})
	if err != nil {
		t.Fatalf("create health unit: %v", err)
	}
	body := backend.calls[0].body
	if body["city_hall_id"] != "ch-1" {
		t.Fatalf("expected city hall injected, got %+v", body)
	}
	if _, ok := body["health_unit_id"]; ok {
		t.Fatalf("health unit must not carry health_unit_id")
	}
}

func TestUpdateAndDelete(t *testing.T) {
	backend := &stubBackend{}
	w := NewWriter(stubSession{user: admin()}, backend, stubCatalog{})
	ctx := context.Background()

	if err := w.Update(ctx, Request{Collection: "patient", Selection: territory.Selection{CityHallID: "ch-1"}}); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if err := w.Update(ctx, Request{Collection: "patient", ID: "p-1", Selection: territory.Selection{CityHallID: "ch-1", HealthUnitID: "hu-1"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := w.Delete(ctx, "patient", "p-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin defaults do not include patient:delete, got %v", err)
	}
	if err := w.Delete(ctx, "doctor", "d-1"); err != nil {
		t.Fatalf("delete doctor: %v", err)
	}
	if len(backend.calls) != 2 || backend.calls[0].method != http.MethodPut || backend.calls[1].method != http.MethodDelete {
		t.Fatalf("unexpected calls %+v", backend.calls)
	}
}

func TestRemoteErrorsAreWrapped(t *testing.T) {
	apiErr := &resource.APIError{Status: http.StatusConflict, Message: "CPF já cadastrado"}
	backend := &stubBackend{err: apiErr}
	w := NewWriter(stubSession{user: master()}, backend, stubCatalog{})

	err := w.Create(context.Background(), Request{Collection: "medical_record", Body: map[string]any{}})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("master defaults do not create medical records, got %v", err)
	}

	err = w.Create(context.Background(), Request{Collection: "cityhall", Body: map[string]any{"name": "Nova"}})
	if !errors.Is(err, ErrRemote) || resource.ServerMessage(err) != "CPF já cadastrado" {
		t.Fatalf("expected wrapped remote error, got %v", err)
	}
}

type countingCatalog struct {
	stubCatalog
	hallCalls int
}

func (c *countingCatalog) ListCityHalls(ctx context.Context) ([]model.CityHall, error) {
	c.hallCalls++
	return c.stubCatalog.ListCityHalls(ctx)
}

func TestSuccessfulWriteInvalidatesCachedCatalog(t *testing.T) {
	inner := &countingCatalog{}
	cache := territory.NewCachedFetcher(inner, time.Hour)
	backend := &stubBackend{}
	w := NewWriter(stubSession{user: master()}, backend, cache)
	ctx := context.Background()

	if _, err := cache.ListCityHalls(ctx); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if err := w.Create(ctx, Request{Collection: "cityhall", Body: map[string]any{"name": "Nova"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := cache.ListCityHalls(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if inner.hallCalls != 2 {
		t.Fatalf("expected catalog refetch after write, calls=%d", inner.hallCalls)
	}

	backend.err = errors.New("500")
	_ = w.Create(ctx, Request{Collection: "cityhall", Body: map[string]any{"name": "Outra"}})
	if _, err := cache.ListCityHalls(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if inner.hallCalls != 2 {
		t.Fatalf("failed write must keep cache, calls=%d", inner.hallCalls)
	}
}
