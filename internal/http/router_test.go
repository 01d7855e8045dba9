package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/saudemunicipal/console/internal/config"
	httpmiddleware "github.com/saudemunicipal/console/internal/http/middleware"
	"github.com/saudemunicipal/console/internal/model"
	"github.com/saudemunicipal/console/internal/rbac"
	"github.com/saudemunicipal/console/internal/records"
	"github.com/saudemunicipal/console/internal/resource"
	"github.com/saudemunicipal/console/internal/session"
	"github.com/saudemunicipal/console/internal/tokenstore"
)

type fakeUser struct {
	password string
	token    string
	profile  model.UserProfile
}

type writeCall struct {
	method     string
	collection string
	id         string
	body       map[string]any
}

// fakeAPI serves session, catalog and writes without network.
type fakeAPI struct {
	mu       sync.Mutex
	users    map[string]fakeUser
	halls    []model.CityHall
	units    []model.HealthUnit
	hallsErr error
	writes   []writeCall
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		users: map[string]fakeUser{
			"admin@saude.gov.br": {password: "s3nha", token: "tok-admin", profile: model.UserProfile{
				ID: "u-admin", Email: "admin@saude.gov.br", Role: rbac.RoleAdmin, CityID: "ch-1",
			}},
			"master@saude.gov.br": {password: "s3nha", token: "tok-master", profile: model.UserProfile{
				ID: "u-master", Email: "master@saude.gov.br", Role: rbac.RoleMaster,
			}},
			"paciente@saude.gov.br": {password: "s3nha", token: "tok-patient", profile: model.UserProfile{
				ID: "u-patient", Email: "paciente@saude.gov.br", Role: rbac.RolePatient,
			}},
		},
		halls: []model.CityHall{
			{ID: "ch-1", Name: "Prefeitura A"},
			{ID: "ch-2", Name: "Prefeitura B"},
		},
		units: []model.HealthUnit{
			{ID: "hu-1", Name: "UBS Centro", CityHallID: "ch-1"},
			{ID: "hu-2", Name: "UBS Norte", CityHallID: "ch-2"},
		},
	}
}

func (f *fakeAPI) Login(ctx context.Context, identifier, password string) (*resource.LoginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[identifier]
	if !ok || u.password != password {
		return nil, &resource.APIError{Status: http.StatusUnauthorized, Message: "Usuário ou senha inválidos"}
	}
	return &resource.LoginResponse{User: u.profile, AccessToken: u.token}, nil
}

func (f *fakeAPI) profileFor(ctx context.Context) (model.UserProfile, bool) {
	token, _ := resource.TokenFromContext(ctx)
	for _, u := range f.users {
		if u.token == token {
			return u.profile, true
		}
	}
	return model.UserProfile{}, false
}

func (f *fakeAPI) Me(ctx context.Context) (model.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profileFor(ctx); ok {
		return p, nil
	}
	return model.UserProfile{}, &resource.APIError{Status: http.StatusUnauthorized}
}

func (f *fakeAPI) MyPermissions(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.profileFor(ctx); ok {
		return rbac.Defaults(p.Role), nil
	}
	return nil, &resource.APIError{Status: http.StatusUnauthorized}
}

func (f *fakeAPI) ListCityHalls(ctx context.Context) ([]model.CityHall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hallsErr != nil {
		return nil, f.hallsErr
	}
	return append([]model.CityHall(nil), f.halls...), nil
}

func (f *fakeAPI) ListHealthUnits(ctx context.Context, cityHallID string) ([]model.HealthUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.HealthUnit
	for _, u := range f.units {
		if u.CityHallID == cityHallID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeAPI) record(method, collection, id string, body any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, _ := body.(map[string]any)
	f.writes = append(f.writes, writeCall{method: method, collection: collection, id: id, body: m})
}

func (f *fakeAPI) Create(ctx context.Context, collection string, body any) error {
	f.record(http.MethodPost, collection, "", body)
	return nil
}

func (f *fakeAPI) Update(ctx context.Context, collection, id string, body any) error {
	f.record(http.MethodPut, collection, id, body)
	return nil
}

func (f *fakeAPI) Delete(ctx context.Context, collection, id string) error {
	f.record(http.MethodDelete, collection, id, nil)
	return nil
}

func (f *fakeAPI) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *ErrorBody      `json:"error"`
}

func newTestRouter(t *testing.T) (http.Handler, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	manager := session.NewManager(tokenstore.NewMemoryStore(), api)
	writer := records.NewWriter(manager, api, api)
	cfg := &config.Config{
		APIRateLimit:    config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
		RateLimitPublic: config.RateLimitConfig{RequestsPerSecond: 100, Burst: 100},
	}
	return NewRouter(cfg, manager, api, writer), api
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("invalid response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func login(t *testing.T, h http.Handler, identifier string) {
	t.Helper()
	rec, env := doRequest(t, h, http.MethodPost, "/session/login", map[string]string{
		"identifier": identifier,
		"password":   "s3nha",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", identifier, rec.Code, rec.Body.String())
	}
	if env.Error != nil {
		t.Fatalf("login %s: unexpected error %+v", identifier, env.Error)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t)
	rec, _ := doRequest(t, h, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	h, _ := newTestRouter(t)

	_, env := doRequest(t, h, http.MethodGet, "/session", nil, nil)
	var snap session.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != session.StatusAnonymous {
		t.Fatalf("expected anonymous, got %s", snap.Status)
	}

	rec, env := doRequest(t, h, http.MethodPost, "/session/login", map[string]string{
		"identifier": "admin@saude.gov.br",
		"password":   "errada",
	}, nil)
	if rec.Code != http.StatusUnauthorized || env.Error == nil || env.Error.Code != "AUTH" {
		t.Fatalf("expected 401 AUTH, got %d %s", rec.Code, rec.Body.String())
	}
	if env.Error.Message != "Usuário ou senha inválidos" {
		t.Fatalf("expected server message to be forwarded, got %q", env.Error.Message)
	}

	login(t, h, "admin@saude.gov.br")

	_, env = doRequest(t, h, http.MethodGet, "/session", nil, nil)
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != session.StatusAuthenticated || snap.User == nil || snap.User.ID != "u-admin" {
		t.Fatalf("unexpected session: %+v", snap)
	}
	if snap.PermissionSource != rbac.SourceServer {
		t.Fatalf("expected server permissions, got %s", snap.PermissionSource)
	}

	cases := []struct {
		action  string
		allowed bool
	}{
		{rbac.DoctorCreate, true},
		{rbac.CityHallDelete, false},
		{"", false},
		{"unknown:action", false},
	}
	for _, tc := range cases {
		_, env = doRequest(t, h, http.MethodGet, "/session/can?action="+tc.action, nil, nil)
		var out struct {
			Allowed bool `json:"allowed"`
		}
		if err := json.Unmarshal(env.Data, &out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.Allowed != tc.allowed {
			t.Fatalf("can(%q) = %v, want %v", tc.action, out.Allowed, tc.allowed)
		}
	}

	rec, _ = doRequest(t, h, http.MethodDelete, "/session", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d", rec.Code)
	}
	rec, _ = doRequest(t, h, http.MethodGet, "/territory/city-halls", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/session/login", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}

	rec, env := doRequest(t, h, http.MethodPost, "/session/login", map[string]string{"identifier": "", "password": ""}, nil)
	if rec.Code != http.StatusBadRequest || env.Error.Code != "VALIDATION" {
		t.Fatalf("expected 400 VALIDATION, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestTerritoryListsRespectRole(t *testing.T) {
	h, _ := newTestRouter(t)
	login(t, h, "admin@saude.gov.br")

	_, env := doRequest(t, h, http.MethodGet, "/territory/city-halls", nil, nil)
	var halls listResponse[model.CityHall]
	if err := json.Unmarshal(env.Data, &halls); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(halls.Items) != 1 || halls.Items[0].ID != "ch-1" {
		t.Fatalf("admin should only see own city hall, got %+v", halls.Items)
	}

	// a header naming another city hall does not widen the admin scope
	_, env = doRequest(t, h, http.MethodGet, "/territory/health-units", nil, map[string]string{
		httpmiddleware.HeaderCityHall: "ch-2",
	})
	var units listResponse[model.HealthUnit]
	if err := json.Unmarshal(env.Data, &units); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(units.Items) != 1 || units.Items[0].ID != "hu-1" {
		t.Fatalf("unexpected units: %+v", units.Items)
	}

	_, env = doRequest(t, h, http.MethodGet, "/territory/options", nil, nil)
	var opts optionsResponse
	if err := json.Unmarshal(env.Data, &opts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !opts.CityHallLocked || opts.HealthUnitDisabled {
		t.Fatalf("admin: expected locked city hall and enabled unit, got %+v", opts.Options)
	}
}

func TestMasterSeesAllCityHalls(t *testing.T) {
	h, _ := newTestRouter(t)
	login(t, h, "master@saude.gov.br")

	_, env := doRequest(t, h, http.MethodGet, "/territory/city-halls", nil, nil)
	var halls listResponse[model.CityHall]
	if err := json.Unmarshal(env.Data, &halls); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(halls.Items) != 2 {
		t.Fatalf("master should see every city hall, got %d", len(halls.Items))
	}

	_, env = doRequest(t, h, http.MethodGet, "/territory/health-units", nil, nil)
	var units listResponse[model.HealthUnit]
	if err := json.Unmarshal(env.Data, &units); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(units.Items) != 0 {
		t.Fatalf("expected empty unit list without city hall, got %+v", units.Items)
	}
}

func TestCatalogFailureDegradesToEmptyList(t *testing.T) {
	h, api := newTestRouter(t)
	login(t, h, "master@saude.gov.br")
	api.hallsErr = errors.New("timeout")

	rec, env := doRequest(t, h, http.MethodGet, "/territory/city-halls", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog failure should not fail the request, status %d", rec.Code)
	}
	var halls listResponse[model.CityHall]
	if err := json.Unmarshal(env.Data, &halls); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if halls.Items == nil || len(halls.Items) != 0 || halls.Notice != noticeCatalogUnavailable {
		t.Fatalf("expected empty list with notice, got %+v", halls)
	}
}

func TestPatientCannotReachTerritory(t *testing.T) {
	h, _ := newTestRouter(t)
	login(t, h, "paciente@saude.gov.br")

	rec, env := doRequest(t, h, http.MethodGet, "/territory/city-halls", nil, nil)
	if rec.Code != http.StatusForbidden || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("expected 403, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestValidateSelection(t *testing.T) {
	h, _ := newTestRouter(t)
	login(t, h, "admin@saude.gov.br")

	tests := []struct {
		name   string
		body   map[string]string
		status int
		field  string
	}{
		{"own city hall", map[string]string{"city_hall_id": "ch-1", "health_unit_id": "hu-1"}, http.StatusOK, ""},
		{"missing city hall", map[string]string{}, http.StatusUnprocessableEntity, "city_hall_id"},
		{"unit from another city hall", map[string]string{"city_hall_id": "ch-1", "health_unit_id": "hu-2"}, http.StatusUnprocessableEntity, "health_unit_id"},
		{"city hall out of scope", map[string]string{"city_hall_id": "ch-2"}, http.StatusUnprocessableEntity, "city_hall_id"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := doRequest(t, h, http.MethodPost, "/territory/validate", tc.body, nil)
			if rec.Code != tc.status {
				t.Fatalf("status %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			if tc.field == "" {
				return
			}
			details, _ := env.Error.Details.(map[string]any)
			if details["field"] != tc.field {
				t.Fatalf("field %v, want %s", details["field"], tc.field)
			}
		})
	}
}

func TestCreateResourceEnforcesScope(t *testing.T) {
	h, api := newTestRouter(t)
	login(t, h, "admin@saude.gov.br")

	rec, env := doRequest(t, h, http.MethodPost, "/resources/doctor", map[string]any{
		"name":           "Dra. Ana",
		"health_unit_id": "hu-2",
	}, nil)
	if rec.Code != http.StatusUnprocessableEntity || env.Error.Code != "SCOPE" {
		t.Fatalf("expected 422 SCOPE, got %d %s", rec.Code, rec.Body.String())
	}
	if api.writeCount() != 0 {
		t.Fatalf("no write should reach the API")
	}

	rec, _ = doRequest(t, h, http.MethodPost, "/resources/doctor", map[string]any{
		"name":           "Dra. Ana",
		"health_unit_id": "hu-1",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	if api.writeCount() != 1 {
		t.Fatalf("expected one write, got %d", api.writeCount())
	}
	got := api.writes[0]
	if got.collection != resource.PathDoctors || got.body["city_hall_id"] != "ch-1" || got.body["health_unit_id"] != "hu-1" {
		t.Fatalf("unexpected write: %+v", got)
	}
}

func TestResourceErrors(t *testing.T) {
	h, _ := newTestRouter(t)
	login(t, h, "paciente@saude.gov.br")

	rec, _ := doRequest(t, h, http.MethodPost, "/resources/doctor", map[string]any{"name": "x"}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient creating doctor: expected 403, got %d", rec.Code)
	}

	rec, _ = doRequest(t, h, http.MethodPost, "/resources/nave", map[string]any{}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown collection: expected 404, got %d", rec.Code)
	}

	rec, _ = doRequest(t, h, http.MethodDelete, "/resources/patient/p-1", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("patient deleting patient: expected 403, got %d", rec.Code)
	}
}
