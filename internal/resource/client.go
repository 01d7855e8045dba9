package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/saudemunicipal/console/internal/auth"
	"github.com/saudemunicipal/console/internal/model"
	"github.com/saudemunicipal/console/internal/util"
)

// Coleções expostas pela API da rede municipal de saúde.
const (
	PathLogin          = "/auth/login"
	PathMe             = "/auth/me"
	PathMyPermissions  = "/rbac/my-permissions"
	PathCityHalls      = "/cityhall"
	PathHealthUnits    = "/healthunit"
	PathDoctors        = "/doctor"
	PathPatients       = "/patient"
	PathUsers          = "/user"
	PathMedicalRecords = "/medical-record"
)

// TokenSource fornece o bearer token atual; "" significa chamada anônima.
type TokenSource func(ctx context.Context) string

// Client encapsula chamadas REST à API de recursos.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	limiter    *rate.Limiter
}

// Config descreve parâmetros do cliente.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Tokens            TokenSource
	HTTPClient        *http.Client
}

// New cria um novo cliente.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("resource: base url obrigatória")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("resource: base url inválida: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	tokens := cfg.Tokens
	if tokens == nil {
		tokens = func(context.Context) string { return "" }
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		tokens:     tokens,
		limiter:    limiter,
	}, nil
}

// LoginResponse é o corpo de POST /auth/login.
type LoginResponse struct {
	User        model.UserProfile `json:"user"`
	AccessToken string            `json:"access_token"`
}

// Login troca credenciais por token; não usa o token armazenado.
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResponse, error) {
	body := map[string]string{"identifier": identifier, "password": password}
	var resp LoginResponse
	if err := c.call(ctx, http.MethodPost, PathLogin, body, &resp, false); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return nil, &APIError{Status: http.StatusBadGateway, Message: "resposta de login sem access_token"}
	}
	return &resp, nil
}

// Me devolve o perfil do usuário dono do token armazenado.
func (c *Client) Me(ctx context.Context) (model.UserProfile, error) {
	var profile model.UserProfile
	if err := c.call(ctx, http.MethodGet, PathMe, nil, &profile, true); err != nil {
		return model.UserProfile{}, err
	}
	return profile, nil
}

// MyPermissions devolve a lista de permissões do usuário. Lista ausente na
// resposta é tratada como vazia.
func (c *Client) MyPermissions(ctx context.Context) ([]string, error) {
	var resp struct {
		Permissions []string `json:"permissions"`
	}
	if err := c.call(ctx, http.MethodGet, PathMyPermissions, nil, &resp, true); err != nil {
		return nil, err
	}
	if resp.Permissions == nil {
		return []string{}, nil
	}
	return resp.Permissions, nil
}

// ListCityHalls lista as prefeituras.
func (c *Client) ListCityHalls(ctx context.Context) ([]model.CityHall, error) {
	var halls []model.CityHall
	if err := c.call(ctx, http.MethodGet, PathCityHalls, nil, &halls, true); err != nil {
		return nil, err
	}
	return halls, nil
}

// ListHealthUnits lista unidades, filtrando por prefeitura quando informada.
func (c *Client) ListHealthUnits(ctx context.Context, cityHallID string) ([]model.HealthUnit, error) {
	path := PathHealthUnits
	if id := strings.TrimSpace(cityHallID); id != "" {
		q := url.Values{}
		q.Set("city_hall_id", id)
		path += "?" + q.Encode()
	}
	var units []model.HealthUnit
	if err := c.call(ctx, http.MethodGet, path, nil, &units, true); err != nil {
		return nil, err
	}
	return units, nil
}

// Create envia POST na coleção; o corpo da resposta não é interpretado.
func (c *Client) Create(ctx context.Context, collection string, body any) error {
	return c.call(ctx, http.MethodPost, collection, body, nil, true)
}

// Update envia PUT no item da coleção.
func (c *Client) Update(ctx context.Context, collection, id string, body any) error {
	return c.call(ctx, http.MethodPut, itemPath(collection, id), body, nil, true)
}

// Delete remove o item da coleção.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.call(ctx, http.MethodDelete, itemPath(collection, id), nil, nil, true)
}

func itemPath(collection, id string) string {
	return strings.TrimRight(collection, "/") + "/" + url.PathEscape(strings.TrimSpace(id))
}

func (c *Client) call(ctx context.Context, method, path string, body, out any, authenticated bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if authenticated {
		token, ok := TokenFromContext(ctx)
		if !ok {
			token = c.tokens(ctx)
		}
		if token != "" {
			req.Header.Set("Authorization", auth.BearerHeader(token))
		}
	}

	start := time.Now()
	err = c.do(req, out)
	event := log.Debug()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.Str("method", method).Str("path", path).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Dur("duration", time.Since(start)).Msg("resource_call")
	return err
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return nil, err
		}
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", util.NewRequestID())
	return req, nil
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{Status: resp.StatusCode, Message: extractMessage(raw)}
	}

	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("resource: resposta inválida: %w", err)
	}
	return nil
}
