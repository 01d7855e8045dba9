// Package app monta as dependências compartilhadas pelo servidor do console
// e pela CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/saudemunicipal/console/internal/config"
	"github.com/saudemunicipal/console/internal/records"
	"github.com/saudemunicipal/console/internal/resource"
	"github.com/saudemunicipal/console/internal/session"
	"github.com/saudemunicipal/console/internal/territory"
	"github.com/saudemunicipal/console/internal/tokenstore"
)

const catalogTTL = 2 * time.Minute

// App reúne sessão, cliente de recursos e gravação protegida.
type App struct {
	Config   *config.Config
	Store    tokenstore.Store
	Client   *resource.Client
	Catalogs *territory.CachedFetcher
	Sessions *session.Manager
	Records  *records.Writer

	closers []func() error
}

// New monta o grafo de dependências. A sessão ainda não é restaurada; chame
// Sessions.InitFromStorage quando o processo estiver pronto.
func New(cfg *config.Config) (*App, error) {
	store, closeStore, err := NewTokenStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Store: store}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	// o cliente lê o token da sessão, que por sua vez usa o cliente
	var manager *session.Manager
	client, err := resource.New(resource.Config{
		BaseURL:           cfg.APIBaseURL,
		Timeout:           cfg.APITimeout,
		RequestsPerSecond: cfg.APIRateLimit.RequestsPerSecond,
		Burst:             cfg.APIRateLimit.Burst,
		Tokens: func(ctx context.Context) string {
			if manager == nil {
				return ""
			}
			return manager.Token(ctx)
		},
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("resource: %w", err)
	}

	catalogs := territory.NewCachedFetcher(client, catalogTTL)
	manager = session.NewManager(store, client)
	// o catálogo visível depende do usuário; qualquer transição o descarta
	manager.Subscribe(func(session.Snapshot) { catalogs.Invalidate() })

	a.Client = client
	a.Catalogs = catalogs
	a.Sessions = manager
	a.Records = records.NewWriter(manager, client, catalogs)
	return a, nil
}

// Close libera conexões abertas.
func (a *App) Close() {
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			log.Warn().Err(err).Msg("app: falha ao fechar recurso")
		}
	}
	a.closers = nil
}

// NewTokenStore escolhe o armazenamento do token conforme TOKEN_STORE.
func NewTokenStore(cfg *config.Config) (tokenstore.Store, func() error, error) {
	switch cfg.TokenStore {
	case config.TokenStoreMemory:
		return tokenstore.NewMemoryStore(), nil, nil
	case config.TokenStoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis parse: %w", err)
		}
		client := redis.NewClient(opts)
		return tokenstore.NewRedisStore(client, cfg.TokenKey), client.Close, nil
	case config.TokenStoreFile, "":
		return tokenstore.NewFileStore(cfg.TokenFile), nil, nil
	default:
		return nil, nil, errors.New("TOKEN_STORE inválido")
	}
}
