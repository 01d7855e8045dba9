package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/saudemunicipal/console/internal/config"
	httpmiddleware "github.com/saudemunicipal/console/internal/http/middleware"
	"github.com/saudemunicipal/console/internal/metrics"
	"github.com/saudemunicipal/console/internal/model"
	"github.com/saudemunicipal/console/internal/records"
	"github.com/saudemunicipal/console/internal/rbac"
	"github.com/saudemunicipal/console/internal/session"
	"github.com/saudemunicipal/console/internal/territory"
)

// Sessions é a API de sessão consumida pelas rotas.
type Sessions interface {
	Login(ctx context.Context, identifier, password string) (model.UserProfile, error)
	Logout(ctx context.Context)
	Refresh(ctx context.Context) (session.Snapshot, error)
	Snapshot() session.Snapshot
	Can(action string) bool
	User() (model.UserProfile, bool)
	ConsumeExpiredNotice() bool
}

// Records é a API de gravação protegida por permissão e escopo.
type Records interface {
	Create(ctx context.Context, req records.Request) error
	Update(ctx context.Context, req records.Request) error
	Delete(ctx context.Context, collection, id string) error
}

// Handler agrega dependências das rotas do console.
type Handler struct {
	sessions      Sessions
	catalogs      territory.Fetcher
	records       Records
	publicLimiter *httpmiddleware.RateLimiter
	userLimiter   *httpmiddleware.RateLimiter
}

// NewRouter devolve roteador configurado.
func NewRouter(cfg *config.Config, sessions Sessions, catalogs territory.Fetcher, writer Records) http.Handler {
	h := &Handler{
		sessions:      sessions,
		catalogs:      catalogs,
		records:       writer,
		publicLimiter: httpmiddleware.NewRateLimiter(cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		userLimiter:   httpmiddleware.NewRateLimiter(cfg.APIRateLimit.RequestsPerSecond, cfg.APIRateLimit.Burst),
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))
	r.Use(metrics.Middleware)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Route("/session", func(s chi.Router) {
			s.Get("/", h.GetSession)
			s.Post("/login", h.Login)
			s.Delete("/", h.Logout)
			s.Post("/refresh", h.Refresh)
			s.Get("/can", h.Can)
		})
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.RequireSession(sessions))
		private.Use(httpmiddleware.UserRateLimit(h.userLimiter))
		private.Use(httpmiddleware.Scope)

		private.Route("/territory", func(t chi.Router) {
			t.Use(httpmiddleware.RequirePermission(sessions, rbac.CityHallRead, rbac.HealthUnitRead))
			t.Get("/city-halls", h.ListCityHalls)
			t.Get("/health-units", h.ListHealthUnits)
			t.Get("/options", h.TerritoryOptions)
			t.Post("/validate", h.ValidateSelection)
		})

		private.Route("/resources/{collection}", func(res chi.Router) {
			res.Post("/", h.CreateResource)
			res.Put("/{id}", h.UpdateResource)
			res.Delete("/{id}", h.DeleteResource)
		})
	})

	return r
}

// Health responde status simples.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
