package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_http_requests_total",
			Help: "Total de requisições HTTP atendidas pelo console",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_http_request_duration_seconds",
			Help:    "Duração das requisições HTTP do console",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	loginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_logins_total",
			Help: "Tentativas de login por resultado",
		},
		[]string{"outcome"},
	)

	permissionResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_permission_resolutions_total",
			Help: "Resoluções de permissão por origem (server ou fallback)",
		},
		[]string{"source", "role"},
	)

	sessionTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_session_transitions_total",
			Help: "Transições de estado da sessão",
		},
		[]string{"to"},
	)

	scopeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_scope_rejections_total",
			Help: "Envios bloqueados pela validação territorial",
		},
		[]string{"kind"},
	)

	catalogFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_catalog_failures_total",
			Help: "Falhas ao carregar o catálogo territorial",
		},
		[]string{"field"},
	)
)

// Handler devolve o endpoint /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware registra contagem e duração das requisições.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath troca o id de /resources/{coleção}/{id} por :id para não
// explodir a cardinalidade.
func normalizePath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) == 3 && parts[0] == "resources" {
		parts[2] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

// RecordLogin contabiliza o resultado de um login.
func RecordLogin(outcome string) {
	loginsTotal.WithLabelValues(outcome).Inc()
}

// RecordPermissionResolution contabiliza a origem do conjunto de permissões.
func RecordPermissionResolution(source, role string) {
	permissionResolutions.WithLabelValues(source, role).Inc()
}

// RecordSessionTransition contabiliza a entrada em um estado da sessão.
func RecordSessionTransition(to string) {
	sessionTransitions.WithLabelValues(to).Inc()
}

// RecordScopeRejection contabiliza um envio barrado pelo escopo territorial.
func RecordScopeRejection(kind string) {
	scopeRejections.WithLabelValues(kind).Inc()
}

// RecordCatalogFailure contabiliza falha de carga do catálogo.
func RecordCatalogFailure(field string) {
	catalogFailures.WithLabelValues(field).Inc()
}
