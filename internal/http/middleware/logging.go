package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Logging registra cada requisição do console com request id e usuário.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		// RequireSession preenche o holder mais adiante na cadeia
		holder := &requestHolder{}
		next.ServeHTTP(ww, r.WithContext(withHolder(r.Context(), holder)))

		event := log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("ip", realIPFromRequest(r))

		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			event = event.Str("request_id", reqID)
		}
		if holder.subject != "" {
			event = event.Str("user_id", holder.subject).Str("role", holder.role)
		}

		event.Msg("http_request")
	})
}

type holderKey struct{}

type requestHolder struct {
	subject string
	role    string
}

func withHolder(ctx context.Context, h *requestHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

func markUser(ctx context.Context, subject, role string) {
	if h, ok := ctx.Value(holderKey{}).(*requestHolder); ok {
		h.subject = subject
		h.role = role
	}
}
