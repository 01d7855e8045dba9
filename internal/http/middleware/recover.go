package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Recover converte panic em 500 sem vazar detalhes ao cliente.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error().
					Interface("panic", rec).
					Str("request_id", middleware.GetReqID(r.Context())).
					Bytes("stack", debug.Stack()).
					Msg("panic recuperado")
				writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
