package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/saudemunicipal/console/internal/territory"
)

// Cabeçalhos da seleção territorial enviados pela interface.
const (
	HeaderCityHall   = "X-City-Hall"
	HeaderHealthUnit = "X-Health-Unit"
)

// Scope lê a seleção territorial do cabeçalho ou da query. Sem seleção
// explícita usa o vínculo do próprio perfil.
func Scope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sel := territory.Selection{
			CityHallID:   firstNonEmpty(r.Header.Get(HeaderCityHall), r.URL.Query().Get(territory.FieldCityHall)),
			HealthUnitID: firstNonEmpty(r.Header.Get(HeaderHealthUnit), r.URL.Query().Get(territory.FieldHealthUnit)),
		}

		if sel.CityHallID == "" && sel.HealthUnitID == "" {
			if profile, ok := GetProfile(r.Context()); ok {
				sel = territory.DefaultSelection(profile)
			}
		}

		ctx := SetSelection(r.Context(), sel)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetSelection injeta seleção territorial no contexto.
func SetSelection(ctx context.Context, sel territory.Selection) context.Context {
	return context.WithValue(ctx, ContextKeySelection, sel)
}

// GetSelection retorna a seleção territorial do contexto.
func GetSelection(ctx context.Context) territory.Selection {
	val, _ := ctx.Value(ContextKeySelection).(territory.Selection)
	return val
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
