package territory

import (
	"context"
	"sync"
	"time"

	"github.com/saudemunicipal/console/internal/model"
)

const cityHallsKey = "\x00city_halls"

// CachedFetcher guarda as listas do catálogo em memória por um TTL curto.
// Falhas nunca são guardadas.
type CachedFetcher struct {
	next  Fetcher
	ttl   time.Duration
	now   func() time.Time
	cache sync.Map
}

type cachedList struct {
	halls    []model.CityHall
	units    []model.HealthUnit
	expireAt time.Time
}

// NewCachedFetcher envolve fetcher; ttl <= 0 usa dois minutos.
func NewCachedFetcher(next Fetcher, ttl time.Duration) *CachedFetcher {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &CachedFetcher{next: next, ttl: ttl, now: time.Now}
}

// ListCityHalls devolve prefeituras do cache ou da API.
func (c *CachedFetcher) ListCityHalls(ctx context.Context) ([]model.CityHall, error) {
	if entry, ok := c.load(cityHallsKey); ok {
		return append([]model.CityHall(nil), entry.halls...), nil
	}

	halls, err := c.next.ListCityHalls(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Store(cityHallsKey, cachedList{halls: halls, expireAt: c.now().Add(c.ttl)})
	return append([]model.CityHall(nil), halls...), nil
}

// ListHealthUnits devolve unidades da prefeitura do cache ou da API.
func (c *CachedFetcher) ListHealthUnits(ctx context.Context, cityHallID string) ([]model.HealthUnit, error) {
	if entry, ok := c.load(cityHallID); ok {
		return append([]model.HealthUnit(nil), entry.units...), nil
	}

	units, err := c.next.ListHealthUnits(ctx, cityHallID)
	if err != nil {
		return nil, err
	}
	c.cache.Store(cityHallID, cachedList{units: units, expireAt: c.now().Add(c.ttl)})
	return append([]model.HealthUnit(nil), units...), nil
}

// Invalidate descarta tudo; a próxima leitura volta à API.
func (c *CachedFetcher) Invalidate() {
	c.cache.Range(func(key, _ any) bool {
		c.cache.Delete(key)
		return true
	})
}

func (c *CachedFetcher) load(key string) (cachedList, bool) {
	v, ok := c.cache.Load(key)
	if !ok {
		return cachedList{}, false
	}
	entry := v.(cachedList)
	if c.now().Before(entry.expireAt) {
		return entry, true
	}
	c.cache.Delete(key)
	return cachedList{}, false
}
