package territory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/saudemunicipal/console/internal/model"
)

type countingFetcher struct {
	halls     []model.CityHall
	units     map[string][]model.HealthUnit
	err       error
	hallCalls int
	unitCalls int
}

func (c *countingFetcher) ListCityHalls(ctx context.Context) ([]model.CityHall, error) {
	c.hallCalls++
	if c.err != nil {
		return nil, c.err
	}
	return c.halls, nil
}

func (c *countingFetcher) ListHealthUnits(ctx context.Context, cityHallID string) ([]model.HealthUnit, error) {
	c.unitCalls++
	if c.err != nil {
		return nil, c.err
	}
	return c.units[cityHallID], nil
}

func TestCachedFetcherReusesUntilTTL(t *testing.T) {
	inner := &countingFetcher{
		halls: []model.CityHall{{ID: "ch-1"}},
		units: map[string][]model.HealthUnit{"ch-1": {{ID: "hu-1", CityHallID: "ch-1"}}},
	}
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCachedFetcher(inner, time.Minute)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := cache.ListCityHalls(ctx); err != nil {
			t.Fatalf("ListCityHalls: %v", err)
		}
		if _, err := cache.ListHealthUnits(ctx, "ch-1"); err != nil {
			t.Fatalf("ListHealthUnits: %v", err)
		}
	}
	if inner.hallCalls != 1 || inner.unitCalls != 1 {
		t.Fatalf("expected one call each, got %d/%d", inner.hallCalls, inner.unitCalls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := cache.ListCityHalls(ctx); err != nil {
		t.Fatalf("ListCityHalls: %v", err)
	}
	if inner.hallCalls != 2 {
		t.Fatalf("expired entry should refetch, calls=%d", inner.hallCalls)
	}
}

func TestCachedFetcherInvalidate(t *testing.T) {
	inner := &countingFetcher{halls: []model.CityHall{{ID: "ch-1"}}}
	cache := NewCachedFetcher(inner, time.Hour)
	ctx := context.Background()

	_, _ = cache.ListCityHalls(ctx)
	cache.Invalidate()
	_, _ = cache.ListCityHalls(ctx)

	if inner.hallCalls != 2 {
		t.Fatalf("Invalidate should force refetch, calls=%d", inner.hallCalls)
	}
}

func TestCachedFetcherDoesNotCacheErrors(t *testing.T) {
	inner := &countingFetcher{err: errors.New("offline")}
	cache := NewCachedFetcher(inner, time.Hour)
	ctx := context.Background()

	if _, err := cache.ListCityHalls(ctx); err == nil {
		t.Fatalf("expected error")
	}
	inner.err = nil
	inner.halls = []model.CityHall{{ID: "ch-1"}}

	halls, err := cache.ListCityHalls(ctx)
	if err != nil || len(halls) != 1 {
		t.Fatalf("expected 1 city hall after recovery, got %v %v", halls, err)
	}
}
