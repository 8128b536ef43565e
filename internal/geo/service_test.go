package geo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clark-Hu/rate-the-washroom/internal/apperr"
	"github.com/Clark-Hu/rate-the-washroom/internal/domain"
	"github.com/Clark-Hu/rate-the-washroom/internal/logging"
	"github.com/Clark-Hu/rate-the-washroom/internal/repository"
	"github.com/Clark-Hu/rate-the-washroom/internal/testutil"
)

// memoryCache is an in-process RangeCache keyed by a generation counter.
type memoryCache struct {
	mu      sync.Mutex
	gen     int
	entries map[string][]domain.Facility
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]domain.Facility{}}
}

func (m *memoryCache) key(b domain.Bounds) string {
	return fmt.Sprintf("%d|%v", m.gen, b)
}

func (m *memoryCache) Get(_ context.Context, b domain.Bounds) (string, []domain.Facility, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return "", nil, false, errors.New("cache down")
	}
	k := m.key(b)
	v, ok := m.entries[k]
	return k, v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, facilities []domain.Facility) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = facilities
	return nil
}

func (m *memoryCache) Invalidate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	return nil
}

type testEnv struct {
	ctx  context.Context
	repo *repository.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	pool := testutil.NewPool(t, "washrooms_geo_test")
	return &testEnv{ctx: context.Background(), repo: repository.NewWithPool(pool)}
}

func (e *testEnv) create(t *testing.T, name string, lat, lon float64) domain.Facility {
	t.Helper()
	f, err := e.repo.Facilities.Create(e.ctx, repository.FacilityCreateParams{
		Name:     name,
		Location: domain.Location{Latitude: lat, Longitude: lon},
	})
	require.NoError(t, err)
	return f
}

func ids(facilities []domain.Facility) []string {
	out := make([]string, 0, len(facilities))
	for _, f := range facilities {
		out = append(out, f.ID)
	}
	return out
}

func TestFindInBounds_ScenarioB(t *testing.T) {
	env := newTestEnv(t)
	svc := NewService(env.repo, Options{Logger: logging.Nop()})

	a := env.create(t, "A", 49.2, -123.1)
	b := env.create(t, "B", 49.5, -123.0)
	env.create(t, "C", 49.6, -123.2)

	got, err := svc.FindInBounds(env.ctx, domain.Bounds{MinLat: 49.0, MinLon: -123.5, MaxLat: 49.5, MaxLon: -123.0})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids(got))
}

func TestFindInBounds_DegeneratePoint(t *testing.T) {
	env := newTestEnv(t)
	svc := NewService(env.repo, Options{Logger: logging.Nop()})

	f := env.create(t, "point", 49.2827, -123.1207)
	got, err := svc.FindInBounds(env.ctx, domain.Bounds{MinLat: 49.2827, MinLon: -123.1207, MaxLat: 49.2827, MaxLon: -123.1207})
	require.NoError(t, err)
	assert.Equal(t, []string{f.ID}, ids(got))

	got, err = svc.FindInBounds(env.ctx, domain.Bounds{MinLat: 0, MinLon: 0, MaxLat: 0, MaxLon: 0})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindInBounds_InvalidBounds(t *testing.T) {
	svc := NewService(&repository.Repository{}, Options{Logger: logging.Nop()})

	tests := []struct {
		name string
		b    domain.Bounds
	}{
		{"inverted latitude", domain.Bounds{MinLat: 50, MinLon: -123, MaxLat: 49, MaxLon: -122}},
		{"antimeridian", domain.Bounds{MinLat: -10, MinLon: 170, MaxLat: 10, MaxLon: -170}},
		{"latitude overflow", domain.Bounds{MinLat: -95, MinLon: 0, MaxLat: 0, MaxLon: 1}},
		{"nan", domain.Bounds{MinLat: math.NaN(), MinLon: 0, MaxLat: 1, MaxLon: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.FindInBounds(context.Background(), tt.b)
			assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "got %v", err)
		})
	}
}

func TestFindInBounds_UsesCacheUntilInvalidated(t *testing.T) {
	env := newTestEnv(t)
	cache := newMemoryCache()
	svc := NewService(env.repo, Options{Cache: cache, Logger: logging.Nop()})
	bounds := domain.Bounds{MinLat: 49.0, MinLon: -123.5, MaxLat: 49.5, MaxLon: -123.0}

	first := env.create(t, "first", 49.1, -123.1)
	got, err := svc.FindInBounds(env.ctx, bounds)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, ids(got))

	// Served from cache: the new row is invisible until invalidation.
	second := env.create(t, "second", 49.2, -123.2)
	got, err = svc.FindInBounds(env.ctx, bounds)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, ids(got))

	require.NoError(t, cache.Invalidate(env.ctx))
	got, err = svc.FindInBounds(env.ctx, bounds)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids(got))
}

func TestFindInBounds_CacheFailureFallsBackToStore(t *testing.T) {
	env := newTestEnv(t)
	cache := newMemoryCache()
	cache.failGet = true
	svc := NewService(env.repo, Options{Cache: cache, Logger: logging.Nop()})

	f := env.create(t, "fallback", 10, 10)
	got, err := svc.FindInBounds(env.ctx, domain.Bounds{MinLat: 9, MinLon: 9, MaxLat: 11, MaxLon: 11})
	require.NoError(t, err)
	assert.Equal(t, []string{f.ID}, ids(got))
	assert.Empty(t, cache.entries)
}

func TestGetFacility(t *testing.T) {
	env := newTestEnv(t)
	svc := NewService(env.repo, Options{Logger: logging.Nop()})
	f := env.create(t, "lookup", 49.3, -123.1)

	got, err := svc.GetFacility(env.ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, "lookup", got.Name)

	_, err = svc.GetFacility(env.ctx, uuid.NewString())
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)

	_, err = svc.GetFacility(env.ctx, "washroom-1")
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "got %v", err)
}

func TestCreateFacility_InvalidatesCachedRanges(t *testing.T) {
	env := newTestEnv(t)
	cache := newMemoryCache()
	svc := NewService(env.repo, Options{Cache: cache, Logger: logging.Nop()})
	bounds := domain.Bounds{MinLat: 49.0, MinLon: -123.5, MaxLat: 49.5, MaxLon: -123.0}

	got, err := svc.FindInBounds(env.ctx, bounds)
	require.NoError(t, err)
	assert.Empty(t, got)

	created, err := svc.CreateFacility(env.ctx, repository.FacilityCreateParams{
		Name:     "  Second Beach  ",
		Location: domain.Location{Latitude: 49.29, Longitude: -123.15},
	})
	require.NoError(t, err)
	assert.Equal(t, "Second Beach", created.Name)
	assert.Zero(t, created.RatingCount)

	got, err = svc.FindInBounds(env.ctx, bounds)
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID}, ids(got))
}

func TestCreateFacility_Validation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewService(env.repo, Options{Logger: logging.Nop()})

	tests := []repository.FacilityCreateParams{
		{Name: " ", Location: domain.Location{Latitude: 1, Longitude: 1}},
		{Name: "x", Location: domain.Location{Latitude: 91, Longitude: 1}},
		{Name: "x", Location: domain.Location{Latitude: 1, Longitude: -181}},
		{Name: "x", Location: domain.Location{Latitude: math.NaN(), Longitude: 1}},
	}
	for _, params := range tests {
		_, err := svc.CreateFacility(env.ctx, params)
		assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "params %+v: got %v", params, err)
	}
}

func TestCreateFacility_HonoursOperationTimeout(t *testing.T) {
	env := newTestEnv(t)
	svc := NewService(env.repo, Options{OpTimeout: time.Nanosecond, Logger: logging.Nop()})

	_, err := svc.CreateFacility(env.ctx, repository.FacilityCreateParams{
		Name:     "slow",
		Location: domain.Location{Latitude: 1, Longitude: 1},
	})
	assert.True(t, apperr.Is(err, apperr.KindUnavailable), "got %v", err)
}
