package matrixcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aro-via/routing-maps/internal/domain"
	"github.com/aro-via/routing-maps/internal/logger"
)

type fakeProvider struct {
	calls int
	bundle domain.MatrixBundle
	err    error
}

func (f *fakeProvider) DistanceMatrix(context.Context, []domain.Location, time.Time) (domain.MatrixBundle, error) {
	f.calls++
	return f.bundle, f.err
}

func testLocations() []domain.Location {
	return []domain.Location{
		{Lat: 40.0, Lng: -74.0},
		{Lat: 40.1, Lng: -74.1},
	}
}

func TestStore_CacheMissCallsProviderAndCaches(t *testing.T) {
	cache := NewMemoryCache()
	provider := &fakeProvider{bundle: domain.MatrixBundle{
		TimeMatrix:     [][]int{{0, 100}, {100, 0}},
		DistanceMatrix: [][]int{{0, 1000}, {1000, 0}},
	}}
	store := NewStore(cache, provider, time.Minute, logger.Default())

	departure := time.Now().Add(time.Hour)
	bundle, err := store.BuildMatrix(context.Background(), testLocations(), departure)
	require.NoError(t, err)
	assert.Equal(t, 100, bundle.TimeMatrix[0][1])
	assert.Equal(t, 1, provider.calls)

	// Second call within the same cache key hits the cache, not the provider.
	bundle2, err := store.BuildMatrix(context.Background(), testLocations(), departure)
	require.NoError(t, err)
	assert.Equal(t, bundle, bundle2)
	assert.Equal(t, 1, provider.calls, "second call should be served from cache")
}

func TestStore_CacheKeyInvariantUnderCoordinatePermutation(t *testing.T) {
	departure := time.Now().Add(time.Hour)
	locsA := []domain.Location{{Lat: 1, Lng: 2}, {Lat: 3, Lng: 4}}
	locsB := []domain.Location{{Lat: 3, Lng: 4}, {Lat: 1, Lng: 2}}
	assert.Equal(t, buildCacheKey(locsA, departure), buildCacheKey(locsB, departure))
}

func TestStore_CacheKeyInvariantWithinSameHour(t *testing.T) {
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	later := time.Date(2026, 1, 15, 9, 45, 0, 0, time.UTC)
	nextHour := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	locs := testLocations()
	assert.Equal(t, buildCacheKey(locs, base), buildCacheKey(locs, later))
	assert.NotEqual(t, buildCacheKey(locs, base), buildCacheKey(locs, nextHour))
}

func TestStore_UnreachableCacheDegradesToProviderOnly(t *testing.T) {
	cache := NewMemoryCache()
	cache.Unreachable = true
	provider := &fakeProvider{bundle: domain.MatrixBundle{
		TimeMatrix:     [][]int{{0, 1}, {1, 0}},
		DistanceMatrix: [][]int{{0, 1}, {1, 0}},
	}}
	store := NewStore(cache, provider, time.Minute, logger.Default())

	_, err := store.BuildMatrix(context.Background(), testLocations(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestStore_ProviderFailurePropagates(t *testing.T) {
	cache := NewMemoryCache()
	provider := &fakeProvider{err: assert.AnError}
	store := NewStore(cache, provider, time.Minute, logger.Default())

	_, err := store.BuildMatrix(context.Background(), testLocations(), time.Now())
	assert.Error(t, err)
}
