package matrixcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/aro-via/routing-maps/internal/domain"
	"github.com/aro-via/routing-maps/internal/logger"
)

// keyDigestLen mirrors the original MD5 hex digest's 32-character width
// without relying on the broken MD5 construction: SHA-256, truncated.
const keyDigestLen = 32

// Store composes a Cache with a Provider to implement §4.1's read/miss
// path: cache hit returns immediately; a miss (or unreachable cache) calls
// the provider and best-effort repopulates the cache.
type Store struct {
	cache    Cache
	provider Provider
	ttl      time.Duration
	log      *logger.Logger
}

// NewStore builds a Store. ttl is the cache-entry lifetime (default 30m).
func NewStore(cache Cache, provider Provider, ttl time.Duration, log *logger.Logger) *Store {
	return &Store{cache: cache, provider: provider, ttl: ttl, log: log}
}

// BuildMatrix returns the distance-matrix bundle for locations (index 0 =
// driver origin) at departure, consulting the cache first.
func (s *Store) BuildMatrix(ctx context.Context, locations []domain.Location, departure time.Time) (domain.MatrixBundle, error) {
	key := buildCacheKey(locations, departure)

	if raw, hit, err := s.cache.Get(ctx, key); err != nil {
		s.log.WithError(err).Warnw("matrix cache read error, falling through to provider", "key", key)
	} else if hit {
		var bundle domain.MatrixBundle
		if err := json.Unmarshal(raw, &bundle); err == nil {
			s.log.Debugw("matrix cache hit", "key", key)
			return bundle, nil
		}
		s.log.Warnw("matrix cache decode error, falling through to provider", "key", key)
	}

	s.log.Infow("matrix cache miss, calling provider", "key", key, "n", len(locations))
	bundle, err := s.provider.DistanceMatrix(ctx, locations, departure)
	if err != nil {
		return domain.MatrixBundle{}, err
	}

	if raw, err := json.Marshal(bundle); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.log.Warnw("matrix cache write error, result not cached", "key", key, "error", err)
		}
	}
	return bundle, nil
}

// buildCacheKey produces a deterministic key from the coordinate set
// (order-independent — sorted before hashing) and the departure hour
// (truncated — finer granularity would shatter cache locality for near-
// identical traffic predictions; see SPEC_FULL.md §9 open question).
func buildCacheKey(locations []domain.Location, departure time.Time) string {
	sorted := make([]domain.Location, len(locations))
	copy(sorted, locations)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Lat != sorted[j].Lat {
			return sorted[i].Lat < sorted[j].Lat
		}
		return sorted[i].Lng < sorted[j].Lng
	})

	payload := struct {
		Locs []domain.Location `json:"locs"`
		Hour string            `json:"hour"`
	}{
		Locs: sorted,
		Hour: departure.UTC().Format("2006010215"),
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	digest := hex.EncodeToString(sum[:])[:keyDigestLen]
	return fmt.Sprintf("dm:%s", digest)
}
