// Package matrixcache implements the content-addressed distance-matrix
// cache described in §4.1: a small Cache abstraction in front of
// Redis, and a Store that wraps cache lookups around a provider call.
package matrixcache

import (
	"context"
	"time"
)

// Cache is the minimal interface the matrix store needs from its backend.
// Kept narrow (rather than exposing the full go-redis client) so tests can
// substitute an in-memory implementation.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}
