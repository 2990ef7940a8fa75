// Package driverstate implements the two-key Redis representation of a
// driver's active shift (§4.5): a long-TTL state document and a short-TTL
// GPS fix, kept separate so GPS churn never extends the shift's lifetime.
package driverstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aro-via/routing-maps/internal/domain"
	"github.com/aro-via/routing-maps/internal/logger"
)

// Store is the driver-state store backed by Redis. Every method degrades
// to a no-op (or "not found") on a store failure rather than propagating —
// a driver session should never hard-fail because Redis hiccuped.
type Store struct {
	client   *redis.Client
	stateTTL time.Duration
	gpsTTL   time.Duration
	log      *logger.Logger
}

// NewStore builds a Store. stateTTL defaults to 12h, gpsTTL to 5m (§3, §6).
func NewStore(client *redis.Client, stateTTL, gpsTTL time.Duration, log *logger.Logger) *Store {
	return &Store{client: client, stateTTL: stateTTL, gpsTTL: gpsTTL, log: log}
}

func stateKey(driverID string) string { return fmt.Sprintf("driver:%s:state", driverID) }
func gpsKey(driverID string) string   { return fmt.Sprintf("driver:%s:last_gps", driverID) }

// Save serializes and persists the full DriverState, resetting its TTL.
func (s *Store) Save(ctx context.Context, state *domain.DriverState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, stateKey(state.DriverID), raw, s.stateTTL).Err(); err != nil {
		s.log.WithError(err).Warnw("driver state save failed, degrading to no-op", "driver_id", state.DriverID)
		return nil
	}
	return nil
}

// Get loads the DriverState for driverID, returning (nil, nil) if absent or
// if the store is unreachable — callers treat both the same way (§4.5,
// §7 StoreUnavailable).
func (s *Store) Get(ctx context.Context, driverID string) (*domain.DriverState, error) {
	raw, err := s.client.Get(ctx, stateKey(driverID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.log.WithError(err).Warnw("driver state read failed, treating as not found", "driver_id", driverID)
		return nil, nil
	}

	var state domain.DriverState
	if err := json.Unmarshal(raw, &state); err != nil {
		s.log.WithError(err).Warnw("driver state decode failed, treating as not found", "driver_id", driverID)
		return nil, nil
	}
	return &state, nil
}

// UpdateGPS writes the short-TTL last_gps key unconditionally, and — if the
// main state document exists — patches last_gps into it and re-saves
// preserving its current TTL (not resetting it, per §4.5).
func (s *Store) UpdateGPS(ctx context.Context, driverID string, lat, lng float64, timestamp time.Time) error {
	fix := domain.GPSFix{Lat: lat, Lng: lng, Timestamp: timestamp}
	raw, err := json.Marshal(fix)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, gpsKey(driverID), raw, s.gpsTTL).Err(); err != nil {
		s.log.WithError(err).Warnw("gps write failed, degrading to no-op", "driver_id", driverID)
		return nil
	}

	stateRaw, err := s.client.Get(ctx, stateKey(driverID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return nil
	}

	var state domain.DriverState
	if err := json.Unmarshal(stateRaw, &state); err != nil {
		return nil
	}
	state.LastGPS = &fix

	ttl, err := s.client.TTL(ctx, stateKey(driverID)).Result()
	if err != nil || ttl <= 0 {
		return nil
	}
	patched, err := json.Marshal(&state)
	if err != nil {
		return nil
	}
	if err := s.client.Set(ctx, stateKey(driverID), patched, ttl).Err(); err != nil {
		s.log.WithError(err).Warnw("gps patch-into-state failed, degrading to no-op", "driver_id", driverID)
	}
	return nil
}

// MarkCompleted idempotently appends stopID to the driver's
// completed_stop_ids, preserving the document's current TTL. A missing
// state document is a logged no-op, never fatal (§4.5).
func (s *Store) MarkCompleted(ctx context.Context, driverID, stopID string) error {
	stateRaw, err := s.client.Get(ctx, stateKey(driverID)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.log.Warnw("mark completed: no state found", "driver_id", driverID, "stop_id", stopID)
		return nil
	}
	if err != nil {
		s.log.WithError(err).Warnw("mark completed: read failed, degrading to no-op", "driver_id", driverID)
		return nil
	}

	var state domain.DriverState
	if err := json.Unmarshal(stateRaw, &state); err != nil {
		return nil
	}
	state.MarkCompleted(stopID)

	ttl, err := s.client.TTL(ctx, stateKey(driverID)).Result()
	if err != nil || ttl <= 0 {
		return nil
	}
	patched, err := json.Marshal(&state)
	if err != nil {
		return nil
	}
	if err := s.client.Set(ctx, stateKey(driverID), patched, ttl).Err(); err != nil {
		s.log.WithError(err).Warnw("mark completed: write failed, degrading to no-op", "driver_id", driverID)
	}
	return nil
}

// Clear deletes both keys for driverID (end of shift / session disconnect).
func (s *Store) Clear(ctx context.Context, driverID string) error {
	if err := s.client.Del(ctx, stateKey(driverID), gpsKey(driverID)).Err(); err != nil {
		s.log.WithError(err).Warnw("driver state clear failed, degrading to no-op", "driver_id", driverID)
	}
	return nil
}
