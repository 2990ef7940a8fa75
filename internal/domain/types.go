// Package domain defines the data model shared by every component: the
// request/response shapes for a single optimize call, the matrix bundle
// passed between the cache, solver, and assembler, and the driver state
// document persisted across a shift.
package domain

import (
	"fmt"
	"time"

	"github.com/aro-via/routing-maps/internal/apperror"
)

// Location is a WGS-84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks the coordinate is within the valid WGS-84 range.
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return apperror.Validation("lat", "latitude must be between -90 and 90")
	}
	if l.Lng < -180 || l.Lng > 180 {
		return apperror.Validation("lng", "longitude must be between -180 and 180")
	}
	return nil
}

// Stop is a single pickup requested by the caller. stop_id is opaque — the
// service never assumes it carries any meaning.
type Stop struct {
	StopID             string   `json:"stop_id"`
	Location           Location `json:"location"`
	EarliestPickup     string   `json:"earliest_pickup"` // "HH:MM" local time-of-day
	LatestPickup       string   `json:"latest_pickup"`
	ServiceTimeMinutes int      `json:"service_time_minutes"`
}

// Validate checks the stop's own fields in isolation (window ordering,
// service time bounds, coordinate range). It does not know about sibling
// stops or the request-level stop count bound.
func (s Stop) Validate() error {
	if s.StopID == "" {
		return apperror.Validation("stop_id", "stop_id is required")
	}
	if err := s.Location.Validate(); err != nil {
		return err
	}
	earliest, err := TimeStrToMinutes(s.EarliestPickup)
	if err != nil {
		return apperror.Validation("earliest_pickup", err.Error())
	}
	latest, err := TimeStrToMinutes(s.LatestPickup)
	if err != nil {
		return apperror.Validation("latest_pickup", err.Error())
	}
	if earliest >= latest {
		return apperror.Validation("latest_pickup", "latest_pickup must be after earliest_pickup")
	}
	if s.ServiceTimeMinutes < 1 || s.ServiceTimeMinutes > 60 {
		return apperror.Validation("service_time_minutes", "service_time_minutes must be between 1 and 60")
	}
	return nil
}

// OptimizeRequest is the input to the planning path (§4.4 pipeline orchestrator).
type OptimizeRequest struct {
	DriverID       string    `json:"driver_id"`
	DriverLocation Location  `json:"driver_location"`
	DepartureTime  time.Time `json:"departure_time"`
	Stops          []Stop    `json:"stops"`
}

// MinStops is the minimum stop count accepted by a single request; the
// upper bound is configurable via solver.max_stops.
const MinStops = 2

// Validate checks structural validity; maxStops is injected by the caller
// since it is a configuration value, not a domain constant.
func (r OptimizeRequest) Validate(maxStops int) error {
	if r.DriverID == "" {
		return apperror.Validation("driver_id", "driver_id is required")
	}
	if err := r.DriverLocation.Validate(); err != nil {
		return err
	}
	if r.DepartureTime.Before(time.Now().Add(-time.Minute)) {
		return apperror.Validation("departure_time", "departure_time must not be in the past")
	}
	if len(r.Stops) < MinStops || len(r.Stops) > maxStops {
		return apperror.Validation("stops", fmt.Sprintf("stop count must be between %d and %d", MinStops, maxStops))
	}
	for i, s := range r.Stops {
		if err := s.Validate(); err != nil {
			if ae, ok := err.(*apperror.Error); ok {
				return ae.WithDetail("stop_index", i)
			}
			return err
		}
	}
	return nil
}

// MatrixBundle holds the (n+1)x(n+1) travel-time (seconds) and
// travel-distance (meters) matrices. Row/column 0 is always the driver
// origin; rows/columns 1..n correspond to stops in whatever order the
// caller indexed them by.
type MatrixBundle struct {
	TimeMatrix     [][]int `json:"time_matrix"`
	DistanceMatrix [][]int `json:"distance_matrix"`
}

// UnreachableCost is the sentinel cost recorded for a pair the provider
// reports as unreachable, chosen high enough the solver always avoids it.
const UnreachableCost = 999_999

// OptimizedStop is one stop in the solved visit order.
type OptimizedStop struct {
	StopID        string   `json:"stop_id"`
	Sequence      int      `json:"sequence"`
	Location      Location `json:"location"`
	ArrivalTime   string   `json:"arrival_time"`
	DepartureTime string   `json:"departure_time"`
}

// OptimizeResponse is the output of the planning path and the payload
// published on a successful re-route.
type OptimizeResponse struct {
	DriverID             string          `json:"driver_id"`
	OptimizedStops       []OptimizedStop `json:"optimized_stops"`
	TotalDistanceKM      float64         `json:"total_distance_km"`
	TotalDurationMinutes float64         `json:"total_duration_minutes"`
	GoogleMapsURL        string          `json:"google_maps_url"`
	OptimizationScore    float64         `json:"optimization_score"`
}

// DriverStatus is the lifecycle state of a driver's active shift.
type DriverStatus string

const (
	StatusActive    DriverStatus = "active"
	StatusCompleted DriverStatus = "completed"
	StatusIdle      DriverStatus = "idle"
)

// GPSFix is the most recent position reported for a driver.
type GPSFix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// DriverState is the single document tracked per active shift (§3, §4.5).
type DriverState struct {
	DriverID                  string          `json:"driver_id"`
	CurrentRoute              []OptimizedStop `json:"current_route"`
	CompletedStopIDs          []string        `json:"completed_stop_ids"`
	LastGPS                   *GPSFix         `json:"last_gps,omitempty"`
	RemainingDuration         float64         `json:"remaining_duration"`
	OriginalRemainingDuration float64         `json:"original_remaining_duration"`
	ScheduleDelayMinutes      float64         `json:"schedule_delay_minutes"`
	LastRerouteTimestamp      *time.Time      `json:"last_reroute_timestamp,omitempty"`
	StopsChanged              bool            `json:"stops_changed"`
	Status                    DriverStatus    `json:"status"`
}

// IsCompleted reports whether stopID has already been marked complete.
func (s *DriverState) IsCompleted(stopID string) bool {
	for _, id := range s.CompletedStopIDs {
		if id == stopID {
			return true
		}
	}
	return false
}

// MarkCompleted adds stopID to CompletedStopIDs idempotently.
func (s *DriverState) MarkCompleted(stopID string) {
	if s.IsCompleted(stopID) {
		return
	}
	s.CompletedStopIDs = append(s.CompletedStopIDs, stopID)
}

// RemainingStops returns the subset of CurrentRoute not yet completed, in
// their current sequence order. This is the set the re-optimizer re-solves.
func (s *DriverState) RemainingStops() []OptimizedStop {
	remaining := make([]OptimizedStop, 0, len(s.CurrentRoute))
	for _, stop := range s.CurrentRoute {
		if !s.IsCompleted(stop.StopID) {
			remaining = append(remaining, stop)
		}
	}
	return remaining
}
