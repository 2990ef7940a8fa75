// Package trigger implements the pure re-routing decision (§4.6): three
// rules plus a cooldown that suppresses all of them, evaluated in a fixed
// order against the driver's current state.
package trigger

import (
	"time"

	"github.com/aro-via/routing-maps/internal/domain"
)

// Reason strings match the session push contract.
const (
	ReasonNone         = ""
	ReasonTrafficDelay = "traffic_delay"
	ReasonStopModified = "stop_modified"
)

// Config carries the evaluator's tunable thresholds (§6 configuration).
type Config struct {
	DelayThresholdMinutes float64
	TrafficIncreaseRatio  float64
	MinRerouteInterval    time.Duration
}

// Evaluate decides whether state warrants a fresh optimization run. Rule
// order is significant: the cooldown (rule 0) short-circuits everything
// else, and rule 2 is skipped entirely when there is no baseline duration
// to compare against.
func Evaluate(state *domain.DriverState, cfg Config, now time.Time) (bool, string) {
	if state.LastRerouteTimestamp != nil {
		since := now.Sub(*state.LastRerouteTimestamp)
		if since < cfg.MinRerouteInterval {
			return false, ReasonNone
		}
	}

	if state.ScheduleDelayMinutes > cfg.DelayThresholdMinutes {
		return true, ReasonTrafficDelay
	}

	if state.OriginalRemainingDuration > 0 &&
		state.RemainingDuration > state.OriginalRemainingDuration*cfg.TrafficIncreaseRatio {
		return true, ReasonTrafficDelay
	}

	if state.StopsChanged {
		return true, ReasonStopModified
	}

	return false, ReasonNone
}
