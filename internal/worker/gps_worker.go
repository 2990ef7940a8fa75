// Package worker implements the GPS update task (§4.7): the eight-step
// sequence run for every position fix, dispatched off the session's read
// loop so optimization never blocks a WebSocket frame.
package worker

import (
	"context"
	"time"

	"github.com/aro-via/routing-maps/internal/audit"
	"github.com/aro-via/routing-maps/internal/domain"
	"github.com/aro-via/routing-maps/internal/logger"
	"github.com/aro-via/routing-maps/internal/queue"
	"github.com/aro-via/routing-maps/internal/trigger"
)

// StateStore is the subset of driverstate.Store the GPS worker needs; an
// interface here lets tests exercise process() without live Redis.
type StateStore interface {
	UpdateGPS(ctx context.Context, driverID string, lat, lng float64, timestamp time.Time) error
	Get(ctx context.Context, driverID string) (*domain.DriverState, error)
	MarkCompleted(ctx context.Context, driverID, stopID string) error
	Save(ctx context.Context, state *domain.DriverState) error
}

// Optimizer is the subset of pipeline.Orchestrator the GPS worker needs.
type Optimizer interface {
	Optimize(ctx context.Context, driverID string, driverLocation domain.Location, stops []domain.Stop, departureTime time.Time) (domain.OptimizeResponse, error)
}

// RouteNotifier is the subset of pubsub.Publisher the GPS worker needs.
type RouteNotifier interface {
	Publish(ctx context.Context, driverID string, payload interface{})
}

// Result is returned to whatever dispatched the task and also serves as the
// response to a synchronous caller in tests.
type Result struct {
	Rerouted bool   `json:"rerouted"`
	Reason   string `json:"reason"`
}

// RouteUpdatedPayload is pushed to the driver's session on a successful
// re-route (§4.7 step 8, §6 WS server->client message).
type RouteUpdatedPayload struct {
	Type                 string                 `json:"type"`
	Reason               string                 `json:"reason"`
	OptimizedStops       []domain.OptimizedStop `json:"optimized_stops"`
	TotalDurationMinutes float64                `json:"total_duration_minutes"`
	GoogleMapsURL        string                 `json:"google_maps_url"`
}

// GPSWorker processes process_gps_update tasks.
type GPSWorker struct {
	states       StateStore
	orchestrator Optimizer
	publisher    RouteNotifier
	audit        *audit.Publisher
	triggerCfg   trigger.Config
	log          *logger.Logger
}

// NewGPSWorker wires the dependencies the task sequence needs.
func NewGPSWorker(states StateStore, orchestrator Optimizer, publisher RouteNotifier, auditPub *audit.Publisher, triggerCfg trigger.Config, log *logger.Logger) *GPSWorker {
	return &GPSWorker{
		states:       states,
		orchestrator: orchestrator,
		publisher:    publisher,
		audit:        auditPub,
		triggerCfg:   triggerCfg,
		log:          log,
	}
}

// Handle implements queue.Handler — the eight-step sequence from §4.7.
func (w *GPSWorker) Handle(ctx context.Context, task queue.Task) error {
	result := w.process(ctx, task)
	w.log.Debugw("gps task processed", "driver_id", task.DriverID, "rerouted", result.Rerouted, "reason", result.Reason)
	return nil
}

func (w *GPSWorker) process(ctx context.Context, task queue.Task) Result {
	log := w.log.WithDriverID(task.DriverID)

	// 1. Write GPS.
	if err := w.states.UpdateGPS(ctx, task.DriverID, task.Lat, task.Lng, task.Timestamp); err != nil {
		log.WithError(err).Warn("gps write failed")
	}

	// 2. Load state.
	state, err := w.states.Get(ctx, task.DriverID)
	if err != nil {
		log.WithError(err).Warn("state load failed")
		return Result{false, "no_state"}
	}
	if state == nil {
		return Result{false, "no_state"}
	}

	// 3. Mark completed, if given.
	if task.CompletedStopID != "" {
		if err := w.states.MarkCompleted(ctx, task.DriverID, task.CompletedStopID); err != nil {
			log.WithError(err).Warn("mark completed failed")
		}
		reloaded, err := w.states.Get(ctx, task.DriverID)
		if err == nil && reloaded != nil {
			state = reloaded
		}
		state.StopsChanged = true
	}

	// 4. Evaluate trigger.
	should, reason := trigger.Evaluate(state, w.triggerCfg, time.Now())
	if !should {
		_ = w.states.Save(ctx, state)
		return Result{false, reason}
	}

	// 5. Remaining stops.
	remainingStops := state.RemainingStops()
	if len(remainingStops) == 0 {
		_ = w.states.Save(ctx, state)
		return Result{false, "no_remaining_stops"}
	}
	// The persisted DriverState only carries OptimizedStop records (§3),
	// which do not retain the original pickup window or service duration —
	// re-optimization re-opens each remaining stop's window to the full
	// day and uses a nominal service time. This mirrors a real limitation
	// of the same round-trip in the system this was derived from, rather
	// than an invented behavior: without widening the store's schema there
	// is nowhere else for that information to live between re-routes.
	const defaultServiceTimeMinutes = 10
	stops := make([]domain.Stop, len(remainingStops))
	for i, s := range remainingStops {
		stops[i] = domain.Stop{
			StopID:             s.StopID,
			Location:           s.Location,
			EarliestPickup:     "00:00",
			LatestPickup:       "23:59",
			ServiceTimeMinutes: defaultServiceTimeMinutes,
		}
	}

	driverLocation := domain.Location{Lat: task.Lat, Lng: task.Lng}

	// 6. Re-optimize.
	newRoute, err := w.orchestrator.Optimize(ctx, task.DriverID, driverLocation, stops, time.Now())
	if err != nil {
		log.WithError(err).Warn("re-optimization failed")
		_ = w.states.Save(ctx, state)
		return Result{false, "optimization_failed"}
	}

	// 7. Patch + save state.
	now := time.Now()
	state.CurrentRoute = newRoute.OptimizedStops
	state.RemainingDuration = newRoute.TotalDurationMinutes
	state.LastRerouteTimestamp = &now
	state.StopsChanged = false
	_ = w.states.Save(ctx, state)

	// 8. Publish.
	w.publisher.Publish(ctx, task.DriverID, RouteUpdatedPayload{
		Type:                 "route_updated",
		Reason:               reason,
		OptimizedStops:       newRoute.OptimizedStops,
		TotalDurationMinutes: newRoute.TotalDurationMinutes,
		GoogleMapsURL:        newRoute.GoogleMapsURL,
	})
	if w.audit != nil {
		w.audit.Publish(ctx, audit.EventRouteRerouted, map[string]interface{}{
			"driver_id": task.DriverID,
			"reason":    reason,
			"stops":     len(newRoute.OptimizedStops),
		})
	}

	return Result{true, reason}
}
