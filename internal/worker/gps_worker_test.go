package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aro-via/routing-maps/internal/domain"
	"github.com/aro-via/routing-maps/internal/logger"
	"github.com/aro-via/routing-maps/internal/queue"
	"github.com/aro-via/routing-maps/internal/trigger"
)

type fakeStateStore struct {
	state         *domain.DriverState
	getErr        error
	markErr       error
	savedStates   []*domain.DriverState
	markCompleted []string
}

func (f *fakeStateStore) UpdateGPS(ctx context.Context, driverID string, lat, lng float64, timestamp time.Time) error {
	return nil
}

func (f *fakeStateStore) Get(ctx context.Context, driverID string) (*domain.DriverState, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.state, nil
}

func (f *fakeStateStore) MarkCompleted(ctx context.Context, driverID, stopID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markCompleted = append(f.markCompleted, stopID)
	if f.state != nil {
		f.state.MarkCompleted(stopID)
	}
	return nil
}

func (f *fakeStateStore) Save(ctx context.Context, state *domain.DriverState) error {
	f.savedStates = append(f.savedStates, state)
	return nil
}

type fakeOptimizer struct {
	resp       domain.OptimizeResponse
	err        error
	calledWith []domain.Stop
}

func (f *fakeOptimizer) Optimize(ctx context.Context, driverID string, driverLocation domain.Location, stops []domain.Stop, departureTime time.Time) (domain.OptimizeResponse, error) {
	f.calledWith = stops
	if f.err != nil {
		return domain.OptimizeResponse{}, f.err
	}
	return f.resp, nil
}

type fakeNotifier struct {
	published []RouteUpdatedPayload
}

func (f *fakeNotifier) Publish(ctx context.Context, driverID string, payload interface{}) {
	if p, ok := payload.(RouteUpdatedPayload); ok {
		f.published = append(f.published, p)
	}
}

func testWorker(states StateStore, opt Optimizer, notifier RouteNotifier) *GPSWorker {
	cfg := trigger.Config{
		DelayThresholdMinutes: 5,
		TrafficIncreaseRatio:  1.2,
		MinRerouteInterval:    5 * time.Minute,
	}
	return NewGPSWorker(states, opt, notifier, nil, cfg, logger.Default())
}

func routeWithStops(ids ...string) []domain.OptimizedStop {
	stops := make([]domain.OptimizedStop, len(ids))
	for i, id := range ids {
		stops[i] = domain.OptimizedStop{StopID: id, Sequence: i}
	}
	return stops
}

func TestProcess_NoStateReturnsNoState(t *testing.T) {
	states := &fakeStateStore{state: nil}
	w := testWorker(states, &fakeOptimizer{}, &fakeNotifier{})

	result := w.process(context.Background(), queue.Task{DriverID: "d1", Lat: 1, Lng: 1, Timestamp: time.Now()})

	assert.False(t, result.Rerouted)
	assert.Equal(t, "no_state", result.Reason)
}

func TestProcess_StateLoadErrorReturnsNoState(t *testing.T) {
	states := &fakeStateStore{getErr: errors.New("redis down")}
	w := testWorker(states, &fakeOptimizer{}, &fakeNotifier{})

	result := w.process(context.Background(), queue.Task{DriverID: "d1", Lat: 1, Lng: 1, Timestamp: time.Now()})

	assert.False(t, result.Rerouted)
	assert.Equal(t, "no_state", result.Reason)
}

func TestProcess_TriggerNotFiredSavesAndReturnsReason(t *testing.T) {
	state := &domain.DriverState{
		DriverID:     "d1",
		CurrentRoute: routeWithStops("s0", "s1"),
	}
	states := &fakeStateStore{state: state}
	w := testWorker(states, &fakeOptimizer{}, &fakeNotifier{})

	result := w.process(context.Background(), queue.Task{DriverID: "d1", Lat: 1, Lng: 1, Timestamp: time.Now()})

	assert.False(t, result.Rerouted)
	assert.Equal(t, "", result.Reason)
	require.Len(t, states.savedStates, 1)
}

func TestProcess_NoRemainingStopsAfterCompletion(t *testing.T) {
	state := &domain.DriverState{
		DriverID:             "d1",
		CurrentRoute:         routeWithStops("s0"),
		ScheduleDelayMinutes: 999,
	}
	states := &fakeStateStore{state: state}
	w := testWorker(states, &fakeOptimizer{}, &fakeNotifier{})

	result := w.process(context.Background(), queue.Task{DriverID: "d1", Lat: 1, Lng: 1, Timestamp: time.Now(), CompletedStopID: "s0"})

	assert.False(t, result.Rerouted)
	assert.Equal(t, "no_remaining_stops", result.Reason)
}

func TestProcess_OptimizationFailedStillSavesState(t *testing.T) {
	state := &domain.DriverState{
		DriverID:             "d1",
		CurrentRoute:         routeWithStops("s0", "s1"),
		ScheduleDelayMinutes: 999,
	}
	states := &fakeStateStore{state: state}
	opt := &fakeOptimizer{err: errors.New("solver timed out")}
	w := testWorker(states, opt, &fakeNotifier{})

	result := w.process(context.Background(), queue.Task{DriverID: "d1", Lat: 1, Lng: 1, Timestamp: time.Now()})

	assert.False(t, result.Rerouted)
	assert.Equal(t, "optimization_failed", result.Reason)
	require.Len(t, states.savedStates, 1)
}

// TestProcess_CompletedStopExcludedFromReoptimization covers end-to-end
// scenario 5: 3 stops, s0 marked complete, re-optimize only s1/s2 and the
// published payload must not mention s0.
func TestProcess_CompletedStopExcludedFromReoptimization(t *testing.T) {
	state := &domain.DriverState{
		DriverID:             "d1",
		CurrentRoute:         routeWithStops("s0", "s1", "s2"),
		ScheduleDelayMinutes: 999,
	}
	states := &fakeStateStore{state: state}
	opt := &fakeOptimizer{resp: domain.OptimizeResponse{
		DriverID:             "d1",
		OptimizedStops:       routeWithStops("s1", "s2"),
		TotalDurationMinutes: 42,
		GoogleMapsURL:        "https://maps.example/d1",
	}}
	notifier := &fakeNotifier{}
	w := testWorker(states, opt, notifier)

	result := w.process(context.Background(), queue.Task{
		DriverID:        "d1",
		Lat:             1,
		Lng:             1,
		Timestamp:       time.Now(),
		CompletedStopID: "s0",
	})

	require.True(t, result.Rerouted)
	require.Len(t, opt.calledWith, 2)
	assert.Equal(t, "s1", opt.calledWith[0].StopID)
	assert.Equal(t, "s2", opt.calledWith[1].StopID)

	require.Len(t, notifier.published, 1)
	for _, s := range notifier.published[0].OptimizedStops {
		assert.NotEqual(t, "s0", s.StopID)
	}
}
