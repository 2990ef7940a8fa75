// Package solver formulates the Vehicle Routing Problem with Time Windows
// (§4.2) and delegates the actual search to nextmv-io/sdk's constraint-
// programming route package — the sole real CP/VRP library this module is
// grounded on.
//
// Node index space: nextmv assigns stops indices 0..n-1 (matching the
// `stops` slice passed to route.NewRouter) and appends one synthetic start
// node and one synthetic end node per vehicle after the stop indices. With
// exactly one vehicle that places the depot at indices n and n+1. A solved
// vehicle's Route() therefore has the shape
// [start, stop, stop, ..., stop, end]. This adapter maps that node index
// space onto the caller's matrix convention (index 0 = depot, 1..n = stops)
// via toMatrixIndex below.
package solver

import (
	"context"
	"fmt"
	"time"

	"github.com/nextmv-io/sdk/route"
	"github.com/nextmv-io/sdk/store"

	"github.com/aro-via/routing-maps/internal/apperror"
	"github.com/aro-via/routing-maps/internal/domain"
)

const (
	vehicleID = "driver"
	// slackMaxMinutes bounds how long the vehicle may idle at a stop
	// waiting for its window to open (§4.2).
	slackMaxMinutes = 30
)

// epoch anchors the absolute-clock time windows the nextmv route package
// expects. Only differences between times matter to the solver, so any
// fixed reference instant is sufficient as long as it's used consistently
// for the shift window and every stop window in a single solve.
var epoch = time.Unix(0, 0).UTC()

func minutesToAbsolute(minutes int) time.Time {
	return epoch.Add(time.Duration(minutes) * time.Minute)
}

// matrixMeasure adapts a time-matrix bundle (§4.1, depot at row/col 0) into
// nextmv's route.ByIndex cost interface, translating between nextmv's node
// index space and the caller's matrix index space.
type matrixMeasure struct {
	matrix   [][]int
	stopCount int
}

func (m matrixMeasure) toMatrixIndex(nodeIndex int) int {
	if nodeIndex < m.stopCount {
		return nodeIndex + 1 // stop k -> matrix row/col k+1
	}
	return 0 // synthetic start/end node -> depot
}

func (m matrixMeasure) Cost(from, to int) float64 {
	return float64(m.matrix[m.toMatrixIndex(from)][m.toMatrixIndex(to)])
}

// Solve formulates and solves a single-vehicle VRPTW over the given stops
// and (n+1)x(n+1) travel-time matrix (seconds, depot at index 0), departing
// at departureMinutes (minutes since midnight). It returns the visit order
// as 0-based indices into stops (depot excluded), or an Infeasible error if
// no solution satisfies every stop's time window within budget.
func Solve(ctx context.Context, timeMatrixSeconds [][]int, stops []domain.Stop, departureMinutes int, budget time.Duration) ([]int, error) {
	n := len(stops)
	if n == 0 {
		return nil, apperror.Infeasible("no stops to route")
	}
	if n == 1 {
		return []int{0}, nil
	}

	routeStops := make([]route.Stop, n)
	windows := make([]route.Window, n)
	services := make([]route.Service, n)

	for i, st := range stops {
		routeStops[i] = route.Stop{
			ID:       st.StopID,
			Position: route.Position{Lon: st.Location.Lng, Lat: st.Location.Lat},
		}

		earliest, err := domain.TimeStrToMinutes(st.EarliestPickup)
		if err != nil {
			return nil, apperror.Validation("earliest_pickup", err.Error())
		}
		latest, err := domain.TimeStrToMinutes(st.LatestPickup)
		if err != nil {
			return nil, apperror.Validation("latest_pickup", err.Error())
		}
		windows[i] = route.Window{
			TimeWindow: route.TimeWindow{
				Start: minutesToAbsolute(earliest),
				End:   minutesToAbsolute(latest),
			},
			MaxWait: slackMaxMinutes,
		}
		services[i] = route.Service{ID: st.StopID, Duration: st.ServiceTimeMinutes * 60}
	}

	measure := matrixMeasure{matrix: timeMatrixSeconds, stopCount: n}
	travelTimes := []route.ByIndex{measure}

	depot := route.Position{} // unused for cost — matrixMeasure overrides travel cost directly

	shiftEnd := departureMinutes + domain.MinutesPerDay
	router, err := route.NewRouter(
		routeStops,
		[]string{vehicleID},
		route.Starts([]route.Position{depot}),
		route.Ends([]route.Position{depot}),
		route.Services(services),
		route.Shifts([]route.TimeWindow{{Start: minutesToAbsolute(departureMinutes), End: minutesToAbsolute(shiftEnd)}}),
		route.Windows(windows),
		route.ValueFunctionMeasures(travelTimes),
		route.TravelTimeMeasures(travelTimes),
	)
	if err != nil {
		return nil, apperror.Internal("vrptw formulation failed", err)
	}

	opts := store.DefaultOptions()
	opts.Limits.Duration = budget

	solverInstance, err := router.Solver(opts)
	if err != nil {
		return nil, apperror.Internal("vrptw solver construction failed", err)
	}

	last := solverInstance.Last(ctx)
	if last == nil {
		return nil, apperror.Infeasible(fmt.Sprintf("no feasible route found for %d stops within the given time windows and travel times", n))
	}

	vehicles := route.Vehicles(last.Store())
	if len(vehicles) == 0 {
		return nil, apperror.Infeasible(fmt.Sprintf("no feasible route found for %d stops within the given time windows and travel times", n))
	}

	nodes := vehicles[0].Route()
	if len(nodes) < 2 {
		return nil, apperror.Infeasible(fmt.Sprintf("no feasible route found for %d stops within the given time windows and travel times", n))
	}

	// Strip the synthetic start/end depot nodes nextmv appends around the
	// vehicle's assigned stops.
	order := nodes[1 : len(nodes)-1]
	if len(order) != n {
		return nil, apperror.Infeasible(fmt.Sprintf("solver assigned %d of %d stops within the given time windows", len(order), n))
	}
	return order, nil
}
