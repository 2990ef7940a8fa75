// Package pipeline sequences the distance-matrix cache, the VRPTW solver,
// and the route assembler into one call usable from both the HTTP handler
// and the GPS worker (§4.4).
package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/aro-via/routing-maps/internal/apperror"
	"github.com/aro-via/routing-maps/internal/assembler"
	"github.com/aro-via/routing-maps/internal/domain"
	"github.com/aro-via/routing-maps/internal/logger"
	"github.com/aro-via/routing-maps/internal/matrixcache"
	"github.com/aro-via/routing-maps/internal/solver"
)

// Orchestrator runs one full optimize cycle.
type Orchestrator struct {
	matrices     *matrixcache.Store
	solverBudget time.Duration
	log          *logger.Logger
}

// NewOrchestrator builds an Orchestrator backed by the given matrix store.
func NewOrchestrator(matrices *matrixcache.Store, solverBudget time.Duration, log *logger.Logger) *Orchestrator {
	return &Orchestrator{matrices: matrices, solverBudget: solverBudget, log: log}
}

// Optimize builds the matrix bundle, solves the VRPTW, re-indexes the
// matrices to the solved order, and assembles the final response.
func (o *Orchestrator) Optimize(ctx context.Context, driverID string, driverLocation domain.Location, stops []domain.Stop, departureTime time.Time) (domain.OptimizeResponse, error) {
	locations := make([]domain.Location, 0, len(stops)+1)
	locations = append(locations, driverLocation)
	for _, s := range stops {
		locations = append(locations, s.Location)
	}

	bundle, err := o.matrices.BuildMatrix(ctx, locations, departureTime)
	if err != nil {
		return domain.OptimizeResponse{}, err
	}

	departureMinutes := minutesSinceMidnight(departureTime)

	order, err := solver.Solve(ctx, bundle.TimeMatrix, stops, departureMinutes, o.solverBudget)
	if err != nil {
		return domain.OptimizeResponse{}, err
	}

	orderedStops := make([]domain.Stop, len(order))
	for newIdx, stopIdx := range order {
		orderedStops[newIdx] = stops[stopIdx]
	}

	reindexed, err := reindexMatrices(bundle, order)
	if err != nil {
		return domain.OptimizeResponse{}, apperror.Internal("matrix re-indexing failed", err)
	}

	resp := assembler.Assemble(driverID, driverLocation, orderedStops, reindexed, departureMinutes)

	naiveMatrices := bundle // original input order, driver at 0
	naiveDuration := naiveDurationMinutes(naiveMatrices, stops)
	if resp.TotalDurationMinutes > 0 && naiveDuration > 0 {
		resp.OptimizationScore = math.Round((naiveDuration/resp.TotalDurationMinutes)*100) / 100
	} else {
		resp.OptimizationScore = 1.0
	}

	return resp, nil
}

// reindexMatrices produces a new bundle where row/col k corresponds to
// order[k-1] (the solved order), with row/col 0 remaining the depot. This
// is the contract the assembler depends on (§4.4) — getting it wrong
// silently breaks every downstream ETA, so it is covered directly by tests.
func reindexMatrices(bundle domain.MatrixBundle, order []int) (domain.MatrixBundle, error) {
	n := len(order)
	// oldIndex[0] = depot (0); oldIndex[k] = order[k-1]+1 for k in 1..n
	oldIndex := make([]int, n+1)
	oldIndex[0] = 0
	for k, stopIdx := range order {
		oldIndex[k+1] = stopIdx + 1
	}

	out := domain.MatrixBundle{
		TimeMatrix:     make([][]int, n+1),
		DistanceMatrix: make([][]int, n+1),
	}
	for i := 0; i <= n; i++ {
		out.TimeMatrix[i] = make([]int, n+1)
		out.DistanceMatrix[i] = make([]int, n+1)
		for j := 0; j <= n; j++ {
			out.TimeMatrix[i][j] = bundle.TimeMatrix[oldIndex[i]][oldIndex[j]]
			out.DistanceMatrix[i][j] = bundle.DistanceMatrix[oldIndex[i]][oldIndex[j]]
		}
	}
	return out, nil
}

// naiveDurationMinutes computes the duration of visiting stops in their
// original input order (driver at matrix index 0), used as the
// optimization_score baseline.
func naiveDurationMinutes(bundle domain.MatrixBundle, stops []domain.Stop) float64 {
	current := 0
	prev := 0
	for i, s := range stops {
		node := i + 1
		current += bundle.TimeMatrix[prev][node] / 60
		current += s.ServiceTimeMinutes
		prev = node
	}
	return float64(current)
}

func minutesSinceMidnight(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
