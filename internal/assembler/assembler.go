// Package assembler turns a solved visit order and its matrices into a
// fully populated route: per-stop arrival/departure clocks, totals, and the
// maps URL (§4.3).
package assembler

import (
	"fmt"
	"math"
	"strings"

	"github.com/aro-via/routing-maps/internal/domain"
)

// mapsBaseURL is the base used to construct the caller-facing directions
// link. Coordinates only — never a stop_id (§3 invariant).
const mapsBaseURL = "https://www.google.com/maps/dir"

// Assemble walks orderedStops (already in solved visit order) against
// matrices indexed to that same order (row/col 0 = driver, row/col k =
// orderedStops[k-1]) and produces a response with every field except
// OptimizationScore, which the orchestrator fills in once it knows the
// naive-order duration.
func Assemble(driverID string, driverLocation domain.Location, orderedStops []domain.Stop, matrices domain.MatrixBundle, departureMinutes int) domain.OptimizeResponse {
	n := len(orderedStops)
	optimized := make([]domain.OptimizedStop, 0, n)

	current := departureMinutes
	prevNode := 0
	totalDistanceMeters := 0

	for k, stop := range orderedStops {
		node := k + 1
		travelSeconds := matrices.TimeMatrix[prevNode][node]
		// Intentional floor-division of travel seconds to minutes — see
		// SPEC_FULL.md §9 open question; preserved as specified.
		arrival := current + travelSeconds/60
		departure := arrival + stop.ServiceTimeMinutes

		totalDistanceMeters += matrices.DistanceMatrix[prevNode][node]

		optimized = append(optimized, domain.OptimizedStop{
			StopID:        stop.StopID,
			Sequence:      k + 1,
			Location:      stop.Location,
			ArrivalTime:   domain.MinutesToTimeStr(arrival),
			DepartureTime: domain.MinutesToTimeStr(departure),
		})

		current = departure
		prevNode = node
	}

	totalDurationMinutes := roundTo2(float64(current - departureMinutes))
	totalDistanceKM := roundTo2(float64(totalDistanceMeters) / 1000)

	return domain.OptimizeResponse{
		DriverID:             driverID,
		OptimizedStops:       optimized,
		TotalDistanceKM:      totalDistanceKM,
		TotalDurationMinutes: totalDurationMinutes,
		GoogleMapsURL:        buildMapsURL(driverLocation, orderedStops),
		OptimizationScore:    0,
	}
}

func buildMapsURL(driverLocation domain.Location, orderedStops []domain.Stop) string {
	parts := make([]string, 0, len(orderedStops)+1)
	parts = append(parts, formatCoord(driverLocation))
	for _, s := range orderedStops {
		parts = append(parts, formatCoord(s.Location))
	}
	return fmt.Sprintf("%s/%s", mapsBaseURL, strings.Join(parts, "/"))
}

func formatCoord(loc domain.Location) string {
	return fmt.Sprintf("%g,%g", loc.Lat, loc.Lng)
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
