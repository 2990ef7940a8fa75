package matrixcache

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"github.com/aro-via/routing-maps/internal/apperror"
	"github.com/aro-via/routing-maps/internal/domain"
)

// providerQPS caps outbound calls to the Google Distance Matrix API well
// under its per-project quota; a cache miss storm (e.g. many drivers
// starting a shift at once) must not trip the provider's own rate limiter.
const providerQPS = 10

// Provider is the external distance-matrix provider. It is the only hard
// dependency of this package that cannot degrade gracefully — when it fails
// the caller gets ProviderUnavailable.
type Provider interface {
	DistanceMatrix(ctx context.Context, locations []domain.Location, departure time.Time) (domain.MatrixBundle, error)
}

// GoogleProvider calls the Google Distance Matrix API via the official Go
// client, matching the provider call shape the service was originally built
// against (traffic_model=best_guess, units=metric, departure_time pinned so
// results reflect predicted traffic).
type GoogleProvider struct {
	client  *maps.Client
	limiter *rate.Limiter
}

// NewGoogleProvider builds a GoogleProvider authenticated with apiKey.
func NewGoogleProvider(apiKey string) (*GoogleProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, apperror.ProviderUnavailable(err)
	}
	return &GoogleProvider{client: client, limiter: rate.NewLimiter(providerQPS, providerQPS)}, nil
}

func (p *GoogleProvider) DistanceMatrix(ctx context.Context, locations []domain.Location, departure time.Time) (domain.MatrixBundle, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.MatrixBundle{}, apperror.ProviderUnavailable(err)
	}

	coords := make([]maps.LatLng, len(locations))
	for i, loc := range locations {
		coords[i] = maps.LatLng{Lat: loc.Lat, Lng: loc.Lng}
	}

	req := &maps.DistanceMatrixRequest{
		Origins:       latLngStrings(coords),
		Destinations:  latLngStrings(coords),
		Mode:          maps.TravelModeDriving,
		DepartureTime: formatUnixTimestamp(departure),
		TrafficModel:  maps.TrafficModelBestGuess,
		Units:         maps.UnitsMetric,
	}

	resp, err := p.client.DistanceMatrix(ctx, req)
	if err != nil {
		return domain.MatrixBundle{}, apperror.ProviderUnavailable(err)
	}

	n := len(locations)
	bundle := domain.MatrixBundle{
		TimeMatrix:     make([][]int, n),
		DistanceMatrix: make([][]int, n),
	}
	for i := range bundle.TimeMatrix {
		bundle.TimeMatrix[i] = make([]int, n)
		bundle.DistanceMatrix[i] = make([]int, n)
	}

	for i, row := range resp.Rows {
		for j, elem := range row.Elements {
			if elem.Status != "OK" {
				bundle.TimeMatrix[i][j] = domain.UnreachableCost
				bundle.DistanceMatrix[i][j] = domain.UnreachableCost
				continue
			}
			// Prefer the traffic-aware duration; fall back to the plain one.
			duration := elem.Duration
			if elem.DurationInTraffic > 0 {
				duration = elem.DurationInTraffic
			}
			bundle.TimeMatrix[i][j] = int(duration.Seconds())
			bundle.DistanceMatrix[i][j] = elem.Distance.Meters
		}
	}
	return bundle, nil
}

func latLngStrings(coords []maps.LatLng) []string {
	out := make([]string, len(coords))
	for i, c := range coords {
		out[i] = c.String()
	}
	return out
}

func formatUnixTimestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
