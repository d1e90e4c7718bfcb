// README: Google Maps routing adapter: waypoint optimization (Directions) and live ETA (Distance Matrix).
package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"
)

var (
	ErrProvider = errors.New("routing provider error")
	ErrNotFound = errors.New("no route found")
)

// Optimization is the provider's answer for an origin -> waypoints -> destination trip.
// TotalDuration is nil when the provider could not compute a duration.
type Optimization struct {
	Order         []int
	TotalDuration *time.Duration
}

// Estimate is a traffic-aware point to point travel estimate.
type Estimate struct {
	Duration       time.Duration
	DistanceMeters int
}

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key. Extra
// client options (base URL, HTTP client) are mainly for tests.
func NewRouteService(apiKey string, opts ...maps.ClientOption) (*RouteService, error) {
	options := append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// Optimize asks for a driving route visiting every waypoint with provider-side
// reordering. Order is a permutation of waypoint indices; when the provider
// returns a mismatched order the identity order is used.
func (s *RouteService) Optimize(ctx context.Context, origin, destination string, waypoints []string) (Optimization, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Waypoints:   waypoints,
		Optimize:    len(waypoints) > 1,
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return Optimization{}, fmt.Errorf("%w: directions: %v", ErrProvider, err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Optimization{}, ErrNotFound
	}

	route := routes[0]
	var total time.Duration
	for _, leg := range route.Legs {
		total += leg.Duration
	}
	order := route.WaypointOrder
	if len(order) != len(waypoints) {
		order = identity(len(waypoints))
	}
	return Optimization{Order: order, TotalDuration: &total}, nil
}

// ETA returns the current driving estimate between two points, preferring the
// traffic-aware duration.
func (s *RouteService) ETA(ctx context.Context, origin, destination string) (Estimate, error) {
	r := &maps.DistanceMatrixRequest{
		Origins:       []string{origin},
		Destinations:  []string{destination},
		Mode:          maps.TravelModeDriving,
		DepartureTime: "now",
	}
	resp, err := s.client.DistanceMatrix(ctx, r)
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: distance matrix: %v", ErrProvider, err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return Estimate{}, ErrNotFound
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return Estimate{}, fmt.Errorf("%w: element status %s", ErrNotFound, el.Status)
	}
	dur := el.DurationInTraffic
	if dur <= 0 {
		dur = el.Duration
	}
	return Estimate{Duration: dur, DistanceMeters: el.Distance.Meters}, nil
}

func identity(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
