// README: Location service: driver position lookups enriched with distance to the route destination.
package location

import (
	"context"
	"math"

	"carpool/internal/types"
)

type Service struct {
	store       *Store
	destination types.Point
}

func NewService(store *Store, destination types.Point) *Service {
	return &Service{store: store, destination: destination}
}

type DriverPosition struct {
	Position
	DistanceToDestinationKm float64 `json:"distance_to_destination_km"`
}

func (s *Service) Position(ctx context.Context, driverID types.ID) (DriverPosition, error) {
	pos, err := s.store.Position(ctx, driverID)
	if err != nil {
		return DriverPosition{}, err
	}
	return DriverPosition{
		Position:                pos,
		DistanceToDestinationKm: roundKm(HaversineKm(pos.Point, s.destination)),
	}, nil
}

func (s *Service) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]NearbyDriver, error) {
	if radiusKm <= 0 {
		radiusKm = 3
	}
	return s.store.Nearby(ctx, p, radiusKm)
}

func roundKm(km float64) float64 {
	return math.Round(km*1000) / 1000
}
