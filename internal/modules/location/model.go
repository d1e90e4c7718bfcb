// README: Last-known driver positions served from Redis.
package location

import (
	"errors"
	"time"

	"carpool/internal/types"
)

var ErrNotFound = errors.New("position not found")

type Position struct {
	DriverID   types.ID    `json:"driver_id"`
	Point      types.Point `json:"point"`
	Seq        uint64      `json:"seq"`
	RecordedAt time.Time   `json:"recorded_at"`
}

type NearbyDriver struct {
	DriverID   types.ID    `json:"driver_id"`
	Point      types.Point `json:"point"`
	DistanceKm float64     `json:"distance_km"`
}
