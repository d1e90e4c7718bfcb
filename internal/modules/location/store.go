// README: Driver position store backed by Redis GEO plus a per-driver hash of the newest tick.
package location

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"carpool/internal/types"
)

const (
	driverGeoKey      = "carpool:drivers"
	positionKeyPrefix = "carpool:driver:%s:position"
	// Positions outlive any single dispatch day.
	keyTTL = 12 * time.Hour
)

// recordScript writes the position only when seq is newer than the stored one,
// so out-of-order ticks cannot move a driver backwards.
var recordScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'seq')
if cur and tonumber(cur) >= tonumber(ARGV[3]) then
  return 0
end
redis.call('HSET', KEYS[1], 'lat', ARGV[1], 'lng', ARGV[2], 'seq', ARGV[3], 'at', ARGV[4])
redis.call('EXPIRE', KEYS[1], ARGV[5])
redis.call('GEOADD', KEYS[2], ARGV[2], ARGV[1], ARGV[6])
return 1
`)

type Store struct {
	redis *redis.Client
	now   func() time.Time
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis, now: time.Now}
}

// Record stores the driver's latest position. Older sequence numbers are ignored.
func (s *Store) Record(ctx context.Context, driverID types.ID, p types.Point, seq uint64) error {
	keys := []string{positionKey(driverID), driverGeoKey}
	args := []interface{}{
		strconv.FormatFloat(p.Lat, 'f', -1, 64),
		strconv.FormatFloat(p.Lng, 'f', -1, 64),
		seq,
		s.now().UTC().Format(time.RFC3339Nano),
		int(keyTTL.Seconds()),
		string(driverID),
	}
	return recordScript.Run(ctx, s.redis, keys, args...).Err()
}

func (s *Store) Position(ctx context.Context, driverID types.ID) (Position, error) {
	vals, err := s.redis.HGetAll(ctx, positionKey(driverID)).Result()
	if err != nil {
		return Position{}, err
	}
	if len(vals) == 0 {
		return Position{}, ErrNotFound
	}
	return parsePosition(driverID, vals)
}

// Nearby lists drivers within radiusKm of p, closest first.
func (s *Store) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]NearbyDriver, error) {
	results, err := s.redis.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]NearbyDriver, len(results))
	for i, r := range results {
		out[i] = NearbyDriver{
			DriverID:   types.ID(r.Name),
			Point:      types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		}
	}
	return out, nil
}

// Reset forgets the driver's last tick so a new route can start its sequence at 1.
func (s *Store) Reset(ctx context.Context, driverID types.ID) error {
	return s.Remove(ctx, driverID)
}

func (s *Store) Remove(ctx context.Context, driverID types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, driverGeoKey, string(driverID))
	pipe.Del(ctx, positionKey(driverID))
	_, err := pipe.Exec(ctx)
	return err
}

func parsePosition(driverID types.ID, vals map[string]string) (Position, error) {
	lat, err := strconv.ParseFloat(vals["lat"], 64)
	if err != nil {
		return Position{}, fmt.Errorf("position %s: lat: %w", driverID, err)
	}
	lng, err := strconv.ParseFloat(vals["lng"], 64)
	if err != nil {
		return Position{}, fmt.Errorf("position %s: lng: %w", driverID, err)
	}
	seq, err := strconv.ParseUint(vals["seq"], 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("position %s: seq: %w", driverID, err)
	}
	at, err := time.Parse(time.RFC3339Nano, vals["at"])
	if err != nil {
		return Position{}, fmt.Errorf("position %s: at: %w", driverID, err)
	}
	return Position{DriverID: driverID, Point: types.Point{Lat: lat, Lng: lng}, Seq: seq, RecordedAt: at}, nil
}

func positionKey(driverID types.ID) string {
	return fmt.Sprintf(positionKeyPrefix, string(driverID))
}
