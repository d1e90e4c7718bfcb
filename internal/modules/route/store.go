// README: Route event audit log backed by PostgreSQL (route_events).
package route

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carpool/internal/events"
	"carpool/internal/types"
)

const defaultHistoryLimit = 100

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO route_events (id, driver_id, passenger_id, type, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		e.ID,
		string(e.DriverID),
		nullableID(e.PassengerID),
		string(e.Type),
		data,
		e.At,
	)
	return err
}

// List returns the newest events for a driver first.
func (s *Store) List(ctx context.Context, driverID types.ID, limit int) ([]events.Event, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, driver_id, COALESCE(passenger_id, ''), type, data, created_at
		FROM route_events
		WHERE driver_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, string(driverID), limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (events.Event, error) {
		var (
			e    events.Event
			data []byte
		)
		if err := row.Scan(&e.ID, &e.DriverID, &e.PassengerID, &e.Type, &data, &e.At); err != nil {
			return events.Event{}, err
		}
		if len(data) > 0 && string(data) != "null" {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return events.Event{}, err
			}
		}
		return e, nil
	})
}

func nullableID(id types.ID) *string {
	if id == "" {
		return nil
	}
	v := string(id)
	return &v
}
