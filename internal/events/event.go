// README: Outbound route events (join/close/arrival/proximity) shared by the bus, Kafka, websocket and audit log.
package events

import (
	"time"

	"github.com/google/uuid"

	"carpool/internal/types"
)

type Type string

const (
	TypeRouteOpened  Type = "route_opened"
	TypeJoinAccepted Type = "join_accepted"
	TypeJoinRejected Type = "join_rejected"
	TypeRouteClosed  Type = "route_closed"
	TypeRouteEnded   Type = "route_ended"
	TypeArrival      Type = "arrival"
	TypeProximity    Type = "proximity"
)

type Event struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	DriverID    types.ID       `json:"driver_id"`
	PassengerID types.ID       `json:"passenger_id,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	At          time.Time      `json:"at"`
}

func New(t Type, driverID types.ID, passengerID types.ID, data map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		DriverID:    driverID,
		PassengerID: passengerID,
		Data:        data,
		At:          time.Now().UTC(),
	}
}
