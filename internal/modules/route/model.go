// README: Route aggregate, status flow, and engine settings.
package route

import (
	"sync"
	"time"

	"carpool/internal/types"
)

type Status string

const (
	StatusOpen        Status = "open"
	StatusClosing     Status = "closing"
	StatusDispatching Status = "dispatching"
	StatusEnded       Status = "ended"
)

// AllowedTransitions represents the route state flow as code. A route never
// re-opens.
var AllowedTransitions = map[Status][]Status{
	StatusOpen:    {StatusClosing, StatusEnded},
	StatusClosing: {StatusDispatching},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

const (
	DefaultDestination        = "51.155406,71.4101"
	DefaultDurationBudget     = 7200 * time.Second
	DefaultProximityThreshold = 300 * time.Second
	DefaultArrivalRadiusM     = 50
	DefaultProviderTimeout    = 10 * time.Second
	DefaultJoinAttempts       = 3
)

// Settings are the engine's policy knobs.
type Settings struct {
	Destination        string
	DurationBudget     time.Duration
	ProximityThreshold time.Duration
	ArrivalRadiusM     float64
	ProviderTimeout    time.Duration
	JoinAttempts       int
}

func DefaultSettings() Settings {
	return Settings{
		Destination:        DefaultDestination,
		DurationBudget:     DefaultDurationBudget,
		ProximityThreshold: DefaultProximityThreshold,
		ArrivalRadiusM:     DefaultArrivalRadiusM,
		ProviderTimeout:    DefaultProviderTimeout,
		JoinAttempts:       DefaultJoinAttempts,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Destination == "" {
		s.Destination = d.Destination
	}
	if s.DurationBudget <= 0 {
		s.DurationBudget = d.DurationBudget
	}
	if s.ProximityThreshold <= 0 {
		s.ProximityThreshold = d.ProximityThreshold
	}
	if s.ArrivalRadiusM <= 0 {
		s.ArrivalRadiusM = d.ArrivalRadiusM
	}
	if s.ProviderTimeout <= 0 {
		s.ProviderTimeout = d.ProviderTimeout
	}
	if s.JoinAttempts <= 0 {
		s.JoinAttempts = d.JoinAttempts
	}
	return s
}

// Route is one driver's carpool. All mutable fields are guarded by mu;
// pickupLocations and passengerIDs are index-aligned and always the same length.
type Route struct {
	mu sync.Mutex

	driverID        types.ID
	originEncrypted string
	currentLocation string
	pickupLocations []string
	passengerIDs    []types.ID
	status          Status
	eta             map[string]time.Time
	notified        map[types.ID]struct{}
	cursor          int

	// version changes on every pickup list or status mutation.
	version uint64
	// lastSeq is the newest accepted location tick.
	lastSeq uint64
	phaseID string

	openedAt time.Time
	closedAt time.Time
	seq      uint64
}

func newRoute(driverID types.ID, originEncrypted string, seq uint64, now time.Time) *Route {
	return &Route{
		driverID:        driverID,
		originEncrypted: originEncrypted,
		status:          StatusOpen,
		eta:             map[string]time.Time{},
		notified:        map[types.ID]struct{}{},
		openedAt:        now,
		seq:             seq,
	}
}

func (r *Route) DriverID() types.ID { return r.driverID }

func (r *Route) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status == StatusOpen
}

func (r *Route) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Snapshot is a read-only copy of a route for callers outside the engine.
type Snapshot struct {
	DriverID        types.ID   `json:"driver_id"`
	Status          Status     `json:"status"`
	IsOpen          bool       `json:"is_open"`
	PassengerIDs    []types.ID `json:"passenger_ids"`
	PassengerCount  int        `json:"passenger_count"`
	Cursor          int        `json:"cursor"`
	CurrentLocation string     `json:"current_location,omitempty"`
	PhaseID         string     `json:"phase_id,omitempty"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

func (r *Route) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		DriverID:        r.driverID,
		Status:          r.status,
		IsOpen:          r.status == StatusOpen,
		PassengerIDs:    append([]types.ID(nil), r.passengerIDs...),
		PassengerCount:  len(r.passengerIDs),
		Cursor:          r.cursor,
		CurrentLocation: r.currentLocation,
		PhaseID:         r.phaseID,
		OpenedAt:        r.openedAt,
	}
	if !r.closedAt.IsZero() {
		t := r.closedAt
		s.ClosedAt = &t
	}
	return s
}

// end moves an open route to ended. Callers must hold mu.
func (r *Route) end(now time.Time) bool {
	if !CanTransition(r.status, StatusEnded) {
		return false
	}
	r.status = StatusEnded
	r.version++
	r.closedAt = now
	return true
}
