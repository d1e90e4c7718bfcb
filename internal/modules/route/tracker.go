// README: Live location pipeline: ETA to the next pickup, arrival detection, and one proximity alert per approach.
package route

import (
	"context"
	"fmt"
	"time"

	"carpool/internal/logger"
	"carpool/internal/maps"
	"carpool/internal/types"
)

// Tick is one driver location report. Seq 0 means "next in order".
type Tick struct {
	Lat float64
	Lng float64
	Seq uint64
}

type Outcome string

const (
	// OutcomeIgnored: location stored, route is not dispatching.
	OutcomeIgnored     Outcome = "ignored"
	OutcomeIdle        Outcome = "idle"
	OutcomeTracking    Outcome = "tracking"
	OutcomeArrived     Outcome = "arrived"
	OutcomeNotified    Outcome = "notified"
	OutcomeStale       Outcome = "stale"
	OutcomeSuperseded  Outcome = "superseded"
	OutcomeUnavailable Outcome = "eta_unavailable"
)

type TrackResult struct {
	Outcome        Outcome       `json:"outcome"`
	Seq            uint64        `json:"seq"`
	PassengerID    types.ID      `json:"passenger_id,omitempty"`
	ETA            time.Duration `json:"eta,omitempty"`
	DistanceMeters int           `json:"distance_meters,omitempty"`
	// Minutes is the whole-minute ETA sent in a proximity alert.
	Minutes int `json:"minutes,omitempty"`
}

type LiveTracker struct {
	provider RoutingProvider
	cipher   Cipher
	settings Settings
	rec      Recorder
	log      logger.Logger
	now      func() time.Time
}

func NewLiveTracker(provider RoutingProvider, cipher Cipher, settings Settings, rec Recorder, log logger.Logger) *LiveTracker {
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LiveTracker{provider: provider, cipher: cipher, settings: settings.withDefaults(), rec: rec, log: log, now: time.Now}
}

// OnLocation records the driver position and, for a dispatching route, runs
// the arrival and proximity rules against the pickup at the cursor. Side
// effects (messages, events) are left to the caller based on the outcome.
// Provider failures leave the route untouched and are returned as errors.
func (t *LiveTracker) OnLocation(ctx context.Context, r *Route, tick Tick) (TrackResult, error) {
	here := types.Point{Lat: tick.Lat, Lng: tick.Lng}

	r.mu.Lock()
	seq := tick.Seq
	if seq == 0 {
		seq = r.lastSeq + 1
	} else if seq <= r.lastSeq {
		r.mu.Unlock()
		return TrackResult{Outcome: OutcomeStale, Seq: seq}, ErrStaleTick
	}
	r.lastSeq = seq
	r.currentLocation = here.String()
	if r.status != StatusDispatching {
		r.mu.Unlock()
		return TrackResult{Outcome: OutcomeIgnored, Seq: seq}, nil
	}
	if r.cursor >= len(r.pickupLocations) {
		r.mu.Unlock()
		return TrackResult{Outcome: OutcomeIdle, Seq: seq}, nil
	}
	cursor := r.cursor
	phase := r.phaseID
	targetEnc := r.pickupLocations[cursor]
	passenger := r.passengerIDs[cursor]
	origin := r.currentLocation
	r.mu.Unlock()

	target, err := t.cipher.Decrypt(targetEnc)
	if err != nil {
		return TrackResult{Outcome: OutcomeUnavailable, Seq: seq, PassengerID: passenger}, fmt.Errorf("decrypt pickup: %w", err)
	}
	est, err := timed(ctx, t.settings.ProviderTimeout, t.rec, "eta", func(ctx context.Context) (maps.Estimate, error) {
		return t.provider.ETA(ctx, origin, target)
	})
	if err != nil {
		return TrackResult{Outcome: OutcomeUnavailable, Seq: seq, PassengerID: passenger}, err
	}

	res := TrackResult{Seq: seq, PassengerID: passenger, ETA: est.Duration, DistanceMeters: est.DistanceMeters}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastSeq != seq || r.cursor != cursor || r.phaseID != phase {
		res.Outcome = OutcomeSuperseded
		return res, nil
	}
	r.eta[target] = t.now().Add(est.Duration)

	switch {
	case float64(est.DistanceMeters) <= t.settings.ArrivalRadiusM:
		r.cursor++
		delete(r.notified, passenger)
		res.Outcome = OutcomeArrived
	case est.Duration <= t.settings.ProximityThreshold:
		if _, done := r.notified[passenger]; done {
			res.Outcome = OutcomeTracking
			break
		}
		r.notified[passenger] = struct{}{}
		res.Outcome = OutcomeNotified
		res.Minutes = int(est.Duration / time.Minute)
	default:
		res.Outcome = OutcomeTracking
	}
	return res, nil
}
