// README: Duration-budget admission of passengers into an open route.
package route

import (
	"context"
	"fmt"
	"time"

	"carpool/internal/logger"
	"carpool/internal/maps"
	"carpool/internal/types"
)

type Reason string

const (
	ReasonDurationUnknown  Reason = "duration_unknown"
	ReasonDurationExceeded Reason = "duration_exceeded"
	ReasonRouteClosed      Reason = "route_closed"
	ReasonContended        Reason = "contended"
)

type JoinResult struct {
	Accepted      bool           `json:"accepted"`
	Reason        Reason         `json:"reason,omitempty"`
	TotalDuration *time.Duration `json:"total_duration,omitempty"`
	// Position is the passenger's index in the (unoptimized) pickup list.
	Position int `json:"position"`
}

func (j JoinResult) Outcome() string {
	if j.Accepted {
		return "accepted"
	}
	return string(j.Reason)
}

func rejected(reason Reason, total *time.Duration) JoinResult {
	return JoinResult{Accepted: false, Reason: reason, TotalDuration: total, Position: -1}
}

// AdmissionGuard evaluates a trial insertion against the provider without
// holding the route lock, then commits only if the route did not change.
type AdmissionGuard struct {
	provider RoutingProvider
	cipher   Cipher
	settings Settings
	rec      Recorder
	log      logger.Logger
}

func NewAdmissionGuard(provider RoutingProvider, cipher Cipher, settings Settings, rec Recorder, log logger.Logger) *AdmissionGuard {
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AdmissionGuard{provider: provider, cipher: cipher, settings: settings.withDefaults(), rec: rec, log: log}
}

// TryJoin admits passengerID at the encrypted pickup location or explains why
// not. Only cipher failures are returned as errors.
func (g *AdmissionGuard) TryJoin(ctx context.Context, r *Route, passengerID types.ID, locationEncrypted string) (JoinResult, error) {
	candidate, err := g.cipher.Decrypt(locationEncrypted)
	if err != nil {
		return JoinResult{}, fmt.Errorf("decrypt pickup: %w", err)
	}

	for attempt := 0; attempt < g.settings.JoinAttempts; attempt++ {
		r.mu.Lock()
		if r.status != StatusOpen {
			r.mu.Unlock()
			return rejected(ReasonRouteClosed, nil), nil
		}
		version := r.version
		originEnc := r.originEncrypted
		pickupsEnc := append([]string(nil), r.pickupLocations...)
		r.mu.Unlock()

		origin, err := g.cipher.Decrypt(originEnc)
		if err != nil {
			return JoinResult{}, fmt.Errorf("decrypt origin: %w", err)
		}
		trial, err := decryptAll(g.cipher, pickupsEnc)
		if err != nil {
			return JoinResult{}, fmt.Errorf("decrypt pickups: %w", err)
		}
		trial = append(trial, candidate)

		opt, err := timed(ctx, g.settings.ProviderTimeout, g.rec, "optimize", func(ctx context.Context) (maps.Optimization, error) {
			return g.provider.Optimize(ctx, origin, g.settings.Destination, trial)
		})
		if err != nil || opt.TotalDuration == nil {
			if err != nil {
				g.log.Warnf("admission of %s to route %s: provider failed: %v", passengerID, r.driverID, err)
			}
			return rejected(ReasonDurationUnknown, nil), nil
		}
		total := *opt.TotalDuration

		r.mu.Lock()
		if r.status != StatusOpen {
			r.mu.Unlock()
			return rejected(ReasonRouteClosed, &total), nil
		}
		if r.version != version {
			r.mu.Unlock()
			g.log.Debugf("route %s changed during admission of %s, retrying", r.driverID, passengerID)
			continue
		}
		if total > g.settings.DurationBudget {
			r.mu.Unlock()
			return rejected(ReasonDurationExceeded, &total), nil
		}
		r.pickupLocations = append(r.pickupLocations, locationEncrypted)
		r.passengerIDs = append(r.passengerIDs, passengerID)
		r.version++
		pos := len(r.passengerIDs) - 1
		r.mu.Unlock()
		return JoinResult{Accepted: true, TotalDuration: &total, Position: pos}, nil
	}
	return rejected(ReasonContended, nil), nil
}
