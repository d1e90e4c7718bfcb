// README: Closes admission, applies the provider's waypoint order, and starts a dispatch phase.
package route

import (
	"context"
	"time"

	"github.com/google/uuid"

	"carpool/internal/logger"
	"carpool/internal/maps"
	"carpool/internal/types"
)

type ClosedSummary struct {
	DriverID      types.ID       `json:"driver_id"`
	PhaseID       string         `json:"phase_id"`
	PassengerIDs  []types.ID     `json:"passenger_ids"`
	Link          string         `json:"link"`
	TotalDuration *time.Duration `json:"total_duration,omitempty"`
	// Optimized is false when the provider failed and the join order was kept.
	Optimized bool `json:"optimized"`
}

type CloseDispatcher struct {
	provider RoutingProvider
	cipher   Cipher
	settings Settings
	rec      Recorder
	log      logger.Logger
	now      func() time.Time
}

func NewCloseDispatcher(provider RoutingProvider, cipher Cipher, settings Settings, rec Recorder, log logger.Logger) *CloseDispatcher {
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CloseDispatcher{provider: provider, cipher: cipher, settings: settings.withDefaults(), rec: rec, log: log, now: time.Now}
}

// Close stops admission, reorders the route, and resets dispatch state. A
// second call returns ErrAlreadyClosed without touching the route.
func (d *CloseDispatcher) Close(ctx context.Context, r *Route) (ClosedSummary, error) {
	r.mu.Lock()
	if !CanTransition(r.status, StatusClosing) {
		r.mu.Unlock()
		return ClosedSummary{}, ErrAlreadyClosed
	}
	r.status = StatusClosing
	r.version++
	originEnc := r.originEncrypted
	pickupsEnc := append([]string(nil), r.pickupLocations...)
	r.mu.Unlock()

	// While closing no join or end can mutate the pickup list, so the
	// snapshot stays valid until commit.
	order := identityOrder(len(pickupsEnc))
	var total *time.Duration
	optimized := false

	origin, errOrigin := d.cipher.Decrypt(originEnc)
	pickups, errPickups := decryptAll(d.cipher, pickupsEnc)
	switch {
	case errOrigin != nil || errPickups != nil:
		d.log.Errorf("close route %s: cannot decrypt stored coordinates, keeping join order", r.driverID)
		pickups = nil
	default:
		opt, err := timed(ctx, d.settings.ProviderTimeout, d.rec, "optimize", func(ctx context.Context) (maps.Optimization, error) {
			return d.provider.Optimize(ctx, origin, d.settings.Destination, pickups)
		})
		if err != nil {
			d.log.Warnf("close route %s: provider failed, keeping join order: %v", r.driverID, err)
		} else if !isPermutation(opt.Order, len(pickupsEnc)) {
			d.log.Warnf("close route %s: provider order %v is not a permutation of %d stops", r.driverID, opt.Order, len(pickupsEnc))
		} else {
			order = opt.Order
			total = opt.TotalDuration
			optimized = true
		}
	}

	r.mu.Lock()
	r.pickupLocations = permute(r.pickupLocations, order)
	r.passengerIDs = permute(r.passengerIDs, order)
	r.cursor = 0
	r.eta = map[string]time.Time{}
	r.notified = map[types.ID]struct{}{}
	r.status = StatusDispatching
	r.phaseID = uuid.NewString()
	r.closedAt = d.now()
	r.version++
	summary := ClosedSummary{
		DriverID:      r.driverID,
		PhaseID:       r.phaseID,
		PassengerIDs:  append([]types.ID(nil), r.passengerIDs...),
		TotalDuration: total,
		Optimized:     optimized,
	}
	r.mu.Unlock()

	if pickups != nil {
		summary.Link = BuildLink(origin, d.settings.Destination, permute(pickups, order))
	}
	d.rec.RouteClosed(optimized)
	return summary, nil
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, i := range order {
		if i < 0 || i >= n || seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

// permute returns s reordered so that out[i] = s[order[i]].
func permute[T any](s []T, order []int) []T {
	out := make([]T, len(order))
	for i, idx := range order {
		out[i] = s[idx]
	}
	return out
}
