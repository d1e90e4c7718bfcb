// README: Errors and the collaborator interfaces the route engine consumes.
package route

import (
	"context"
	"errors"
	"time"

	"carpool/internal/events"
	"carpool/internal/maps"
	"carpool/internal/types"
)

var (
	ErrNotFound      = errors.New("route not found")
	ErrAlreadyClosed = errors.New("route already closed")
	ErrNoOpenRoute   = errors.New("no open route")
	ErrStaleTick     = errors.New("stale location tick")
	ErrNoETA         = errors.New("eta not calculated yet")
	ErrBadRequest    = errors.New("bad request")
)

// RoutingProvider is the external routing capability.
type RoutingProvider interface {
	Optimize(ctx context.Context, origin, destination string, waypoints []string) (maps.Optimization, error)
	ETA(ctx context.Context, origin, destination string) (maps.Estimate, error)
	Geocode(ctx context.Context, address string) (types.Point, error)
}

// Cipher protects stored coordinates.
type Cipher interface {
	Encrypt(plain string) (string, error)
	Decrypt(token string) (string, error)
}

type Publisher interface {
	Publish(e events.Event)
}

// EventLog is the durable audit trail of route events.
type EventLog interface {
	Append(ctx context.Context, e events.Event) error
	List(ctx context.Context, driverID types.ID, limit int) ([]events.Event, error)
}

// PositionRecorder keeps the latest driver position for external lookups.
type PositionRecorder interface {
	Record(ctx context.Context, driverID types.ID, p types.Point, seq uint64) error
	Reset(ctx context.Context, driverID types.ID) error
}

type Recorder interface {
	JoinDecision(outcome string)
	RouteClosed(optimized bool)
	TrackingOutcome(outcome string)
	ProviderCall(op string, d time.Duration, err error)
	OpenRoutes(n int)
}

type nopRecorder struct{}

func (nopRecorder) JoinDecision(string)                       {}
func (nopRecorder) RouteClosed(bool)                          {}
func (nopRecorder) TrackingOutcome(string)                    {}
func (nopRecorder) ProviderCall(string, time.Duration, error) {}
func (nopRecorder) OpenRoutes(int)                            {}

func decryptAll(c Cipher, tokens []string) ([]string, error) {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		p, err := c.Decrypt(t)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// timed runs one provider call under the configured timeout and reports its latency.
func timed[T any](ctx context.Context, timeout time.Duration, rec Recorder, op string, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	v, err := call(ctx)
	rec.ProviderCall(op, time.Since(start), err)
	return v, err
}
