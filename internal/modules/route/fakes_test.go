package route

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"carpool/internal/cipher"
	"carpool/internal/events"
	"carpool/internal/maps"
	"carpool/internal/notify"
	"carpool/internal/types"
)

type fakeProvider struct {
	mu            sync.Mutex
	optimizeCalls int
	etaCalls      int
	optimizeFn    func(call int, origin, dest string, wps []string) (maps.Optimization, error)
	etaFn         func(call int, origin, dest string) (maps.Estimate, error)
	places        map[string]types.Point
}

func (p *fakeProvider) Optimize(ctx context.Context, origin, dest string, wps []string) (maps.Optimization, error) {
	p.mu.Lock()
	p.optimizeCalls++
	call := p.optimizeCalls
	fn := p.optimizeFn
	p.mu.Unlock()
	if fn == nil {
		d := time.Hour
		return maps.Optimization{Order: identityOrder(len(wps)), TotalDuration: &d}, nil
	}
	return fn(call, origin, dest, wps)
}

func (p *fakeProvider) ETA(ctx context.Context, origin, dest string) (maps.Estimate, error) {
	p.mu.Lock()
	p.etaCalls++
	call := p.etaCalls
	fn := p.etaFn
	p.mu.Unlock()
	if fn == nil {
		return maps.Estimate{}, maps.ErrProvider
	}
	return fn(call, origin, dest)
}

func (p *fakeProvider) Geocode(ctx context.Context, address string) (types.Point, error) {
	if pt, ok := p.places[address]; ok {
		return pt, nil
	}
	return types.Point{}, maps.ErrNotFound
}

func (p *fakeProvider) calls() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.optimizeCalls, p.etaCalls
}

// durations answers optimize calls in order; the last value repeats.
func durations(seconds ...int) func(int, string, string, []string) (maps.Optimization, error) {
	return func(call int, _, _ string, wps []string) (maps.Optimization, error) {
		i := call - 1
		if i >= len(seconds) {
			i = len(seconds) - 1
		}
		d := time.Duration(seconds[i]) * time.Second
		return maps.Optimization{Order: identityOrder(len(wps)), TotalDuration: &d}, nil
	}
}

func fixedETA(seconds, meters int) func(int, string, string) (maps.Estimate, error) {
	return func(int, string, string) (maps.Estimate, error) {
		return maps.Estimate{Duration: time.Duration(seconds) * time.Second, DistanceMeters: meters}, nil
	}
}

type sentMessage struct {
	to types.ID
	m  notify.Message
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[types.ID]bool
}

func (n *recordingNotifier) Notify(_ context.Context, to types.ID, m notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[to] {
		return errors.New("recipient unreachable")
	}
	n.sent = append(n.sent, sentMessage{to: to, m: m})
	return nil
}

func (n *recordingNotifier) byKind(kind notify.Kind) []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMessage
	for _, s := range n.sent {
		if s.m.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) kinds() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type memoryEventLog struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (l *memoryEventLog) Append(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, e)
	return nil
}

func (l *memoryEventLog) List(_ context.Context, driverID types.ID, limit int) ([]events.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].DriverID == driverID {
			out = append(out, l.events[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type memoryPositions struct {
	mu     sync.Mutex
	last   map[types.ID]types.Point
	resets int
}

func (m *memoryPositions) Reset(_ context.Context, driverID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.last, driverID)
	m.resets++
	return nil
}

func (m *memoryPositions) Record(_ context.Context, driverID types.ID, p types.Point, _ uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		m.last = map[types.ID]types.Point{}
	}
	m.last[driverID] = p
	return nil
}

func newTestCipher(t *testing.T) *cipher.LocationCipher {
	t.Helper()
	key, err := cipher.GenerateKey()
	require.NoError(t, err)
	c, err := cipher.New(key)
	require.NoError(t, err)
	return c
}

func encrypt(t *testing.T, c Cipher, plain string) string {
	t.Helper()
	enc, err := c.Encrypt(plain)
	require.NoError(t, err)
	return enc
}

// openTestRoute registers a route for driver d1 starting at 51.0,71.0.
func openTestRoute(t *testing.T, c Cipher) (*Registry, *Route) {
	t.Helper()
	reg := NewRegistry()
	return reg, reg.Open("d1", encrypt(t, c, "51,71"))
}

// requireAligned checks the parallel-slice and cursor invariants.
func requireAligned(t *testing.T, r *Route) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Equal(t, len(r.pickupLocations), len(r.passengerIDs))
	require.GreaterOrEqual(t, r.cursor, 0)
	require.LessOrEqual(t, r.cursor, len(r.pickupLocations))
}

func plainPickups(t *testing.T, c Cipher, r *Route) []string {
	t.Helper()
	r.mu.Lock()
	enc := append([]string(nil), r.pickupLocations...)
	r.mu.Unlock()
	out, err := decryptAll(c, enc)
	require.NoError(t, err)
	return out
}

// dispatchingRoute builds a closed route with the given passengers at the
// given plaintext pickups, in that order.
func dispatchingRoute(t *testing.T, c Cipher, passengers []types.ID, pickups []string) *Route {
	t.Helper()
	_, r := openTestRoute(t, c)
	for i := range passengers {
		r.pickupLocations = append(r.pickupLocations, encrypt(t, c, pickups[i]))
		r.passengerIDs = append(r.passengerIDs, passengers[i])
	}
	d := NewCloseDispatcher(&fakeProvider{}, c, DefaultSettings(), nil, nil)
	_, err := d.Close(context.Background(), r)
	require.NoError(t, err)
	return r
}
