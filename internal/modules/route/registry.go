// README: Registry of routes keyed by driver; resolves the joinable route.
package route

import (
	"sort"
	"sync"
	"time"

	"carpool/internal/types"
)

// Registry owns every Route. The map is guarded by mu; each Route guards its
// own fields.
type Registry struct {
	mu      sync.RWMutex
	routes  map[types.ID]*Route
	nextSeq uint64
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{routes: map[types.ID]*Route{}, now: time.Now}
}

// Open creates a fresh open route for the driver. A previous route for the
// same driver is discarded; if it was still admitting it is ended so that
// in-flight joins against it are rejected.
func (g *Registry) Open(driverID types.ID, originEncrypted string) *Route {
	g.mu.Lock()
	g.nextSeq++
	now := g.now()
	r := newRoute(driverID, originEncrypted, g.nextSeq, now)
	prev := g.routes[driverID]
	g.routes[driverID] = r
	g.mu.Unlock()

	if prev != nil {
		prev.mu.Lock()
		prev.end(now)
		prev.mu.Unlock()
	}
	return r
}

func (g *Registry) Get(driverID types.ID) (*Route, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.routes[driverID]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// All returns every route in insertion order.
func (g *Registry) All() []*Route {
	g.mu.RLock()
	out := make([]*Route, 0, len(g.routes))
	for _, r := range g.routes {
		out = append(out, r)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// OpenRoutes returns the routes still admitting passengers, in insertion order.
func (g *Registry) OpenRoutes() []*Route {
	var out []*Route
	for _, r := range g.All() {
		if r.IsOpen() {
			out = append(out, r)
		}
	}
	return out
}

// FirstOpen is the joinable route: the oldest route still admitting passengers.
func (g *Registry) FirstOpen() (*Route, error) {
	open := g.OpenRoutes()
	if len(open) == 0 {
		return nil, ErrNoOpenRoute
	}
	return open[0], nil
}
