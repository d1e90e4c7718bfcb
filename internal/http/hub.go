// README: Websocket fan-out of route events, keyed by driver id.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"carpool/internal/events"
	"carpool/internal/logger"
	"carpool/internal/types"
)

const writeWait = 5 * time.Second

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

type Hub struct {
	mu       sync.RWMutex
	conns    map[types.ID]map[*wsClient]struct{}
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		conns: make(map[types.ID]map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

// Run forwards bus events to subscribers until ctx is done or sub closes.
func (h *Hub) Run(ctx context.Context, sub <-chan events.Event) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub:
			if !ok {
				return
			}
			h.Broadcast(e)
		}
	}
}

// Serve upgrades the request and streams events of driverID's route until
// the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, driverID types.ID) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("ws upgrade failed: %v", err)
		return
	}
	c := &wsClient{conn: conn}
	h.add(driverID, c)

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				h.remove(driverID, c)
				return
			}
		}
	}()
}

func (h *Hub) Broadcast(e events.Event) {
	h.mu.RLock()
	targets := make([]*wsClient, 0, len(h.conns[e.DriverID]))
	for c := range h.conns[e.DriverID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(e); err != nil {
			h.log.Debugf("ws write to %s subscriber failed: %v", e.DriverID, err)
			h.remove(e.DriverID, c)
		}
	}
}

// Subscribers reports how many connections follow driverID.
func (h *Hub) Subscribers(driverID types.ID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[driverID])
}

func (h *Hub) add(driverID types.ID, c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[driverID] == nil {
		h.conns[driverID] = make(map[*wsClient]struct{})
	}
	h.conns[driverID][c] = struct{}{}
}

func (h *Hub) remove(driverID types.ID, c *wsClient) {
	h.mu.Lock()
	conns, ok := h.conns[driverID]
	if ok {
		if _, present := conns[c]; !present {
			ok = false
		}
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.conns, driverID)
		}
	}
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	all := h.conns
	h.conns = make(map[types.ID]map[*wsClient]struct{})
	h.mu.Unlock()
	for _, conns := range all {
		for c := range conns {
			_ = c.conn.Close()
		}
	}
}
