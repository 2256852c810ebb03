package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/check"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/event"
	"github.com/nomii-dev-lst/monitor-health-sub000/internal/domain/monitor"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingEvery  = (wsPongWait * 9) / 10
	wsSendBuffer = 32
)

var (
	mClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_clients", Help: "Connected websocket clients",
	})
	mDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_events_dropped_total", Help: "Events dropped because a client was too slow",
	})
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type client struct {
	owner int64
	send  chan []byte
}

var _ event.CheckEvents = (*Hub)(nil)

// Hub pushes check events to the websocket sessions of the monitor owner.
type Hub struct {
	mu       sync.RWMutex
	clients  map[int64]map[*client]struct{}
	presence *Presence
	log      *zap.Logger
}

func NewHub(presence *Presence, log *zap.Logger) *Hub {
	if presence == nil {
		presence = NewPresence(0, 0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:  map[int64]map[*client]struct{}{},
		presence: presence,
		log:      log.With(zap.String("component", "realtime.hub")),
	}
}

func (h *Hub) Presence() *Presence { return h.presence }

func (h *Hub) ActiveOwners(ctx context.Context) ([]int64, error) {
	return h.presence.ActiveOwners(ctx)
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// EmitCheckEvent never blocks: a client whose buffer is full misses the event.
func (h *Hub) EmitCheckEvent(_ context.Context, ownerID int64, m *monitor.Monitor, o *check.Outcome) {
	if !h.hasClients(ownerID) {
		return
	}
	h.Publish(event.NewCheckEvent(ownerID, m, o))
}

// Publish pushes an already built event, such as one relayed from another
// engine, to the sessions of ev.OwnerID.
func (h *Hub) Publish(ev event.CheckEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.clients[ev.OwnerID]
	if len(set) == 0 {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Warn("encode check event", zap.Int64("monitor_id", ev.MonitorID), zap.Error(err))
		return
	}
	for c := range set {
		select {
		case c.send <- payload:
		default:
			mDropped.Inc()
			h.log.Debug("client too slow, event dropped", zap.Int64("owner_id", ev.OwnerID))
		}
	}
}

func (h *Hub) hasClients(ownerID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[ownerID]) > 0
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.owner]
	if !ok {
		set = map[*client]struct{}{}
		h.clients[c.owner] = set
	}
	set[c] = struct{}{}
	h.presence.Touch(c.owner)
	mClients.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.owner]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	mClients.Dec()
	if len(set) == 0 {
		delete(h.clients, c.owner)
		h.presence.Remove(c.owner)
	}
}

type hello struct {
	Type    string `json:"type"`
	OwnerID int64  `json:"owner_id"`
}

// ServeWS upgrades the request and streams the owner's check events until
// the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, ownerID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &client{owner: ownerID, send: make(chan []byte, wsSendBuffer)}
	h.register(c)
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		h.presence.Touch(ownerID)
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		defer cancel()
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()

		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return
		}
		if err := conn.WriteJSON(hello{Type: "subscribed", OwnerID: ownerID}); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-c.send:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	h.log.Debug("client connected", zap.Int64("owner_id", ownerID))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		h.presence.Touch(ownerID)
	}
	cancel()
	<-writerDone
	h.log.Debug("client disconnected", zap.Int64("owner_id", ownerID))
}
