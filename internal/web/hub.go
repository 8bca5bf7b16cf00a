package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"shiftstore/internal/shiftstore"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Event is one collector notification as sent to websocket clients.
type Event struct {
	Run          string    `json:"run"`
	Type         string    `json:"type"` // anchor, accepted, rejected
	Anchor       int       `json:"anchor"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	Band         int       `json:"band,omitempty"`
	IDs          []int     `json:"ids,omitempty"`
	Placeholders int       `json:"placeholders,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Hub fans collector events out to connected websocket clients.
type Hub struct {
	log        *slog.Logger
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	count      atomic.Int64
}

// NewHub creates a hub; call Run to start delivering.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Clients reports how many websocket clients are connected.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Run delivers messages until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.count.Store(0)
			return

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			h.log.Debug("websocket client connected", "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				h.count.Store(int64(len(h.clients)))
				h.log.Debug("websocket client disconnected", "total", len(h.clients))
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					delete(h.clients, client)
					client.Close()
					h.count.Store(int64(len(h.clients)))
				}
			}
		}
	}
}

// Publish queues an event. Events are dropped when the hub falls behind.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("event dropped", "run", ev.Run, "type", ev.Type)
	}
}

// Mount registers the websocket endpoint on r.
func (h *Hub) Mount(r *mux.Router) {
	r.HandleFunc("/ws", h.ServeWS).Methods("GET")
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Observer returns a collector observer that publishes events for run.
func (h *Hub) Observer(run string) shiftstore.Observer {
	return &hubObserver{hub: h, run: run}
}

type hubObserver struct {
	hub *Hub
	run string
}

func (o *hubObserver) AnchorExamined(anchor shiftstore.Source, band []shiftstore.Source) {
	if o.hub.Clients() == 0 {
		return
	}
	o.hub.Publish(Event{Run: o.run, Type: "anchor", Anchor: anchor.ID, X: anchor.X, Y: anchor.Y, Band: len(band)})
}

func (o *hubObserver) SequenceAccepted(seq shiftstore.Sequence) {
	if o.hub.Clients() == 0 {
		return
	}
	o.hub.Publish(Event{
		Run:          o.run,
		Type:         "accepted",
		Anchor:       seq.Anchor.ID,
		X:            seq.Anchor.X,
		Y:            seq.Anchor.Y,
		IDs:          seq.IDs(),
		Placeholders: seq.Placeholders(),
	})
}

func (o *hubObserver) SequenceRejected(anchor shiftstore.Source, err error) {
	if o.hub.Clients() == 0 {
		return
	}
	o.hub.Publish(Event{Run: o.run, Type: "rejected", Anchor: anchor.ID, X: anchor.X, Y: anchor.Y, Reason: err.Error()})
}
