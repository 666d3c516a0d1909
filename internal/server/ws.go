package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/model"
)

const (
	clientBuffer   = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	lifecycleWait  = time.Second
	frameTypeHello = "snapshot"
	maxClientFrame = 4096
)

// Frame is one message on the /ws/run stream.
type Frame struct {
	Type     string               `json:"type"`
	ClientID string               `json:"clientId,omitempty"`
	State    model.RunState       `json:"state"`
	Run      *model.SimulationRun `json:"run,omitempty"`
	Tick     *core.TickResult     `json:"tick,omitempty"`
	Report   *model.ImpactReport  `json:"report,omitempty"`
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan Frame
	done chan struct{}
}

// hub fans controller events out to websocket clients. Tick frames are
// dropped for a client whose buffer is full; lifecycle frames wait briefly.
type hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	log     logging.Logger
}

func newHub(log logging.Logger) *hub {
	return &hub{clients: make(map[uuid.UUID]*client), log: log}
}

func frameFor(ev core.Event) Frame {
	run := ev.Run
	f := Frame{Type: ev.Type.String(), State: run.State, Run: &run, Tick: ev.Tick, Report: ev.Report}
	if ev.Tick != nil {
		f.State = ev.Tick.State
		// The run is implied by the previous started frame.
		f.Run = nil
	}
	return f
}

// publish is registered with Controller.Subscribe.
func (h *hub) publish(ev core.Event) {
	f := frameFor(ev)
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if ev.Type == core.EventRunTicked {
			select {
			case c.send <- f:
			default:
			}
			continue
		}
		select {
		case c.send <- f:
		case <-c.done:
		case <-time.After(lifecycleWait):
			h.log.Warn(context.Background(), "dropping lifecycle frame for slow client",
				logging.String("client_id", c.id.String()),
				logging.String("type", f.Type),
			)
		}
	}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
}

// Len reports connected clients.
func (h *hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[uuid.UUID]*client)
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The stream is read-only and carries no credentials.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleRunStream upgrades to a websocket, sends a snapshot of the current
// run, then streams every run event until the client goes away.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	log := s.requestLogger(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan Frame, clientBuffer),
		done: make(chan struct{}),
	}
	log = log.With(logging.String("client_id", c.id.String()))

	c.send <- s.snapshotFrame(c.id)
	s.hub.add(c)
	log.Debug(r.Context(), "websocket client connected")

	go s.writePump(c, log)
	s.readPump(c)

	s.hub.remove(c)
	close(c.done)
	log.Debug(context.Background(), "websocket client disconnected")
}

func (s *Server) snapshotFrame(id uuid.UUID) Frame {
	f := Frame{Type: frameTypeHello, ClientID: id.String(), State: model.RunIdle}
	if run, tick, ok := s.ctrl.Current(); ok {
		f.State = run.State
		f.Run = &run
		f.Tick = &tick
	}
	if report, ok := s.ctrl.Report(); ok {
		f.Report = &report
	}
	return f
}

// readPump only watches for close and pong frames; clients never send
// commands over the socket.
func (s *Server) readPump(c *client) {
	c.conn.SetReadLimit(maxClientFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client, log logging.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(f); err != nil {
				log.Debug(context.Background(), "websocket write failed", logging.Err(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
