package http

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livequiz-service/internal/clocksync"
	"livequiz-service/internal/session"
)

const sendQueueSize = 64

type outFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// client is one websocket subscription. Frames are queued in order and
// written by a single goroutine, so a session's events reach the wire in
// the order they were broadcast.
type client struct {
	participantID string
	conn          *websocket.Conn
	send          chan outFrame
	sync          clocksync.Estimator

	mu     sync.Mutex
	closed bool
}

// enqueue appends a frame to the client's queue. A client that cannot keep
// up gets cut rather than reordered or skipped.
func (c *client) enqueue(f outFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- f:
	default:
		c.closed = true
		close(c.send)
	}
}

func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Hub fans session events out to websocket connections. It implements
// session.EventSink; the session layer calls it while holding its own
// lock, so the hub only ever enqueues and never calls back in.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*client
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[string]*client),
		log:   log,
	}
}

// Register attaches a connection for a participant. An existing connection
// for the same participant is displaced; the caller owns the returned
// client until Unregister.
func (h *Hub) Register(sessionID, participantID string, conn *websocket.Conn) *client {
	c := &client{
		participantID: participantID,
		conn:          conn,
		send:          make(chan outFrame, sendQueueSize),
	}

	h.mu.Lock()
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[string]*client)
		h.rooms[sessionID] = room
	}
	old := room[participantID]
	room[participantID] = c
	h.mu.Unlock()

	if old != nil {
		old.shutdown()
	}
	return c
}

// Unregister detaches a client. A newer connection for the same
// participant is left alone.
func (h *Hub) Unregister(sessionID string, c *client) {
	h.mu.Lock()
	if room, ok := h.rooms[sessionID]; ok {
		if room[c.participantID] == c {
			delete(room, c.participantID)
		}
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	h.mu.Unlock()
	c.shutdown()
}

// Attached reports whether a participant currently has a live connection.
func (h *Hub) Attached(sessionID, participantID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[sessionID][participantID]
	return ok
}

func (h *Hub) Broadcast(sessionID string, e session.Event) {
	frame := outFrame{Type: e.EventType(), Payload: e}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[sessionID] {
		c.enqueue(frame)
	}
}

func (h *Hub) SendTo(sessionID, participantID string, e session.Event) {
	h.mu.RLock()
	c := h.rooms[sessionID][participantID]
	h.mu.RUnlock()
	if c != nil {
		c.enqueue(outFrame{Type: e.EventType(), Payload: e})
	}
}

// Disconnect delivers a final event and then tears the connection down.
// The frame is already queued when the channel closes, so it still
// reaches the wire before the socket dies.
func (h *Hub) Disconnect(sessionID, participantID string, e session.Event) {
	h.mu.Lock()
	var c *client
	if room, ok := h.rooms[sessionID]; ok {
		c = room[participantID]
		delete(room, participantID)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	h.mu.Unlock()

	if c != nil {
		c.enqueue(outFrame{Type: e.EventType(), Payload: e})
		c.shutdown()
	}
}
