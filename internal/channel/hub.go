package channel

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Frame types written to the socket.
const (
	FrameSend     = "send"
	FrameEditLast = "edit_last"
)

type frame struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(f frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub is a websocket-backed Channel with one socket per participant. A newer
// socket replaces an older one.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]*client
	log     *zap.Logger
}

var _ Channel = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{clients: make(map[int64]*client), log: log}
}

func (h *Hub) register(participantID int64, conn *websocket.Conn) *client {
	c := &client{conn: conn}
	h.mu.Lock()
	old := h.clients[participantID]
	h.clients[participantID] = c
	h.mu.Unlock()
	if old != nil {
		_ = old.conn.Close()
	}
	return c
}

func (h *Hub) unregister(participantID int64, c *client) {
	h.mu.Lock()
	if h.clients[participantID] == c {
		delete(h.clients, participantID)
	}
	h.mu.Unlock()
}

// Connected reports whether the participant has an open socket.
func (h *Hub) Connected(participantID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[participantID]
	return ok
}

func (h *Hub) deliver(participantID int64, f frame) error {
	h.mu.RLock()
	c, ok := h.clients[participantID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnreachable
	}
	if err := c.write(f); err != nil {
		h.log.Debug("websocket write failed", zap.Int64("participant_id", participantID), zap.Error(err))
		return ErrUnreachable
	}
	return nil
}

func (h *Hub) Send(_ context.Context, participantID int64, msg Message) error {
	return h.deliver(participantID, frame{Type: FrameSend, Message: msg})
}

func (h *Hub) EditLast(_ context.Context, participantID int64, msg Message) error {
	return h.deliver(participantID, frame{Type: FrameEditLast, Message: msg})
}

// Serve attaches conn to participantID and reads inbound events until the
// socket closes. Each decoded event is passed to dispatch with the
// participant id forced to the authenticated one.
func (h *Hub) Serve(ctx context.Context, participantID int64, conn *websocket.Conn, dispatch func(context.Context, Event)) {
	c := h.register(participantID, conn)
	defer func() {
		h.unregister(participantID, c)
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			h.log.Debug("discarding malformed frame", zap.Int64("participant_id", participantID), zap.Error(err))
			continue
		}
		evt.ParticipantID = participantID
		dispatch(ctx, evt)
	}
}
