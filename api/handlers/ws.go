package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tesipedia/tesipedia-api/models"
)

// Socket event names, client to server
const (
	eventJoinOrderChat = "joinOrderChat"
	eventSendMessage   = "sendMessage"
	eventMarkAsRead    = "markAsRead"
	eventTyping        = "typing"
)

// Socket event names, server to client
const (
	EventNewMessage  = "newMessage"
	EventMessageRead = "messageRead"
	EventUserTyping  = "userTyping"
	EventError       = "error"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type wsIncoming struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsClient struct {
	conn  *websocket.Conn
	send  chan wsEnvelope
	party models.Party
	user  *models.User // nil for anonymous connections
	rooms map[Room]bool

	// closed is owned by the hub: it flips under the hub mutex when the
	// client disconnects, after which send must never be written to again.
	closed bool
}

// Hub tracks connected socket clients and the rooms they joined
type Hub struct {
	mu    sync.Mutex
	rooms map[Room]map[*wsClient]bool
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{rooms: map[Room]map[*wsClient]bool{}}
}

// Join adds a client to a room
func (h *Hub) Join(c *wsClient, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = map[*wsClient]bool{}
	}
	h.rooms[room][c] = true
	c.rooms[room] = true
}

// Leave removes a client from a room
func (h *Hub) Leave(c *wsClient, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *wsClient, room Room) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// Drop removes a client from every room and closes its send channel. The hub
// owns the channel lifecycle: a broadcast racing the disconnect sees the
// closed flag under the mutex and skips the client instead of writing to a
// closed channel.
func (h *Hub) Drop(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Emit broadcasts an event to every client in a room. Slow clients are
// dropped rather than blocking the broadcast.
func (h *Hub) Emit(room Room, event string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[room] {
		h.sendLocked(c, room, event, data)
	}
}

// sendLocked queues the event on a single client. Callers hold h.mu, which
// also guards c.closed; the send is non-blocking so holding the mutex across
// it is safe.
func (h *Hub) sendLocked(c *wsClient, room Room, event string, data interface{}) {
	if c.closed {
		return
	}
	select {
	case c.send <- wsEnvelope{Event: event, Data: data}:
	default:
		zap.S().Warnw("dropping socket event for slow client",
			"room", room.String(), "event", event)
	}
}

// emitTo sends an event to a single client only
func (h *Hub) emitTo(c *wsClient, event string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- wsEnvelope{Event: event, Data: data}:
	default:
	}
}

// Gateway is the realtime socket layer: it authenticates connections, joins
// them to their rooms and dispatches chat events.
type Gateway struct {
	Hub  *Hub
	Chat *Chat

	// Authenticate resolves a bearer credential on the upgrade request to a
	// persistent user id. Connections that declare a public id skip it.
	Authenticate func(r *http.Request) (string, error)
}

// ServeWS upgrades the connection and runs the client session
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	client, err := g.admit(r)
	if err != nil {
		zap.S().Warnw("socket connection rejected", "error", err)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "unauthorized"}`))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Errorw("websocket upgrade failed", "error", err)
		return
	}
	client.conn = conn

	g.Hub.Join(client, PersonalRoom(client.party))
	if !client.party.IsAnonymous() {
		g.Hub.Join(client, NotificationRoom(client.party.ID))
	}

	go client.writePump()
	g.readPump(client)
}

// admit resolves the connection identity before the upgrade is accepted
func (g *Gateway) admit(r *http.Request) (*wsClient, error) {
	client := &wsClient{
		send:  make(chan wsEnvelope, 32),
		rooms: map[Room]bool{},
	}

	if publicID := r.URL.Query().Get("publicId"); publicID != "" {
		if !models.IsPublicID(publicID) {
			return nil, errBadRequest("invalid public id")
		}
		client.party = models.AnonymousParty(publicID)
		return client, nil
	}

	userID, err := g.Authenticate(r)
	if err != nil {
		return nil, err
	}
	user, err := g.Chat.Resolver.lookupUser(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	client.user = user
	client.party = models.UserParty(user.ID.Hex())
	return client, nil
}

func (c *wsClient) writePump() {
	for env := range c.send {
		if err := c.conn.WriteJSON(env); err != nil {
			break
		}
	}
	c.conn.Close()
}

// readPump processes events one at a time in receipt order. A failing handler
// produces an error event on this connection only; it never tears down the
// gateway or other connections.
func (g *Gateway) readPump(c *wsClient) {
	defer g.Hub.Drop(c)

	for {
		var in wsIncoming
		if err := c.conn.ReadJSON(&in); err != nil {
			return
		}
		g.dispatch(c, in)
	}
}

func (g *Gateway) dispatch(c *wsClient, in wsIncoming) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.S().Errorw("socket handler panicked", "event", in.Event, "panic", rec)
			g.Hub.emitTo(c, EventError, models.SocketError{Event: in.Event, Message: "internal error"})
		}
	}()

	var err error
	switch in.Event {
	case eventJoinOrderChat:
		err = g.handleJoinOrderChat(c, in.Data)
	case eventSendMessage:
		err = g.handleSendMessage(c, in.Data)
	case eventMarkAsRead:
		err = g.handleMarkAsRead(c, in.Data)
	case eventTyping:
		err = g.handleTyping(c, in.Data)
	default:
		err = errBadRequest("unknown event")
	}
	if err != nil {
		g.Hub.emitTo(c, EventError, models.SocketError{Event: in.Event, Message: err.Error()})
	}
}

func (g *Gateway) handleJoinOrderChat(c *wsClient, data json.RawMessage) error {
	var payload struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.OrderID == "" {
		return errBadRequest("orderId is required")
	}
	g.Hub.Join(c, NewRoom(RoomOrder, payload.OrderID))
	return nil
}

func (g *Gateway) handleSendMessage(c *wsClient, data json.RawMessage) error {
	var req SendMessageRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errBadRequest("malformed sendMessage payload")
	}
	viewerID := ""
	if c.user != nil {
		viewerID = c.user.ID.Hex()
	} else {
		// the connection identity wins over whatever the payload claims
		req.PublicID = c.party.ID
	}
	_, err := g.Chat.send(context.Background(), viewerID, req, remoteIP(c.conn.RemoteAddr().String()))
	return err
}

// remoteIP strips the port a net.Conn address carries so the stored sender ip
// is usable for geolocation.
func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (g *Gateway) handleMarkAsRead(c *wsClient, data json.RawMessage) error {
	var payload struct {
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.MessageID == "" {
		return errBadRequest("messageId is required")
	}
	_, err := g.Chat.markMessageRead(context.Background(), c.party, payload.MessageID)
	return err
}

func (g *Gateway) handleTyping(c *wsClient, data json.RawMessage) error {
	var payload struct {
		OrderID  string `json:"orderId"`
		Receiver string `json:"receiver"`
		IsTyping bool   `json:"isTyping"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return errBadRequest("malformed typing payload")
	}
	out := map[string]interface{}{
		"sender":   c.party.ID,
		"isTyping": payload.IsTyping,
	}
	// ephemeral, never persisted
	switch {
	case payload.OrderID != "":
		out["orderId"] = payload.OrderID
		g.Hub.Emit(NewRoom(RoomOrder, payload.OrderID), EventUserTyping, out)
	case payload.Receiver != "":
		var other models.Party
		if models.IsPublicID(payload.Receiver) {
			other = models.AnonymousParty(payload.Receiver)
		} else {
			other = models.UserParty(payload.Receiver)
		}
		g.Hub.Emit(PersonalRoom(other), EventUserTyping, out)
	case c.party.IsAnonymous():
		// anonymous threads always terminate at the default admin
		g.Hub.Emit(PersonalRoom(models.UserParty(g.Chat.DefaultAdminID)), EventUserTyping, out)
	default:
		return errBadRequest("receiver or orderId is required")
	}
	return nil
}
