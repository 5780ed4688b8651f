package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Baaaki/scooter-fleet/internal/broker"
	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub owns the room memberships of the connections held by this instance.
// Room traffic goes out through the broker and comes back through Start's
// subscription, so every instance delivers to its own sockets.
type Hub struct {
	broker broker.Broker

	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	byUser  map[uuid.UUID]map[*Client]struct{}
	clients map[*Client]struct{}
}

// NewHub returns a hub publishing through b. Call Start before use.
func NewHub(b broker.Broker) *Hub {
	return &Hub{
		broker:  b,
		rooms:   make(map[string]map[*Client]struct{}),
		byUser:  make(map[uuid.UUID]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
	}
}

// Start subscribes to the broker and delivers envelopes until ctx ends or
// the broker closes the subscription.
func (h *Hub) Start(ctx context.Context) error {
	envelopes, err := h.broker.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		for env := range envelopes {
			h.deliver(env)
		}
		logger.Log.Info("Hub subscription closed")
	}()
	return nil
}

// Register adds the connection and joins it to its own user room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	conns, ok := h.byUser[c.User.ID]
	if !ok {
		conns = make(map[*Client]struct{})
		h.byUser[c.User.ID] = conns
	}
	conns[c] = struct{}{}
	h.joinLocked(c, UserRoom(c.User.ID))
}

// Unregister drops the connection from every room and stops its writer.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if conns, ok := h.byUser[c.User.ID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.byUser, c.User.ID)
		}
	}
	for room, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	c.close()
}

// Close unregisters every local connection so each writer sends a close
// frame. Used on shutdown, before the HTTP server stops. Returns the number
// of connections closed.
func (h *Hub) Close() int {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
	return len(clients)
}

// Join subscribes one local connection to rooms.
func (h *Hub) Join(c *Client, rooms ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, room := range rooms {
		h.joinLocked(c, room)
	}
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// InRoom reports whether the local connection is a member of room.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][c]
	return ok
}

// RoomSize returns the number of local connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ToChat emits to everyone in the chat room except the given users.
func (h *Hub) ToChat(ctx context.Context, chatID uuid.UUID, event string, payload interface{}, except ...uuid.UUID) {
	env := broker.Envelope{Kind: broker.KindEmit, Room: ChatRoom(chatID), Event: event}
	for _, id := range except {
		env.Except = append(env.Except, id.String())
	}
	h.emit(ctx, env, payload)
}

// ToUser emits to every connection of the user.
func (h *Hub) ToUser(ctx context.Context, userID uuid.UUID, event string, payload interface{}) {
	h.emit(ctx, broker.Envelope{Kind: broker.KindEmit, Room: UserRoom(userID), Event: event}, payload)
}

// JoinChat subscribes the current connections of the users to the chat room.
func (h *Hub) JoinChat(ctx context.Context, chatID uuid.UUID, userIDs ...uuid.UUID) {
	env := broker.Envelope{Kind: broker.KindJoin, Room: ChatRoom(chatID)}
	for _, id := range userIDs {
		env.Users = append(env.Users, id.String())
	}
	h.publish(ctx, env)
}

// DropChat removes the chat room on every instance.
func (h *Hub) DropChat(ctx context.Context, chatID uuid.UUID) {
	h.publish(ctx, broker.Envelope{Kind: broker.KindDrop, Room: ChatRoom(chatID)})
}

func (h *Hub) emit(ctx context.Context, env broker.Envelope, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Error("Failed to encode event payload",
			zap.String("event", env.Event),
			zap.Error(err),
		)
		return
	}
	env.Data = data
	h.publish(ctx, env)
}

// publish is best effort. A failed publish is logged and the caller carries on.
func (h *Hub) publish(ctx context.Context, env broker.Envelope) {
	if err := h.broker.Publish(ctx, env); err != nil {
		logger.Log.Warn("Broker publish failed",
			zap.String("kind", string(env.Kind)),
			zap.String("room", env.Room),
			zap.String("event", env.Event),
			zap.Error(err),
		)
	}
}

func (h *Hub) deliver(env broker.Envelope) {
	switch env.Kind {
	case broker.KindEmit:
		h.deliverEmit(env)
	case broker.KindJoin:
		h.deliverJoin(env)
	case broker.KindDrop:
		h.mu.Lock()
		delete(h.rooms, env.Room)
		h.mu.Unlock()
	default:
		logger.Log.Warn("Unknown envelope kind", zap.String("kind", string(env.Kind)))
	}
}

func (h *Hub) deliverEmit(env broker.Envelope) {
	frame, err := json.Marshal(Frame{Event: env.Event, Data: env.Data})
	if err != nil {
		logger.Log.Error("Failed to encode frame", zap.String("event", env.Event), zap.Error(err))
		return
	}

	except := make(map[string]struct{}, len(env.Except))
	for _, id := range env.Except {
		except[id] = struct{}{}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[env.Room] {
		if _, skip := except[c.User.ID.String()]; skip {
			continue
		}
		c.enqueue(frame)
	}
}

func (h *Hub) deliverJoin(env broker.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, raw := range env.Users {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		for c := range h.byUser[id] {
			h.joinLocked(c, env.Room)
		}
	}
}
