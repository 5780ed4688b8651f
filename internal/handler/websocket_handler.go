package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Baaaki/scooter-fleet/internal/metrics"
	"github.com/Baaaki/scooter-fleet/internal/middleware"
	"github.com/Baaaki/scooter-fleet/internal/presence"
	"github.com/Baaaki/scooter-fleet/internal/realtime"
	"github.com/Baaaki/scooter-fleet/internal/service"
	"github.com/Baaaki/scooter-fleet/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var knownEvents = map[string]bool{
	realtime.EventSendMessage:     true,
	realtime.EventMarkRead:        true,
	realtime.EventTyping:          true,
	realtime.EventStopTyping:      true,
	realtime.EventGetOnlineStatus: true,
}

// Gateway is the realtime endpoint. It is mounted behind AuthMiddleware,
// so a bad token is rejected with 401 before the upgrade.
type Gateway struct {
	hub      *realtime.Hub
	presence *presence.Tracker[*realtime.Client]
	chats    *service.ChatService
	upgrader websocket.Upgrader
}

func NewGateway(
	hub *realtime.Hub,
	tracker *presence.Tracker[*realtime.Client],
	chats *service.ChatService,
	allowedOrigins []string,
) *Gateway {
	return &Gateway{
		hub:      hub,
		presence: tracker,
		chats:    chats,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin
		return origin == "" || set["*"] || set[origin]
	}
}

// HandleWebSocket upgrades the request and serves the connection until it closes.
func (g *Gateway) HandleWebSocket(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Log.Warn("Failed to upgrade connection",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return
	}

	client := realtime.NewClient(conn, realtime.Identity{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  user.Role,
	})

	ctx := c.Request.Context()
	g.connect(ctx, client)
	defer g.disconnect(ctx, client)

	go client.WritePump()
	client.ReadLoop(func(cl *realtime.Client, frame realtime.Frame) {
		g.dispatch(ctx, cl, frame)
	})
}

func (g *Gateway) connect(ctx context.Context, client *realtime.Client) {
	userID := client.User.ID

	g.presence.Register(userID, client)
	g.hub.Register(client)
	metrics.ConnectionsActive.Inc()

	chatIDs, err := g.chats.ChatIDsForUser(ctx, userID)
	if err != nil {
		logger.Log.Error("Failed to load chats for connection",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
	rooms := make([]string, 0, len(chatIDs))
	for _, id := range chatIDs {
		rooms = append(rooms, realtime.ChatRoom(id))
	}
	g.hub.Join(client, rooms...)

	g.broadcastPresence(ctx, userID, realtime.EventUserOnline)

	logger.Log.Info("Client connected",
		zap.String("user_id", userID.String()),
		zap.Int("chats", len(chatIDs)),
		zap.Int("online", g.presence.Count()),
	)
}

func (g *Gateway) disconnect(ctx context.Context, client *realtime.Client) {
	userID := client.User.ID

	g.hub.Unregister(client)
	metrics.ConnectionsActive.Dec()

	// A newer connection of the same user keeps them online
	if g.presence.Unregister(userID, client) {
		g.broadcastPresence(ctx, userID, realtime.EventUserOffline)
	}

	logger.Log.Info("Client disconnected",
		zap.String("user_id", userID.String()),
		zap.Duration("session_duration", time.Since(client.ConnectedAt).Round(time.Second)),
		zap.Int("online", g.presence.Count()),
	)
}

// broadcastPresence tells every co-participant. Failures are logged only.
func (g *Gateway) broadcastPresence(ctx context.Context, userID uuid.UUID, event string) {
	peers, err := g.chats.CoParticipants(ctx, userID)
	if err != nil {
		logger.Log.Warn("Failed to load co-participants for presence",
			zap.String("user_id", userID.String()),
			zap.String("event", event),
			zap.Error(err),
		)
		return
	}
	for _, peer := range peers {
		g.hub.ToUser(ctx, peer, event, realtime.PresenceNotice{UserID: userID})
	}
}

func (g *Gateway) dispatch(ctx context.Context, client *realtime.Client, frame realtime.Frame) {
	label := frame.Event
	if !knownEvents[label] {
		label = "unknown"
	}
	metrics.EventsTotal.WithLabelValues(label).Inc()

	switch frame.Event {
	case realtime.EventSendMessage:
		g.handleSendMessage(ctx, client, frame.Data)
	case realtime.EventMarkRead:
		g.handleMarkRead(ctx, client, frame.Data)
	case realtime.EventTyping:
		g.handleTyping(ctx, client, frame.Data, realtime.EventUserTyping)
	case realtime.EventStopTyping:
		g.handleTyping(ctx, client, frame.Data, realtime.EventUserStopTyping)
	case realtime.EventGetOnlineStatus:
		g.handleOnlineStatus(client, frame.Data)
	default:
		client.Emit(realtime.EventError, realtime.ErrorNotice{Message: "unknown event", Code: "bad_request"})
	}
}

func (g *Gateway) handleSendMessage(ctx context.Context, client *realtime.Client, data json.RawMessage) {
	var req realtime.SendMessageRequest
	if !decode(client, data, &req) {
		return
	}

	_, err := g.chats.SendMessage(ctx, actorOf(client), req.ChatID, req.Content)
	metrics.MessagesTotal.WithLabelValues(service.SendOutcome(err), "ws").Inc()
	if err != nil {
		g.sendError(client, err)
	}
}

func (g *Gateway) handleMarkRead(ctx context.Context, client *realtime.Client, data json.RawMessage) {
	var req realtime.ChatRef
	if !decode(client, data, &req) {
		return
	}

	if err := g.chats.MarkRead(ctx, actorOf(client), req.ChatID); err != nil {
		g.sendError(client, err)
		return
	}
	client.Emit(realtime.EventMessagesRead, realtime.MessagesRead{ChatID: req.ChatID})
}

// handleTyping relays to the chat room. Membership is checked against the
// rooms this connection joined, no store round-trip.
func (g *Gateway) handleTyping(ctx context.Context, client *realtime.Client, data json.RawMessage, event string) {
	var req realtime.ChatRef
	if !decode(client, data, &req) {
		return
	}

	if !g.hub.InRoom(client, realtime.ChatRoom(req.ChatID)) {
		g.sendError(client, service.ErrNotParticipant)
		return
	}

	g.hub.ToChat(ctx, req.ChatID, event, realtime.TypingNotice{
		ChatID:   req.ChatID,
		UserID:   client.User.ID,
		UserName: client.User.Name,
	}, client.User.ID)
}

func (g *Gateway) handleOnlineStatus(client *realtime.Client, data json.RawMessage) {
	var req realtime.OnlineStatusRequest
	if !decode(client, data, &req) {
		return
	}

	statuses := g.presence.Statuses(req.UserIDs)
	out := make(map[string]bool, len(statuses))
	for id, online := range statuses {
		out[id.String()] = online
	}
	client.Emit(realtime.EventOnlineStatus, out)
}

func (g *Gateway) sendError(client *realtime.Client, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		logger.Log.Error("Realtime event failed",
			zap.String("user_id", client.User.ID.String()),
			zap.Error(err),
		)
	}
	client.Emit(realtime.EventError, realtime.ErrorNotice{
		Message: e.Message,
		Code:    e.Code,
		Details: e.Details,
	})
}

func decode(client *realtime.Client, data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		client.Emit(realtime.EventError, realtime.ErrorNotice{Message: "invalid payload", Code: "bad_request"})
		return false
	}
	return true
}

func actorOf(client *realtime.Client) service.Actor {
	return service.Actor{ID: client.User.ID, Name: client.User.Name, Role: client.User.Role}
}
