package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Baaaki/scooter-fleet/internal/models"
	"github.com/Baaaki/scooter-fleet/internal/realtime"
	"github.com/Baaaki/scooter-fleet/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type GatewayIntegrationTestSuite struct {
	suite.Suite
	app    *testApp
	server *httptest.Server
	wsURL  string
	rider  *models.User
	admin  *models.User
	conns  []*websocket.Conn
}

func (s *GatewayIntegrationTestSuite) SetupTest() {
	s.app = newTestApp(s.T())
	s.server = httptest.NewServer(s.app.router)
	s.wsURL = "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/ws"
	s.rider = testutil.DefaultTestUser(s.T(), s.app.testDB.DB)
	s.admin = testutil.DefaultAdminUser(s.T(), s.app.testDB.DB)
}

func (s *GatewayIntegrationTestSuite) TearDownTest() {
	for _, conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
	s.server.Close()
	s.app.teardown()
}

// dial connects as user and waits until the server finished the connect
// sequence, detected by a get-online-status round trip.
func (s *GatewayIntegrationTestSuite) dial(user *models.User) *websocket.Conn {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+testutil.Token(s.T(), user, testSecret))

	conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL, header)
	require.NoError(s.T(), err)
	require.Equal(s.T(), http.StatusSwitchingProtocols, resp.StatusCode)
	s.conns = append(s.conns, conn)

	s.emit(conn, realtime.EventGetOnlineStatus, realtime.OnlineStatusRequest{})
	s.expect(conn, realtime.EventOnlineStatus)
	return conn
}

func (s *GatewayIntegrationTestSuite) emit(conn *websocket.Conn, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	require.NoError(s.T(), err)
	require.NoError(s.T(), conn.WriteJSON(realtime.Frame{Event: event, Data: data}))
}

// expect reads frames until one named event arrives, skipping others.
func (s *GatewayIntegrationTestSuite) expect(conn *websocket.Conn, event string) json.RawMessage {
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(s.T(), conn.SetReadDeadline(deadline))
	for {
		var frame realtime.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			s.T().Fatalf("waiting for %s: %v", event, err)
		}
		if frame.Event == event {
			return frame.Data
		}
	}
}

// expectNone asserts that event does not arrive within a short wait.
func (s *GatewayIntegrationTestSuite) expectNone(conn *websocket.Conn, event string) {
	require.NoError(s.T(), conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	for {
		var frame realtime.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		assert.NotEqual(s.T(), event, frame.Event)
	}
}

func (s *GatewayIntegrationTestSuite) TestRejectsUnauthenticated() {
	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	require.Error(s.T(), err)
	require.NotNil(s.T(), resp)
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{}
	header.Set("Authorization", "Bearer not-a-token")
	_, resp, err = websocket.DefaultDialer.Dial(s.wsURL, header)
	require.Error(s.T(), err)
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (s *GatewayIntegrationTestSuite) TestRejectsForeignOrigin() {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+testutil.Token(s.T(), s.rider, testSecret))
	header.Set("Origin", "https://evil.example.com")

	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL, header)
	require.Error(s.T(), err)
	assert.Equal(s.T(), http.StatusForbidden, resp.StatusCode)
}

func (s *GatewayIntegrationTestSuite) TestSendMessageFansOut() {
	chat := testutil.CreateChat(s.T(), s.app.testDB.DB, true, false, s.rider, s.admin)
	adminConn := s.dial(s.admin)
	riderConn := s.dial(s.rider)

	s.emit(riderConn, realtime.EventSendMessage, realtime.SendMessageRequest{ChatID: chat.ID, Content: "scooter 42 is stuck"})

	var msg struct {
		ID      string `json:"id"`
		ChatID  string `json:"chatId"`
		Content string `json:"content"`
		Sender  struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"sender"`
	}
	require.NoError(s.T(), json.Unmarshal(s.expect(adminConn, realtime.EventNewMessage), &msg))
	assert.Equal(s.T(), "scooter 42 is stuck", msg.Content)
	assert.Equal(s.T(), s.rider.Name, msg.Sender.Name)

	var unread realtime.UnreadUpdate
	require.NoError(s.T(), json.Unmarshal(s.expect(adminConn, realtime.EventUnreadUpdate), &unread))
	assert.Equal(s.T(), chat.ID, unread.ChatID)
	assert.Equal(s.T(), msg.ID, unread.MessageID.String())

	// The sender gets the message through the chat room too
	s.expect(riderConn, realtime.EventNewMessage)
	assert.Equal(s.T(), 1, testutil.Participant(s.T(), s.app.testDB.DB, chat.ID, s.admin.ID).UnreadCount)
}

func (s *GatewayIntegrationTestSuite) TestModerationRejectionIsReturnedToSender() {
	chat := testutil.CreateChat(s.T(), s.app.testDB.DB, false, false, s.rider, s.admin)
	testutil.CreateMessage(s.T(), s.app.testDB.DB, chat.ID, s.rider.ID, "hello", time.Now())
	riderConn := s.dial(s.rider)

	s.emit(riderConn, realtime.EventSendMessage, realtime.SendMessageRequest{ChatID: chat.ID, Content: "anyone?"})

	var notice realtime.ErrorNotice
	require.NoError(s.T(), json.Unmarshal(s.expect(riderConn, realtime.EventError), &notice))
	assert.Equal(s.T(), "pending_approval", notice.Code)
	assert.Contains(s.T(), notice.Message, "pending admin approval")
}

func (s *GatewayIntegrationTestSuite) TestNonParticipantCannotSend() {
	chat := testutil.CreateChat(s.T(), s.app.testDB.DB, true, false, s.admin)
	riderConn := s.dial(s.rider)

	s.emit(riderConn, realtime.EventSendMessage, realtime.SendMessageRequest{ChatID: chat.ID, Content: "let me in"})

	var notice realtime.ErrorNotice
	require.NoError(s.T(), json.Unmarshal(s.expect(riderConn, realtime.EventError), &notice))
	assert.Equal(s.T(), "forbidden", notice.Code)
}

func (s *GatewayIntegrationTestSuite) TestTypingSkipsSender() {
	chat := testutil.CreateChat(s.T(), s.app.testDB.DB, true, false, s.rider, s.admin)
	adminConn := s.dial(s.admin)
	riderConn := s.dial(s.rider)

	s.emit(adminConn, realtime.EventTyping, realtime.ChatRef{ChatID: chat.ID})

	var typing realtime.TypingNotice
	require.NoError(s.T(), json.Unmarshal(s.expect(riderConn, realtime.EventUserTyping), &typing))
	assert.Equal(s.T(), s.admin.ID, typing.UserID)
	assert.Equal(s.T(), s.admin.Name, typing.UserName)
	s.expectNone(adminConn, realtime.EventUserTyping)

	s.emit(adminConn, realtime.EventStopTyping, realtime.ChatRef{ChatID: chat.ID})
	s.expect(riderConn, realtime.EventUserStopTyping)
}

func (s *GatewayIntegrationTestSuite) TestMarkReadConfirmsToCaller() {
	chat := testutil.CreateChat(s.T(), s.app.testDB.DB, true, false, s.rider, s.admin)
	testutil.CreateMessage(s.T(), s.app.testDB.DB, chat.ID, s.rider.ID, "hi", time.Now())
	s.app.testDB.DB.Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chat.ID, s.admin.ID).
		Update("unread_count", 3)
	adminConn := s.dial(s.admin)

	s.emit(adminConn, realtime.EventMarkRead, realtime.ChatRef{ChatID: chat.ID})

	var read realtime.MessagesRead
	require.NoError(s.T(), json.Unmarshal(s.expect(adminConn, realtime.EventMessagesRead), &read))
	assert.Equal(s.T(), chat.ID, read.ChatID)
	assert.Equal(s.T(), 0, testutil.Participant(s.T(), s.app.testDB.DB, chat.ID, s.admin.ID).UnreadCount)
}

func (s *GatewayIntegrationTestSuite) TestPresenceLifecycle() {
	testutil.CreateChat(s.T(), s.app.testDB.DB, true, false, s.rider, s.admin)
	adminConn := s.dial(s.admin)
	riderConn := s.dial(s.rider)

	var online realtime.PresenceNotice
	require.NoError(s.T(), json.Unmarshal(s.expect(adminConn, realtime.EventUserOnline), &online))
	assert.Equal(s.T(), s.rider.ID, online.UserID)

	s.emit(adminConn, realtime.EventGetOnlineStatus, map[string]interface{}{
		"userIds": []string{s.rider.ID.String()},
	})
	var statuses map[string]bool
	require.NoError(s.T(), json.Unmarshal(s.expect(adminConn, realtime.EventOnlineStatus), &statuses))
	assert.True(s.T(), statuses[s.rider.ID.String()])

	require.NoError(s.T(), riderConn.Close())

	var offline realtime.PresenceNotice
	require.NoError(s.T(), json.Unmarshal(s.expect(adminConn, realtime.EventUserOffline), &offline))
	assert.Equal(s.T(), s.rider.ID, offline.UserID)
	assert.False(s.T(), s.app.tracker.IsOnline(s.rider.ID))
	assert.NotContains(s.T(), s.app.tracker.ListOnline(), s.rider.ID)

	s.emit(adminConn, realtime.EventGetOnlineStatus, map[string]interface{}{
		"userIds": []string{s.rider.ID.String()},
	})
	require.NoError(s.T(), json.Unmarshal(s.expect(adminConn, realtime.EventOnlineStatus), &statuses))
	assert.False(s.T(), statuses[s.rider.ID.String()])
}

func (s *GatewayIntegrationTestSuite) TestNewChatJoinsOpenConnections() {
	adminConn := s.dial(s.admin)
	riderConn := s.dial(s.rider)

	w := s.app.do(s.T(), http.MethodPost, "/api/chats", s.rider, map[string]interface{}{
		"participantIds": []string{s.admin.ID.String()},
		"message":        "first contact",
	})
	require.Equal(s.T(), http.StatusCreated, w.Code, w.Body.String())

	s.expect(adminConn, realtime.EventNewMessage)
	s.expect(riderConn, realtime.EventNewMessage)
}

func (s *GatewayIntegrationTestSuite) TestModerationBroadcast() {
	chat := testutil.CreateChat(s.T(), s.app.testDB.DB, false, false, s.rider, s.admin)
	riderConn := s.dial(s.rider)

	w := s.app.do(s.T(), http.MethodPost, "/api/admin/chats/"+chat.ID.String()+"/approve", s.admin, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)

	var status realtime.ChatStatus
	require.NoError(s.T(), json.Unmarshal(s.expect(riderConn, realtime.EventChatStatusChanged), &status))
	assert.True(s.T(), status.AdminApproved)
	assert.False(s.T(), status.IsBlocked)

	w = s.app.do(s.T(), http.MethodDelete, "/api/admin/chats/"+chat.ID.String(), s.admin, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)

	var deleted realtime.ChatDeleted
	require.NoError(s.T(), json.Unmarshal(s.expect(riderConn, realtime.EventChatDeleted), &deleted))
	assert.Equal(s.T(), chat.ID, deleted.ChatID)
}

func (s *GatewayIntegrationTestSuite) TestUnknownEvent() {
	riderConn := s.dial(s.rider)
	s.emit(riderConn, "fly-away", map[string]string{})

	var notice realtime.ErrorNotice
	require.NoError(s.T(), json.Unmarshal(s.expect(riderConn, realtime.EventError), &notice))
	assert.Equal(s.T(), "unknown event", notice.Message)
}

func TestGatewayIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(GatewayIntegrationTestSuite))
}
