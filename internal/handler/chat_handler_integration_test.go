package handler_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Baaaki/scooter-fleet/internal/models"
	"github.com/Baaaki/scooter-fleet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ChatHandlerIntegrationTestSuite struct {
	suite.Suite
	app   *testApp
	rider *models.User
	admin *models.User
}

func (s *ChatHandlerIntegrationTestSuite) SetupTest() {
	s.app = newTestApp(s.T())
	s.rider = testutil.DefaultTestUser(s.T(), s.app.testDB.DB)
	s.admin = testutil.DefaultAdminUser(s.T(), s.app.testDB.DB)
}

func (s *ChatHandlerIntegrationTestSuite) TearDownTest() {
	s.app.teardown()
}

func (s *ChatHandlerIntegrationTestSuite) createChat(user *models.User, ids ...string) string {
	w := s.app.do(s.T(), http.MethodPost, "/api/chats", user, map[string]interface{}{"participantIds": ids})
	require.Contains(s.T(), []int{http.StatusCreated, http.StatusOK}, w.Code, w.Body.String())
	return decodeBody(s.T(), w)["chat"].(map[string]interface{})["id"].(string)
}

func (s *ChatHandlerIntegrationTestSuite) send(user *models.User, chatID, content string) int {
	w := s.app.do(s.T(), http.MethodPost, "/api/chats/"+chatID+"/messages", user, map[string]string{"content": content})
	return w.Code
}

func (s *ChatHandlerIntegrationTestSuite) TestRequiresAuthentication() {
	for _, path := range []string{"/api/chats", "/api/admins", "/api/rate-limit", "/api/admin/chats"} {
		w := s.app.do(s.T(), http.MethodGet, path, nil, nil)
		assert.Equal(s.T(), http.StatusUnauthorized, w.Code, path)
	}
}

func (s *ChatHandlerIntegrationTestSuite) TestAdminRoutesRequireRole() {
	chat := testutil.CreateChat(s.T(), s.app.testDB.DB, false, false, s.rider, s.admin)

	assert.Equal(s.T(), http.StatusForbidden, s.app.do(s.T(), http.MethodGet, "/api/admin/chats", s.rider, nil).Code)
	assert.Equal(s.T(), http.StatusForbidden,
		s.app.do(s.T(), http.MethodPost, "/api/admin/chats/"+chat.ID.String()+"/approve", s.rider, nil).Code)
	assert.Equal(s.T(), http.StatusForbidden,
		s.app.do(s.T(), http.MethodDelete, "/api/admin/chats/"+chat.ID.String(), s.rider, nil).Code)
}

func (s *ChatHandlerIntegrationTestSuite) TestModerationFlow() {
	chatID := s.createChat(s.rider, s.admin.ID.String())

	assert.Equal(s.T(), http.StatusCreated, s.send(s.rider, chatID, "hello"))

	w := s.app.do(s.T(), http.MethodPost, "/api/chats/"+chatID+"/messages", s.rider, map[string]string{"content": "are you there?"})
	assert.Equal(s.T(), http.StatusForbidden, w.Code)
	assert.Equal(s.T(), "pending_approval", decodeBody(s.T(), w)["code"])

	w = s.app.do(s.T(), http.MethodPost, "/api/admin/chats/"+chatID+"/approve", s.admin, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	status := decodeBody(s.T(), w)["chat"].(map[string]interface{})
	assert.Equal(s.T(), true, status["adminApproved"])
	assert.Equal(s.T(), false, status["isBlocked"])

	assert.Equal(s.T(), http.StatusCreated, s.send(s.rider, chatID, "thanks"))

	require.Equal(s.T(), http.StatusOK, s.app.do(s.T(), http.MethodPost, "/api/admin/chats/"+chatID+"/block", s.admin, nil).Code)
	w = s.app.do(s.T(), http.MethodPost, "/api/chats/"+chatID+"/messages", s.rider, map[string]string{"content": "hello?"})
	assert.Equal(s.T(), http.StatusForbidden, w.Code)
	assert.Equal(s.T(), "chat_blocked", decodeBody(s.T(), w)["code"])
	assert.Equal(s.T(), http.StatusCreated, s.send(s.admin, chatID, "you are blocked"))

	require.Equal(s.T(), http.StatusOK, s.app.do(s.T(), http.MethodPost, "/api/admin/chats/"+chatID+"/unblock", s.admin, nil).Code)
	assert.Equal(s.T(), http.StatusCreated, s.send(s.rider, chatID, "sorry"))
}

func (s *ChatHandlerIntegrationTestSuite) TestGetChatMarksRead() {
	chatID := s.createChat(s.rider, s.admin.ID.String())
	require.Equal(s.T(), http.StatusCreated, s.send(s.rider, chatID, "battery at 5%"))

	w := s.app.do(s.T(), http.MethodGet, "/api/chats", s.admin, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	chats := decodeBody(s.T(), w)["chats"].([]interface{})
	require.Len(s.T(), chats, 1)
	assert.Equal(s.T(), float64(1), chats[0].(map[string]interface{})["unreadCount"])

	w = s.app.do(s.T(), http.MethodGet, "/api/chats/"+chatID, s.admin, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	chat := decodeBody(s.T(), w)["chat"].(map[string]interface{})
	messages := chat["messages"].([]interface{})
	require.Len(s.T(), messages, 1)
	first := messages[0].(map[string]interface{})
	assert.Equal(s.T(), "battery at 5%", first["content"])
	assert.Equal(s.T(), s.rider.Name, first["sender"].(map[string]interface{})["name"])
	assert.Equal(s.T(), float64(0), chat["unreadCount"])
}

func (s *ChatHandlerIntegrationTestSuite) TestMarkRead() {
	chatID := s.createChat(s.rider, s.admin.ID.String())
	require.Equal(s.T(), http.StatusCreated, s.send(s.rider, chatID, "ping"))

	w := s.app.do(s.T(), http.MethodPost, "/api/chats/"+chatID+"/read", s.admin, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)

	outsider := testutil.CreateUser(s.T(), s.app.testDB.DB, "Outsider", "outsider@example.com", models.RoleUser)
	assert.Equal(s.T(), http.StatusForbidden,
		s.app.do(s.T(), http.MethodPost, "/api/chats/"+chatID+"/read", outsider, nil).Code)
}

func (s *ChatHandlerIntegrationTestSuite) TestBadRequests() {
	assert.Equal(s.T(), http.StatusBadRequest, s.app.do(s.T(), http.MethodGet, "/api/chats/not-a-uuid", s.rider, nil).Code)
	assert.Equal(s.T(), http.StatusBadRequest,
		s.app.do(s.T(), http.MethodPost, "/api/chats", s.rider, map[string]interface{}{"participantIds": []string{}}).Code)

	chatID := s.createChat(s.rider, s.admin.ID.String())
	assert.Equal(s.T(), http.StatusBadRequest, s.send(s.rider, chatID, "  "))
	assert.Equal(s.T(), http.StatusNotFound,
		s.app.do(s.T(), http.MethodGet, "/api/chats/9b2f7c1e-4f4a-4d89-a8a5-d1f0a3b0e111", s.rider, nil).Code)
}

func (s *ChatHandlerIntegrationTestSuite) TestCreateChatReusesExisting() {
	first := s.createChat(s.rider, s.admin.ID.String())

	w := s.app.do(s.T(), http.MethodPost, "/api/chats", s.rider, map[string]interface{}{"participantIds": []string{s.admin.ID.String()}})
	require.Equal(s.T(), http.StatusOK, w.Code)
	body := decodeBody(s.T(), w)
	assert.Equal(s.T(), false, body["created"])
	assert.Equal(s.T(), first, body["chat"].(map[string]interface{})["id"])
}

func (s *ChatHandlerIntegrationTestSuite) TestListAdmins() {
	chatID := s.createChat(s.rider, s.admin.ID.String())

	w := s.app.do(s.T(), http.MethodGet, "/api/admins", s.rider, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	admins := decodeBody(s.T(), w)["admins"].([]interface{})
	require.Len(s.T(), admins, 1)
	assert.Equal(s.T(), chatID, admins[0].(map[string]interface{})["chatId"])
}

func (s *ChatHandlerIntegrationTestSuite) TestRateLimit() {
	chat := testutil.CreateChat(s.T(), s.app.testDB.DB, true, false, s.rider, s.admin)
	chatID := chat.ID.String()

	for i := 0; i < 10; i++ {
		require.Equal(s.T(), http.StatusCreated, s.send(s.rider, chatID, fmt.Sprintf("update %d", i)))
	}

	w := s.app.do(s.T(), http.MethodPost, "/api/chats/"+chatID+"/messages", s.rider, map[string]string{"content": "one more"})
	require.Equal(s.T(), http.StatusTooManyRequests, w.Code)
	body := decodeBody(s.T(), w)
	assert.Equal(s.T(), "rate_limited", body["code"])
	details := body["details"].(map[string]interface{})
	assert.Equal(s.T(), float64(10), details["limit"])
	assert.Equal(s.T(), float64(10), details["messagesSent"])
	assert.NotEmpty(s.T(), details["resetTime"])

	w = s.app.do(s.T(), http.MethodGet, "/api/rate-limit", s.rider, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	usage := decodeBody(s.T(), w)
	assert.Equal(s.T(), true, usage["isLimited"])
	assert.Equal(s.T(), float64(0), usage["remaining"])
}

func (s *ChatHandlerIntegrationTestSuite) TestAdminListAndDelete() {
	chatID := s.createChat(s.rider, s.admin.ID.String())

	w := s.app.do(s.T(), http.MethodGet, "/api/admin/chats", s.admin, nil)
	require.Equal(s.T(), http.StatusOK, w.Code)
	assert.Len(s.T(), decodeBody(s.T(), w)["chats"].([]interface{}), 1)

	require.Equal(s.T(), http.StatusOK, s.app.do(s.T(), http.MethodDelete, "/api/admin/chats/"+chatID, s.admin, nil).Code)
	assert.Equal(s.T(), http.StatusNotFound, s.app.do(s.T(), http.MethodGet, "/api/chats/"+chatID, s.rider, nil).Code)
}

func TestChatHandlerIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(ChatHandlerIntegrationTestSuite))
}
