package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Baaaki/scooter-fleet/internal/broker"
	"github.com/Baaaki/scooter-fleet/internal/handler"
	"github.com/Baaaki/scooter-fleet/internal/middleware"
	"github.com/Baaaki/scooter-fleet/internal/models"
	"github.com/Baaaki/scooter-fleet/internal/presence"
	"github.com/Baaaki/scooter-fleet/internal/ratelimit"
	"github.com/Baaaki/scooter-fleet/internal/realtime"
	"github.com/Baaaki/scooter-fleet/internal/repository"
	"github.com/Baaaki/scooter-fleet/internal/service"
	"github.com/Baaaki/scooter-fleet/internal/testutil"
	"github.com/gin-gonic/gin"
)

const testSecret = "test-secret-key"

// testApp wires the real stack over in-memory SQLite and the local broker.
type testApp struct {
	testDB   *testutil.TestDatabase
	router   *gin.Engine
	hub      *realtime.Hub
	tracker  *presence.Tracker[*realtime.Client]
	chats    *service.ChatService
	teardown func()
}

func newTestApp(t *testing.T) *testApp {
	gin.SetMode(gin.TestMode)

	testDB := testutil.SetupTestDatabase(t)
	userRepo := repository.NewUserRepository(testDB.DB)
	chatRepo := repository.NewChatRepository(testDB.DB)
	messageRepo := repository.NewMessageRepository(testDB.DB)

	bus := broker.NewLocalBroker()
	ctx, cancel := context.WithCancel(context.Background())
	hub := realtime.NewHub(bus)
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	tracker := presence.NewTracker[*realtime.Client]()

	limiter := ratelimit.NewLimiter(chatRepo, 10, time.Hour)
	authService := service.NewAuthService(userRepo, testSecret, time.Hour)
	chatService := service.NewChatService(chatRepo, messageRepo, userRepo, limiter, hub)

	router := gin.New()
	handler.Routes{
		Auth:        handler.NewAuthHandler(authService, handler.CookieConfig{Name: "token", MaxAge: time.Hour}),
		Chat:        handler.NewChatHandler(chatService),
		Admin:       handler.NewAdminHandler(chatService),
		Gateway:     handler.NewGateway(hub, tracker, chatService, []string{"http://localhost:5173"}),
		RequireAuth: middleware.AuthMiddleware(authService, "token"),
	}.Register(router)

	return &testApp{
		testDB:  testDB,
		router:  router,
		hub:     hub,
		tracker: tracker,
		chats:   chatService,
		teardown: func() {
			cancel()
			bus.Close()
			testDB.Teardown(t)
		},
	}
}

// do sends a JSON request authenticated as user (nil for anonymous).
func (a *testApp) do(t *testing.T, method, path string, user *models.User, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+testutil.Token(t, user, testSecret))
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode body %q: %v", w.Body.String(), err)
	}
	return out
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
