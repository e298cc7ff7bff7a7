package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/huangang/teamsync/internal/config"
	"github.com/huangang/teamsync/internal/middleware"
	"github.com/huangang/teamsync/internal/models"
	"github.com/huangang/teamsync/internal/protocol"
	"github.com/huangang/teamsync/internal/services"
	"github.com/huangang/teamsync/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-handlers")
}

type stubProvider struct {
	text    string
	meeting *services.MeetingArgs
	err     error
}

func (p *stubProvider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.text, p.err
}

func (p *stubProvider) ExtractMeeting(ctx context.Context, prompt string) (*services.MeetingArgs, error) {
	return p.meeting, p.err
}

type testApp struct {
	engine   *gin.Engine
	store    *services.StateStore
	hub      *services.ChannelHub
	presence *services.SessionRegistry
	files    *services.FileStore
}

func newTestApp(t *testing.T, provider services.AssistantProvider) *testApp {
	t.Helper()

	files := services.NewFileStore(filepath.Join(t.TempDir(), "data.json"))
	writer := services.NewInlineSnapshotWriter(files)
	store := services.LoadStateStore(context.Background(), files, writer)
	presence := services.NewSessionRegistry()
	hub := services.NewChannelHub(64)
	router := services.NewEventRouter(store, presence, hub, nil)

	assistant := services.NewAssistantService(provider, store, services.NewCalendarService(&config.CalendarConfig{}))

	r := gin.New()
	r.GET("/health", NewHealthHandler(hub, presence, writer, "file").CheckHealth)
	r.GET("/metrics", NewMetricsHandler(store, hub, presence, writer).Metrics)
	r.GET("/ws", NewSyncHandler(router).Serve)
	r.POST("/api/auth/login", NewAuthHandler(services.NewAuthService(store, &config.JWTConfig{ExpireHour: 1})).Login)
	r.GET("/api/events", NewSSEHandler(router).StreamEvents)

	protected := r.Group("/api", middleware.AuthRequired())
	stateHandler := NewStateHandler(store)
	protected.GET("/state", stateHandler.GetState)
	protected.GET("/teams/:teamId/users", stateHandler.GetTeamUsers)
	assistantHandler := NewAssistantHandler(assistant)
	protected.POST("/assistant/paper", assistantHandler.Paper)
	protected.POST("/assistant/summary", assistantHandler.Summary)
	protected.POST("/assistant/meeting", assistantHandler.Meeting)

	return &testApp{engine: r, store: store, hub: hub, presence: presence, files: files}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func testToken(t *testing.T) string {
	t.Helper()
	token, err := utils.GenerateToken("u1", "Ada", models.RoleStudent, 1)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return env
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Outbound {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out, err := protocol.DecodeOutbound(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return out
}

func emit(t *testing.T, conn *websocket.Conn, ev protocol.Inbound) {
	t.Helper()
	data, err := protocol.EncodeInbound(ev)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func expectEvent(t *testing.T, conn *websocket.Conn, name string) protocol.Outbound {
	t.Helper()
	out := readEvent(t, conn)
	if out.Event != name {
		t.Fatalf("event = %q, expected %q", out.Event, name)
	}
	return out
}

func TestSync_InitialSnapshotFirst(t *testing.T) {
	app := newTestApp(t, &stubProvider{})
	app.store.Mutate(func(snap *models.Snapshot) bool {
		snap.Users = append(snap.Users, models.User{ID: "u1", Name: "Ada", Role: models.RoleStudent})
		return true
	})

	srv := httptest.NewServer(app.engine)
	defer srv.Close()

	out := expectEvent(t, dial(t, srv), protocol.EventStateInitial)
	initial := out.Payload.(protocol.InitialState)
	if len(initial.Users) != 1 || initial.Users[0].ID != "u1" {
		t.Errorf("initial users = %+v", initial.Users)
	}
	if initial.Projects == nil || initial.ChatMessages == nil {
		t.Error("empty collections should arrive as [] and {}")
	}
}

func TestSync_TwoClientsOriginInclusion(t *testing.T) {
	app := newTestApp(t, &stubProvider{})
	srv := httptest.NewServer(app.engine)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	expectEvent(t, a, protocol.EventStateInitial)
	expectEvent(t, b, protocol.EventStateInitial)

	emit(t, a, &protocol.CreateProject{Project: models.Project{TeamID: "Alpha", Name: "X"}})

	created := expectEvent(t, a, protocol.EventProjectCreated).Payload.(models.Project)
	if !strings.HasPrefix(created.ID, "p_") {
		t.Errorf("project id = %q", created.ID)
	}
	if got := expectEvent(t, b, protocol.EventProjectCreated).Payload.(models.Project); got.ID != created.ID {
		t.Errorf("B got %q, A got %q", got.ID, created.ID)
	}

	created.Name = "X2"
	emit(t, a, &protocol.UpdateProject{Project: created})
	if got := expectEvent(t, b, protocol.EventProjectUpdated).Payload.(models.Project); got.Name != "X2" {
		t.Errorf("updated name = %q", got.Name)
	}

	// A is skipped for the update, so its next frame is the message echo.
	emit(t, a, &protocol.SendMessage{TeamID: "Alpha", Message: models.ChatMessage{Text: "hi"}})
	msg := expectEvent(t, a, protocol.EventMessageReceived).Payload.(protocol.MessageReceived)
	if msg.Message.ID == "" || msg.Message.Timestamp == "" {
		t.Errorf("message defaults not filled: %+v", msg.Message)
	}
	expectEvent(t, b, protocol.EventMessageReceived)

	reloaded, err := app.files.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Projects) != 1 || reloaded.Projects[0].Name != "X2" {
		t.Errorf("persisted projects = %+v", reloaded.Projects)
	}
}

func TestSync_JoinAndDisconnect(t *testing.T) {
	app := newTestApp(t, &stubProvider{})
	srv := httptest.NewServer(app.engine)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	expectEvent(t, a, protocol.EventStateInitial)
	expectEvent(t, b, protocol.EventStateInitial)

	emit(t, a, &protocol.Join{User: models.User{ID: "u1", Name: "Ada", Role: models.RoleStudent}})

	expectEvent(t, a, protocol.EventStateUsers)
	if joined := expectEvent(t, b, protocol.EventUserJoined).Payload.(models.User); joined.ID != "u1" {
		t.Errorf("joined = %+v", joined)
	}
	expectEvent(t, b, protocol.EventStateUsers)

	a.Close()

	if left := expectEvent(t, b, protocol.EventUserLeft).Payload.(models.User); left.ID != "u1" {
		t.Errorf("left = %+v", left)
	}
	if app.presence.Count() != 0 {
		t.Errorf("online = %d", app.presence.Count())
	}
}

func TestSync_MalformedFrameIgnored(t *testing.T) {
	app := newTestApp(t, &stubProvider{})
	srv := httptest.NewServer(app.engine)
	defer srv.Close()

	a := dial(t, srv)
	expectEvent(t, a, protocol.EventStateInitial)

	for _, frame := range []string{`not json`, `{"event":"bogus","data":{}}`, `{"event":"task:toggle","data":{}}`} {
		if err := a.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatal(err)
		}
	}

	// Connection still serves valid events.
	emit(t, a, &protocol.SendMessage{TeamID: "Alpha", Message: models.ChatMessage{Text: "still here"}})
	expectEvent(t, a, protocol.EventMessageReceived)
}

func TestAuthHandler_Login(t *testing.T) {
	app := newTestApp(t, &stubProvider{})

	w := app.do(t, "POST", "/api/auth/login", gin.H{"email": "ada@uni.edu", "name": "Ada", "role": "student"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp services.LoginResponse
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Token == "" || !resp.IsNew || !resp.NeedsTeam {
		t.Errorf("resp = %+v", resp)
	}

	tests := []struct {
		name string
		body gin.H
	}{
		{"missing email", gin.H{"role": "student"}},
		{"bad role", gin.H{"email": "x@uni.edu", "role": "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := app.do(t, "POST", "/api/auth/login", tt.body, ""); w.Code != http.StatusBadRequest {
				t.Errorf("status = %d", w.Code)
			}
		})
	}
}

func TestStateHandler(t *testing.T) {
	app := newTestApp(t, &stubProvider{})
	app.store.Mutate(func(snap *models.Snapshot) bool {
		snap.Users = append(snap.Users,
			models.User{ID: "u1", Name: "Ada", TeamID: "Alpha"},
			models.User{ID: "u2", Name: "Ben", TeamID: "Beta"},
		)
		return true
	})

	if w := app.do(t, "GET", "/api/state", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", w.Code)
	}

	w := app.do(t, "GET", "/api/teams/alpha/users", nil, testToken(t))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var users []models.User
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &users); err != nil {
		t.Fatal(err)
	}
	if len(users) != 1 || users[0].ID != "u1" {
		t.Errorf("users = %+v", users)
	}

	w = app.do(t, "GET", "/api/state", nil, testToken(t))
	var snap models.Snapshot
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Users) != 2 {
		t.Errorf("snapshot users = %d", len(snap.Users))
	}
}

func TestAssistantHandler(t *testing.T) {
	tests := []struct {
		name     string
		provider *stubProvider
		path     string
		body     gin.H
		status   int
		message  string
		text     string
	}{
		{
			name:     "summary empty history",
			provider: &stubProvider{},
			path:     "/api/assistant/summary",
			body:     gin.H{"teamId": "Alpha"},
			status:   http.StatusOK,
			text:     services.NoMessagesToSummarize,
		},
		{
			name:     "paper unknown project",
			provider: &stubProvider{text: "ok"},
			path:     "/api/assistant/paper",
			body:     gin.H{"projectId": "missing"},
			status:   http.StatusNotFound,
		},
		{
			name:     "meeting provider failure",
			provider: &stubProvider{err: errors.New("connection refused")},
			path:     "/api/assistant/meeting",
			body:     gin.H{"teamId": "Alpha", "query": "standup"},
			status:   http.StatusBadGateway,
			message:  "Failed to get meeting suggestions. Please check the API key and network connection.",
		},
		{
			name:     "missing field",
			provider: &stubProvider{},
			path:     "/api/assistant/meeting",
			body:     gin.H{"teamId": "Alpha"},
			status:   http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, tt.provider)
			w := app.do(t, "POST", tt.path, tt.body, testToken(t))
			if w.Code != tt.status {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}

			env := decodeEnvelope(t, w)
			if tt.message != "" && env.Message != tt.message {
				t.Errorf("message = %q", env.Message)
			}
			if tt.text != "" {
				var reply assistantReply
				if err := json.Unmarshal(env.Data, &reply); err != nil {
					t.Fatal(err)
				}
				if reply.Text != tt.text {
					t.Errorf("text = %q", reply.Text)
				}
			}
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t, &stubProvider{})
	app.store.Mutate(func(snap *models.Snapshot) bool {
		snap.Projects = append(snap.Projects, models.Project{ID: "p1", TeamID: "Alpha"})
		return true
	})

	w := app.do(t, "GET", "/health", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"persist_mode":"inline"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}

	w = app.do(t, "GET", "/metrics", nil, "")
	body := w.Body.String()
	for _, want := range []string{
		"teamsync_projects_total 1",
		"teamsync_channels_open 0",
		"teamsync_persist_async_enabled 0",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestSSEHandler_RequiresToken(t *testing.T) {
	app := newTestApp(t, &stubProvider{})

	if w := app.do(t, "GET", "/api/events", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
	if w := app.do(t, "GET", "/api/events?token=bogus", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}
