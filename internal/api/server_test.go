package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dkmorland/homeview-core/internal/auth"
	"github.com/dkmorland/homeview-core/internal/dashboard"
	"github.com/dkmorland/homeview-core/internal/infrastructure/config"
	"github.com/dkmorland/homeview-core/internal/infrastructure/logging"
	"github.com/dkmorland/homeview-core/internal/settings"
)

const (
	testAdminPassword = "admin-password"
	testUserPassword  = "user-password"
)

// stubTransport is an in-memory dashboard.Transport that records publishes
// and subscriptions. inject() delivers a message to the catch-all handler
// the way the MQTT client would.
type stubTransport struct {
	mu        sync.Mutex
	published []stubPublish
	handlers  map[string]func(topic string, payload []byte) error
	connected bool
}

type stubPublish struct {
	topic   string
	payload []byte
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		handlers:  make(map[string]func(string, []byte) error),
		connected: true,
	}
}

func (t *stubTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.published = append(t.published, stubPublish{topic: topic, payload: payload})
	return nil
}

func (t *stubTransport) Subscribe(topic string, _ byte, handler func(string, []byte) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[topic] = handler
	return nil
}

func (t *stubTransport) Unsubscribe(topic string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, topic)
	return nil
}

func (t *stubTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// inject delivers a message through the catch-all subscription, the same
// path a broker message takes.
func (t *stubTransport) inject(topic string, payload []byte) {
	t.mu.Lock()
	handler := t.handlers["#"]
	t.mu.Unlock()
	if handler != nil {
		//nolint:errcheck // dispatch logs per-engine failures itself
		handler(topic, payload)
	}
}

func (t *stubTransport) publishes() []stubPublish {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]stubPublish, len(t.published))
	copy(out, t.published)
	return out
}

func (t *stubTransport) subscribed(topic string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.handlers[topic]
	return ok
}

// setupTestDB creates a temp-file SQLite database with the full schema.
// A temp file is used so WAL mode works (in-memory doesn't support it).
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE dashboard_config (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL UNIQUE,
			config_data TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
		);

		CREATE TABLE user_settings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			setting_key TEXT NOT NULL,
			setting_value TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (user_id, setting_key),
			FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
		);

		CREATE TABLE admin_settings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			setting_key TEXT UNIQUE NOT NULL,
			setting_value TEXT,
			setting_type TEXT NOT NULL DEFAULT 'string',
			description TEXT,
			updated_by TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE mqtt_config (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL DEFAULT 1883,
			username TEXT,
			password TEXT,
			use_ssl INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}

	return db
}

// testEnv bundles a fully wired server with its collaborators.
type testEnv struct {
	srv       *Server
	router    http.Handler
	transport *stubTransport
	db        *sql.DB
	admin     *auth.User
	user      *auth.User
	adminTok  string
	userTok   string
}

// testServer wires a Server over a real SQLite database and a stub MQTT
// transport, with one admin and one regular user seeded and logged in.
func testServer(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	users := auth.NewUserRepository(db)
	settingsRepo := settings.NewSQLiteRepository(db)
	if err := settingsRepo.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	timeouts := settings.NewTimeoutCache(settingsRepo, log)

	transport := newStubTransport()
	manager := dashboard.NewManager(transport, dashboard.NewConfigRepository(db), timeouts, nil)
	if err := manager.Start(); err != nil {
		t.Fatalf("manager.Start: %v", err)
	}
	t.Cleanup(manager.Shutdown)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         "test-secret-key-at-least-32-characters-long",
				AccessTokenTTL: 15,
			},
		},
		Logger:     log,
		Users:      users,
		Settings:   settingsRepo,
		UserPrefs:  settings.NewUserSettingsRepository(db),
		Timeouts:   timeouts,
		Brokers:    settings.NewBrokerRepository(db),
		Dashboards: manager,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Handlers other than the websocket don't need a running hub, but the
	// router is shared; give it one.
	srv.hub = NewHub(log)
	hubCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(hubCtx)

	env := &testEnv{
		srv:       srv,
		router:    srv.buildRouter(),
		transport: transport,
		db:        db,
		admin:     seedUser(t, users, "admin", testAdminPassword, auth.RoleAdmin),
		user:      seedUser(t, users, "dana", testUserPassword, auth.RoleUser),
	}
	env.adminTok = loginAs(t, env.router, "admin", testAdminPassword)
	env.userTok = loginAs(t, env.router, "dana", testUserPassword)
	return env
}

func seedUser(t *testing.T, repo auth.UserRepository, username, password string, role auth.Role) *auth.User {
	t.Helper()

	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := &auth.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating user %s: %v", username, err)
	}
	return user
}

// loginAs logs in through the API and returns the access token.
func loginAs(t *testing.T, router http.Handler, username, password string) string {
	t.Helper()

	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("login as %s: status = %d, body: %s", username, w.Code, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	return resp.AccessToken
}

// doJSON runs an authenticated request against the router.
func (e *testEnv) doJSON(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestHealth_ContentType(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodGet, "/api/v1/health", "", "")
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodGet, "/api/v1/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := testServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestNotFound(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodGet, "/api/v1/nonexistent", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func TestLogin_Success(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodPost, "/api/v1/auth/login", "",
		fmt.Sprintf(`{"username":"dana","password":%q}`, testUserPassword))
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("expected access_token to be non-empty")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", resp.TokenType)
	}
	if resp.User == nil || resp.User.Username != "dana" {
		t.Errorf("user = %+v, want dana", resp.User)
	}
	if strings.Contains(w.Body.String(), "password_hash") {
		t.Error("response must not expose the password hash")
	}
}

func TestLogin_SameResponseForUnknownUserAndWrongPassword(t *testing.T) {
	env := testServer(t)

	wrong := env.doJSON(http.MethodPost, "/api/v1/auth/login", "",
		`{"username":"dana","password":"not-the-password"}`)
	unknown := env.doJSON(http.MethodPost, "/api/v1/auth/login", "",
		`{"username":"nobody","password":"whatever"}`)

	if wrong.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want %d", wrong.Code, http.StatusUnauthorized)
	}
	if unknown.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status = %d, want %d", unknown.Code, http.StatusUnauthorized)
	}
	if wrong.Body.String() != unknown.Body.String() {
		t.Error("failed logins must not reveal whether the account exists")
	}
}

func TestLogin_MissingFields(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodPost, "/api/v1/auth/login", "", `{"username":"dana"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodGet, "/api/v1/devices", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodGet, "/api/v1/devices", "not-a-jwt", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRequireAdmin_ForbiddenForUser(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodGet, "/api/v1/admin/settings", env.userTok, "")
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestMe(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodGet, "/api/v1/auth/me", env.userTok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var user auth.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if user.ID != env.user.ID {
		t.Errorf("id = %q, want %q", user.ID, env.user.ID)
	}
}

func TestMe_DeletedAccount(t *testing.T) {
	env := testServer(t)

	// Delete the account out from under a still-valid token.
	w := env.doJSON(http.MethodDelete, "/api/v1/admin/users/"+env.user.ID, env.adminTok, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, body: %s", w.Code, w.Body.String())
	}

	w = env.doJSON(http.MethodGet, "/api/v1/auth/me", env.userTok, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestChangePassword(t *testing.T) {
	env := testServer(t)

	t.Run("wrong current password", func(t *testing.T) {
		w := env.doJSON(http.MethodPost, "/api/v1/auth/password", env.userTok,
			`{"current_password":"wrong","new_password":"another-password"}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("too short", func(t *testing.T) {
		w := env.doJSON(http.MethodPost, "/api/v1/auth/password", env.userTok,
			fmt.Sprintf(`{"current_password":%q,"new_password":"short"}`, testUserPassword))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("success", func(t *testing.T) {
		w := env.doJSON(http.MethodPost, "/api/v1/auth/password", env.userTok,
			fmt.Sprintf(`{"current_password":%q,"new_password":"fresh-password"}`, testUserPassword))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
		}

		// Old password no longer works, new one does.
		old := env.doJSON(http.MethodPost, "/api/v1/auth/login", "",
			fmt.Sprintf(`{"username":"dana","password":%q}`, testUserPassword))
		if old.Code != http.StatusUnauthorized {
			t.Errorf("old password login status = %d, want %d", old.Code, http.StatusUnauthorized)
		}
		loginAs(t, env.router, "dana", "fresh-password")
	})
}

// ─── WebSocket Ticket Tests ────────────────────────────────────────

func TestWSTicket_SingleUse(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodPost, "/api/v1/auth/ws-ticket", env.userTok, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	ticket, ok := resp["ticket"].(string)
	if !ok || ticket == "" {
		t.Fatal("expected ticket to be a non-empty string")
	}

	entry, ok := env.srv.tickets.consume(ticket)
	if !ok {
		t.Fatal("ticket should be valid on first use")
	}
	if entry.userID != env.user.ID {
		t.Errorf("ticket user = %q, want %q", entry.userID, env.user.ID)
	}

	if _, ok := env.srv.tickets.consume(ticket); ok {
		t.Error("ticket should not be valid on second use")
	}
}

func TestWSTicket_Expiry(t *testing.T) {
	env := testServer(t)

	ticket := generateTicket()
	env.srv.tickets.mu.Lock()
	env.srv.tickets.tickets[ticket] = ticketEntry{
		userID:    env.user.ID,
		expiresAt: time.Now().Add(-1 * time.Second),
	}
	env.srv.tickets.mu.Unlock()

	if _, ok := env.srv.tickets.consume(ticket); ok {
		t.Error("expired ticket should not be valid")
	}
}

func TestWSTicket_RequiresAuth(t *testing.T) {
	env := testServer(t)

	w := env.doJSON(http.MethodPost, "/api/v1/auth/ws-ticket", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// ─── WebSocket Integration Tests ───────────────────────────────────

// startListening boots the real HTTP listener on the given port.
func startListening(t *testing.T, env *testEnv, port int) string {
	t.Helper()

	env.srv.cfg.Port = port
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := env.srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { env.srv.Close() })

	// Wait for the listener to come up.
	time.Sleep(100 * time.Millisecond)
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func wsTicketOverHTTP(t *testing.T, addr, token string) string {
	t.Helper()

	req, _ := http.NewRequest(http.MethodPost, "http://"+addr+"/api/v1/auth/ws-ticket", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("ws-ticket request failed: %v", err)
	}
	defer resp.Body.Close()

	var result struct {
		Ticket string `json:"ticket"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode ticket response: %v", err)
	}
	return result.Ticket
}

func TestWebSocket_StreamsDeviceEvents(t *testing.T) {
	env := testServer(t)
	addr := startListening(t, env, 19090)

	ticket := wsTicketOverHTTP(t, addr, env.userTok)
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws?ticket="+ticket, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	if env.srv.hub.ClientCount() != 1 {
		t.Errorf("hub client count = %d, want 1", env.srv.hub.ClientCount())
	}

	// Adding a device through the API must show up on the stream.
	w := env.doJSON(http.MethodPost, "/api/v1/devices", env.userTok,
		`{"name":"Hall Sensor","type":"motion_sensor","topic":"home/hall/motion"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create device status = %d, body: %s", w.Code, w.Body.String())
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if msg.Type != WSTypeEvent {
		t.Errorf("message type = %q, want %q", msg.Type, WSTypeEvent)
	}
	if msg.EventType != string(dashboard.EventDeviceAdded) {
		t.Errorf("event_type = %q, want %q", msg.EventType, dashboard.EventDeviceAdded)
	}
}

func TestWebSocket_PingPong(t *testing.T) {
	env := testServer(t)
	addr := startListening(t, env, 19091)

	ticket := wsTicketOverHTTP(t, addr, env.userTok)
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws?ticket="+ticket, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "ping-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong {
		t.Errorf("response type = %q, want %q", resp.Type, WSTypePong)
	}
	if resp.ID != "ping-1" {
		t.Errorf("response ID = %q, want ping-1", resp.ID)
	}
}

func TestWebSocket_UnknownMessageType(t *testing.T) {
	env := testServer(t)
	addr := startListening(t, env, 19092)

	ticket := wsTicketOverHTTP(t, addr, env.userTok)
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws?ticket="+ticket, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()

	if err := ws.WriteJSON(WSMessage{Type: "subscribe", ID: "sub-1"}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read error response: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("response type = %q, want %q", resp.Type, WSTypeError)
	}
}

func TestWebSocket_NoTicket(t *testing.T) {
	env := testServer(t)
	addr := startListening(t, env, 19093)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws", nil)
	if err == nil {
		t.Fatal("expected error connecting without ticket")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestWebSocket_InvalidTicket(t *testing.T) {
	env := testServer(t)
	addr := startListening(t, env, 19094)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws?ticket=invalid", nil)
	if err == nil {
		t.Fatal("expected error connecting with invalid ticket")
	}
	if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestServer_StartAndClose(t *testing.T) {
	env := testServer(t)

	env.srv.cfg.Port = 19095
	ctx, cancel := context.WithCancel(context.Background())
	if err := env.srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	addr := "127.0.0.1:19095"
	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health check status = %d, want 200", resp.StatusCode)
	}

	cancel()
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}
