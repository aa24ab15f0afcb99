package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/broadcast"
	"github.com/gigroom/gigroom/internal/chat"
	"github.com/gigroom/gigroom/internal/db"
	"github.com/gigroom/gigroom/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	db    *gorm.DB
	srv   *httptest.Server
	hub   *broadcast.Hub
	svc   *chat.Service
	auth  *auth.Authenticator
	org   *auth.Principal
	vend  *auth.Principal
	other *auth.Principal
	room  *models.Room
}

func newTestEnv(t *testing.T, bc broadcast.Broadcaster) *testEnv {
	t.Helper()
	gdb, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	e := &testEnv{db: gdb, auth: auth.New(gdb, "test-secret")}
	if bc == nil {
		e.hub = broadcast.NewHub(nil)
		bc = e.hub
	}
	var ps []*auth.Principal
	for _, u := range []models.User{
		{Username: "ana", Role: models.RoleOrganizer},
		{Username: "vic", Role: models.RoleVendor},
		{Username: "oz", Role: models.RoleOrganizer},
	} {
		u := u
		if err := gdb.Create(&u).Error; err != nil {
			t.Fatalf("seed user: %v", err)
		}
		ps = append(ps, &auth.Principal{ID: u.ID, Username: u.Username, Role: u.Role})
	}
	e.org, e.vend, e.other = ps[0], ps[1], ps[2]

	e.svc, err = chat.New(chat.Opts{DB: gdb, Broadcaster: bc})
	if err != nil {
		t.Fatalf("chat.New: %v", err)
	}
	e.room, _, err = e.svc.GetOrCreateRoom(context.Background(), e.org, e.org.ID, e.vend.ID)
	if err != nil {
		t.Fatalf("GetOrCreateRoom: %v", err)
	}

	g, err := New(Opts{Auth: e.auth, Chat: e.svc, Broadcaster: bc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	router := gin.New()
	g.Register(router)
	e.srv = httptest.NewServer(router)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *testEnv) token(t *testing.T, p *auth.Principal) string {
	t.Helper()
	tok, err := e.auth.Issue(p.ID, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (e *testEnv) dial(t *testing.T, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	if token != "" {
		url += "?token=" + token
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (e *testEnv) chatPath() string {
	return fmt.Sprintf("/ws/chat/%d", e.room.ID)
}

// waitForSubscribers blocks until group has n subscribers on the hub.
func (e *testEnv) waitForSubscribers(t *testing.T, group string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Size(group) != n {
		if time.Now().After(deadline) {
			t.Fatalf("group %s has %d subscribers, want %d", group, e.hub.Size(group), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type wireEnvelope struct {
	Type    broadcast.EventType `json:"type"`
	Payload json.RawMessage     `json:"payload"`
}

func readEnvelope(t *testing.T, ws *websocket.Conn) wireEnvelope {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env wireEnvelope
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

// readUntil skips envelopes until one of type want arrives.
func readUntil(t *testing.T, ws *websocket.Conn, want broadcast.EventType) wireEnvelope {
	t.Helper()
	for i := 0; i < 10; i++ {
		env := readEnvelope(t, ws)
		if env.Type == want {
			return env
		}
	}
	t.Fatalf("no %s envelope received", want)
	return wireEnvelope{}
}

func warningDetail(t *testing.T, env wireEnvelope) string {
	t.Helper()
	if env.Type != broadcast.EventWarning {
		t.Fatalf("envelope type = %s, want warning", env.Type)
	}
	var p struct {
		Detail string `json:"detail"`
	}
	json.Unmarshal(env.Payload, &p)
	return p.Detail
}

func expectClose(t *testing.T, ws *websocket.Conn, code int) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("read err = %v, want close error", err)
	}
	if ce.Code != code {
		t.Errorf("close code = %d, want %d", ce.Code, code)
	}
}

func TestNew_Requires(t *testing.T) {
	if _, err := New(Opts{}); err == nil || !strings.Contains(err.Error(), "auth is required") {
		t.Errorf("err = %v", err)
	}
	if _, err := New(Opts{Auth: &auth.Authenticator{}}); err == nil || !strings.Contains(err.Error(), "chat service is required") {
		t.Errorf("err = %v", err)
	}
}

func TestServeChat_CloseCodes(t *testing.T) {
	e := newTestEnv(t, nil)

	tests := []struct {
		name  string
		path  string
		token string
		code  int
	}{
		{"no token", e.chatPath(), "", CloseUnauthenticated},
		{"bad token", e.chatPath(), "garbage", CloseUnauthenticated},
		{"non participant", e.chatPath(), e.token(t, e.other), CloseForbidden},
		{"unknown room", "/ws/chat/999", e.token(t, e.org), CloseNotFound},
		{"malformed room", "/ws/chat/abc", e.token(t, e.org), CloseNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := e.dial(t, tt.path, tt.token)
			expectClose(t, ws, tt.code)
		})
	}
}

func TestServeChat_SendMessageFansOut(t *testing.T) {
	e := newTestEnv(t, nil)
	org := e.dial(t, e.chatPath(), e.token(t, e.org))
	vend := e.dial(t, e.chatPath(), e.token(t, e.vend))
	e.waitForSubscribers(t, broadcast.RoomGroup(e.room.ID), 2)

	if err := org.WriteJSON(map[string]any{"type": "send_message", "text": "hello there"}); err != nil {
		t.Fatal(err)
	}

	for name, ws := range map[string]*websocket.Conn{"organizer": org, "vendor": vend} {
		env := readEnvelope(t, ws)
		if env.Type != broadcast.EventMessage {
			t.Fatalf("%s got %s, want message", name, env.Type)
		}
		var p struct {
			Message struct {
				Text           string `json:"text"`
				SenderUsername string `json:"sender_username"`
			} `json:"message"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatal(err)
		}
		if p.Message.Text != "hello there" || p.Message.SenderUsername != "ana" {
			t.Errorf("%s payload = %s", name, env.Payload)
		}
	}

	var n int64
	e.db.Model(&models.Message{}).Count(&n)
	if n != 1 {
		t.Errorf("stored messages = %d, want 1", n)
	}
}

func TestServeChat_TypingAndReadReceipt(t *testing.T) {
	e := newTestEnv(t, nil)
	org := e.dial(t, e.chatPath(), e.token(t, e.org))
	vend := e.dial(t, e.chatPath(), e.token(t, e.vend))
	e.waitForSubscribers(t, broadcast.RoomGroup(e.room.ID), 2)

	vend.WriteJSON(map[string]any{"type": "typing"})
	env := readUntil(t, org, broadcast.EventTyping)
	if !strings.Contains(string(env.Payload), `"user":"vic"`) {
		t.Errorf("typing payload = %s", env.Payload)
	}

	res, err := e.svc.PostMessage(context.Background(), e.org, e.room.ID, chat.PostMessageInput{Text: "read me"})
	if err != nil {
		t.Fatal(err)
	}
	vend.WriteJSON(map[string]any{"type": "read_receipt", "message_id": res.Message.ID})
	env = readUntil(t, org, broadcast.EventReadReceipt)
	if !strings.Contains(string(env.Payload), fmt.Sprintf(`"message_id":%d`, res.Message.ID)) {
		t.Errorf("read_receipt payload = %s", env.Payload)
	}

	var stored models.Message
	e.db.First(&stored, res.Message.ID)
	if stored.ReadAt == nil {
		t.Error("message should be marked read")
	}
}

func TestServeChat_ReadUpTo(t *testing.T) {
	e := newTestEnv(t, nil)
	vend := e.dial(t, e.chatPath(), e.token(t, e.vend))
	e.waitForSubscribers(t, broadcast.RoomGroup(e.room.ID), 1)

	var last uint
	for _, text := range []string{"a", "b"} {
		res, err := e.svc.PostMessage(context.Background(), e.org, e.room.ID, chat.PostMessageInput{Text: text})
		if err != nil {
			t.Fatal(err)
		}
		last = res.Message.ID
	}
	vend.WriteJSON(map[string]any{"type": "read_up_to", "message_id": last})
	env := readUntil(t, vend, broadcast.EventReadReceipt)
	if !strings.Contains(string(env.Payload), `"count":2`) {
		t.Errorf("payload = %s", env.Payload)
	}
}

func TestServeChat_FrameErrorsBecomeWarnings(t *testing.T) {
	e := newTestEnv(t, nil)
	ws := e.dial(t, e.chatPath(), e.token(t, e.org))
	e.waitForSubscribers(t, broadcast.RoomGroup(e.room.ID), 1)

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"malformed", "{nope", "Malformed frame."},
		{"unknown type", `{"type":"dance"}`, `Unknown frame type "dance".`},
		{"empty message", `{"type":"send_message","text":"  "}`, "Message must include text, an attachment, or a bid."},
		{"missing message", `{"type":"read_receipt","message_id":999}`, "Message not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(tt.frame)); err != nil {
				t.Fatal(err)
			}
			if got := warningDetail(t, readEnvelope(t, ws)); got != tt.want {
				t.Errorf("warning = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServeChat_DegradedMediumKeepsConnection(t *testing.T) {
	e := newTestEnv(t, broadcast.Nop{})
	ws := e.dial(t, e.chatPath(), e.token(t, e.org))

	if got := warningDetail(t, readEnvelope(t, ws)); got != degradedDetail {
		t.Errorf("join warning = %q", got)
	}

	ws.WriteJSON(map[string]any{"type": "send_message", "text": "anyone?"})
	env := readEnvelope(t, ws)
	if env.Type != broadcast.EventMessage || !strings.Contains(string(env.Payload), "anyone?") {
		t.Errorf("echo = %s %s", env.Type, env.Payload)
	}
	if got := warningDetail(t, readEnvelope(t, ws)); got != degradedDetail {
		t.Errorf("send warning = %q", got)
	}

	var n int64
	e.db.Model(&models.Message{}).Count(&n)
	if n != 1 {
		t.Errorf("stored messages = %d, want 1", n)
	}
}

func TestServeChat_LeavesOnClose(t *testing.T) {
	e := newTestEnv(t, nil)
	group := broadcast.RoomGroup(e.room.ID)
	ws := e.dial(t, e.chatPath(), e.token(t, e.org))
	e.waitForSubscribers(t, group, 1)

	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()
	e.waitForSubscribers(t, group, 0)
}

func TestServeNotifications(t *testing.T) {
	e := newTestEnv(t, nil)

	expectClose(t, e.dial(t, "/ws/notifications", ""), CloseUnauthenticated)

	ws := e.dial(t, "/ws/notifications", e.token(t, e.vend))
	group := broadcast.UserGroup(e.vend.ID)
	e.waitForSubscribers(t, group, 1)

	e.hub.Send(context.Background(), group, broadcast.Envelope{
		Type:    broadcast.EventNotification,
		Payload: map[string]any{"notification": map[string]any{"title": "New bid"}},
	})
	env := readEnvelope(t, ws)
	if env.Type != broadcast.EventNotification || !strings.Contains(string(env.Payload), "New bid") {
		t.Errorf("envelope = %s %s", env.Type, env.Payload)
	}
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws/notifications", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	open := originChecker(nil)
	if !open(req("https://evil.example")) {
		t.Error("empty allow list should accept any origin")
	}

	check := originChecker([]string{"https://app.example.com"})
	if !check(req("https://app.example.com")) {
		t.Error("listed origin rejected")
	}
	if check(req("https://evil.example")) {
		t.Error("unlisted origin accepted")
	}
	if !check(req("")) {
		t.Error("missing origin should be accepted for non-browser clients")
	}
}
