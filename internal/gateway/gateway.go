// Package gateway serves the websocket push connections for chat rooms and
// per-user notification streams.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/broadcast"
	"github.com/gigroom/gigroom/internal/chat"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Application close codes sent before the connection is dropped.
const (
	CloseUnauthenticated = 4401
	CloseForbidden       = 4403
	CloseNotFound        = 4404
)

const degradedDetail = "Realtime updates are unavailable."

// Opts holds parameters for creating a Gateway.
type Opts struct {
	Auth           *auth.Authenticator   // required
	Chat           *chat.Service         // required
	Broadcaster    broadcast.Broadcaster // nil means broadcast.Nop
	AllowedOrigins []string              // empty allows any origin
	Logger         *slog.Logger          // nil means slog.Default()
}

// Gateway upgrades HTTP requests to push connections.
type Gateway struct {
	auth     *auth.Authenticator
	chat     *chat.Service
	bc       broadcast.Broadcaster
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a Gateway.
func New(opts Opts) (*Gateway, error) {
	if opts.Auth == nil {
		return nil, fmt.Errorf("gateway: auth is required")
	}
	if opts.Chat == nil {
		return nil, fmt.Errorf("gateway: chat service is required")
	}
	g := &Gateway{
		auth: opts.Auth,
		chat: opts.Chat,
		bc:   opts.Broadcaster,
		log:  opts.Logger,
	}
	if g.bc == nil {
		g.bc = broadcast.Nop{}
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return g, nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin] || set["*"]
	}
}

// Register mounts the websocket routes on r.
func (g *Gateway) Register(r gin.IRouter) {
	r.GET("/ws/chat/:room_id", g.serveChat)
	r.GET("/ws/notifications", g.serveNotifications)
}

// frame is a client-to-server message on a chat connection.
type frame struct {
	Type          string `json:"type"`
	Text          string `json:"text"`
	MessageID     uint   `json:"message_id"`
	AttachmentIDs []uint `json:"attachment_ids"`
}

func (g *Gateway) serveChat(c *gin.Context) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Debug("gateway: upgrade failed", "error", err)
		return
	}
	ctx := c.Request.Context()

	actor, err := g.auth.Authenticate(ctx, auth.TokenFromRequest(c.Request))
	if err != nil {
		closeWith(ws, CloseUnauthenticated, "unauthenticated")
		return
	}
	roomID, err := strconv.ParseUint(c.Param("room_id"), 10, 64)
	if err != nil {
		closeWith(ws, CloseNotFound, "room not found")
		return
	}
	if _, err := g.chat.Room(ctx, actor, uint(roomID)); err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound:
			closeWith(ws, CloseNotFound, "room not found")
		case apperr.KindForbidden:
			closeWith(ws, CloseForbidden, "not a participant")
		default:
			g.log.Error("gateway: load room", "room_id", roomID, "error", err)
			closeWith(ws, websocket.CloseInternalServerErr, "internal error")
		}
		return
	}

	conn := newConn(ws, g.log)
	group := broadcast.RoomGroup(uint(roomID))
	g.attach(conn, group)
	defer g.detach(conn, group)

	go conn.writePump()
	conn.readPump(func(data []byte) {
		g.handleFrame(ctx, conn, actor, uint(roomID), data)
	})
}

func (g *Gateway) serveNotifications(c *gin.Context) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Debug("gateway: upgrade failed", "error", err)
		return
	}
	actor, err := g.auth.Authenticate(c.Request.Context(), auth.TokenFromRequest(c.Request))
	if err != nil {
		closeWith(ws, CloseUnauthenticated, "unauthenticated")
		return
	}

	conn := newConn(ws, g.log)
	group := broadcast.UserGroup(actor.ID)
	g.attach(conn, group)
	defer g.detach(conn, group)

	go conn.writePump()
	// Inbound frames are ignored; reading keeps the pong deadline alive.
	conn.readPump(func([]byte) {})
}

// attach joins group. A failed join leaves the connection open with a
// warning so the client can fall back to polling.
func (g *Gateway) attach(conn *conn, group string) {
	if err := g.bc.Join(group, conn); err != nil {
		g.log.Warn("gateway: join failed", "group", group, "error", err)
		conn.Deliver(broadcast.Warning(degradedDetail))
	}
}

func (g *Gateway) detach(conn *conn, group string) {
	g.bc.Leave(group, conn)
	conn.shutdown()
}

func (g *Gateway) handleFrame(ctx context.Context, conn *conn, actor *auth.Principal, roomID uint, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		conn.Deliver(broadcast.Warning("Malformed frame."))
		return
	}

	var err error
	switch f.Type {
	case "send_message":
		var res *chat.PostResult
		res, err = g.chat.PostMessage(ctx, actor, roomID, chat.PostMessageInput{
			Text:          f.Text,
			AttachmentIDs: f.AttachmentIDs,
		})
		if err == nil && !res.Realtime {
			conn.Deliver(broadcast.Envelope{
				Type:    broadcast.EventMessage,
				Payload: map[string]any{"message": res.Message},
			})
			conn.Deliver(broadcast.Warning(degradedDetail))
		}
	case "typing":
		_, err = g.chat.Typing(ctx, actor, roomID)
	case "read_receipt":
		_, err = g.chat.MarkRead(ctx, actor, roomID, f.MessageID)
	case "read_up_to":
		_, err = g.chat.MarkReadUpTo(ctx, actor, roomID, f.MessageID)
	default:
		conn.Deliver(broadcast.Warning(fmt.Sprintf("Unknown frame type %q.", f.Type)))
		return
	}
	if err != nil {
		conn.Deliver(broadcast.Warning(frameError(err)))
		if _, ok := apperr.As(err); !ok {
			g.log.Error("gateway: frame failed", "type", f.Type, "room_id", roomID, "error", err)
		}
	}
}

func frameError(err error) string {
	if ae, ok := apperr.As(err); ok {
		return ae.Detail
	}
	return "Internal error."
}
