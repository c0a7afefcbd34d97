package handlers

import (
	"context"
	"net/http"
	"slices"
	"time"

	"smarthome/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB
)

const wsTypeHello = "hello"

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type wsHello struct {
	UserID  int64   `json:"user_id"`
	HomeIDs []int64 `json:"home_ids"`
}

// Upgrader for HTTP -> WebSocket.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins once the web client has a fixed host
}

// @Summary      Live appliance stream
// @Description  Upgrades to a WebSocket. Sends a hello frame, then every committed state change and telemetry reading for the appliances the caller can view. Browsers pass the JWT as ?token=.
// @Tags         stream
// @Param        token  query  string  false  "JWT when the Authorization header cannot be set"
// @Success      101
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live stream disabled"})
		return
	}

	token := c.Query("token")
	if token == "" {
		var ok bool
		if token, ok = bearerToken(c); !ok {
			return
		}
	}
	userID, err := h.services.ParseToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	ctx := c.Request.Context()
	scope, err := h.loadScope(ctx, userID)
	if err != nil {
		h.respondError(c, err, "ws_scope_lookup_failed", "user_id", userID)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	sub := h.hub.Subscribe(h.streamBuffer)
	defer func() {
		h.hub.Unsubscribe(sub)
		if h.log != nil && sub.Dropped() > 0 {
			h.log.Warnw("ws_messages_dropped", "user_id", userID, "dropped", sub.Dropped())
		}
	}()

	// Configure read limits and pong handler to extend read deadline.
	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine to handle control frames and detect disconnects.
	done := make(chan struct{})
	go h.startReader(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := writeEnvelope(conn, wsEnvelope{Type: wsTypeHello, Data: wsHello{UserID: userID, HomeIDs: scope.homes.ids()}}); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
			// Pick up membership and grant changes made while connected.
			if fresh, err := h.loadScope(ctx, userID); err == nil {
				scope = fresh
			}
		case msg, ok := <-sub.C():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if !scope.allows(msg) {
				continue
			}
			if err := writeEnvelope(conn, wsEnvelope{Type: msg.Kind, Data: msg}); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

type idSet map[int64]struct{}

func (s idSet) has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) ids() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// streamScope is what one subscriber may see: members without a grant on an
// appliance get nothing about it, even inside their own home.
type streamScope struct {
	homes      idSet
	appliances idSet
}

func (s streamScope) allows(msg models.StreamMessage) bool {
	return s.homes.has(msg.HomeID) && s.appliances.has(msg.ApplianceID())
}

func (h *Handler) loadScope(ctx context.Context, userID int64) (streamScope, error) {
	homes, err := h.services.Homes.ListHomes(ctx, userID)
	if err != nil {
		return streamScope{}, err
	}
	visible, err := h.services.Appliances.Visible(ctx, userID)
	if err != nil {
		return streamScope{}, err
	}
	scope := streamScope{homes: make(idSet, len(homes)), appliances: make(idSet, len(visible))}
	for _, home := range homes {
		scope.homes[home.ID] = struct{}{}
	}
	for _, id := range visible {
		scope.appliances[id] = struct{}{}
	}
	return scope, nil
}

// startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

func writeEnvelope(conn *websocket.Conn, env wsEnvelope) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}
