package ws

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/C4boose/hfconvo/internal/auth"
	"github.com/C4boose/hfconvo/internal/bus"
	"github.com/C4boose/hfconvo/internal/config"
	"github.com/C4boose/hfconvo/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// Client 一条 WebSocket 连接。sessionID 区分同一用户名的并发会话。
type Client struct {
	hub       *Hub
	svc       *bus.Service
	conn      *websocket.Conn
	send      chan []byte
	username  string
	avatarURL string
	sessionID string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type inboundFrame struct {
	Type    string `json:"type"` // message / typing / heartbeat
	Content string `json:"content"`
}

type errorFrame struct {
	Type      string     `json:"type"`
	Code      string     `json:"code"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "fallback"
	}
	return hex.EncodeToString(b)
}

// Serve 升级 WebSocket 连接。被封禁或踢出的用户在握手阶段就被拒绝。
func Serve(h *Hub, svc *bus.Service, db *gorm.DB, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		token := c.Query("token")
		if token == "" && len(authz) > 7 && (authz[:7] == "Bearer " || authz[:7] == "bearer ") {
			token = authz[7:]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseAccessToken(token, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		st := svc.Status(user.Username)
		if st.Banned || st.Kicked {
			rec := st.ActiveBan
			if rec == nil {
				rec = st.ActiveKick
			}
			body := gin.H{"error": "banned"}
			if rec != nil {
				body["reason"] = rec.Reason
				body["expires_at"] = rec.ExpiresAt
			}
			c.JSON(http.StatusForbidden, body)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := &Client{
			hub:       h,
			svc:       svc,
			conn:      conn,
			send:      make(chan []byte, 256),
			username:  user.Username,
			avatarURL: user.AvatarURL,
			sessionID: newSessionID(),
		}
		h.register <- client
		if err := svc.Heartbeat(client.username, client.sessionID); err != nil {
			h.unregister <- client
			_ = conn.Close()
			return
		}

		go client.writePump(time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond)
		client.readPump()
	}
}

func (c *Client) sendError(err error) {
	frame := errorFrame{Type: "error", Code: err.Error()}
	if errors.Is(err, bus.ErrMuted) {
		if st := c.svc.Status(c.username); st.ActiveMute != nil {
			frame.Reason = st.ActiveMute.Reason
			frame.ExpiresAt = st.ActiveMute.ExpiresAt
		}
	}
	if errors.Is(err, bus.ErrBanned) {
		if st := c.svc.Status(c.username); st.ActiveBan != nil {
			frame.Reason = st.ActiveBan.Reason
			frame.ExpiresAt = st.ActiveBan.ExpiresAt
		}
	}
	if b, merr := json.Marshal(frame); merr == nil {
		select {
		case c.send <- b:
		default:
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.svc.Disconnect(c.username, c.sessionID)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 16)
	c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		// pong 兼做心跳，封禁期间的心跳被拒绝则直接断开。
		return c.svc.Heartbeat(c.username, c.sessionID)
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		switch in.Type {
		case "typing":
			if _, err := c.svc.Typing(c.username); err != nil {
				c.sendError(err)
				if errors.Is(err, bus.ErrBanned) {
					return
				}
			}
		case "heartbeat":
			if err := c.svc.Heartbeat(c.username, c.sessionID); err != nil {
				c.sendError(err)
				return
			}
		case "message":
			if in.Content == "" {
				continue
			}
			if _, err := c.svc.SendMessage(c.username, c.avatarURL, in.Content); err != nil {
				c.sendError(err)
				if errors.Is(err, bus.ErrBanned) {
					return
				}
			}
		}
	}
}

func (c *Client) writePump(heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
