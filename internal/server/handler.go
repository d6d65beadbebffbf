package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/C4boose/hfconvo/internal/auth"
	"github.com/C4boose/hfconvo/internal/bus"
	"github.com/C4boose/hfconvo/internal/config"
	"github.com/C4boose/hfconvo/internal/moderation"
	"github.com/C4boose/hfconvo/internal/role"
	"github.com/C4boose/hfconvo/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合全部 HTTP handler，依赖注入用户服务与协调器。
type Handler struct {
	cfg     config.Config
	userSvc *service.UserService
	svc     *bus.Service
}

func NewHandler(cfg config.Config, userSvc *service.UserService, svc *bus.Service) *Handler {
	return &Handler{cfg: cfg, userSvc: userSvc, svc: svc}
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if len(req.Username) < 2 || len(req.Username) > 64 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid username"})
		return
	}
	if len(req.Password) < 4 || len(req.Password) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password"})
		return
	}
	result, err := h.userSvc.Register(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "username taken"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("register")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Login 处理用户登录请求。被永久或临时封禁的用户仍然可以登录，
// 但发送路径会被拒绝，前端据此展示封禁原因并强制登出。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		log.Error().Err(err).Str("username", req.Username).Msg("login")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user": gin.H{
			"id":         result.User.ID,
			"username":   result.User.Username,
			"avatar_url": result.User.AvatarURL,
			"role":       result.User.Role,
		},
	})
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": result.AccessToken, "refresh_token": result.RefreshToken})
}

// Online 返回当前在线用户名集合。
func (h *Handler) Online(c *gin.Context) {
	users := h.svc.Online()
	c.JSON(http.StatusOK, gin.H{"online": users, "count": len(users)})
}

// Heartbeat 处理轮询客户端的显式心跳。
func (h *Handler) Heartbeat(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user := auth.GetUser(c)
	if err := h.svc.Heartbeat(user.Username, req.SessionID); err != nil {
		h.writeSendError(c, user.Username, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListMessages 返回当前留存窗口内的消息日志。
func (h *Handler) ListMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.svc.Messages()})
}

// SendMessage 处理消息发送，被管制或超长的消息同步拒绝。
func (h *Handler) SendMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	user := auth.GetUser(c)
	msg, err := h.svc.SendMessage(user.Username, user.AvatarURL, req.Content)
	if err != nil {
		h.writeSendError(c, user.Username, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// Typing 处理打字信号，节流丢弃不算错误。
func (h *Handler) Typing(c *gin.Context) {
	user := auth.GetUser(c)
	delivered, err := h.svc.Typing(user.Username)
	if err != nil {
		h.writeSendError(c, user.Username, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delivered": delivered})
}

// writeSendError 把发送路径的拒绝翻译为带原因与剩余时限的响应。
func (h *Handler) writeSendError(c *gin.Context, username string, err error) {
	switch {
	case errors.Is(err, bus.ErrBanned):
		st := h.svc.Status(username)
		rec := st.ActiveBan
		if rec == nil {
			rec = st.ActiveKick
		}
		body := gin.H{"error": "banned", "force_logout": true}
		if rec != nil {
			body["reason"] = rec.Reason
			body["expires_at"] = rec.ExpiresAt
		}
		c.JSON(http.StatusForbidden, body)
	case errors.Is(err, bus.ErrMuted):
		st := h.svc.Status(username)
		body := gin.H{"error": "muted"}
		if st.ActiveMute != nil {
			body["reason"] = st.ActiveMute.Reason
			body["expires_at"] = st.ActiveMute.ExpiresAt
		}
		c.JSON(http.StatusForbidden, body)
	case errors.Is(err, bus.ErrMessageTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("message exceeds %d characters", h.cfg.MaxMessageLength)})
	default:
		log.Error().Err(err).Str("username", username).Msg("send")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "send failed"})
	}
}

// Moderate 统一的管制入口，一个动作一次请求。
func (h *Handler) Moderate(c *gin.Context) {
	var req struct {
		Action          string `json:"action"` // mute/ban/kick/unmute/unban/role_change
		Subject         string `json:"subject"`
		DurationMinutes int    `json:"duration_minutes"`
		Reason          string `json:"reason"`
		NewRole         string `json:"new_role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Subject == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	issuer := auth.GetUser(c)

	var (
		rec moderation.Record
		err error
	)
	switch req.Action {
	case "mute":
		rec, err = h.svc.Mute(issuer.Username, req.Subject, req.DurationMinutes, req.Reason)
	case "ban":
		rec, err = h.svc.Ban(issuer.Username, req.Subject, req.DurationMinutes, req.Reason)
	case "kick":
		rec, err = h.svc.Kick(issuer.Username, req.Subject)
	case "unmute":
		err = h.svc.Unmute(issuer.Username, req.Subject)
	case "unban":
		err = h.svc.Unban(issuer.Username, req.Subject)
	case "role_change":
		err = h.svc.ChangeRole(issuer.Username, req.Subject, req.NewRole)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
		return
	}
	if err != nil {
		h.writeModerationError(c, issuer.Role, err)
		return
	}
	if rec.Kind == "" {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec})
}

// ModerationStatus 查询某用户的生效管制状态，本人或版主及以上可查。
func (h *Handler) ModerationStatus(c *gin.Context) {
	subject := c.Param("username")
	caller := auth.GetUser(c)
	if caller.Username != subject && role.Rank(caller.Role) < role.Rank(role.Moderator) {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		return
	}
	c.JSON(http.StatusOK, h.svc.Status(subject))
}

// writeModerationError 把管制失败翻译为可操作的提示，绝不吞掉权限错误。
func (h *Handler) writeModerationError(c *gin.Context, issuerRole string, err error) {
	switch {
	case errors.Is(err, moderation.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	case errors.Is(err, moderation.ErrInsufficientRole):
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	case errors.Is(err, moderation.ErrSelfRoleChange):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot change your own role"})
	case errors.Is(err, moderation.ErrInvalidDuration):
		c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be at least 1 minute"})
	case errors.Is(err, moderation.ErrDurationExceedsRoleLimit):
		limit := h.cfg.ModeratorMuteCapMinutes
		if issuerRole == role.Admin {
			limit = h.cfg.AdminMuteCapMinutes
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("maximum mute duration for your role is %d minutes", limit)})
	case errors.Is(err, bus.ErrInvalidRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
	case errors.Is(err, moderation.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store unavailable"})
	default:
		log.Error().Err(err).Msg("moderation action")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "moderation action failed"})
	}
}
