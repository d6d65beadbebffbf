package server

import (
	"net/http"
	"time"

	"github.com/C4boose/hfconvo/internal/auth"
	"github.com/C4boose/hfconvo/internal/bus"
	"github.com/C4boose/hfconvo/internal/config"
	"github.com/C4boose/hfconvo/internal/metrics"
	"github.com/C4boose/hfconvo/internal/mw"
	"github.com/C4boose/hfconvo/internal/service"
	"github.com/C4boose/hfconvo/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, svc *bus.Service, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(cfg, service.NewUserService(db, cfg), svc)

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))
	authed.GET("/online", h.Online)
	authed.POST("/heartbeat", h.Heartbeat)
	authed.GET("/messages", h.ListMessages)
	authed.POST("/messages", h.SendMessage)
	authed.POST("/typing", h.Typing)
	authed.POST("/moderation", h.Moderate)
	authed.GET("/moderation/:username", h.ModerationStatus)

	r.GET("/ws", ws.Serve(hub, svc, db, cfg))

	return r
}
