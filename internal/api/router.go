package api

import (
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "github.com/d60-Lab/anonrelay/docs"
	"github.com/d60-Lab/anonrelay/internal/api/handler"
	"github.com/d60-Lab/anonrelay/internal/api/middleware"
)

type RouterConfig struct {
	Mode        string
	ServiceName string
	// SentryEnabled 为 true 时挂载 sentrygin（需要先 sentry.Init）
	SentryEnabled bool
}

// NewRouter 注册全部路由
func NewRouter(cfg RouterConfig, h *handler.Handler, issuer *middleware.TokenIssuer) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.RequestID(), middleware.Logger())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	if cfg.SentryEnabled {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true, Timeout: 2 * time.Second}))
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.POST("/telegram/:bot", h.TelegramWebhook)

	v1 := r.Group("/api/v1", gzip.Gzip(gzip.DefaultCompression))
	v1.POST("/auth/login", h.Login)

	authed := v1.Group("", middleware.JWTAuth(issuer))
	{
		authed.POST("/messages", h.SendMessage)

		authed.POST("/reports", h.FileReport)
		authed.GET("/reports/pending", h.ListPendingReports)
		authed.POST("/reports/:id/ban", h.BanReport)
		authed.POST("/reports/:id/dismiss", h.DismissReport)

		authed.GET("/bans", h.ListBanned)
		authed.POST("/bans", h.BanUser)
		authed.DELETE("/bans", h.UnbanAll)
		authed.DELETE("/bans/:user_id", h.UnbanUser)

		authed.GET("/users/:user_id/stats", h.UserStats)
		authed.POST("/users/:user_id/recount", h.RecountUser)
		authed.GET("/stats", h.SystemStats)
	}
	return r
}
