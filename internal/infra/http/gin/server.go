package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"campusmarket/internal/infra/config"
	"campusmarket/internal/infra/obs"
)

type Handlers struct {
	Chat           ChatHTTP
	Upload         UploadHTTP
	WS             WSHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api")
	if h.Chat != nil {
		api.POST("/listings/:id/conversations", h.Chat.CreateListingConversation)
		api.GET("/conversations", h.Chat.ListMyConversations)
		api.GET("/conversations/unread-count", h.Chat.UnreadTotal)
		api.GET("/conversations/:id/messages", h.Chat.ListMessages)
		api.POST("/conversations/:id/messages", h.Chat.SendMessage)
		api.POST("/conversations/:id/seen", h.Chat.MarkSeen)
		api.POST("/conversations/:id/block", h.Chat.Block)
		api.POST("/conversations/:id/reports", h.Chat.Report)
		api.DELETE("/conversations/:id", h.Chat.Delete)
		api.GET("/reports", h.Chat.ListReports)
	}
	if h.Upload != nil {
		api.POST("/uploads/chat-images", h.Upload.Attach)
	}
	if h.WS != nil {
		api.GET("/ws", h.WS.Handle)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
