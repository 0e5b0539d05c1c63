// Package api is the HTTP surface: session lifecycle, chat browsing, message
// sending and notification management, plus the realtime websocket endpoint.
package api

import (
	"net/http"

	"whatsapp-bridge/internal/ws"

	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Sessions      *SessionHandler
	Chats         *ChatHandler
	Messages      *MessageHandler
	Notifications *NotificationHandler
	Hub           *ws.Hub
	MediaDir      string
	Metrics       http.Handler
}

// NewRouter builds the gin engine with all routes mounted. Tenant scoping
// comes from the X-Tenant-ID header on every API call.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics))
	r.Static("/media", deps.MediaDir)

	r.GET("/ws", func(c *gin.Context) {
		tenant := c.Query("tenant")
		if tenant == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant query parameter required"})
			return
		}
		deps.Hub.ServeWs(c.Writer, c.Request, tenant)
	})

	apiGroup := r.Group("/api/v1")
	{
		sessions := apiGroup.Group("/sessions")
		{
			sessions.POST("", deps.Sessions.Create)
			sessions.GET("", deps.Sessions.List)
			sessions.GET("/:id", deps.Sessions.Get)
			sessions.PATCH("/:id", deps.Sessions.Update)
			sessions.DELETE("/:id", deps.Sessions.Delete)
			sessions.POST("/:id/connect", deps.Sessions.Connect)
			sessions.POST("/:id/disconnect", deps.Sessions.Disconnect)
			sessions.GET("/:id/qr", deps.Sessions.QR)

			sessions.GET("/:id/chats", deps.Chats.ListChats)
			sessions.GET("/:id/messages", deps.Chats.ListMessages)
			sessions.POST("/:id/chats/modify", deps.Chats.ModifyChat)
			sessions.GET("/:id/statuses", deps.Chats.ListStatuses)

			sessions.POST("/:id/send/text", deps.Messages.SendText)
			sessions.POST("/:id/send/media", deps.Messages.SendMedia)
			sessions.POST("/:id/send/location", deps.Messages.SendLocation)
			sessions.POST("/:id/send/contact", deps.Messages.SendContact)
			sessions.POST("/:id/send/reaction", deps.Messages.SendReaction)
			sessions.POST("/:id/send/buttons", deps.Messages.SendButtons)
			sessions.POST("/:id/send/list", deps.Messages.SendList)
			sessions.POST("/:id/send/product", deps.Messages.SendProduct)
		}

		notifications := apiGroup.Group("/notifications")
		{
			notifications.POST("/send", deps.Notifications.Send)
			notifications.POST("/test", deps.Notifications.Test)
			notifications.GET("/settings", deps.Notifications.GetSettings)
			notifications.PUT("/settings", deps.Notifications.UpdateSettings)
			notifications.GET("/templates", deps.Notifications.ListTemplates)
			notifications.POST("/templates", deps.Notifications.CreateTemplate)
			notifications.PUT("/templates/:templateId", deps.Notifications.UpdateTemplate)
			notifications.DELETE("/templates/:templateId", deps.Notifications.DeleteTemplate)
			notifications.GET("/logs", deps.Notifications.Logs)
			notifications.GET("/stats", deps.Notifications.Stats)
		}
	}

	return r
}
