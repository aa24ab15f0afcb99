package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up every route on the gin router.
func registerRoutes(router *gin.Engine, opts RouterOpts) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.MediaDir != "" && opts.MediaURL != "" {
		router.Static(opts.MediaURL, opts.MediaDir)
	}
	if opts.Gateway != nil {
		opts.Gateway.Register(router)
	}

	api := router.Group("/api", opts.Auth.Middleware())

	rooms := api.Group("/chat/rooms")
	rooms.GET("", handleListRooms(opts.Chat))
	rooms.POST("", handleCreateRoom(opts.Chat))
	rooms.POST("/with/:username", handleRoomWithUser(opts.Chat))
	rooms.GET("/:room_id", handleGetRoom(opts.Chat))
	rooms.GET("/:room_id/messages", handleListMessages(opts.Chat))
	rooms.POST("/:room_id/messages", handlePostMessage(opts.Chat))
	rooms.POST("/:room_id/messages/:message_id/read", handleMarkRead(opts.Chat))
	rooms.POST("/:room_id/attachments", handleUpload(opts.Chat))
	rooms.POST("/:room_id/bids", handleCreateBid(opts.Chat))
	rooms.PATCH("/:room_id/bids/:bid_id", handleRespondToBid(opts.Chat))

	notifications := api.Group("/notifications")
	notifications.GET("", handleListNotifications(opts.Notify))
	notifications.GET("/unread-count", handleUnreadCount(opts.Notify))
	notifications.POST("/mark-all-read", handleMarkAllRead(opts.Notify))
	notifications.POST("/:id/read", handleMarkNotificationRead(opts.Notify))
}
