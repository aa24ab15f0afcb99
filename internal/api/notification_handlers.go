package api

import (
	"net/http"

	"github.com/gigroom/gigroom/internal/auth"
	"github.com/gigroom/gigroom/internal/notify"
	"github.com/gin-gonic/gin"
)

func handleListNotifications(svc *notify.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ns, err := svc.List(c.Request.Context(), auth.FromContext(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ns)
	}
}

func handleUnreadCount(svc *notify.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.UnreadCount(c.Request.Context(), auth.FromContext(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread_count": n})
	}
}

func handleMarkNotificationRead(svc *notify.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := idParam(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		n, err := svc.MarkRead(c.Request.Context(), auth.FromContext(c).ID, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, n)
	}
}

func handleMarkAllRead(svc *notify.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.MarkAllRead(c.Request.Context(), auth.FromContext(c).ID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked_read": n})
	}
}
