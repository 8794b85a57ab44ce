// Package handler exposes in-app notifications over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"careops_backend/internal/notification/inapp"
	"careops_backend/platform/httpkit"
)

const msgInvalidID = "invalid id"

type Handler struct {
	svc *inapp.Service
}

func New(svc *inapp.Service) *Handler {
	return &Handler{svc: svc}
}

func userIDFrom(c *gin.Context) (uuid.UUID, bool) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return uuid.Nil, false
	}
	return id.UserID(), true
}

// List returns the caller's notifications, newest first.
// GET /api/v1/notifications?page=1&pageSize=20
func (h *Handler) List(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	items, total, err := h.svc.List(c.Request.Context(), userID, page, pageSize)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{
		"notifications": items,
		"total":         total,
		"page":          page,
	})
}

// UnreadCount returns the caller's unread notification count.
// GET /api/v1/notifications/unread-count
func (h *Handler) UnreadCount(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}
	count, err := h.svc.CountUnread(c.Request.Context(), userID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"unreadCount": count})
}

// MarkRead marks one of the caller's notifications as read.
// POST /api/v1/notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return
	}
	if httpkit.HandleError(c, h.svc.MarkRead(c.Request.Context(), id, userID)) {
		return
	}
	httpkit.OK(c, gin.H{"read": true})
}

// MarkAllRead marks every unread notification of the caller as read.
// POST /api/v1/notifications/read-all
func (h *Handler) MarkAllRead(c *gin.Context) {
	userID, ok := userIDFrom(c)
	if !ok {
		return
	}
	if httpkit.HandleError(c, h.svc.MarkAllRead(c.Request.Context(), userID)) {
		return
	}
	httpkit.OK(c, gin.H{"read": true})
}
