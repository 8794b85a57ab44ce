// Package handler exposes lead chat threads over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"careops_backend/internal/chat/service"
	"careops_backend/internal/chat/transport"
	"careops_backend/internal/identity"
	"careops_backend/platform/httpkit"
	"careops_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func actorFrom(c *gin.Context) (identity.Actor, bool) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return identity.Actor{}, false
	}
	return identity.Actor{ID: id.UserID(), Role: id.Role()}, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, false
	}
	return id, true
}

// PostMessage appends a message to a lead's thread.
// POST /api/v1/leads/:id/messages
func (h *Handler) PostMessage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	leadID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.PostMessage(c.Request.Context(), actor, leadID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// ListMessages returns a lead's thread.
// GET /api/v1/leads/:id/messages
func (h *Handler) ListMessages(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	leadID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.ListMessages(c.Request.Context(), actor, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
