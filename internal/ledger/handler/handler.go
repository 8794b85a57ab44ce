// Package handler exposes the ledger over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"careops_backend/internal/identity"
	"careops_backend/internal/ledger/repository"
	"careops_backend/internal/ledger/service"
	"careops_backend/internal/ledger/transport"
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

// CreatePaymentMode registers a payment mode.
// POST /api/v1/ledger/modes
func (h *Handler) CreatePaymentMode(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.CreatePaymentModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CreatePaymentMode(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// ListPaymentModes returns all payment modes with current balances.
// GET /api/v1/ledger/modes
func (h *Handler) ListPaymentModes(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	result, err := h.svc.ListPaymentModes(c.Request.Context(), actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CreateEntry records a pending ledger entry.
// POST /api/v1/ledger/entries
func (h *Handler) CreateEntry(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CreateEntry(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// GetEntry returns a single entry.
// GET /api/v1/ledger/entries/:id
func (h *Handler) GetEntry(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	entryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.svc.GetEntry(c.Request.Context(), actor, entryID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListEntries returns entries, newest first.
// GET /api/v1/ledger/entries
func (h *Handler) ListEntries(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var filter repository.EntryFilter
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("paymentModeId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
			return
		}
		filter.PaymentModeID = &id
	}
	filter.IncludeDeleted = c.Query("includeDeleted") == "true"

	result, err := h.svc.ListEntries(c.Request.Context(), actor, filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// AuditLog returns the append-only trail for an entry.
// GET /api/v1/ledger/entries/:id/audit
func (h *Handler) AuditLog(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	entryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.svc.ListAuditLog(c.Request.Context(), actor, entryID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ApproveEntry finalizes a pending entry and applies its balance movement.
// POST /api/v1/ledger/entries/:id/approve
func (h *Handler) ApproveEntry(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	entryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.svc.ApproveEntry(c.Request.Context(), actor, entryID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RejectEntry finalizes a pending entry without touching balances.
// POST /api/v1/ledger/entries/:id/reject
func (h *Handler) RejectEntry(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	entryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.RejectEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.RejectEntry(c.Request.Context(), actor, entryID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// SoftDeleteEntry hides an entry and reverses its applied movement.
// DELETE /api/v1/ledger/entries/:id
func (h *Handler) SoftDeleteEntry(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	entryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.DeleteEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.SoftDeleteEntry(c.Request.Context(), actor, entryID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RequestEdit files a proposed correction against an entry.
// POST /api/v1/ledger/entries/:id/edit-requests
func (h *Handler) RequestEdit(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	entryID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.RequestEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.RequestEdit(c.Request.Context(), actor, entryID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// ApproveEditRequest applies a pending edit to its entry.
// POST /api/v1/ledger/edit-requests/:id/approve
func (h *Handler) ApproveEditRequest(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	editID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.svc.ApproveEditRequest(c.Request.Context(), actor, editID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RejectEditRequest declines a pending edit.
// POST /api/v1/ledger/edit-requests/:id/reject
func (h *Handler) RejectEditRequest(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	editID, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.svc.RejectEditRequest(c.Request.Context(), actor, editID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
