// Package handler exposes the HR workflows over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"careops_backend/internal/hr/service"
	"careops_backend/internal/hr/transport"
	"careops_backend/internal/identity"
	"careops_backend/platform/httpkit"
	"careops_backend/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
	msgInvalidDate      = "invalid date, expected YYYY-MM-DD"
)

const dateLayout = "2006-01-02"

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

// dateRange reads ?from and ?to, defaulting to the current month.
func dateRange(c *gin.Context) (time.Time, time.Time, bool) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidDate, nil)
			return time.Time{}, time.Time{}, false
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidDate, nil)
			return time.Time{}, time.Time{}, false
		}
		to = parsed
	}
	return from, to, true
}

// MyAttendance returns the caller's attendance for a date range.
// GET /api/v1/hr/attendance?from=2026-09-01&to=2026-09-30
func (h *Handler) MyAttendance(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	records, err := h.svc.MyAttendance(c.Request.Context(), actor, from, to)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"attendance": records})
}

// EmployeeAttendance returns an employee's attendance, for HR managers.
// GET /api/v1/hr/attendance/:id
func (h *Handler) EmployeeAttendance(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	employeeID, ok := pathID(c, "id")
	if !ok {
		return
	}
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	records, err := h.svc.EmployeeAttendance(c.Request.Context(), actor, employeeID, from, to)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"attendance": records})
}

// ApplyLeave files a leave request.
// POST /api/v1/hr/leave
func (h *Handler) ApplyLeave(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.ApplyLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.ApplyLeave(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// MyLeave returns the caller's leave requests.
// GET /api/v1/hr/leave
func (h *Handler) MyLeave(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	result, err := h.svc.MyLeaveRequests(c.Request.Context(), actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"leaveRequests": result})
}

// ListLeave returns leave requests across employees, for HR managers.
// GET /api/v1/hr/leave/all?status=PENDING
func (h *Handler) ListLeave(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	result, err := h.svc.ListLeaveRequests(c.Request.Context(), actor, c.Query("status"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"leaveRequests": result})
}

// ApproveLeave approves a pending leave request.
// POST /api/v1/hr/leave/:id/approve
func (h *Handler) ApproveLeave(c *gin.Context) {
	h.decideLeave(c, h.svc.ApproveLeave)
}

// RejectLeave rejects a pending leave request.
// POST /api/v1/hr/leave/:id/reject
func (h *Handler) RejectLeave(c *gin.Context) {
	h.decideLeave(c, h.svc.RejectLeave)
}

func (h *Handler) decideLeave(c *gin.Context, decide func(ctx context.Context, actor identity.Actor, id uuid.UUID, note string) (transport.LeaveResponse, error)) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.DecideLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := decide(c.Request.Context(), actor, requestID, req.Note)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// OpenTicket files a support ticket.
// POST /api/v1/hr/tickets
func (h *Handler) OpenTicket(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.OpenTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.OpenTicket(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// ListTickets returns tickets across the organization, for HR managers.
// GET /api/v1/hr/tickets?status=OPEN
func (h *Handler) ListTickets(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	result, err := h.svc.ListTickets(c.Request.Context(), actor, c.Query("status"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"tickets": result})
}

// MyTickets returns tickets assigned to the caller.
// GET /api/v1/hr/tickets/assigned
func (h *Handler) MyTickets(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	result, err := h.svc.MyTickets(c.Request.Context(), actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"tickets": result})
}

// AssignTicket hands a ticket to an assignee.
// POST /api/v1/hr/tickets/:id/assign
func (h *Handler) AssignTicket(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	ticketID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.AssignTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.AssignTicket(c.Request.Context(), actor, ticketID, req.AssigneeID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// CloseTicket resolves a ticket.
// POST /api/v1/hr/tickets/:id/close
func (h *Handler) CloseTicket(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	ticketID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.CloseTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CloseTicket(c.Request.Context(), actor, ticketID, req.Resolution)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
