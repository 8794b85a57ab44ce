// Package handler exposes the case pipeline over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"careops_backend/internal/cases/repository"
	"careops_backend/internal/cases/service"
	"careops_backend/internal/cases/transport"
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

// CreateLead creates a lead at the start of the pipeline.
// POST /api/v1/leads
func (h *Handler) CreateLead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.CreateLead(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// GetLead returns a single lead.
// GET /api/v1/leads/:id
func (h *Handler) GetLead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	leadID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.GetLead(c.Request.Context(), actor, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ListLeads returns leads visible to the caller, optionally filtered by
// pipeline or case stage.
// GET /api/v1/leads
func (h *Handler) ListLeads(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var filter repository.LeadFilter
	if v := c.Query("pipelineStage"); v != "" {
		filter.PipelineStage = &v
	}
	if v := c.Query("caseStage"); v != "" {
		filter.CaseStage = &v
	}

	result, err := h.svc.ListLeads(c.Request.Context(), actor, filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// StageHistory returns the append-only stage trail for a lead.
// GET /api/v1/leads/:id/history
func (h *Handler) StageHistory(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	leadID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.ListStageHistory(c.Request.Context(), actor, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// AdvanceStage moves a lead one step forward in the case funnel.
// POST /api/v1/leads/:id/advance
func (h *Handler) AdvanceStage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	leadID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.AdvanceStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.AdvanceCaseStage(c.Request.Context(), actor, leadID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// MarkDischarge discharges an initiated or admitted case.
// POST /api/v1/leads/:id/discharge
func (h *Handler) MarkDischarge(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	leadID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.MarkDischarge(c.Request.Context(), actor, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// MarkLost moves a lead to the terminal LOST pipeline stage.
// POST /api/v1/leads/:id/lost
func (h *Handler) MarkLost(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	leadID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.MarkLostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.MarkLost(c.Request.Context(), actor, leadID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// SubmitKYP opens the know-your-patient workflow for a lead.
// POST /api/v1/leads/:id/kyp
func (h *Handler) SubmitKYP(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	leadID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.SubmitKYP(c.Request.Context(), actor, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// GetKYP returns a KYP submission.
// GET /api/v1/kyp/:id
func (h *Handler) GetKYP(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	kypID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.GetKYP(c.Request.Context(), actor, kypID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// AddKYPDetails fills in the patient's insurance details.
// PATCH /api/v1/kyp/:id/details
func (h *Handler) AddKYPDetails(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	kypID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.KYPDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.AddKYPDetails(c.Request.Context(), actor, kypID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RaisePreAuth opens a pre-authorization for a completed KYP submission.
// POST /api/v1/kyp/:id/preauth
func (h *Handler) RaisePreAuth(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	kypID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.RaisePreAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.RaisePreAuth(c.Request.Context(), actor, kypID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// MarkNewHospitalRaised flags hospital-side paperwork as filed.
// POST /api/v1/preauth/:id/new-hospital-raised
func (h *Handler) MarkNewHospitalRaised(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	preAuthID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.MarkNewHospitalPreAuthRaised(c.Request.Context(), actor, preAuthID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ApprovePreAuth finalizes a pending pre-authorization as approved.
// POST /api/v1/preauth/:id/approve
func (h *Handler) ApprovePreAuth(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	preAuthID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.ApprovePreAuth(c.Request.Context(), actor, preAuthID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RejectPreAuth finalizes a pending pre-authorization as rejected.
// POST /api/v1/preauth/:id/reject
func (h *Handler) RejectPreAuth(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	preAuthID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.RejectPreAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.RejectPreAuth(c.Request.Context(), actor, preAuthID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// OpenInsuranceCase opens the insurer-facing case for a lead.
// POST /api/v1/leads/:id/insurance-case
func (h *Handler) OpenInsuranceCase(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	leadID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.OpenInsuranceCase(c.Request.Context(), actor, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.Created(c, result)
}

// ApproveInsuranceCase finalizes an open insurance case as approved.
// POST /api/v1/insurance-cases/:id/approve
func (h *Handler) ApproveInsuranceCase(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	caseID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transport.ApproveInsuranceCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.ApproveInsuranceCase(c.Request.Context(), actor, caseID, req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// RejectInsuranceCase finalizes an open insurance case as rejected.
// POST /api/v1/insurance-cases/:id/reject
func (h *Handler) RejectInsuranceCase(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	caseID, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.RejectInsuranceCase(c.Request.Context(), actor, caseID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}
