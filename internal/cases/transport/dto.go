// Package transport defines the request and response shapes for the cases API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"careops_backend/internal/cases/repository"
)

type CreateLeadRequest struct {
	PatientName  string  `json:"patientName" validate:"required,min=2,max=120"`
	PatientPhone string  `json:"patientPhone" validate:"required"`
	PatientEmail *string `json:"patientEmail" validate:"omitempty,email"`
	Disease      *string `json:"disease" validate:"omitempty,max=200"`
	AssignedBDID *string `json:"assignedBdId" validate:"omitempty,uuid"`
}

type AdvanceStageRequest struct {
	ToStage string  `json:"toStage" validate:"required"`
	Note    *string `json:"note" validate:"omitempty,max=500"`
}

type MarkLostRequest struct {
	Reason string `json:"reason" validate:"required"`
	Detail string `json:"detail" validate:"omitempty,max=500"`
}

type KYPDetailsRequest struct {
	InsurerName         *string `json:"insurerName" validate:"omitempty,max=120"`
	InsuranceCardNumber *string `json:"insuranceCardNumber" validate:"omitempty,max=64"`
	IdentityDocument    *string `json:"identityDocument" validate:"omitempty,max=64"`
	Disease             *string `json:"disease" validate:"omitempty,max=200"`
}

type RaisePreAuthRequest struct {
	IsNewHospitalRequest bool    `json:"isNewHospitalRequest"`
	RequestedAmount      *string `json:"requestedAmount" validate:"omitempty"`
}

type RejectPreAuthRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type ApproveInsuranceCaseRequest struct {
	ApprovalAmount *string `json:"approvalAmount" validate:"omitempty"`
}

type LeadResponse struct {
	ID            uuid.UUID  `json:"id"`
	Reference     string     `json:"reference"`
	PatientName   string     `json:"patientName"`
	PatientPhone  string     `json:"patientPhone"`
	PatientEmail  *string    `json:"patientEmail,omitempty"`
	Disease       *string    `json:"disease,omitempty"`
	PipelineStage string     `json:"pipelineStage"`
	CaseStage     string     `json:"caseStage"`
	AssignedBDID  *uuid.UUID `json:"assignedBdId,omitempty"`
	LostReason    *string    `json:"lostReason,omitempty"`
	LostAt        *time.Time `json:"lostAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

type LeadListResponse struct {
	Leads []LeadResponse `json:"leads"`
	Total int            `json:"total"`
}

type StageHistoryResponse struct {
	ID        uuid.UUID `json:"id"`
	FromStage string    `json:"fromStage"`
	ToStage   string    `json:"toStage"`
	ChangedBy uuid.UUID `json:"changedBy"`
	Note      *string   `json:"note,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}

type KYPResponse struct {
	ID                  uuid.UUID `json:"id"`
	LeadID              uuid.UUID `json:"leadId"`
	Status              string    `json:"status"`
	InsurerName         *string   `json:"insurerName,omitempty"`
	InsuranceCardNumber *string   `json:"insuranceCardNumber,omitempty"`
	IdentityDocument    *string   `json:"identityDocument,omitempty"`
	Disease             *string   `json:"disease,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

type PreAuthResponse struct {
	ID                   uuid.UUID  `json:"id"`
	KYPSubmissionID      uuid.UUID  `json:"kypSubmissionId"`
	ApprovalStatus       string     `json:"approvalStatus"`
	RejectionReason      *string    `json:"rejectionReason,omitempty"`
	IsNewHospitalRequest bool       `json:"isNewHospitalRequest"`
	NewHospitalRaised    bool       `json:"newHospitalRaised"`
	NewHospitalRaisedAt  *time.Time `json:"newHospitalRaisedAt,omitempty"`
	RequestedAmount      *string    `json:"requestedAmount,omitempty"`
	HandledByID          *uuid.UUID `json:"handledById,omitempty"`
	ApprovedAt           *time.Time `json:"approvedAt,omitempty"`
	RejectedAt           *time.Time `json:"rejectedAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
}

type InsuranceCaseResponse struct {
	ID             uuid.UUID  `json:"id"`
	LeadID         uuid.UUID  `json:"leadId"`
	Status         string     `json:"status"`
	ApprovalAmount *string    `json:"approvalAmount,omitempty"`
	HandledByID    *uuid.UUID `json:"handledById,omitempty"`
	ApprovedAt     *time.Time `json:"approvedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func ToLeadResponse(l repository.Lead) LeadResponse {
	return LeadResponse{
		ID:            l.ID,
		Reference:     l.Reference,
		PatientName:   l.PatientName,
		PatientPhone:  l.PatientPhone,
		PatientEmail:  l.PatientEmail,
		Disease:       l.Disease,
		PipelineStage: l.PipelineStage,
		CaseStage:     l.CaseStage,
		AssignedBDID:  l.AssignedBDID,
		LostReason:    l.LostReason,
		LostAt:        l.LostAt,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
}

func ToStageHistoryResponse(h repository.StageHistory) StageHistoryResponse {
	return StageHistoryResponse{
		ID:        h.ID,
		FromStage: h.FromStage,
		ToStage:   h.ToStage,
		ChangedBy: h.ChangedBy,
		Note:      h.Note,
		ChangedAt: h.ChangedAt,
	}
}

func ToKYPResponse(k repository.KYPSubmission) KYPResponse {
	return KYPResponse{
		ID:                  k.ID,
		LeadID:              k.LeadID,
		Status:              k.Status,
		InsurerName:         k.InsurerName,
		InsuranceCardNumber: k.InsuranceCardNumber,
		IdentityDocument:    k.IdentityDocument,
		Disease:             k.Disease,
		CreatedAt:           k.CreatedAt,
		UpdatedAt:           k.UpdatedAt,
	}
}

func ToPreAuthResponse(p repository.PreAuthorization) PreAuthResponse {
	resp := PreAuthResponse{
		ID:                   p.ID,
		KYPSubmissionID:      p.KYPSubmissionID,
		ApprovalStatus:       p.ApprovalStatus,
		RejectionReason:      p.RejectionReason,
		IsNewHospitalRequest: p.IsNewHospitalRequest,
		NewHospitalRaised:    p.NewHospitalRaised,
		NewHospitalRaisedAt:  p.NewHospitalRaisedAt,
		HandledByID:          p.HandledByID,
		ApprovedAt:           p.ApprovedAt,
		RejectedAt:           p.RejectedAt,
		CreatedAt:            p.CreatedAt,
	}
	if p.RequestedAmount != nil {
		s := p.RequestedAmount.String()
		resp.RequestedAmount = &s
	}
	return resp
}

func ToInsuranceCaseResponse(c repository.InsuranceCase) InsuranceCaseResponse {
	resp := InsuranceCaseResponse{
		ID:          c.ID,
		LeadID:      c.LeadID,
		Status:      c.Status,
		HandledByID: c.HandledByID,
		ApprovedAt:  c.ApprovedAt,
		CreatedAt:   c.CreatedAt,
	}
	if c.ApprovalAmount != nil {
		s := c.ApprovalAmount.String()
		resp.ApprovalAmount = &s
	}
	return resp
}
