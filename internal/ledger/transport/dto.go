// Package transport defines the request and response shapes for the ledger API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"careops_backend/internal/ledger/repository"
)

type CreatePaymentModeRequest struct {
	Name           string  `json:"name" validate:"required,min=2,max=80"`
	OpeningBalance *string `json:"openingBalance" validate:"omitempty"`
}

type CreateEntryRequest struct {
	TransactionType string  `json:"transactionType" validate:"required"`
	Amount          string  `json:"amount" validate:"required"`
	PaymentModeID   *string `json:"paymentModeId" validate:"omitempty,uuid"`
	FromModeID      *string `json:"fromModeId" validate:"omitempty,uuid"`
	ToModeID        *string `json:"toModeId" validate:"omitempty,uuid"`
	Description     *string `json:"description" validate:"omitempty,max=500"`
}

type RejectEntryRequest struct {
	Note *string `json:"note" validate:"omitempty,max=500"`
}

type DeleteEntryRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type RequestEditRequest struct {
	Amount        string  `json:"amount" validate:"required"`
	Description   *string `json:"description" validate:"omitempty,max=500"`
	PaymentModeID *string `json:"paymentModeId" validate:"omitempty,uuid"`
	FromModeID    *string `json:"fromModeId" validate:"omitempty,uuid"`
	ToModeID      *string `json:"toModeId" validate:"omitempty,uuid"`
}

type PaymentModeResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	OpeningBalance string    `json:"openingBalance"`
	Balance        string    `json:"balance"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

type EntryResponse struct {
	ID              uuid.UUID  `json:"id"`
	SerialNumber    string     `json:"serialNumber"`
	TransactionType string     `json:"transactionType"`
	Amount          string     `json:"amount"`
	PaymentModeID   *uuid.UUID `json:"paymentModeId,omitempty"`
	FromModeID      *uuid.UUID `json:"fromModeId,omitempty"`
	ToModeID        *uuid.UUID `json:"toModeId,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Status          string     `json:"status"`
	Deleted         bool       `json:"deleted"`
	DeletedReason   *string    `json:"deletedReason,omitempty"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
	CreatedByID     uuid.UUID  `json:"createdById"`
	ApprovedByID    *uuid.UUID `json:"approvedById,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

type EntryListResponse struct {
	Entries []EntryResponse `json:"entries"`
	Total   int             `json:"total"`
}

type EditRequestResponse struct {
	ID            uuid.UUID  `json:"id"`
	EntryID       uuid.UUID  `json:"entryId"`
	Amount        string     `json:"amount"`
	Description   *string    `json:"description,omitempty"`
	PaymentModeID *uuid.UUID `json:"paymentModeId,omitempty"`
	FromModeID    *uuid.UUID `json:"fromModeId,omitempty"`
	ToModeID      *uuid.UUID `json:"toModeId,omitempty"`
	Status        string     `json:"status"`
	RequestedByID uuid.UUID  `json:"requestedById"`
	DecidedByID   *uuid.UUID `json:"decidedById,omitempty"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

type AuditLogResponse struct {
	ID        uuid.UUID `json:"id"`
	Action    string    `json:"action"`
	ActorID   uuid.UUID `json:"actorId"`
	Detail    *string   `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func ToPaymentModeResponse(m repository.PaymentMode) PaymentModeResponse {
	return PaymentModeResponse{
		ID:             m.ID,
		Name:           m.Name,
		OpeningBalance: m.OpeningBalance.String(),
		Balance:        m.Balance.String(),
		IsActive:       m.IsActive,
		CreatedAt:      m.CreatedAt,
	}
}

func ToEntryResponse(e repository.Entry) EntryResponse {
	return EntryResponse{
		ID:              e.ID,
		SerialNumber:    e.SerialNumber,
		TransactionType: e.TransactionType,
		Amount:          e.Amount.String(),
		PaymentModeID:   e.PaymentModeID,
		FromModeID:      e.FromModeID,
		ToModeID:        e.ToModeID,
		Description:     e.Description,
		Status:          e.Status,
		Deleted:         e.Deleted,
		DeletedReason:   e.DeletedReason,
		DeletedAt:       e.DeletedAt,
		CreatedByID:     e.CreatedByID,
		ApprovedByID:    e.ApprovedByID,
		ApprovedAt:      e.ApprovedAt,
		CreatedAt:       e.CreatedAt,
	}
}

func ToEditRequestResponse(e repository.EditRequest) EditRequestResponse {
	return EditRequestResponse{
		ID:            e.ID,
		EntryID:       e.EntryID,
		Amount:        e.Amount.String(),
		Description:   e.Description,
		PaymentModeID: e.PaymentModeID,
		FromModeID:    e.FromModeID,
		ToModeID:      e.ToModeID,
		Status:        e.Status,
		RequestedByID: e.RequestedByID,
		DecidedByID:   e.DecidedByID,
		DecidedAt:     e.DecidedAt,
		CreatedAt:     e.CreatedAt,
	}
}

func ToAuditLogResponse(l repository.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:        l.ID,
		Action:    l.Action,
		ActorID:   l.ActorID,
		Detail:    l.Detail,
		CreatedAt: l.CreatedAt,
	}
}
