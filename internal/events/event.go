// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"careops_backend/platform/events"
	"careops_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Case Pipeline Events
// =============================================================================

// CaseStageChanged is published after any case stage transition commits.
type CaseStageChanged struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	Reference string    `json:"reference"`
	FromStage string    `json:"fromStage"`
	ToStage   string    `json:"toStage"`
	ChangedBy uuid.UUID `json:"changedBy"`
	Note      string    `json:"note,omitempty"`
}

func (e CaseStageChanged) EventName() string { return "cases.stage.changed" }

// CaseDischarged is published when a lead's case reaches DISCHARGED.
type CaseDischarged struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	Reference   string    `json:"reference"`
	PatientName string    `json:"patientName"`
	ActorID     uuid.UUID `json:"actorId"`
}

func (e CaseDischarged) EventName() string { return "cases.discharged" }

// LeadLost is published when a lead's pipeline reaches the terminal LOST state.
type LeadLost struct {
	BaseEvent
	LeadID       uuid.UUID  `json:"leadId"`
	Reference    string     `json:"reference"`
	PatientName  string     `json:"patientName"`
	LostReason   string     `json:"lostReason"`
	ActorID      uuid.UUID  `json:"actorId"`
	AssignedBDID *uuid.UUID `json:"assignedBdId,omitempty"`
}

func (e LeadLost) EventName() string { return "cases.lead.lost" }

// PreAuthRejected is published when a pre-authorization is rejected.
type PreAuthRejected struct {
	BaseEvent
	LeadID          uuid.UUID  `json:"leadId"`
	Reference       string     `json:"reference"`
	KYPSubmissionID uuid.UUID  `json:"kypSubmissionId"`
	Reason          string     `json:"reason"`
	ActorID         uuid.UUID  `json:"actorId"`
	AssignedBDID    *uuid.UUID `json:"assignedBdId,omitempty"`
}

func (e PreAuthRejected) EventName() string { return "cases.preauth.rejected" }

// PreAuthApproved is published when a pre-authorization is approved.
type PreAuthApproved struct {
	BaseEvent
	LeadID          uuid.UUID  `json:"leadId"`
	Reference       string     `json:"reference"`
	KYPSubmissionID uuid.UUID  `json:"kypSubmissionId"`
	ActorID         uuid.UUID  `json:"actorId"`
	AssignedBDID    *uuid.UUID `json:"assignedBdId,omitempty"`
}

func (e PreAuthApproved) EventName() string { return "cases.preauth.approved" }

// InsuranceCaseApproved is published when an insurance case is approved and
// the owning lead's pipeline has advanced to PL.
type InsuranceCaseApproved struct {
	BaseEvent
	CaseID         uuid.UUID  `json:"caseId"`
	LeadID         uuid.UUID  `json:"leadId"`
	Reference      string     `json:"reference"`
	ApprovalAmount string     `json:"approvalAmount,omitempty"`
	ActorID        uuid.UUID  `json:"actorId"`
	AssignedBDID   *uuid.UUID `json:"assignedBdId,omitempty"`
}

func (e InsuranceCaseApproved) EventName() string { return "cases.insurance.approved" }

// =============================================================================
// Ledger Events
// =============================================================================

// LedgerEntryApproved is published after an entry approval and its balance
// application have committed.
type LedgerEntryApproved struct {
	BaseEvent
	EntryID         uuid.UUID `json:"entryId"`
	SerialNumber    string    `json:"serialNumber"`
	TransactionType string    `json:"transactionType"`
	Amount          string    `json:"amount"`
	CreatedByID     uuid.UUID `json:"createdById"`
	ActorID         uuid.UUID `json:"actorId"`
}

func (e LedgerEntryApproved) EventName() string { return "ledger.entry.approved" }

// LedgerEntryDeleted is published after a soft delete (and any balance
// reversal) has committed.
type LedgerEntryDeleted struct {
	BaseEvent
	EntryID      uuid.UUID `json:"entryId"`
	SerialNumber string    `json:"serialNumber"`
	Reason       string    `json:"reason"`
	CreatedByID  uuid.UUID `json:"createdById"`
	ActorID      uuid.UUID `json:"actorId"`
}

func (e LedgerEntryDeleted) EventName() string { return "ledger.entry.deleted" }

// =============================================================================
// HR Events
// =============================================================================

// LeaveDecided is published when a leave request is approved or rejected.
type LeaveDecided struct {
	BaseEvent
	RequestID  uuid.UUID `json:"requestId"`
	EmployeeID uuid.UUID `json:"employeeId"`
	Status     string    `json:"status"`
	Note       string    `json:"note,omitempty"`
	ActorID    uuid.UUID `json:"actorId"`
}

func (e LeaveDecided) EventName() string { return "hr.leave.decided" }

// TicketAssigned is published when a support ticket is assigned.
type TicketAssigned struct {
	BaseEvent
	TicketID   uuid.UUID `json:"ticketId"`
	AssigneeID uuid.UUID `json:"assigneeId"`
	Subject    string    `json:"subject"`
	ActorID    uuid.UUID `json:"actorId"`
}

func (e TicketAssigned) EventName() string { return "hr.ticket.assigned" }
