// Package transport defines request and response shapes for the HR API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"careops_backend/internal/hr/repository"
)

type ApplyLeaveRequest struct {
	StartDate string `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"required,datetime=2006-01-02"`
	LeaveType string `json:"leaveType" validate:"required"`
	Reason    string `json:"reason" validate:"required,max=1000"`
}

type DecideLeaveRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

type OpenTicketRequest struct {
	Subject     string `json:"subject" validate:"required,max=200"`
	Description string `json:"description" validate:"required,max=4000"`
	Category    string `json:"category" validate:"max=50"`
}

type AssignTicketRequest struct {
	AssigneeID uuid.UUID `json:"assigneeId" validate:"required"`
}

type CloseTicketRequest struct {
	Resolution string `json:"resolution" validate:"required,max=4000"`
}

type AttendanceResponse struct {
	ID         uuid.UUID  `json:"id"`
	EmployeeID uuid.UUID  `json:"employeeId"`
	Day        string     `json:"day"`
	CheckIn    *time.Time `json:"checkIn,omitempty"`
	CheckOut   *time.Time `json:"checkOut,omitempty"`
	Source     string     `json:"source"`
}

type LeaveResponse struct {
	ID           uuid.UUID  `json:"id"`
	EmployeeID   uuid.UUID  `json:"employeeId"`
	StartDate    string     `json:"startDate"`
	EndDate      string     `json:"endDate"`
	LeaveType    string     `json:"leaveType"`
	Reason       string     `json:"reason"`
	Status       string     `json:"status"`
	DecisionNote *string    `json:"decisionNote,omitempty"`
	DecidedByID  *uuid.UUID `json:"decidedById,omitempty"`
	DecidedAt    *time.Time `json:"decidedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type TicketResponse struct {
	ID          uuid.UUID  `json:"id"`
	Subject     string     `json:"subject"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Status      string     `json:"status"`
	OpenedByID  uuid.UUID  `json:"openedById"`
	AssigneeID  *uuid.UUID `json:"assigneeId,omitempty"`
	Resolution  *string    `json:"resolution,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

const dateLayout = "2006-01-02"

func ToAttendanceResponse(rec repository.AttendanceRecord) AttendanceResponse {
	return AttendanceResponse{
		ID:         rec.ID,
		EmployeeID: rec.EmployeeID,
		Day:        rec.Day.Format(dateLayout),
		CheckIn:    rec.CheckIn,
		CheckOut:   rec.CheckOut,
		Source:     rec.Source,
	}
}

func ToLeaveResponse(lr repository.LeaveRequest) LeaveResponse {
	return LeaveResponse{
		ID:           lr.ID,
		EmployeeID:   lr.EmployeeID,
		StartDate:    lr.StartDate.Format(dateLayout),
		EndDate:      lr.EndDate.Format(dateLayout),
		LeaveType:    lr.LeaveType,
		Reason:       lr.Reason,
		Status:       lr.Status,
		DecisionNote: lr.DecisionNote,
		DecidedByID:  lr.DecidedByID,
		DecidedAt:    lr.DecidedAt,
		CreatedAt:    lr.CreatedAt,
	}
}

func ToTicketResponse(t repository.Ticket) TicketResponse {
	return TicketResponse{
		ID:          t.ID,
		Subject:     t.Subject,
		Description: t.Description,
		Category:    t.Category,
		Status:      t.Status,
		OpenedByID:  t.OpenedByID,
		AssigneeID:  t.AssigneeID,
		Resolution:  t.Resolution,
		ClosedAt:    t.ClosedAt,
		CreatedAt:   t.CreatedAt,
	}
}
