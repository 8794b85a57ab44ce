// Package service implements attendance, leave and ticket workflows.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"careops_backend/internal/events"
	"careops_backend/internal/hr/repository"
	"careops_backend/internal/hr/transport"
	"careops_backend/internal/identity"
	"careops_backend/platform/apperr"
)

const op = "hr.service"

const dateLayout = "2006-01-02"

var knownLeaveTypes = map[string]bool{
	"SICK":   true,
	"CASUAL": true,
	"EARNED": true,
	"UNPAID": true,
}

// Store is the persistence surface the service needs.
type Store interface {
	UpsertAttendance(ctx context.Context, p repository.UpsertAttendanceParams) (repository.AttendanceRecord, error)
	ListAttendance(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]repository.AttendanceRecord, error)
	CreateLeaveRequest(ctx context.Context, p repository.CreateLeaveParams) (repository.LeaveRequest, error)
	GetLeaveRequest(ctx context.Context, id uuid.UUID) (repository.LeaveRequest, error)
	ListLeaveRequests(ctx context.Context, employeeID *uuid.UUID, status string) ([]repository.LeaveRequest, error)
	DecideLeaveRequest(ctx context.Context, id uuid.UUID, status string, note *string, decidedBy uuid.UUID) (repository.LeaveRequest, error)
	CreateTicket(ctx context.Context, p repository.CreateTicketParams) (repository.Ticket, error)
	GetTicket(ctx context.Context, id uuid.UUID) (repository.Ticket, error)
	ListTickets(ctx context.Context, status string, assigneeID *uuid.UUID) ([]repository.Ticket, error)
	AssignTicket(ctx context.Context, id, assigneeID uuid.UUID) (repository.Ticket, error)
	CloseTicket(ctx context.Context, id uuid.UUID, resolution string) (repository.Ticket, error)
}

// Authorizer answers capability questions.
type Authorizer interface {
	HasPermission(ctx context.Context, actor identity.Actor, capability string) (bool, error)
}

// PunchProvider is the external attendance feed the sync task reads from.
// The device integration behind it is someone else's problem.
type PunchProvider interface {
	Punches(ctx context.Context, day time.Time) ([]Punch, error)
}

// Punch is one employee-day from the external feed.
type Punch struct {
	EmployeeID uuid.UUID
	Day        time.Time
	CheckIn    *time.Time
	CheckOut   *time.Time
	Source     string
}

type Service struct {
	store   Store
	authz   Authorizer
	bus     events.Bus
	punches PunchProvider
}

func New(store Store, authz Authorizer, bus events.Bus, punches PunchProvider) *Service {
	return &Service{store: store, authz: authz, bus: bus, punches: punches}
}

func (s *Service) requireHRManage(ctx context.Context, actor identity.Actor) error {
	allowed, err := s.authz.HasPermission(ctx, actor, identity.CapHRManage)
	if err != nil {
		return err
	}
	if !allowed {
		return apperr.Forbidden("you do not have permission to perform this action").WithOp(op)
	}
	return nil
}

// SyncAttendance pulls the punch feed for a day and upserts every record.
// It is invoked by the scheduled worker task, not by HTTP callers.
func (s *Service) SyncAttendance(ctx context.Context, day time.Time) (int, error) {
	if s.punches == nil {
		return 0, apperr.Internal("no punch provider configured").WithOp(op)
	}
	punches, err := s.punches.Punches(ctx, day)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindInternal, "failed to fetch punch feed").WithOp(op)
	}

	synced := 0
	for _, p := range punches {
		_, err := s.store.UpsertAttendance(ctx, repository.UpsertAttendanceParams{
			EmployeeID: p.EmployeeID,
			Day:        p.Day,
			CheckIn:    p.CheckIn,
			CheckOut:   p.CheckOut,
			Source:     p.Source,
		})
		if err != nil {
			return synced, err
		}
		synced++
	}
	return synced, nil
}

// MyAttendance returns the caller's own records for a date range.
func (s *Service) MyAttendance(ctx context.Context, actor identity.Actor, from, to time.Time) ([]transport.AttendanceResponse, error) {
	return s.listAttendance(ctx, actor.ID, from, to)
}

// EmployeeAttendance returns another employee's records, for HR managers.
func (s *Service) EmployeeAttendance(ctx context.Context, actor identity.Actor, employeeID uuid.UUID, from, to time.Time) ([]transport.AttendanceResponse, error) {
	if err := s.requireHRManage(ctx, actor); err != nil {
		return nil, err
	}
	return s.listAttendance(ctx, employeeID, from, to)
}

func (s *Service) listAttendance(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]transport.AttendanceResponse, error) {
	if to.Before(from) {
		return nil, apperr.Validation("date range end must not precede its start").WithOp(op)
	}
	records, err := s.store.ListAttendance(ctx, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]transport.AttendanceResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, transport.ToAttendanceResponse(rec))
	}
	return out, nil
}

// ApplyLeave files a leave request for the calling employee.
func (s *Service) ApplyLeave(ctx context.Context, actor identity.Actor, req transport.ApplyLeaveRequest) (transport.LeaveResponse, error) {
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return transport.LeaveResponse{}, apperr.Validation("invalid start date").WithOp(op)
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return transport.LeaveResponse{}, apperr.Validation("invalid end date").WithOp(op)
	}
	if end.Before(start) {
		return transport.LeaveResponse{}, apperr.Validation("leave must not end before it starts").WithOp(op)
	}
	if !knownLeaveTypes[req.LeaveType] {
		return transport.LeaveResponse{}, apperr.Validation("unknown leave type").WithOp(op)
	}

	lr, err := s.store.CreateLeaveRequest(ctx, repository.CreateLeaveParams{
		EmployeeID: actor.ID,
		StartDate:  start,
		EndDate:    end,
		LeaveType:  req.LeaveType,
		Reason:     req.Reason,
	})
	if err != nil {
		return transport.LeaveResponse{}, err
	}
	return transport.ToLeaveResponse(lr), nil
}

// MyLeaveRequests returns the caller's own requests.
func (s *Service) MyLeaveRequests(ctx context.Context, actor identity.Actor) ([]transport.LeaveResponse, error) {
	requests, err := s.store.ListLeaveRequests(ctx, &actor.ID, "")
	if err != nil {
		return nil, err
	}
	return toLeaveResponses(requests), nil
}

// ListLeaveRequests returns requests across employees, for HR managers.
func (s *Service) ListLeaveRequests(ctx context.Context, actor identity.Actor, status string) ([]transport.LeaveResponse, error) {
	if err := s.requireHRManage(ctx, actor); err != nil {
		return nil, err
	}
	requests, err := s.store.ListLeaveRequests(ctx, nil, status)
	if err != nil {
		return nil, err
	}
	return toLeaveResponses(requests), nil
}

// ApproveLeave approves a pending request and notifies the employee.
func (s *Service) ApproveLeave(ctx context.Context, actor identity.Actor, id uuid.UUID, note string) (transport.LeaveResponse, error) {
	return s.decideLeave(ctx, actor, id, repository.LeaveStatusApproved, note)
}

// RejectLeave rejects a pending request and notifies the employee.
func (s *Service) RejectLeave(ctx context.Context, actor identity.Actor, id uuid.UUID, note string) (transport.LeaveResponse, error) {
	return s.decideLeave(ctx, actor, id, repository.LeaveStatusRejected, note)
}

func (s *Service) decideLeave(ctx context.Context, actor identity.Actor, id uuid.UUID, status, note string) (transport.LeaveResponse, error) {
	if err := s.requireHRManage(ctx, actor); err != nil {
		return transport.LeaveResponse{}, err
	}

	var notePtr *string
	if note != "" {
		notePtr = &note
	}
	lr, err := s.store.DecideLeaveRequest(ctx, id, status, notePtr, actor.ID)
	if err != nil {
		return transport.LeaveResponse{}, err
	}

	s.bus.Publish(ctx, events.LeaveDecided{
		BaseEvent:  events.NewBaseEvent(),
		RequestID:  lr.ID,
		EmployeeID: lr.EmployeeID,
		Status:     lr.Status,
		Note:       note,
		ActorID:    actor.ID,
	})
	return transport.ToLeaveResponse(lr), nil
}

// OpenTicket files a support ticket for the calling employee.
func (s *Service) OpenTicket(ctx context.Context, actor identity.Actor, req transport.OpenTicketRequest) (transport.TicketResponse, error) {
	category := req.Category
	if category == "" {
		category = "GENERAL"
	}
	t, err := s.store.CreateTicket(ctx, repository.CreateTicketParams{
		Subject:     req.Subject,
		Description: req.Description,
		Category:    category,
		OpenedByID:  actor.ID,
	})
	if err != nil {
		return transport.TicketResponse{}, err
	}
	return transport.ToTicketResponse(t), nil
}

// ListTickets returns tickets across the organization, for HR managers.
func (s *Service) ListTickets(ctx context.Context, actor identity.Actor, status string) ([]transport.TicketResponse, error) {
	if err := s.requireHRManage(ctx, actor); err != nil {
		return nil, err
	}
	tickets, err := s.store.ListTickets(ctx, status, nil)
	if err != nil {
		return nil, err
	}
	return toTicketResponses(tickets), nil
}

// MyTickets returns tickets assigned to the caller.
func (s *Service) MyTickets(ctx context.Context, actor identity.Actor) ([]transport.TicketResponse, error) {
	tickets, err := s.store.ListTickets(ctx, "", &actor.ID)
	if err != nil {
		return nil, err
	}
	return toTicketResponses(tickets), nil
}

// AssignTicket hands a ticket to an assignee and notifies them.
func (s *Service) AssignTicket(ctx context.Context, actor identity.Actor, id, assigneeID uuid.UUID) (transport.TicketResponse, error) {
	if err := s.requireHRManage(ctx, actor); err != nil {
		return transport.TicketResponse{}, err
	}

	t, err := s.store.AssignTicket(ctx, id, assigneeID)
	if err != nil {
		return transport.TicketResponse{}, err
	}

	s.bus.Publish(ctx, events.TicketAssigned{
		BaseEvent:  events.NewBaseEvent(),
		TicketID:   t.ID,
		AssigneeID: assigneeID,
		Subject:    t.Subject,
		ActorID:    actor.ID,
	})
	return transport.ToTicketResponse(t), nil
}

// CloseTicket resolves a ticket. The assignee may close their own ticket;
// anyone else needs the HR manage capability.
func (s *Service) CloseTicket(ctx context.Context, actor identity.Actor, id uuid.UUID, resolution string) (transport.TicketResponse, error) {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		return transport.TicketResponse{}, err
	}
	if t.AssigneeID == nil || *t.AssigneeID != actor.ID {
		if err := s.requireHRManage(ctx, actor); err != nil {
			return transport.TicketResponse{}, err
		}
	}

	t, err = s.store.CloseTicket(ctx, id, resolution)
	if err != nil {
		return transport.TicketResponse{}, err
	}
	return transport.ToTicketResponse(t), nil
}

func toLeaveResponses(requests []repository.LeaveRequest) []transport.LeaveResponse {
	out := make([]transport.LeaveResponse, 0, len(requests))
	for _, lr := range requests {
		out = append(out, transport.ToLeaveResponse(lr))
	}
	return out
}

func toTicketResponses(tickets []repository.Ticket) []transport.TicketResponse {
	out := make([]transport.TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, transport.ToTicketResponse(t))
	}
	return out
}
