package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"careops_backend/internal/events"
	"careops_backend/internal/hr/repository"
	"careops_backend/internal/hr/transport"
	"careops_backend/internal/identity"
	"careops_backend/platform/apperr"
)

type fakeStore struct {
	attendance map[string]repository.AttendanceRecord
	leaves     map[uuid.UUID]repository.LeaveRequest
	tickets    map[uuid.UUID]repository.Ticket
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		attendance: map[string]repository.AttendanceRecord{},
		leaves:     map[uuid.UUID]repository.LeaveRequest{},
		tickets:    map[uuid.UUID]repository.Ticket{},
	}
}

func attendanceKey(employeeID uuid.UUID, day time.Time) string {
	return employeeID.String() + "/" + day.Format("2006-01-02")
}

func (f *fakeStore) UpsertAttendance(_ context.Context, p repository.UpsertAttendanceParams) (repository.AttendanceRecord, error) {
	key := attendanceKey(p.EmployeeID, p.Day)
	rec, ok := f.attendance[key]
	if !ok {
		rec = repository.AttendanceRecord{
			ID:         uuid.New(),
			EmployeeID: p.EmployeeID,
			Day:        p.Day,
		}
	}
	if rec.CheckIn == nil || (p.CheckIn != nil && p.CheckIn.Before(*rec.CheckIn)) {
		rec.CheckIn = p.CheckIn
	}
	if rec.CheckOut == nil || (p.CheckOut != nil && p.CheckOut.After(*rec.CheckOut)) {
		rec.CheckOut = p.CheckOut
	}
	rec.Source = p.Source
	f.attendance[key] = rec
	return rec, nil
}

func (f *fakeStore) ListAttendance(_ context.Context, employeeID uuid.UUID, from, to time.Time) ([]repository.AttendanceRecord, error) {
	var out []repository.AttendanceRecord
	for _, rec := range f.attendance {
		if rec.EmployeeID == employeeID && !rec.Day.Before(from) && !rec.Day.After(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateLeaveRequest(_ context.Context, p repository.CreateLeaveParams) (repository.LeaveRequest, error) {
	lr := repository.LeaveRequest{
		ID:         uuid.New(),
		EmployeeID: p.EmployeeID,
		StartDate:  p.StartDate,
		EndDate:    p.EndDate,
		LeaveType:  p.LeaveType,
		Reason:     p.Reason,
		Status:     repository.LeaveStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	f.leaves[lr.ID] = lr
	return lr, nil
}

func (f *fakeStore) GetLeaveRequest(_ context.Context, id uuid.UUID) (repository.LeaveRequest, error) {
	lr, ok := f.leaves[id]
	if !ok {
		return repository.LeaveRequest{}, apperr.NotFound("leave request not found")
	}
	return lr, nil
}

func (f *fakeStore) ListLeaveRequests(_ context.Context, employeeID *uuid.UUID, status string) ([]repository.LeaveRequest, error) {
	var out []repository.LeaveRequest
	for _, lr := range f.leaves {
		if employeeID != nil && lr.EmployeeID != *employeeID {
			continue
		}
		if status != "" && lr.Status != status {
			continue
		}
		out = append(out, lr)
	}
	return out, nil
}

func (f *fakeStore) DecideLeaveRequest(_ context.Context, id uuid.UUID, status string, note *string, decidedBy uuid.UUID) (repository.LeaveRequest, error) {
	lr, ok := f.leaves[id]
	if !ok {
		return repository.LeaveRequest{}, apperr.NotFound("leave request not found")
	}
	if lr.Status != repository.LeaveStatusPending {
		return repository.LeaveRequest{}, apperr.Conflict("leave request has already been decided")
	}
	now := time.Now().UTC()
	lr.Status = status
	lr.DecisionNote = note
	lr.DecidedByID = &decidedBy
	lr.DecidedAt = &now
	f.leaves[id] = lr
	return lr, nil
}

func (f *fakeStore) CreateTicket(_ context.Context, p repository.CreateTicketParams) (repository.Ticket, error) {
	t := repository.Ticket{
		ID:          uuid.New(),
		Subject:     p.Subject,
		Description: p.Description,
		Category:    p.Category,
		Status:      repository.TicketStatusOpen,
		OpenedByID:  p.OpenedByID,
		CreatedAt:   time.Now().UTC(),
	}
	f.tickets[t.ID] = t
	return t, nil
}

func (f *fakeStore) GetTicket(_ context.Context, id uuid.UUID) (repository.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return repository.Ticket{}, apperr.NotFound("ticket not found")
	}
	return t, nil
}

func (f *fakeStore) ListTickets(_ context.Context, status string, assigneeID *uuid.UUID) ([]repository.Ticket, error) {
	var out []repository.Ticket
	for _, t := range f.tickets {
		if status != "" && t.Status != status {
			continue
		}
		if assigneeID != nil && (t.AssigneeID == nil || *t.AssigneeID != *assigneeID) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) AssignTicket(_ context.Context, id, assigneeID uuid.UUID) (repository.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return repository.Ticket{}, apperr.NotFound("ticket not found")
	}
	if t.Status == repository.TicketStatusClosed {
		return repository.Ticket{}, apperr.Conflict("ticket is closed")
	}
	t.Status = repository.TicketStatusAssigned
	t.AssigneeID = &assigneeID
	f.tickets[id] = t
	return t, nil
}

func (f *fakeStore) CloseTicket(_ context.Context, id uuid.UUID, resolution string) (repository.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return repository.Ticket{}, apperr.NotFound("ticket not found")
	}
	if t.Status == repository.TicketStatusClosed {
		return repository.Ticket{}, apperr.Conflict("ticket is already closed")
	}
	now := time.Now().UTC()
	t.Status = repository.TicketStatusClosed
	t.Resolution = &resolution
	t.ClosedAt = &now
	f.tickets[id] = t
	return t, nil
}

type fakeAuthz struct{}

func (fakeAuthz) HasPermission(_ context.Context, actor identity.Actor, capability string) (bool, error) {
	if capability != identity.CapHRManage {
		return true, nil
	}
	return actor.Role == identity.RoleAdmin || actor.Role == "HR_MANAGER", nil
}

type captureBus struct {
	published []events.Event
}

func (b *captureBus) Publish(_ context.Context, e events.Event) { b.published = append(b.published, e) }
func (b *captureBus) PublishSync(_ context.Context, e events.Event) error {
	b.published = append(b.published, e)
	return nil
}
func (b *captureBus) Subscribe(string, events.Handler) {}

type fakePunches struct {
	punches []Punch
	err     error
}

func (f *fakePunches) Punches(context.Context, time.Time) ([]Punch, error) {
	return f.punches, f.err
}

func newService(punches PunchProvider) (*Service, *fakeStore, *captureBus) {
	store := newFakeStore()
	bus := &captureBus{}
	return New(store, fakeAuthz{}, bus, punches), store, bus
}

func TestApplyAndApproveLeave(t *testing.T) {
	svc, _, bus := newService(nil)
	employee := identity.Actor{ID: uuid.New(), Role: "EMPLOYEE"}
	manager := identity.Actor{ID: uuid.New(), Role: "HR_MANAGER"}

	lr, err := svc.ApplyLeave(context.Background(), employee, transport.ApplyLeaveRequest{
		StartDate: "2026-09-10",
		EndDate:   "2026-09-12",
		LeaveType: "SICK",
		Reason:    "fever",
	})
	if err != nil {
		t.Fatalf("ApplyLeave: %v", err)
	}
	if lr.Status != repository.LeaveStatusPending {
		t.Fatalf("new request status = %q, want PENDING", lr.Status)
	}

	decided, err := svc.ApproveLeave(context.Background(), manager, lr.ID, "get well soon")
	if err != nil {
		t.Fatalf("ApproveLeave: %v", err)
	}
	if decided.Status != repository.LeaveStatusApproved {
		t.Errorf("status = %q, want APPROVED", decided.Status)
	}
	if decided.DecidedByID == nil || *decided.DecidedByID != manager.ID {
		t.Errorf("decidedBy = %v, want the manager", decided.DecidedByID)
	}

	if len(bus.published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(bus.published))
	}
	e, ok := bus.published[0].(events.LeaveDecided)
	if !ok {
		t.Fatalf("published %T, want LeaveDecided", bus.published[0])
	}
	if e.EmployeeID != employee.ID || e.Status != repository.LeaveStatusApproved {
		t.Errorf("event = %+v", e)
	}
}

func TestDecideLeaveTwiceIsConflict(t *testing.T) {
	svc, _, bus := newService(nil)
	employee := identity.Actor{ID: uuid.New(), Role: "EMPLOYEE"}
	manager := identity.Actor{ID: uuid.New(), Role: "HR_MANAGER"}

	lr, err := svc.ApplyLeave(context.Background(), employee, transport.ApplyLeaveRequest{
		StartDate: "2026-09-10", EndDate: "2026-09-10", LeaveType: "CASUAL", Reason: "errand",
	})
	if err != nil {
		t.Fatalf("ApplyLeave: %v", err)
	}
	if _, err := svc.RejectLeave(context.Background(), manager, lr.ID, "short notice"); err != nil {
		t.Fatalf("RejectLeave: %v", err)
	}

	_, err = svc.ApproveLeave(context.Background(), manager, lr.ID, "")
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict on second decision, got %v", err)
	}
	if len(bus.published) != 1 {
		t.Errorf("expected 1 event, got %d", len(bus.published))
	}
}

func TestApplyLeaveValidation(t *testing.T) {
	svc, _, _ := newService(nil)
	employee := identity.Actor{ID: uuid.New(), Role: "EMPLOYEE"}

	cases := []struct {
		name string
		req  transport.ApplyLeaveRequest
	}{
		{"end before start", transport.ApplyLeaveRequest{StartDate: "2026-09-12", EndDate: "2026-09-10", LeaveType: "SICK", Reason: "x"}},
		{"unknown type", transport.ApplyLeaveRequest{StartDate: "2026-09-10", EndDate: "2026-09-10", LeaveType: "SABBATICAL", Reason: "x"}},
		{"bad date", transport.ApplyLeaveRequest{StartDate: "10-09-2026", EndDate: "2026-09-10", LeaveType: "SICK", Reason: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ApplyLeave(context.Background(), employee, tc.req)
			if apperr.GetKind(err) != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestEmployeeCannotDecideLeave(t *testing.T) {
	svc, _, _ := newService(nil)
	employee := identity.Actor{ID: uuid.New(), Role: "EMPLOYEE"}

	lr, err := svc.ApplyLeave(context.Background(), employee, transport.ApplyLeaveRequest{
		StartDate: "2026-09-10", EndDate: "2026-09-10", LeaveType: "SICK", Reason: "x",
	})
	if err != nil {
		t.Fatalf("ApplyLeave: %v", err)
	}

	_, err = svc.ApproveLeave(context.Background(), employee, lr.ID, "")
	if apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAssignTicketPublishesEvent(t *testing.T) {
	svc, _, bus := newService(nil)
	employee := identity.Actor{ID: uuid.New(), Role: "EMPLOYEE"}
	manager := identity.Actor{ID: uuid.New(), Role: "HR_MANAGER"}
	assignee := uuid.New()

	ticket, err := svc.OpenTicket(context.Background(), employee, transport.OpenTicketRequest{
		Subject:     "laptop battery failing",
		Description: "dies within an hour off charger",
	})
	if err != nil {
		t.Fatalf("OpenTicket: %v", err)
	}
	if ticket.Category != "GENERAL" {
		t.Errorf("default category = %q, want GENERAL", ticket.Category)
	}

	assigned, err := svc.AssignTicket(context.Background(), manager, ticket.ID, assignee)
	if err != nil {
		t.Fatalf("AssignTicket: %v", err)
	}
	if assigned.Status != repository.TicketStatusAssigned {
		t.Errorf("status = %q, want ASSIGNED", assigned.Status)
	}

	if len(bus.published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(bus.published))
	}
	e, ok := bus.published[0].(events.TicketAssigned)
	if !ok {
		t.Fatalf("published %T, want TicketAssigned", bus.published[0])
	}
	if e.AssigneeID != assignee || e.Subject != "laptop battery failing" {
		t.Errorf("event = %+v", e)
	}
}

func TestAssigneeMayCloseOwnTicket(t *testing.T) {
	svc, _, _ := newService(nil)
	employee := identity.Actor{ID: uuid.New(), Role: "EMPLOYEE"}
	manager := identity.Actor{ID: uuid.New(), Role: "HR_MANAGER"}
	assignee := identity.Actor{ID: uuid.New(), Role: "EMPLOYEE"}

	ticket, err := svc.OpenTicket(context.Background(), employee, transport.OpenTicketRequest{
		Subject: "vpn access", Description: "cannot reach the billing VPN",
	})
	if err != nil {
		t.Fatalf("OpenTicket: %v", err)
	}
	if _, err := svc.AssignTicket(context.Background(), manager, ticket.ID, assignee.ID); err != nil {
		t.Fatalf("AssignTicket: %v", err)
	}

	closed, err := svc.CloseTicket(context.Background(), assignee, ticket.ID, "access granted")
	if err != nil {
		t.Fatalf("CloseTicket: %v", err)
	}
	if closed.Status != repository.TicketStatusClosed {
		t.Errorf("status = %q, want CLOSED", closed.Status)
	}

	_, err = svc.CloseTicket(context.Background(), assignee, ticket.ID, "again")
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("expected conflict on double close, got %v", err)
	}
}

func TestStrangerCannotCloseTicket(t *testing.T) {
	svc, _, _ := newService(nil)
	employee := identity.Actor{ID: uuid.New(), Role: "EMPLOYEE"}
	stranger := identity.Actor{ID: uuid.New(), Role: "EMPLOYEE"}

	ticket, err := svc.OpenTicket(context.Background(), employee, transport.OpenTicketRequest{
		Subject: "chair broken", Description: "armrest came off",
	})
	if err != nil {
		t.Fatalf("OpenTicket: %v", err)
	}

	_, err = svc.CloseTicket(context.Background(), stranger, ticket.ID, "fixed")
	if apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSyncAttendanceUpserts(t *testing.T) {
	day := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	emp := uuid.New()
	in := day.Add(9 * time.Hour)
	outEarly := day.Add(13 * time.Hour)
	outLate := day.Add(18 * time.Hour)

	feed := &fakePunches{punches: []Punch{
		{EmployeeID: emp, Day: day, CheckIn: &in, CheckOut: &outEarly, Source: "biometric"},
		{EmployeeID: emp, Day: day, CheckIn: &in, CheckOut: &outLate, Source: "biometric"},
	}}
	svc, store, _ := newService(feed)

	n, err := svc.SyncAttendance(context.Background(), day)
	if err != nil {
		t.Fatalf("SyncAttendance: %v", err)
	}
	if n != 2 {
		t.Errorf("synced = %d, want 2", n)
	}

	rec := store.attendance[attendanceKey(emp, day)]
	if rec.CheckOut == nil || !rec.CheckOut.Equal(outLate) {
		t.Errorf("check-out = %v, want the later punch %v", rec.CheckOut, outLate)
	}
	if rec.CheckIn == nil || !rec.CheckIn.Equal(in) {
		t.Errorf("check-in = %v, want %v", rec.CheckIn, in)
	}
}

func TestMyAttendanceRejectsInvertedRange(t *testing.T) {
	svc, _, _ := newService(nil)
	actor := identity.Actor{ID: uuid.New(), Role: "EMPLOYEE"}
	from := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, -5)

	_, err := svc.MyAttendance(context.Background(), actor, from, to)
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
