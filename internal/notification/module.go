// Package notification turns domain events into in-app notifications and
// queued emails. Subscribing here inverts the dependency: the cases, ledger
// and hr modules publish facts and never know how anyone gets told.
package notification

import (
	"context"
	"fmt"

	"careops_backend/internal/events"
	apphttp "careops_backend/internal/http"
	notifhandler "careops_backend/internal/notification/handler"
	"careops_backend/internal/notification/inapp"
	"careops_backend/internal/notification/outbox"
	"careops_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserDirectory resolves recipients for fan-out notifications.
type UserDirectory interface {
	ListUserIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error)
	GetUserEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

// Notifier delivers a single in-app notification.
type Notifier interface {
	Send(ctx context.Context, p inapp.SendParams) error
}

// EmailQueue stores an email for asynchronous delivery.
type EmailQueue interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
}

// insuranceHeadRole receives case-closure fan-outs.
const insuranceHeadRole = "INSURANCE_HEAD"

type Module struct {
	inapp     Notifier
	outbox    EmailQueue
	directory UserDirectory
	handler   *notifhandler.Handler
	log       *logger.Logger
}

// NewModule wires the notification module and subscribes its event handlers.
func NewModule(pool *pgxpool.Pool, bus events.Bus, directory UserDirectory, log *logger.Logger) *Module {
	inappSvc := inapp.NewService(inapp.NewRepository(pool), log)
	m := &Module{
		inapp:     inappSvc,
		outbox:    outbox.New(pool),
		directory: directory,
		handler:   notifhandler.New(inappSvc),
		log:       log,
	}
	m.subscribe(bus)
	return m
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// RegisterRoutes mounts the in-app notification endpoints.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	n := ctx.Protected.Group("/notifications")
	n.GET("", m.handler.List)
	n.GET("/unread-count", m.handler.UnreadCount)
	n.POST("/:id/read", m.handler.MarkRead)
	n.POST("/read-all", m.handler.MarkAllRead)
}

func (m *Module) subscribe(bus events.Bus) {
	bus.Subscribe(events.CaseDischarged{}.EventName(), events.HandlerFunc(m.onCaseDischarged))
	bus.Subscribe(events.LeadLost{}.EventName(), events.HandlerFunc(m.onLeadLost))
	bus.Subscribe(events.PreAuthRejected{}.EventName(), events.HandlerFunc(m.onPreAuthRejected))
	bus.Subscribe(events.PreAuthApproved{}.EventName(), events.HandlerFunc(m.onPreAuthApproved))
	bus.Subscribe(events.InsuranceCaseApproved{}.EventName(), events.HandlerFunc(m.onInsuranceCaseApproved))
	bus.Subscribe(events.LedgerEntryApproved{}.EventName(), events.HandlerFunc(m.onLedgerEntryApproved))
	bus.Subscribe(events.LedgerEntryDeleted{}.EventName(), events.HandlerFunc(m.onLedgerEntryDeleted))
	bus.Subscribe(events.LeaveDecided{}.EventName(), events.HandlerFunc(m.onLeaveDecided))
	bus.Subscribe(events.TicketAssigned{}.EventName(), events.HandlerFunc(m.onTicketAssigned))
}

// onCaseDischarged fans out to every insurance head: a discharged case is
// their cue to settle with the insurer.
func (m *Module) onCaseDischarged(ctx context.Context, event events.Event) error {
	e, ok := event.(events.CaseDischarged)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	heads, err := m.directory.ListUserIDsByRole(ctx, insuranceHeadRole)
	if err != nil {
		m.log.Error("failed to list insurance heads", "error", err)
		return err
	}

	title := "Case discharged"
	content := fmt.Sprintf("Case %s (%s) has been discharged.", e.Reference, e.PatientName)
	for _, userID := range heads {
		m.notify(ctx, userID, title, content, e.LeadID, "lead", "success")
		m.queueEmail(ctx, userID, "case_discharged", title, e)
	}
	return nil
}

func (m *Module) onLeadLost(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadLost)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	heads, err := m.directory.ListUserIDsByRole(ctx, insuranceHeadRole)
	if err != nil {
		m.log.Error("failed to list insurance heads", "error", err)
		return err
	}
	content := fmt.Sprintf("Lead %s (%s) was marked lost: %s", e.Reference, e.PatientName, e.LostReason)
	for _, userID := range heads {
		m.notify(ctx, userID, "Lead lost", content, e.LeadID, "lead", "warning")
	}
	return nil
}

func (m *Module) onPreAuthRejected(ctx context.Context, event events.Event) error {
	e, ok := event.(events.PreAuthRejected)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if e.AssignedBDID == nil {
		return nil
	}

	title := "Pre-authorization rejected"
	content := fmt.Sprintf("Pre-authorization for case %s was rejected: %s", e.Reference, e.Reason)
	m.notify(ctx, *e.AssignedBDID, title, content, e.LeadID, "lead", "error")
	m.queueEmail(ctx, *e.AssignedBDID, "preauth_rejected", title, e)
	return nil
}

func (m *Module) onPreAuthApproved(ctx context.Context, event events.Event) error {
	e, ok := event.(events.PreAuthApproved)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if e.AssignedBDID == nil {
		return nil
	}

	content := fmt.Sprintf("Pre-authorization for case %s was approved.", e.Reference)
	m.notify(ctx, *e.AssignedBDID, "Pre-authorization approved", content, e.LeadID, "lead", "success")
	return nil
}

func (m *Module) onInsuranceCaseApproved(ctx context.Context, event events.Event) error {
	e, ok := event.(events.InsuranceCaseApproved)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if e.AssignedBDID == nil {
		return nil
	}

	content := fmt.Sprintf("Insurance case for %s was approved.", e.Reference)
	if e.ApprovalAmount != "" {
		content = fmt.Sprintf("Insurance case for %s was approved for %s.", e.Reference, e.ApprovalAmount)
	}
	m.notify(ctx, *e.AssignedBDID, "Insurance case approved", content, e.LeadID, "lead", "success")
	return nil
}

func (m *Module) onLedgerEntryApproved(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LedgerEntryApproved)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if e.CreatedByID == e.ActorID {
		return nil
	}

	content := fmt.Sprintf("Your %s entry %s for %s was approved.", e.TransactionType, e.SerialNumber, e.Amount)
	m.notify(ctx, e.CreatedByID, "Ledger entry approved", content, e.EntryID, "ledger_entry", "success")
	return nil
}

func (m *Module) onLedgerEntryDeleted(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LedgerEntryDeleted)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	if e.CreatedByID == e.ActorID {
		return nil
	}

	content := fmt.Sprintf("Your entry %s was deleted: %s", e.SerialNumber, e.Reason)
	m.notify(ctx, e.CreatedByID, "Ledger entry deleted", content, e.EntryID, "ledger_entry", "warning")
	return nil
}

func (m *Module) onLeaveDecided(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeaveDecided)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	title := fmt.Sprintf("Leave request %s", e.Status)
	content := fmt.Sprintf("Your leave request was %s.", e.Status)
	if e.Note != "" {
		content = fmt.Sprintf("Your leave request was %s: %s", e.Status, e.Note)
	}
	m.notify(ctx, e.EmployeeID, title, content, e.RequestID, "leave_request", "info")
	m.queueEmail(ctx, e.EmployeeID, "leave_decided", title, e)
	return nil
}

func (m *Module) onTicketAssigned(ctx context.Context, event events.Event) error {
	e, ok := event.(events.TicketAssigned)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	content := fmt.Sprintf("Ticket assigned to you: %s", e.Subject)
	m.notify(ctx, e.AssigneeID, "Ticket assigned", content, e.TicketID, "ticket", "info")
	return nil
}

func (m *Module) notify(ctx context.Context, userID uuid.UUID, title, content string, resourceID uuid.UUID, resourceType, category string) {
	rid := resourceID
	err := m.inapp.Send(ctx, inapp.SendParams{
		UserID:       userID,
		Title:        title,
		Content:      content,
		ResourceID:   &rid,
		ResourceType: resourceType,
		Category:     category,
	})
	if err != nil {
		m.log.Error("failed to send in-app notification", "error", err, "userId", userID)
	}
}

// queueEmail stores the email durably; the scheduler worker does the send.
func (m *Module) queueEmail(ctx context.Context, userID uuid.UUID, kind, subject string, payload any) {
	recipient, err := m.directory.GetUserEmail(ctx, userID)
	if err != nil {
		m.log.Error("failed to resolve email recipient", "error", err, "userId", userID)
		return
	}
	if _, err := m.outbox.Insert(ctx, outbox.InsertParams{
		Kind:      kind,
		Recipient: recipient,
		Subject:   subject,
		Payload:   payload,
	}); err != nil {
		m.log.Error("failed to queue outbox email", "error", err, "kind", kind)
	}
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
