package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"careops_backend/internal/identity"
	"careops_backend/internal/ledger/domain"
	"careops_backend/internal/ledger/repository"
	"careops_backend/internal/ledger/transport"
	"careops_backend/platform/apperr"
	"careops_backend/platform/events"
)

// fakeStore reproduces the repository's transactional semantics in memory:
// approvals apply balance deltas, deletes reverse them, and every action
// appends an audit row.
type fakeStore struct {
	modes   map[uuid.UUID]repository.PaymentMode
	entries map[uuid.UUID]repository.Entry
	edits   map[uuid.UUID]repository.EditRequest
	audits  map[uuid.UUID][]repository.AuditLog
	seq     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		modes:   make(map[uuid.UUID]repository.PaymentMode),
		entries: make(map[uuid.UUID]repository.Entry),
		edits:   make(map[uuid.UUID]repository.EditRequest),
		audits:  make(map[uuid.UUID][]repository.AuditLog),
	}
}

func (f *fakeStore) audit(entryID uuid.UUID, action string, actorID uuid.UUID, detail *string) {
	f.audits[entryID] = append(f.audits[entryID], repository.AuditLog{
		ID: uuid.New(), EntryID: entryID, Action: action, ActorID: actorID, Detail: detail,
	})
}

func (f *fakeStore) shift(deltas map[uuid.UUID]decimal.Decimal) error {
	for id := range deltas {
		if _, ok := f.modes[id]; !ok {
			return apperr.NotFound("payment mode not found")
		}
	}
	for id, d := range deltas {
		m := f.modes[id]
		m.Balance = m.Balance.Add(d)
		f.modes[id] = m
	}
	return nil
}

func (f *fakeStore) CreatePaymentMode(_ context.Context, name string, opening decimal.Decimal) (repository.PaymentMode, error) {
	for _, m := range f.modes {
		if m.Name == name {
			return repository.PaymentMode{}, apperr.Conflict("payment mode with this name already exists")
		}
	}
	m := repository.PaymentMode{ID: uuid.New(), Name: name, OpeningBalance: opening, Balance: opening, IsActive: true}
	f.modes[m.ID] = m
	return m, nil
}

func (f *fakeStore) GetPaymentMode(_ context.Context, id uuid.UUID) (repository.PaymentMode, error) {
	m, ok := f.modes[id]
	if !ok {
		return repository.PaymentMode{}, apperr.NotFound("payment mode not found")
	}
	return m, nil
}

func (f *fakeStore) ListPaymentModes(_ context.Context) ([]repository.PaymentMode, error) {
	var out []repository.PaymentMode
	for _, m := range f.modes {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) CreateEntry(_ context.Context, p repository.CreateEntryParams) (repository.Entry, error) {
	f.seq++
	e := repository.Entry{
		ID:              uuid.New(),
		SerialNumber:    fmt.Sprintf("LED-2025-%04d", f.seq),
		TransactionType: p.TransactionType,
		Amount:          p.Amount,
		PaymentModeID:   p.PaymentModeID,
		FromModeID:      p.FromModeID,
		ToModeID:        p.ToModeID,
		Description:     p.Description,
		Status:          domain.StatusPending,
		CreatedByID:     p.CreatedByID,
	}
	f.entries[e.ID] = e
	f.audit(e.ID, domain.ActionCreated, p.CreatedByID, nil)
	return e, nil
}

func (f *fakeStore) GetEntry(_ context.Context, id uuid.UUID) (repository.Entry, error) {
	e, ok := f.entries[id]
	if !ok {
		return repository.Entry{}, apperr.NotFound("ledger entry not found")
	}
	return e, nil
}

func (f *fakeStore) ListEntries(_ context.Context, filter repository.EntryFilter) ([]repository.Entry, error) {
	var out []repository.Entry
	for _, e := range f.entries {
		if !filter.IncludeDeleted && e.Deleted {
			continue
		}
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) ApproveEntry(ctx context.Context, entryID, actorID uuid.UUID) (repository.Entry, error) {
	e, err := f.GetEntry(ctx, entryID)
	if err != nil {
		return repository.Entry{}, err
	}
	if e.Deleted {
		return repository.Entry{}, apperr.Conflict("ledger entry has been deleted")
	}
	if e.Status != domain.StatusPending {
		return repository.Entry{}, apperr.Conflict("ledger entry is already finalized")
	}
	if err := f.shift(e.Movement().Deltas()); err != nil {
		return repository.Entry{}, err
	}
	e.Status = domain.StatusApproved
	e.ApprovedByID = &actorID
	f.entries[entryID] = e
	f.audit(entryID, domain.ActionApproved, actorID, nil)
	return e, nil
}

func (f *fakeStore) RejectEntry(ctx context.Context, entryID, actorID uuid.UUID, note *string) (repository.Entry, error) {
	e, err := f.GetEntry(ctx, entryID)
	if err != nil {
		return repository.Entry{}, err
	}
	if e.Deleted {
		return repository.Entry{}, apperr.Conflict("ledger entry has been deleted")
	}
	if e.Status != domain.StatusPending {
		return repository.Entry{}, apperr.Conflict("ledger entry is already finalized")
	}
	e.Status = domain.StatusRejected
	f.entries[entryID] = e
	f.audit(entryID, domain.ActionRejected, actorID, note)
	return e, nil
}

func (f *fakeStore) SoftDeleteEntry(ctx context.Context, entryID, actorID uuid.UUID, reason string) (repository.Entry, error) {
	e, err := f.GetEntry(ctx, entryID)
	if err != nil {
		return repository.Entry{}, err
	}
	if e.Deleted {
		return repository.Entry{}, apperr.Conflict("ledger entry is already deleted")
	}
	if e.Status == domain.StatusApproved {
		if err := f.shift(e.Movement().ReverseDeltas()); err != nil {
			return repository.Entry{}, err
		}
	}
	e.Deleted = true
	e.DeletedReason = &reason
	f.entries[entryID] = e
	f.audit(entryID, domain.ActionDeleted, actorID, &reason)
	return e, nil
}

func (f *fakeStore) ListAuditLog(_ context.Context, entryID uuid.UUID) ([]repository.AuditLog, error) {
	return f.audits[entryID], nil
}

func (f *fakeStore) RequestEdit(ctx context.Context, entryID uuid.UUID, p repository.EditRequestParams) (repository.EditRequest, error) {
	e, err := f.GetEntry(ctx, entryID)
	if err != nil {
		return repository.EditRequest{}, err
	}
	if e.Deleted {
		return repository.EditRequest{}, apperr.Conflict("ledger entry has been deleted")
	}
	if e.Status == domain.StatusRejected {
		return repository.EditRequest{}, apperr.Conflict("rejected ledger entry cannot be edited")
	}
	for _, edit := range f.edits {
		if edit.EntryID == entryID && edit.Status == domain.EditPending {
			return repository.EditRequest{}, apperr.Conflict("ledger entry already has a pending edit")
		}
	}
	edit := repository.EditRequest{
		ID:            uuid.New(),
		EntryID:       entryID,
		Amount:        p.Amount,
		Description:   p.Description,
		PaymentModeID: p.PaymentModeID,
		FromModeID:    p.FromModeID,
		ToModeID:      p.ToModeID,
		Status:        domain.EditPending,
		RequestedByID: p.RequestedByID,
	}
	f.edits[edit.ID] = edit
	f.audit(entryID, domain.ActionEditRequested, p.RequestedByID, nil)
	return edit, nil
}

func (f *fakeStore) GetEditRequest(_ context.Context, id uuid.UUID) (repository.EditRequest, error) {
	e, ok := f.edits[id]
	if !ok {
		return repository.EditRequest{}, apperr.NotFound("edit request not found")
	}
	return e, nil
}

func (f *fakeStore) ApproveEditRequest(ctx context.Context, editID, actorID uuid.UUID) (repository.EditRequest, repository.Entry, error) {
	edit, err := f.GetEditRequest(ctx, editID)
	if err != nil {
		return repository.EditRequest{}, repository.Entry{}, err
	}
	if edit.Status != domain.EditPending {
		return repository.EditRequest{}, repository.Entry{}, apperr.Conflict("no pending edit for this request")
	}
	entry := f.entries[edit.EntryID]
	if entry.Deleted {
		return repository.EditRequest{}, repository.Entry{}, apperr.Conflict("ledger entry has been deleted")
	}

	next := entry
	next.Amount = edit.Amount
	if edit.PaymentModeID != nil {
		next.PaymentModeID = edit.PaymentModeID
	}
	if edit.FromModeID != nil {
		next.FromModeID = edit.FromModeID
	}
	if edit.ToModeID != nil {
		next.ToModeID = edit.ToModeID
	}

	if entry.Status == domain.StatusApproved {
		if err := f.shift(entry.Movement().ReverseDeltas()); err != nil {
			return repository.EditRequest{}, repository.Entry{}, err
		}
		if err := f.shift(next.Movement().Deltas()); err != nil {
			return repository.EditRequest{}, repository.Entry{}, err
		}
	}
	if edit.Description != nil {
		next.Description = edit.Description
	}
	f.entries[next.ID] = next
	edit.Status = domain.EditApproved
	edit.DecidedByID = &actorID
	f.edits[editID] = edit
	f.audit(entry.ID, domain.ActionEditApproved, actorID, nil)
	return edit, next, nil
}

func (f *fakeStore) RejectEditRequest(ctx context.Context, editID, actorID uuid.UUID) (repository.EditRequest, error) {
	edit, err := f.GetEditRequest(ctx, editID)
	if err != nil {
		return repository.EditRequest{}, err
	}
	if f.entries[edit.EntryID].Deleted {
		return repository.EditRequest{}, apperr.Conflict("ledger entry has been deleted")
	}
	if edit.Status != domain.EditPending {
		return repository.EditRequest{}, apperr.Conflict("no pending edit for this request")
	}
	edit.Status = domain.EditRejected
	edit.DecidedByID = &actorID
	f.edits[editID] = edit
	f.audit(edit.EntryID, domain.ActionEditRejected, actorID, nil)
	return edit, nil
}

type allowAll struct{ denied map[string]bool }

func (a *allowAll) HasPermission(_ context.Context, actor identity.Actor, capability string) (bool, error) {
	if a.denied[capability] {
		return false, nil
	}
	return true, nil
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

func newTestService() (*Service, *fakeStore, *captureBus) {
	store := newFakeStore()
	bus := &captureBus{}
	return New(store, &allowAll{}, bus), store, bus
}

func finance() identity.Actor {
	return identity.Actor{ID: uuid.New(), Role: identity.RoleFinanceManager}
}

func seedMode(t *testing.T, store *fakeStore, name, balance string) repository.PaymentMode {
	t.Helper()
	d, err := decimal.NewFromString(balance)
	if err != nil {
		t.Fatalf("bad balance: %v", err)
	}
	m, err := store.CreatePaymentMode(context.Background(), name, d)
	if err != nil {
		t.Fatalf("seed mode: %v", err)
	}
	return m
}

func balanceOf(t *testing.T, store *fakeStore, id uuid.UUID) decimal.Decimal {
	t.Helper()
	m, err := store.GetPaymentMode(context.Background(), id)
	if err != nil {
		t.Fatalf("get mode: %v", err)
	}
	return m.Balance
}

func countAudit(logs []repository.AuditLog, action string) int {
	n := 0
	for _, l := range logs {
		if l.Action == action {
			n++
		}
	}
	return n
}

func TestCreditApproveDeleteRoundTrip(t *testing.T) {
	svc, store, bus := newTestService()
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "5000")

	modeID := cash.ID.String()
	entry, err := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeCredit, Amount: "1000", PaymentModeID: &modeID,
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	// Serials are formatted references, not bare sequence numbers.
	if !strings.HasPrefix(entry.SerialNumber, "LED-") {
		t.Fatalf("serial number = %q, want LED- prefix", entry.SerialNumber)
	}
	if !balanceOf(t, store, cash.ID).Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("balance moved before approval: %s", balanceOf(t, store, cash.ID))
	}

	if _, err := svc.ApproveEntry(ctx, actor, entry.ID); err != nil {
		t.Fatalf("ApproveEntry: %v", err)
	}
	if !balanceOf(t, store, cash.ID).Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("balance after approve = %s, want 6000", balanceOf(t, store, cash.ID))
	}

	if _, err := svc.SoftDeleteEntry(ctx, actor, entry.ID, transport.DeleteEntryRequest{Reason: "duplicate entry"}); err != nil {
		t.Fatalf("SoftDeleteEntry: %v", err)
	}
	if !balanceOf(t, store, cash.ID).Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("balance after delete = %s, want 5000", balanceOf(t, store, cash.ID))
	}

	logs, _ := store.ListAuditLog(ctx, entry.ID)
	if countAudit(logs, domain.ActionDeleted) != 1 {
		t.Fatalf("DELETED audit rows = %d, want 1", countAudit(logs, domain.ActionDeleted))
	}
	// The entry row survives, flagged deleted.
	got := store.entries[entry.ID]
	if !got.Deleted || got.DeletedReason == nil {
		t.Fatalf("entry not soft-deleted: %+v", got)
	}

	names := []string{}
	for _, e := range bus.published {
		names = append(names, e.EventName())
	}
	if len(names) != 2 || names[0] != "ledger.entry.approved" || names[1] != "ledger.entry.deleted" {
		t.Fatalf("published = %v", names)
	}
}

func TestSelfTransferApplyAndDeleteRestores(t *testing.T) {
	svc, store, _ := newTestService()
	actor := finance()
	ctx := context.Background()
	x := seedMode(t, store, "HDFC Current", "1000")
	y := seedMode(t, store, "Petty Cash", "200")

	fromID, toID := x.ID.String(), y.ID.String()
	entry, err := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeSelfTransfer, Amount: "500", FromModeID: &fromID, ToModeID: &toID,
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if _, err := svc.ApproveEntry(ctx, actor, entry.ID); err != nil {
		t.Fatalf("ApproveEntry: %v", err)
	}
	if !balanceOf(t, store, x.ID).Equal(decimal.NewFromInt(500)) || !balanceOf(t, store, y.ID).Equal(decimal.NewFromInt(700)) {
		t.Fatalf("after transfer x=%s y=%s, want 500/700", balanceOf(t, store, x.ID), balanceOf(t, store, y.ID))
	}

	if _, err := svc.SoftDeleteEntry(ctx, actor, entry.ID, transport.DeleteEntryRequest{Reason: "booked in error"}); err != nil {
		t.Fatalf("SoftDeleteEntry: %v", err)
	}
	if !balanceOf(t, store, x.ID).Equal(decimal.NewFromInt(1000)) || !balanceOf(t, store, y.ID).Equal(decimal.NewFromInt(200)) {
		t.Fatalf("after delete x=%s y=%s, want 1000/200", balanceOf(t, store, x.ID), balanceOf(t, store, y.ID))
	}
}

func TestRejectEntryLeavesBalances(t *testing.T) {
	svc, store, bus := newTestService()
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "5000")

	modeID := cash.ID.String()
	entry, _ := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeDebit, Amount: "300", PaymentModeID: &modeID,
	})
	if _, err := svc.RejectEntry(ctx, actor, entry.ID, transport.RejectEntryRequest{}); err != nil {
		t.Fatalf("RejectEntry: %v", err)
	}
	if !balanceOf(t, store, cash.ID).Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("balance moved on reject: %s", balanceOf(t, store, cash.ID))
	}
	if len(bus.published) != 0 {
		t.Fatalf("events published on reject")
	}
	// A rejected entry cannot be approved after the fact.
	if _, err := svc.ApproveEntry(ctx, actor, entry.ID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("approve after reject kind = %v, want conflict", apperr.GetKind(err))
	}
}

func TestDeletePendingEntryLeavesBalances(t *testing.T) {
	svc, store, _ := newTestService()
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "5000")

	modeID := cash.ID.String()
	entry, _ := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeCredit, Amount: "1000", PaymentModeID: &modeID,
	})
	if _, err := svc.SoftDeleteEntry(ctx, actor, entry.ID, transport.DeleteEntryRequest{Reason: "typo"}); err != nil {
		t.Fatalf("SoftDeleteEntry: %v", err)
	}
	if !balanceOf(t, store, cash.ID).Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("deleting a pending entry moved the balance: %s", balanceOf(t, store, cash.ID))
	}
	// Double delete is a conflict and must not reverse twice.
	if _, err := svc.SoftDeleteEntry(ctx, actor, entry.ID, transport.DeleteEntryRequest{Reason: "again"}); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("double delete kind = %v, want conflict", apperr.GetKind(err))
	}
	logs, _ := store.ListAuditLog(ctx, entry.ID)
	if countAudit(logs, domain.ActionDeleted) != 1 {
		t.Fatalf("DELETED audit rows = %d, want 1", countAudit(logs, domain.ActionDeleted))
	}
}

func TestDoubleApproveIsConflict(t *testing.T) {
	svc, store, bus := newTestService()
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "0")

	modeID := cash.ID.String()
	entry, _ := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeCredit, Amount: "100", PaymentModeID: &modeID,
	})
	if _, err := svc.ApproveEntry(ctx, actor, entry.ID); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if _, err := svc.ApproveEntry(ctx, actor, entry.ID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("second approve kind = %v, want conflict", apperr.GetKind(err))
	}
	if !balanceOf(t, store, cash.ID).Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance applied twice: %s", balanceOf(t, store, cash.ID))
	}
	if len(bus.published) != 1 {
		t.Fatalf("published %d events, want 1", len(bus.published))
	}
}

func TestCreateEntryValidation(t *testing.T) {
	svc, store, _ := newTestService()
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "0")
	modeID := cash.ID.String()

	tests := []struct {
		name string
		req  transport.CreateEntryRequest
	}{
		{"unknown type", transport.CreateEntryRequest{TransactionType: "WIRE", Amount: "10", PaymentModeID: &modeID}},
		{"zero amount", transport.CreateEntryRequest{TransactionType: domain.TypeCredit, Amount: "0", PaymentModeID: &modeID}},
		{"negative amount", transport.CreateEntryRequest{TransactionType: domain.TypeDebit, Amount: "-5", PaymentModeID: &modeID}},
		{"garbage amount", transport.CreateEntryRequest{TransactionType: domain.TypeCredit, Amount: "ten", PaymentModeID: &modeID}},
		{"credit without mode", transport.CreateEntryRequest{TransactionType: domain.TypeCredit, Amount: "10"}},
		{"transfer same mode", transport.CreateEntryRequest{TransactionType: domain.TypeSelfTransfer, Amount: "10", FromModeID: &modeID, ToModeID: &modeID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateEntry(ctx, actor, tt.req)
			if apperr.GetKind(err) != apperr.KindValidation {
				t.Fatalf("kind = %v, want validation (err: %v)", apperr.GetKind(err), err)
			}
		})
	}
	if len(store.entries) != 0 {
		t.Fatalf("invalid requests created %d entries", len(store.entries))
	}
}

func TestEditRequestLifecycle(t *testing.T) {
	svc, store, _ := newTestService()
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "5000")

	modeID := cash.ID.String()
	entry, _ := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeCredit, Amount: "1000", PaymentModeID: &modeID,
	})
	if _, err := svc.ApproveEntry(ctx, actor, entry.ID); err != nil {
		t.Fatalf("ApproveEntry: %v", err)
	}

	edit, err := svc.RequestEdit(ctx, actor, entry.ID, transport.RequestEditRequest{Amount: "1500"})
	if err != nil {
		t.Fatalf("RequestEdit: %v", err)
	}
	// Only one pending edit at a time.
	if _, err := svc.RequestEdit(ctx, actor, entry.ID, transport.RequestEditRequest{Amount: "1200"}); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("second edit kind = %v, want conflict", apperr.GetKind(err))
	}

	updated, err := svc.ApproveEditRequest(ctx, actor, edit.ID)
	if err != nil {
		t.Fatalf("ApproveEditRequest: %v", err)
	}
	if updated.Amount != "1500" {
		t.Fatalf("amount after edit = %s, want 1500", updated.Amount)
	}
	// Old 1000 reversed, new 1500 applied: 5000 + 1500.
	if !balanceOf(t, store, cash.ID).Equal(decimal.NewFromInt(6500)) {
		t.Fatalf("balance after edit = %s, want 6500", balanceOf(t, store, cash.ID))
	}

	// A decided edit cannot be decided again.
	if _, err := svc.ApproveEditRequest(ctx, actor, edit.ID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("re-approve edit kind = %v, want conflict", apperr.GetKind(err))
	}
	if _, err := svc.RejectEditRequest(ctx, actor, edit.ID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("reject decided edit kind = %v, want conflict", apperr.GetKind(err))
	}
}

func TestRejectEditRequestLeavesEntry(t *testing.T) {
	svc, store, _ := newTestService()
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "5000")

	modeID := cash.ID.String()
	entry, _ := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeCredit, Amount: "1000", PaymentModeID: &modeID,
	})
	svc.ApproveEntry(ctx, actor, entry.ID)

	edit, _ := svc.RequestEdit(ctx, actor, entry.ID, transport.RequestEditRequest{Amount: "9999"})
	if _, err := svc.RejectEditRequest(ctx, actor, edit.ID); err != nil {
		t.Fatalf("RejectEditRequest: %v", err)
	}
	if !store.entries[entry.ID].Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("entry amount changed on rejected edit: %s", store.entries[entry.ID].Amount)
	}
	if !balanceOf(t, store, cash.ID).Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("balance changed on rejected edit: %s", balanceOf(t, store, cash.ID))
	}
	// The entry is free for a new edit afterwards.
	if _, err := svc.RequestEdit(ctx, actor, entry.ID, transport.RequestEditRequest{Amount: "1100"}); err != nil {
		t.Fatalf("edit after rejection: %v", err)
	}
}

func TestEditOnDeletedEntryIsConflict(t *testing.T) {
	svc, store, _ := newTestService()
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "0")

	modeID := cash.ID.String()
	entry, _ := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeCredit, Amount: "50", PaymentModeID: &modeID,
	})
	svc.SoftDeleteEntry(ctx, actor, entry.ID, transport.DeleteEntryRequest{Reason: "gone"})

	_, err := svc.RequestEdit(ctx, actor, entry.ID, transport.RequestEditRequest{Amount: "60"})
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("kind = %v, want conflict", apperr.GetKind(err))
	}
}

func TestRejectEditOnDeletedEntryIsConflict(t *testing.T) {
	svc, store, _ := newTestService()
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "0")
	modeID := cash.ID.String()
	entry, _ := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeCredit, Amount: "50", PaymentModeID: &modeID,
	})
	edit, err := svc.RequestEdit(ctx, actor, entry.ID, transport.RequestEditRequest{Amount: "60"})
	if err != nil {
		t.Fatalf("RequestEdit: %v", err)
	}
	if _, err := svc.SoftDeleteEntry(ctx, actor, entry.ID, transport.DeleteEntryRequest{Reason: "dup"}); err != nil {
		t.Fatalf("SoftDeleteEntry: %v", err)
	}

	if _, err := svc.RejectEditRequest(ctx, actor, edit.ID); apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("kind = %v, want conflict", apperr.GetKind(err))
	}
}

func TestApproveRequiresFinanceApprove(t *testing.T) {
	store := newFakeStore()
	bus := &captureBus{}
	svc := New(store, &allowAll{denied: map[string]bool{identity.CapFinanceApprove: true}}, bus)
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "0")

	modeID := cash.ID.String()
	entry, err := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeCredit, Amount: "10", PaymentModeID: &modeID,
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if _, err := svc.ApproveEntry(ctx, actor, entry.ID); apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("kind = %v, want forbidden", apperr.GetKind(err))
	}
	if !balanceOf(t, store, cash.ID).IsZero() {
		t.Fatalf("balance moved on forbidden approve")
	}
}

func TestOpeningBalanceSurvivesEntryLifecycle(t *testing.T) {
	svc, store, _ := newTestService()
	actor := finance()
	ctx := context.Background()
	cash := seedMode(t, store, "Cash", "5000")

	if !cash.OpeningBalance.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("opening balance = %s, want 5000", cash.OpeningBalance)
	}

	modeID := cash.ID.String()
	entry, _ := svc.CreateEntry(ctx, actor, transport.CreateEntryRequest{
		TransactionType: domain.TypeCredit, Amount: "1000", PaymentModeID: &modeID,
	})
	if _, err := svc.ApproveEntry(ctx, actor, entry.ID); err != nil {
		t.Fatalf("ApproveEntry: %v", err)
	}

	mode := store.modes[cash.ID]
	if !mode.OpeningBalance.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("opening balance mutated by approval: %s", mode.OpeningBalance)
	}
	// Running balance equals opening balance plus surviving approved effects.
	if !mode.Balance.Equal(mode.OpeningBalance.Add(decimal.NewFromInt(1000))) {
		t.Fatalf("balance = %s, want opening + 1000", mode.Balance)
	}

	if _, err := svc.SoftDeleteEntry(ctx, actor, entry.ID, transport.DeleteEntryRequest{Reason: "duplicate"}); err != nil {
		t.Fatalf("SoftDeleteEntry: %v", err)
	}
	mode = store.modes[cash.ID]
	if !mode.Balance.Equal(mode.OpeningBalance) {
		t.Fatalf("balance after delete = %s, want opening %s", mode.Balance, mode.OpeningBalance)
	}

	modes, err := svc.ListPaymentModes(ctx, actor)
	if err != nil {
		t.Fatalf("ListPaymentModes: %v", err)
	}
	if modes[0].OpeningBalance != "5000" {
		t.Fatalf("response opening balance = %q, want 5000", modes[0].OpeningBalance)
	}
}

func TestDuplicatePaymentModeName(t *testing.T) {
	svc, _, _ := newTestService()
	actor := finance()
	ctx := context.Background()

	if _, err := svc.CreatePaymentMode(ctx, actor, transport.CreatePaymentModeRequest{Name: "Cash"}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreatePaymentMode(ctx, actor, transport.CreatePaymentModeRequest{Name: "Cash"})
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("kind = %v, want conflict", apperr.GetKind(err))
	}
}
