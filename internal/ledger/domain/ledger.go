// Package domain holds the pure balance arithmetic for the ledger. All
// money flows through decimal.Decimal; floats never touch a balance.
package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction types.
const (
	TypeCredit       = "CREDIT"
	TypeDebit        = "DEBIT"
	TypeSelfTransfer = "SELF_TRANSFER"
)

// Entry statuses.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Audit actions recorded against the append-only log.
const (
	ActionCreated       = "CREATED"
	ActionApproved      = "APPROVED"
	ActionRejected      = "REJECTED"
	ActionDeleted       = "DELETED"
	ActionEditRequested = "EDIT_REQUESTED"
	ActionEditApproved  = "EDIT_APPROVED"
	ActionEditRejected  = "EDIT_REJECTED"
)

// Edit request statuses.
const (
	EditPending  = "PENDING"
	EditApproved = "APPROVED"
	EditRejected = "REJECTED"
)

// Movement is the balance-affecting shape of an entry: what kind of money
// movement it is, how much, and which payment modes it touches.
type Movement struct {
	Type       string
	Amount     decimal.Decimal
	ModeID     *uuid.UUID
	FromModeID *uuid.UUID
	ToModeID   *uuid.UUID
}

// Valid reports whether the movement is structurally sound: a positive
// amount and the mode references its type requires. It says nothing about
// whether the referenced modes exist.
func (m Movement) Valid() bool {
	if !m.Amount.IsPositive() {
		return false
	}
	switch m.Type {
	case TypeCredit, TypeDebit:
		return m.ModeID != nil
	case TypeSelfTransfer:
		return m.FromModeID != nil && m.ToModeID != nil && *m.FromModeID != *m.ToModeID
	default:
		return false
	}
}

// Deltas returns the per-mode balance changes applying the movement causes.
// Balances may go negative; the ledger records what happened, it does not
// forbid overdrafts.
func (m Movement) Deltas() map[uuid.UUID]decimal.Decimal {
	deltas := make(map[uuid.UUID]decimal.Decimal, 2)
	switch m.Type {
	case TypeCredit:
		deltas[*m.ModeID] = m.Amount
	case TypeDebit:
		deltas[*m.ModeID] = m.Amount.Neg()
	case TypeSelfTransfer:
		deltas[*m.FromModeID] = m.Amount.Neg()
		deltas[*m.ToModeID] = m.Amount
	}
	return deltas
}

// ReverseDeltas returns the exact inverse of Deltas, used when a previously
// applied entry is soft deleted or its approved edit replaces it.
func (m Movement) ReverseDeltas() map[uuid.UUID]decimal.Decimal {
	deltas := m.Deltas()
	for id, d := range deltas {
		deltas[id] = d.Neg()
	}
	return deltas
}

// Apply returns the balances after the movement. The input map is not
// mutated.
func Apply(balances map[uuid.UUID]decimal.Decimal, m Movement) map[uuid.UUID]decimal.Decimal {
	return shift(balances, m.Deltas())
}

// Reverse returns the balances after undoing the movement. The input map is
// not mutated.
func Reverse(balances map[uuid.UUID]decimal.Decimal, m Movement) map[uuid.UUID]decimal.Decimal {
	return shift(balances, m.ReverseDeltas())
}

func shift(balances map[uuid.UUID]decimal.Decimal, deltas map[uuid.UUID]decimal.Decimal) map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal, len(balances))
	for id, b := range balances {
		out[id] = b
	}
	for id, d := range deltas {
		out[id] = out[id].Add(d)
	}
	return out
}

// IsKnownTransactionType reports whether the type is one the ledger accepts.
func IsKnownTransactionType(t string) bool {
	return t == TypeCredit || t == TypeDebit || t == TypeSelfTransfer
}
