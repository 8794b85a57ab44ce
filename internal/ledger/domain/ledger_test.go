package domain

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func mode() *uuid.UUID {
	id := uuid.New()
	return &id
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestMovementValid(t *testing.T) {
	m1, m2 := mode(), mode()
	tests := []struct {
		name string
		m    Movement
		want bool
	}{
		{"credit ok", Movement{Type: TypeCredit, Amount: dec("10"), ModeID: m1}, true},
		{"debit ok", Movement{Type: TypeDebit, Amount: dec("0.01"), ModeID: m1}, true},
		{"transfer ok", Movement{Type: TypeSelfTransfer, Amount: dec("5"), FromModeID: m1, ToModeID: m2}, true},
		{"zero amount", Movement{Type: TypeCredit, Amount: dec("0"), ModeID: m1}, false},
		{"negative amount", Movement{Type: TypeDebit, Amount: dec("-1"), ModeID: m1}, false},
		{"credit missing mode", Movement{Type: TypeCredit, Amount: dec("1")}, false},
		{"transfer same mode", Movement{Type: TypeSelfTransfer, Amount: dec("1"), FromModeID: m1, ToModeID: m1}, false},
		{"transfer missing to", Movement{Type: TypeSelfTransfer, Amount: dec("1"), FromModeID: m1}, false},
		{"unknown type", Movement{Type: "WIRE", Amount: dec("1"), ModeID: m1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.Valid(); got != tt.want {
				t.Fatalf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCreditThenReverseRestoresBalance(t *testing.T) {
	m := mode()
	balances := map[uuid.UUID]decimal.Decimal{*m: dec("5000")}
	mv := Movement{Type: TypeCredit, Amount: dec("1000"), ModeID: m}

	after := Apply(balances, mv)
	if !after[*m].Equal(dec("6000")) {
		t.Fatalf("balance after credit = %s, want 6000", after[*m])
	}
	restored := Reverse(after, mv)
	if !restored[*m].Equal(dec("5000")) {
		t.Fatalf("balance after reverse = %s, want 5000", restored[*m])
	}
	// Inputs untouched.
	if !balances[*m].Equal(dec("5000")) {
		t.Fatalf("input balances mutated: %s", balances[*m])
	}
}

func TestSelfTransferMovesMoneyAndPreservesTotal(t *testing.T) {
	x, y := mode(), mode()
	balances := map[uuid.UUID]decimal.Decimal{*x: dec("1000"), *y: dec("200")}
	mv := Movement{Type: TypeSelfTransfer, Amount: dec("500"), FromModeID: x, ToModeID: y}

	after := Apply(balances, mv)
	if !after[*x].Equal(dec("500")) || !after[*y].Equal(dec("700")) {
		t.Fatalf("after transfer x=%s y=%s, want 500/700", after[*x], after[*y])
	}
	if !after[*x].Add(after[*y]).Equal(dec("1200")) {
		t.Fatalf("transfer changed total: %s", after[*x].Add(after[*y]))
	}

	restored := Reverse(after, mv)
	if !restored[*x].Equal(dec("1000")) || !restored[*y].Equal(dec("200")) {
		t.Fatalf("after reverse x=%s y=%s, want 1000/200", restored[*x], restored[*y])
	}
}

func TestDebitMayDriveBalanceNegative(t *testing.T) {
	m := mode()
	balances := map[uuid.UUID]decimal.Decimal{*m: dec("100")}
	mv := Movement{Type: TypeDebit, Amount: dec("250.75"), ModeID: m}

	after := Apply(balances, mv)
	if !after[*m].Equal(dec("-150.75")) {
		t.Fatalf("balance = %s, want -150.75", after[*m])
	}
}

func TestFractionalAmountsStayExact(t *testing.T) {
	m := mode()
	balances := map[uuid.UUID]decimal.Decimal{*m: decimal.Zero}
	mv := Movement{Type: TypeCredit, Amount: dec("0.10"), ModeID: m}

	// 0.1 is famously inexact in binary floating point. A thousand
	// applications must land on exactly 100.
	for i := 0; i < 1000; i++ {
		balances = Apply(balances, mv)
	}
	if !balances[*m].Equal(dec("100")) {
		t.Fatalf("balance = %s, want exactly 100", balances[*m])
	}
}

func TestRandomApplyReverseSequenceRoundTrips(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	modes := make([]*uuid.UUID, 4)
	initial := make(map[uuid.UUID]decimal.Decimal, len(modes))
	for i := range modes {
		modes[i] = mode()
		initial[*modes[i]] = decimal.NewFromInt(int64(rng.Intn(10000)))
	}

	randomMovement := func() Movement {
		amount := decimal.NewFromInt(int64(rng.Intn(100000))).Div(decimal.NewFromInt(100)).Add(dec("0.01"))
		switch rng.Intn(3) {
		case 0:
			return Movement{Type: TypeCredit, Amount: amount, ModeID: modes[rng.Intn(len(modes))]}
		case 1:
			return Movement{Type: TypeDebit, Amount: amount, ModeID: modes[rng.Intn(len(modes))]}
		default:
			from := rng.Intn(len(modes))
			to := (from + 1 + rng.Intn(len(modes)-1)) % len(modes)
			return Movement{Type: TypeSelfTransfer, Amount: amount, FromModeID: modes[from], ToModeID: modes[to]}
		}
	}

	balances := initial
	var applied []Movement
	for i := 0; i < 500; i++ {
		mv := randomMovement()
		if !mv.Valid() {
			t.Fatalf("generated invalid movement: %+v", mv)
		}
		balances = Apply(balances, mv)
		applied = append(applied, mv)
	}
	// Reverse in arbitrary (shuffled) order; addition commutes, so the
	// ending balances must equal the starting ones regardless.
	rng.Shuffle(len(applied), func(i, j int) { applied[i], applied[j] = applied[j], applied[i] })
	for _, mv := range applied {
		balances = Reverse(balances, mv)
	}
	for id, want := range initial {
		if !balances[id].Equal(want) {
			t.Fatalf("mode %s balance = %s, want %s", id, balances[id], want)
		}
	}
}

func TestDeltasSumToZeroForTransfers(t *testing.T) {
	x, y := mode(), mode()
	mv := Movement{Type: TypeSelfTransfer, Amount: dec("123.45"), FromModeID: x, ToModeID: y}
	total := decimal.Zero
	for _, d := range mv.Deltas() {
		total = total.Add(d)
	}
	if !total.IsZero() {
		t.Fatalf("transfer deltas sum to %s, want 0", total)
	}
}
