package domain

import "testing"

func TestCanAdvanceCaseStage(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"single forward step", CaseStageNewLead, CaseStageKYPPending, true},
		{"skip a stage", CaseStageNewLead, CaseStageKYPComplete, false},
		{"backward step", CaseStageKYPComplete, CaseStageKYPPending, false},
		{"same stage", CaseStageAdmitted, CaseStageAdmitted, false},
		{"into terminal", CaseStageAdmitted, CaseStageDischarged, true},
		{"out of terminal", CaseStageDischarged, CaseStageNewLead, false},
		{"unknown from", "BOGUS", CaseStageKYPPending, false},
		{"unknown to", CaseStageNewLead, "BOGUS", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAdvanceCaseStage(tt.from, tt.to); got != tt.want {
				t.Fatalf("CanAdvanceCaseStage(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestNextCaseStageWalksWholeFunnel(t *testing.T) {
	want := []string{
		CaseStageNewLead,
		CaseStageKYPPending,
		CaseStageKYPComplete,
		CaseStagePreAuthRaised,
		CaseStagePreAuthDone,
		CaseStageInitiated,
		CaseStageAdmitted,
		CaseStageDischarged,
	}
	stage := CaseStageNewLead
	for i := 1; i < len(want); i++ {
		next := NextCaseStage(stage)
		if next != want[i] {
			t.Fatalf("NextCaseStage(%q) = %q, want %q", stage, next, want[i])
		}
		if !CanAdvanceCaseStage(stage, next) {
			t.Fatalf("CanAdvanceCaseStage(%q, %q) = false, want true", stage, next)
		}
		stage = next
	}
	if next := NextCaseStage(stage); next != "" {
		t.Fatalf("NextCaseStage(%q) = %q, want terminal", stage, next)
	}
}

func TestCanDischargeFrom(t *testing.T) {
	for stage := range caseStageOrder {
		want := stage == CaseStageInitiated || stage == CaseStageAdmitted
		if got := CanDischargeFrom(stage); got != want {
			t.Fatalf("CanDischargeFrom(%q) = %v, want %v", stage, got, want)
		}
	}
}

func TestComposeLostReason(t *testing.T) {
	if got := ComposeLostReason(LostReasonGhosted, ""); got != "Ghosted" {
		t.Fatalf("got %q", got)
	}
	if got := ComposeLostReason(LostReasonOther, "moved abroad"); got != "Other: moved abroad" {
		t.Fatalf("got %q", got)
	}
}

func TestIsTerminalCaseStage(t *testing.T) {
	if !IsTerminalCaseStage(CaseStageDischarged) {
		t.Fatal("DISCHARGED should be terminal")
	}
	if IsTerminalCaseStage(CaseStageAdmitted) {
		t.Fatal("ADMITTED should not be terminal")
	}
}
