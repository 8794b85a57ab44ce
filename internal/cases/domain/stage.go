// Package domain provides the core stage-transition rules for the case
// pipeline bounded context.
package domain

// Case stages form the clinical/administrative funnel. Order matters:
// transitions only move forward through this list, one step at a time,
// with DISCHARGED terminal.
const (
	CaseStageNewLead        = "NEW_LEAD"
	CaseStageKYPPending     = "KYP_PENDING"
	CaseStageKYPComplete    = "KYP_COMPLETE"
	CaseStagePreAuthRaised  = "PREAUTH_RAISED"
	CaseStagePreAuthDone    = "PREAUTH_COMPLETE"
	CaseStageInitiated      = "INITIATED"
	CaseStageAdmitted       = "ADMITTED"
	CaseStageDischarged     = "DISCHARGED"
)

// caseStageOrder maps each case stage onto its funnel position.
var caseStageOrder = map[string]int{
	CaseStageNewLead:       0,
	CaseStageKYPPending:    1,
	CaseStageKYPComplete:   2,
	CaseStagePreAuthRaised: 3,
	CaseStagePreAuthDone:   4,
	CaseStageInitiated:     5,
	CaseStageAdmitted:      6,
	CaseStageDischarged:    7,
}

// Pipeline stages form the coarser sales funnel. LOST is terminal and
// reachable out-of-band from any non-terminal stage.
const (
	PipelineStageSales     = "SALES"
	PipelineStageInsurance = "INSURANCE"
	PipelineStagePL        = "PL"
	PipelineStageCompleted = "COMPLETED"
	PipelineStageLost      = "LOST"
)

var knownPipelineStages = map[string]struct{}{
	PipelineStageSales:     {},
	PipelineStageInsurance: {},
	PipelineStagePL:        {},
	PipelineStageCompleted: {},
	PipelineStageLost:      {},
}

// Lost reasons accepted by MarkLost. Free-text detail is appended to the
// selected reason, never substituted for it.
const (
	LostReasonPatientDeclined = "Patient Declined"
	LostReasonGhosted         = "Ghosted"
	LostReasonFinancialIssue  = "Financial Issue"
	LostReasonOther           = "Other"
)

var knownLostReasons = map[string]struct{}{
	LostReasonPatientDeclined: {},
	LostReasonGhosted:         {},
	LostReasonFinancialIssue:  {},
	LostReasonOther:           {},
}

// KYP submission statuses.
const (
	KYPStatusPending          = "PENDING"
	KYPStatusDetailsAdded     = "KYP_DETAILS_ADDED"
	KYPStatusPreAuthComplete  = "PRE_AUTH_COMPLETE"
	KYPStatusFollowUpComplete = "FOLLOW_UP_COMPLETE"
	KYPStatusCompleted        = "COMPLETED"
)

// Pre-authorization approval statuses.
const (
	PreAuthPending  = "PENDING"
	PreAuthApproved = "APPROVED"
	PreAuthRejected = "REJECTED"
)

// Insurance case statuses.
const (
	InsuranceCaseOpen     = "OPEN"
	InsuranceCaseApproved = "APPROVED"
	InsuranceCaseRejected = "REJECTED"
)

// IsKnownCaseStage reports whether the stage is part of the case funnel.
func IsKnownCaseStage(stage string) bool {
	_, ok := caseStageOrder[stage]
	return ok
}

// IsKnownPipelineStage reports whether the stage is part of the pipeline funnel.
func IsKnownPipelineStage(stage string) bool {
	_, ok := knownPipelineStages[stage]
	return ok
}

// IsKnownLostReason reports whether the reason is an accepted lost reason.
func IsKnownLostReason(reason string) bool {
	_, ok := knownLostReasons[reason]
	return ok
}

// IsTerminalCaseStage reports whether no further case transitions are legal.
func IsTerminalCaseStage(stage string) bool {
	return stage == CaseStageDischarged
}

// CanAdvanceCaseStage reports whether from→to is a legal single forward
// step in the case funnel.
func CanAdvanceCaseStage(from, to string) bool {
	fromPos, fromOK := caseStageOrder[from]
	toPos, toOK := caseStageOrder[to]
	if !fromOK || !toOK {
		return false
	}
	return toPos == fromPos+1
}

// NextCaseStage returns the stage that follows the given one, or "" when
// the stage is terminal or unknown.
func NextCaseStage(from string) string {
	pos, ok := caseStageOrder[from]
	if !ok {
		return ""
	}
	for stage, p := range caseStageOrder {
		if p == pos+1 {
			return stage
		}
	}
	return ""
}

// CanDischargeFrom reports whether a discharge is legal from the stage.
// Only an initiated or admitted case can be discharged.
func CanDischargeFrom(stage string) bool {
	return stage == CaseStageInitiated || stage == CaseStageAdmitted
}

// ComposeLostReason joins the selected reason with optional free-text detail
// into the single string stored on the lead.
func ComposeLostReason(reason, detail string) string {
	if detail == "" {
		return reason
	}
	return reason + ": " + detail
}
