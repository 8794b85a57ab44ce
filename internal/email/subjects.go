package email

const (
	subjectCaseDischargedFmt = "Case %s discharged"
	subjectPreAuthRejected   = "Pre-authorization rejected"
	subjectLeaveDecidedFmt   = "Your leave request was %s"
)
