// Package email renders and delivers transactional mail. Delivery always
// runs from the outbox dispatcher, never inline with a request.
package email

import "context"

type Sender interface {
	SendCaseDischargedEmail(ctx context.Context, toEmail, reference, patientName string) error
	SendPreAuthRejectedEmail(ctx context.Context, toEmail, reference, reason string) error
	SendLeaveDecidedEmail(ctx context.Context, toEmail, status, note string) error
	SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error
}

// NoopSender drops every email. Used in development and in tests.
type NoopSender struct{}

func (NoopSender) SendCaseDischargedEmail(ctx context.Context, toEmail, reference, patientName string) error {
	return nil
}

func (NoopSender) SendPreAuthRejectedEmail(ctx context.Context, toEmail, reference, reason string) error {
	return nil
}

func (NoopSender) SendLeaveDecidedEmail(ctx context.Context, toEmail, status, note string) error {
	return nil
}

func (NoopSender) SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error {
	return nil
}

var _ Sender = NoopSender{}
