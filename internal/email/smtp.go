package email

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendCaseDischargedEmail(ctx context.Context, toEmail, reference, patientName string) error {
	content, err := renderEmailTemplate("case_discharged.html", caseDischargedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Case discharged",
			Heading: "Case discharged",
		},
		Reference:   reference,
		PatientName: patientName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectCaseDischargedFmt, reference), content)
}

func (s *SMTPSender) SendPreAuthRejectedEmail(ctx context.Context, toEmail, reference, reason string) error {
	content, err := renderEmailTemplate("preauth_rejected.html", preAuthRejectedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Pre-authorization rejected",
			Heading: "Pre-authorization rejected",
		},
		Reference: reference,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectPreAuthRejected, content)
}

func (s *SMTPSender) SendLeaveDecidedEmail(ctx context.Context, toEmail, status, note string) error {
	content, err := renderEmailTemplate("leave_decided.html", leaveDecidedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Leave request decision",
			Heading: fmt.Sprintf("Leave request %s", strings.ToLower(status)),
		},
		Status: status,
		Note:   note,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectLeaveDecidedFmt, strings.ToLower(status)), content)
}

func (s *SMTPSender) SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error {
	return s.send(ctx, toEmail, subject, htmlContent)
}

var _ Sender = (*SMTPSender)(nil)
