// Package mail wraps the outbound mail boundary. Sends are
// fire-and-forget from the caller's perspective: failures are
// logged by the caller and never block the triggering operation.
package mail

import (
	"fmt"
	"net/smtp"
)

type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer delivers through a plain SMTP relay.
type SMTPMailer struct {
	Addr string // host:port
	From string
}

func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{Addr: addr, From: from}
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.From, to, subject, body)
	if err := smtp.SendMail(m.Addr, nil, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// NopMailer drops everything; used when no relay is configured and
// in tests.
type NopMailer struct{}

func (NopMailer) Send(to, subject, body string) error { return nil }
