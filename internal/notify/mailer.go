package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers plain-text mail.
type Mailer interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	addr string
	from string
}

// NewSMTPMailer constructs a mailer for host:port delivery.
func NewSMTPMailer(host string, port int, from string) *SMTPMailer {
	return &SMTPMailer{addr: fmt.Sprintf("%s:%d", host, port), from: from}
}

// Send delivers one message. The context governs nothing here: net/smtp has
// no context support, the relay connection timeout applies instead.
func (m *SMTPMailer) Send(_ context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return fmt.Errorf("notify: no recipients")
	}
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)
	return smtp.SendMail(m.addr, nil, m.from, to, []byte(msg.String()))
}
