package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
)

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(addr, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		host, _, _ := net.SplitHostPort(addr)
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{addr: addr, from: from, auth: auth, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, to string, _ Channel, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(m.from))
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Message-ID: %s\r\n", id)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	if err := m.send(m.addr, m.auth, m.from, []string{to}, []byte(b.String())); err != nil {
		return Receipt{}, fmt.Errorf("smtp send: %w", err)
	}
	return Receipt{MessageID: id}, nil
}

func domainOf(addr string) string {
	if at := strings.LastIndexByte(addr, '@'); at >= 0 {
		return strings.Trim(addr[at+1:], "> ")
	}
	return "localhost"
}
