package delivery

import (
	"context"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

const defaultSMTPTimeout = 15 * time.Second

// SMTPSender sends mail through an SMTP relay with PLAIN auth (e.g. Gmail app password).
// Does not log message bodies.
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string // RFC 5322 address, e.g. `"ORBIT Account" <no-reply@example.com>`
	Timeout  time.Duration

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender returns a sender for host:port. from is used for the From header and envelope.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	if port == 0 {
		port = 587
	}
	return &SMTPSender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		Timeout:  defaultSMTPTimeout,
		sendMail: smtp.SendMail,
	}
}

// Send delivers msg. The context bounds how long Send waits; an in-flight SMTP exchange
// is abandoned, not aborted, when ctx ends first.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if s.Host == "" {
		return fmt.Errorf("smtp: host not configured")
	}
	from, err := mail.ParseAddress(s.From)
	if err != nil {
		return fmt.Errorf("smtp: invalid from address: %w", err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("smtp: invalid recipient: %w", err)
	}
	var auth smtp.Auth
	if s.Username != "" {
		auth = smtp.PlainAuth("", s.Username, s.Password, s.Host)
	}
	raw := buildMIME(from, to, msg.Subject, msg.Body, time.Now())
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultSMTPTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- s.sendMail(addr, auth, from.Address, []string{to.Address}, raw) }()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("smtp: send failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp: send failed: %w", ctx.Err())
	}
}

func buildMIME(from, to *mail.Address, subject, body string, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mimeHeader(subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// mimeHeader strips line breaks so header values cannot inject extra headers.
func mimeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
