package account

import (
	"context"
	"fmt"
	"io"
	"net/smtp"
	"strings"
)

// SMTPTransport delivers mail over plain SMTP. One attempt per message, no
// retries, no delivery receipt.
type SMTPTransport struct {
	host     string
	port     int
	username string
	password string
}

var _ Transport = (*SMTPTransport)(nil)

// NewSMTPTransport creates a transport from mail settings
func NewSMTPTransport(settings MailSettings) *SMTPTransport {
	return &SMTPTransport{
		host:     settings.Host,
		port:     settings.Port,
		username: settings.Username,
		password: settings.Password,
	}
}

func (t *SMTPTransport) Send(ctx context.Context, subject, htmlBody, from, to string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	var msg strings.Builder
	msg.WriteString("From: " + from + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	var auth smtp.Auth
	if t.username != "" {
		auth = smtp.PlainAuth("", t.username, t.password, t.host)
	}

	addr := fmt.Sprintf("%s:%d", t.host, t.port)

	return smtp.SendMail(addr, auth, from, []string{to}, []byte(msg.String()))
}

// WriterTransport dumps messages to a writer instead of delivering them,
// which is what you want in development and in tests.
type WriterTransport struct {
	Out io.Writer
}

var _ Transport = (*WriterTransport)(nil)

func (t *WriterTransport) Send(ctx context.Context, subject, htmlBody, from, to string) error {
	_, err := fmt.Fprintf(t.Out,
		"====== SENDING EMAIL NOTIFICATION =======\nfrom: %s\nto: %s\nsubject: %s\n\n%s\n",
		from, to, subject, htmlBody,
	)
	return err
}
