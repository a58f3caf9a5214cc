package notify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrNoRecipient = errors.New("message has no recipient")

// Message is one outbound email, queued after the state change that produced it committed.
type Message struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Email         string    `json:"email"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	Attempt       int       `json:"attempt"`
	CreatedAt     time.Time `json:"created_at"`
}

// Notifier delivers a single email. Implementations are best-effort.
type Notifier interface {
	Send(ctx context.Context, email, subject, message string) error
}

// Publisher hands a message to the delivery pipeline without waiting for delivery.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, email, subject, message string) error {
	if email == "" {
		return ErrNoRecipient
	}
	n.logger.Info("email",
		zap.String("to", email),
		zap.String("subject", subject),
		zap.String("body", message),
	)
	return nil
}

// SMTPNotifier sends plain-text mail through an SMTP relay with PLAIN auth.
type SMTPNotifier struct {
	addr string
	host string
	from string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(host, port, username, password, from string) *SMTPNotifier {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPNotifier{
		addr: net.JoinHostPort(host, port),
		host: host,
		from: from,
		auth: auth,
		send: smtp.SendMail,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, email, subject, message string) error {
	if email == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := n.send(n.addr, n.auth, n.from, []string{email}, buildMail(n.from, email, subject, message)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", email, err)
	}
	return nil
}

func buildMail(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + sanitizeHeader(from) + "\r\n")
	b.WriteString("To: " + sanitizeHeader(to) + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}
