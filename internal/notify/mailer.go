package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-mail/mail/v2"
)

// Mailer sends transactional email over SMTP
type Mailer struct {
	dialer *mail.Dialer
	from   string
	log    *slog.Logger
}

func NewMailer(host string, port int, username, password, from string, log *slog.Logger) *Mailer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 30 * time.Second

	switch port {
	case 587:
		dialer.StartTLSPolicy = mail.MandatoryStartTLS
	case 465:
		dialer.SSL = true
		dialer.StartTLSPolicy = mail.NoStartTLS
	default:
		dialer.StartTLSPolicy = mail.OpportunisticStartTLS
	}

	return &Mailer{dialer: dialer, from: from, log: log}
}

// SendPasswordResetCode mails a one-time password reset code
func (m *Mailer) SendPasswordResetCode(ctx context.Context, to, code string, ttl time.Duration) error {
	return m.send(ctx, resetCodeMessage(m.from, to, code, ttl))
}

// SendApproval tells a user their account was approved
func (m *Mailer) SendApproval(ctx context.Context, to, name string) error {
	return m.send(ctx, approvalMessage(m.from, to, name))
}

func (m *Mailer) send(ctx context.Context, msg *mail.Message) error {
	const op = "notify.Mailer.send"

	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}

		m.log.Warn("smtp attempt failed",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if attempt < 3 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	return fmt.Errorf("%s: send after 3 attempts: %w", op, err)
}

func resetCodeMessage(from, to, code string, ttl time.Duration) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your password reset code")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Your password reset code is: %s\nIt is valid for %d minutes.\n\nIf you did not request a reset, ignore this email.",
		code, int(ttl.Minutes()),
	))
	return msg
}

func approvalMessage(from, to, name string) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your account has been approved")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Hello %s,\n\nYour account has been approved. You can now log in and start your practice.",
		name,
	))
	return msg
}
