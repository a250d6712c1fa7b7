// Package mail sends the application's outgoing email.
//
// Services depend on the Sender interface only. Production wires the SMTP
// sender from the smtp sub-package; development and tests use LogSender.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Message is a plain-text email to a single recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a Message. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to a logger instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "email (not sent, log sender)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

// PasswordReset builds the reset email. resetURL already contains the raw
// token; ttl is how long it stays valid.
func PasswordReset(to, resetURL string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your password reset token (valid for %d min)", int(ttl.Minutes())),
		Body: fmt.Sprintf(
			"Forgot your password? Submit a PATCH request with your new password and passwordConfirm to: %s\n"+
				"If you didn't forget your password, please ignore this email!",
			resetURL,
		),
	}
}
