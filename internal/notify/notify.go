// Package notify turns account events into emails.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/takemehome/accounts/types"
)

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, to, subject, body string) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email", "to", to, "subject", subject, "body", body)
	return nil
}

// Notifier handles account events consumed from the events channel.
type Notifier struct {
	mailer Mailer
	logger *slog.Logger
}

func New(mailer Mailer, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{mailer: mailer, logger: logger}
}

// Handle sends the email an event calls for. Events without one are skipped.
func (n *Notifier) Handle(ctx context.Context, event types.AccountEvent) error {
	switch event.Type {
	case types.EventVerificationCode:
		if event.Code == "" || event.Email == "" {
			n.logger.Warn("verification event without code or email", "event_id", event.ID)
			return nil
		}
		body := fmt.Sprintf("Your verification code is %s.", event.Code)
		if err := n.mailer.Send(ctx, event.Email, "Confirm your email", body); err != nil {
			return fmt.Errorf("send verification code: %w", err)
		}
	case types.EventUserDeleted:
		if err := n.mailer.Send(ctx, event.Email, "Your account was deleted", "Your account and its data have been removed."); err != nil {
			return fmt.Errorf("send deletion notice: %w", err)
		}
	default:
		n.logger.Debug("account event skipped", "type", event.Type, "event_id", event.ID)
	}
	return nil
}
