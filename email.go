package authkit

import (
	"context"

	"go.uber.org/zap"

	"github.com/panyam/authkit/logging"
)

// EmailSender delivers the mails of the password reset flow. Applications
// plug in their own; email.SMTPSender is the bundled SMTP implementation.
type EmailSender interface {
	SendPasswordResetEmail(ctx context.Context, to string, resetLink string) error
	SendPasswordChangedEmail(ctx context.Context, to string) error
}

// ConsoleEmailSender is a development implementation that logs emails instead
// of sending them.
type ConsoleEmailSender struct {
	Logger *zap.Logger
}

func (c *ConsoleEmailSender) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Named("email")
}

func (c *ConsoleEmailSender) SendPasswordResetEmail(ctx context.Context, to string, resetLink string) error {
	c.logger().Info("email: password reset",
		logging.Email(to),
		logging.String("subject", "Password Reset Request"),
		logging.String("link", resetLink))
	return nil
}

func (c *ConsoleEmailSender) SendPasswordChangedEmail(ctx context.Context, to string) error {
	c.logger().Info("email: password changed",
		logging.Email(to),
		logging.String("subject", "Password Changed Confirmation"))
	return nil
}
