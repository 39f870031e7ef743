// Package email delivers the password reset mails over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/logging"
)

// TLS modes accepted by SMTPSender.TLSMode.
const (
	TLSAuto     = "auto"
	TLSStartTLS = "starttls"
	TLSSSL      = "ssl"
	TLSNone     = "none"
)

var _ authkit.EmailSender = (*SMTPSender)(nil)

type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPSender sends multipart text and HTML mails through an SMTP relay.
type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool

	Logger *zap.Logger

	newDialer func() dialer
}

func NewSMTPSender(host string, port int, from, user, pass string) *SMTPSender {
	return &SMTPSender{
		Host:    host,
		Port:    port,
		From:    from,
		User:    user,
		Pass:    pass,
		TLSMode: TLSAuto,
	}
}

// FromConfig builds a sender from SMTP settings. secure selects implicit TLS
// when mode is empty.
func FromConfig(host string, port int, from, user, pass, mode string, secure bool) *SMTPSender {
	s := NewSMTPSender(host, port, from, user, pass)
	switch {
	case mode != "":
		s.TLSMode = mode
	case secure:
		s.TLSMode = TLSSSL
	}
	return s
}

func (s *SMTPSender) SendPasswordResetEmail(ctx context.Context, to string, resetLink string) error {
	text, html, err := renderReset(resetLink)
	if err != nil {
		return err
	}
	return s.send(ctx, to, subjectReset, text, html)
}

func (s *SMTPSender) SendPasswordChangedEmail(ctx context.Context, to string) error {
	text, html, err := renderChanged()
	if err != nil {
		return err
	}
	return s.send(ctx, to, subjectChanged, text, html)
}

func (s *SMTPSender) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.Named("email.smtp")
}

func (s *SMTPSender) buildMessage(to, subject, textBody, htmlBody string) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	if textBody != "" {
		m.SetBody("text/plain", textBody)
	}
	if htmlBody != "" {
		if textBody == "" {
			m.SetBody("text/html", htmlBody)
		} else {
			m.AddAlternative("text/html", htmlBody)
		}
	}
	return m
}

func (s *SMTPSender) dialer() dialer {
	if s.newDialer != nil {
		return s.newDialer()
	}
	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify,
	}
	// NewDialer guesses SSL from port 465; the configured mode decides.
	d.SSL = s.TLSMode == TLSSSL
	switch s.TLSMode {
	case TLSNone:
		d.StartTLSPolicy = mail.NoStartTLS
	case TLSStartTLS:
		d.StartTLSPolicy = mail.MandatoryStartTLS
	default:
		// auto: STARTTLS when the server offers it
	}
	return d
}

func (s *SMTPSender) send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := s.logger().With(
		logging.String("host", s.Host),
		logging.Int("port", s.Port),
		logging.Email(to),
	)
	log.Debug("sending email",
		logging.String("subject", subject),
		logging.String("tls_mode", s.TLSMode))

	if err := s.dialer().DialAndSend(s.buildMessage(to, subject, textBody, htmlBody)); err != nil {
		log.Error("smtp send failed", logging.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Info("email sent")
	return nil
}
