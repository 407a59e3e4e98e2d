package notify

import (
	"context"
	"fmt"

	"keyvault-glow/internal/config"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// SMTPNotifier sends HTML email over an authenticated, TLS-mandatory SMTP session.
type SMTPNotifier struct {
	client mailSender
	from   string
	logger zerolog.Logger
}

// NewSMTPNotifier builds the SMTP client from configuration.
func NewSMTPNotifier(cfg config.SMTPConfig, logger zerolog.Logger) (*SMTPNotifier, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return newSMTPNotifier(client, cfg.From, logger), nil
}

func newSMTPNotifier(client mailSender, from string, logger zerolog.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		client: client,
		from:   from,
		logger: logger.With().Str("component", "smtp_notifier").Logger(),
	}
}

// Send renders and delivers one message.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}

	m, err := n.build(msg)
	if err != nil {
		return err
	}

	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		n.logger.Error().Err(err).Strs("to", msg.To).Str("subject", msg.Subject).Msg("failed to send email")
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info().Strs("to", msg.To).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

func (n *SMTPNotifier) build(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	if err := m.SetBodyHTMLTemplate(msg.Template, msg.Data); err != nil {
		return nil, fmt.Errorf("render email body: %w", err)
	}
	return m, nil
}
