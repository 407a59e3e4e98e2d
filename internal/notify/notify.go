// Package notify sends transactional email about refund requests.
package notify

import (
	"context"
	"html/template"

	"github.com/rs/zerolog"
)

// Message is one email. Body is rendered from Template with Data.
type Message struct {
	To       []string
	Subject  string
	Template *template.Template
	Data     any
}

// Notifier delivers messages.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier only logs messages. It is used when SMTP is disabled.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.Info().Strs("to", msg.To).Str("subject", msg.Subject).Msg("email suppressed, smtp disabled")
	return nil
}
