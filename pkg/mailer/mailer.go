// Package mailer defines the outbound email transport boundary.
package mailer

import (
	"context"
	"log/slog"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	From    string
}

// Mailer delivers a message. Implementations must honor the context deadline;
// the engine never calls Send twice for the same logical message, so the
// transport does not need its own dedup.
type Mailer interface {
	Send(ctx context.Context, message Message) error
}

// LogMailer is the development transport: it records the message instead of
// delivering it.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, message Message) error {
	m.logger.InfoContext(ctx, "Email delivery (log transport)",
		"to", message.To,
		"subject", message.Subject,
		"bytes", len(message.HTML))

	return nil
}
