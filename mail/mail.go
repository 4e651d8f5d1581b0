package mail

import (
	"context"
	"fmt"
	"log/slog"
)

type Email struct {
	FromAddress string
	ToAddresses []string
	Subject     string
	HTMLBody    string
	TextBody    string
}

type Sender interface {
	SendEmail(ctx context.Context, email Email) error
}

var _ Sender = &LogSender{}

// LogSender logs emails instead of delivering them, for local dev.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(ctx context.Context, email Email) error {
	if len(email.ToAddresses) == 0 {
		return fmt.Errorf("email %q has no recipients", email.Subject)
	}
	s.logger.InfoContext(ctx, "email that would be sent",
		slog.String("from", email.FromAddress),
		slog.Any("to", email.ToAddresses),
		slog.String("subject", email.Subject),
		slog.String("text", email.TextBody),
	)
	return nil
}
