package notifications

import (
	"context"

	"academy/pkg/logger"

	"github.com/google/uuid"
)

// Sender delivers a message over one provider and returns the provider's message id
type Sender interface {
	Send(ctx context.Context, msg *OutboundMessage) (string, error)
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, msg *OutboundMessage) (string, error)

func (f SenderFunc) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	return f(ctx, msg)
}

// ConsoleSender writes messages to the log instead of a provider. Used in development
// and whenever provider credentials are missing.
type ConsoleSender struct {
	channel Channel
	logger  *logger.Logger
}

func NewConsoleSender(channel Channel, log *logger.Logger) *ConsoleSender {
	if log == nil {
		log = logger.GetDefault()
	}
	return &ConsoleSender{channel: channel, logger: log.WithComponent("console_" + string(channel))}
}

func (s *ConsoleSender) Send(ctx context.Context, msg *OutboundMessage) (string, error) {
	s.logger.InfoContext(ctx, "Outbound message",
		"channel", string(s.channel),
		"to", msg.Address,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return "console-" + uuid.NewString(), nil
}
