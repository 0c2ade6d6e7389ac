package waitlist

import (
	"context"
	"fmt"
	"time"

	"academy/internal/notifications"
)

// NotificationGateway delivers a single outbound message. Delivery is best effort:
// an error is observable but never undoes the transition that produced the message.
type NotificationGateway interface {
	Send(ctx context.Context, channel notifications.Channel, address, message string) error
}

type messageKind string

const (
	messageOffer     messageKind = "offer"
	messageConfirmed messageKind = "confirmed"
	messageDeclined  messageKind = "declined"
	messageExpired   messageKind = "expired"
)

// outbound is queued inside the critical section and sent after the lock is released
type outbound struct {
	kind  messageKind
	entry *Entry
}

func (m *Manager) render(o outbound) string {
	name := m.config.SenderName
	switch o.kind {
	case messageOffer:
		deadline := ""
		if o.entry.ResponseDeadline != nil {
			deadline = o.entry.ResponseDeadline.UTC().Format("Mon Jan 2 15:04 MST")
		}
		return fmt.Sprintf("%s: A spot has opened up for your waitlisted session %s. Reply YES to accept or NO to decline. You have %s to respond (until %s).",
			name, o.entry.SessionID, humanizeWindow(m.config.ResponseWindow), deadline)
	case messageConfirmed:
		return fmt.Sprintf("%s: You're confirmed for session %s. See you on the range!", name, o.entry.SessionID)
	case messageDeclined:
		return fmt.Sprintf("%s: Thanks for letting us know. Your spot in session %s has been passed on.", name, o.entry.SessionID)
	case messageExpired:
		return fmt.Sprintf("%s: Your offer for session %s expired and the spot went to the next person on the waitlist.", name, o.entry.SessionID)
	}
	return ""
}

// deliver sends queued messages outside the lock. Offers go to every channel,
// follow-ups only to the preferred one.
func (m *Manager) deliver(ctx context.Context, msgs []outbound) {
	if m.gateway == nil {
		return
	}
	// the transition is already committed, a caller hanging up must not cancel delivery
	base := context.WithoutCancel(ctx)

	for _, o := range msgs {
		routes := o.entry.Contact.preferredRoute()
		if o.kind == messageOffer {
			routes = o.entry.Contact.routes()
		}
		body := m.render(o)

		for _, r := range routes {
			sendCtx, cancel := context.WithTimeout(base, m.config.NotificationTimeout)
			err := m.gateway.Send(sendCtx, r.channel, r.address, body)
			cancel()
			if err != nil {
				m.logger.LogNotificationFailed(ctx, string(r.channel), r.address, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err))
			}
		}
	}
}

func humanizeWindow(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		if h := int(d / time.Hour); h != 1 {
			return fmt.Sprintf("%d hours", h)
		}
		return "1 hour"
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
