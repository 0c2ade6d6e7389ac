package notifications

import (
	"context"
	"fmt"
	"time"

	"academy/pkg/logger"

	"github.com/google/uuid"
)

// RetryConfig controls per message retries
type RetryConfig struct {
	MaxRetries int
	Backoff    time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, Backoff: 500 * time.Millisecond}
}

// Dispatcher delivers messages synchronously through the sender registered for
// each channel. It is the direct NotificationGateway and the worker behind the Kafka consumer.
type Dispatcher struct {
	senders     map[Channel]Sender
	retry       RetryConfig
	deliveries  DeliveryLogRepository
	deadLetters DeadLetterRepository
	logger      *logger.Logger
}

// NewDispatcher wires the senders. Either repository may be nil to skip bookkeeping.
func NewDispatcher(senders map[Channel]Sender, retry RetryConfig, deliveries DeliveryLogRepository, deadLetters DeadLetterRepository, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Dispatcher{
		senders:     senders,
		retry:       retry,
		deliveries:  deliveries,
		deadLetters: deadLetters,
		logger:      log.WithComponent("dispatcher"),
	}
}

// Send satisfies the waitlist gateway contract
func (d *Dispatcher) Send(ctx context.Context, channel Channel, address, message string) error {
	return d.Deliver(ctx, NewOutboundMessage(channel, address, message))
}

// Deliver sends one message, logging it on success and dead-lettering it once retries run out
func (d *Dispatcher) Deliver(ctx context.Context, msg *OutboundMessage) error {
	providerID, attempts, err := d.attempt(ctx, msg)
	if err != nil {
		d.storeDeadLetter(ctx, msg, attempts, err)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	d.recordDelivery(ctx, msg, providerID, attempts)
	return nil
}

// RetryDeadLetter replays a dead letter. A failed replay keeps the dead letter open.
func (d *Dispatcher) RetryDeadLetter(ctx context.Context, id uuid.UUID) (*DeadLetter, error) {
	if d.deadLetters == nil {
		return nil, ErrDeadLetterNotFound
	}

	dl, err := d.deadLetters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dl.IsResolved() {
		return dl, ErrAlreadyResolved
	}

	msg := dl.Message()
	providerID, attempts, err := d.attempt(ctx, msg)
	if err != nil {
		if recErr := d.deadLetters.RecordRetryFailure(ctx, id, err.Error()); recErr != nil {
			d.logger.ErrorWithContext(ctx, "Failed to record retry failure", recErr, map[string]interface{}{"dead_letter_id": id.String()})
		}
		dl.RetryCount++
		dl.LastError = err.Error()
		return dl, fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	now := time.Now().UTC()
	if err := d.deadLetters.MarkResolved(ctx, id, now); err != nil {
		return nil, err
	}
	d.recordDelivery(ctx, msg, providerID, attempts)

	dl.RetryCount++
	dl.ResolvedAt = &now
	d.logger.InfoContext(ctx, "Dead letter replayed", "dead_letter_id", id.String(), "channel", string(msg.Channel))
	return dl, nil
}

// attempt runs the retry loop with exponential backoff and returns the number of tries made
func (d *Dispatcher) attempt(ctx context.Context, msg *OutboundMessage) (string, int, error) {
	sender, ok := d.senders[msg.Channel]
	if !ok || sender == nil {
		return "", 0, fmt.Errorf("%w: %q", ErrUnsupportedChannel, msg.Channel)
	}

	var lastErr error
	for attempt := 0; attempt <= d.retry.MaxRetries; attempt++ {
		providerID, err := sender.Send(ctx, msg)
		if err == nil {
			if attempt > 0 {
				d.logger.InfoContext(ctx, "Message delivered after retry", "message_id", msg.ID.String(), "retries", attempt)
			}
			return providerID, attempt + 1, nil
		}
		lastErr = err

		if attempt == d.retry.MaxRetries {
			break
		}

		delay := d.retry.Backoff * time.Duration(1<<attempt)
		d.logger.WarnContext(ctx, "Message delivery failed, retrying",
			"message_id", msg.ID.String(), "channel", string(msg.Channel), "attempt", attempt+1, "delay", delay.String(), "error", err.Error())

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", attempt + 1, ctx.Err()
		}
	}

	return "", d.retry.MaxRetries + 1, lastErr
}

func (d *Dispatcher) recordDelivery(ctx context.Context, msg *OutboundMessage, providerID string, attempts int) {
	if d.deliveries == nil {
		return
	}
	entry := &DeliveryLog{
		MessageID:   msg.ID,
		Channel:     msg.Channel,
		Address:     msg.Address,
		ProviderID:  providerID,
		Attempts:    attempts,
		DeliveredAt: time.Now().UTC(),
	}
	// bookkeeping must outlive a caller timeout
	if err := d.deliveries.Create(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.ErrorWithContext(ctx, "Failed to record delivery", err, map[string]interface{}{"message_id": msg.ID.String()})
	}
}

func (d *Dispatcher) storeDeadLetter(ctx context.Context, msg *OutboundMessage, attempts int, cause error) {
	d.logger.LogNotificationFailed(ctx, string(msg.Channel), msg.Address, cause)
	if d.deadLetters == nil {
		return
	}
	if err := d.deadLetters.Create(context.WithoutCancel(ctx), newDeadLetter(msg, attempts, cause)); err != nil {
		d.logger.ErrorWithContext(ctx, "Failed to store dead letter", err, map[string]interface{}{"message_id": msg.ID.String()})
	}
}
