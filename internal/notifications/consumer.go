package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"academy/pkg/logger"

	"github.com/IBM/sarama"
)

// Deliverer performs the actual send for a consumed message
type Deliverer interface {
	Deliver(ctx context.Context, msg *OutboundMessage) error
}

type ConsumerConfig struct {
	Brokers           []string
	GroupID           string
	Topic             string
	DeadLetterTopic   string
	Workers           int
	SessionTimeout    time.Duration
	Heartbeat         time.Duration
	MaxProcessingTime time.Duration
	OffsetOldest      bool
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		GroupID:           "academy-notification-workers",
		Topic:             "waitlist-notifications",
		DeadLetterTopic:   "waitlist-notifications-dlq",
		Workers:           2,
		SessionTimeout:    30 * time.Second,
		Heartbeat:         3 * time.Second,
		MaxProcessingTime: 5 * time.Minute,
		OffsetOldest:      true,
	}
}

// DeliveryConsumer drains the notification topic through a Deliverer. Messages that
// cannot be delivered are forwarded to the dead letter topic before their offset is committed.
type DeliveryConsumer struct {
	group   sarama.ConsumerGroup
	config  *ConsumerConfig
	handler *deliveryHandler
	logger  *logger.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDeliveryConsumer(config *ConsumerConfig, deliverer Deliverer, dlq sarama.SyncProducer, log *logger.Logger) (*DeliveryConsumer, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	sc := sarama.NewConfig()
	sc.Consumer.Group.Session.Timeout = config.SessionTimeout
	sc.Consumer.Group.Heartbeat.Interval = config.Heartbeat
	sc.Consumer.MaxProcessingTime = config.MaxProcessingTime
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = time.Second
	if config.OffsetOldest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	group, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	log = log.WithComponent("delivery_consumer")
	return &DeliveryConsumer{
		group:   group,
		config:  config,
		handler: newDeliveryHandler(deliverer, dlq, config.DeadLetterTopic, log),
		logger:  log,
	}, nil
}

// Start launches the workers and returns immediately
func (c *DeliveryConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			c.logger.Error("Consumer group error", "error", err.Error())
		}
	}()

	workers := c.config.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		c.wg.Add(1)
		go func(workerID int) {
			defer c.wg.Done()
			c.run(ctx, workerID)
		}(i)
	}

	c.logger.Info("Notification consumer started", "topic", c.config.Topic, "workers", workers)
}

func (c *DeliveryConsumer) run(ctx context.Context, workerID int) {
	for {
		if err := c.group.Consume(ctx, []string{c.config.Topic}, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			c.logger.Error("Error consuming notifications", "worker", workerID, "error", err.Error())
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Stop cancels the workers, closes the group and waits for in-flight messages
func (c *DeliveryConsumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.group.Close()
	c.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	c.logger.Info("Notification consumer stopped")
	return nil
}

type deliveryHandler struct {
	deliverer Deliverer
	dlq       sarama.SyncProducer
	dlqTopic  string
	logger    *logger.Logger
}

func newDeliveryHandler(deliverer Deliverer, dlq sarama.SyncProducer, dlqTopic string, log *logger.Logger) *deliveryHandler {
	return &deliveryHandler{deliverer: deliverer, dlq: dlq, dlqTopic: dlqTopic, logger: log}
}

func (h *deliveryHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *deliveryHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *deliveryHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if h.process(session.Context(), message) {
				session.MarkMessage(message, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// process returns true when the offset may be committed
func (h *deliveryHandler) process(ctx context.Context, message *sarama.ConsumerMessage) bool {
	var msg OutboundMessage
	if err := json.Unmarshal(message.Value, &msg); err != nil {
		h.logger.Error("Dropping malformed notification", "partition", message.Partition, "offset", message.Offset, "error", err.Error())
		return h.forward(message, err)
	}

	err := h.deliverer.Deliver(ctx, &msg)
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		// rebalance or shutdown, leave it for the next owner
		return false
	}
	return h.forward(message, err)
}

// forward copies a failed message to the dead letter topic
func (h *deliveryHandler) forward(message *sarama.ConsumerMessage, cause error) bool {
	if h.dlq == nil || h.dlqTopic == "" {
		return true
	}

	headers := make([]sarama.RecordHeader, 0, len(message.Headers)+2)
	for _, rh := range message.Headers {
		if rh != nil {
			headers = append(headers, *rh)
		}
	}
	headers = append(headers,
		sarama.RecordHeader{Key: []byte("error"), Value: []byte(cause.Error())},
		sarama.RecordHeader{Key: []byte("source_topic"), Value: []byte(message.Topic)},
	)

	_, _, err := h.dlq.SendMessage(&sarama.ProducerMessage{
		Topic:   h.dlqTopic,
		Key:     sarama.ByteEncoder(message.Key),
		Value:   sarama.ByteEncoder(message.Value),
		Headers: headers,
	})
	if err != nil {
		h.logger.Error("Failed to forward notification to dead letter topic", "error", err.Error())
		return false
	}
	return true
}
