package notifications

import (
	"context"
	"fmt"
	"time"

	"academy/pkg/logger"

	"github.com/IBM/sarama"
)

// KafkaProducerConfig contains configuration for the Kafka notification producer
type KafkaProducerConfig struct {
	Brokers          []string
	Topic            string
	RetryMax         int
	Timeout          time.Duration
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "waitlist-notifications",
		RetryMax:         3,
		Timeout:          10 * time.Second,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000,
	}
}

// SaramaConfig builds the sarama producer settings
func (c *KafkaProducerConfig) SaramaConfig() *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = c.RequiredAcks
	sc.Producer.Compression = c.CompressionType
	sc.Producer.Retry.Max = c.RetryMax
	sc.Producer.Timeout = c.Timeout
	sc.Producer.Idempotent = c.IdempotentWrites
	sc.Producer.MaxMessageBytes = c.MaxMessageBytes
	if c.IdempotentWrites {
		sc.Net.MaxOpenRequests = 1
	}
	// same address, same partition, so a recipient sees messages in order
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	return sc
}

// KafkaGateway publishes outbound messages for the delivery consumer instead of sending them inline
type KafkaGateway struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logger.Logger
}

func NewKafkaGateway(config *KafkaProducerConfig, log *logger.Logger) (*KafkaGateway, error) {
	producer, err := sarama.NewSyncProducer(config.Brokers, config.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaGatewayWithProducer(producer, config.Topic, log), nil
}

func NewKafkaGatewayWithProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) *KafkaGateway {
	if log == nil {
		log = logger.GetDefault()
	}
	return &KafkaGateway{producer: producer, topic: topic, logger: log.WithComponent("kafka_gateway")}
}

// Send satisfies the waitlist gateway contract. A nil error means the broker accepted the message.
func (g *KafkaGateway) Send(ctx context.Context, channel Channel, address, message string) error {
	if !channel.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedChannel, channel)
	}
	return g.Publish(ctx, NewOutboundMessage(channel, address, message))
}

func (g *KafkaGateway) Publish(ctx context.Context, msg *OutboundMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pm, err := producerMessage(g.topic, msg, nil)
	if err != nil {
		return err
	}

	partition, offset, err := g.producer.SendMessage(pm)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	g.logger.DebugContext(ctx, "Notification published",
		"topic", g.topic, "partition", partition, "offset", offset, "message_id", msg.ID.String(), "channel", string(msg.Channel))
	return nil
}

func (g *KafkaGateway) Close() error {
	if err := g.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func producerMessage(topic string, msg *OutboundMessage, extra []sarama.RecordHeader) (*sarama.ProducerMessage, error) {
	body, err := msg.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	headers := []sarama.RecordHeader{
		{Key: []byte("message_id"), Value: []byte(msg.ID.String())},
		{Key: []byte("channel"), Value: []byte(msg.Channel)},
		{Key: []byte("producer"), Value: []byte("academy-waitlist")},
		{Key: []byte("created_at"), Value: []byte(msg.CreatedAt.Format(time.RFC3339))},
	}
	return &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(msg.GetPartitionKey()),
		Value:     sarama.ByteEncoder(body),
		Headers:   append(headers, extra...),
		Timestamp: msg.CreatedAt,
	}, nil
}
