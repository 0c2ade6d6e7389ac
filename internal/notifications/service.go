package notifications

import (
	"context"
	"fmt"
	"time"

	"academy/internal/shared/config"
	"academy/pkg/logger"

	"github.com/IBM/sarama"
)

// Gateway is what the waitlist manager sends through
type Gateway interface {
	Send(ctx context.Context, channel Channel, address, message string) error
}

// NewSenders picks a provider per channel. Missing credentials fall back to the console.
func NewSenders(cfg config.NotificationConfig, log *logger.Logger) (map[Channel]Sender, error) {
	if log == nil {
		log = logger.GetDefault()
	}
	senders := make(map[Channel]Sender, 2)

	t := cfg.Twilio
	if t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != "" {
		senders[ChannelSMS] = NewTwilioSender(t.AccountSID, t.AuthToken, t.FromNumber)
	} else {
		log.Warn("Twilio credentials missing, SMS goes to the console")
		senders[ChannelSMS] = NewConsoleSender(ChannelSMS, log)
	}

	identity := EmailIdentity{FromEmail: cfg.Email.FromEmail, FromName: cfg.Email.FromName}
	switch cfg.Email.Provider {
	case "sendgrid":
		if cfg.Email.SendGridAPIKey == "" {
			return nil, fmt.Errorf("EMAIL_PROVIDER=sendgrid requires SENDGRID_API_KEY")
		}
		senders[ChannelEmail] = NewSendGridSender(cfg.Email.SendGridAPIKey, identity)
	case "smtp":
		smtpSender, err := NewSMTPSender(&SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			UseTLS:   cfg.Email.UseTLS,
			Identity: identity,
		})
		if err != nil {
			return nil, err
		}
		senders[ChannelEmail] = smtpSender
	case "console", "":
		senders[ChannelEmail] = NewConsoleSender(ChannelEmail, log)
	default:
		return nil, fmt.Errorf("unknown EMAIL_PROVIDER %q", cfg.Email.Provider)
	}

	return senders, nil
}

// Service bundles the delivery pipeline chosen by NOTIFICATION_TRANSPORT
type Service struct {
	Dispatcher *Dispatcher
	Gateway    Gateway

	kafka    *KafkaGateway
	consumer *DeliveryConsumer
	dlq      sarama.SyncProducer
	logger   *logger.Logger
}

// NewService builds the dispatcher and, for the kafka transport, the producer and consumer group
func NewService(cfg config.NotificationConfig, deliveries DeliveryLogRepository, deadLetters DeadLetterRepository, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	senders, err := NewSenders(cfg, log)
	if err != nil {
		return nil, err
	}
	dispatcher := NewDispatcher(senders, RetryConfig{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff}, deliveries, deadLetters, log)

	svc := &Service{Dispatcher: dispatcher, Gateway: dispatcher, logger: log.WithComponent("notifications")}

	switch cfg.Transport {
	case "direct", "":
		return svc, nil
	case "kafka":
	default:
		return nil, fmt.Errorf("unknown NOTIFICATION_TRANSPORT %q", cfg.Transport)
	}

	producerConfig := DefaultKafkaProducerConfig()
	producerConfig.Brokers = cfg.Kafka.Brokers
	producerConfig.Topic = cfg.Kafka.Topic

	gateway, err := NewKafkaGateway(producerConfig, log)
	if err != nil {
		return nil, err
	}

	dlq, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, producerConfig.SaramaConfig())
	if err != nil {
		gateway.Close()
		return nil, fmt.Errorf("failed to create dead letter producer: %w", err)
	}

	consumerConfig := DefaultConsumerConfig()
	consumerConfig.Brokers = cfg.Kafka.Brokers
	consumerConfig.Topic = cfg.Kafka.Topic
	consumerConfig.DeadLetterTopic = cfg.Kafka.DeadLetterTopic
	consumerConfig.GroupID = cfg.Kafka.GroupID
	consumerConfig.Workers = cfg.Kafka.Workers

	consumer, err := NewDeliveryConsumer(consumerConfig, dispatcher, dlq, log)
	if err != nil {
		gateway.Close()
		dlq.Close()
		return nil, err
	}

	svc.Gateway = gateway
	svc.kafka = gateway
	svc.consumer = consumer
	svc.dlq = dlq
	return svc, nil
}

// Start launches the consumer group when the kafka transport is active
func (s *Service) Start(ctx context.Context) {
	if s.consumer != nil {
		s.consumer.Start(ctx)
	}
}

func (s *Service) Stop() {
	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("Error stopping consumer", "error", err.Error())
		}
	}
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Error("Error closing producer", "error", err.Error())
		}
	}
	if s.dlq != nil {
		if err := s.dlq.Close(); err != nil {
			s.logger.Error("Error closing dead letter producer", "error", err.Error())
		}
	}
}

// LogRetention purges old delivery logs
type LogRetention struct {
	repo      DeliveryLogRepository
	retention time.Duration
	now       func() time.Time
	logger    *logger.Logger
}

func NewLogRetention(repo DeliveryLogRepository, retention time.Duration, log *logger.Logger) *LogRetention {
	if log == nil {
		log = logger.GetDefault()
	}
	return &LogRetention{repo: repo, retention: retention, now: time.Now, logger: log.WithComponent("log_retention")}
}

// Run deletes logs older than the retention period
func (r *LogRetention) Run(ctx context.Context) error {
	cutoff := r.now().UTC().Add(-r.retention)
	n, err := r.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.InfoContext(ctx, "Purged delivery logs", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return nil
}
