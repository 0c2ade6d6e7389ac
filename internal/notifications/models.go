package notifications

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel is the transport a message is delivered over
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) IsValid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

var (
	ErrUnsupportedChannel = errors.New("unsupported notification channel")
	ErrDeliveryFailed     = errors.New("notification delivery failed")
	ErrDeadLetterNotFound = errors.New("dead letter not found")
	ErrAlreadyResolved    = errors.New("dead letter already resolved")
)

// OutboundMessage is one message to one address. It is the Kafka payload too.
type OutboundMessage struct {
	ID        uuid.UUID `json:"id"`
	Channel   Channel   `json:"channel"`
	Address   string    `json:"address"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func NewOutboundMessage(channel Channel, address, body string) *OutboundMessage {
	return &OutboundMessage{
		ID:        uuid.New(),
		Channel:   channel,
		Address:   address,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

// GetPartitionKey keeps messages for one address on one partition
func (m *OutboundMessage) GetPartitionKey() string {
	return m.Address
}

func (m *OutboundMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DeliveryLog records a message the provider accepted
type DeliveryLog struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	MessageID   uuid.UUID `json:"message_id" gorm:"type:uuid;not null;index"`
	Channel     Channel   `json:"channel" gorm:"type:varchar(10);not null"`
	Address     string    `json:"address" gorm:"type:varchar(255);not null"`
	ProviderID  string    `json:"provider_id,omitempty" gorm:"type:varchar(128)"`
	Attempts    int       `json:"attempts" gorm:"not null;default:1"`
	DeliveredAt time.Time `json:"delivered_at" gorm:"not null;index"`
}

func (DeliveryLog) TableName() string {
	return "delivery_logs"
}

func (l *DeliveryLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// DeadLetter keeps a message that exhausted its retries so an operator can replay it
type DeadLetter struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	MessageID  uuid.UUID  `json:"message_id" gorm:"type:uuid;not null;index"`
	Channel    Channel    `json:"channel" gorm:"type:varchar(10);not null"`
	Address    string     `json:"address" gorm:"type:varchar(255);not null"`
	Subject    string     `json:"subject,omitempty" gorm:"type:varchar(255)"`
	Body       string     `json:"body" gorm:"type:text;not null"`
	Attempts   int        `json:"attempts" gorm:"not null"`
	RetryCount int        `json:"retry_count" gorm:"not null;default:0"`
	LastError  string     `json:"last_error" gorm:"type:text"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty" gorm:"index"`
	CreatedAt  time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (DeadLetter) TableName() string {
	return "notification_dead_letters"
}

func (d *DeadLetter) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (d *DeadLetter) IsResolved() bool {
	return d.ResolvedAt != nil
}

// Message rebuilds the original payload for a replay
func (d *DeadLetter) Message() *OutboundMessage {
	return &OutboundMessage{
		ID:        d.MessageID,
		Channel:   d.Channel,
		Address:   d.Address,
		Subject:   d.Subject,
		Body:      d.Body,
		CreatedAt: d.CreatedAt,
	}
}

func newDeadLetter(msg *OutboundMessage, attempts int, err error) *DeadLetter {
	return &DeadLetter{
		MessageID: msg.ID,
		Channel:   msg.Channel,
		Address:   msg.Address,
		Subject:   msg.Subject,
		Body:      msg.Body,
		Attempts:  attempts,
		LastError: err.Error(),
	}
}
