package sessions

import (
	"time"
)

// SessionCapacity is the persisted admission counter for one academy session
type SessionCapacity struct {
	SessionID      string    `json:"session_id" gorm:"primaryKey;type:varchar(128)"`
	ConfirmedCount int       `json:"confirmed_count" gorm:"not null;default:0"`
	MaxCapacity    int       `json:"max_capacity" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (SessionCapacity) TableName() string {
	return "session_capacities"
}

// Capacity is the store-agnostic view handed to callers
type Capacity struct {
	SessionID      string `json:"session_id"`
	ConfirmedCount int    `json:"confirmed_count"`
	MaxCapacity    int    `json:"max_capacity"`
}

// Available returns the number of unconfirmed slots, never negative
func (c Capacity) Available() int {
	if free := c.MaxCapacity - c.ConfirmedCount; free > 0 {
		return free
	}
	return 0
}

// IsFull reports whether no confirmed slot is left
func (c Capacity) IsFull() bool {
	return c.ConfirmedCount >= c.MaxCapacity
}

func (sc *SessionCapacity) toCapacity() *Capacity {
	return &Capacity{
		SessionID:      sc.SessionID,
		ConfirmedCount: sc.ConfirmedCount,
		MaxCapacity:    sc.MaxCapacity,
	}
}
