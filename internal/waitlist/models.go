package waitlist

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status represents the lifecycle state of a waitlist entry
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusNotified  Status = "notified"
	StatusConfirmed Status = "confirmed"
	StatusDeclined  Status = "declined"
	StatusExpired   Status = "expired"
)

// Decision is the entrant's answer to an offer
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

func (d Decision) IsValid() bool {
	return d == DecisionAccept || d == DecisionDecline
}

// Contact holds the channels an entrant can be reached on. At least one is required.
type Contact struct {
	Phone string `json:"phone,omitempty" gorm:"type:varchar(32);index"`
	Email string `json:"email,omitempty" gorm:"type:varchar(255)"`
}

// Entry is one entrant's place in a session waitlist.
// At most one waiting or notified entry exists per (session, entrant).
type Entry struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID        string     `json:"session_id" gorm:"type:varchar(128);not null;index:idx_waitlist_session_status,priority:1;uniqueIndex:idx_waitlist_active_entrant,priority:1,where:status = 'waiting' OR status = 'notified'"`
	EntrantID        string     `json:"entrant_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_waitlist_active_entrant,priority:2,where:status = 'waiting' OR status = 'notified'"`
	Contact          Contact    `json:"contact" gorm:"embedded;embeddedPrefix:contact_"`
	Position         int        `json:"position,omitempty" gorm:"not null;default:0"`
	Status           Status     `json:"status" gorm:"type:varchar(20);not null;index:idx_waitlist_session_status,priority:2"`
	JoinedAt         time.Time  `json:"joined_at" gorm:"not null"`
	NotifiedAt       *time.Time `json:"notified_at,omitempty"`
	ResponseDeadline *time.Time `json:"response_deadline,omitempty" gorm:"index"`
	RespondedAt      *time.Time `json:"responded_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Entry) TableName() string {
	return "waitlist_entries"
}

// BeforeCreate assigns the primary key when the caller did not
func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// IsActive returns true while the entry still holds a place in the queue or an offer
func (e *Entry) IsActive() bool {
	return e.Status == StatusWaiting || e.Status == StatusNotified
}

// TimeRemaining returns how long the offer stays open, nil when not notified or past due
func (e *Entry) TimeRemaining(now time.Time) *time.Duration {
	if e.Status != StatusNotified || e.ResponseDeadline == nil {
		return nil
	}
	remaining := e.ResponseDeadline.Sub(now)
	if remaining < 0 {
		return nil
	}
	return &remaining
}

// deadlinePassed uses a strict comparison, a response exactly at the deadline is on time
func (e *Entry) deadlinePassed(now time.Time) bool {
	return e.ResponseDeadline != nil && now.After(*e.ResponseDeadline)
}

func (e *Entry) markNotified(now time.Time, window time.Duration) error {
	if !e.Status.CanTransitionTo(StatusNotified) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.Status, StatusNotified)
	}
	deadline := now.Add(window)
	e.Status = StatusNotified
	e.Position = 0
	e.NotifiedAt = &now
	e.ResponseDeadline = &deadline
	return nil
}

func (e *Entry) resolve(status Status, now time.Time) error {
	if !e.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, e.Status, status)
	}
	e.Status = status
	e.Position = 0
	e.RespondedAt = &now
	return nil
}

func (s Status) IsValid() bool {
	switch s {
	case StatusWaiting, StatusNotified, StatusConfirmed, StatusDeclined, StatusExpired:
		return true
	default:
		return false
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusDeclined || s == StatusExpired
}

// CanTransitionTo checks the forward-only state machine. Terminal states never move.
func (s Status) CanTransitionTo(target Status) bool {
	if s.IsTerminal() {
		return false
	}
	validTransitions := map[Status][]Status{
		StatusWaiting:   {StatusNotified},
		StatusNotified:  {StatusConfirmed, StatusDeclined, StatusExpired},
		StatusConfirmed: {},
		StatusDeclined:  {},
		StatusExpired:   {},
	}

	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// JoinResult is returned by JoinWaitlist. Entry is nil for a direct confirmation.
type JoinResult struct {
	Status   Status `json:"status"`
	Position int    `json:"position,omitempty"`
	Entry    *Entry `json:"entry,omitempty"`
}

// RespondResult is returned by Respond and LeaveWaitlist
type RespondResult struct {
	Status Status `json:"status"`
	Entry  *Entry `json:"entry"`
}

// Snapshot is the operator view of a session's queue
type Snapshot struct {
	SessionID      string   `json:"session_id"`
	ConfirmedCount int      `json:"confirmed_count"`
	MaxCapacity    int      `json:"max_capacity"`
	FreeSlots      int      `json:"free_slots"`
	Waiting        []*Entry `json:"waiting"`
	Notified       []*Entry `json:"notified"`
}
