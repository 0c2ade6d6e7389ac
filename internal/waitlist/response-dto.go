package waitlist

import (
	"encoding/xml"
	"time"

	"github.com/google/uuid"
)

// EntryResponse is the entrant facing view of an entry
type EntryResponse struct {
	ID                   uuid.UUID  `json:"id"`
	SessionID            string     `json:"session_id"`
	EntrantID            string     `json:"entrant_id"`
	Status               Status     `json:"status"`
	Position             int        `json:"position,omitempty"`
	JoinedAt             time.Time  `json:"joined_at"`
	NotifiedAt           *time.Time `json:"notified_at,omitempty"`
	ResponseDeadline     *time.Time `json:"response_deadline,omitempty"`
	RespondedAt          *time.Time `json:"responded_at,omitempty"`
	TimeRemainingSeconds *int64     `json:"time_remaining_seconds,omitempty"`
}

// JoinResponse is returned by the join endpoint
type JoinResponse struct {
	Status   Status         `json:"status"`
	Position int            `json:"position,omitempty"`
	Entry    *EntryResponse `json:"entry,omitempty"`
}

// RespondResponse is returned by respond and leave
type RespondResponse struct {
	Status Status         `json:"status"`
	Entry  *EntryResponse `json:"entry,omitempty"`
}

// AdmitResponse lists the entrants that received an offer
type AdmitResponse struct {
	SessionID string          `json:"session_id"`
	Notified  []EntryResponse `json:"notified"`
}

// SweepResponse reports one expiry sweep
type SweepResponse struct {
	Expired int       `json:"expired"`
	RanAt   time.Time `json:"ran_at"`
}

// SnapshotResponse is the operator view of a queue
type SnapshotResponse struct {
	SessionID      string          `json:"session_id"`
	ConfirmedCount int             `json:"confirmed_count"`
	MaxCapacity    int             `json:"max_capacity"`
	FreeSlots      int             `json:"free_slots"`
	Waiting        []EntryResponse `json:"waiting"`
	Notified       []EntryResponse `json:"notified"`
}

// twimlResponse is the body Twilio expects from a messaging webhook
type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

func toEntryResponse(e *Entry, now time.Time) *EntryResponse {
	if e == nil {
		return nil
	}
	resp := &EntryResponse{
		ID:               e.ID,
		SessionID:        e.SessionID,
		EntrantID:        e.EntrantID,
		Status:           e.Status,
		Position:         e.Position,
		JoinedAt:         e.JoinedAt,
		NotifiedAt:       e.NotifiedAt,
		ResponseDeadline: e.ResponseDeadline,
		RespondedAt:      e.RespondedAt,
	}
	if remaining := e.TimeRemaining(now); remaining != nil {
		secs := int64(remaining.Seconds())
		resp.TimeRemainingSeconds = &secs
	}
	return resp
}

func toEntryResponses(entries []*Entry, now time.Time) []EntryResponse {
	out := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, *toEntryResponse(e, now))
	}
	return out
}
