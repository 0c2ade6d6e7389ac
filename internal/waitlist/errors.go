package waitlist

import (
	"errors"
	"fmt"

	"academy/internal/sessions"
)

var (
	ErrInvalidSessionID = errors.New("session id is required")
	ErrInvalidEntrantID = errors.New("entrant id is required")
	ErrInvalidContact   = errors.New("contact must include a phone number or an email address")
	ErrInvalidDecision  = errors.New("decision must be accept or decline")
	ErrWaitlistFull     = errors.New("waitlist is full")
	ErrEntryNotFound    = errors.New("waitlist entry not found")
	ErrResponseExpired  = errors.New("response deadline has passed")
	ErrDuplicateEntry   = errors.New("entrant already has an active entry")
	ErrSessionBusy      = errors.New("session is busy, try again")

	// ErrInvalidTransition guards the forward-only entry lifecycle
	ErrInvalidTransition = errors.New("invalid waitlist status transition")

	ErrCapacityStoreUnavailable = errors.New("capacity store unavailable")
	ErrGatewayUnavailable       = errors.New("notification gateway unavailable")

	// ErrUnrecognizedReply is returned for inbound SMS text that is neither a yes nor a no
	ErrUnrecognizedReply = errors.New("reply not recognized")
)

// capacityError keeps domain outcomes from the capacity store and classifies the rest as infra failures
func capacityError(err error) error {
	if errors.Is(err, sessions.ErrSessionNotFound) || errors.Is(err, sessions.ErrSessionFull) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCapacityStoreUnavailable, err)
}
