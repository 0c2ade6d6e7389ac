package sessions

import "context"

// Store is the authoritative source for a session's confirmed count and ceiling.
// IncrementConfirmed and DecrementConfirmed must be atomic with respect to each other.
type Store interface {
	GetCapacity(ctx context.Context, sessionID string) (*Capacity, error)

	// IncrementConfirmed returns ErrSessionFull when confirmedCount already equals maxCapacity.
	IncrementConfirmed(ctx context.Context, sessionID string) (int, error)

	// DecrementConfirmed floors at zero.
	DecrementConfirmed(ctx context.Context, sessionID string) (int, error)

	// SetMaxCapacity creates the session when missing. Lowering the ceiling below the
	// current confirmed count returns ErrInvalidCapacity.
	SetMaxCapacity(ctx context.Context, sessionID string, maxCapacity int) (*Capacity, error)
}

// CapacityUpdater applies a new ceiling and hands any slots it opens to the waitlist.
// Capacity changes from the API go through it rather than straight to the Store.
type CapacityUpdater interface {
	SetCapacity(ctx context.Context, sessionID string, maxCapacity int) (*Capacity, error)
}
