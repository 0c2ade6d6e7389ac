package sessions

import "errors"

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session is at capacity")
	ErrInvalidCapacity = errors.New("invalid session capacity")
)
