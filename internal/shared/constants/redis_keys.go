package constants

import "fmt"

// Redis keys used by the academy service
// Pattern: academy:{module}:{kind}:{identifier}

const (
	KEY_PREFIX = "academy"

	KEY_SESSION_CAPACITY = KEY_PREFIX + ":sessions:capacity:" // + session-id (hash: confirmed, max)
	KEY_CAPACITY_VIEW    = KEY_PREFIX + ":sessions:view:"     // + session-id (cached json)
	KEY_WAITLIST_LOCK    = KEY_PREFIX + ":waitlist:lock:"     // + session-id
	KEY_RATELIMIT        = KEY_PREFIX + ":ratelimit"          // + :ip:type
)

// SessionCapacityKey returns the hash holding a session's counters
func SessionCapacityKey(sessionID string) string {
	return KEY_SESSION_CAPACITY + sessionID
}

// CapacityViewKey returns the cached public capacity view of a session
func CapacityViewKey(sessionID string) string {
	return KEY_CAPACITY_VIEW + sessionID
}

// WaitlistLockKey returns the per-session critical section key
func WaitlistLockKey(sessionID string) string {
	return KEY_WAITLIST_LOCK + sessionID
}

// RateLimitKey returns the sliding window key for a client and limit type
func RateLimitKey(clientIP, limitType string) string {
	return fmt.Sprintf("%s:%s:%s", KEY_RATELIMIT, clientIP, limitType)
}
