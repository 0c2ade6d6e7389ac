package waitlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"academy/internal/notifications"
	"academy/internal/sessions"
	"academy/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMessage struct {
	Channel notifications.Channel
	Address string
	Body    string
}

// recordingGateway captures every send and can be told to fail
type recordingGateway struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

func (g *recordingGateway) Send(_ context.Context, channel notifications.Channel, address, message string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, sentMessage{channel, address, message})
	return g.fail
}

func (g *recordingGateway) Messages() []sentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]sentMessage(nil), g.sent...)
}

func (g *recordingGateway) To(address string) []sentMessage {
	var out []sentMessage
	for _, m := range g.Messages() {
		if m.Address == address {
			out = append(out, m)
		}
	}
	return out
}

func (g *recordingGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = nil
}

type testEnv struct {
	manager  *Manager
	repo     *MemoryRepository
	capacity *sessions.MemoryStore
	gateway  *recordingGateway
	clock    *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:     NewMemoryRepository(),
		capacity: sessions.NewMemoryStore(),
		gateway:  &recordingGateway{},
		clock:    newFakeClock(),
	}
	env.manager = NewManager(env.repo, env.capacity, env.gateway, NewLocalLocker(time.Second), env.clock, DefaultManagerConfig(), logger.NewNop())
	return env
}

func (e *testEnv) confirmed(t *testing.T, sessionID string) int {
	t.Helper()
	c, err := e.capacity.GetCapacity(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("capacity: %v", err)
	}
	return c.ConfirmedCount
}

func (e *testEnv) entry(t *testing.T, sessionID, entrantID string) *Entry {
	t.Helper()
	entry, err := e.repo.GetActive(context.Background(), sessionID, entrantID)
	if err != nil {
		t.Fatalf("entry %s/%s: %v", sessionID, entrantID, err)
	}
	return entry
}

// latest returns the most recent entry for an entrant including archived ones
func (e *testEnv) latest(sessionID, entrantID string) *Entry {
	var found *Entry
	for _, entry := range e.repo.All() {
		if entry.SessionID == sessionID && entry.EntrantID == entrantID {
			found = entry
		}
	}
	return found
}

func phoneOf(entrantID string) Contact {
	digits := map[string]string{"A": "1", "B": "2", "C": "3", "D": "4", "E": "5", "F": "6", "G": "7"}[entrantID]
	if digits == "" {
		digits = "9"
	}
	return Contact{Phone: "+1555000000" + digits}
}

// flakyCapacity fails every call after the switch is flipped
type flakyCapacity struct {
	*sessions.MemoryStore
	broken bool
}

var errStoreDown = errors.New("connection refused")

func (f *flakyCapacity) GetCapacity(ctx context.Context, id string) (*sessions.Capacity, error) {
	if f.broken {
		return nil, errStoreDown
	}
	return f.MemoryStore.GetCapacity(ctx, id)
}
