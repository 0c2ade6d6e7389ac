package waitlist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is a process-local Repository. Entries are copied on the way in and out.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
	seq     map[uuid.UUID]int64
	next    int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		entries: make(map[uuid.UUID]*Entry),
		seq:     make(map[uuid.UUID]int64),
	}
}

func (r *MemoryRepository) Create(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.IsActive() {
		for _, e := range r.entries {
			if e.IsActive() && e.SessionID == entry.SessionID && e.EntrantID == entry.EntrantID {
				return ErrDuplicateEntry
			}
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	now := time.Now().UTC()
	entry.CreatedAt, entry.UpdatedAt = now, now

	r.next++
	r.seq[entry.ID] = r.next
	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[entry.ID]; !ok {
		return ErrEntryNotFound
	}
	entry.UpdatedAt = time.Now().UTC()
	r.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(r.entries, id)
	delete(r.seq, id)
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return cloneEntry(e), nil
}

func (r *MemoryRepository) GetActive(_ context.Context, sessionID, entrantID string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.IsActive() && e.SessionID == sessionID && e.EntrantID == entrantID {
			return cloneEntry(e), nil
		}
	}
	return nil, ErrEntryNotFound
}

func (r *MemoryRepository) ListByStatus(_ context.Context, sessionID string, status Status) ([]*Entry, error) {
	out := r.filter(func(e *Entry) bool {
		return e.SessionID == sessionID && e.Status == status
	})
	if status == StatusNotified {
		sortByDeadline(out)
	} else {
		orderQueue(out)
	}
	return out, nil
}

func (r *MemoryRepository) CountByStatus(ctx context.Context, sessionID string, status Status) (int, error) {
	entries, _ := r.ListByStatus(ctx, sessionID, status)
	return len(entries), nil
}

func (r *MemoryRepository) UpdatePositions(_ context.Context, entries []*Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range entries {
		if _, ok := r.entries[e.ID]; !ok {
			return ErrEntryNotFound
		}
	}
	for _, e := range entries {
		r.entries[e.ID].Position = e.Position
	}
	return nil
}

func (r *MemoryRepository) ListExpired(_ context.Context, now time.Time, limit int) ([]*Entry, error) {
	out := r.filter(func(e *Entry) bool {
		return e.Status == StatusNotified && e.ResponseDeadline != nil && e.ResponseDeadline.Before(now)
	})
	sortByDeadline(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListSessionsWithWaiting(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, e := range r.filter(func(e *Entry) bool { return e.Status == StatusWaiting }) {
		if !seen[e.SessionID] {
			seen[e.SessionID] = true
			out = append(out, e.SessionID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRepository) FindNotifiedByPhone(_ context.Context, phone string) ([]*Entry, error) {
	out := r.filter(func(e *Entry) bool {
		return e.Status == StatusNotified && e.Contact.Phone == phone
	})
	sortByDeadline(out)
	return out, nil
}

// All returns every stored entry including archived ones, in insertion order
func (r *MemoryRepository) All() []*Entry {
	out := r.filter(func(*Entry) bool { return true })
	r.mu.RLock()
	defer r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	return out
}

func (r *MemoryRepository) filter(keep func(*Entry) bool) []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Entry
	for _, e := range r.entries {
		if keep(e) {
			out = append(out, cloneEntry(e))
		}
	}
	// map iteration is random, fall back to insertion order before the caller sorts
	sort.SliceStable(out, func(i, j int) bool { return r.seq[out[i].ID] < r.seq[out[j].ID] })
	return out
}

func sortByDeadline(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].ResponseDeadline, entries[j].ResponseDeadline
		if a == nil || b == nil {
			return b != nil
		}
		return a.Before(*b)
	})
}

func cloneEntry(e *Entry) *Entry {
	cp := *e
	if e.NotifiedAt != nil {
		t := *e.NotifiedAt
		cp.NotifiedAt = &t
	}
	if e.ResponseDeadline != nil {
		t := *e.ResponseDeadline
		cp.ResponseDeadline = &t
	}
	if e.RespondedAt != nil {
		t := *e.RespondedAt
		cp.RespondedAt = &t
	}
	return &cp
}
