package waitlist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"academy/internal/sessions"
	"academy/pkg/logger"
)

// CapacityStore is the subset of sessions.Store the manager needs
type CapacityStore interface {
	GetCapacity(ctx context.Context, sessionID string) (*sessions.Capacity, error)
	IncrementConfirmed(ctx context.Context, sessionID string) (int, error)
	DecrementConfirmed(ctx context.Context, sessionID string) (int, error)
	SetMaxCapacity(ctx context.Context, sessionID string, maxCapacity int) (*sessions.Capacity, error)
}

// ManagerConfig contains configuration for the admission workflow
type ManagerConfig struct {
	ResponseWindow      time.Duration
	MaxQueueLength      int
	NotificationTimeout time.Duration
	SweepBatchSize      int
	SenderName          string
}

// DefaultManagerConfig returns default manager configuration
func DefaultManagerConfig() *ManagerConfig {
	return &ManagerConfig{
		ResponseWindow:      24 * time.Hour,
		MaxQueueLength:      5,
		NotificationTimeout: 10 * time.Second,
		SweepBatchSize:      500,
		SenderName:          "RYP Golf",
	}
}

// Manager runs the join / admit / respond / expire cycle. Every mutation of a
// session happens while holding that session's lock, gateway sends happen after it is released.
type Manager struct {
	repo     Repository
	capacity CapacityStore
	gateway  NotificationGateway
	locker   Locker
	clock    Clock
	config   *ManagerConfig
	logger   *logger.Logger
}

// NewManager wires the collaborators. nil config, locker or clock fall back to defaults.
func NewManager(repo Repository, capacity CapacityStore, gateway NotificationGateway, locker Locker, clock Clock, config *ManagerConfig, log *logger.Logger) *Manager {
	if config == nil {
		config = DefaultManagerConfig()
	}
	if locker == nil {
		locker = NewLocalLocker(0)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = logger.GetDefault()
	}

	return &Manager{
		repo:     repo,
		capacity: capacity,
		gateway:  gateway,
		locker:   locker,
		clock:    clock,
		config:   config,
		logger:   log.WithComponent("waitlist"),
	}
}

// JoinWaitlist confirms the entrant straight away when a slot is free and nobody is queued,
// otherwise appends a waiting entry. The joiner gets no message; free slots left unclaimed
// by an earlier capacity change are offered to the queue first.
func (m *Manager) JoinWaitlist(ctx context.Context, sessionID, entrantID string, contact Contact) (*JoinResult, error) {
	sessionID, entrantID = strings.TrimSpace(sessionID), strings.TrimSpace(entrantID)
	if err := validateIDs(sessionID, entrantID); err != nil {
		return nil, err
	}
	contact = contact.Normalize()
	if err := contact.Validate(); err != nil {
		return nil, err
	}

	unlock, err := m.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result, admitted, err := m.joinLocked(ctx, sessionID, entrantID, contact)
	unlock()

	m.deliver(ctx, offersFor(admitted))
	return result, err
}

func (m *Manager) joinLocked(ctx context.Context, sessionID, entrantID string, contact Contact) (*JoinResult, []*Entry, error) {
	existing, err := m.repo.GetActive(ctx, sessionID, entrantID)
	if err == nil {
		return joinResultFor(existing), nil, nil
	}
	if !errors.Is(err, ErrEntryNotFound) {
		return nil, nil, err
	}

	capacity, err := m.capacity.GetCapacity(ctx, sessionID)
	if err != nil {
		return nil, nil, capacityError(err)
	}
	waiting, err := m.repo.ListByStatus(ctx, sessionID, StatusWaiting)
	if err != nil {
		return nil, nil, err
	}
	notified, err := m.repo.CountByStatus(ctx, sessionID, StatusNotified)
	if err != nil {
		return nil, nil, err
	}

	free := freeSlots(capacity, notified)

	// slots opened without anyone admitting the queue, earlier joiners go first
	var admitted []*Entry
	if len(waiting) > 0 && free > 0 {
		admitted, err = m.admitLocked(ctx, sessionID)
		if err != nil {
			return nil, admitted, err
		}
		free -= len(admitted)
		waiting = waiting[len(admitted):]
	}

	if len(waiting) == 0 && free > 0 {
		count, err := m.capacity.IncrementConfirmed(ctx, sessionID)
		switch {
		case err == nil:
			m.logger.LogEntrantConfirmed(ctx, sessionID, entrantID, count)
			return &JoinResult{Status: StatusConfirmed}, admitted, nil
		case !errors.Is(err, sessions.ErrSessionFull):
			return nil, admitted, capacityError(err)
		}
		// lost the slot to a writer outside this lock, queue instead
	}

	if len(waiting) >= m.config.MaxQueueLength {
		return nil, admitted, ErrWaitlistFull
	}

	entry := &Entry{
		SessionID: sessionID,
		EntrantID: entrantID,
		Contact:   contact,
		Position:  len(waiting) + 1,
		Status:    StatusWaiting,
		JoinedAt:  m.clock.Now(),
	}
	if err := m.repo.Create(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			if existing, getErr := m.repo.GetActive(ctx, sessionID, entrantID); getErr == nil {
				return joinResultFor(existing), admitted, nil
			}
		}
		return nil, admitted, err
	}

	m.logger.LogEntrantJoined(ctx, sessionID, entrantID, entry.Position)
	return &JoinResult{Status: StatusWaiting, Position: entry.Position, Entry: entry}, admitted, nil
}

// ReleaseSlot gives back one confirmed slot and offers it to the queue
func (m *Manager) ReleaseSlot(ctx context.Context, sessionID string) ([]*Entry, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	unlock, err := m.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	count, err := m.capacity.DecrementConfirmed(ctx, sessionID)
	if err != nil {
		unlock()
		return nil, capacityError(err)
	}
	m.logger.InfoContext(ctx, "Confirmed slot released", "session_id", sessionID, "confirmed_count", count)

	admitted, err := m.admitLocked(ctx, sessionID)
	unlock()

	m.deliver(ctx, offersFor(admitted))
	return admitted, err
}

// AdmitNext notifies waiting entrants in FIFO order while free slots remain.
// An empty result means nobody was eligible or no slot was free.
func (m *Manager) AdmitNext(ctx context.Context, sessionID string) ([]*Entry, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	unlock, err := m.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	admitted, err := m.admitLocked(ctx, sessionID)
	unlock()

	m.deliver(ctx, offersFor(admitted))
	return admitted, err
}

// admitLocked must be called with the session lock held. Capacity is read here, never before the lock.
func (m *Manager) admitLocked(ctx context.Context, sessionID string) ([]*Entry, error) {
	capacity, err := m.capacity.GetCapacity(ctx, sessionID)
	if err != nil {
		return nil, capacityError(err)
	}
	waiting, err := m.repo.ListByStatus(ctx, sessionID, StatusWaiting)
	if err != nil {
		return nil, err
	}
	notified, err := m.repo.CountByStatus(ctx, sessionID, StatusNotified)
	if err != nil {
		return nil, err
	}

	free := freeSlots(capacity, notified)
	now := m.clock.Now()

	var admitted []*Entry
	for free > 0 && len(waiting) > 0 {
		head := waiting[0]
		waiting = waiting[1:]

		if err := head.markNotified(now, m.config.ResponseWindow); err != nil {
			return admitted, err
		}
		if err := m.repo.Update(ctx, head); err != nil {
			return admitted, fmt.Errorf("failed to mark entry notified: %w", err)
		}
		admitted = append(admitted, head)
		free--

		m.logger.LogEntrantNotified(ctx, sessionID, head.EntrantID, *head.ResponseDeadline)
	}

	if len(admitted) > 0 {
		if err := m.repo.UpdatePositions(ctx, assignPositions(waiting)); err != nil {
			return admitted, err
		}
	}
	return admitted, nil
}

// Respond records the entrant's answer to an outstanding offer. A response after the
// deadline expires the entry, moves the offer on and returns ErrResponseExpired.
func (m *Manager) Respond(ctx context.Context, sessionID, entrantID string, decision Decision) (*RespondResult, error) {
	sessionID, entrantID = strings.TrimSpace(sessionID), strings.TrimSpace(entrantID)
	if err := validateIDs(sessionID, entrantID); err != nil {
		return nil, err
	}
	if !decision.IsValid() {
		return nil, ErrInvalidDecision
	}

	unlock, err := m.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	result, msgs, err := m.respondLocked(ctx, sessionID, entrantID, decision)
	unlock()

	m.deliver(ctx, msgs)
	return result, err
}

func (m *Manager) respondLocked(ctx context.Context, sessionID, entrantID string, decision Decision) (*RespondResult, []outbound, error) {
	entry, err := m.repo.GetActive(ctx, sessionID, entrantID)
	if err != nil {
		return nil, nil, err
	}
	if entry.Status != StatusNotified {
		return nil, nil, ErrEntryNotFound
	}

	now := m.clock.Now()
	if entry.deadlinePassed(now) {
		msgs, err := m.expireLocked(ctx, sessionID, []*Entry{entry}, now)
		if err != nil {
			return nil, msgs, err
		}
		return &RespondResult{Status: StatusExpired, Entry: entry}, msgs, ErrResponseExpired
	}

	switch decision {
	case DecisionAccept:
		if err := entry.resolve(StatusConfirmed, now); err != nil {
			return nil, nil, err
		}
		count, err := m.capacity.IncrementConfirmed(ctx, sessionID)
		if err != nil {
			return nil, nil, capacityError(err)
		}
		if err := m.repo.Update(ctx, entry); err != nil {
			if _, undoErr := m.capacity.DecrementConfirmed(ctx, sessionID); undoErr != nil {
				m.logger.ErrorWithContext(ctx, "Failed to roll back confirmed count", undoErr,
					map[string]interface{}{"session_id": sessionID, "entrant_id": entrantID})
			}
			return nil, nil, err
		}
		m.logger.LogEntrantConfirmed(ctx, sessionID, entrantID, count)
		return &RespondResult{Status: StatusConfirmed, Entry: entry}, []outbound{{messageConfirmed, entry}}, nil

	default:
		if err := entry.resolve(StatusDeclined, now); err != nil {
			return nil, nil, err
		}
		if err := m.repo.Update(ctx, entry); err != nil {
			return nil, nil, err
		}
		m.logger.LogEntrantResolved(ctx, sessionID, entrantID, string(StatusDeclined))

		msgs := []outbound{{messageDeclined, entry}}
		admitted, err := m.admitLocked(ctx, sessionID)
		msgs = append(msgs, offersFor(admitted)...)
		return &RespondResult{Status: StatusDeclined, Entry: entry}, msgs, err
	}
}

// ExpireStale expires every offer whose deadline is before now and re-admits each
// affected session in the same call. Sessions whose queue sits behind free slots are
// admitted as well. Sessions are processed one lock at a time.
func (m *Manager) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()

	var (
		total int
		errs  []error
		seen  = make(map[string]bool)
	)
	for {
		candidates, err := m.repo.ListExpired(ctx, now, m.config.SweepBatchSize)
		if err != nil {
			return total, errors.Join(append(errs, err)...)
		}

		var order []string
		for _, e := range candidates {
			if !seen[e.SessionID] {
				seen[e.SessionID] = true
				order = append(order, e.SessionID)
			}
		}

		for _, sessionID := range order {
			n, err := m.expireSession(ctx, sessionID, now)
			total += n
			if err != nil {
				errs = append(errs, fmt.Errorf("session %s: %w", sessionID, err))
			}
		}

		// a short batch is the last one; a batch with no new session means the rest failed to expire
		if m.config.SweepBatchSize <= 0 || len(candidates) < m.config.SweepBatchSize || len(order) == 0 {
			break
		}
	}

	admitted, err := m.admitIdle(ctx, seen)
	if err != nil {
		errs = append(errs, err)
	}

	m.logger.LogSweep(ctx, total, time.Since(started))
	if admitted > 0 {
		m.logger.InfoContext(ctx, "Sweep admitted entrants behind free slots", "admitted", admitted)
	}
	return total, errors.Join(errs...)
}

// admitIdle runs AdmitNext for sessions with waiting entrants that the expiry pass did not touch
func (m *Manager) admitIdle(ctx context.Context, skip map[string]bool) (int, error) {
	sessionIDs, err := m.repo.ListSessionsWithWaiting(ctx)
	if err != nil {
		return 0, err
	}

	var (
		admitted int
		errs     []error
	)
	for _, sessionID := range sessionIDs {
		if skip[sessionID] {
			continue
		}
		entries, err := m.AdmitNext(ctx, sessionID)
		admitted += len(entries)
		if err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
			errs = append(errs, fmt.Errorf("session %s: %w", sessionID, err))
		}
	}
	return admitted, errors.Join(errs...)
}

func (m *Manager) expireSession(ctx context.Context, sessionID string, now time.Time) (int, error) {
	unlock, err := m.locker.Lock(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	// re-read under the lock, a concurrent respond may already have resolved some of these
	notified, err := m.repo.ListByStatus(ctx, sessionID, StatusNotified)
	if err != nil {
		unlock()
		return 0, err
	}
	var stale []*Entry
	for _, e := range notified {
		if e.ResponseDeadline != nil && e.ResponseDeadline.Before(now) {
			stale = append(stale, e)
		}
	}

	var msgs []outbound
	if len(stale) > 0 {
		msgs, err = m.expireLocked(ctx, sessionID, stale, now)
	}
	unlock()

	m.deliver(ctx, msgs)
	return countKind(msgs, messageExpired), err
}

// expireLocked marks entries expired and admits replacements
func (m *Manager) expireLocked(ctx context.Context, sessionID string, entries []*Entry, now time.Time) ([]outbound, error) {
	var msgs []outbound
	for _, e := range entries {
		if err := e.resolve(StatusExpired, now); err != nil {
			return msgs, err
		}
		if err := m.repo.Update(ctx, e); err != nil {
			return msgs, fmt.Errorf("failed to expire entry: %w", err)
		}
		m.logger.LogEntrantResolved(ctx, sessionID, e.EntrantID, string(StatusExpired))
		msgs = append(msgs, outbound{messageExpired, e})
	}

	admitted, err := m.admitLocked(ctx, sessionID)
	return append(msgs, offersFor(admitted)...), err
}

// LeaveWaitlist removes a waiting entrant and closes up the queue. Leaving while
// holding an offer counts as a decline.
func (m *Manager) LeaveWaitlist(ctx context.Context, sessionID, entrantID string) (*RespondResult, error) {
	sessionID, entrantID = strings.TrimSpace(sessionID), strings.TrimSpace(entrantID)
	if err := validateIDs(sessionID, entrantID); err != nil {
		return nil, err
	}

	unlock, err := m.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	entry, err := m.repo.GetActive(ctx, sessionID, entrantID)
	if err != nil {
		unlock()
		return nil, err
	}

	if entry.Status == StatusNotified {
		result, msgs, err := m.respondLocked(ctx, sessionID, entrantID, DecisionDecline)
		unlock()
		m.deliver(ctx, msgs)
		if errors.Is(err, ErrResponseExpired) {
			return result, nil
		}
		return result, err
	}
	defer unlock()

	if err := m.repo.Delete(ctx, entry.ID); err != nil {
		return nil, err
	}
	waiting, err := m.repo.ListByStatus(ctx, sessionID, StatusWaiting)
	if err != nil {
		return nil, err
	}
	if err := m.repo.UpdatePositions(ctx, assignPositions(waiting)); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Entrant left waitlist", "session_id", sessionID, "entrant_id", entrantID)
	entry.Position = 0
	return &RespondResult{Status: entry.Status, Entry: entry}, nil
}

// SetCapacity changes a session's ceiling under the session lock and offers any
// slots it opens to the queue. Lowering below the confirmed count is rejected by the store.
func (m *Manager) SetCapacity(ctx context.Context, sessionID string, maxCapacity int) (*sessions.Capacity, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	unlock, err := m.locker.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	capacity, err := m.capacity.SetMaxCapacity(ctx, sessionID, maxCapacity)
	if err != nil {
		unlock()
		if errors.Is(err, sessions.ErrInvalidCapacity) {
			return nil, err
		}
		return nil, capacityError(err)
	}
	m.logger.InfoContext(ctx, "Session capacity changed", "session_id", sessionID, "max_capacity", capacity.MaxCapacity)

	admitted, err := m.admitLocked(ctx, sessionID)
	unlock()

	m.deliver(ctx, offersFor(admitted))
	return capacity, err
}

// GetStatus returns the entrant's active entry
func (m *Manager) GetStatus(ctx context.Context, sessionID, entrantID string) (*Entry, error) {
	sessionID, entrantID = strings.TrimSpace(sessionID), strings.TrimSpace(entrantID)
	if err := validateIDs(sessionID, entrantID); err != nil {
		return nil, err
	}
	return m.repo.GetActive(ctx, sessionID, entrantID)
}

// Snapshot returns capacity and the active queue for operators
func (m *Manager) Snapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	capacity, err := m.capacity.GetCapacity(ctx, sessionID)
	if err != nil {
		return nil, capacityError(err)
	}
	waiting, err := m.repo.ListByStatus(ctx, sessionID, StatusWaiting)
	if err != nil {
		return nil, err
	}
	notified, err := m.repo.ListByStatus(ctx, sessionID, StatusNotified)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		SessionID:      sessionID,
		ConfirmedCount: capacity.ConfirmedCount,
		MaxCapacity:    capacity.MaxCapacity,
		FreeSlots:      freeSlots(capacity, len(notified)),
		Waiting:        waiting,
		Notified:       notified,
	}, nil
}

// HandleSMSReply routes an inbound text to the offer held by that phone number.
// With several open offers the one closest to its deadline wins.
func (m *Manager) HandleSMSReply(ctx context.Context, from, body string) (*RespondResult, error) {
	decision, ok := ParseReply(body)
	if !ok {
		return nil, ErrUnrecognizedReply
	}

	phone := NormalizePhone(from)
	if phone == "" {
		return nil, ErrInvalidContact
	}

	entries, err := m.repo.FindNotifiedByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEntryNotFound
	}

	target := entries[0]
	m.logger.InfoContext(ctx, "SMS reply received",
		"session_id", target.SessionID, "entrant_id", target.EntrantID, "decision", string(decision))
	return m.Respond(ctx, target.SessionID, target.EntrantID, decision)
}

// ResponseWindow exposes the configured offer lifetime
func (m *Manager) ResponseWindow() time.Duration {
	return m.config.ResponseWindow
}

// Now reads the manager's clock
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}

func validateIDs(sessionID, entrantID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}
	if entrantID == "" {
		return ErrInvalidEntrantID
	}
	return nil
}

func joinResultFor(e *Entry) *JoinResult {
	return &JoinResult{Status: e.Status, Position: e.Position, Entry: e}
}

func offersFor(entries []*Entry) []outbound {
	msgs := make([]outbound, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, outbound{messageOffer, e})
	}
	return msgs
}

func countKind(msgs []outbound, kind messageKind) int {
	n := 0
	for _, o := range msgs {
		if o.kind == kind {
			n++
		}
	}
	return n
}
