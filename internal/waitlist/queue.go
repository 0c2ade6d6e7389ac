package waitlist

import (
	"sort"

	"academy/internal/sessions"
)

// orderQueue sorts waiting entries by position, then join time
func orderQueue(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Position != entries[j].Position {
			return entries[i].Position < entries[j].Position
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})
}

// assignPositions rewrites positions to 1..n in the given order and returns the entries that moved
func assignPositions(entries []*Entry) []*Entry {
	var moved []*Entry
	for i, e := range entries {
		if e.Position != i+1 {
			e.Position = i + 1
			moved = append(moved, e)
		}
	}
	return moved
}

// freeSlots counts slots that are neither confirmed nor held by an outstanding offer
func freeSlots(c *sessions.Capacity, outstandingOffers int) int {
	free := c.MaxCapacity - c.ConfirmedCount - outstandingOffers
	if free < 0 {
		return 0
	}
	return free
}
