// Package notify maintains client-facing notification snapshots: an ordered,
// possibly truncated notification list plus a cached unread counter. The
// counter is advisory: the list may hold a single page while the true unread
// count spans more, so it is always adjusted incrementally, never recounted
// from the list.
package notify

import (
	"time"

	"github.com/constellate/constellate/domain"
)

// Snapshot is a newest-first notification page with its cached unread count
type Snapshot struct {
	Notifications []domain.Notification
	UnreadCount   int
}

// Reconcile merges an incoming or updated notification into a snapshot. The
// incoming entry replaces any existing entry with the same id and moves to the
// front; limit > 0 truncates the merged list after the merge, so the incoming
// entry is always retained. The unread count is adjusted by the read-state
// delta between the prior and incoming entry and clamped at zero.
//
// The input snapshot is never mutated; callers may keep holding it.
func Reconcile(current Snapshot, incoming domain.Notification, limit int) Snapshot {
	wasUnread := false
	merged := make([]domain.Notification, 0, len(current.Notifications)+1)
	merged = append(merged, incoming)
	for _, n := range current.Notifications {
		if n.Id == incoming.Id {
			wasUnread = !n.Read
			continue
		}
		merged = append(merged, n)
	}

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	delta := 0
	switch {
	case !incoming.Read && !wasUnread:
		// New unread, or a previously read entry becoming unread again
		delta = 1
	case incoming.Read && wasUnread:
		delta = -1
	}

	unread := current.UnreadCount + delta
	if unread < 0 {
		unread = 0
	}

	return Snapshot{Notifications: merged, UnreadCount: unread}
}

// MarkAllRead marks every retained notification as read and zeroes the unread
// count unconditionally. Entries already carrying a ReadAt keep it, so
// repeated calls are idempotent.
func MarkAllRead(current Snapshot, now time.Time) Snapshot {
	marked := make([]domain.Notification, len(current.Notifications))
	for i, n := range current.Notifications {
		n.Read = true
		if n.ReadAt == nil {
			readAt := now
			n.ReadAt = &readAt
		}
		marked[i] = n
	}

	return Snapshot{Notifications: marked, UnreadCount: 0}
}
