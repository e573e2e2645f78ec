package notify

import (
	"fmt"
	"testing"
	"time"

	"github.com/constellate/constellate/domain"
	"github.com/google/uuid"
)

func notification(id uuid.UUID, read bool) domain.Notification {
	return domain.Notification{
		Id:               id,
		NotificationType: domain.NotificationComment,
		ActorUsername:    "alice",
		Read:             read,
		CreatedAt:        time.Now(),
	}
}

func TestReconcileDeltaTable(t *testing.T) {
	tests := []struct {
		name          string
		wasRead       bool
		newRead       bool
		expectedDelta int
	}{
		{"unread stays unread", false, false, 0},
		{"read becomes unread", true, false, 1},
		{"unread becomes read", false, true, -1},
		{"read stays read", true, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			current := Snapshot{
				Notifications: []domain.Notification{notification(id, tt.wasRead)},
				UnreadCount:   3,
			}

			result := Reconcile(current, notification(id, tt.newRead), 0)

			expected := 3 + tt.expectedDelta
			if result.UnreadCount != expected {
				t.Errorf("Expected unread count %d, got %d", expected, result.UnreadCount)
			}
		})
	}
}

func TestReconcileNewNotificationIncrements(t *testing.T) {
	current := Snapshot{
		Notifications: []domain.Notification{notification(uuid.New(), true)},
		UnreadCount:   0,
	}

	result := Reconcile(current, notification(uuid.New(), false), 0)

	if result.UnreadCount != 1 {
		t.Errorf("Expected unread count 1 for new unread notification, got %d", result.UnreadCount)
	}
	if len(result.Notifications) != 2 {
		t.Errorf("Expected 2 notifications, got %d", len(result.Notifications))
	}
}

func TestReconcileNewReadNotificationKeepsCount(t *testing.T) {
	current := Snapshot{UnreadCount: 2}

	result := Reconcile(current, notification(uuid.New(), true), 0)

	if result.UnreadCount != 2 {
		t.Errorf("Expected unread count unchanged at 2, got %d", result.UnreadCount)
	}
}

func TestReconcileClampsAtZero(t *testing.T) {
	id := uuid.New()
	// Inconsistent input: unread entry present but counter already at zero
	current := Snapshot{
		Notifications: []domain.Notification{notification(id, false)},
		UnreadCount:   0,
	}

	result := Reconcile(current, notification(id, true), 0)

	if result.UnreadCount != 0 {
		t.Errorf("Expected unread count clamped at 0, got %d", result.UnreadCount)
	}
}

func TestReconcileMovesIncomingToFront(t *testing.T) {
	id := uuid.New()
	other := notification(uuid.New(), false)
	current := Snapshot{
		Notifications: []domain.Notification{other, notification(id, false)},
		UnreadCount:   2,
	}

	updated := notification(id, true)
	result := Reconcile(current, updated, 0)

	if len(result.Notifications) != 2 {
		t.Fatalf("Expected 2 notifications after merge, got %d", len(result.Notifications))
	}
	if result.Notifications[0].Id != id {
		t.Errorf("Expected incoming notification at front, got %s", result.Notifications[0].Id)
	}
	if !result.Notifications[0].Read {
		t.Errorf("Expected front entry to carry the incoming read state")
	}
	if result.Notifications[1].Id != other.Id {
		t.Errorf("Expected other entry preserved, got %s", result.Notifications[1].Id)
	}
}

func TestReconcileTruncationPreservesIncoming(t *testing.T) {
	current := Snapshot{UnreadCount: 10}
	for i := 0; i < 10; i++ {
		current.Notifications = append(current.Notifications, notification(uuid.New(), false))
	}

	incoming := notification(uuid.New(), false)
	result := Reconcile(current, incoming, 5)

	if len(result.Notifications) != 5 {
		t.Errorf("Expected list truncated to 5, got %d", len(result.Notifications))
	}
	if result.Notifications[0].Id != incoming.Id {
		t.Errorf("Expected incoming notification retained at front after truncation")
	}
	if result.UnreadCount != 11 {
		t.Errorf("Expected unread count 11 despite truncation, got %d", result.UnreadCount)
	}
}

func TestReconcileUnlimitedKeepsAllEntries(t *testing.T) {
	current := Snapshot{}
	for i := 0; i < 10; i++ {
		current.Notifications = append(current.Notifications, notification(uuid.New(), true))
	}

	result := Reconcile(current, notification(uuid.New(), false), 0)

	if len(result.Notifications) != 11 {
		t.Errorf("Expected unbounded merge to keep all entries, got %d", len(result.Notifications))
	}
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	id := uuid.New()
	current := Snapshot{
		Notifications: []domain.Notification{notification(id, false)},
		UnreadCount:   1,
	}

	Reconcile(current, notification(id, true), 0)

	if current.UnreadCount != 1 {
		t.Errorf("Expected input snapshot untouched, unread count became %d", current.UnreadCount)
	}
	if current.Notifications[0].Read {
		t.Errorf("Expected input notification untouched")
	}
}

func TestReconcileMarkReadScenario(t *testing.T) {
	id := uuid.New()
	current := Snapshot{
		Notifications: []domain.Notification{notification(id, false)},
		UnreadCount:   1,
	}

	result := Reconcile(current, notification(id, true), 0)

	if len(result.Notifications) != 1 {
		t.Fatalf("Expected single notification, got %d", len(result.Notifications))
	}
	if result.Notifications[0].Id != id || !result.Notifications[0].Read {
		t.Errorf("Expected same entry marked read, got %+v", result.Notifications[0])
	}
	if result.UnreadCount != 0 {
		t.Errorf("Expected unread count 0, got %d", result.UnreadCount)
	}
}

func TestReconcileSequentialApplication(t *testing.T) {
	// Batching is the caller's job: repeated application must stay consistent
	snapshot := Snapshot{}
	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		snapshot = Reconcile(snapshot, notification(ids[i], false), 0)
	}

	if snapshot.UnreadCount != 5 {
		t.Fatalf("Expected unread count 5 after 5 unread merges, got %d", snapshot.UnreadCount)
	}

	for i, id := range ids {
		snapshot = Reconcile(snapshot, notification(id, true), 0)
		if snapshot.UnreadCount != 4-i {
			t.Errorf("Expected unread count %d after marking %s read, got %d", 4-i, id, snapshot.UnreadCount)
		}
	}
}

func TestMarkAllRead(t *testing.T) {
	current := Snapshot{
		Notifications: []domain.Notification{
			notification(uuid.New(), false),
			notification(uuid.New(), false),
			notification(uuid.New(), true),
		},
		UnreadCount: 2,
	}

	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	result := MarkAllRead(current, now)

	if result.UnreadCount != 0 {
		t.Errorf("Expected unread count 0, got %d", result.UnreadCount)
	}
	for i, n := range result.Notifications {
		if !n.Read {
			t.Errorf("Expected entry %d marked read", i)
		}
		if n.ReadAt == nil {
			t.Errorf("Expected entry %d to carry a ReadAt timestamp", i)
		}
	}
}

func TestMarkAllReadIdempotent(t *testing.T) {
	current := Snapshot{
		Notifications: []domain.Notification{notification(uuid.New(), false)},
		UnreadCount:   1,
	}

	first := MarkAllRead(current, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	second := MarkAllRead(first, time.Date(2026, 8, 25, 11, 0, 0, 0, time.UTC))

	if second.UnreadCount != 0 {
		t.Errorf("Expected unread count 0 on repeat, got %d", second.UnreadCount)
	}
	if !second.Notifications[0].ReadAt.Equal(*first.Notifications[0].ReadAt) {
		t.Errorf("Expected ReadAt preserved on repeat call, got %v then %v",
			first.Notifications[0].ReadAt, second.Notifications[0].ReadAt)
	}
}

func TestMarkAllReadEmptySnapshot(t *testing.T) {
	result := MarkAllRead(Snapshot{UnreadCount: 7}, time.Now())

	if result.UnreadCount != 0 {
		t.Errorf("Expected unread count forced to 0, got %d", result.UnreadCount)
	}
	if len(result.Notifications) != 0 {
		t.Errorf("Expected empty list to stay empty")
	}
}

func ExampleReconcile() {
	id := uuid.MustParse("6e1a4b9e-0000-0000-0000-000000000001")
	current := Snapshot{
		Notifications: []domain.Notification{{Id: id, Read: false}},
		UnreadCount:   1,
	}

	result := Reconcile(current, domain.Notification{Id: id, Read: true}, 0)
	fmt.Println(result.UnreadCount)
	// Output: 0
}
