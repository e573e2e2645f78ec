package activitypub

import (
	"testing"
	"time"

	"github.com/constellate/constellate/domain"
	"github.com/google/uuid"
)

func queueItem(sender *domain.User, inboxURI string, attempts int) *domain.DeliveryQueueItem {
	return &domain.DeliveryQueueItem{
		Id:           uuid.New(),
		AccountId:    sender.Id,
		InboxURI:     inboxURI,
		ActivityJSON: `{"type":"Create","id":"https://constellate.example/activities/1"}`,
		Attempts:     attempts,
		NextRetryAt:  time.Now().Add(-time.Minute),
		CreatedAt:    time.Now(),
	}
}

func TestProcessPendingDeliversAndDequeues(t *testing.T) {
	db := NewMockDatabase()
	client := NewMockHTTPClient()
	alice := localTestUser(t, "alice")
	db.AddAccount(alice)

	item := queueItem(alice, "https://remote.example/inbox", 0)
	db.EnqueueDelivery(item)

	worker := NewDeliveryWorkerWithDeps(testConf(), db, client)
	worker.ProcessPending()

	if client.SentTo("https://remote.example/inbox") != 1 {
		t.Errorf("Expected 1 delivery, got %d", client.SentTo("https://remote.example/inbox"))
	}
	if len(db.Deliveries) != 0 {
		t.Errorf("Expected queue to be drained, got %d items", len(db.Deliveries))
	}
}

func TestProcessPendingReschedulesOnFailure(t *testing.T) {
	db := NewMockDatabase()
	client := NewMockHTTPClient()
	client.FailAll = true
	alice := localTestUser(t, "alice")
	db.AddAccount(alice)

	item := queueItem(alice, "https://remote.example/inbox", 0)
	db.EnqueueDelivery(item)

	worker := NewDeliveryWorkerWithDeps(testConf(), db, client)
	worker.ProcessPending()

	stored, ok := db.Deliveries[item.Id]
	if !ok {
		t.Fatal("Expected failed delivery to stay queued")
	}
	if stored.Attempts != 1 {
		t.Errorf("Expected 1 attempt recorded, got %d", stored.Attempts)
	}
	if !stored.NextRetryAt.After(time.Now()) {
		t.Error("Expected retry to be scheduled in the future")
	}
	// First retry is a minute out
	if stored.NextRetryAt.After(time.Now().Add(2 * time.Minute)) {
		t.Errorf("Expected first retry within ~1 minute, got %s", stored.NextRetryAt)
	}
}

func TestProcessPendingBackoffClampsToLastStep(t *testing.T) {
	db := NewMockDatabase()
	client := NewMockHTTPClient()
	client.FailAll = true
	alice := localTestUser(t, "alice")
	db.AddAccount(alice)

	// Attempt 8 falls past the end of the backoff table
	item := queueItem(alice, "https://remote.example/inbox", 7)
	db.EnqueueDelivery(item)

	worker := NewDeliveryWorkerWithDeps(testConf(), db, client)
	worker.ProcessPending()

	stored, ok := db.Deliveries[item.Id]
	if !ok {
		t.Fatal("Expected failed delivery to stay queued")
	}
	if stored.Attempts != 8 {
		t.Errorf("Expected 8 attempts recorded, got %d", stored.Attempts)
	}
	if stored.NextRetryAt.Before(time.Now().Add(23 * time.Hour)) {
		t.Errorf("Expected final backoff of a day, got %s", stored.NextRetryAt)
	}
}

func TestProcessPendingGivesUpAfterMaxAttempts(t *testing.T) {
	db := NewMockDatabase()
	client := NewMockHTTPClient()
	client.FailAll = true
	alice := localTestUser(t, "alice")
	db.AddAccount(alice)

	item := queueItem(alice, "https://remote.example/inbox", maxDeliveryAttempts-1)
	db.EnqueueDelivery(item)

	worker := NewDeliveryWorkerWithDeps(testConf(), db, client)
	worker.ProcessPending()

	if len(db.Deliveries) != 0 {
		t.Errorf("Expected delivery to be dropped after final attempt, got %d items", len(db.Deliveries))
	}
}

func TestProcessPendingSkipsFutureItems(t *testing.T) {
	db := NewMockDatabase()
	client := NewMockHTTPClient()
	alice := localTestUser(t, "alice")
	db.AddAccount(alice)

	item := queueItem(alice, "https://remote.example/inbox", 0)
	item.NextRetryAt = time.Now().Add(time.Hour)
	db.EnqueueDelivery(item)

	worker := NewDeliveryWorkerWithDeps(testConf(), db, client)
	worker.ProcessPending()

	if len(client.Requests) != 0 {
		t.Errorf("Expected no delivery for future-scheduled item, got %d", len(client.Requests))
	}
	if len(db.Deliveries) != 1 {
		t.Errorf("Expected item to stay queued, got %d", len(db.Deliveries))
	}
}

func TestProcessPendingDropsWhenSenderGone(t *testing.T) {
	db := NewMockDatabase()
	client := NewMockHTTPClient()
	ghost := localTestUser(t, "ghost") // never added to the database

	item := queueItem(ghost, "https://remote.example/inbox", 0)
	db.EnqueueDelivery(item)

	worker := NewDeliveryWorkerWithDeps(testConf(), db, client)
	worker.ProcessPending()

	if len(client.Requests) != 0 {
		t.Errorf("Expected no delivery without a sender, got %d", len(client.Requests))
	}
	stored, ok := db.Deliveries[item.Id]
	if !ok {
		t.Fatal("Expected item rescheduled, not dropped outright")
	}
	if stored.Attempts != 1 {
		t.Errorf("Expected a failure recorded, got %d attempts", stored.Attempts)
	}
}
