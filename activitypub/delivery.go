package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/constellate/constellate/domain"
	"github.com/constellate/constellate/util"
)

var errSenderGone = errors.New("sending account no longer exists")

// Retry schedule in minutes: roughly 1m, 5m, 15m, 1h, 4h, 1d
var retryBackoff = []int{1, 5, 15, 60, 240, 1440}

const (
	maxDeliveryAttempts = 10
	deliveryBatchSize   = 50
	workerPollInterval  = 30 * time.Second
)

// DeliveryWorker drains the outbound delivery queue in the background
type DeliveryWorker struct {
	database Database
	client   HTTPClient
	conf     *util.AppConfig
}

// NewDeliveryWorker creates a delivery worker backed by the real database
func NewDeliveryWorker(conf *util.AppConfig) *DeliveryWorker {
	return &DeliveryWorker{
		database: NewDBWrapper(),
		client:   defaultHTTPClient,
		conf:     conf,
	}
}

// NewDeliveryWorkerWithDeps creates a delivery worker with injectable
// dependencies for testing
func NewDeliveryWorkerWithDeps(conf *util.AppConfig, database Database, client HTTPClient) *DeliveryWorker {
	return &DeliveryWorker{database: database, client: client, conf: conf}
}

// Run polls the delivery queue until the context is cancelled
func (w *DeliveryWorker) Run(ctx context.Context) {
	log.Printf("Delivery: Worker started")
	ticker := time.NewTicker(workerPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Delivery: Worker stopped")
			return
		case <-ticker.C:
			w.ProcessPending()
		}
	}
}

// ProcessPending attempts every due delivery once
func (w *DeliveryWorker) ProcessPending() {
	err, items := w.database.ReadPendingDeliveries(deliveryBatchSize)
	if err != nil {
		log.Printf("Delivery: Failed to read queue: %v", err)
		return
	}
	if items == nil || len(*items) == 0 {
		return
	}

	for _, item := range *items {
		if err := w.deliver(&item); err != nil {
			w.recordFailure(&item, err)
			continue
		}
		if err := w.database.DeleteDelivery(item.Id); err != nil {
			log.Printf("Delivery: Failed to dequeue %s: %v", item.Id, err)
		}
	}
}

func (w *DeliveryWorker) deliver(item *domain.DeliveryQueueItem) error {
	err, sender := w.database.ReadAccById(item.AccountId)
	if err != nil || sender == nil {
		return errSenderGone
	}

	var activity map[string]any
	if err := json.Unmarshal([]byte(item.ActivityJSON), &activity); err != nil {
		return err
	}

	return SendActivityWithClient(activity, item.InboxURI, sender, w.conf, w.client)
}

// recordFailure reschedules a failed delivery or drops it after the final
// attempt
func (w *DeliveryWorker) recordFailure(item *domain.DeliveryQueueItem, cause error) {
	attempts := item.Attempts + 1
	if attempts >= maxDeliveryAttempts {
		log.Printf("Delivery: Giving up on %s after %d attempts: %v", item.InboxURI, attempts, cause)
		if err := w.database.DeleteDelivery(item.Id); err != nil {
			log.Printf("Delivery: Failed to drop %s: %v", item.Id, err)
		}
		return
	}

	backoffIdx := attempts - 1
	if backoffIdx >= len(retryBackoff) {
		backoffIdx = len(retryBackoff) - 1
	}
	nextRetry := time.Now().Add(time.Duration(retryBackoff[backoffIdx]) * time.Minute)

	log.Printf("Delivery: Attempt %d to %s failed, retrying at %s: %v",
		attempts, item.InboxURI, nextRetry.Format(time.RFC3339), cause)
	if err := w.database.UpdateDeliveryAttempt(item.Id, attempts, nextRetry); err != nil {
		log.Printf("Delivery: Failed to reschedule %s: %v", item.Id, err)
	}
}
