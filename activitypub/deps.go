package activitypub

import (
	"net/http"
	"time"

	"github.com/constellate/constellate/domain"
	"github.com/google/uuid"
)

// Database defines the database operations required by the ActivityPub package.
// This interface allows for dependency injection and testing with mock implementations.
type Database interface {
	// Local account operations
	ReadAccByUsername(username string) (error, *domain.User)
	ReadAccById(id uuid.UUID) (error, *domain.User)
	ReadAdminAccounts() (error, *[]domain.User)

	// Remote actor cache operations
	ReadRemoteActorByURI(actorURI string) (error, *domain.User)
	ReadRemoteActorById(id uuid.UUID) (error, *domain.User)
	CreateRemoteActor(actor *domain.User) error
	UpdateRemoteActor(actor *domain.User) error

	// Follow operations
	CreateFollow(follow *domain.Follow) error
	ReadFollowByURI(uri string) (error, *domain.Follow)
	ReadFollowByAccountIds(accountId, targetAccountId uuid.UUID) (error, *domain.Follow)
	AcceptFollowByURI(uri string) error
	DeleteFollowByURI(uri string) error
	ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow)

	// Event operations
	ReadEventById(id uuid.UUID) (error, *domain.Event)

	// Comment operations
	CreateComment(comment *domain.Comment) error
	ReadCommentById(id uuid.UUID) (error, *domain.Comment)
	ReadCommentByURI(uri string) (error, *domain.Comment)
	DeleteCommentByURI(uri string) error

	// Like operations
	CreateLike(like *domain.Like) error
	DeleteLikeByURI(uri string) error

	// RSVP operations
	UpsertRsvp(rsvp *domain.Rsvp) error
	DeleteRsvpByURI(uri string) error

	// Moderation operations
	CreateReport(report *domain.Report) error

	// Notification operations
	CreateNotification(notification *domain.Notification) error

	// Activity log operations (deduplication)
	CreateActivity(activity *domain.Activity) error
	ReadActivityByURI(uri string) (error, *domain.Activity)

	// Delivery queue operations
	EnqueueDelivery(item *domain.DeliveryQueueItem) error
	ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem)
	UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error
	DeleteDelivery(id uuid.UUID) error
}

// HTTPClient defines the HTTP client operations required by the ActivityPub package.
// This interface allows for dependency injection and testing with mock implementations.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPClient is the default HTTP client used in production
type DefaultHTTPClient struct {
	client *http.Client
}

// NewDefaultHTTPClient creates a new default HTTP client with the specified timeout
func NewDefaultHTTPClient(timeout time.Duration) *DefaultHTTPClient {
	return &DefaultHTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Do executes the HTTP request
func (c *DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

var defaultHTTPClient HTTPClient = NewDefaultHTTPClient(30 * time.Second)
