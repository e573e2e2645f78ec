package activitypub

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/constellate/constellate/domain"
	"github.com/google/uuid"
)

// MockDatabase is an in-memory mock implementation of the Database interface for testing.
// It stores data in maps and provides full CRUD operations without requiring a real database.
type MockDatabase struct {
	mu sync.RWMutex

	// Storage maps
	Accounts       map[uuid.UUID]*domain.User
	AccountsByUser map[string]*domain.User
	RemoteActors   map[uuid.UUID]*domain.User
	ActorsByURI    map[string]*domain.User
	Follows        map[string]*domain.Follow // keyed by URI
	Events         map[uuid.UUID]*domain.Event
	Comments       map[uuid.UUID]*domain.Comment
	CommentsByURI  map[string]*domain.Comment
	Likes          map[string]*domain.Like // keyed by URI
	Rsvps          map[string]*domain.Rsvp // keyed by URI
	Reports        []*domain.Report
	Notifications  []*domain.Notification
	Activities     map[string]*domain.Activity // keyed by activity URI
	Deliveries     map[uuid.UUID]*domain.DeliveryQueueItem

	// Error injection for testing failure paths
	FailCreateFollow       bool
	FailCreateNotification bool
	FailCreateActivity     bool
}

// NewMockDatabase creates an empty mock database
func NewMockDatabase() *MockDatabase {
	return &MockDatabase{
		Accounts:       make(map[uuid.UUID]*domain.User),
		AccountsByUser: make(map[string]*domain.User),
		RemoteActors:   make(map[uuid.UUID]*domain.User),
		ActorsByURI:    make(map[string]*domain.User),
		Follows:        make(map[string]*domain.Follow),
		Events:         make(map[uuid.UUID]*domain.Event),
		Comments:       make(map[uuid.UUID]*domain.Comment),
		CommentsByURI:  make(map[string]*domain.Comment),
		Likes:          make(map[string]*domain.Like),
		Rsvps:          make(map[string]*domain.Rsvp),
		Activities:     make(map[string]*domain.Activity),
		Deliveries:     make(map[uuid.UUID]*domain.DeliveryQueueItem),
	}
}

// AddAccount registers a local account
func (m *MockDatabase) AddAccount(account *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Accounts[account.Id] = account
	m.AccountsByUser[account.Username] = account
}

// AddRemoteActor registers a cached remote actor
func (m *MockDatabase) AddRemoteActor(actor *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoteActors[actor.Id] = actor
	m.ActorsByURI[actor.ExternalActorURI] = actor
}

// AddEvent registers an event
func (m *MockDatabase) AddEvent(event *domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events[event.Id] = event
}

func (m *MockDatabase) ReadAccByUsername(username string) (error, *domain.User) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if account, ok := m.AccountsByUser[username]; ok {
		return nil, account
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) ReadAccById(id uuid.UUID) (error, *domain.User) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if account, ok := m.Accounts[id]; ok {
		return nil, account
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) ReadAdminAccounts() (error, *[]domain.User) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var admins []domain.User
	for _, account := range m.Accounts {
		if account.IsAdmin {
			admins = append(admins, *account)
		}
	}
	return nil, &admins
}

func (m *MockDatabase) ReadRemoteActorByURI(actorURI string) (error, *domain.User) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if actor, ok := m.ActorsByURI[actorURI]; ok {
		return nil, actor
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) ReadRemoteActorById(id uuid.UUID) (error, *domain.User) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if actor, ok := m.RemoteActors[id]; ok {
		return nil, actor
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) CreateRemoteActor(actor *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoteActors[actor.Id] = actor
	m.ActorsByURI[actor.ExternalActorURI] = actor
	return nil
}

func (m *MockDatabase) UpdateRemoteActor(actor *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoteActors[actor.Id] = actor
	m.ActorsByURI[actor.ExternalActorURI] = actor
	return nil
}

func (m *MockDatabase) CreateFollow(follow *domain.Follow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateFollow {
		return fmt.Errorf("mock follow failure")
	}
	m.Follows[follow.URI] = follow
	return nil
}

func (m *MockDatabase) ReadFollowByURI(uri string) (error, *domain.Follow) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if follow, ok := m.Follows[uri]; ok {
		return nil, follow
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) ReadFollowByAccountIds(accountId, targetAccountId uuid.UUID) (error, *domain.Follow) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, follow := range m.Follows {
		if follow.AccountId == accountId && follow.TargetAccountId == targetAccountId {
			return nil, follow
		}
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) AcceptFollowByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if follow, ok := m.Follows[uri]; ok {
		follow.Accepted = true
		return nil
	}
	return sql.ErrNoRows
}

func (m *MockDatabase) DeleteFollowByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Follows, uri)
	return nil
}

func (m *MockDatabase) ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var followers []domain.Follow
	for _, follow := range m.Follows {
		if follow.TargetAccountId == accountId && follow.Accepted {
			followers = append(followers, *follow)
		}
	}
	return nil, &followers
}

func (m *MockDatabase) ReadEventById(id uuid.UUID) (error, *domain.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if event, ok := m.Events[id]; ok {
		return nil, event
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) CreateComment(comment *domain.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Comments[comment.Id] = comment
	if comment.ObjectURI != "" {
		m.CommentsByURI[comment.ObjectURI] = comment
	}
	return nil
}

func (m *MockDatabase) ReadCommentById(id uuid.UUID) (error, *domain.Comment) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if comment, ok := m.Comments[id]; ok {
		return nil, comment
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) ReadCommentByURI(uri string) (error, *domain.Comment) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if comment, ok := m.CommentsByURI[uri]; ok {
		return nil, comment
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) DeleteCommentByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if comment, ok := m.CommentsByURI[uri]; ok {
		delete(m.Comments, comment.Id)
		delete(m.CommentsByURI, uri)
	}
	return nil
}

func (m *MockDatabase) CreateLike(like *domain.Like) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Likes[like.URI] = like
	return nil
}

func (m *MockDatabase) DeleteLikeByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Likes, uri)
	return nil
}

func (m *MockDatabase) UpsertRsvp(rsvp *domain.Rsvp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Replace an existing answer by the same actor for the same event
	for uri, existing := range m.Rsvps {
		if existing.EventId == rsvp.EventId && existing.AccountId == rsvp.AccountId {
			delete(m.Rsvps, uri)
		}
	}
	m.Rsvps[rsvp.URI] = rsvp
	return nil
}

func (m *MockDatabase) DeleteRsvpByURI(uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Rsvps, uri)
	return nil
}

func (m *MockDatabase) CreateReport(report *domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reports = append(m.Reports, report)
	return nil
}

func (m *MockDatabase) CreateNotification(notification *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateNotification {
		return fmt.Errorf("mock notification failure")
	}
	m.Notifications = append(m.Notifications, notification)
	return nil
}

func (m *MockDatabase) CreateActivity(activity *domain.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreateActivity {
		return fmt.Errorf("mock activity failure")
	}
	if _, ok := m.Activities[activity.ActivityURI]; ok {
		return fmt.Errorf("UNIQUE constraint failed: activities.activity_uri")
	}
	m.Activities[activity.ActivityURI] = activity
	return nil
}

func (m *MockDatabase) ReadActivityByURI(uri string) (error, *domain.Activity) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if activity, ok := m.Activities[uri]; ok {
		return nil, activity
	}
	return sql.ErrNoRows, nil
}

func (m *MockDatabase) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deliveries[item.Id] = item
	return nil
}

func (m *MockDatabase) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var pending []domain.DeliveryQueueItem
	now := time.Now()
	for _, item := range m.Deliveries {
		if !item.NextRetryAt.After(now) {
			pending = append(pending, *item)
		}
		if len(pending) >= limit {
			break
		}
	}
	return nil, &pending
}

func (m *MockDatabase) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.Deliveries[id]; ok {
		item.Attempts = attempts
		item.NextRetryAt = nextRetry
		return nil
	}
	return sql.ErrNoRows
}

func (m *MockDatabase) DeleteDelivery(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Deliveries, id)
	return nil
}

// MockHTTPClient records outgoing requests and returns canned responses
type MockHTTPClient struct {
	mu        sync.Mutex
	Requests  []*MockRequest
	Responses map[string]*MockResponse // keyed by URL
	FailAll   bool
}

// MockRequest captures one outgoing request
type MockRequest struct {
	Method string
	URL    string
	Body   []byte
}

// MockResponse describes what the mock should answer for a URL
type MockResponse struct {
	StatusCode int
	Body       string
}

// NewMockHTTPClient creates a mock client that answers 202 by default
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{Responses: make(map[string]*MockResponse)}
}

// Do records the request and returns the configured or default response
func (c *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailAll {
		return nil, fmt.Errorf("mock network failure")
	}

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	c.Requests = append(c.Requests, &MockRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Body:   body,
	})

	if resp, ok := c.Responses[req.URL.String()]; ok {
		return &http.Response{
			StatusCode: resp.StatusCode,
			Body:       io.NopCloser(strings.NewReader(resp.Body)),
			Header:     make(http.Header),
		}, nil
	}

	return &http.Response{
		StatusCode: http.StatusAccepted,
		Body:       io.NopCloser(strings.NewReader("")),
		Header:     make(http.Header),
	}, nil
}

// SentTo returns how many requests were sent to the given URL
func (c *MockHTTPClient) SentTo(url string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, req := range c.Requests {
		if req.URL == url {
			count++
		}
	}
	return count
}
