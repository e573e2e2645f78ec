package activitypub

import (
	"time"

	"github.com/constellate/constellate/db"
	"github.com/constellate/constellate/domain"
	"github.com/google/uuid"
)

// DBWrapper wraps the real database functions to implement the Database interface
type DBWrapper struct{}

// NewDBWrapper creates a new database wrapper for production use
func NewDBWrapper() *DBWrapper {
	return &DBWrapper{}
}

func (d *DBWrapper) ReadAccByUsername(username string) (error, *domain.User) {
	return db.ReadAccByUsername(username)
}

func (d *DBWrapper) ReadAccById(id uuid.UUID) (error, *domain.User) {
	return db.ReadAccById(id)
}

func (d *DBWrapper) ReadAdminAccounts() (error, *[]domain.User) {
	return db.ReadAdminAccounts()
}

func (d *DBWrapper) ReadRemoteActorByURI(actorURI string) (error, *domain.User) {
	return db.ReadRemoteActorByURI(actorURI)
}

func (d *DBWrapper) ReadRemoteActorById(id uuid.UUID) (error, *domain.User) {
	return db.ReadRemoteActorById(id)
}

func (d *DBWrapper) CreateRemoteActor(actor *domain.User) error {
	return db.CreateRemoteActor(actor)
}

func (d *DBWrapper) UpdateRemoteActor(actor *domain.User) error {
	return db.UpdateRemoteActor(actor)
}

func (d *DBWrapper) CreateFollow(follow *domain.Follow) error {
	return db.CreateFollow(follow)
}

func (d *DBWrapper) ReadFollowByURI(uri string) (error, *domain.Follow) {
	return db.ReadFollowByURI(uri)
}

func (d *DBWrapper) ReadFollowByAccountIds(accountId, targetAccountId uuid.UUID) (error, *domain.Follow) {
	return db.ReadFollowByAccountIds(accountId, targetAccountId)
}

func (d *DBWrapper) AcceptFollowByURI(uri string) error {
	return db.AcceptFollowByURI(uri)
}

func (d *DBWrapper) DeleteFollowByURI(uri string) error {
	return db.DeleteFollowByURI(uri)
}

func (d *DBWrapper) ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	return db.ReadFollowersByAccountId(accountId)
}

func (d *DBWrapper) ReadEventById(id uuid.UUID) (error, *domain.Event) {
	return db.ReadEventById(id)
}

func (d *DBWrapper) CreateComment(comment *domain.Comment) error {
	return db.CreateComment(comment)
}

func (d *DBWrapper) ReadCommentById(id uuid.UUID) (error, *domain.Comment) {
	return db.ReadCommentById(id)
}

func (d *DBWrapper) ReadCommentByURI(uri string) (error, *domain.Comment) {
	return db.ReadCommentByURI(uri)
}

func (d *DBWrapper) DeleteCommentByURI(uri string) error {
	return db.DeleteCommentByURI(uri)
}

func (d *DBWrapper) CreateLike(like *domain.Like) error {
	return db.CreateLike(like)
}

func (d *DBWrapper) DeleteLikeByURI(uri string) error {
	return db.DeleteLikeByURI(uri)
}

func (d *DBWrapper) UpsertRsvp(rsvp *domain.Rsvp) error {
	return db.UpsertRsvp(rsvp)
}

func (d *DBWrapper) DeleteRsvpByURI(uri string) error {
	return db.DeleteRsvpByURI(uri)
}

func (d *DBWrapper) CreateReport(report *domain.Report) error {
	return db.CreateReport(report)
}

func (d *DBWrapper) CreateNotification(notification *domain.Notification) error {
	return db.CreateNotification(notification)
}

func (d *DBWrapper) CreateActivity(activity *domain.Activity) error {
	return db.CreateActivity(activity)
}

func (d *DBWrapper) ReadActivityByURI(uri string) (error, *domain.Activity) {
	return db.ReadActivityByURI(uri)
}

func (d *DBWrapper) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	return db.EnqueueDelivery(item)
}

func (d *DBWrapper) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	return db.ReadPendingDeliveries(limit)
}

func (d *DBWrapper) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.UpdateDeliveryAttempt(id, attempts, nextRetry)
}

func (d *DBWrapper) DeleteDelivery(id uuid.UUID) error {
	return db.DeleteDelivery(id)
}
