package db

import (
	"time"

	"github.com/constellate/constellate/domain"
	"github.com/google/uuid"
)

// Package-level accessors over the shared connection, for callers that don't
// hold a *DB

func ReadAccByUsername(username string) (error, *domain.User) {
	return GetDB().ReadAccByUsername(username)
}

func ReadAccById(id uuid.UUID) (error, *domain.User) {
	return GetDB().ReadAccById(id)
}

func ReadAdminAccounts() (error, *[]domain.User) {
	return GetDB().ReadAdminAccounts()
}

func ReadRemoteActorByURI(uri string) (error, *domain.User) {
	return GetDB().ReadRemoteActorByURI(uri)
}

func ReadRemoteActorById(id uuid.UUID) (error, *domain.User) {
	return GetDB().ReadRemoteActorById(id)
}

func CreateRemoteActor(actor *domain.User) error {
	return GetDB().CreateRemoteActor(actor)
}

func UpdateRemoteActor(actor *domain.User) error {
	return GetDB().UpdateRemoteActor(actor)
}

func CreateFollow(follow *domain.Follow) error {
	return GetDB().CreateFollow(follow)
}

func ReadFollowByURI(uri string) (error, *domain.Follow) {
	return GetDB().ReadFollowByURI(uri)
}

func ReadFollowByAccountIds(accountId, targetAccountId uuid.UUID) (error, *domain.Follow) {
	return GetDB().ReadFollowByAccountIds(accountId, targetAccountId)
}

func AcceptFollowByURI(uri string) error {
	return GetDB().AcceptFollowByURI(uri)
}

func DeleteFollowByURI(uri string) error {
	return GetDB().DeleteFollowByURI(uri)
}

func ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	return GetDB().ReadFollowersByAccountId(accountId)
}

func ReadEventById(id uuid.UUID) (error, *domain.Event) {
	return GetDB().ReadEventById(id)
}

func CreateComment(comment *domain.Comment) error {
	return GetDB().CreateComment(comment)
}

func ReadCommentById(id uuid.UUID) (error, *domain.Comment) {
	return GetDB().ReadCommentById(id)
}

func ReadCommentByURI(uri string) (error, *domain.Comment) {
	return GetDB().ReadCommentByURI(uri)
}

func DeleteCommentByURI(uri string) error {
	return GetDB().DeleteCommentByURI(uri)
}

func CreateLike(like *domain.Like) error {
	return GetDB().CreateLike(like)
}

func DeleteLikeByURI(uri string) error {
	return GetDB().DeleteLikeByURI(uri)
}

func UpsertRsvp(rsvp *domain.Rsvp) error {
	return GetDB().UpsertRsvp(rsvp)
}

func DeleteRsvpByURI(uri string) error {
	return GetDB().DeleteRsvpByURI(uri)
}

func CreateReport(report *domain.Report) error {
	return GetDB().CreateReport(report)
}

func CreateNotification(n *domain.Notification) error {
	return GetDB().CreateNotification(n)
}

func CreateActivity(activity *domain.Activity) error {
	return GetDB().CreateActivity(activity)
}

func ReadActivityByURI(uri string) (error, *domain.Activity) {
	return GetDB().ReadActivityByURI(uri)
}

func EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	return GetDB().EnqueueDelivery(item)
}

func ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	return GetDB().ReadPendingDeliveries(limit)
}

func UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return GetDB().UpdateDeliveryAttempt(id, attempts, nextRetry)
}

func DeleteDelivery(id uuid.UUID) error {
	return GetDB().DeleteDelivery(id)
}
