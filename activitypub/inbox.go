package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/constellate/constellate/domain"
	"github.com/constellate/constellate/util"
	"github.com/google/uuid"
)

// InboxDeps holds dependencies for inbox handlers (for testing)
type InboxDeps struct {
	Database   Database
	HTTPClient HTTPClient
}

// IncomingActivity represents a generic ActivityPub activity
type IncomingActivity struct {
	Context any    `json:"@context"`
	ID      string `json:"id"`
	Type    string `json:"type"`
	Actor   string `json:"actor"`
	Object  any    `json:"object"`
}

// FollowActivity represents an ActivityPub Follow activity
type FollowActivity struct {
	Context any    `json:"@context"`
	ID      string `json:"id"`
	Type    string `json:"type"`
	Actor   string `json:"actor"`
	Object  string `json:"object"` // URI of the actor being followed
}

// HandleInbox processes incoming ActivityPub activities
func HandleInbox(w http.ResponseWriter, r *http.Request, username string, conf *util.AppConfig) {
	deps := &InboxDeps{
		Database:   NewDBWrapper(),
		HTTPClient: defaultHTTPClient,
	}
	HandleInboxWithDeps(w, r, username, conf, deps)
}

// HandleInboxWithDeps processes incoming ActivityPub activities.
// This version accepts dependencies for testing.
func HandleInboxWithDeps(w http.ResponseWriter, r *http.Request, username string, conf *util.AppConfig, deps *InboxDeps) {
	signature := r.Header.Get("Signature")
	if signature == "" {
		log.Printf("Inbox: Missing HTTP signature")
		http.Error(w, "Missing signature", http.StatusUnauthorized)
		return
	}

	// Read request body with size limit (1MB max to prevent DoS)
	const maxBodySize = 1 * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		log.Printf("Inbox: Failed to read body: %v", err)
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body) == maxBodySize {
		log.Printf("Inbox: Request body too large")
		http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		return
	}

	var activity IncomingActivity
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Printf("Inbox: Failed to parse activity: %v", err)
		http.Error(w, "Invalid activity", http.StatusBadRequest)
		return
	}

	log.Printf("Inbox: Received %s from %s", activity.Type, activity.Actor)

	// Fetch remote actor to verify and cache
	remoteActor, err := GetOrFetchActorWithDeps(activity.Actor, deps.HTTPClient, deps.Database)
	if err != nil {
		log.Printf("Inbox: Failed to fetch actor %s: %v", activity.Actor, err)
		http.Error(w, "Failed to verify actor", http.StatusBadRequest)
		return
	}

	// Restore body for signature verification (body was consumed during read)
	r.Body = io.NopCloser(bytes.NewReader(body))

	if _, err := VerifyRequest(r, remoteActor.PublicKeyPem); err != nil {
		log.Printf("Inbox: Signature verification failed: %v", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	database := deps.Database

	objectURI := ""
	switch obj := activity.Object.(type) {
	case string:
		objectURI = obj
	case map[string]any:
		if id, ok := obj["id"].(string); ok {
			objectURI = id
		}
	}

	activityRecord := &domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  activity.ID,
		ActivityType: activity.Type,
		ActorURI:     activity.Actor,
		ObjectURI:    objectURI,
		RawJSON:      string(body),
		Local:        false,
		CreatedAt:    time.Now(),
	}

	if err := database.CreateActivity(activityRecord); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			log.Printf("Inbox: Activity %s already processed, returning success", activity.ID)
			w.WriteHeader(http.StatusAccepted)
			return
		}
		log.Printf("Inbox: Failed to store activity: %v", err)
		// Don't fail the request, we'll process it anyway
	}

	switch activity.Type {
	case "Follow":
		err = handleFollowActivity(body, username, remoteActor, conf, deps)
	case "Undo":
		err = handleUndoActivity(body, username, remoteActor, deps)
	case "Accept":
		err = handleAcceptActivity(body, username, remoteActor, conf, deps)
	case "Reject":
		err = handleAttendanceActivity(activity, username, remoteActor, conf, domain.RsvpNotAttending, deps)
	case "TentativeAccept":
		err = handleAttendanceActivity(activity, username, remoteActor, conf, domain.RsvpMaybe, deps)
	case "Like":
		err = handleLikeActivity(body, username, remoteActor, conf, deps)
	case "Create":
		err = handleCreateActivity(body, username, remoteActor, conf, deps)
	case "Delete":
		err = handleDeleteActivity(body, remoteActor, deps)
	case "Flag":
		err = handleFlagActivity(body, remoteActor, deps)
	default:
		log.Printf("Inbox: Unsupported activity type: %s", activity.Type)
	}

	if err != nil {
		log.Printf("Inbox: Failed to handle %s: %v", activity.Type, err)
		http.Error(w, fmt.Sprintf("Failed to process %s", activity.Type), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// createNotification stores a notification for a local user about a remote action
func createNotification(database Database, accountId uuid.UUID, ntype domain.NotificationType, actor *domain.User, contextURI, body string) {
	n := &domain.Notification{
		Id:               uuid.New(),
		AccountId:        accountId,
		NotificationType: ntype,
		ActorId:          actor.Id,
		ActorUsername:    actor.Username,
		ActorDomain:      actor.Domain,
		ContextURI:       contextURI,
		Body:             truncatePreview(body),
		Read:             false,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	n.Title = n.Summary()

	if err := database.CreateNotification(n); err != nil {
		log.Printf("Inbox: Failed to store notification: %v", err)
	}
}

// truncatePreview limits notification body previews to 100 characters,
// cutting on rune boundaries so multi-byte content stays valid UTF-8
func truncatePreview(s string) string {
	if utf8.RuneCountInString(s) <= 100 {
		return s
	}
	runes := []rune(s)
	return string(runes[:97]) + "..."
}

// handleFollowActivity processes a remote Follow: store the relationship,
// auto-accept, and notify the followed user
func handleFollowActivity(body []byte, username string, remoteActor *domain.User, conf *util.AppConfig, deps *InboxDeps) error {
	var follow FollowActivity
	if err := json.Unmarshal(body, &follow); err != nil {
		return fmt.Errorf("failed to parse Follow activity: %w", err)
	}

	database := deps.Database
	err, localAccount := database.ReadAccByUsername(username)
	if err != nil {
		return fmt.Errorf("local account not found: %w", err)
	}

	err, existingFollow := database.ReadFollowByAccountIds(remoteActor.Id, localAccount.Id)
	if err == nil && existingFollow != nil {
		log.Printf("Inbox: Follow from %s@%s already exists, skipping duplicate", remoteActor.Username, remoteActor.Domain)
	} else {
		followRecord := &domain.Follow{
			Id:              uuid.New(),
			AccountId:       remoteActor.Id,
			TargetAccountId: localAccount.Id,
			URI:             follow.ID,
			Accepted:        true, // Auto-accept
			CreatedAt:       time.Now(),
		}
		if err := database.CreateFollow(followRecord); err != nil {
			return fmt.Errorf("failed to create follow: %w", err)
		}

		createNotification(database, localAccount.Id, domain.NotificationFollow, remoteActor, remoteActor.ExternalActorURI, "")
	}

	// Echo the Follow back exactly as delivered
	var followObject map[string]any
	if err := json.Unmarshal(body, &followObject); err != nil {
		return fmt.Errorf("failed to re-parse Follow activity: %w", err)
	}
	delete(followObject, "@context")

	if err := sendAccept(localAccount, remoteActor, followObject, conf, deps.HTTPClient); err != nil {
		return fmt.Errorf("failed to send Accept: %w", err)
	}

	log.Printf("Inbox: Accepted follow from %s@%s", remoteActor.Username, remoteActor.Domain)
	return nil
}

// handleUndoActivity processes an Undo of a Follow, Like, or attendance answer
func handleUndoActivity(body []byte, username string, remoteActor *domain.User, deps *InboxDeps) error {
	var undo struct {
		Type   string          `json:"type"`
		Actor  string          `json:"actor"`
		Object json.RawMessage `json:"object"`
	}
	if err := json.Unmarshal(body, &undo); err != nil {
		return fmt.Errorf("failed to parse Undo activity: %w", err)
	}

	var obj struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(undo.Object, &obj); err != nil {
		return fmt.Errorf("failed to parse Undo object: %w", err)
	}

	database := deps.Database

	switch obj.Type {
	case "Follow":
		err, follow := database.ReadFollowByURI(obj.ID)
		if err != nil || follow == nil {
			return fmt.Errorf("follow not found for undo")
		}

		// Undo actor must match the Follow actor
		err, followActor := database.ReadRemoteActorById(follow.AccountId)
		if err != nil || followActor == nil {
			return fmt.Errorf("follow actor not found")
		}
		if followActor.ExternalActorURI != undo.Actor {
			return fmt.Errorf("unauthorized: actor %s cannot undo follow created by %s", undo.Actor, followActor.ExternalActorURI)
		}

		if err := database.DeleteFollowByURI(obj.ID); err != nil {
			return fmt.Errorf("failed to delete follow: %w", err)
		}
		log.Printf("Inbox: Removed follow from %s@%s", remoteActor.Username, remoteActor.Domain)

	case "Like":
		if remoteActor.ExternalActorURI != undo.Actor {
			return fmt.Errorf("unauthorized: actor %s cannot undo like", undo.Actor)
		}
		if err := database.DeleteLikeByURI(obj.ID); err != nil {
			log.Printf("Inbox: Failed to delete like %s: %v", obj.ID, err)
		}

	case "Accept", "TentativeAccept":
		// Retracted attendance answer
		if remoteActor.ExternalActorURI != undo.Actor {
			return fmt.Errorf("unauthorized: actor %s cannot undo attendance answer", undo.Actor)
		}
		if err := database.DeleteRsvpByURI(obj.ID); err != nil {
			log.Printf("Inbox: Failed to delete rsvp %s: %v", obj.ID, err)
		}

	default:
		log.Printf("Inbox: Ignoring Undo of %s", obj.Type)
	}

	return nil
}

// handleAcceptActivity processes an incoming Accept: either a confirmation of
// a Follow we sent, or an "attending" answer to a local event
func handleAcceptActivity(body []byte, username string, remoteActor *domain.User, conf *util.AppConfig, deps *InboxDeps) error {
	var accept IncomingActivity
	if err := json.Unmarshal(body, &accept); err != nil {
		return fmt.Errorf("failed to parse Accept activity: %w", err)
	}

	database := deps.Database

	switch obj := accept.Object.(type) {
	case string:
		// Bare URI: a Follow activity URI of ours, or a local event URL
		if eventId, ok := localEventId(obj, conf); ok {
			return storeAttendance(accept.ID, obj, remoteActor, eventId, domain.RsvpAttending, deps)
		}
		if err := database.AcceptFollowByURI(obj); err != nil {
			return fmt.Errorf("failed to mark follow accepted: %w", err)
		}
		log.Printf("Inbox: Follow %s confirmed by %s@%s", obj, remoteActor.Username, remoteActor.Domain)
		return nil

	case map[string]any:
		// Embedded object: a Follow echoed back, or an Event
		objType, _ := obj["type"].(string)
		objId, _ := obj["id"].(string)
		if objType == "Event" {
			if eventId, ok := localEventId(objId, conf); ok {
				return storeAttendance(accept.ID, objId, remoteActor, eventId, domain.RsvpAttending, deps)
			}
			return nil
		}
		if err := database.AcceptFollowByURI(objId); err != nil {
			return fmt.Errorf("failed to mark follow accepted: %w", err)
		}
		log.Printf("Inbox: Follow %s confirmed by %s@%s", objId, remoteActor.Username, remoteActor.Domain)
		return nil
	}

	return nil
}

// handleAttendanceActivity processes Reject and TentativeAccept answers to a
// local event
func handleAttendanceActivity(activity IncomingActivity, username string, remoteActor *domain.User, conf *util.AppConfig, status domain.RsvpStatus, deps *InboxDeps) error {
	objectURI, ok := activity.Object.(string)
	if !ok {
		if obj, isMap := activity.Object.(map[string]any); isMap {
			objectURI, _ = obj["id"].(string)
		}
	}

	eventId, ok := localEventId(objectURI, conf)
	if !ok {
		log.Printf("Inbox: %s for unknown object %s, ignoring", activity.Type, objectURI)
		return nil
	}

	return storeAttendance(activity.ID, objectURI, remoteActor, eventId, status, deps)
}

// storeAttendance upserts an RSVP row and notifies the event organizer
func storeAttendance(activityURI, objectURI string, remoteActor *domain.User, eventId uuid.UUID, status domain.RsvpStatus, deps *InboxDeps) error {
	database := deps.Database

	err, event := database.ReadEventById(eventId)
	if err != nil || event == nil {
		return fmt.Errorf("event %s not found for attendance answer", eventId)
	}

	if event.MaxAttendees > 0 && status == domain.RsvpAttending {
		// Capacity enforcement happens at the storage layer; here we only log
		log.Printf("Inbox: Attendance for capacity-limited event %s from %s@%s", eventId, remoteActor.Username, remoteActor.Domain)
	}

	rsvp := &domain.Rsvp{
		Id:        uuid.New(),
		EventId:   eventId,
		AccountId: remoteActor.Id,
		Status:    status,
		URI:       activityURI,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := database.UpsertRsvp(rsvp); err != nil {
		return fmt.Errorf("failed to store rsvp: %w", err)
	}

	createNotification(database, event.User.Id, domain.NotificationRsvp, remoteActor, objectURI, string(status))
	log.Printf("Inbox: %s@%s is %s event %s", remoteActor.Username, remoteActor.Domain, status, eventId)
	return nil
}

// handleLikeActivity processes a Like on a local event
func handleLikeActivity(body []byte, username string, remoteActor *domain.User, conf *util.AppConfig, deps *InboxDeps) error {
	var like struct {
		ID     string `json:"id"`
		Actor  string `json:"actor"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(body, &like); err != nil {
		return fmt.Errorf("failed to parse Like activity: %w", err)
	}

	eventId, ok := localEventId(like.Object, conf)
	if !ok {
		log.Printf("Inbox: Like for unknown object %s, ignoring", like.Object)
		return nil
	}

	database := deps.Database
	err, event := database.ReadEventById(eventId)
	if err != nil || event == nil {
		return fmt.Errorf("event %s not found for like", eventId)
	}

	likeRecord := &domain.Like{
		Id:        uuid.New(),
		AccountId: remoteActor.Id,
		EventId:   eventId,
		URI:       like.ID,
		CreatedAt: time.Now(),
	}
	if err := database.CreateLike(likeRecord); err != nil {
		return fmt.Errorf("failed to store like: %w", err)
	}

	createNotification(database, event.User.Id, domain.NotificationLike, remoteActor, like.Object, "")
	return nil
}

// handleCreateActivity processes a Create carrying a Note that replies to a
// local event or to a local comment
func handleCreateActivity(body []byte, username string, remoteActor *domain.User, conf *util.AppConfig, deps *InboxDeps) error {
	var create struct {
		ID     string `json:"id"`
		Actor  string `json:"actor"`
		Object struct {
			ID           string `json:"id"`
			Type         string `json:"type"`
			Content      string `json:"content"`
			AttributedTo string `json:"attributedTo"`
			InReplyTo    string `json:"inReplyTo"`
		} `json:"object"`
	}
	if err := json.Unmarshal(body, &create); err != nil {
		return fmt.Errorf("failed to parse Create activity: %w", err)
	}

	if create.Object.Type != "Note" {
		log.Printf("Inbox: Ignoring Create of %s", create.Object.Type)
		return nil
	}
	if create.Object.InReplyTo == "" {
		log.Printf("Inbox: Ignoring Note without inReplyTo from %s", create.Actor)
		return nil
	}

	database := deps.Database

	// Duplicate of something we already have (our own activity echoing back)?
	if err, existing := database.ReadCommentByURI(create.Object.ID); err == nil && existing != nil {
		log.Printf("Inbox: Comment %s already known, skipping", create.Object.ID)
		return nil
	}

	var eventId uuid.UUID
	var parentId *uuid.UUID
	var notifyAccount uuid.UUID
	var ntype domain.NotificationType

	if id, ok := localEventId(create.Object.InReplyTo, conf); ok {
		// Top-level comment on a local event
		err, event := database.ReadEventById(id)
		if err != nil || event == nil {
			return fmt.Errorf("event %s not found for comment", id)
		}
		eventId = id
		notifyAccount = event.User.Id
		ntype = domain.NotificationComment
	} else {
		// Reply to a local comment?
		err, parent := database.ReadCommentByURI(create.Object.InReplyTo)
		if err != nil || parent == nil {
			log.Printf("Inbox: Note replies to unknown object %s, ignoring", create.Object.InReplyTo)
			return nil
		}
		eventId = parent.EventId
		parentId = &parent.Id
		notifyAccount = parent.AuthorId
		ntype = domain.NotificationReply
	}

	comment := &domain.Comment{
		Id:          uuid.New(),
		EventId:     eventId,
		AuthorId:    remoteActor.Id,
		Content:     create.Object.Content,
		InReplyToId: parentId,
		ObjectURI:   create.Object.ID,
		Author:      *remoteActor,
		CreatedAt:   time.Now(),
	}
	if err := database.CreateComment(comment); err != nil {
		return fmt.Errorf("failed to store comment: %w", err)
	}

	createNotification(database, notifyAccount, ntype, remoteActor, create.Object.ID, create.Object.Content)
	log.Printf("Inbox: Stored comment %s from %s@%s", comment.Id, remoteActor.Username, remoteActor.Domain)
	return nil
}

// handleDeleteActivity processes a Delete/Tombstone for a remote comment
func handleDeleteActivity(body []byte, remoteActor *domain.User, deps *InboxDeps) error {
	var del struct {
		Actor  string `json:"actor"`
		Object any    `json:"object"`
	}
	if err := json.Unmarshal(body, &del); err != nil {
		return fmt.Errorf("failed to parse Delete activity: %w", err)
	}

	objectURI := ""
	switch obj := del.Object.(type) {
	case string:
		objectURI = obj
	case map[string]any:
		objectURI, _ = obj["id"].(string)
	}
	if objectURI == "" {
		return fmt.Errorf("Delete activity missing object")
	}

	database := deps.Database
	err, comment := database.ReadCommentByURI(objectURI)
	if err != nil || comment == nil {
		// Nothing of ours, probably an actor deletion we don't track
		return nil
	}

	// Only the author may delete their comment
	if comment.AuthorId != remoteActor.Id {
		return fmt.Errorf("unauthorized: actor %s cannot delete comment %s", del.Actor, comment.Id)
	}

	if err := database.DeleteCommentByURI(objectURI); err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	log.Printf("Inbox: Deleted comment %s by %s@%s", comment.Id, remoteActor.Username, remoteActor.Domain)
	return nil
}

// handleFlagActivity processes a moderation report and notifies admins
func handleFlagActivity(body []byte, remoteActor *domain.User, deps *InboxDeps) error {
	var flag struct {
		Actor   string `json:"actor"`
		Content string `json:"content"`
		Object  any    `json:"object"`
	}
	if err := json.Unmarshal(body, &flag); err != nil {
		return fmt.Errorf("failed to parse Flag activity: %w", err)
	}

	targetURI := ""
	switch obj := flag.Object.(type) {
	case string:
		targetURI = obj
	case []any:
		if len(obj) > 0 {
			targetURI, _ = obj[0].(string)
		}
	case map[string]any:
		targetURI, _ = obj["id"].(string)
	}
	if targetURI == "" {
		return fmt.Errorf("Flag activity missing object")
	}

	database := deps.Database
	report := &domain.Report{
		Id:          uuid.New(),
		ReporterURI: flag.Actor,
		TargetURI:   targetURI,
		Comment:     flag.Content,
		Status:      "open",
		CreatedAt:   time.Now(),
	}
	if err := database.CreateReport(report); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	err, admins := database.ReadAdminAccounts()
	if err != nil || admins == nil {
		log.Printf("Inbox: No admins to notify about report %s", report.Id)
		return nil
	}
	for _, admin := range *admins {
		createNotification(database, admin.Id, domain.NotificationReport, remoteActor, targetURI, flag.Content)
	}

	log.Printf("Inbox: Stored report %s against %s", report.Id, targetURI)
	return nil
}

// localEventId extracts the event id from a local event object URL,
// e.g. https://constellate.example/events/<uuid>
func localEventId(uri string, conf *util.AppConfig) (uuid.UUID, bool) {
	prefix := conf.BaseURL() + "/events/"
	if !strings.HasPrefix(uri, prefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(uri, prefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
