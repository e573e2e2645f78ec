package activitypub

import (
	"fmt"
	"strings"
	"time"

	"github.com/constellate/constellate/domain"
	"github.com/gomarkdown/markdown"
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// PublicAudience is the special ActivityStreams collection for public addressing
const PublicAudience = "https://www.w3.org/ns/activitystreams#Public"

const activityStreamsContext = "https://www.w3.org/ns/activitystreams"
const securityContext = "https://w3id.org/security/v1"

// Builder constructs outgoing ActivityStreams activities for this instance.
// All methods are pure: no network, no persistence, no shared state. The base
// URL is injected once at construction and must not carry a trailing slash.
type Builder struct {
	baseURL string
}

// NewBuilder creates a Builder for the given instance base URL
// (e.g. "https://constellate.example")
func NewBuilder(baseURL string) *Builder {
	return &Builder{baseURL: strings.TrimRight(baseURL, "/")}
}

// ActorURL returns the canonical actor URI for a user: the cached external
// actor URI for remote users, a local /users/<username> URI otherwise
func (b *Builder) ActorURL(user domain.User) (string, error) {
	if user.IsRemote && user.ExternalActorURI != "" {
		return user.ExternalActorURI, nil
	}
	if user.Username == "" {
		return "", fmt.Errorf("user is missing username, cannot build local actor URL")
	}
	return fmt.Sprintf("%s/users/%s", b.baseURL, user.Username), nil
}

// FollowersURL returns the followers collection URI for an actor URI
func FollowersURL(actorURL string) string {
	return actorURL + "/followers"
}

// EventURL returns the ActivityPub object URI for a local event
func (b *Builder) EventURL(eventId uuid.UUID) string {
	return fmt.Sprintf("%s/events/%s", b.baseURL, eventId.String())
}

// CommentURL returns the ActivityPub object URI for a local comment
func (b *Builder) CommentURL(commentId uuid.UUID) string {
	return fmt.Sprintf("%s/comments/%s", b.baseURL, commentId.String())
}

// newActivityID generates an activity id carrying the verb and a unique
// suffix. xid suffixes are collision-resistant under concurrent calls within
// the same millisecond, which plain timestamps are not.
func (b *Builder) newActivityID(verb string) string {
	return fmt.Sprintf("%s/activities/%s-%s", b.baseURL, verb, xid.New().String())
}

// renderHTML converts Markdown content to HTML for ActivityPub object content
func renderHTML(md string) string {
	return strings.TrimSpace(string(markdown.ToHTML([]byte(md), nil, nil)))
}

// filterEmpty drops empty strings from a recipient list
func filterEmpty(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// eventObject builds the ActivityStreams Event object, emitting optional
// fields only when set. Absent keys stay absent, never null.
func (b *Builder) eventObject(event domain.Event, actorURL string) (map[string]any, error) {
	if event.Id == uuid.Nil {
		return nil, fmt.Errorf("event is missing id")
	}
	if event.Title == "" {
		return nil, fmt.Errorf("event %s is missing title", event.Id)
	}

	obj := map[string]any{
		"id":           b.EventURL(event.Id),
		"type":         "Event",
		"name":         event.Title,
		"attributedTo": actorURL,
		"published":    event.CreatedAt.UTC().Format(time.RFC3339),
		"startTime":    event.StartTime.UTC().Format(time.RFC3339),
		"to":           []string{PublicAudience},
		"cc":           []string{FollowersURL(actorURL)},
	}

	if event.Summary != "" {
		obj["summary"] = renderHTML(event.Summary)
	}
	if event.Location != "" {
		obj["location"] = map[string]any{
			"type": "Place",
			"name": event.Location,
		}
	}
	if event.URL != "" {
		obj["url"] = event.URL
	}
	if event.EndTime != nil {
		obj["endTime"] = event.EndTime.UTC().Format(time.RFC3339)
	}
	if event.Duration != "" {
		obj["duration"] = event.Duration
	}
	if event.Status != "" {
		obj["eventStatus"] = event.Status
	}
	if event.AttendanceMode != "" {
		obj["eventAttendanceMode"] = event.AttendanceMode
	}
	if event.MaxAttendees > 0 {
		obj["maximumAttendeeCapacity"] = event.MaxAttendees
	}
	if event.HeaderImage != "" {
		obj["attachment"] = []map[string]any{
			{
				"type":      "Image",
				"mediaType": "image/jpeg",
				"url":       event.HeaderImage,
			},
		}
	}

	return obj, nil
}

// EventObject builds the standalone Event representation served at the event
// object endpoint, with the ActivityStreams context attached
func (b *Builder) EventObject(event domain.Event) (map[string]any, error) {
	actorURL, err := b.ActorURL(event.User)
	if err != nil {
		return nil, err
	}
	obj, err := b.eventObject(event, actorURL)
	if err != nil {
		return nil, err
	}
	obj["@context"] = activityStreamsContext
	if !event.UpdatedAt.Equal(event.CreatedAt) {
		obj["updated"] = event.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return obj, nil
}

// CommentObject builds the standalone Note representation served at the
// comment object endpoint
func (b *Builder) CommentObject(comment domain.Comment, eventAuthorURL string) (map[string]any, error) {
	if comment.Id == uuid.Nil {
		return nil, fmt.Errorf("comment is missing id")
	}
	actorURL, err := b.ActorURL(comment.Author)
	if err != nil {
		return nil, err
	}

	inReplyTo := b.EventURL(comment.EventId)
	if comment.InReplyToId != nil {
		inReplyTo = b.CommentURL(*comment.InReplyToId)
	}

	obj := map[string]any{
		"@context":     activityStreamsContext,
		"id":           b.CommentURL(comment.Id),
		"type":         "Note",
		"attributedTo": actorURL,
		"content":      renderHTML(comment.Content),
		"mediaType":    "text/html",
		"inReplyTo":    inReplyTo,
		"published":    comment.CreatedAt.UTC().Format(time.RFC3339),
		"to":           []string{PublicAudience},
	}
	if eventAuthorURL != "" {
		obj["cc"] = []string{FollowersURL(eventAuthorURL)}
	}
	return obj, nil
}

// BuildCreateEvent builds a Create activity announcing a new event to the
// public and to the organizer's followers
func (b *Builder) BuildCreateEvent(event domain.Event) (map[string]any, error) {
	actorURL, err := b.ActorURL(event.User)
	if err != nil {
		return nil, err
	}

	obj, err := b.eventObject(event, actorURL)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID("create"),
		"type":      "Create",
		"actor":     actorURL,
		"published": event.CreatedAt.UTC().Format(time.RFC3339),
		"to":        []string{PublicAudience},
		"cc":        []string{FollowersURL(actorURL)},
		"object":    obj,
	}, nil
}

// BuildUpdateEvent builds an Update activity for an edited event. The object
// carries the edit timestamp and the activity id is unique per call.
func (b *Builder) BuildUpdateEvent(event domain.Event) (map[string]any, error) {
	actorURL, err := b.ActorURL(event.User)
	if err != nil {
		return nil, err
	}

	obj, err := b.eventObject(event, actorURL)
	if err != nil {
		return nil, err
	}
	obj["updated"] = event.UpdatedAt.UTC().Format(time.RFC3339)

	return map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID("update"),
		"type":      "Update",
		"actor":     actorURL,
		"published": time.Now().UTC().Format(time.RFC3339),
		"to":        []string{PublicAudience},
		"cc":        []string{FollowersURL(actorURL)},
		"object":    obj,
	}, nil
}

// BuildDeleteEvent builds a Delete activity with a Tombstone object for a
// removed event
func (b *Builder) BuildDeleteEvent(eventId uuid.UUID, user domain.User) (map[string]any, error) {
	if eventId == uuid.Nil {
		return nil, fmt.Errorf("event id is required for delete")
	}
	actorURL, err := b.ActorURL(user)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID("delete"),
		"type":      "Delete",
		"actor":     actorURL,
		"published": time.Now().UTC().Format(time.RFC3339),
		"to":        []string{PublicAudience},
		"cc":        []string{FollowersURL(actorURL)},
		"object": map[string]any{
			"id":         b.EventURL(eventId),
			"type":       "Tombstone",
			"formerType": "Event",
			"deleted":    time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// BuildFollow builds a Follow activity targeting a remote actor. The object
// is the bare actor URI, per convention.
func (b *Builder) BuildFollow(user domain.User, targetActorURL string) (map[string]any, error) {
	if targetActorURL == "" {
		return nil, fmt.Errorf("target actor URL is required for follow")
	}
	actorURL, err := b.ActorURL(user)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID("follow"),
		"type":      "Follow",
		"actor":     actorURL,
		"object":    targetActorURL,
		"published": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// BuildAccept builds an Accept echoing back the Follow activity exactly as
// the remote sender delivered it
func (b *Builder) BuildAccept(user domain.User, follow map[string]any) (map[string]any, error) {
	if follow == nil {
		return nil, fmt.Errorf("follow activity is required for accept")
	}
	return b.buildAccept(user, follow)
}

// BuildAcceptByURI builds an Accept referencing the Follow only by its id,
// for senders that delivered a bare activity URI
func (b *Builder) BuildAcceptByURI(user domain.User, followURI string) (map[string]any, error) {
	if followURI == "" {
		return nil, fmt.Errorf("follow activity URI is required for accept")
	}
	return b.buildAccept(user, followURI)
}

func (b *Builder) buildAccept(user domain.User, object any) (map[string]any, error) {
	actorURL, err := b.ActorURL(user)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID("accept"),
		"type":      "Accept",
		"actor":     actorURL,
		"object":    object,
		"published": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// BuildLike builds a Like for an event. A private like is addressed to the
// event author only; a public like additionally carries the public collection
// and the author's followers in cc. A private like has no cc key at all --
// downstream fan-out treats a missing cc differently from an empty one.
func (b *Builder) BuildLike(user domain.User, eventURL, eventAuthorURL, eventAuthorFollowersURL string, isPublic bool) (map[string]any, error) {
	if eventURL == "" {
		return nil, fmt.Errorf("event URL is required for like")
	}
	actorURL, err := b.ActorURL(user)
	if err != nil {
		return nil, err
	}

	activity := map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID("like"),
		"type":      "Like",
		"actor":     actorURL,
		"object":    eventURL,
		"to":        []string{eventAuthorURL},
		"published": time.Now().UTC().Format(time.RFC3339),
	}

	if isPublic {
		activity["cc"] = filterEmpty([]string{PublicAudience, eventAuthorFollowersURL})
	}

	return activity, nil
}

// BuildUndo builds an Undo of a previously sent activity. The original is
// embedded whole and the original addressing is copied verbatim: an Undo must
// reach exactly who the activity it retracts reached.
func (b *Builder) BuildUndo(user domain.User, original map[string]any) (map[string]any, error) {
	if original == nil {
		return nil, fmt.Errorf("original activity is required for undo")
	}
	actorURL, err := b.ActorURL(user)
	if err != nil {
		return nil, err
	}

	undo := map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID("undo"),
		"type":      "Undo",
		"actor":     actorURL,
		"object":    original,
		"published": time.Now().UTC().Format(time.RFC3339),
	}

	if to, ok := original["to"]; ok {
		undo["to"] = to
	}
	if cc, ok := original["cc"]; ok {
		undo["cc"] = cc
	}

	return undo, nil
}

// BuildAttending builds an Accept answering an event invitation ("attending").
// Public answers are cc'd to the public collection and both follower sets.
func (b *Builder) BuildAttending(user domain.User, eventURL, eventAuthorURL, eventAuthorFollowersURL, userFollowersURL string, isPublic bool) (map[string]any, error) {
	if eventURL == "" {
		return nil, fmt.Errorf("event URL is required for attendance answer")
	}
	actorURL, err := b.ActorURL(user)
	if err != nil {
		return nil, err
	}

	activity := map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID("accept"),
		"type":      "Accept",
		"actor":     actorURL,
		"object":    eventURL,
		"to":        []string{eventAuthorURL},
		"published": time.Now().UTC().Format(time.RFC3339),
	}

	if isPublic {
		activity["cc"] = filterEmpty([]string{PublicAudience, eventAuthorFollowersURL, userFollowersURL})
	}

	return activity, nil
}

// BuildNotAttending builds a Reject answering an event invitation
func (b *Builder) BuildNotAttending(user domain.User, eventURL, eventAuthorURL string) (map[string]any, error) {
	return b.buildAttendanceAnswer(user, "Reject", eventURL, eventAuthorURL)
}

// BuildMaybeAttending builds a TentativeAccept answering an event invitation
func (b *Builder) BuildMaybeAttending(user domain.User, eventURL, eventAuthorURL string) (map[string]any, error) {
	return b.buildAttendanceAnswer(user, "TentativeAccept", eventURL, eventAuthorURL)
}

func (b *Builder) buildAttendanceAnswer(user domain.User, activityType, eventURL, eventAuthorURL string) (map[string]any, error) {
	if eventURL == "" {
		return nil, fmt.Errorf("event URL is required for attendance answer")
	}
	actorURL, err := b.ActorURL(user)
	if err != nil {
		return nil, err
	}

	verb := strings.ToLower(activityType)
	return map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID(verb),
		"type":      activityType,
		"actor":     actorURL,
		"object":    eventURL,
		"to":        []string{eventAuthorURL},
		"published": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// BuildCreateComment builds a Create activity for a comment on an event. A
// top-level comment replies to the event; a nested comment replies to its
// parent comment and additionally addresses the parent comment's author.
func (b *Builder) BuildCreateComment(comment domain.Comment, eventAuthorURL, eventFollowersURL, parentCommentAuthorURL string) (map[string]any, error) {
	if comment.Id == uuid.Nil {
		return nil, fmt.Errorf("comment is missing id")
	}
	if eventAuthorURL == "" {
		return nil, fmt.Errorf("event author URL is required for comment")
	}
	actorURL, err := b.ActorURL(comment.Author)
	if err != nil {
		return nil, err
	}

	inReplyTo := b.EventURL(comment.EventId)
	to := []string{eventAuthorURL}
	if comment.InReplyToId != nil {
		inReplyTo = b.CommentURL(*comment.InReplyToId)
		if parentCommentAuthorURL != "" && parentCommentAuthorURL != eventAuthorURL {
			to = append(to, parentCommentAuthorURL)
		}
	}

	published := comment.CreatedAt.UTC().Format(time.RFC3339)

	obj := map[string]any{
		"id":           b.CommentURL(comment.Id),
		"type":         "Note",
		"attributedTo": actorURL,
		"content":      renderHTML(comment.Content),
		"mediaType":    "text/html",
		"inReplyTo":    inReplyTo,
		"published":    published,
		"to":           to,
	}
	if eventFollowersURL != "" {
		obj["cc"] = []string{eventFollowersURL}
	}

	activity := map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID("create"),
		"type":      "Create",
		"actor":     actorURL,
		"published": published,
		"to":        to,
		"object":    obj,
	}
	if eventFollowersURL != "" {
		activity["cc"] = []string{eventFollowersURL}
	}

	return activity, nil
}

// BuildDeleteComment builds a Delete with a Tombstone for a removed comment
func (b *Builder) BuildDeleteComment(comment domain.Comment, eventAuthorURL string) (map[string]any, error) {
	if comment.Id == uuid.Nil {
		return nil, fmt.Errorf("comment is missing id")
	}
	actorURL, err := b.ActorURL(comment.Author)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"@context":  activityStreamsContext,
		"id":        b.newActivityID("delete"),
		"type":      "Delete",
		"actor":     actorURL,
		"published": time.Now().UTC().Format(time.RFC3339),
		"to":        []string{eventAuthorURL},
		"object": map[string]any{
			"id":         b.CommentURL(comment.Id),
			"type":       "Tombstone",
			"formerType": "Note",
			"deleted":    time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// PersonObject builds the full actor-profile representation served at the
// actor endpoint and embedded in profile Update activities
func (b *Builder) PersonObject(user domain.User) (map[string]any, error) {
	if user.Username == "" {
		return nil, fmt.Errorf("user is missing username, cannot build person object")
	}
	actorURL, err := b.ActorURL(user)
	if err != nil {
		return nil, err
	}

	// Display name falls back to the username, never an empty name
	name := user.Name
	if name == "" {
		name = user.Username
	}

	person := map[string]any{
		"id":                        actorURL,
		"type":                      "Person",
		"preferredUsername":         user.Username,
		"name":                      name,
		"url":                       actorURL,
		"inbox":                     actorURL + "/inbox",
		"outbox":                    actorURL + "/outbox",
		"followers":                 actorURL + "/followers",
		"following":                 actorURL + "/following",
		"manuallyApprovesFollowers": false,
		"discoverable":              true,
		"endpoints": map[string]any{
			"sharedInbox": b.baseURL + "/inbox",
		},
		"publicKey": map[string]any{
			"id":           actorURL + "#main-key",
			"owner":        actorURL,
			"publicKeyPem": user.PublicKeyPem,
		},
	}

	if user.Summary != "" {
		person["summary"] = renderHTML(user.Summary)
	}
	if user.ProfileImage != "" {
		person["icon"] = map[string]any{
			"type":      "Image",
			"mediaType": "image/png",
			"url":       user.ProfileImage,
		}
	}

	return person, nil
}

// BuildUpdateProfile builds an Update broadcasting a changed actor profile to
// the public and to the actor's followers
func (b *Builder) BuildUpdateProfile(user domain.User) (map[string]any, error) {
	person, err := b.PersonObject(user)
	if err != nil {
		return nil, err
	}
	actorURL := person["id"].(string)

	return map[string]any{
		"@context":  []string{activityStreamsContext, securityContext},
		"id":        b.newActivityID("update"),
		"type":      "Update",
		"actor":     actorURL,
		"published": time.Now().UTC().Format(time.RFC3339),
		"to":        []string{PublicAudience},
		"cc":        []string{FollowersURL(actorURL)},
		"object":    person,
	}, nil
}
