package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/constellate/constellate/domain"
	"github.com/constellate/constellate/util"
	"github.com/google/uuid"
)

// SendActivity signs an activity and POSTs it to a remote inbox
func SendActivity(activity map[string]any, inboxURI string, localUser *domain.User, conf *util.AppConfig) error {
	return SendActivityWithClient(activity, inboxURI, localUser, conf, defaultHTTPClient)
}

// SendActivityWithClient is SendActivity with an injectable HTTP client
func SendActivityWithClient(activity map[string]any, inboxURI string, localUser *domain.User, conf *util.AppConfig, client HTTPClient) error {
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	req, err := http.NewRequest("POST", inboxURI, bytes.NewReader(activityJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "constellate/1.0 ActivityPub")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	privateKey, err := ParsePrivateKey(localUser.PrivateKeyPem)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	keyID := fmt.Sprintf("%s/users/%s#main-key", conf.BaseURL(), localUser.Username)
	if err := SignRequest(req, privateKey, keyID); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("remote server returned status: %d", resp.StatusCode)
	}

	log.Printf("Outbox: Sent %v to %s (status: %d)", activity["type"], inboxURI, resp.StatusCode)
	return nil
}

// fanOutToFollowers queues an activity for delivery to every follower inbox
// of a local user. Shared inboxes are preferred and each inbox is queued once.
func fanOutToFollowers(activity map[string]any, localUser *domain.User, database Database) error {
	activityJSON, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	err, followers := database.ReadFollowersByAccountId(localUser.Id)
	if err != nil {
		return fmt.Errorf("failed to read followers: %w", err)
	}
	if followers == nil || len(*followers) == 0 {
		log.Printf("Outbox: No followers to deliver to for %s", localUser.Username)
		return nil
	}

	seen := make(map[string]bool)
	queued := 0
	for _, follower := range *followers {
		err, remoteActor := database.ReadRemoteActorById(follower.AccountId)
		if err != nil || remoteActor == nil {
			// Local follower, nothing to deliver over the wire
			continue
		}

		inboxURI := remoteActor.InboxURI
		if remoteActor.SharedInboxURI != "" {
			inboxURI = remoteActor.SharedInboxURI
		}
		if inboxURI == "" || seen[inboxURI] {
			continue
		}
		seen[inboxURI] = true

		item := &domain.DeliveryQueueItem{
			Id:           uuid.New(),
			AccountId:    localUser.Id,
			InboxURI:     inboxURI,
			ActivityJSON: string(activityJSON),
			Attempts:     0,
			NextRetryAt:  time.Now(),
			CreatedAt:    time.Now(),
		}
		if err := database.EnqueueDelivery(item); err != nil {
			log.Printf("Outbox: Failed to queue delivery to %s: %v", inboxURI, err)
			continue
		}
		queued++
	}

	log.Printf("Outbox: Queued %v activity to %d inboxes", activity["type"], queued)
	return nil
}

// PublishEventCreate federates a newly created event to the organizer's followers
func PublishEventCreate(event *domain.Event, conf *util.AppConfig) error {
	return PublishEventCreateWithDeps(event, conf, NewDBWrapper())
}

// PublishEventCreateWithDeps is PublishEventCreate with an injectable database
func PublishEventCreateWithDeps(event *domain.Event, conf *util.AppConfig, database Database) error {
	builder := NewBuilder(conf.BaseURL())
	activity, err := builder.BuildCreateEvent(*event)
	if err != nil {
		return fmt.Errorf("failed to build Create: %w", err)
	}
	return fanOutToFollowers(activity, &event.User, database)
}

// PublishEventUpdate federates an edited event to the organizer's followers
func PublishEventUpdate(event *domain.Event, conf *util.AppConfig) error {
	return PublishEventUpdateWithDeps(event, conf, NewDBWrapper())
}

// PublishEventUpdateWithDeps is PublishEventUpdate with an injectable database
func PublishEventUpdateWithDeps(event *domain.Event, conf *util.AppConfig, database Database) error {
	builder := NewBuilder(conf.BaseURL())
	activity, err := builder.BuildUpdateEvent(*event)
	if err != nil {
		return fmt.Errorf("failed to build Update: %w", err)
	}
	return fanOutToFollowers(activity, &event.User, database)
}

// PublishEventDelete federates an event deletion to the organizer's followers
func PublishEventDelete(eventId uuid.UUID, organizer *domain.User, conf *util.AppConfig) error {
	return PublishEventDeleteWithDeps(eventId, organizer, conf, NewDBWrapper())
}

// PublishEventDeleteWithDeps is PublishEventDelete with an injectable database
func PublishEventDeleteWithDeps(eventId uuid.UUID, organizer *domain.User, conf *util.AppConfig, database Database) error {
	builder := NewBuilder(conf.BaseURL())
	activity, err := builder.BuildDeleteEvent(eventId, *organizer)
	if err != nil {
		return fmt.Errorf("failed to build Delete: %w", err)
	}
	return fanOutToFollowers(activity, organizer, database)
}

// PublishProfileUpdate federates a changed actor profile to the user's followers
func PublishProfileUpdate(user *domain.User, conf *util.AppConfig) error {
	return PublishProfileUpdateWithDeps(user, conf, NewDBWrapper())
}

// PublishProfileUpdateWithDeps is PublishProfileUpdate with an injectable database
func PublishProfileUpdateWithDeps(user *domain.User, conf *util.AppConfig, database Database) error {
	builder := NewBuilder(conf.BaseURL())
	activity, err := builder.BuildUpdateProfile(*user)
	if err != nil {
		return fmt.Errorf("failed to build profile Update: %w", err)
	}
	return fanOutToFollowers(activity, user, database)
}

// PublishComment federates a local comment to the event organizer and followers
func PublishComment(comment *domain.Comment, event *domain.Event, conf *util.AppConfig) error {
	return PublishCommentWithDeps(comment, event, conf, NewDBWrapper())
}

// PublishCommentWithDeps is PublishComment with an injectable database
func PublishCommentWithDeps(comment *domain.Comment, event *domain.Event, conf *util.AppConfig, database Database) error {
	builder := NewBuilder(conf.BaseURL())

	organizerURL, err := builder.ActorURL(event.User)
	if err != nil {
		return fmt.Errorf("failed to resolve organizer actor URL: %w", err)
	}

	parentAuthorURL := ""
	if comment.InReplyToId != nil {
		err, parent := database.ReadCommentById(*comment.InReplyToId)
		if err == nil && parent != nil {
			parentAuthorURL, _ = builder.ActorURL(parent.Author)
		}
	}

	activity, err := builder.BuildCreateComment(*comment, organizerURL,
		FollowersURL(organizerURL), parentAuthorURL)
	if err != nil {
		return fmt.Errorf("failed to build comment Create: %w", err)
	}

	// Comments fan out to the commenter's own followers too
	return fanOutToFollowers(activity, &comment.Author, database)
}

// SendFollow sends a Follow activity to a remote actor
func SendFollow(localUser *domain.User, remoteActorURI string, conf *util.AppConfig) error {
	return SendFollowWithDeps(localUser, remoteActorURI, conf, defaultHTTPClient, NewDBWrapper())
}

// SendFollowWithDeps is SendFollow with injectable dependencies
func SendFollowWithDeps(localUser *domain.User, remoteActorURI string, conf *util.AppConfig, client HTTPClient, database Database) error {
	remoteActor, err := GetOrFetchActorWithDeps(remoteActorURI, client, database)
	if err != nil {
		return fmt.Errorf("failed to fetch remote actor: %w", err)
	}

	if remoteActor.Domain == conf.Conf.SslDomain && remoteActor.Username == localUser.Username {
		return fmt.Errorf("self-follow not allowed")
	}

	err, existing := database.ReadFollowByAccountIds(localUser.Id, remoteActor.Id)
	if err == nil && existing != nil {
		return fmt.Errorf("already following %s@%s", remoteActor.Username, remoteActor.Domain)
	}

	builder := NewBuilder(conf.BaseURL())
	follow, err := builder.BuildFollow(*localUser, remoteActorURI)
	if err != nil {
		return fmt.Errorf("failed to build Follow: %w", err)
	}

	followRecord := &domain.Follow{
		Id:              uuid.New(),
		AccountId:       localUser.Id,
		TargetAccountId: remoteActor.Id,
		URI:             follow["id"].(string),
		Accepted:        false, // Pending until Accept received
		CreatedAt:       time.Now(),
	}
	if err := database.CreateFollow(followRecord); err != nil {
		return fmt.Errorf("failed to store follow: %w", err)
	}

	return SendActivityWithClient(follow, remoteActor.InboxURI, localUser, conf, client)
}

// SendUnfollow sends an Undo of a previously sent Follow
func SendUnfollow(localUser *domain.User, follow *domain.Follow, remoteActor *domain.User, conf *util.AppConfig) error {
	return SendUnfollowWithDeps(localUser, follow, remoteActor, conf, defaultHTTPClient, NewDBWrapper())
}

// SendUnfollowWithDeps is SendUnfollow with injectable dependencies
func SendUnfollowWithDeps(localUser *domain.User, follow *domain.Follow, remoteActor *domain.User, conf *util.AppConfig, client HTTPClient, database Database) error {
	builder := NewBuilder(conf.BaseURL())

	actorURL, err := builder.ActorURL(*localUser)
	if err != nil {
		return err
	}

	// Reconstruct the original Follow so the Undo embeds what was sent
	original := map[string]any{
		"id":     follow.URI,
		"type":   "Follow",
		"actor":  actorURL,
		"object": remoteActor.ExternalActorURI,
	}

	undo, err := builder.BuildUndo(*localUser, original)
	if err != nil {
		return fmt.Errorf("failed to build Undo: %w", err)
	}

	if err := database.DeleteFollowByURI(follow.URI); err != nil {
		log.Printf("Outbox: Failed to delete follow record %s: %v", follow.URI, err)
	}

	return SendActivityWithClient(undo, remoteActor.InboxURI, localUser, conf, client)
}

// SendEventResponse sends an attendance answer for a remote event to its
// organizer. Attending answers may be public; declines and maybes are always
// addressed to the organizer only.
func SendEventResponse(localUser *domain.User, status domain.RsvpStatus, eventURL, organizerActorURL, organizerInboxURI string, isPublic bool, conf *util.AppConfig) error {
	return SendEventResponseWithClient(localUser, status, eventURL, organizerActorURL, organizerInboxURI, isPublic, conf, defaultHTTPClient)
}

// SendEventResponseWithClient is SendEventResponse with an injectable HTTP client
func SendEventResponseWithClient(localUser *domain.User, status domain.RsvpStatus, eventURL, organizerActorURL, organizerInboxURI string, isPublic bool, conf *util.AppConfig, client HTTPClient) error {
	builder := NewBuilder(conf.BaseURL())

	actorURL, err := builder.ActorURL(*localUser)
	if err != nil {
		return err
	}

	var activity map[string]any
	switch status {
	case domain.RsvpAttending:
		activity, err = builder.BuildAttending(*localUser, eventURL, organizerActorURL,
			FollowersURL(organizerActorURL), FollowersURL(actorURL), isPublic)
	case domain.RsvpNotAttending:
		activity, err = builder.BuildNotAttending(*localUser, eventURL, organizerActorURL)
	case domain.RsvpMaybe:
		activity, err = builder.BuildMaybeAttending(*localUser, eventURL, organizerActorURL)
	default:
		return fmt.Errorf("unknown rsvp status: %s", status)
	}
	if err != nil {
		return fmt.Errorf("failed to build attendance answer: %w", err)
	}

	return SendActivityWithClient(activity, organizerInboxURI, localUser, conf, client)
}

// SendLike sends a Like for a remote event to its organizer
func SendLike(localUser *domain.User, eventURL, organizerActorURL, organizerInboxURI string, isPublic bool, conf *util.AppConfig) error {
	return SendLikeWithClient(localUser, eventURL, organizerActorURL, organizerInboxURI, isPublic, conf, defaultHTTPClient)
}

// SendLikeWithClient is SendLike with an injectable HTTP client
func SendLikeWithClient(localUser *domain.User, eventURL, organizerActorURL, organizerInboxURI string, isPublic bool, conf *util.AppConfig, client HTTPClient) error {
	builder := NewBuilder(conf.BaseURL())

	activity, err := builder.BuildLike(*localUser, eventURL, organizerActorURL,
		FollowersURL(organizerActorURL), isPublic)
	if err != nil {
		return fmt.Errorf("failed to build Like: %w", err)
	}

	return SendActivityWithClient(activity, organizerInboxURI, localUser, conf, client)
}

// sendAccept answers a remote Follow, echoing the Follow back as delivered
func sendAccept(localUser *domain.User, remoteActor *domain.User, follow map[string]any, conf *util.AppConfig, client HTTPClient) error {
	builder := NewBuilder(conf.BaseURL())

	accept, err := builder.BuildAccept(*localUser, follow)
	if err != nil {
		return fmt.Errorf("failed to build Accept: %w", err)
	}

	return SendActivityWithClient(accept, remoteActor.InboxURI, localUser, conf, client)
}
