package web

import (
	"encoding/json"
	"fmt"

	"github.com/constellate/constellate/activitypub"
	"github.com/constellate/constellate/db"
	"github.com/constellate/constellate/domain"
	"github.com/constellate/constellate/util"
	"github.com/google/uuid"
)

// GetActor returns the ActivityPub actor document for a local account
func GetActor(actor string, conf *util.AppConfig) (error, string) {
	err, acc := db.GetDB().ReadAccByUsername(actor)
	if err != nil {
		return err, "{}"
	}
	return RenderActor(acc, conf)
}

// RenderActor serializes a local account as an ActivityPub Person document
func RenderActor(acc *domain.User, conf *util.AppConfig) (error, string) {
	builder := activitypub.NewBuilder(conf.BaseURL())
	person, err := builder.PersonObject(*acc)
	if err != nil {
		return err, "{}"
	}

	person["@context"] = []string{
		"https://www.w3.org/ns/activitystreams",
		"https://w3id.org/security/v1",
	}

	jsonBytes, err := json.Marshal(person)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetEventObject returns an event as an ActivityPub Event document
func GetEventObject(eventId uuid.UUID, conf *util.AppConfig) (error, string) {
	err, event := db.GetDB().ReadEventById(eventId)
	if err != nil {
		return err, "{}"
	}
	return RenderEventObject(event, conf)
}

// RenderEventObject serializes an event as an ActivityPub Event document
func RenderEventObject(event *domain.Event, conf *util.AppConfig) (error, string) {
	builder := activitypub.NewBuilder(conf.BaseURL())
	obj, err := builder.EventObject(*event)
	if err != nil {
		return err, "{}"
	}

	jsonBytes, err := json.Marshal(obj)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetCommentObject returns a comment as an ActivityPub Note document
func GetCommentObject(commentId uuid.UUID, conf *util.AppConfig) (error, string) {
	database := db.GetDB()
	err, comment := database.ReadCommentById(commentId)
	if err != nil {
		return err, "{}"
	}

	err, author := database.ReadAccById(comment.AuthorId)
	if err != nil {
		err, author = database.ReadRemoteActorById(comment.AuthorId)
		if err != nil {
			return err, "{}"
		}
	}
	comment.Author = *author

	eventAuthorURL := ""
	if err, event := database.ReadEventById(comment.EventId); err == nil && event != nil {
		builder := activitypub.NewBuilder(conf.BaseURL())
		eventAuthorURL, _ = builder.ActorURL(event.User)
	}

	return RenderCommentObject(comment, eventAuthorURL, conf)
}

// RenderCommentObject serializes a comment as an ActivityPub Note document
func RenderCommentObject(comment *domain.Comment, eventAuthorURL string, conf *util.AppConfig) (error, string) {
	builder := activitypub.NewBuilder(conf.BaseURL())
	obj, err := builder.CommentObject(*comment, eventAuthorURL)
	if err != nil {
		return err, "{}"
	}

	jsonBytes, err := json.Marshal(obj)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonBytes)
}

// GetFollowersCollection returns an ActivityPub OrderedCollection of followers.
// Always paged, which is what Mastodon and friends expect.
func GetFollowersCollection(actor string, conf *util.AppConfig, followerURIs []string) string {
	return renderCollection(followersCollectionURI(actor, conf), len(followerURIs))
}

// GetFollowingCollection returns an ActivityPub OrderedCollection of accounts
// the actor follows
func GetFollowingCollection(actor string, conf *util.AppConfig, followingURIs []string) string {
	return renderCollection(followingCollectionURI(actor, conf), len(followingURIs))
}

// GetFollowersPage returns an OrderedCollectionPage of follower URIs
func GetFollowersPage(actor string, conf *util.AppConfig, followerURIs []string, page int) string {
	return renderCollectionPage(followersCollectionURI(actor, conf), followerURIs, page)
}

// GetFollowingPage returns an OrderedCollectionPage of followed actor URIs
func GetFollowingPage(actor string, conf *util.AppConfig, followingURIs []string, page int) string {
	return renderCollectionPage(followingCollectionURI(actor, conf), followingURIs, page)
}

func followersCollectionURI(actor string, conf *util.AppConfig) string {
	return fmt.Sprintf("%s/users/%s/followers", conf.BaseURL(), actor)
}

func followingCollectionURI(actor string, conf *util.AppConfig) string {
	return fmt.Sprintf("%s/users/%s/following", conf.BaseURL(), actor)
}

func renderCollection(collectionURI string, total int) string {
	collection := map[string]any{
		"@context":   "https://www.w3.org/ns/activitystreams",
		"id":         collectionURI,
		"type":       "OrderedCollection",
		"totalItems": total,
		"first":      fmt.Sprintf("%s?page=1", collectionURI),
	}

	jsonBytes, err := json.Marshal(collection)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

func renderCollectionPage(collectionURI string, items []string, page int) string {
	collectionPage := map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           fmt.Sprintf("%s?page=%d", collectionURI, page),
		"type":         "OrderedCollectionPage",
		"partOf":       collectionURI,
		"orderedItems": items,
		"totalItems":   len(items),
	}

	jsonBytes, err := json.Marshal(collectionPage)
	if err != nil {
		return "{}"
	}
	return string(jsonBytes)
}

// collectFollowURIs resolves follow rows to actor URIs, remote or local
func collectFollowURIs(follows *[]domain.Follow, pickAccount func(domain.Follow) uuid.UUID, conf *util.AppConfig) []string {
	uris := []string{}
	if follows == nil {
		return uris
	}
	database := db.GetDB()
	for _, follow := range *follows {
		accountId := pickAccount(follow)
		if err, remoteActor := database.ReadRemoteActorById(accountId); err == nil && remoteActor != nil {
			uris = append(uris, remoteActor.ExternalActorURI)
			continue
		}
		if err, localAcc := database.ReadAccById(accountId); err == nil && localAcc != nil {
			uris = append(uris, fmt.Sprintf("%s/users/%s", conf.BaseURL(), localAcc.Username))
		}
	}
	return uris
}
