package web

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/constellate/constellate/activitypub"
	"github.com/constellate/constellate/db"
	"github.com/constellate/constellate/domain"
	"github.com/constellate/constellate/util"
)

const outboxItemsPerPage = 20

// GetOutbox returns an ActivityPub OrderedCollection of a user's events as
// Create activities, so remote servers can backfill without following
func GetOutbox(actor string, page int, conf *util.AppConfig) (error, string) {
	err, _ := db.GetDB().ReadAccByUsername(actor)
	if err != nil {
		log.Printf("GetOutbox: User %s not found: %v", actor, err)
		return err, "{}"
	}

	err, events := db.GetDB().ReadEventsByUsername(actor)
	if err != nil {
		log.Printf("GetOutbox: Failed to read events for %s: %v", actor, err)
		return err, "{}"
	}

	return RenderOutbox(actor, page, events, conf)
}

// RenderOutbox serializes a user's events as an outbox collection or page
func RenderOutbox(actor string, page int, events *[]domain.Event, conf *util.AppConfig) (error, string) {
	outboxURL := fmt.Sprintf("%s/users/%s/outbox", conf.BaseURL(), actor)

	totalItems := 0
	if events != nil {
		totalItems = len(*events)
	}

	if page == 0 {
		collection := map[string]any{
			"@context":   "https://www.w3.org/ns/activitystreams",
			"id":         outboxURL,
			"type":       "OrderedCollection",
			"totalItems": totalItems,
			"first":      fmt.Sprintf("%s?page=1", outboxURL),
		}
		jsonData, err := json.Marshal(collection)
		if err != nil {
			return err, "{}"
		}
		return nil, string(jsonData)
	}

	offset := (page - 1) * outboxItemsPerPage
	pageEvents := []domain.Event{}
	hasMore := false
	if events != nil && offset < totalItems {
		end := offset + outboxItemsPerPage
		if end > totalItems {
			end = totalItems
		}
		pageEvents = (*events)[offset:end]
		hasMore = end < totalItems
	}

	items, err := makeEventActivities(pageEvents, actor, conf)
	if err != nil {
		return err, "{}"
	}

	collectionPage := map[string]any{
		"@context":     "https://www.w3.org/ns/activitystreams",
		"id":           fmt.Sprintf("%s?page=%d", outboxURL, page),
		"type":         "OrderedCollectionPage",
		"partOf":       outboxURL,
		"orderedItems": items,
	}
	if hasMore {
		collectionPage["next"] = fmt.Sprintf("%s?page=%d", outboxURL, page+1)
	}
	if page > 1 {
		collectionPage["prev"] = fmt.Sprintf("%s?page=%d", outboxURL, page-1)
	}

	jsonData, err := json.Marshal(collectionPage)
	if err != nil {
		return err, "{}"
	}
	return nil, string(jsonData)
}

// makeEventActivities wraps events in Create activities for outbox pages
func makeEventActivities(events []domain.Event, actor string, conf *util.AppConfig) ([]any, error) {
	builder := activitypub.NewBuilder(conf.BaseURL())
	actorURL := fmt.Sprintf("%s/users/%s", conf.BaseURL(), actor)

	activities := make([]any, 0, len(events))
	for _, event := range events {
		obj, err := builder.EventObject(event)
		if err != nil {
			return nil, err
		}
		// The embedded object carries no @context of its own
		delete(obj, "@context")

		activity := map[string]any{
			"id":        fmt.Sprintf("%s/activities/%s", conf.BaseURL(), event.Id.String()),
			"type":      "Create",
			"actor":     actorURL,
			"published": event.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			"to":        []string{activitypub.PublicAudience},
			"cc":        []string{fmt.Sprintf("%s/followers", actorURL)},
			"object":    obj,
		}
		activities = append(activities, activity)
	}
	return activities, nil
}

// ParsePageParam extracts the page parameter from a query string
func ParsePageParam(pageStr string) int {
	if pageStr == "" {
		return 0
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		return 0
	}
	return page
}
