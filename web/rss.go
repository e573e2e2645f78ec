package web

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/constellate/constellate/db"
	"github.com/constellate/constellate/domain"
	"github.com/constellate/constellate/util"
	"github.com/gomarkdown/markdown"
	"github.com/google/uuid"
	"github.com/gorilla/feeds"
)

const feedEventLimit = 50

// buildURL creates proper URLs based on whether federation is configured
func buildURL(conf *util.AppConfig, path string) string {
	if conf.Conf.WithAp && conf.Conf.SslDomain != "" {
		return fmt.Sprintf("https://%s%s", conf.Conf.SslDomain, path)
	}
	return fmt.Sprintf("http://%s:%d%s", conf.Conf.Host, conf.Conf.HttpPort, path)
}

// GetRSS returns the upcoming-events feed, optionally filtered to a single
// organizer
func GetRSS(conf *util.AppConfig, username string) (string, error) {
	var err error
	var events *[]domain.Event

	if username != "" {
		err, events = db.GetDB().ReadEventsByUsername(username)
		if err != nil {
			log.Printf("Could not get events for %s: %v", username, err)
			return "", errors.New("error retrieving events by organizer")
		}
	} else {
		err, events = db.GetDB().ReadUpcomingEvents(feedEventLimit)
		if err != nil {
			log.Printf("Could not get upcoming events: %v", err)
			return "", errors.New("error retrieving events")
		}
	}

	return RenderEventsFeed(conf, username, events)
}

// RenderEventsFeed builds the RSS document for a list of events
func RenderEventsFeed(conf *util.AppConfig, username string, events *[]domain.Event) (string, error) {
	title := "Upcoming events"
	link := buildURL(conf, "/feed")
	author := "everyone"
	if username != "" {
		title = fmt.Sprintf("Events by %s", username)
		link = fmt.Sprintf("%s?username=%s", link, username)
		author = username
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: "Event feed from " + util.Name,
		Author:      &feeds.Author{Name: author, Email: fmt.Sprintf("%s@%s", author, util.Name)},
		Created:     time.Now(),
	}

	if events != nil {
		for _, event := range *events {
			feed.Items = append(feed.Items, eventFeedItem(conf, event))
		}
	}

	return feed.ToRss()
}

// GetRSSItem returns a single-event feed
func GetRSSItem(conf *util.AppConfig, id uuid.UUID) (string, error) {
	err, event := db.GetDB().ReadEventById(id)
	if err != nil || event == nil {
		log.Printf("Could not get event %s: %v", id, err)
		return "", errors.New("error retrieving event by id")
	}

	feed := &feeds.Feed{
		Title:       event.Title,
		Link:        &feeds.Link{Href: buildURL(conf, fmt.Sprintf("/events/%s", event.Id))},
		Description: "Event feed from " + util.Name,
		Author:      &feeds.Author{Name: event.User.Username, Email: fmt.Sprintf("%s@%s", event.User.Username, util.Name)},
		Created:     time.Now(),
		Items:       []*feeds.Item{eventFeedItem(conf, *event)},
	}

	return feed.ToRss()
}

func eventFeedItem(conf *util.AppConfig, event domain.Event) *feeds.Item {
	content := fmt.Sprintf("<p>Starts %s</p>", event.StartTime.Format(util.DateTimeFormat()))
	if event.Location != "" {
		content += fmt.Sprintf("<p>Location: %s</p>", event.Location)
	}
	if event.Summary != "" {
		content += strings.TrimSpace(string(markdown.ToHTML([]byte(event.Summary), nil, nil)))
	}

	return &feeds.Item{
		Id:      event.Id.String(),
		Title:   fmt.Sprintf("%s (%s)", event.Title, event.StartTime.Format(util.DateTimeFormat())),
		Link:    &feeds.Link{Href: buildURL(conf, fmt.Sprintf("/events/%s", event.Id))},
		Content: content,
		Author:  &feeds.Author{Name: event.User.Username, Email: fmt.Sprintf("%s@%s", event.User.Username, util.Name)},
		Created: event.CreatedAt,
	}
}
