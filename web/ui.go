package web

import (
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"github.com/constellate/constellate/db"
	"github.com/constellate/constellate/domain"
	"github.com/constellate/constellate/util"
	"github.com/gin-gonic/gin"
	"github.com/gomarkdown/markdown"
	"github.com/google/uuid"
)

type IndexPageData struct {
	Title   string
	Host    string
	Version string
	Events  []EventView
}

type EventPageData struct {
	Title     string
	Host      string
	Version   string
	Event     EventView
	Comments  []CommentView
	Attendees int
	Likes     int
}

type EventView struct {
	EventId     string
	Title       string
	SummaryHTML template.HTML
	Location    string
	StartTime   string
	EndTime     string
	Status      string
	Organizer   string
	TimeUntil   string
	URL         string
}

type CommentView struct {
	CommentId string
	Author    string
	BodyHTML  template.HTML
	TimeAgo   string
	IsReply   bool
}

func renderMarkdown(text string) template.HTML {
	html := strings.TrimSpace(string(markdown.ToHTML([]byte(text), nil, nil)))
	return template.HTML(html)
}

func formatTimeAgo(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		mins := int(duration.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	} else if duration < 30*24*time.Hour {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
	return t.Format("Jan 2, 2006")
}

// formatTimeUntil renders how far away an upcoming event is
func formatTimeUntil(t time.Time) string {
	duration := time.Until(t)

	if duration <= 0 {
		return "started"
	} else if duration < time.Hour {
		return fmt.Sprintf("in %d minutes", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "in 1 hour"
		}
		return fmt.Sprintf("in %d hours", hours)
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "tomorrow"
	}
	return fmt.Sprintf("in %d days", days)
}

func eventView(event domain.Event) EventView {
	view := EventView{
		EventId:   event.Id.String(),
		Title:     event.Title,
		Location:  event.Location,
		StartTime: event.StartTime.Format(util.DateTimeFormat()),
		Status:    event.Status,
		Organizer: event.User.Username,
		TimeUntil: formatTimeUntil(event.StartTime),
		URL:       event.URL,
	}
	if event.Summary != "" {
		view.SummaryHTML = renderMarkdown(event.Summary)
	}
	if event.EndTime != nil {
		view.EndTime = event.EndTime.Format(util.DateTimeFormat())
	}
	return view
}

func uiHost(conf *util.AppConfig) string {
	if conf.Conf.WithAp {
		return conf.Conf.SslDomain
	}
	return conf.Conf.Host
}

// HandleIndex renders the upcoming events listing
func HandleIndex(c *gin.Context, conf *util.AppConfig) {
	err, events := db.GetDB().ReadUpcomingEvents(feedEventLimit)
	if err != nil {
		log.Printf("Failed to read upcoming events: %v", err)
		c.HTML(500, "error.html", gin.H{"Title": "Error", "Error": "Failed to load events"})
		return
	}

	views := make([]EventView, 0)
	if events != nil {
		for _, event := range *events {
			views = append(views, eventView(event))
		}
	}

	c.HTML(200, "index.html", IndexPageData{
		Title:   "Upcoming events",
		Host:    uiHost(conf),
		Version: util.GetVersion(),
		Events:  views,
	})
}

// HandleEventPage renders a single event with its comments
func HandleEventPage(c *gin.Context, eventId uuid.UUID, conf *util.AppConfig) {
	database := db.GetDB()

	err, event := database.ReadEventById(eventId)
	if err != nil || event == nil {
		c.HTML(404, "error.html", gin.H{"Title": "Not Found", "Error": "Event not found"})
		return
	}

	attendees, err := database.CountAttendeesByEventId(eventId)
	if err != nil {
		log.Printf("Failed to count attendees for %s: %v", eventId, err)
	}
	likes, err := database.CountLikesByEventId(eventId)
	if err != nil {
		log.Printf("Failed to count likes for %s: %v", eventId, err)
	}

	var commentViews []CommentView
	if err, comments := database.ReadCommentsByEventId(eventId); err == nil && comments != nil {
		for _, comment := range *comments {
			author := comment.Author.Username
			if author == "" {
				author = resolveAuthorHandle(database, comment.AuthorId)
			} else if comment.Author.Domain != "" {
				author = author + "@" + comment.Author.Domain
			}
			commentViews = append(commentViews, CommentView{
				CommentId: comment.Id.String(),
				Author:    author,
				BodyHTML:  renderMarkdown(comment.Content),
				TimeAgo:   formatTimeAgo(comment.CreatedAt),
				IsReply:   comment.InReplyToId != nil,
			})
		}
	}

	c.HTML(200, "event.html", EventPageData{
		Title:     event.Title,
		Host:      uiHost(conf),
		Version:   util.GetVersion(),
		Event:     eventView(*event),
		Comments:  commentViews,
		Attendees: attendees,
		Likes:     likes,
	})
}

func resolveAuthorHandle(database *db.DB, authorId uuid.UUID) string {
	if err, acc := database.ReadAccById(authorId); err == nil && acc != nil {
		return acc.Username
	}
	if err, actor := database.ReadRemoteActorById(authorId); err == nil && actor != nil {
		return actor.Username + "@" + actor.Domain
	}
	return "unknown"
}
