package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotificationFollow  NotificationType = "follow"
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationReply   NotificationType = "reply"
	NotificationMention NotificationType = "mention"
	NotificationRsvp    NotificationType = "rsvp"
	NotificationReport  NotificationType = "report"
)

// Notification represents a user notification
type Notification struct {
	Id               uuid.UUID
	AccountId        uuid.UUID        // The local user receiving the notification
	NotificationType NotificationType // follow, like, comment, reply, mention, rsvp, report
	Title            string
	Body             string     // Short preview text, may be empty
	ActorId          uuid.UUID  // The account that triggered the notification
	ActorUsername    string     // Denormalized for display (e.g., "alice")
	ActorDomain      string     // Denormalized for display, empty for local actors
	ContextURI       string     // URI of the event/comment the notification refers to
	Read             bool
	ReadAt           *time.Time // When the notification was read, nil while unread
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ActorHandle returns the formatted @user or @user@domain string
func (n *Notification) ActorHandle() string {
	if n.ActorDomain == "" {
		return "@" + n.ActorUsername
	}
	return "@" + n.ActorUsername + "@" + n.ActorDomain
}

// TypeLabel returns a human-readable label for the notification type
func (n *Notification) TypeLabel() string {
	switch n.NotificationType {
	case NotificationFollow:
		return "followed you"
	case NotificationLike:
		return "liked your event"
	case NotificationComment:
		return "commented on your event"
	case NotificationReply:
		return "replied to your comment"
	case NotificationMention:
		return "mentioned you"
	case NotificationRsvp:
		return "responded to your event"
	case NotificationReport:
		return "filed a report"
	default:
		return ""
	}
}

// Summary returns a one-line summary of the notification
func (n *Notification) Summary() string {
	return fmt.Sprintf("%s %s", n.ActorHandle(), n.TypeLabel())
}
