package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a local account or a cached remote actor
type User struct {
	Id               uuid.UUID
	Username         string
	Name             string // Display name, may be empty (fall back to Username)
	Summary          string
	ProfileImage     string // Avatar URL, empty if none set
	PublicKeyPem     string
	PrivateKeyPem    string // Only populated for local accounts
	IsRemote         bool
	ExternalActorURI string // Canonical actor URI for remote users
	InboxURI         string
	SharedInboxURI   string
	Domain           string // Remote instance domain, empty for local users
	IsAdmin          bool
	CreatedAt        time.Time
	LastFetchedAt    time.Time // Remote users: when the actor document was last refreshed
}

// Event represents an event hosted on this instance
type Event struct {
	Id             uuid.UUID
	Title          string
	Summary        string     // Optional description, empty if unset
	Location       string     // Optional free-text location
	HeaderImage    string     // Optional header image URL
	URL            string     // Optional external URL
	StartTime      time.Time
	EndTime        *time.Time // Optional
	Duration       string     // Optional ISO-8601 duration, e.g. "PT2H"
	Status         string     // Optional, e.g. "EventScheduled", "EventCancelled"
	AttendanceMode string     // Optional, e.g. "OfflineEventAttendanceMode"
	MaxAttendees   int        // 0 means unlimited
	User           User       // Organizer
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Comment represents a comment on an event, possibly a reply to another comment
type Comment struct {
	Id          uuid.UUID
	EventId     uuid.UUID
	AuthorId    uuid.UUID
	Content     string
	InReplyToId *uuid.UUID // Parent comment, nil for top-level comments
	ObjectURI   string     // ActivityPub object URI (set for remote comments)
	Author      User
	CreatedAt   time.Time
}

// RsvpStatus is the attendance answer of an actor for an event
type RsvpStatus string

const (
	RsvpAttending    RsvpStatus = "attending"
	RsvpNotAttending RsvpStatus = "not_attending"
	RsvpMaybe        RsvpStatus = "maybe"
)

// Rsvp represents an attendance answer, local or federated
type Rsvp struct {
	Id        uuid.UUID
	EventId   uuid.UUID
	AccountId uuid.UUID // Who answered (local or cached remote actor)
	Status    RsvpStatus
	URI       string // ActivityPub activity URI for federated answers
	Public    bool   // Whether the answer is publicly addressed
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Follow represents a follow relationship between two actors
type Follow struct {
	Id              uuid.UUID
	AccountId       uuid.UUID // Follower (local or remote account)
	TargetAccountId uuid.UUID // Followee (local or remote account)
	URI             string    // ActivityPub Follow activity URI
	Accepted        bool
	CreatedAt       time.Time
}

// Like represents a like on an event
type Like struct {
	Id        uuid.UUID
	AccountId uuid.UUID
	EventId   uuid.UUID
	URI       string // ActivityPub Like activity URI
	CreatedAt time.Time
}

// Report represents a moderation report against a federated object or actor
type Report struct {
	Id          uuid.UUID
	ReporterURI string // Actor URI of whoever filed the report
	TargetURI   string // Object or actor being reported
	Comment     string
	Status      string // open, resolved, dismissed
	CreatedAt   time.Time
}

// Activity represents a processed ActivityPub activity (for deduplication)
type Activity struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string // Follow, Create, Like, Accept, Undo, etc.
	ActorURI     string
	ObjectURI    string
	RawJSON      string
	Local        bool // true if originated from this server
	CreatedAt    time.Time
}

// DeliveryQueueItem represents an item in the outbound delivery queue
type DeliveryQueueItem struct {
	Id           uuid.UUID
	AccountId    uuid.UUID // local account whose key signs the delivery
	InboxURI     string
	ActivityJSON string // The complete activity to deliver
	Attempts     int
	NextRetryAt  time.Time
	CreatedAt    time.Time
}
