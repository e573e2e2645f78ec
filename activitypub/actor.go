package activitypub

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/constellate/constellate/domain"
	"github.com/google/uuid"
)

// Cached remote actors are refreshed at most once per day
const actorRefreshInterval = 24 * time.Hour

// actorDocument is the subset of a remote actor document we cache
type actorDocument struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Summary           string `json:"summary"`
	Inbox             string `json:"inbox"`
	Icon              struct {
		URL string `json:"url"`
	} `json:"icon"`
	Endpoints struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// GetOrFetchActor returns a cached remote actor, fetching and caching the
// actor document when it is unknown or stale
func GetOrFetchActor(actorURI string) (*domain.User, error) {
	return GetOrFetchActorWithDeps(actorURI, defaultHTTPClient, NewDBWrapper())
}

// GetOrFetchActorWithDeps is GetOrFetchActor with injectable dependencies
func GetOrFetchActorWithDeps(actorURI string, client HTTPClient, database Database) (*domain.User, error) {
	err, cached := database.ReadRemoteActorByURI(actorURI)
	if err == nil && cached != nil {
		if time.Since(cached.LastFetchedAt) < actorRefreshInterval {
			return cached, nil
		}
		// Stale cache entry, refresh but fall back to it on fetch failure
		refreshed, fetchErr := FetchRemoteActorWithDeps(actorURI, client, database)
		if fetchErr != nil {
			log.Printf("Actor: Refresh of %s failed, using cached copy: %v", actorURI, fetchErr)
			return cached, nil
		}
		return refreshed, nil
	}

	return FetchRemoteActorWithDeps(actorURI, client, database)
}

// FetchRemoteActorWithDeps fetches a remote actor document and stores it in
// the remote actor cache
func FetchRemoteActorWithDeps(actorURI string, client HTTPClient, database Database) (*domain.User, error) {
	req, err := http.NewRequest("GET", actorURI, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create actor request: %w", err)
	}
	req.Header.Set("Accept", "application/activity+json")
	req.Header.Set("User-Agent", "constellate/1.0 ActivityPub")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("actor fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("actor fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read actor document: %w", err)
	}

	var doc actorDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse actor document: %w", err)
	}

	if doc.ID == "" || doc.PreferredUsername == "" || doc.Inbox == "" {
		return nil, fmt.Errorf("actor document for %s is missing required fields", actorURI)
	}

	parsed, err := url.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid actor id %s: %w", doc.ID, err)
	}

	actor := &domain.User{
		Id:               uuid.New(),
		Username:         doc.PreferredUsername,
		Name:             doc.Name,
		Summary:          doc.Summary,
		ProfileImage:     doc.Icon.URL,
		PublicKeyPem:     doc.PublicKey.PublicKeyPem,
		IsRemote:         true,
		ExternalActorURI: doc.ID,
		InboxURI:         doc.Inbox,
		SharedInboxURI:   doc.Endpoints.SharedInbox,
		Domain:           parsed.Host,
		CreatedAt:        time.Now(),
		LastFetchedAt:    time.Now(),
	}

	// Keep the existing row id when refreshing a known actor
	err, existing := database.ReadRemoteActorByURI(doc.ID)
	if err == nil && existing != nil {
		actor.Id = existing.Id
		actor.CreatedAt = existing.CreatedAt
		if err := database.UpdateRemoteActor(actor); err != nil {
			return nil, fmt.Errorf("failed to update cached actor: %w", err)
		}
		return actor, nil
	}

	if err := database.CreateRemoteActor(actor); err != nil {
		return nil, fmt.Errorf("failed to cache actor: %w", err)
	}

	log.Printf("Actor: Cached remote actor %s@%s", actor.Username, actor.Domain)
	return actor, nil
}
