package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/constellate/constellate/activitypub"
	"github.com/constellate/constellate/db"
	"github.com/constellate/constellate/domain"
	"github.com/constellate/constellate/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Router builds the HTTP handler for the whole instance. The caller owns
// the http.Server so it can shut down gracefully.
func Router(conf *util.AppConfig) (*gin.Engine, error) {
	gin.DefaultWriter = util.GetLogWriter()
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	g.LoadHTMLGlob("web/templates/*")

	// Web UI routes
	g.GET("/", func(c *gin.Context) {
		HandleIndex(c, conf)
	})

	g.GET("/events/:id", func(c *gin.Context) {
		eventId, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.HTML(404, "error.html", gin.H{"Title": "Not Found", "Error": "Event not found"})
			return
		}

		// Remote servers dereference event URLs with an ActivityPub accept
		// header, browsers get the HTML page
		if conf.Conf.WithAp && wantsActivityJSON(c) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			err, obj := GetEventObject(eventId, conf)
			if err != nil {
				c.JSON(404, gin.H{"error": "Event not found"})
			} else {
				c.Render(200, render.String{Format: obj})
			}
			return
		}

		HandleEventPage(c, eventId, conf)
	})

	// RSS Feed
	g.GET("/feed", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")

		username := c.Query("username")
		rss, err := GetRSS(conf, username)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rss})
		}
	})

	g.GET("/feed/:id", func(c *gin.Context) {
		c.Header("Content-Type", "application/xml; charset=utf-8")
		name := c.Param("id")
		feedId, err := uuid.Parse(name)
		if err != nil {
			c.Render(404, render.String{Format: ""})
			return
		}

		rssItem, err := GetRSSItem(conf, feedId)
		if err != nil {
			c.Render(404, render.String{Format: ""})
		} else {
			c.Render(200, render.String{Format: rssItem})
		}
	})

	// Federation endpoints
	if conf.Conf.WithAp {
		// Stricter rate limit for ActivityPub endpoints: 5 req/sec per IP
		apLimiter := NewRateLimiter(rate.Limit(5), 10)

		// Max 1MB request body size for ActivityPub activities
		maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024) // 1MB

		// Serve individual comments as ActivityPub Note objects
		g.GET("/comments/:id", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")

			commentId, err := uuid.Parse(c.Param("id"))
			if err != nil {
				c.JSON(404, gin.H{"error": "Invalid comment ID"})
				return
			}

			err, note := GetCommentObject(commentId, conf)
			if err != nil {
				c.JSON(404, gin.H{"error": "Comment not found"})
			} else {
				c.Render(200, render.String{Format: note})
			}
		})

		g.GET("/users/:actor", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")
			err, actor := GetActor(c.Param("actor"), conf)
			if err != nil {
				c.Render(404, render.String{Format: actor})
			} else {
				c.Render(200, render.String{Format: actor})
			}
		})

		g.POST("/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
			log.Println("POST /inbox (shared inbox)")
			body, err := c.GetRawData()
			if err != nil {
				log.Printf("Shared inbox: Failed to read body: %v", err)
				c.Status(400)
				return
			}

			var activity map[string]any
			if err := json.Unmarshal(body, &activity); err != nil {
				log.Printf("Shared inbox: Failed to parse activity: %v", err)
				c.Status(400)
				return
			}

			targetUsername := resolveInboxTarget(activity, conf)
			if targetUsername == "" {
				log.Printf("Shared inbox: Could not determine target username from activity type %v", activity["type"])
				c.Status(202) // Accept anyway to be nice
				return
			}

			log.Printf("Shared inbox: Routing to user %s", targetUsername)
			req := c.Request.Clone(c.Request.Context())
			req.Body = io.NopCloser(bytes.NewReader(body))
			activitypub.HandleInbox(c.Writer, req, targetUsername, conf)
		})

		g.POST("/users/:actor/inbox", RateLimitMiddleware(apLimiter), maxBodySize, func(c *gin.Context) {
			actor := c.Param("actor")
			log.Printf("POST /users/%s/inbox", actor)
			activitypub.HandleInbox(c.Writer, c.Request, actor, conf)
		})

		g.GET("/users/:actor/outbox", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")

			page := ParsePageParam(c.Query("page"))
			err, outbox := GetOutbox(c.Param("actor"), page, conf)
			if err != nil {
				c.Render(404, render.String{Format: outbox})
			} else {
				c.Render(200, render.String{Format: outbox})
			}
		})

		g.GET("/users/:actor/followers", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")

			actor := c.Param("actor")
			err, acc := db.GetDB().ReadAccByUsername(actor)
			if err != nil || acc == nil {
				c.JSON(404, gin.H{"error": "User not found"})
				return
			}

			_, follows := db.GetDB().ReadFollowersByAccountId(acc.Id)
			uris := collectFollowURIs(follows, func(f domain.Follow) uuid.UUID { return f.AccountId }, conf)

			page := ParsePageParam(c.Query("page"))
			if page == 0 {
				c.Render(200, render.String{Format: GetFollowersCollection(actor, conf, uris)})
			} else {
				c.Render(200, render.String{Format: GetFollowersPage(actor, conf, uris, page)})
			}
		})

		g.GET("/users/:actor/following", func(c *gin.Context) {
			c.Header("Content-Type", "application/activity+json; charset=utf-8")

			actor := c.Param("actor")
			err, acc := db.GetDB().ReadAccByUsername(actor)
			if err != nil || acc == nil {
				c.JSON(404, gin.H{"error": "User not found"})
				return
			}

			_, follows := db.GetDB().ReadFollowingByAccountId(acc.Id)
			uris := collectFollowURIs(follows, func(f domain.Follow) uuid.UUID { return f.TargetAccountId }, conf)

			page := ParsePageParam(c.Query("page"))
			if page == 0 {
				c.Render(200, render.String{Format: GetFollowingCollection(actor, conf, uris)})
			} else {
				c.Render(200, render.String{Format: GetFollowingPage(actor, conf, uris, page)})
			}
		})

		g.GET("/.well-known/webfinger", func(c *gin.Context) {
			c.Header("Content-Type", "application/json; charset=utf-8")

			resource := c.Query("resource")
			if resource == "" || !strings.HasPrefix(resource, "acct:") {
				c.Render(404, render.String{Format: GetWebFingerNotFound()})
			} else {
				resource = strings.TrimPrefix(resource, "acct:")
				resource = strings.TrimSuffix(resource, fmt.Sprintf("@%s", conf.Conf.SslDomain))
				err, resp := GetWebfinger(resource, conf)
				if err != nil {
					c.Render(404, render.String{Format: GetWebFingerNotFound()})
				} else {
					c.Render(200, render.String{Format: resp})
				}
			}
		})

		g.GET("/.well-known/nodeinfo", func(c *gin.Context) {
			c.Header("Content-Type", "application/json; charset=utf-8")
			c.Render(200, render.String{Format: GetWellKnownNodeInfo(conf)})
		})

		g.GET("/nodeinfo/2.0", func(c *gin.Context) {
			c.Header("Content-Type", "application/json; charset=utf-8")
			c.Render(200, render.String{Format: GetNodeInfo20(conf)})
		})
	}

	return g, nil
}

// wantsActivityJSON reports whether the request prefers an ActivityPub
// representation over HTML
func wantsActivityJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/activity+json") ||
		strings.Contains(accept, "application/ld+json")
}

// resolveInboxTarget determines which local user a shared-inbox activity is
// addressed to
func resolveInboxTarget(activity map[string]any, conf *util.AppConfig) string {
	// Try the "to" field first
	if toArray, ok := activity["to"].([]any); ok {
		for _, to := range toArray {
			if toStr, ok := to.(string); ok {
				if username := extractLocalUsername(toStr, conf); username != "" {
					return username
				}
			}
		}
	}

	// Then "cc" (followers collections)
	if ccArray, ok := activity["cc"].([]any); ok {
		for _, cc := range ccArray {
			if ccStr, ok := cc.(string); ok {
				if username := extractLocalUsername(ccStr, conf); username != "" {
					return username
				}
			}
		}
	}

	// For Follow activities the object is the target actor; for Like and
	// attendance answers it is a local event URL
	objStr, _ := activity["object"].(string)
	if objStr == "" {
		if objMap, ok := activity["object"].(map[string]any); ok {
			objStr, _ = objMap["id"].(string)
			// Replies land at the parent object
			if inReplyTo, ok := objMap["inReplyTo"].(string); ok && inReplyTo != "" {
				objStr = inReplyTo
			}
		}
	}
	if objStr != "" {
		if username := extractLocalUsername(objStr, conf); username != "" {
			return username
		}
		if username := eventOrganizerUsername(objStr, conf); username != "" {
			return username
		}
	}

	// Create/Update/Delete from a followed actor: route to a local follower
	actorURI, _ := activity["actor"].(string)
	if actorURI != "" {
		database := db.GetDB()
		err, remoteActor := database.ReadRemoteActorByURI(actorURI)
		if err == nil && remoteActor != nil {
			err, followers := database.ReadFollowersByAccountId(remoteActor.Id)
			if err == nil && followers != nil && len(*followers) > 0 {
				firstFollower := (*followers)[0]
				err, localAccount := database.ReadAccById(firstFollower.AccountId)
				if err == nil && localAccount != nil {
					log.Printf("Shared inbox: Routing to follower %s of %s", localAccount.Username, actorURI)
					return localAccount.Username
				}
			} else {
				log.Printf("Shared inbox: No local followers found for %s", actorURI)
			}
		} else {
			log.Printf("Shared inbox: Remote actor %s not found in cache", actorURI)
		}
	}

	return ""
}

// extractLocalUsername pulls a username out of a local actor or collection
// URI like https://domain/users/name/followers
func extractLocalUsername(uri string, conf *util.AppConfig) string {
	if !strings.Contains(uri, conf.Conf.SslDomain) || !strings.Contains(uri, "/users/") {
		return ""
	}
	parts := strings.Split(uri, "/")
	for i, part := range parts {
		if part == "users" && i+1 < len(parts) {
			username := parts[i+1]
			if slashIdx := strings.Index(username, "/"); slashIdx > 0 {
				username = username[:slashIdx]
			}
			return username
		}
	}
	return ""
}

// eventOrganizerUsername resolves a local event URL to its organizer
func eventOrganizerUsername(uri string, conf *util.AppConfig) string {
	if !strings.Contains(uri, conf.Conf.SslDomain) {
		return ""
	}
	idx := strings.Index(uri, "/events/")
	if idx < 0 {
		return ""
	}
	idStr := uri[idx+len("/events/"):]
	if slashIdx := strings.Index(idStr, "/"); slashIdx > 0 {
		idStr = idStr[:slashIdx]
	}
	eventId, err := uuid.Parse(idStr)
	if err != nil {
		return ""
	}
	err, event := db.GetDB().ReadEventById(eventId)
	if err != nil || event == nil {
		return ""
	}
	return event.User.Username
}
