package web

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/constellate/constellate/db"
	"github.com/constellate/constellate/util"
)

// NodeInfo20 represents the NodeInfo 2.0 schema
// See: https://nodeinfo.diaspora.software/schema.html
type NodeInfo20 struct {
	Version           string           `json:"version"`
	Software          NodeInfoSoftware `json:"software"`
	Protocols         []string         `json:"protocols"`
	Services          NodeInfoServices `json:"services"`
	OpenRegistrations bool             `json:"openRegistrations"`
	Usage             NodeInfoUsage    `json:"usage"`
	Metadata          NodeInfoMetadata `json:"metadata"`
}

type NodeInfoSoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type NodeInfoServices struct {
	Inbound  []string `json:"inbound"`
	Outbound []string `json:"outbound"`
}

type NodeInfoUsage struct {
	Users      NodeInfoUsers `json:"users"`
	LocalPosts int           `json:"localPosts"`
}

type NodeInfoUsers struct {
	Total          int `json:"total"`
	ActiveMonth    int `json:"activeMonth"`
	ActiveHalfyear int `json:"activeHalfyear"`
}

type NodeInfoMetadata struct {
	NodeName        string `json:"nodeName"`
	NodeDescription string `json:"nodeDescription"`
}

// WellKnownNodeInfo represents the /.well-known/nodeinfo response
type WellKnownNodeInfo struct {
	Links []NodeInfoLink `json:"links"`
}

type NodeInfoLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// NodeStats holds the instance statistics reported via nodeinfo
type NodeStats struct {
	TotalUsers     int
	TotalEvents    int
	ActiveMonth    int
	ActiveHalfyear int
}

// GetNodeInfo20 returns a NodeInfo 2.0 JSON response with live statistics
func GetNodeInfo20(conf *util.AppConfig) string {
	database := db.GetDB()
	stats := NodeStats{}

	var err error
	if stats.TotalUsers, err = database.CountAccounts(); err != nil {
		log.Printf("Failed to count accounts: %v", err)
	}
	if stats.TotalEvents, err = database.CountEvents(); err != nil {
		log.Printf("Failed to count events: %v", err)
	}
	if stats.ActiveMonth, err = database.CountActiveOrganizers(time.Now().AddDate(0, -1, 0)); err != nil {
		log.Printf("Failed to count active organizers (month): %v", err)
	}
	if stats.ActiveHalfyear, err = database.CountActiveOrganizers(time.Now().AddDate(0, -6, 0)); err != nil {
		log.Printf("Failed to count active organizers (half year): %v", err)
	}

	return RenderNodeInfo20(conf, stats)
}

// RenderNodeInfo20 serializes the NodeInfo 2.0 document. Field order matters
// to some consumers, so the document is templated rather than marshalled.
func RenderNodeInfo20(conf *util.AppConfig, stats NodeStats) string {
	openRegistrations := !conf.Conf.Closed

	return fmt.Sprintf(`{
  "version": "2.0",
  "software": {
    "name": "constellate",
    "version": "%s"
  },
  "protocols": ["activitypub"],
  "services": {
    "outbound": [],
    "inbound": []
  },
  "usage": {
    "users": {
      "total": %d,
      "activeMonth": %d,
      "activeHalfyear": %d
    },
    "localPosts": %d
  },
  "openRegistrations": %t,
  "metadata": {
    "nodeName": "Constellate",
    "nodeDescription": "A federated event management platform"
  }
}`,
		util.GetVersion(),
		stats.TotalUsers,
		stats.ActiveMonth,
		stats.ActiveHalfyear,
		stats.TotalEvents,
		openRegistrations,
	)
}

// GetWellKnownNodeInfo returns the /.well-known/nodeinfo discovery document
func GetWellKnownNodeInfo(conf *util.AppConfig) string {
	wellKnown := WellKnownNodeInfo{
		Links: []NodeInfoLink{
			{
				Rel:  "http://nodeinfo.diaspora.software/ns/schema/2.0",
				Href: conf.BaseURL() + "/nodeinfo/2.0",
			},
		},
	}

	jsonBytes, err := json.Marshal(wellKnown)
	if err != nil {
		log.Printf("Failed to marshal well-known nodeinfo: %v", err)
		return "{}"
	}
	return string(jsonBytes)
}
