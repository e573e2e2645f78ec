package db

import (
	"database/sql"
	"log"
	"strings"
)

// Schema definitions
const (
	sqlCreateAccountsTable = `CREATE TABLE IF NOT EXISTS accounts (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		display_name TEXT,
		summary TEXT,
		profile_image TEXT,
		public_key_pem TEXT NOT NULL,
		private_key_pem TEXT NOT NULL,
		is_admin INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateRemoteActorsTable = `CREATE TABLE IF NOT EXISTS remote_actors (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		display_name TEXT,
		summary TEXT,
		profile_image TEXT,
		public_key_pem TEXT NOT NULL,
		actor_uri TEXT UNIQUE NOT NULL,
		inbox_uri TEXT NOT NULL,
		shared_inbox_uri TEXT,
		domain TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(username, domain)
	)`

	sqlCreateRemoteActorsIndices = `
		CREATE INDEX IF NOT EXISTS idx_remote_actors_actor_uri ON remote_actors(actor_uri);
		CREATE INDEX IF NOT EXISTS idx_remote_actors_domain ON remote_actors(domain);
	`

	sqlCreateEventsTable = `CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		location TEXT,
		header_image TEXT,
		url TEXT,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		duration TEXT,
		status TEXT,
		attendance_mode TEXT,
		max_attendees INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateEventsIndices = `
		CREATE INDEX IF NOT EXISTS idx_events_user_id ON events(user_id);
		CREATE INDEX IF NOT EXISTS idx_events_start_time ON events(start_time);
	`

	sqlCreateCommentsTable = `CREATE TABLE IF NOT EXISTS comments (
		id TEXT NOT NULL PRIMARY KEY,
		event_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		content TEXT NOT NULL,
		in_reply_to_id TEXT,
		object_uri TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateCommentsIndices = `
		CREATE INDEX IF NOT EXISTS idx_comments_event_id ON comments(event_id);
		CREATE INDEX IF NOT EXISTS idx_comments_object_uri ON comments(object_uri);
	`

	sqlCreateFollowsTable = `CREATE TABLE IF NOT EXISTS follows (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		target_account_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		accepted INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(account_id, target_account_id)
	)`

	sqlCreateFollowsIndices = `
		CREATE INDEX IF NOT EXISTS idx_follows_account_id ON follows(account_id);
		CREATE INDEX IF NOT EXISTS idx_follows_target_account_id ON follows(target_account_id);
		CREATE INDEX IF NOT EXISTS idx_follows_uri ON follows(uri);
	`

	sqlCreateRsvpsTable = `CREATE TABLE IF NOT EXISTS rsvps (
		id TEXT NOT NULL PRIMARY KEY,
		event_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		status TEXT NOT NULL,
		uri TEXT,
		public INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(event_id, account_id)
	)`

	sqlCreateRsvpsIndices = `
		CREATE INDEX IF NOT EXISTS idx_rsvps_event_id ON rsvps(event_id);
		CREATE INDEX IF NOT EXISTS idx_rsvps_uri ON rsvps(uri);
	`

	sqlCreateLikesTable = `CREATE TABLE IF NOT EXISTS likes (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		event_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(account_id, event_id)
	)`

	sqlCreateLikesIndices = `
		CREATE INDEX IF NOT EXISTS idx_likes_event_id ON likes(event_id);
		CREATE INDEX IF NOT EXISTS idx_likes_uri ON likes(uri);
	`

	sqlCreateReportsTable = `CREATE TABLE IF NOT EXISTS reports (
		id TEXT NOT NULL PRIMARY KEY,
		reporter_uri TEXT NOT NULL,
		target_uri TEXT NOT NULL,
		comment TEXT,
		status TEXT DEFAULT 'open',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateNotificationsTable = `CREATE TABLE IF NOT EXISTS notifications (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		notification_type TEXT NOT NULL,
		title TEXT,
		body TEXT,
		actor_id TEXT,
		actor_username TEXT,
		actor_domain TEXT,
		context_uri TEXT,
		read INTEGER DEFAULT 0,
		read_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateNotificationsIndices = `
		CREATE INDEX IF NOT EXISTS idx_notifications_account_id ON notifications(account_id);
		CREATE INDEX IF NOT EXISTS idx_notifications_account_read ON notifications(account_id, read);
		CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications(created_at DESC);
	`

	sqlCreateActivitiesTable = `CREATE TABLE IF NOT EXISTS activities (
		id TEXT NOT NULL PRIMARY KEY,
		activity_uri TEXT UNIQUE NOT NULL,
		activity_type TEXT NOT NULL,
		actor_uri TEXT NOT NULL,
		object_uri TEXT,
		raw_json TEXT NOT NULL,
		local INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateActivitiesIndices = `
		CREATE INDEX IF NOT EXISTS idx_activities_uri ON activities(activity_uri);
		CREATE INDEX IF NOT EXISTS idx_activities_type ON activities(activity_type);
		CREATE INDEX IF NOT EXISTS idx_activities_object_uri ON activities(object_uri);
	`

	sqlCreateDeliveryQueueTable = `CREATE TABLE IF NOT EXISTS delivery_queue (
		id TEXT NOT NULL PRIMARY KEY,
		account_id TEXT NOT NULL,
		inbox_uri TEXT NOT NULL,
		activity_json TEXT NOT NULL,
		attempts INTEGER DEFAULT 0,
		next_retry_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateDeliveryQueueIndices = `
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_next_retry ON delivery_queue(next_retry_at);
	`
)

// CreateDB creates the full schema if it doesn't exist yet
func (db *DB) CreateDB() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		tables := []struct {
			name      string
			createSQL string
			indexSQL  string
		}{
			{"accounts", sqlCreateAccountsTable, ""},
			{"remote_actors", sqlCreateRemoteActorsTable, sqlCreateRemoteActorsIndices},
			{"events", sqlCreateEventsTable, sqlCreateEventsIndices},
			{"comments", sqlCreateCommentsTable, sqlCreateCommentsIndices},
			{"follows", sqlCreateFollowsTable, sqlCreateFollowsIndices},
			{"rsvps", sqlCreateRsvpsTable, sqlCreateRsvpsIndices},
			{"likes", sqlCreateLikesTable, sqlCreateLikesIndices},
			{"reports", sqlCreateReportsTable, ""},
			{"notifications", sqlCreateNotificationsTable, sqlCreateNotificationsIndices},
			{"activities", sqlCreateActivitiesTable, sqlCreateActivitiesIndices},
			{"delivery_queue", sqlCreateDeliveryQueueTable, sqlCreateDeliveryQueueIndices},
		}

		for _, table := range tables {
			if err := db.createTableIfNotExists(tx, table.createSQL, table.name); err != nil {
				return err
			}
			if table.indexSQL == "" {
				continue
			}
			for _, stmt := range strings.Split(table.indexSQL, ";") {
				stmt = strings.TrimSpace(stmt)
				if stmt == "" {
					continue
				}
				if _, err := tx.Exec(stmt); err != nil {
					log.Printf("Warning: failed to create index for %s: %v", table.name, err)
				}
			}
		}

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	if _, err := tx.Exec(createSQL); err != nil {
		log.Printf("Failed to create table %s: %v", tableName, err)
		return err
	}
	return nil
}
