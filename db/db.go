package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/constellate/constellate/domain"
	"github.com/constellate/constellate/util"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
)

const timestampFormat = "2006-01-02 15:04:05"

// Account queries
const (
	sqlInsertAccount = `INSERT INTO accounts(id, username, display_name, summary, profile_image, public_key_pem, private_key_pem, is_admin, created_at)
						VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectAccountColumns    = `id, username, display_name, summary, profile_image, public_key_pem, private_key_pem, is_admin, created_at`
	sqlSelectAccountByUsername = `SELECT ` + sqlSelectAccountColumns + ` FROM accounts WHERE username = ?`
	sqlSelectAccountById       = `SELECT ` + sqlSelectAccountColumns + ` FROM accounts WHERE id = ?`
	sqlSelectAdminAccounts     = `SELECT ` + sqlSelectAccountColumns + ` FROM accounts WHERE is_admin = 1`
	sqlSelectAllAccounts       = `SELECT ` + sqlSelectAccountColumns + ` FROM accounts ORDER BY username ASC`
	sqlUpdateAccountProfile    = `UPDATE accounts SET display_name = ?, summary = ?, profile_image = ? WHERE id = ?`
	sqlCountAccounts           = `SELECT COUNT(*) FROM accounts`
)

func GetDB() *DB {
	dbOnce.Do(func() {
		// Resolve database path (local first, then user config dir)
		dbPath := util.ResolveFilePath("database.db")
		log.Printf("Using database at: %s", dbPath)

		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			panic(err)
		}

		// Configure connection pool for concurrent access
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)

		var journalMode string
		err = db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
		if err != nil {
			log.Printf("Warning: Failed to enable WAL mode: %v", err)
		} else {
			log.Printf("Database journal mode: %s", journalMode)
		}

		// PRAGMAs tuned for the federation workload
		db.Exec("PRAGMA synchronous = NORMAL")
		db.Exec("PRAGMA cache_size = -64000")
		db.Exec("PRAGMA temp_store = MEMORY")
		db.Exec("PRAGMA busy_timeout = 5000")
		db.Exec("PRAGMA foreign_keys = ON")

		dbInstance = &DB{db: db}

		if err := dbInstance.CreateDB(); err != nil {
			panic(err)
		}
	})

	return dbInstance
}

// NewTestDB opens an isolated in-memory database for tests
func NewTestDB() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	testDB := &DB{db: sqlDB}
	if err := testDB.CreateDB(); err != nil {
		return nil, err
	}
	return testDB, nil
}

// Close closes the underlying database connection
func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("error starting transaction: %s", err)
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Printf("error committing transaction: %s", err)
			return err
		}
		break
	}
	return nil
}

// parseTimestamp parses a timestamp string from SQLite, handling both ISO 8601
// and space-separated formats. The driver returns timestamps with Z suffix even
// though they're stored in local time.
func parseTimestamp(timestampStr string) (time.Time, error) {
	if timestampStr == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	if strings.HasSuffix(timestampStr, "Z") {
		timestampStr = strings.TrimSuffix(timestampStr, "Z")
		timestampStr = strings.Replace(timestampStr, "T", " ", 1)
	}

	return time.ParseInLocation(timestampFormat, timestampStr, time.Local)
}

// CreateAccount creates a local account with a fresh RSA keypair.
// The first registered account becomes the instance admin.
func (db *DB) CreateAccount(username, displayName, summary string) (error, *domain.User) {
	if err := util.ValidateWebFingerUsername(username); err != nil {
		return err, nil
	}

	err, existing := db.ReadAccByUsername(username)
	if err == nil && existing != nil {
		return fmt.Errorf("username '%s' is already taken", username), nil
	}

	keypair := util.GeneratePemKeypair()
	account := &domain.User{
		Id:            uuid.New(),
		Username:      username,
		Name:          displayName,
		Summary:       summary,
		PublicKeyPem:  keypair.Public,
		PrivateKeyPem: keypair.Private,
		CreatedAt:     time.Now(),
	}

	err = db.wrapTransaction(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow(sqlCountAccounts).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			account.IsAdmin = true
			log.Println("Creating first user as admin:", username)
		}

		isAdmin := 0
		if account.IsAdmin {
			isAdmin = 1
		}
		_, err := tx.Exec(sqlInsertAccount,
			account.Id.String(),
			account.Username,
			account.Name,
			account.Summary,
			account.ProfileImage,
			account.PublicKeyPem,
			account.PrivateKeyPem,
			isAdmin,
			account.CreatedAt.Format(timestampFormat),
		)
		return err
	})
	if err != nil {
		return err, nil
	}

	return nil, account
}

func (db *DB) scanAccount(row *sql.Row) (error, *domain.User) {
	var acc domain.User
	var idStr, createdAtStr string
	var displayName, summary, profileImage sql.NullString
	var isAdmin sql.NullInt64
	err := row.Scan(&idStr, &acc.Username, &displayName, &summary, &profileImage,
		&acc.PublicKeyPem, &acc.PrivateKeyPem, &isAdmin, &createdAtStr)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	acc.Id, _ = uuid.Parse(idStr)
	acc.Name = displayName.String
	acc.Summary = summary.String
	acc.ProfileImage = profileImage.String
	acc.IsAdmin = isAdmin.Int64 == 1
	if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
		acc.CreatedAt = parsedTime
	}
	return nil, &acc
}

func (db *DB) ReadAccByUsername(username string) (error, *domain.User) {
	return db.scanAccount(db.db.QueryRow(sqlSelectAccountByUsername, username))
}

func (db *DB) ReadAccById(id uuid.UUID) (error, *domain.User) {
	return db.scanAccount(db.db.QueryRow(sqlSelectAccountById, id.String()))
}

func (db *DB) ReadAdminAccounts() (error, *[]domain.User) {
	rows, err := db.db.Query(sqlSelectAdminAccounts)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var accounts []domain.User
	for rows.Next() {
		var acc domain.User
		var idStr, createdAtStr string
		var displayName, summary, profileImage sql.NullString
		var isAdmin sql.NullInt64
		if err := rows.Scan(&idStr, &acc.Username, &displayName, &summary, &profileImage,
			&acc.PublicKeyPem, &acc.PrivateKeyPem, &isAdmin, &createdAtStr); err != nil {
			return err, &accounts
		}
		acc.Id, _ = uuid.Parse(idStr)
		acc.Name = displayName.String
		acc.Summary = summary.String
		acc.ProfileImage = profileImage.String
		acc.IsAdmin = isAdmin.Int64 == 1
		if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
			acc.CreatedAt = parsedTime
		}
		accounts = append(accounts, acc)
	}
	if err = rows.Err(); err != nil {
		return err, &accounts
	}
	return nil, &accounts
}

func (db *DB) UpdateAccountProfile(id uuid.UUID, displayName, summary, profileImage string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateAccountProfile, displayName, summary, profileImage, id.String())
		return err
	})
}

func (db *DB) CountAccounts() (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountAccounts).Scan(&count)
	return count, err
}

// Remote actor cache queries
const (
	sqlInsertRemoteActor = `INSERT INTO remote_actors(id, username, display_name, summary, profile_image, public_key_pem, actor_uri, inbox_uri, shared_inbox_uri, domain, created_at, last_fetched_at)
							VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectRemoteActorColumns = `id, username, display_name, summary, profile_image, public_key_pem, actor_uri, inbox_uri, shared_inbox_uri, domain, created_at, last_fetched_at`
	sqlSelectRemoteActorByURI   = `SELECT ` + sqlSelectRemoteActorColumns + ` FROM remote_actors WHERE actor_uri = ?`
	sqlSelectRemoteActorById    = `SELECT ` + sqlSelectRemoteActorColumns + ` FROM remote_actors WHERE id = ?`
	sqlUpdateRemoteActor        = `UPDATE remote_actors SET display_name = ?, summary = ?, profile_image = ?, public_key_pem = ?, inbox_uri = ?, shared_inbox_uri = ?, last_fetched_at = ? WHERE actor_uri = ?`
)

func (db *DB) CreateRemoteActor(actor *domain.User) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertRemoteActor,
			actor.Id.String(),
			actor.Username,
			actor.Name,
			actor.Summary,
			actor.ProfileImage,
			actor.PublicKeyPem,
			actor.ExternalActorURI,
			actor.InboxURI,
			actor.SharedInboxURI,
			actor.Domain,
			actor.CreatedAt.Format(timestampFormat),
			actor.LastFetchedAt.Format(timestampFormat),
		)
		return err
	})
}

func (db *DB) scanRemoteActor(row *sql.Row) (error, *domain.User) {
	var actor domain.User
	var idStr, createdAtStr, fetchedAtStr string
	var displayName, summary, profileImage, sharedInbox sql.NullString
	err := row.Scan(&idStr, &actor.Username, &displayName, &summary, &profileImage,
		&actor.PublicKeyPem, &actor.ExternalActorURI, &actor.InboxURI, &sharedInbox,
		&actor.Domain, &createdAtStr, &fetchedAtStr)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	actor.Id, _ = uuid.Parse(idStr)
	actor.Name = displayName.String
	actor.Summary = summary.String
	actor.ProfileImage = profileImage.String
	actor.SharedInboxURI = sharedInbox.String
	actor.IsRemote = true
	if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
		actor.CreatedAt = parsedTime
	}
	if parsedTime, err := parseTimestamp(fetchedAtStr); err == nil {
		actor.LastFetchedAt = parsedTime
	}
	return nil, &actor
}

func (db *DB) ReadRemoteActorByURI(uri string) (error, *domain.User) {
	return db.scanRemoteActor(db.db.QueryRow(sqlSelectRemoteActorByURI, uri))
}

func (db *DB) ReadRemoteActorById(id uuid.UUID) (error, *domain.User) {
	return db.scanRemoteActor(db.db.QueryRow(sqlSelectRemoteActorById, id.String()))
}

func (db *DB) UpdateRemoteActor(actor *domain.User) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateRemoteActor,
			actor.Name,
			actor.Summary,
			actor.ProfileImage,
			actor.PublicKeyPem,
			actor.InboxURI,
			actor.SharedInboxURI,
			actor.LastFetchedAt.Format(timestampFormat),
			actor.ExternalActorURI,
		)
		return err
	})
}

// Event queries
const (
	sqlInsertEvent = `INSERT INTO events(id, user_id, title, summary, location, header_image, url, start_time, end_time, duration, status, attendance_mode, max_attendees, created_at, updated_at)
					  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateEvent = `UPDATE events SET title = ?, summary = ?, location = ?, header_image = ?, url = ?, start_time = ?, end_time = ?, duration = ?, status = ?, attendance_mode = ?, max_attendees = ?, updated_at = ? WHERE id = ?`
	sqlDeleteEvent = `DELETE FROM events WHERE id = ?`

	sqlSelectEventColumns = `events.id, events.title, events.summary, events.location, events.header_image, events.url,
							events.start_time, events.end_time, events.duration, events.status, events.attendance_mode,
							events.max_attendees, events.created_at, events.updated_at`
	sqlSelectEventById = `SELECT ` + sqlSelectEventColumns + `, accounts.id, accounts.username, accounts.display_name
						FROM events INNER JOIN accounts ON accounts.id = events.user_id
						WHERE events.id = ?`
	sqlSelectEventsByUsername = `SELECT ` + sqlSelectEventColumns + `, accounts.id, accounts.username, accounts.display_name
						FROM events INNER JOIN accounts ON accounts.id = events.user_id
						WHERE accounts.username = ?
						ORDER BY events.start_time ASC`
	sqlSelectUpcomingEvents = `SELECT ` + sqlSelectEventColumns + `, accounts.id, accounts.username, accounts.display_name
						FROM events INNER JOIN accounts ON accounts.id = events.user_id
						WHERE events.start_time >= ?
						ORDER BY events.start_time ASC LIMIT ?`
	sqlCountEvents = `SELECT COUNT(*) FROM events`
)

func (db *DB) CreateEvent(event *domain.Event) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var endTime any
		if event.EndTime != nil {
			endTime = event.EndTime.Format(timestampFormat)
		}
		_, err := tx.Exec(sqlInsertEvent,
			event.Id.String(),
			event.User.Id.String(),
			event.Title,
			event.Summary,
			event.Location,
			event.HeaderImage,
			event.URL,
			event.StartTime.Format(timestampFormat),
			endTime,
			event.Duration,
			event.Status,
			event.AttendanceMode,
			event.MaxAttendees,
			event.CreatedAt.Format(timestampFormat),
			event.UpdatedAt.Format(timestampFormat),
		)
		return err
	})
}

func (db *DB) UpdateEvent(event *domain.Event) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var endTime any
		if event.EndTime != nil {
			endTime = event.EndTime.Format(timestampFormat)
		}
		_, err := tx.Exec(sqlUpdateEvent,
			event.Title,
			event.Summary,
			event.Location,
			event.HeaderImage,
			event.URL,
			event.StartTime.Format(timestampFormat),
			endTime,
			event.Duration,
			event.Status,
			event.AttendanceMode,
			event.MaxAttendees,
			event.UpdatedAt.Format(timestampFormat),
			event.Id.String(),
		)
		return err
	})
}

func (db *DB) DeleteEventById(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteEvent, id.String())
		return err
	})
}

func scanEventRow(scan func(dest ...any) error) (error, *domain.Event) {
	var event domain.Event
	var idStr, startTimeStr, createdAtStr, updatedAtStr string
	var summary, location, headerImage, url, endTimeStr, duration, status, attendanceMode sql.NullString
	var maxAttendees sql.NullInt64
	var organizerIdStr, organizerUsername string
	var organizerName sql.NullString

	err := scan(&idStr, &event.Title, &summary, &location, &headerImage, &url,
		&startTimeStr, &endTimeStr, &duration, &status, &attendanceMode,
		&maxAttendees, &createdAtStr, &updatedAtStr,
		&organizerIdStr, &organizerUsername, &organizerName)
	if err != nil {
		return err, nil
	}

	event.Id, _ = uuid.Parse(idStr)
	event.Summary = summary.String
	event.Location = location.String
	event.HeaderImage = headerImage.String
	event.URL = url.String
	event.Duration = duration.String
	event.Status = status.String
	event.AttendanceMode = attendanceMode.String
	event.MaxAttendees = int(maxAttendees.Int64)

	if parsedTime, err := parseTimestamp(startTimeStr); err == nil {
		event.StartTime = parsedTime
	}
	if endTimeStr.Valid {
		if parsedTime, err := parseTimestamp(endTimeStr.String); err == nil {
			event.EndTime = &parsedTime
		}
	}
	if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
		event.CreatedAt = parsedTime
	}
	if parsedTime, err := parseTimestamp(updatedAtStr); err == nil {
		event.UpdatedAt = parsedTime
	}

	event.User.Id, _ = uuid.Parse(organizerIdStr)
	event.User.Username = organizerUsername
	event.User.Name = organizerName.String

	return nil, &event
}

func (db *DB) ReadEventById(id uuid.UUID) (error, *domain.Event) {
	row := db.db.QueryRow(sqlSelectEventById, id.String())
	err, event := scanEventRow(row.Scan)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, event
}

func (db *DB) ReadEventsByUsername(username string) (error, *[]domain.Event) {
	rows, err := db.db.Query(sqlSelectEventsByUsername, username)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		err, event := scanEventRow(rows.Scan)
		if err != nil {
			return err, &events
		}
		events = append(events, *event)
	}
	if err = rows.Err(); err != nil {
		return err, &events
	}
	return nil, &events
}

func (db *DB) ReadUpcomingEvents(limit int) (error, *[]domain.Event) {
	rows, err := db.db.Query(sqlSelectUpcomingEvents, time.Now().Format(timestampFormat), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		err, event := scanEventRow(rows.Scan)
		if err != nil {
			return err, &events
		}
		events = append(events, *event)
	}
	if err = rows.Err(); err != nil {
		return err, &events
	}
	return nil, &events
}

func (db *DB) CountEvents() (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountEvents).Scan(&count)
	return count, err
}

// Comment queries
const (
	sqlInsertComment = `INSERT INTO comments(id, event_id, author_id, content, in_reply_to_id, object_uri, created_at)
						VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectCommentColumns = `id, event_id, author_id, content, in_reply_to_id, object_uri, created_at`
	sqlSelectCommentById    = `SELECT ` + sqlSelectCommentColumns + ` FROM comments WHERE id = ?`
	sqlSelectCommentByURI   = `SELECT ` + sqlSelectCommentColumns + ` FROM comments WHERE object_uri = ?`
	sqlSelectCommentsByEventId = `SELECT ` + sqlSelectCommentColumns + ` FROM comments WHERE event_id = ? ORDER BY created_at ASC`
	sqlDeleteCommentByURI   = `DELETE FROM comments WHERE object_uri = ?`
	sqlDeleteCommentById    = `DELETE FROM comments WHERE id = ?`
	sqlCountComments        = `SELECT COUNT(*) FROM comments`
)

func (db *DB) CreateComment(comment *domain.Comment) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var inReplyTo any
		if comment.InReplyToId != nil {
			inReplyTo = comment.InReplyToId.String()
		}
		_, err := tx.Exec(sqlInsertComment,
			comment.Id.String(),
			comment.EventId.String(),
			comment.AuthorId.String(),
			comment.Content,
			inReplyTo,
			comment.ObjectURI,
			comment.CreatedAt.Format(timestampFormat),
		)
		return err
	})
}

func (db *DB) scanComment(row *sql.Row) (error, *domain.Comment) {
	var comment domain.Comment
	var idStr, eventIdStr, authorIdStr, createdAtStr string
	var inReplyToStr, objectURI sql.NullString
	err := row.Scan(&idStr, &eventIdStr, &authorIdStr, &comment.Content,
		&inReplyToStr, &objectURI, &createdAtStr)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	comment.Id, _ = uuid.Parse(idStr)
	comment.EventId, _ = uuid.Parse(eventIdStr)
	comment.AuthorId, _ = uuid.Parse(authorIdStr)
	if inReplyToStr.Valid {
		if parentId, err := uuid.Parse(inReplyToStr.String); err == nil {
			comment.InReplyToId = &parentId
		}
	}
	comment.ObjectURI = objectURI.String
	if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
		comment.CreatedAt = parsedTime
	}
	return nil, &comment
}

func (db *DB) ReadCommentById(id uuid.UUID) (error, *domain.Comment) {
	return db.scanComment(db.db.QueryRow(sqlSelectCommentById, id.String()))
}

func (db *DB) ReadCommentByURI(uri string) (error, *domain.Comment) {
	return db.scanComment(db.db.QueryRow(sqlSelectCommentByURI, uri))
}

func (db *DB) ReadCommentsByEventId(eventId uuid.UUID) (error, *[]domain.Comment) {
	rows, err := db.db.Query(sqlSelectCommentsByEventId, eventId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		var comment domain.Comment
		var idStr, eventIdStr, authorIdStr, createdAtStr string
		var inReplyToStr, objectURI sql.NullString
		if err := rows.Scan(&idStr, &eventIdStr, &authorIdStr, &comment.Content,
			&inReplyToStr, &objectURI, &createdAtStr); err != nil {
			return err, &comments
		}
		comment.Id, _ = uuid.Parse(idStr)
		comment.EventId, _ = uuid.Parse(eventIdStr)
		comment.AuthorId, _ = uuid.Parse(authorIdStr)
		if inReplyToStr.Valid {
			if parentId, err := uuid.Parse(inReplyToStr.String); err == nil {
				comment.InReplyToId = &parentId
			}
		}
		comment.ObjectURI = objectURI.String
		if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
			comment.CreatedAt = parsedTime
		}
		comments = append(comments, comment)
	}
	if err = rows.Err(); err != nil {
		return err, &comments
	}
	return nil, &comments
}

func (db *DB) DeleteCommentByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteCommentByURI, uri)
		return err
	})
}

func (db *DB) DeleteCommentById(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteCommentById, id.String())
		return err
	})
}

func (db *DB) CountComments() (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountComments).Scan(&count)
	return count, err
}

// Follow queries
const (
	sqlInsertFollow             = `INSERT INTO follows(id, account_id, target_account_id, uri, accepted, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectFollowColumns      = `id, account_id, target_account_id, uri, accepted, created_at`
	sqlSelectFollowByURI        = `SELECT ` + sqlSelectFollowColumns + ` FROM follows WHERE uri = ?`
	sqlSelectFollowByAccountIds = `SELECT ` + sqlSelectFollowColumns + ` FROM follows WHERE account_id = ? AND target_account_id = ?`
	sqlSelectFollowersByTarget  = `SELECT ` + sqlSelectFollowColumns + ` FROM follows WHERE target_account_id = ? AND accepted = 1`
	sqlSelectFollowingByAccount = `SELECT ` + sqlSelectFollowColumns + ` FROM follows WHERE account_id = ? AND accepted = 1`
	sqlAcceptFollowByURI        = `UPDATE follows SET accepted = 1 WHERE uri = ?`
	sqlDeleteFollowByURI        = `DELETE FROM follows WHERE uri = ?`
	sqlCountFollowersByTarget   = `SELECT COUNT(*) FROM follows WHERE target_account_id = ? AND accepted = 1`
)

func (db *DB) CreateFollow(follow *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow,
			follow.Id.String(),
			follow.AccountId.String(),
			follow.TargetAccountId.String(),
			follow.URI,
			follow.Accepted,
			follow.CreatedAt.Format(timestampFormat),
		)
		return err
	})
}

func (db *DB) scanFollow(row *sql.Row) (error, *domain.Follow) {
	var follow domain.Follow
	var idStr, accountIdStr, targetIdStr, createdAtStr string
	err := row.Scan(&idStr, &accountIdStr, &targetIdStr, &follow.URI, &follow.Accepted, &createdAtStr)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	follow.Id, _ = uuid.Parse(idStr)
	follow.AccountId, _ = uuid.Parse(accountIdStr)
	follow.TargetAccountId, _ = uuid.Parse(targetIdStr)
	if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
		follow.CreatedAt = parsedTime
	}
	return nil, &follow
}

func (db *DB) ReadFollowByURI(uri string) (error, *domain.Follow) {
	return db.scanFollow(db.db.QueryRow(sqlSelectFollowByURI, uri))
}

func (db *DB) ReadFollowByAccountIds(accountId, targetAccountId uuid.UUID) (error, *domain.Follow) {
	return db.scanFollow(db.db.QueryRow(sqlSelectFollowByAccountIds, accountId.String(), targetAccountId.String()))
}

func (db *DB) readFollowList(query string, accountId uuid.UUID) (error, *[]domain.Follow) {
	rows, err := db.db.Query(query, accountId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		var follow domain.Follow
		var idStr, accountIdStr, targetIdStr, createdAtStr string
		if err := rows.Scan(&idStr, &accountIdStr, &targetIdStr, &follow.URI, &follow.Accepted, &createdAtStr); err != nil {
			return err, &follows
		}
		follow.Id, _ = uuid.Parse(idStr)
		follow.AccountId, _ = uuid.Parse(accountIdStr)
		follow.TargetAccountId, _ = uuid.Parse(targetIdStr)
		if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
			follow.CreatedAt = parsedTime
		}
		follows = append(follows, follow)
	}
	if err = rows.Err(); err != nil {
		return err, &follows
	}
	return nil, &follows
}

// ReadFollowersByAccountId returns accepted follows targeting the given account
func (db *DB) ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	return db.readFollowList(sqlSelectFollowersByTarget, accountId)
}

// ReadFollowingByAccountId returns accepted follows created by the given account
func (db *DB) ReadFollowingByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	return db.readFollowList(sqlSelectFollowingByAccount, accountId)
}

func (db *DB) AcceptFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAcceptFollowByURI, uri)
		return err
	})
}

func (db *DB) DeleteFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowByURI, uri)
		return err
	})
}

func (db *DB) CountFollowersByAccountId(accountId uuid.UUID) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountFollowersByTarget, accountId.String()).Scan(&count)
	return count, err
}

// Like queries
const (
	sqlInsertLike        = `INSERT INTO likes(id, account_id, event_id, uri, created_at) VALUES (?, ?, ?, ?, ?)`
	sqlDeleteLikeByURI   = `DELETE FROM likes WHERE uri = ?`
	sqlCountLikesByEvent = `SELECT COUNT(*) FROM likes WHERE event_id = ?`
)

func (db *DB) CreateLike(like *domain.Like) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertLike,
			like.Id.String(),
			like.AccountId.String(),
			like.EventId.String(),
			like.URI,
			like.CreatedAt.Format(timestampFormat),
		)
		return err
	})
}

func (db *DB) DeleteLikeByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteLikeByURI, uri)
		return err
	})
}

func (db *DB) CountLikesByEventId(eventId uuid.UUID) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountLikesByEvent, eventId.String()).Scan(&count)
	return count, err
}

// RSVP queries
const (
	sqlUpsertRsvp = `INSERT INTO rsvps(id, event_id, account_id, status, uri, public, created_at, updated_at)
					 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
					 ON CONFLICT(event_id, account_id) DO UPDATE SET status = excluded.status, uri = excluded.uri, public = excluded.public, updated_at = excluded.updated_at`
	sqlSelectRsvpsByEventId = `SELECT id, event_id, account_id, status, uri, public, created_at, updated_at FROM rsvps WHERE event_id = ? ORDER BY created_at ASC`
	sqlDeleteRsvpByURI      = `DELETE FROM rsvps WHERE uri = ?`
	sqlCountAttendees       = `SELECT COUNT(*) FROM rsvps WHERE event_id = ? AND status = 'attending'`
)

func (db *DB) UpsertRsvp(rsvp *domain.Rsvp) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertRsvp,
			rsvp.Id.String(),
			rsvp.EventId.String(),
			rsvp.AccountId.String(),
			string(rsvp.Status),
			rsvp.URI,
			rsvp.Public,
			rsvp.CreatedAt.Format(timestampFormat),
			rsvp.UpdatedAt.Format(timestampFormat),
		)
		return err
	})
}

func (db *DB) ReadRsvpsByEventId(eventId uuid.UUID) (error, *[]domain.Rsvp) {
	rows, err := db.db.Query(sqlSelectRsvpsByEventId, eventId.String())
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var rsvps []domain.Rsvp
	for rows.Next() {
		var rsvp domain.Rsvp
		var idStr, eventIdStr, accountIdStr, statusStr, createdAtStr, updatedAtStr string
		if err := rows.Scan(&idStr, &eventIdStr, &accountIdStr, &statusStr, &rsvp.URI, &rsvp.Public, &createdAtStr, &updatedAtStr); err != nil {
			return err, &rsvps
		}
		rsvp.Id, _ = uuid.Parse(idStr)
		rsvp.EventId, _ = uuid.Parse(eventIdStr)
		rsvp.AccountId, _ = uuid.Parse(accountIdStr)
		rsvp.Status = domain.RsvpStatus(statusStr)
		if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
			rsvp.CreatedAt = parsedTime
		}
		if parsedTime, err := parseTimestamp(updatedAtStr); err == nil {
			rsvp.UpdatedAt = parsedTime
		}
		rsvps = append(rsvps, rsvp)
	}
	if err = rows.Err(); err != nil {
		return err, &rsvps
	}
	return nil, &rsvps
}

func (db *DB) DeleteRsvpByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteRsvpByURI, uri)
		return err
	})
}

func (db *DB) CountAttendeesByEventId(eventId uuid.UUID) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountAttendees, eventId.String()).Scan(&count)
	return count, err
}

// Report queries
const (
	sqlInsertReport      = `INSERT INTO reports(id, reporter_uri, target_uri, comment, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectOpenReports = `SELECT id, reporter_uri, target_uri, comment, status, created_at FROM reports WHERE status = 'open' ORDER BY created_at DESC`
	sqlUpdateReportStatus = `UPDATE reports SET status = ? WHERE id = ?`
)

func (db *DB) CreateReport(report *domain.Report) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertReport,
			report.Id.String(),
			report.ReporterURI,
			report.TargetURI,
			report.Comment,
			report.Status,
			report.CreatedAt.Format(timestampFormat),
		)
		return err
	})
}

func (db *DB) ReadOpenReports() (error, *[]domain.Report) {
	rows, err := db.db.Query(sqlSelectOpenReports)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var reports []domain.Report
	for rows.Next() {
		var report domain.Report
		var idStr, createdAtStr string
		if err := rows.Scan(&idStr, &report.ReporterURI, &report.TargetURI, &report.Comment, &report.Status, &createdAtStr); err != nil {
			return err, &reports
		}
		report.Id, _ = uuid.Parse(idStr)
		if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
			report.CreatedAt = parsedTime
		}
		reports = append(reports, report)
	}
	if err = rows.Err(); err != nil {
		return err, &reports
	}
	return nil, &reports
}

func (db *DB) UpdateReportStatus(id uuid.UUID, status string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateReportStatus, status, id.String())
		return err
	})
}

// Notification queries
const (
	sqlInsertNotification = `INSERT INTO notifications(id, account_id, notification_type, title, body, actor_id, actor_username, actor_domain, context_uri, read, read_at, created_at, updated_at)
							 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectNotificationColumns      = `id, account_id, notification_type, title, body, actor_id, actor_username, actor_domain, context_uri, read, read_at, created_at, updated_at`
	sqlSelectNotificationsByAccountId = `SELECT ` + sqlSelectNotificationColumns + ` FROM notifications WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`
	sqlSelectNotificationById         = `SELECT ` + sqlSelectNotificationColumns + ` FROM notifications WHERE id = ?`
	sqlCountUnreadNotifications       = `SELECT COUNT(*) FROM notifications WHERE account_id = ? AND read = 0`
	sqlMarkNotificationRead           = `UPDATE notifications SET read = 1, read_at = COALESCE(read_at, ?), updated_at = ? WHERE id = ?`
	sqlMarkAllNotificationsRead       = `UPDATE notifications SET read = 1, read_at = COALESCE(read_at, ?), updated_at = ? WHERE account_id = ? AND read = 0`
)

func (db *DB) CreateNotification(n *domain.Notification) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		var readAt any
		if n.ReadAt != nil {
			readAt = n.ReadAt.Format(timestampFormat)
		}
		_, err := tx.Exec(sqlInsertNotification,
			n.Id.String(),
			n.AccountId.String(),
			string(n.NotificationType),
			n.Title,
			n.Body,
			n.ActorId.String(),
			n.ActorUsername,
			n.ActorDomain,
			n.ContextURI,
			n.Read,
			readAt,
			n.CreatedAt.Format(timestampFormat),
			n.UpdatedAt.Format(timestampFormat),
		)
		return err
	})
}

func scanNotification(scan func(dest ...any) error) (error, *domain.Notification) {
	var n domain.Notification
	var idStr, accountIdStr, typeStr, createdAtStr, updatedAtStr string
	var actorIdStr, actorUsername, actorDomain, contextURI, title, body sql.NullString
	var readAtStr sql.NullString

	err := scan(&idStr, &accountIdStr, &typeStr, &title, &body, &actorIdStr,
		&actorUsername, &actorDomain, &contextURI, &n.Read, &readAtStr,
		&createdAtStr, &updatedAtStr)
	if err != nil {
		return err, nil
	}

	n.Id, _ = uuid.Parse(idStr)
	n.AccountId, _ = uuid.Parse(accountIdStr)
	n.NotificationType = domain.NotificationType(typeStr)
	n.Title = title.String
	n.Body = body.String
	if actorIdStr.Valid {
		n.ActorId, _ = uuid.Parse(actorIdStr.String)
	}
	n.ActorUsername = actorUsername.String
	n.ActorDomain = actorDomain.String
	n.ContextURI = contextURI.String
	if readAtStr.Valid {
		if parsedTime, err := parseTimestamp(readAtStr.String); err == nil {
			n.ReadAt = &parsedTime
		}
	}
	if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
		n.CreatedAt = parsedTime
	}
	if parsedTime, err := parseTimestamp(updatedAtStr); err == nil {
		n.UpdatedAt = parsedTime
	}
	return nil, &n
}

// ReadNotificationsByAccountId returns the newest notifications first,
// limited to the given page size
func (db *DB) ReadNotificationsByAccountId(accountId uuid.UUID, limit int) (error, *[]domain.Notification) {
	rows, err := db.db.Query(sqlSelectNotificationsByAccountId, accountId.String(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		err, n := scanNotification(rows.Scan)
		if err != nil {
			return err, &notifications
		}
		notifications = append(notifications, *n)
	}
	if err = rows.Err(); err != nil {
		return err, &notifications
	}
	return nil, &notifications
}

func (db *DB) ReadNotificationById(id uuid.UUID) (error, *domain.Notification) {
	row := db.db.QueryRow(sqlSelectNotificationById, id.String())
	err, n := scanNotification(row.Scan)
	if err == sql.ErrNoRows {
		return err, nil
	}
	return err, n
}

func (db *DB) CountUnreadNotifications(accountId uuid.UUID) (int, error) {
	var count int
	err := db.db.QueryRow(sqlCountUnreadNotifications, accountId.String()).Scan(&count)
	return count, err
}

// MarkNotificationRead marks a single notification read, keeping an existing
// read_at timestamp
func (db *DB) MarkNotificationRead(id uuid.UUID, now time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkNotificationRead,
			now.Format(timestampFormat), now.Format(timestampFormat), id.String())
		return err
	})
}

// MarkAllNotificationsRead marks every unread notification of an account read
func (db *DB) MarkAllNotificationsRead(accountId uuid.UUID, now time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlMarkAllNotificationsRead,
			now.Format(timestampFormat), now.Format(timestampFormat), accountId.String())
		return err
	})
}

// Activity log queries
const (
	sqlInsertActivity      = `INSERT INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, local, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectActivityByURI = `SELECT id, activity_uri, activity_type, actor_uri, object_uri, raw_json, local, created_at FROM activities WHERE activity_uri = ?`
)

func (db *DB) CreateActivity(activity *domain.Activity) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertActivity,
			activity.Id.String(),
			activity.ActivityURI,
			activity.ActivityType,
			activity.ActorURI,
			activity.ObjectURI,
			activity.RawJSON,
			activity.Local,
			activity.CreatedAt.Format(timestampFormat),
		)
		return err
	})
}

func (db *DB) ReadActivityByURI(uri string) (error, *domain.Activity) {
	row := db.db.QueryRow(sqlSelectActivityByURI, uri)
	var activity domain.Activity
	var idStr, createdAtStr string
	err := row.Scan(&idStr, &activity.ActivityURI, &activity.ActivityType,
		&activity.ActorURI, &activity.ObjectURI, &activity.RawJSON, &activity.Local, &createdAtStr)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	activity.Id, _ = uuid.Parse(idStr)
	if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
		activity.CreatedAt = parsedTime
	}
	return nil, &activity
}

// Delivery queue queries
const (
	sqlInsertDeliveryQueue     = `INSERT INTO delivery_queue(id, account_id, inbox_uri, activity_json, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, account_id, inbox_uri, activity_json, attempts, next_retry_at, created_at FROM delivery_queue WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt   = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery          = `DELETE FROM delivery_queue WHERE id = ?`
)

func (db *DB) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertDeliveryQueue,
			item.Id.String(),
			item.AccountId.String(),
			item.InboxURI,
			item.ActivityJSON,
			item.Attempts,
			item.NextRetryAt.Format(timestampFormat),
			item.CreatedAt.Format(timestampFormat),
		)
		return err
	})
}

func (db *DB) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	rows, err := db.db.Query(sqlSelectPendingDeliveries, time.Now().Format(timestampFormat), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		var idStr, accountIdStr, nextRetryStr, createdAtStr string
		if err := rows.Scan(&idStr, &accountIdStr, &item.InboxURI, &item.ActivityJSON, &item.Attempts, &nextRetryStr, &createdAtStr); err != nil {
			return err, &items
		}
		item.Id, _ = uuid.Parse(idStr)
		item.AccountId, _ = uuid.Parse(accountIdStr)
		if parsedTime, err := parseTimestamp(nextRetryStr); err == nil {
			item.NextRetryAt = parsedTime
		}
		if parsedTime, err := parseTimestamp(createdAtStr); err == nil {
			item.CreatedAt = parsedTime
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}
	return nil, &items
}

func (db *DB) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateDeliveryAttempt, attempts, nextRetry.Format(timestampFormat), id.String())
		return err
	})
}

func (db *DB) DeleteDelivery(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteDelivery, id.String())
		return err
	})
}

// CountActiveOrganizers counts distinct local accounts that created an event
// since the given time. Used for nodeinfo activity statistics.
func (db *DB) CountActiveOrganizers(since time.Time) (int, error) {
	var count int
	err := db.db.QueryRow(
		`SELECT COUNT(DISTINCT user_id) FROM events WHERE created_at >= ?`,
		since.UTC().Format(timestampFormat),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active organizers: %w", err)
	}
	return count, nil
}
