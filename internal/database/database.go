// Package database provides SQLite storage for the feed aggregator.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/feverd/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

// SupportsHighConcurrency returns false; SQLite serializes writers.
func (db *DB) SupportsHighConcurrency() bool {
	return false
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		api_password_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		parent_id INTEGER REFERENCES folders(id)
	);
	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		folder_id INTEGER REFERENCES folders(id),
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		site_url TEXT DEFAULT '',
		icon_url TEXT DEFAULT '',
		last_fetched DATETIME,
		last_error TEXT DEFAULT '',
		UNIQUE(user_id, url)
	);
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_id INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		guid TEXT NOT NULL,
		title TEXT NOT NULL,
		author TEXT DEFAULT '',
		content TEXT,
		link TEXT,
		published_at DATETIME,
		fetched_at DATETIME NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		is_favorite INTEGER NOT NULL DEFAULT 0,
		UNIQUE(feed_id, guid)
	);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	-- Default polling interval (15 minutes minimum).
	INSERT OR IGNORE INTO settings (key, value) VALUES ('polling_interval_minutes', '15');

	CREATE INDEX IF NOT EXISTS idx_items_feed_id ON items(feed_id);
	CREATE INDEX IF NOT EXISTS idx_items_is_read ON items(is_read);
	CREATE INDEX IF NOT EXISTS idx_feeds_user_id ON feeds(user_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- User Methods ---

// CreateUser adds a user without an API password. Returns the ID.
func (db *DB) CreateUser(name string) (int64, error) {
	res, err := db.conn.Exec("INSERT INTO users (name, created_at) VALUES (?, ?)", name, time.Now())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetUserByName looks a user up by name.
func (db *DB) GetUserByName(name string) (*model.User, error) {
	rows, err := db.conn.Query("SELECT id, name, api_password_hash, created_at FROM users WHERE name = ?", name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users, err := scanUsers(rows)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("user %q: %w", name, ErrNotFound)
	}
	return &users[0], nil
}

// SetAPIPasswordHash stores the bcrypt hash of the user's Fever API key.
func (db *DB) SetAPIPasswordHash(userID int64, hash string) error {
	_, err := db.conn.Exec("UPDATE users SET api_password_hash = ? WHERE id = ?", hash, userID)
	return err
}

// GetAPIUsers returns users with an API password set, ordered by name.
func (db *DB) GetAPIUsers() ([]model.User, error) {
	rows, err := db.conn.Query("SELECT id, name, api_password_hash, created_at FROM users WHERE api_password_hash <> '' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// --- Folder Methods ---

// GetFolders returns the user's folders ordered by name.
func (db *DB) GetFolders(userID int64) ([]model.Folder, error) {
	rows, err := db.conn.Query("SELECT id, user_id, name, parent_id FROM folders WHERE user_id = ? ORDER BY name", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var folders []model.Folder
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.ParentID); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// CreateFolder creates a new folder. Returns the ID.
func (db *DB) CreateFolder(userID int64, name string, parentID *int64) (int64, error) {
	res, err := db.conn.Exec("INSERT INTO folders (user_id, name, parent_id) VALUES (?, ?, ?)", userID, name, parentID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetOrCreateFolder finds a folder by name and parent, or creates it.
func (db *DB) GetOrCreateFolder(userID int64, name string, parentID *int64) (int64, error) {
	var id int64
	var row *sql.Row
	if parentID == nil {
		row = db.conn.QueryRow("SELECT id FROM folders WHERE user_id = ? AND name = ? AND parent_id IS NULL", userID, name)
	} else {
		row = db.conn.QueryRow("SELECT id FROM folders WHERE user_id = ? AND name = ? AND parent_id = ?", userID, name, *parentID)
	}
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return db.CreateFolder(userID, name, parentID)
	}
	return id, err
}

// GetFeedIDsByFolderIDs returns the distinct ids of the user's feeds filed
// in any of the given folders.
func (db *DB) GetFeedIDsByFolderIDs(userID int64, folderIDs []int64) ([]int64, error) {
	if len(folderIDs) == 0 {
		return nil, nil
	}
	b := &queryBuilder{ph: sqlitePlaceholder}
	query := "SELECT DISTINCT id FROM feeds WHERE user_id = " + b.bind(userID) +
		" AND folder_id IN (" + b.bindList(folderIDs) + ") ORDER BY id"
	rows, err := db.conn.Query(query, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// --- Feed Methods ---

// GetFeeds returns the user's feeds ordered by title.
func (db *DB) GetFeeds(userID int64) ([]model.Feed, error) {
	rows, err := db.conn.Query("SELECT "+feedColumns+" FROM feeds WHERE user_id = ? ORDER BY title, id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

// GetAllFeeds returns every feed of every user.
func (db *DB) GetAllFeeds() ([]model.Feed, error) {
	rows, err := db.conn.Query("SELECT " + feedColumns + " FROM feeds ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFeeds(rows)
}

// CreateFeed adds a new feed. Returns the ID.
func (db *DB) CreateFeed(userID int64, folderID *int64, title, url string) (int64, error) {
	res, err := db.conn.Exec("INSERT INTO feeds (user_id, folder_id, title, url) VALUES (?, ?, ?, ?)", userID, folderID, title, url)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetOrCreateFeed finds a user's feed by URL, or creates it.
func (db *DB) GetOrCreateFeed(userID int64, folderID *int64, title, url string) (int64, bool, error) {
	var id int64
	err := db.conn.QueryRow("SELECT id FROM feeds WHERE user_id = ? AND url = ?", userID, url).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		id, err := db.CreateFeed(userID, folderID, title, url)
		return id, true, err
	}
	return id, false, err
}

// UpdateFeedLastFetched updates the last_fetched timestamp and clears the error.
func (db *DB) UpdateFeedLastFetched(feedID int64, t time.Time) error {
	_, err := db.conn.Exec("UPDATE feeds SET last_fetched = ?, last_error = '' WHERE id = ?", t, feedID)
	return err
}

// UpdateFeedTitle sets the feed title.
func (db *DB) UpdateFeedTitle(feedID int64, title string) error {
	_, err := db.conn.Exec("UPDATE feeds SET title = ? WHERE id = ?", title, feedID)
	return err
}

// UpdateFeedSiteURL sets the feed's website URL.
func (db *DB) UpdateFeedSiteURL(feedID int64, siteURL string) error {
	_, err := db.conn.Exec("UPDATE feeds SET site_url = ? WHERE id = ?", siteURL, feedID)
	return err
}

// UpdateFeedIconURL records where the feed's favicon was found.
func (db *DB) UpdateFeedIconURL(feedID int64, iconURL string) error {
	_, err := db.conn.Exec("UPDATE feeds SET icon_url = ? WHERE id = ?", iconURL, feedID)
	return err
}

// UpdateFeedError records the last fetch error.
func (db *DB) UpdateFeedError(feedID int64, errMsg string) error {
	_, err := db.conn.Exec("UPDATE feeds SET last_error = ? WHERE id = ?", errMsg, feedID)
	return err
}

// --- Item Methods ---

// AddItem inserts a new item if GUID doesn't exist for that feed. Returns ID and whether it was new.
func (db *DB) AddItem(item *model.Item) (int64, bool, error) {
	res, err := db.conn.Exec(`
		INSERT INTO items (feed_id, guid, title, author, content, link, published_at, fetched_at, is_read, is_favorite)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(feed_id, guid) DO NOTHING`,
		item.FeedID, item.GUID, item.Title, item.Author, item.Content, item.Link, item.PublishedAt, item.FetchedAt,
		item.IsRead, item.IsFavorite)
	if err != nil {
		return 0, false, err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	return id, true, err
}

// ScanItems returns the user's items selected by q.
func (db *DB) ScanItems(userID int64, q model.ItemQuery) ([]model.Item, error) {
	query, args := buildScanItems(sqlitePlaceholder, userID, q)
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// CountItems returns the number of items across the user's feeds.
func (db *DB) CountItems(userID int64) (int64, error) {
	var n int64
	err := db.conn.QueryRow("SELECT COUNT(i.id) FROM items i JOIN feeds f ON i.feed_id = f.id WHERE f.user_id = ?", userID).Scan(&n)
	return n, err
}

// GetUnreadItemIDs returns the ids of the user's unread items, ascending.
func (db *DB) GetUnreadItemIDs(userID int64) ([]int64, error) {
	rows, err := db.conn.Query("SELECT i.id FROM items i JOIN feeds f ON i.feed_id = f.id WHERE f.user_id = ? AND i.is_read = 0 ORDER BY i.id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// GetSavedItemIDs returns the ids of the user's favorite items, ascending.
func (db *DB) GetSavedItemIDs(userID int64) ([]int64, error) {
	rows, err := db.conn.Query("SELECT i.id FROM items i JOIN feeds f ON i.feed_id = f.id WHERE f.user_id = ? AND i.is_favorite = 1 ORDER BY i.id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// SetItemRead sets the read flag of one of the user's items.
func (db *DB) SetItemRead(userID, itemID int64, read bool) error {
	_, err := db.conn.Exec("UPDATE items SET is_read = ? WHERE id = ? AND feed_id IN (SELECT id FROM feeds WHERE user_id = ?)", read, itemID, userID)
	return err
}

// SetItemFavorite sets the favorite flag of one of the user's items.
func (db *DB) SetItemFavorite(userID, itemID int64, favorite bool) error {
	_, err := db.conn.Exec("UPDATE items SET is_favorite = ? WHERE id = ? AND feed_id IN (SELECT id FROM feeds WHERE user_id = ?)", favorite, itemID, userID)
	return err
}

// CleanupReadItems deletes read items that are not favorites.
func (db *DB) CleanupReadItems() (int64, error) {
	res, err := db.conn.Exec("DELETE FROM items WHERE is_read = 1 AND is_favorite = 0")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Settings Methods ---

// GetSetting retrieves a setting value.
func (db *DB) GetSetting(key string) (string, error) {
	var val string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	return val, err
}

// SetSetting saves a setting.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?", key, value, value)
	return err
}

// GetPollingInterval returns the polling interval in minutes, with a minimum of 15.
func (db *DB) GetPollingInterval() (int, error) {
	return parsePollingInterval(db.GetSetting(model.SettingPollingInterval))
}
