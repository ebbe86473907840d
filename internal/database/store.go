// Package database provides storage backends for the feed aggregator.
package database

import (
	"errors"
	"time"

	"github.com/bryan-buckman/feverd/internal/model"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	// SQLite returns false due to write locking limitations.
	SupportsHighConcurrency() bool

	// User operations
	CreateUser(name string) (int64, error)
	GetUserByName(name string) (*model.User, error)
	SetAPIPasswordHash(userID int64, hash string) error
	GetAPIUsers() ([]model.User, error)

	// Folder operations
	GetFolders(userID int64) ([]model.Folder, error)
	CreateFolder(userID int64, name string, parentID *int64) (int64, error)
	GetOrCreateFolder(userID int64, name string, parentID *int64) (int64, error)
	GetFeedIDsByFolderIDs(userID int64, folderIDs []int64) ([]int64, error)

	// Feed operations
	GetFeeds(userID int64) ([]model.Feed, error)
	GetAllFeeds() ([]model.Feed, error)
	CreateFeed(userID int64, folderID *int64, title, url string) (int64, error)
	GetOrCreateFeed(userID int64, folderID *int64, title, url string) (int64, bool, error)
	UpdateFeedLastFetched(feedID int64, t time.Time) error
	UpdateFeedTitle(feedID int64, title string) error
	UpdateFeedSiteURL(feedID int64, siteURL string) error
	UpdateFeedIconURL(feedID int64, iconURL string) error
	UpdateFeedError(feedID int64, errMsg string) error

	// Item operations
	AddItem(item *model.Item) (int64, bool, error)
	ScanItems(userID int64, q model.ItemQuery) ([]model.Item, error)
	CountItems(userID int64) (int64, error)
	GetUnreadItemIDs(userID int64) ([]int64, error)
	GetSavedItemIDs(userID int64) ([]int64, error)
	SetItemRead(userID, itemID int64, read bool) error
	SetItemFavorite(userID, itemID int64, favorite bool) error
	CleanupReadItems() (int64, error)

	// Settings operations
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	GetPollingInterval() (int, error)
}

// Open returns the store for driver ("sqlite" or "postgres"). For SQLite
// dsn is a file path, for PostgreSQL a connection URL.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return New(dsn)
	case "postgres":
		return NewPostgres(dsn)
	default:
		return nil, errors.New("unknown database driver: " + driver)
	}
}

// MinPollingIntervalMinutes is the lowest polling interval a store reports.
const MinPollingIntervalMinutes = 15
