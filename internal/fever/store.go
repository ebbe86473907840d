// Package fever implements the Fever sync API: request interpretation, item
// pagination, read/saved state mutation, content sanitizing and JSON/XML
// response encoding.
//
// Storage, credentials and favicons are reached through the narrow
// interfaces below; database.Store and favicon.Store satisfy them.
package fever

import "github.com/bryan-buckman/feverd/internal/model"

// ItemStore is the item range-scan capability the Paginator needs.
type ItemStore interface {
	ScanItems(userID int64, q model.ItemQuery) ([]model.Item, error)
}

// FlagStore applies single-item flag updates.
type FlagStore interface {
	SetItemRead(userID, itemID int64, read bool) error
	SetItemFavorite(userID, itemID int64, favorite bool) error
}

// Store is everything the Responder reads or writes.
type Store interface {
	ItemStore
	FlagStore

	GetFolders(userID int64) ([]model.Folder, error)
	GetFeeds(userID int64) ([]model.Feed, error)
	GetFeedIDsByFolderIDs(userID int64, folderIDs []int64) ([]int64, error)
	CountItems(userID int64) (int64, error)
	GetUnreadItemIDs(userID int64) ([]int64, error)
	GetSavedItemIDs(userID int64) ([]int64, error)
}

// Credentials lists the users allowed to use the API.
type Credentials interface {
	GetAPIUsers() ([]model.User, error)
}

// Favicons returns the cached icon of a feed. ok is false when no icon is
// cached.
type Favicons interface {
	Load(feed model.Feed) (data []byte, ok bool, err error)
}
