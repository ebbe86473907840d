// Package model defines shared data structures.
package model

import "time"

// User owns folders and feeds. APIPasswordHash is the bcrypt hash of the
// user's Fever API key; empty means the API is disabled for the user.
type User struct {
	ID              int64
	Name            string
	APIPasswordHash string
	CreatedAt       time.Time
}

// Folder represents a hierarchical folder for organizing feeds.
// Fever clients see folders as groups.
type Folder struct {
	ID       int64
	UserID   int64
	Name     string
	ParentID *int64 // nullable for root folders
}

// Feed represents an RSS/Atom feed subscription.
type Feed struct {
	ID          int64
	UserID      int64
	FolderID    *int64 // nullable if not in a folder
	Title       string
	URL         string
	SiteURL     string
	IconURL     string
	LastFetched time.Time
	LastError   string
}

// LastUpdated returns LastFetched as epoch seconds, 0 if never fetched.
func (f Feed) LastUpdated() int64 {
	if f.LastFetched.IsZero() {
		return 0
	}
	return f.LastFetched.Unix()
}

// Item represents a single article/entry from a feed.
type Item struct {
	ID          int64
	FeedID      int64
	GUID        string // unique identifier from feed
	Title       string
	Author      string
	Content     string
	Link        string
	PublishedAt time.Time
	FetchedAt   time.Time
	IsRead      bool
	IsFavorite  bool
}

// ItemQuery describes a bounded scan over a user's items.
//
// When IDs is non-empty only those items are returned. Otherwise BeforeID
// (exclusive upper bound) or AfterID (exclusive lower bound) applies.
// FeedIDs restricts the scan to the given feeds when non-empty.
type ItemQuery struct {
	FeedIDs    []int64
	IDs        []int64
	BeforeID   *int64
	AfterID    int64
	Descending bool
	Limit      int
}

// Settings key constants.
const (
	SettingPollingInterval = "polling_interval_minutes"
)
