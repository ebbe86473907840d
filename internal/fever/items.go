package fever

import (
	"fmt"

	"github.com/bryan-buckman/feverd/internal/model"
)

// ItemLimit caps every item listing.
const ItemLimit = 50

// Paginator resolves an item window against storage.
type Paginator struct {
	store ItemStore
}

// NewPaginator returns a Paginator reading from store.
func NewPaginator(store ItemStore) *Paginator {
	return &Paginator{store: store}
}

// Find returns at most limit items (ItemLimit when limit is out of range).
// Exactly one selection applies: entryIDs when non-empty; else ids below
// maxID, newest first; else ids above sinceID (0 when nil), oldest first.
// A non-empty feedIDs restricts any of them to those feeds.
func (p *Paginator) Find(userID int64, feedIDs, entryIDs []int64, maxID, sinceID *int64, limit int) ([]model.Item, error) {
	if limit <= 0 || limit > ItemLimit {
		limit = ItemLimit
	}

	q := model.ItemQuery{FeedIDs: feedIDs, Limit: limit}
	switch {
	case len(entryIDs) > 0:
		q.IDs = entryIDs
	case maxID != nil:
		q.BeforeID = maxID
		q.Descending = true
	default:
		if sinceID != nil {
			q.AfterID = *sinceID
		}
	}

	items, err := p.store.ScanItems(userID, q)
	if err != nil {
		return nil, fmt.Errorf("scan items: %w", err)
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
