package fever

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/bryan-buckman/feverd/internal/model"
	"github.com/stretchr/testify/require"
)

var errStorage = errors.New("storage unavailable")

// memStore is an in-memory Store and Credentials.
type memStore struct {
	users   []model.User
	folders []model.Folder
	feeds   []model.Feed
	items   []model.Item

	fail map[string]bool
}

func newMemStore() *memStore {
	return &memStore{fail: map[string]bool{}}
}

func (s *memStore) addUser(t *testing.T, name, password string) model.User {
	t.Helper()
	hash, err := HashAPIKey(APIKey(name, password))
	require.NoError(t, err)
	u := model.User{ID: int64(len(s.users) + 1), Name: name, APIPasswordHash: hash}
	s.users = append(s.users, u)
	return u
}

func (s *memStore) addFolder(userID int64, name string) int64 {
	id := int64(len(s.folders) + 1)
	s.folders = append(s.folders, model.Folder{ID: id, UserID: userID, Name: name})
	return id
}

func (s *memStore) addFeed(userID int64, folderID *int64, title string, fetched time.Time) int64 {
	id := int64(len(s.feeds) + 1)
	s.feeds = append(s.feeds, model.Feed{
		ID:          id,
		UserID:      userID,
		FolderID:    folderID,
		Title:       title,
		URL:         "https://example.com/" + title + "/feed",
		SiteURL:     "https://example.com/" + title + "/",
		LastFetched: fetched,
	})
	return id
}

func (s *memStore) addItems(feedID int64, n int) []int64 {
	var ids []int64
	for i := 0; i < n; i++ {
		id := int64(len(s.items) + 1)
		s.items = append(s.items, model.Item{
			ID:          id,
			FeedID:      feedID,
			Title:       "item",
			Content:     "<p>body</p>",
			Link:        "https://example.com/item",
			PublishedAt: time.Unix(1700000000+id, 0),
		})
		ids = append(ids, id)
	}
	return ids
}

func (s *memStore) feedOwner(feedID int64) int64 {
	for _, f := range s.feeds {
		if f.ID == feedID {
			return f.UserID
		}
	}
	return 0
}

func (s *memStore) userItems(userID int64) []*model.Item {
	var out []*model.Item
	for i := range s.items {
		if s.feedOwner(s.items[i].FeedID) == userID {
			out = append(out, &s.items[i])
		}
	}
	return out
}

func (s *memStore) check(op string) error {
	if s.fail[op] {
		return errStorage
	}
	return nil
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (s *memStore) ScanItems(userID int64, q model.ItemQuery) ([]model.Item, error) {
	if err := s.check("ScanItems"); err != nil {
		return nil, err
	}
	var out []model.Item
	for _, it := range s.userItems(userID) {
		switch {
		case len(q.IDs) > 0:
			if !contains(q.IDs, it.ID) {
				continue
			}
		case q.BeforeID != nil:
			if it.ID >= *q.BeforeID {
				continue
			}
		default:
			if it.ID <= q.AfterID {
				continue
			}
		}
		if len(q.FeedIDs) > 0 && !contains(q.FeedIDs, it.FeedID) {
			continue
		}
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		if q.Descending {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *memStore) SetItemRead(userID, itemID int64, read bool) error {
	if err := s.check("SetItemRead"); err != nil {
		return err
	}
	for _, it := range s.userItems(userID) {
		if it.ID == itemID {
			it.IsRead = read
		}
	}
	return nil
}

func (s *memStore) SetItemFavorite(userID, itemID int64, favorite bool) error {
	if err := s.check("SetItemFavorite"); err != nil {
		return err
	}
	for _, it := range s.userItems(userID) {
		if it.ID == itemID {
			it.IsFavorite = favorite
		}
	}
	return nil
}

func (s *memStore) GetFolders(userID int64) ([]model.Folder, error) {
	if err := s.check("GetFolders"); err != nil {
		return nil, err
	}
	var out []model.Folder
	for _, f := range s.folders {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memStore) GetFeeds(userID int64) ([]model.Feed, error) {
	if err := s.check("GetFeeds"); err != nil {
		return nil, err
	}
	var out []model.Feed
	for _, f := range s.feeds {
		if f.UserID == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *memStore) GetFeedIDsByFolderIDs(userID int64, folderIDs []int64) ([]int64, error) {
	if err := s.check("GetFeedIDsByFolderIDs"); err != nil {
		return nil, err
	}
	var out []int64
	for _, f := range s.feeds {
		if f.UserID == userID && f.FolderID != nil && contains(folderIDs, *f.FolderID) {
			out = append(out, f.ID)
		}
	}
	return out, nil
}

func (s *memStore) CountItems(userID int64) (int64, error) {
	if err := s.check("CountItems"); err != nil {
		return 0, err
	}
	return int64(len(s.userItems(userID))), nil
}

func (s *memStore) GetUnreadItemIDs(userID int64) ([]int64, error) {
	if err := s.check("GetUnreadItemIDs"); err != nil {
		return nil, err
	}
	var out []int64
	for _, it := range s.userItems(userID) {
		if !it.IsRead {
			out = append(out, it.ID)
		}
	}
	return out, nil
}

func (s *memStore) GetSavedItemIDs(userID int64) ([]int64, error) {
	if err := s.check("GetSavedItemIDs"); err != nil {
		return nil, err
	}
	var out []int64
	for _, it := range s.userItems(userID) {
		if it.IsFavorite {
			out = append(out, it.ID)
		}
	}
	return out, nil
}

func (s *memStore) GetAPIUsers() ([]model.User, error) {
	if err := s.check("GetAPIUsers"); err != nil {
		return nil, err
	}
	return s.users, nil
}

// memFavicons serves icons keyed by feed id.
type memFavicons map[int64][]byte

func (m memFavicons) Load(feed model.Feed) ([]byte, bool, error) {
	data, ok := m[feed.ID]
	return data, ok, nil
}
