package database

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/bryan-buckman/feverd/internal/model"
)

// placeholder renders the n-th (1-based) bind parameter for a backend.
type placeholder func(n int) string

func sqlitePlaceholder(int) string { return "?" }

func postgresPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

const itemColumns = `i.id, i.feed_id, i.guid, i.title, i.author, i.content, i.link,
	i.published_at, i.fetched_at, i.is_read, i.is_favorite`

const feedColumns = `id, user_id, folder_id, title, url, site_url, icon_url, last_fetched, last_error`

// queryBuilder accumulates bind arguments while a statement is assembled.
type queryBuilder struct {
	ph   placeholder
	args []any
}

func (b *queryBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return b.ph(len(b.args))
}

func (b *queryBuilder) bindList(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = b.bind(id)
	}
	return strings.Join(parts, ", ")
}

// buildScanItems renders the SELECT for ItemQuery. Exactly one id selection
// mode applies: explicit ids, then BeforeID, then AfterID.
func buildScanItems(ph placeholder, userID int64, q model.ItemQuery) (string, []any) {
	b := &queryBuilder{ph: ph}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(itemColumns)
	sb.WriteString(" FROM items i JOIN feeds f ON i.feed_id = f.id WHERE f.user_id = ")
	sb.WriteString(b.bind(userID))

	switch {
	case len(q.IDs) > 0:
		sb.WriteString(" AND i.id IN (" + b.bindList(q.IDs) + ")")
	case q.BeforeID != nil:
		sb.WriteString(" AND i.id < " + b.bind(*q.BeforeID))
	default:
		sb.WriteString(" AND i.id > " + b.bind(q.AfterID))
	}

	if len(q.FeedIDs) > 0 {
		sb.WriteString(" AND i.feed_id IN (" + b.bindList(q.FeedIDs) + ")")
	}

	if q.Descending {
		sb.WriteString(" ORDER BY i.id DESC")
	} else {
		sb.WriteString(" ORDER BY i.id ASC")
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + b.bind(q.Limit))
	}

	return sb.String(), b.args
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (model.Item, error) {
	var it model.Item
	var author, content, link sql.NullString
	var publishedAt, fetchedAt sql.NullTime
	err := r.Scan(&it.ID, &it.FeedID, &it.GUID, &it.Title, &author, &content, &link,
		&publishedAt, &fetchedAt, &it.IsRead, &it.IsFavorite)
	if err != nil {
		return it, err
	}
	it.Author = author.String
	it.Content = content.String
	it.Link = link.String
	if publishedAt.Valid {
		it.PublishedAt = publishedAt.Time
	}
	if fetchedAt.Valid {
		it.FetchedAt = fetchedAt.Time
	}
	return it, nil
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanFeeds(rows *sql.Rows) ([]model.Feed, error) {
	var feeds []model.Feed
	for rows.Next() {
		var f model.Feed
		var siteURL, iconURL, lastError sql.NullString
		var lastFetched sql.NullTime
		if err := rows.Scan(&f.ID, &f.UserID, &f.FolderID, &f.Title, &f.URL, &siteURL, &iconURL, &lastFetched, &lastError); err != nil {
			return nil, err
		}
		f.SiteURL = siteURL.String
		f.IconURL = iconURL.String
		f.LastError = lastError.String
		if lastFetched.Valid {
			f.LastFetched = lastFetched.Time
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanUsers(rows *sql.Rows) ([]model.User, error) {
	var users []model.User
	for rows.Next() {
		var u model.User
		var createdAt sql.NullTime
		if err := rows.Scan(&u.ID, &u.Name, &u.APIPasswordHash, &createdAt); err != nil {
			return nil, err
		}
		if createdAt.Valid {
			u.CreatedAt = createdAt.Time
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func parsePollingInterval(val string, err error) (int, error) {
	if err != nil {
		return MinPollingIntervalMinutes, nil // default
	}
	mins, convErr := strconv.Atoi(strings.TrimSpace(val))
	if convErr != nil || mins < MinPollingIntervalMinutes {
		mins = MinPollingIntervalMinutes
	}
	return mins, nil
}
