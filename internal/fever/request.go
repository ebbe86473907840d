package fever

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/bryan-buckman/feverd/internal/model"
)

// Request field names. Section flags are signalled by presence alone.
const (
	FieldAPI     = "api"
	FieldAPIKey  = "api_key"
	FieldRefresh = "refresh"

	FlagGroups        = "groups"
	FlagFeeds         = "feeds"
	FlagFavicons      = "favicons"
	FlagItems         = "items"
	FlagLinks         = "links"
	FlagUnreadItemIDs = "unread_item_ids"
	FlagSavedItemIDs  = "saved_item_ids"

	FieldFeedIDs  = "feed_ids"
	FieldGroupIDs = "group_ids"
	FieldMaxID    = "max_id"
	FieldSinceID  = "since_id"
	FieldWithIDs  = "with_ids"

	FieldMark   = "mark"
	FieldAs     = "as"
	FieldID     = "id"
	FieldBefore = "before"
)

// Request is the per-call state: the merged query and form fields, the
// requested format and, after authentication, the acting user.
type Request struct {
	Format Format
	User   *model.User
	form   url.Values
}

// ParseRequest builds a Request from merged query and body fields.
func ParseRequest(form url.Values) *Request {
	r := &Request{form: form}
	if strings.EqualFold(form.Get(FieldAPI), "xml") {
		r.Format = FormatXML
	}
	return r
}

// Has reports whether the field was sent, whatever its value.
func (r *Request) Has(name string) bool {
	_, ok := r.form[name]
	return ok
}

// Value returns the first value of the field.
func (r *Request) Value(name string) string {
	return r.form.Get(name)
}

// APIKey returns the presented key.
func (r *Request) APIKey() string {
	return r.form.Get(FieldAPIKey)
}

// Authenticated reports whether an acting user is bound.
func (r *Request) Authenticated() bool {
	return r.User != nil
}

// ItemFilter is the item selection requested by the client.
type ItemFilter struct {
	FeedIDs  []int64
	GroupIDs []int64
	WithIDs  []int64
	MaxID    *int64
	SinceID  *int64

	// Filtered is set when feed_ids or group_ids named at least one id.
	Filtered bool
}

// ItemFilter extracts item selection fields. max_id takes precedence over
// with_ids, which takes precedence over since_id. A max_id that is not a
// positive number selects nothing and leaves the forward scan from 0.
func (r *Request) ItemFilter() ItemFilter {
	var f ItemFilter
	if r.Has(FieldFeedIDs) {
		f.FeedIDs = parseIDList(r.Value(FieldFeedIDs))
	}
	if r.Has(FieldGroupIDs) {
		f.GroupIDs = parseIDList(r.Value(FieldGroupIDs))
	}
	f.Filtered = len(f.FeedIDs) > 0 || len(f.GroupIDs) > 0

	switch {
	case r.Has(FieldMaxID):
		if n, ok := parseNumeric(r.Value(FieldMaxID)); ok && n > 0 {
			f.MaxID = &n
		}
	case r.Has(FieldWithIDs):
		f.WithIDs = parseIDList(r.Value(FieldWithIDs))
	default:
		if n, ok := parseNumeric(r.Value(FieldSinceID)); ok {
			f.SinceID = &n
		}
	}
	return f
}

// parseNumeric accepts integers and finite decimal numbers, truncating the
// latter.
func parseNumeric(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// parseIDList parses a comma separated id list, skipping invalid entries
// and duplicates.
func parseIDList(s string) []int64 {
	var ids []int64
	seen := map[int64]bool{}
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
