package fever

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/bryan-buckman/feverd/internal/metrics"
	"github.com/bryan-buckman/feverd/internal/model"
	log "gopkg.in/inconshreveable/log15.v2"
)

// ErrNotAuthenticated is returned by Process for a request without an
// acting user.
var ErrNotAuthenticated = errors.New("fever: request is not authenticated")

// Responder turns a Request into a response envelope.
type Responder struct {
	store      Store
	favicons   Favicons
	auth       *AuthGate
	paginator  *Paginator
	dispatcher *Dispatcher
	sanitizer  *Sanitizer
	logger     log.Logger
}

// NewResponder wires the components. favicons may be nil, in which case
// the favicons section is always empty.
func NewResponder(store Store, credentials Credentials, favicons Favicons, logger log.Logger) *Responder {
	return &Responder{
		store:      store,
		favicons:   favicons,
		auth:       NewAuthGate(credentials),
		paginator:  NewPaginator(store),
		dispatcher: NewDispatcher(store),
		sanitizer:  NewSanitizer(),
		logger:     logger,
	}
}

// Respond authenticates req and, when that succeeds, builds every
// requested section. An unauthenticated request gets the bare envelope.
func (rs *Responder) Respond(req *Request) (*Envelope, error) {
	user, err := rs.auth.Authenticate(req.APIKey())
	if err != nil {
		return nil, err
	}
	if user == nil {
		rs.logger.Debug("fever request not authenticated", "key_present", req.APIKey() != "")
		return &Envelope{Auth: false}, nil
	}
	req.User = user

	c := &call{rs: rs, req: req, userID: user.ID}
	sections, err := c.process()
	if err != nil {
		return nil, err
	}
	lastRefreshed, err := c.lastRefreshedOnTime()
	if err != nil {
		return nil, err
	}
	return &Envelope{Auth: true, LastRefreshedOnTime: lastRefreshed, Sections: sections}, nil
}

// Process builds the sections requested by an authenticated request.
func (rs *Responder) Process(req *Request) (Node, error) {
	if !req.Authenticated() {
		return Node{}, ErrNotAuthenticated
	}
	c := &call{rs: rs, req: req, userID: req.User.ID}
	return c.process()
}

// call holds values loaded lazily while one request is answered.
type call struct {
	rs     *Responder
	req    *Request
	userID int64

	feeds       []model.Feed
	feedsLoaded bool
	feedsGroups *Node
}

func (c *call) process() (Node, error) {
	sections := NewMap()
	req := c.req

	if req.Has(FlagGroups) {
		groups, err := c.groups()
		if err != nil {
			return Node{}, err
		}
		sections.Set("groups", groups)
		if err := c.setFeedsGroups(&sections); err != nil {
			return Node{}, err
		}
	}

	if req.Has(FlagFeeds) {
		feeds, err := c.feedList()
		if err != nil {
			return Node{}, err
		}
		sections.Set("feeds", feeds)
		if err := c.setFeedsGroups(&sections); err != nil {
			return Node{}, err
		}
	}

	if req.Has(FlagFavicons) {
		favicons, err := c.faviconList()
		if err != nil {
			return Node{}, err
		}
		sections.Set("favicons", favicons)
	}

	if req.Has(FlagItems) {
		total, err := c.rs.store.CountItems(c.userID)
		if err != nil {
			return Node{}, fmt.Errorf("count items: %w", err)
		}
		sections.Set("total_items", Int(total))

		items, err := c.items()
		if err != nil {
			return Node{}, err
		}
		sections.Set("items", items)
	}

	if req.Has(FlagLinks) {
		sections.Set("links", List())
	}

	if req.Has(FlagUnreadItemIDs) {
		if err := c.setIDSection(&sections, FlagUnreadItemIDs); err != nil {
			return Node{}, err
		}
	}

	if req.Has(FlagSavedItemIDs) {
		if err := c.setIDSection(&sections, FlagSavedItemIDs); err != nil {
			return Node{}, err
		}
	}

	if req.Has(FieldMark) && req.Has(FieldAs) && req.Has(FieldID) {
		if err := c.mark(&sections); err != nil {
			return Node{}, err
		}
	}

	return sections, nil
}

func (c *call) loadFeeds() ([]model.Feed, error) {
	if c.feedsLoaded {
		return c.feeds, nil
	}
	feeds, err := c.rs.store.GetFeeds(c.userID)
	if err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}
	c.feeds = feeds
	c.feedsLoaded = true
	return feeds, nil
}

// lastRefreshedOnTime is the newest fetch time across the user's feeds.
func (c *call) lastRefreshedOnTime() (int64, error) {
	feeds, err := c.loadFeeds()
	if err != nil {
		return 0, err
	}
	var last int64
	for _, f := range feeds {
		if t := f.LastUpdated(); t > last {
			last = t
		}
	}
	return last, nil
}

func (c *call) groups() (Node, error) {
	folders, err := c.rs.store.GetFolders(c.userID)
	if err != nil {
		return Node{}, fmt.Errorf("get folders: %w", err)
	}
	groups := List()
	for _, f := range folders {
		groups.Append(Map(
			"id", Int(f.ID),
			"title", String(f.Name),
		))
	}
	return groups, nil
}

func (c *call) feedList() (Node, error) {
	feeds, err := c.loadFeeds()
	if err != nil {
		return Node{}, err
	}
	list := List()
	for _, f := range feeds {
		list.Append(Map(
			"id", Int(f.ID),
			"favicon_id", Int(f.ID),
			"title", String(f.Title),
			"url", String(f.URL),
			"site_url", String(f.SiteURL),
			"is_spark", Int(0),
			"last_updated_on_time", Int(f.LastUpdated()),
		))
	}
	return list, nil
}

// setFeedsGroups sets feeds_groups, computing it at most once per call.
func (c *call) setFeedsGroups(sections *Node) error {
	if c.feedsGroups == nil {
		feeds, err := c.loadFeeds()
		if err != nil {
			return err
		}
		byGroup := map[int64][]int64{}
		for _, f := range feeds {
			if f.FolderID == nil {
				continue
			}
			byGroup[*f.FolderID] = append(byGroup[*f.FolderID], f.ID)
		}
		groupIDs := make([]int64, 0, len(byGroup))
		for id := range byGroup {
			groupIDs = append(groupIDs, id)
		}
		sort.Slice(groupIDs, func(i, j int) bool { return groupIDs[i] < groupIDs[j] })

		list := List()
		for _, id := range groupIDs {
			feedIDs := byGroup[id]
			sort.Slice(feedIDs, func(i, j int) bool { return feedIDs[i] < feedIDs[j] })
			list.Append(Map(
				"group_id", Int(id),
				"feed_ids", String(joinIDs(feedIDs)),
			))
		}
		c.feedsGroups = &list
	}
	sections.Set("feeds_groups", *c.feedsGroups)
	return nil
}

func (c *call) faviconList() (Node, error) {
	list := List()
	if c.rs.favicons == nil {
		return list, nil
	}
	feeds, err := c.loadFeeds()
	if err != nil {
		return Node{}, err
	}
	for _, f := range feeds {
		data, ok, err := c.rs.favicons.Load(f)
		if err != nil {
			return Node{}, fmt.Errorf("load favicon for feed %d: %w", f.ID, err)
		}
		if !ok {
			continue
		}
		list.Append(Map(
			"id", Int(f.ID),
			"data", String(FaviconData(data)),
		))
	}
	return list, nil
}

// FaviconData renders icon bytes in the protocol's "<mime>;base64,<data>" form.
func FaviconData(data []byte) string {
	return http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (c *call) items() (Node, error) {
	filter := c.req.ItemFilter()

	feedIDs := filter.FeedIDs
	if len(filter.GroupIDs) > 0 {
		groupFeeds, err := c.rs.store.GetFeedIDsByFolderIDs(c.userID, filter.GroupIDs)
		if err != nil {
			return Node{}, fmt.Errorf("expand groups: %w", err)
		}
		feedIDs = unionIDs(feedIDs, groupFeeds)
	}
	if filter.Filtered && len(feedIDs) == 0 {
		return List(), nil
	}

	entries, err := c.rs.paginator.Find(c.userID, feedIDs, filter.WithIDs, filter.MaxID, filter.SinceID, ItemLimit)
	if err != nil {
		return Node{}, err
	}

	feeds, err := c.loadFeeds()
	if err != nil {
		return Node{}, err
	}
	siteURLs := make(map[int64]string, len(feeds))
	for _, f := range feeds {
		siteURLs[f.ID] = f.SiteURL
	}

	list := List()
	for _, it := range entries {
		var created int64
		if !it.PublishedAt.IsZero() {
			created = it.PublishedAt.Unix()
		}
		list.Append(Map(
			"id", Int(it.ID),
			"feed_id", Int(it.FeedID),
			"title", String(it.Title),
			"author", String(it.Author),
			"html", String(c.rs.sanitizer.Sanitize(it.Content, siteURLs[it.FeedID])),
			"url", String(it.Link),
			"is_saved", Bool(it.IsFavorite),
			"is_read", Bool(it.IsRead),
			"created_on_time", Int(created),
		))
	}
	return list, nil
}

func (c *call) setIDSection(sections *Node, name string) error {
	var ids []int64
	var err error
	switch name {
	case FlagUnreadItemIDs:
		ids, err = c.rs.store.GetUnreadItemIDs(c.userID)
	case FlagSavedItemIDs:
		ids, err = c.rs.store.GetSavedItemIDs(c.userID)
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", name, err)
	}
	sections.Set(name, String(joinIDs(ids)))
	return nil
}

func (c *call) mark(sections *Node) error {
	req := c.req
	cmd, ok := ParseMark(req.Value(FieldMark), req.Value(FieldAs), req.Value(FieldID), req.Value(FieldBefore))
	if !ok {
		c.rs.logger.Debug("ignoring mark with non-numeric id", "id", req.Value(FieldID))
		return nil
	}

	action, err := c.rs.dispatcher.Apply(c.userID, cmd)
	if err != nil {
		return err
	}
	if action == ActionNone {
		c.rs.logger.Debug("ignoring unsupported mark", "mark", cmd.Target, "as", cmd.State)
		return nil
	}
	metrics.RecordMark(action.String())
	c.rs.logger.Debug("mark applied", "user", c.req.User.Name, "action", action, "id", cmd.ID)

	return c.setIDSection(sections, action.Section())
}

func unionIDs(a, b []int64) []int64 {
	seen := make(map[int64]bool, len(a)+len(b))
	var out []int64
	for _, ids := range [][]int64{a, b} {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
