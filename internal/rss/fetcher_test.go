package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryan-buckman/feverd/internal/database"
	"github.com/bryan-buckman/feverd/internal/favicon"
	"github.com/bryan-buckman/feverd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	log "gopkg.in/inconshreveable/log15.v2"
)

// 1x1 transparent GIF.
var gifIcon = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

func discardLogger() log.Logger {
	logger := log.New()
	logger.SetHandler(log.DiscardHandler())
	return logger
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "feverd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example Blog</title>
    <link>%[1]s/</link>
    <item>
      <title>First</title>
      <link>%[1]s/first</link>
      <guid>first</guid>
      <author>ann@example.com (Ann)</author>
      <description>&lt;p&gt;one&lt;/p&gt;</description>
      <pubDate>Tue, 14 Nov 2023 22:13:20 +0000</pubDate>
    </item>
    <item>
      <title>Second</title>
      <link>%[1]s/second</link>
      <description>two</description>
    </item>
    <item>
      <title>No id</title>
    </item>
  </channel>
</rss>`, srv.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><link rel="shortcut icon" href="/static/icon.gif"></head><body></body></html>`)
	})
	mux.HandleFunc("/static/icon.gif", func(w http.ResponseWriter, r *http.Request) {
		w.Write(gifIcon)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not a feed")
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFeed(t *testing.T) {
	srv := newSite(t)
	db := newTestDB(t)

	userID, err := db.CreateUser("alice")
	require.NoError(t, err)
	feedURL := srv.URL + "/feed"
	feedID, err := db.CreateFeed(userID, nil, feedURL, feedURL)
	require.NoError(t, err)

	icons := favicon.NewStore(t.TempDir(), "salt")
	fetcher := NewFetcher(db, discardLogger()).WithFavicons(NewFaviconFetcher(db, icons, discardLogger()))

	feeds, err := db.GetFeeds(userID)
	require.NoError(t, err)
	n, err := fetcher.FetchFeed(context.Background(), feeds[0])
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	feeds, err = db.GetFeeds(userID)
	require.NoError(t, err)
	feed := feeds[0]
	assert.Equal(t, "Example Blog", feed.Title)
	assert.Equal(t, srv.URL+"/", feed.SiteURL)
	assert.Equal(t, srv.URL+"/static/icon.gif", feed.IconURL)
	assert.NotZero(t, feed.LastUpdated())

	items, err := db.ScanItems(userID, model.ItemQuery{Limit: 50})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].GUID)
	assert.Equal(t, "Ann", items[0].Author)
	assert.Equal(t, "<p>one</p>", items[0].Content)
	assert.Equal(t, int64(1700000000), items[0].PublishedAt.Unix())
	assert.Equal(t, srv.URL+"/second", items[1].GUID)
	assert.Equal(t, feedID, items[1].FeedID)

	data, ok, err := icons.Load(feed)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, gifIcon, data)

	// A second fetch adds nothing.
	n, err = fetcher.FetchFeed(context.Background(), feed)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFetchFeedRecordsError(t *testing.T) {
	srv := newSite(t)
	db := newTestDB(t)

	userID, err := db.CreateUser("alice")
	require.NoError(t, err)
	_, err = db.CreateFeed(userID, nil, "Broken", srv.URL+"/broken")
	require.NoError(t, err)

	feeds, err := db.GetFeeds(userID)
	require.NoError(t, err)
	_, err = NewFetcher(db, discardLogger()).FetchFeed(context.Background(), feeds[0])
	assert.Error(t, err)

	feeds, err = db.GetFeeds(userID)
	require.NoError(t, err)
	assert.NotEmpty(t, feeds[0].LastError)
	assert.Zero(t, feeds[0].LastUpdated())
}

func TestFetchAll(t *testing.T) {
	srv := newSite(t)
	db := newTestDB(t)

	for _, name := range []string{"alice", "bob"} {
		userID, err := db.CreateUser(name)
		require.NoError(t, err)
		_, err = db.CreateFeed(userID, nil, "Example", srv.URL+"/feed")
		require.NoError(t, err)
	}

	results, err := NewFetcher(db, discardLogger()).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 2)
	for _, n := range results {
		assert.Equal(t, 2, n)
	}
}

func TestDiscoverFallsBackToFaviconICO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><link rel="apple-touch-icon" href="/touch.png"></head></html>`)
	}))
	defer srv.Close()

	ff := NewFaviconFetcher(nil, favicon.NewStore(t.TempDir(), ""), discardLogger())
	iconURL, err := ff.Discover(context.Background(), srv.URL+"/blog/")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/favicon.ico", iconURL)
}

func TestDomainLimiter(t *testing.T) {
	dl := newDomainLimiter()
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < MaxConcurrencyPerDomain; i++ {
		require.NoError(t, dl.acquire(ctx, "example.com"))
	}
	cancel()
	assert.ErrorIs(t, dl.acquire(ctx, "example.com"), context.Canceled)

	dl.release("example.com")
	assert.Equal(t, "example.com", extractDomain("https://example.com/feed"))
}

func TestPollerInterval(t *testing.T) {
	db := newTestDB(t)
	p := NewPoller(db, NewFetcher(db, discardLogger()), discardLogger())
	assert.Equal(t, MinPollingIntervalMinutes, p.interval())

	require.NoError(t, db.SetSetting(model.SettingPollingInterval, "5"))
	assert.Equal(t, MinPollingIntervalMinutes, p.interval())

	require.NoError(t, db.SetSetting(model.SettingPollingInterval, "45"))
	assert.Equal(t, 45, p.interval())
}

func TestPollerStartStop(t *testing.T) {
	db := newTestDB(t)
	p := NewPoller(db, NewFetcher(db, discardLogger()), discardLogger())
	p.Start()
	p.Stop()
}

func TestPollerStopCancelsFetch(t *testing.T) {
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	db := newTestDB(t)
	userID, err := db.CreateUser("alice")
	require.NoError(t, err)
	_, err = db.CreateFeed(userID, nil, "Slow", srv.URL+"/feed")
	require.NoError(t, err)

	p := NewPoller(db, NewFetcher(db, discardLogger()), discardLogger())
	p.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never reached the server")
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not cancel the running fetch")
	}
}
