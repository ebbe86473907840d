// Package rss provides feed fetching and parsing.
package rss

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/bryan-buckman/feverd/internal/database"
	"github.com/bryan-buckman/feverd/internal/metrics"
	"github.com/bryan-buckman/feverd/internal/model"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"
	log "gopkg.in/inconshreveable/log15.v2"
)

// MinPollingIntervalMinutes is the minimum allowed interval.
const MinPollingIntervalMinutes = database.MinPollingIntervalMinutes

// Concurrency settings
const (
	// MaxConcurrencyPostgres is the number of parallel fetches for PostgreSQL
	MaxConcurrencyPostgres = 10
	// MaxConcurrencySQLite is the number of parallel fetches for SQLite (limited due to locking)
	MaxConcurrencySQLite = 1
	// MaxConcurrencyPerDomain limits parallel requests to any single domain
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests is the minimum delay between requests to the same domain
	DelayBetweenDomainRequests = 500 * time.Millisecond
)

const userAgent = "feverd/1.0"

// maxErrorLength bounds the error text stored on a feed.
const maxErrorLength = 200

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
type domainLimiter struct {
	mu          sync.Mutex
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

func newDomainLimiter() *domainLimiter {
	return &domainLimiter{
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the domain, blocking if necessary.
// It also enforces the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, MaxConcurrencyPerDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		if elapsed := time.Since(lastReq); elapsed < DelayBetweenDomainRequests {
			select {
			case <-time.After(DelayBetweenDomainRequests - elapsed):
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}

	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	return u.Host
}

// Fetcher handles RSS feed fetching.
type Fetcher struct {
	db            database.Store
	parser        *gofeed.Parser
	concurrency   int
	domainLimiter *domainLimiter
	favicons      *FaviconFetcher
	logger        log.Logger
}

// NewFetcher creates a new fetcher with concurrency based on database type.
func NewFetcher(db database.Store, logger log.Logger) *Fetcher {
	concurrency := MaxConcurrencySQLite
	if db.SupportsHighConcurrency() {
		concurrency = MaxConcurrencyPostgres
	}
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	return &Fetcher{
		db:            db,
		parser:        parser,
		concurrency:   concurrency,
		domainLimiter: newDomainLimiter(),
		logger:        logger,
	}
}

// WithFavicons makes the fetcher look up a site icon for every feed it
// fetches successfully.
func (f *Fetcher) WithFavicons(ff *FaviconFetcher) *Fetcher {
	f.favicons = ff
	return f
}

// FetchFeed fetches and parses a single feed, storing new items.
// Returns the number of new items added.
func (f *Fetcher) FetchFeed(ctx context.Context, feed model.Feed) (int, error) {
	count, err := f.fetchFeed(ctx, feed)
	metrics.RecordFetch(err, count)
	return count, err
}

func (f *Fetcher) fetchFeed(ctx context.Context, feed model.Feed) (int, error) {
	domain := extractDomain(feed.URL)
	if err := f.domainLimiter.acquire(ctx, domain); err != nil {
		return 0, fmt.Errorf("rate limit cancelled for %s: %w", feed.URL, err)
	}
	defer f.domainLimiter.release(domain)

	parsed, err := f.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		errMsg := err.Error()
		if len(errMsg) > maxErrorLength {
			errMsg = errMsg[:maxErrorLength]
		}
		if uerr := f.db.UpdateFeedError(feed.ID, errMsg); uerr != nil {
			f.logger.Error("could not record feed error", "feed_id", feed.ID, "error", uerr)
		}
		return 0, fmt.Errorf("parse feed %s: %w", feed.URL, err)
	}

	// Replace the title only while it is still the placeholder URL.
	if parsed.Title != "" && parsed.Title != feed.Title && feed.Title == feed.URL {
		if err := f.db.UpdateFeedTitle(feed.ID, parsed.Title); err != nil {
			f.logger.Error("could not update feed title", "feed_id", feed.ID, "error", err)
		} else {
			f.logger.Info("updated feed title", "url", feed.URL, "title", parsed.Title)
			feed.Title = parsed.Title
		}
	}

	if parsed.Link != "" && parsed.Link != feed.SiteURL {
		if err := f.db.UpdateFeedSiteURL(feed.ID, parsed.Link); err != nil {
			f.logger.Error("could not update feed site url", "feed_id", feed.ID, "error", err)
		} else {
			feed.SiteURL = parsed.Link
		}
	}

	now := time.Now()
	newCount := 0
	for _, item := range parsed.Items {
		guid := item.GUID
		if guid == "" {
			guid = item.Link
		}
		if guid == "" {
			continue
		}
		pubDate := now
		if item.PublishedParsed != nil {
			pubDate = *item.PublishedParsed
		}
		dbItem := &model.Item{
			FeedID:      feed.ID,
			GUID:        guid,
			Title:       item.Title,
			Author:      itemAuthor(item),
			Content:     item.Content,
			Link:        item.Link,
			PublishedAt: pubDate,
			FetchedAt:   now,
		}
		if dbItem.Content == "" {
			dbItem.Content = item.Description
		}
		_, isNew, err := f.db.AddItem(dbItem)
		if err != nil {
			f.logger.Error("could not add item", "feed_id", feed.ID, "guid", guid, "error", err)
			continue
		}
		if isNew {
			newCount++
		}
	}

	// Also clears any previous error.
	if err := f.db.UpdateFeedLastFetched(feed.ID, now); err != nil {
		f.logger.Error("could not update last fetched", "feed_id", feed.ID, "error", err)
	}

	if f.favicons != nil {
		if err := f.favicons.Fetch(ctx, feed); err != nil {
			f.logger.Debug("favicon fetch failed", "feed_id", feed.ID, "error", err)
		}
	}

	return newCount, nil
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	for _, a := range item.Authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}

// FetchAll fetches all feeds with configurable concurrency.
// Uses parallel workers for PostgreSQL, sequential for SQLite.
// Returns a map of feed ID -> new item count.
func (f *Fetcher) FetchAll(ctx context.Context) (map[int64]int, error) {
	feeds, err := f.db.GetAllFeeds()
	if err != nil {
		return nil, err
	}

	if len(feeds) == 0 {
		return make(map[int64]int), nil
	}

	f.logger.Info("fetching feeds", "count", len(feeds), "concurrency", f.concurrency)

	if f.concurrency <= 1 {
		return f.fetchSequential(ctx, feeds)
	}
	return f.fetchParallel(ctx, feeds)
}

// fetchSequential fetches feeds one at a time (for SQLite).
func (f *Fetcher) fetchSequential(ctx context.Context, feeds []model.Feed) (map[int64]int, error) {
	results := make(map[int64]int)

	for i, feed := range feeds {
		if err := ctx.Err(); err != nil {
			f.logger.Warn("fetch cancelled", "done", i, "total", len(feeds))
			return results, err
		}

		count, err := f.FetchFeed(ctx, feed)
		if err != nil {
			f.logger.Warn("failed to fetch feed", "url", feed.URL, "error", err)
			continue
		}
		results[feed.ID] = count

		if (i+1)%50 == 0 {
			f.logger.Info("fetch progress", "done", i+1, "total", len(feeds))
		}
	}

	return results, nil
}

// fetchParallel fetches feeds with at most f.concurrency in flight (for PostgreSQL).
func (f *Fetcher) fetchParallel(ctx context.Context, feeds []model.Feed) (map[int64]int, error) {
	var mu sync.Mutex
	results := make(map[int64]int)

	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		feed := feed // per-iteration copy; preserves go1.22 loop semantics under go 1.21
		g.Go(func() error {
			count, err := f.FetchFeed(ctx, feed)
			if err != nil {
				f.logger.Warn("failed to fetch feed", "url", feed.URL, "error", err)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			results[feed.ID] = count
			if len(results)%50 == 0 {
				f.logger.Info("fetch progress", "done", len(results), "total", len(feeds))
			}
			return nil
		})
	}
	g.Wait()

	return results, ctx.Err()
}
