package rss

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/feverd/internal/database"
	"github.com/bryan-buckman/feverd/internal/model"
	log "gopkg.in/inconshreveable/log15.v2"
)

// maxIconSize bounds downloaded icons and the pages scanned for them.
const maxIconSize = 1 << 20

var errNotAnImage = errors.New("response is not an image")

// IconStore persists downloaded icons.
type IconStore interface {
	Has(feed model.Feed) bool
	Save(feed model.Feed, data []byte) error
}

// FaviconFetcher downloads a site icon for feeds that have none stored.
type FaviconFetcher struct {
	client *http.Client
	icons  IconStore
	db     database.Store
	logger log.Logger
}

// NewFaviconFetcher returns a FaviconFetcher saving into icons.
func NewFaviconFetcher(db database.Store, icons IconStore, logger log.Logger) *FaviconFetcher {
	return &FaviconFetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		icons:  icons,
		db:     db,
		logger: logger,
	}
}

// Fetch stores the icon of feed's site unless one is already stored.
func (ff *FaviconFetcher) Fetch(ctx context.Context, feed model.Feed) error {
	if feed.SiteURL == "" || ff.icons.Has(feed) {
		return nil
	}

	iconURL := feed.IconURL
	if iconURL == "" {
		var err error
		if iconURL, err = ff.Discover(ctx, feed.SiteURL); err != nil {
			return err
		}
	}

	data, err := ff.download(ctx, iconURL)
	if err != nil {
		return fmt.Errorf("download %s: %w", iconURL, err)
	}
	if err := ff.icons.Save(feed, data); err != nil {
		return err
	}
	if iconURL != feed.IconURL {
		if err := ff.db.UpdateFeedIconURL(feed.ID, iconURL); err != nil {
			return err
		}
	}
	ff.logger.Debug("stored favicon", "feed_id", feed.ID, "url", iconURL)
	return nil
}

// Discover returns the icon URL declared by the page at siteURL, or
// /favicon.ico on the same host when the page declares none.
func (ff *FaviconFetcher) Discover(ctx context.Context, siteURL string) (string, error) {
	base, err := url.Parse(siteURL)
	if err != nil {
		return "", fmt.Errorf("parse site url: %w", err)
	}
	fallback := base.ResolveReference(&url.URL{Path: "/favicon.ico"}).String()

	resp, err := ff.get(ctx, siteURL)
	if err != nil {
		return fallback, nil
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxIconSize))
	if err != nil {
		return fallback, nil
	}

	href, ok := doc.Find("link[rel~=icon]").First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return fallback, nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return fallback, nil
	}
	return resp.Request.URL.ResolveReference(ref).String(), nil
}

func (ff *FaviconFetcher) download(ctx context.Context, iconURL string) ([]byte, error) {
	resp, err := ff.get(ctx, iconURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIconSize))
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(http.DetectContentType(data), "image/") {
		return nil, errNotAnImage
	}
	return data, nil
}

func (ff *FaviconFetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := ff.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp, nil
}
