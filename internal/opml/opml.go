// Package opml handles importing and exporting OPML files.
package opml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/bryan-buckman/feverd/internal/model"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (folder or feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// FeedEntry represents a flattened feed with its folder path.
type FeedEntry struct {
	FolderPath []string // e.g., ["Tech", "Google"]
	Title      string
	URL        string
}

// Parse reads an OPML document and returns a flat list of FeedEntry.
func Parse(r io.Reader) ([]FeedEntry, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var entries []FeedEntry
	var walk func(outlines []Outline, path []string)
	walk = func(outlines []Outline, path []string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				if title == "" {
					title = o.XMLURL
				}
				entries = append(entries, FeedEntry{
					FolderPath: append([]string{}, path...),
					Title:      title,
					URL:        o.XMLURL,
				})
			} else if len(o.Outlines) > 0 {
				name := o.Text
				if name == "" {
					name = o.Title
				}
				walk(o.Outlines, append(path[:len(path):len(path)], name))
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return entries, nil
}

// Importer creates the folders and feeds named by an OPML file.
type Importer interface {
	GetOrCreateFolder(userID int64, name string, parentID *int64) (int64, error)
	GetOrCreateFeed(userID int64, folderID *int64, title, url string) (int64, bool, error)
}

// Import files entries under userID, creating the folder hierarchy as
// needed. It returns the number of feeds that did not exist yet. Entries
// that fail are skipped and their errors joined.
func Import(store Importer, userID int64, entries []FeedEntry) (int, error) {
	imported := 0
	var errs []error
	for _, entry := range entries {
		var folderID *int64
		var err error
		for _, folderName := range entry.FolderPath {
			var id int64
			if id, err = store.GetOrCreateFolder(userID, folderName, folderID); err != nil {
				err = fmt.Errorf("folder %s: %w", folderName, err)
				break
			}
			folderID = &id
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		_, isNew, err := store.GetOrCreateFeed(userID, folderID, entry.Title, entry.URL)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", entry.URL, err))
			continue
		}
		if isNew {
			imported++
		}
	}
	return imported, errors.Join(errs...)
}

// Export renders feeds as an OPML document, nesting them under their
// folders. Folders without feeds are omitted.
func Export(title string, folders []model.Folder, feeds []model.Feed) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: time.Now().Format(time.RFC1123Z),
		},
	}

	children := make(map[int64][]model.Folder)
	var roots []model.Folder
	for _, f := range folders {
		if f.ParentID == nil {
			roots = append(roots, f)
		} else {
			children[*f.ParentID] = append(children[*f.ParentID], f)
		}
	}

	byFolder := make(map[int64][]Outline)
	var unfiled []Outline
	for _, feed := range feeds {
		o := Outline{
			Text:    feed.Title,
			Title:   feed.Title,
			Type:    "rss",
			XMLURL:  feed.URL,
			HTMLURL: feed.SiteURL,
		}
		if feed.FolderID == nil {
			unfiled = append(unfiled, o)
		} else {
			byFolder[*feed.FolderID] = append(byFolder[*feed.FolderID], o)
		}
	}

	var build func(f model.Folder) (Outline, bool)
	build = func(f model.Folder) (Outline, bool) {
		o := Outline{Text: f.Name, Title: f.Name}
		for _, child := range sortFolders(children[f.ID]) {
			if co, ok := build(child); ok {
				o.Outlines = append(o.Outlines, co)
			}
		}
		o.Outlines = append(o.Outlines, sortOutlines(byFolder[f.ID])...)
		return o, len(o.Outlines) > 0
	}

	for _, f := range sortFolders(roots) {
		if o, ok := build(f); ok {
			doc.Body.Outlines = append(doc.Body.Outlines, o)
		}
	}
	doc.Body.Outlines = append(doc.Body.Outlines, sortOutlines(unfiled)...)

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}

func sortFolders(folders []model.Folder) []model.Folder {
	sort.SliceStable(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	return folders
}

func sortOutlines(outlines []Outline) []Outline {
	sort.SliceStable(outlines, func(i, j int) bool { return outlines[i].Title < outlines[j].Title })
	return outlines
}
