// Package favicon stores feed icons on disk.
package favicon

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bryan-buckman/feverd/internal/model"
)

// Store keeps one icon file per feed under dir. File names are derived
// from the salted feed URL so they cannot be guessed from the URL alone.
type Store struct {
	dir  string
	salt string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir, salt string) *Store {
	return &Store{dir: dir, salt: salt}
}

// Path returns the icon file for feed.
func (s *Store) Path(feed model.Feed) string {
	sum := crc32.ChecksumIEEE([]byte(s.salt + feed.URL))
	return filepath.Join(s.dir, fmt.Sprintf("%08x.ico", sum))
}

// Load reads the icon for feed. ok is false when no icon has been stored.
func (s *Store) Load(feed model.Feed) ([]byte, bool, error) {
	data, err := os.ReadFile(s.Path(feed))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read favicon: %w", err)
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

// Has reports whether an icon has been stored for feed.
func (s *Store) Has(feed model.Feed) bool {
	info, err := os.Stat(s.Path(feed))
	return err == nil && info.Size() > 0
}

// Save writes data as the icon for feed, replacing any previous one.
func (s *Store) Save(feed model.Feed, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create favicon dir: %w", err)
	}

	path := s.Path(feed)
	tmp, err := os.CreateTemp(s.dir, ".favicon-*")
	if err != nil {
		return fmt.Errorf("create favicon: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write favicon: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write favicon: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write favicon: %w", err)
	}
	return nil
}
