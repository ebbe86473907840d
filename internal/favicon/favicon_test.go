package favicon_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bryan-buckman/feverd/internal/favicon"
	"github.com/bryan-buckman/feverd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLoadMissing(t *testing.T) {
	store := favicon.NewStore(t.TempDir(), "salt")

	data, ok, err := store.Load(model.Feed{URL: "https://example.com/feed"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestStoreSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "icons")
	store := favicon.NewStore(dir, "salt")
	feed := model.Feed{ID: 1, URL: "https://example.com/feed"}

	require.NoError(t, store.Save(feed, []byte("icon")))
	assert.True(t, store.Has(feed))

	data, ok, err := store.Load(feed)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("icon"), data)

	require.NoError(t, store.Save(feed, []byte("newer")))
	data, _, err = store.Load(feed)
	require.NoError(t, err)
	assert.Equal(t, []byte("newer"), data)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStorePathDependsOnSalt(t *testing.T) {
	feed := model.Feed{URL: "https://example.com/feed"}
	a := favicon.NewStore("icons", "one").Path(feed)
	b := favicon.NewStore("icons", "two").Path(feed)

	assert.NotEqual(t, a, b)
	assert.Equal(t, ".ico", filepath.Ext(a))
	assert.Equal(t, a, favicon.NewStore("icons", "one").Path(feed))
}

func TestStoreEmptyFileIsMissing(t *testing.T) {
	store := favicon.NewStore(t.TempDir(), "")
	feed := model.Feed{URL: "https://example.com/feed"}
	require.NoError(t, os.WriteFile(store.Path(feed), nil, 0o644))

	_, ok, err := store.Load(feed)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, store.Has(feed))
}
