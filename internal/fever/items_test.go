package fever

import (
	"testing"
	"time"

	"github.com/bryan-buckman/feverd/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(items []model.Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func span(from, to int64) []int64 {
	var out []int64
	if from <= to {
		for i := from; i <= to; i++ {
			out = append(out, i)
		}
		return out
	}
	for i := from; i >= to; i-- {
		out = append(out, i)
	}
	return out
}

func TestPaginatorForwardScan(t *testing.T) {
	store := newMemStore()
	feed := store.addFeed(1, nil, "a", time.Time{})
	store.addItems(feed, 120)
	p := NewPaginator(store)

	page, err := p.Find(1, nil, nil, nil, nil, ItemLimit)
	require.NoError(t, err)
	assert.Equal(t, span(1, 50), ids(page))

	page, err = p.Find(1, nil, nil, nil, ptr(50), ItemLimit)
	require.NoError(t, err)
	assert.Equal(t, span(51, 100), ids(page))

	page, err = p.Find(1, nil, nil, nil, ptr(100), ItemLimit)
	require.NoError(t, err)
	assert.Equal(t, span(101, 120), ids(page))

	page, err = p.Find(1, nil, nil, nil, ptr(120), ItemLimit)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPaginatorBackwardScan(t *testing.T) {
	store := newMemStore()
	feed := store.addFeed(1, nil, "a", time.Time{})
	store.addItems(feed, 120)
	p := NewPaginator(store)

	page, err := p.Find(1, nil, nil, ptr(101), nil, ItemLimit)
	require.NoError(t, err)
	assert.Equal(t, span(100, 51), ids(page))

	page, err = p.Find(1, nil, nil, ptr(51), nil, ItemLimit)
	require.NoError(t, err)
	assert.Equal(t, span(50, 1), ids(page))
}

func TestPaginatorLimit(t *testing.T) {
	store := newMemStore()
	feed := store.addFeed(1, nil, "a", time.Time{})
	store.addItems(feed, 80)
	p := NewPaginator(store)

	for _, limit := range []int{0, -1, 51, 1000} {
		page, err := p.Find(1, nil, nil, nil, nil, limit)
		require.NoError(t, err)
		assert.Len(t, page, ItemLimit, "limit %d", limit)
	}

	page, err := p.Find(1, nil, nil, nil, nil, 10)
	require.NoError(t, err)
	assert.Len(t, page, 10)

	page, err = p.Find(1, nil, span(1, 80), nil, nil, ItemLimit)
	require.NoError(t, err)
	assert.Len(t, page, ItemLimit)
}

func TestPaginatorEntryIDsAndFeeds(t *testing.T) {
	store := newMemStore()
	a := store.addFeed(1, nil, "a", time.Time{})
	b := store.addFeed(1, nil, "b", time.Time{})
	other := store.addFeed(2, nil, "c", time.Time{})
	store.addItems(a, 3)     // 1-3
	store.addItems(b, 3)     // 4-6
	store.addItems(other, 3) // 7-9
	p := NewPaginator(store)

	page, err := p.Find(1, nil, []int64{6, 2, 8}, nil, nil, ItemLimit)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 6}, ids(page))

	page, err = p.Find(1, []int64{b}, nil, nil, nil, ItemLimit)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5, 6}, ids(page))

	page, err = p.Find(1, []int64{b}, nil, ptr(6), nil, ItemLimit)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4}, ids(page))

	page, err = p.Find(1, []int64{other}, nil, nil, nil, ItemLimit)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestPaginatorStorageFailure(t *testing.T) {
	store := newMemStore()
	store.fail["ScanItems"] = true

	_, err := NewPaginator(store).Find(1, nil, nil, nil, nil, ItemLimit)
	assert.ErrorIs(t, err, errStorage)
}
