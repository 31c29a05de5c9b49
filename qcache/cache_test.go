package qcache_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/typeahead/go-typeahead/qcache"
	"github.com/typeahead/go-typeahead/search/model"
)

type mockFetcher struct {
	search func(ctx context.Context, query string) (*model.SearchResponse, error)
	calls  atomic.Int32
}

func (f *mockFetcher) Search(ctx context.Context, query string) (*model.SearchResponse, error) {
	f.calls.Add(1)
	if f.search != nil {
		return f.search(ctx, query)
	}
	return &model.SearchResponse{
		Results: []model.Item{{Title: query}},
		Total:   1,
	}, nil
}

func (f *mockFetcher) String() string {
	return "mock fetcher"
}

func TestCacheHit(t *testing.T) {
	fetcher := &mockFetcher{}
	c, err := qcache.New(fetcher)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	resp, err := c.Search(ctx, "gopher")
	require.NoError(t, err)
	require.Equal(t, "gopher", resp.Results[0].Title)

	again, err := c.Search(ctx, "gopher")
	require.NoError(t, err)
	require.Equal(t, resp, again)
	require.Equal(t, int32(1), fetcher.calls.Load())

	_, err = c.Search(ctx, "badger")
	require.NoError(t, err)
	require.Equal(t, int32(2), fetcher.calls.Load())
	require.Equal(t, 2, c.Len())
}

func TestSingleFlight(t *testing.T) {
	release := make(chan struct{})
	fetcher := &mockFetcher{
		search: func(ctx context.Context, query string) (*model.SearchResponse, error) {
			<-release
			return &model.SearchResponse{Results: []model.Item{{Title: query}}}, nil
		},
	}
	c, err := qcache.New(fetcher)
	require.NoError(t, err)
	defer c.Close()

	const readers = 5
	errChan := make(chan error, readers)
	var wg sync.WaitGroup
	wg.Add(readers)
	for i := 0; i < readers; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Search(context.Background(), "gopher")
			errChan <- err
		}()
	}

	// Give the readers time to pile up on the write lock, then let the one
	// fetch complete.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.NoError(t, <-errChan)
	}
	require.Equal(t, int32(1), fetcher.calls.Load())
}

func TestExpiry(t *testing.T) {
	fetcher := &mockFetcher{}
	c, err := qcache.New(fetcher, qcache.WithTTL(20*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Search(ctx, "gopher")
	require.NoError(t, err)
	_, err = c.Search(ctx, "gopher")
	require.NoError(t, err)
	require.Equal(t, int32(1), fetcher.calls.Load())

	time.Sleep(30 * time.Millisecond)

	_, err = c.Search(ctx, "gopher")
	require.NoError(t, err)
	require.Equal(t, int32(2), fetcher.calls.Load())
}

func TestNegativeEntry(t *testing.T) {
	errBackend := errors.New("backend exploded")
	fetcher := &mockFetcher{
		search: func(ctx context.Context, query string) (*model.SearchResponse, error) {
			return nil, errBackend
		},
	}
	c, err := qcache.New(fetcher, qcache.WithErrorTTL(20*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Search(ctx, "gopher")
	require.ErrorIs(t, err, errBackend)

	// The failure is served from cache until the negative entry expires.
	_, err = c.Search(ctx, "gopher")
	require.ErrorIs(t, err, errBackend)
	require.Equal(t, int32(1), fetcher.calls.Load())

	time.Sleep(30 * time.Millisecond)

	_, err = c.Search(ctx, "gopher")
	require.ErrorIs(t, err, errBackend)
	require.Equal(t, int32(2), fetcher.calls.Load())
}

func TestCancellationNotCached(t *testing.T) {
	fetcher := &mockFetcher{
		search: func(ctx context.Context, query string) (*model.SearchResponse, error) {
			return nil, context.Canceled
		},
	}
	c, err := qcache.New(fetcher)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Search(ctx, "gopher")
	require.ErrorIs(t, err, context.Canceled)

	_, err = c.Search(ctx, "gopher")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(2), fetcher.calls.Load())
}

func TestMaxEntries(t *testing.T) {
	fetcher := &mockFetcher{}
	c, err := qcache.New(fetcher, qcache.WithMaxEntries(2))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err = c.Search(ctx, fmt.Sprintf("query-%d", i))
		require.NoError(t, err)
		// Keep insertion times distinct so eviction order is stable.
		time.Sleep(2 * time.Millisecond)
	}
	require.Equal(t, int32(3), fetcher.calls.Load())
	require.Equal(t, 2, c.Len())

	// The oldest entry was evicted, so it is fetched again.
	_, err = c.Search(ctx, "query-0")
	require.NoError(t, err)
	require.Equal(t, int32(4), fetcher.calls.Load())

	// The newest entry is still cached.
	_, err = c.Search(ctx, "query-2")
	require.NoError(t, err)
	require.Equal(t, int32(4), fetcher.calls.Load())
}

func TestRefreshPrunes(t *testing.T) {
	fetcher := &mockFetcher{}
	c, err := qcache.New(fetcher, qcache.WithTTL(10*time.Millisecond))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	_, err = c.Search(ctx, "gopher")
	require.NoError(t, err)
	_, err = c.Search(ctx, "badger")
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Refresh(ctx))
	require.Equal(t, 0, c.Len())
}

func TestString(t *testing.T) {
	c, err := qcache.New(&mockFetcher{})
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, "cache(mock fetcher)", c.String())
}
