package qcache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/typeahead/go-typeahead/apierror"
	"github.com/typeahead/go-typeahead/search/model"
	"github.com/typeahead/go-typeahead/trigger"
)

var log = logging.Logger("qcache")

// Cache caches search results per query on top of another trigger.Fetcher.
type Cache struct {
	fetcher    trigger.Fetcher
	ttl        time.Duration
	errTTL     time.Duration
	maxEntries int

	read      atomic.Pointer[readOnly]
	write     map[string]*entry
	writeLock chan struct{}

	needsRefresh atomic.Bool
	refreshIn    time.Duration
	refreshTimer *time.Timer
}

// Cache must implement the trigger's Fetcher so it can wrap one.
var _ trigger.Fetcher = (*Cache)(nil)

// entry is an immutable cached outcome for one query. A non-nil err marks a
// negative entry.
type entry struct {
	resp      *model.SearchResponse
	err       error
	expiresAt time.Time
}

// readOnly is an immutable struct stored atomically in the cache read
// field. The m map is the main cache data and the u map contains updates
// that have not yet been moved into the main map, so that a small number of
// updates do not cause the entire main map to be regenerated. A nil value
// in u overrides an entry in m that has been removed.
type readOnly struct {
	m map[string]*entry
	u map[string]*entry
}

// New creates a new query result cache wrapping fetcher.
func New(fetcher trigger.Fetcher, options ...Option) (*Cache, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		fetcher:    fetcher,
		ttl:        opts.ttl,
		errTTL:     opts.errTTL,
		maxEntries: opts.maxEntries,
		refreshIn:  opts.refreshIn,

		write:     make(map[string]*entry),
		writeLock: make(chan struct{}, 1),
	}

	if opts.refreshIn != 0 {
		c.refreshTimer = time.AfterFunc(opts.refreshIn, func() {
			c.needsRefresh.Store(true)
		})
	}

	return c, nil
}

// Search returns the cached outcome for query, fetching from the wrapped
// fetcher on a miss or on an expired entry. Concurrent misses for the same
// query result in a single fetch.
func (c *Cache) Search(ctx context.Context, query string) (*model.SearchResponse, error) {
	read := c.loadReadOnly()

	ent, ok := read.u[query]
	if !ok {
		ent = read.m[query]
	}
	if ent != nil && time.Now().Before(ent.expiresAt) {
		// If a refresh interval is defined, and elapsed, then prune expired
		// entries.
		if c.refreshTimer != nil && c.needsRefresh.CompareAndSwap(true, false) {
			go func() {
				c.Refresh(context.Background())
				c.refreshTimer.Reset(c.refreshIn)
			}()
		}
		// Cache hit.
		return ent.resp, ent.err
	}

	return c.fetchMissing(ctx, query)
}

// Len returns the number of cached queries, including entries that have
// expired but have not been pruned yet.
func (c *Cache) Len() int {
	read := c.loadReadOnly()
	n := len(read.m)
	for q, ent := range read.u {
		_, inMain := read.m[q]
		if ent == nil {
			if inMain {
				n--
			}
		} else if !inMain {
			n++
		}
	}
	return n
}

// Refresh removes expired entries. It runs on its own when the refresh
// interval elapses, and may also be called explicitly.
func (c *Cache) Refresh(ctx context.Context) error {
	select {
	case c.writeLock <- struct{}{}:
	default:
		// Refresh already in progress, wait for it to finish.
		select {
		case c.writeLock <- struct{}{}:
			<-c.writeLock
		case <-ctx.Done():
		}
		return ctx.Err()
	}
	defer func() {
		<-c.writeLock
	}()

	now := time.Now()
	read := c.loadReadOnly()

	// Shallow-copy update map.
	updates := make(map[string]*entry, len(read.u))
	for q, ent := range read.u {
		updates[q] = ent
	}

	var pruned int
	for q, ent := range c.write {
		if now.After(ent.expiresAt) {
			delete(c.write, q)
			// Store nil in updates to override anything in the main map.
			updates[q] = nil
			pruned++
		}
	}
	if pruned != 0 {
		log.Debugw("Pruned expired entries", "count", pruned, "remaining", len(c.write))
		c.publish(read, updates)
	}
	return nil
}

// Close stops the refresh timer. The cache remains usable afterwards, but
// expired entries are no longer pruned automatically.
func (c *Cache) Close() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
}

// String returns a description of the cache and its wrapped fetcher.
func (c *Cache) String() string {
	return "cache(" + c.fetcher.String() + ")"
}

func (c *Cache) loadReadOnly() readOnly {
	if p := c.read.Load(); p != nil {
		return *p
	}
	return readOnly{}
}

// fetchMissing fetches the outcome for a query that is missing from the
// cache or whose entry expired. The write lock serializes fetches, so a
// miss that raced with an identical query is served from the entry that
// query stored.
func (c *Cache) fetchMissing(ctx context.Context, query string) (*model.SearchResponse, error) {
	select {
	case c.writeLock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() {
		<-c.writeLock
	}()

	// Stored by previous request while waiting for the write lock.
	if ent, ok := c.write[query]; ok && time.Now().Before(ent.expiresAt) {
		return ent.resp, ent.err
	}

	resp, err := c.fetcher.Search(ctx, query)
	if err != nil {
		if apierror.IsCancellation(err) {
			// The fetch did not run to completion, so there is no outcome
			// to cache.
			return nil, err
		}
		log.Errorw("Cannot fetch results", "err", err, "query", query, "fetcher", c.fetcher)
		// Negative entry, so a failing query does not hit the endpoint on
		// every keystroke.
		c.store(query, &entry{err: err, expiresAt: time.Now().Add(c.errTTL)})
		return nil, err
	}

	c.store(query, &entry{resp: resp, expiresAt: time.Now().Add(c.ttl)})
	return resp, nil
}

// store records ent for query and publishes it to the read-only data.
// Caller must hold the write lock.
func (c *Cache) store(query string, ent *entry) {
	c.write[query] = ent
	removed := c.evict()

	read := c.loadReadOnly()

	// Shallow-copy update map.
	updates := make(map[string]*entry, len(read.u)+1)
	for q, e := range read.u {
		updates[q] = e
	}
	updates[query] = ent
	for _, q := range removed {
		// Store nil in updates to override anything in the main map.
		updates[q] = nil
	}

	c.publish(read, updates)
}

// evict enforces the entry bound: expired entries are removed first, then
// the entries closest to expiry. Returns the evicted queries. Caller must
// hold the write lock.
func (c *Cache) evict() []string {
	if c.maxEntries == 0 || len(c.write) <= c.maxEntries {
		return nil
	}

	var removed []string
	now := time.Now()
	for q, ent := range c.write {
		if now.After(ent.expiresAt) {
			delete(c.write, q)
			removed = append(removed, q)
		}
	}

	for len(c.write) > c.maxEntries {
		var oldest string
		var oldestAt time.Time
		for q, ent := range c.write {
			if oldestAt.IsZero() || ent.expiresAt.Before(oldestAt) {
				oldest = q
				oldestAt = ent.expiresAt
			}
		}
		delete(c.write, oldest)
		removed = append(removed, oldest)
	}
	if len(removed) != 0 {
		log.Debugw("Evicted entries", "count", len(removed))
	}
	return removed
}

// publish replaces the read-only data with read.m and the given updates,
// merging the updates into a regenerated main map when the update map has
// grown large relative to the main map. Caller must hold the write lock.
func (c *Cache) publish(read readOnly, updates map[string]*entry) {
	// If the update map is small relative to the main map, do not generate
	// a new main map yet.
	if !needMerge(len(updates), len(read.m)) {
		c.read.Store(&readOnly{m: read.m, u: updates})
		return
	}

	// Generate main map.
	m := make(map[string]*entry, len(c.write))
	for q := range c.write {
		ent, ok := updates[q]
		if !ok {
			ent, ok = read.u[q]
			if !ok {
				ent = read.m[q]
			}
		}
		if ent != nil {
			m[q] = ent
		}
	}
	c.read.Store(&readOnly{m: m})
}

// needMerge returns true if update set u should be merged into main set m,
// to maintain the lowest overall cost of applying cache updates. The
// optimal time to merge is when the cumulative cost of iterating u exceeds
// the cost of iterating m.
func needMerge(u, m int) bool {
	return u*(u+1) > m*2
}
