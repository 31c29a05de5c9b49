// Package qcache provides a lock-free query result cache for concurrent
// reads.
//
// Typeahead input revisits the same values constantly: deleting and
// retyping a character re-issues the query for the shorter prefix, and
// separate sessions tend to search for the same things. Cache wraps a
// trigger.Fetcher with a small per-query cache so those repeats are served
// without touching the network. Cache is itself a trigger.Fetcher, so it
// drops directly between a Trigger and the HTTP search client.
//
// ## Reads and Writes
//
// Cached data is read from an immutable snapshot that is replaced
// atomically, so lookups never contend on a lock. Writes are serialized by
// a write lock, which also gives single-flight behavior: concurrent misses
// for the same query perform one fetch, and the late arrivals are served
// from the freshly stored entry.
//
// ## Expiry and Negative Entries
//
// Entries expire after the configured time-to-live. A failed fetch is
// cached as a negative entry with a short time-to-live, which keeps a
// failing endpoint from being hammered on every keystroke while still
// retrying soon. Cancellation of the caller's context is never cached.
//
// ## Refresh
//
// If the refresh interval is non-zero, a timer sets a flag to indicate that
// a refresh is required. The next cache lookup checks the flag and, if
// indicated, launches a goroutine to prune expired entries and reset the
// timer. This way there is no background goroutine that needs to be
// stopped when done with the cache, and there will be no activity if the
// cache is not being actively used. A refresh can also be explicitly
// requested.
package qcache
