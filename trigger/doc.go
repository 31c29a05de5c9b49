// Package trigger turns a stream of input value changes into debounced,
// cancellable fetches against a search endpoint.
//
// A Trigger watches input, typically the text of a search box, via Update.
// A fetch for the current value is issued only after the input has been
// quiet for the configured delay, so a burst of keystrokes costs one fetch
// instead of one per keystroke. When a newer value arrives, any scheduled
// fetch for the old value is unscheduled and any in-flight fetch is
// canceled.
//
// ## Recency Ordering
//
// Cancellation is cooperative: a canceled fetch may still produce a
// response. Every Update therefore advances a generation counter, and a
// fetch result is applied only if its generation is still current when the
// result arrives. Accepted results are always in input-recency order,
// regardless of the order responses arrive in, and a response for an older
// value never overwrites results for a newer one.
//
// ## Errors
//
// Errors caused by the trigger canceling its own fetches are expected, and
// are logged but never delivered to OnResult readers. Genuine fetch
// failures are delivered as a Result with Err set, so consumers can show an
// error state without the input flow breaking.
package trigger
