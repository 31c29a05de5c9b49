package trigger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/channelqueue"
	logging "github.com/ipfs/go-log/v2"
	"github.com/typeahead/go-typeahead/apierror"
	"github.com/typeahead/go-typeahead/search/model"
	"golang.org/x/time/rate"
)

var log = logging.Logger("trigger")

// Fetcher supplies search results for a query. A Fetcher must honor context
// cancellation, returning as soon as practical once the context is
// canceled.
type Fetcher interface {
	// Search gets the results for a single query.
	Search(ctx context.Context, query string) (*model.SearchResponse, error)
	// String returns a description of the fetcher.
	String() string
}

// Result is an accepted outcome of a fetch, delivered to OnResult readers
// and readable from Latest.
type Result struct {
	// Query is the input value the fetch was issued for.
	Query string
	// Response holds the fetched results. It is nil when Err is set.
	Response *model.SearchResponse
	// Err is set when the fetch failed for a reason other than being
	// superseded by newer input or torn down by Close.
	Err error
}

// Trigger issues at most one fetch per quiescence window of its input, and
// guarantees that accepted results are in input-recency order. Each request
// goes from scheduled to either fired or superseded; once superseded its
// result can no longer be applied.
type Trigger struct {
	fetcher   Fetcher
	clock     clock.Clock
	delay     time.Duration
	limiter   *rate.Limiter
	minLength int

	// mutex guards the scheduling state: the current value, its generation,
	// the quiescence timer, and the in-flight fetch cancel func.
	mutex  sync.Mutex
	gen    uint64
	value  string
	timer  *clock.Timer
	cancel context.CancelFunc
	closed bool

	latest atomic.Pointer[Result]

	// inEvents is used to send an accepted Result to the distributeEvents
	// goroutine.
	inEvents chan Result

	addEventChan chan chan<- Result
	rmEventChan  chan chan<- Result

	// closing signals that the Trigger is closing.
	closing chan struct{}
	// closeOnce ensures that the Close only happens once.
	closeOnce sync.Once
	// distDone signals that the distributeEvents goroutine exited.
	distDone chan struct{}
	fetchWG  sync.WaitGroup
}

// New creates a new Trigger that fetches results for its input using
// fetcher.
func New(fetcher Fetcher, options ...Option) (*Trigger, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}

	t := &Trigger{
		fetcher:   fetcher,
		clock:     opts.clock,
		delay:     opts.delay,
		limiter:   opts.limiter,
		minLength: opts.minLength,

		inEvents:     make(chan Result, 1),
		addEventChan: make(chan chan<- Result),
		rmEventChan:  make(chan chan<- Result),

		closing:  make(chan struct{}),
		distDone: make(chan struct{}),
	}

	// Start distributor to send Results to interested parties.
	go t.distributeEvents()

	return t, nil
}

// Update records a new input value. Any fetch scheduled or in flight for a
// previous value is invalidated before the new value can produce one, so a
// response for an older value is never applied after a newer value
// arrives. Updating with a value identical to the current input is a
// no-op.
//
// Input shorter than the configured minimum length is not fetched; it
// produces an immediate empty Result so that consumers clear whatever
// results they are showing.
func (t *Trigger) Update(value string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed || value == t.value {
		return
	}
	t.value = value
	t.gen++
	t.stopPending()

	if len(value) < t.minLength {
		t.accept(Result{Query: value, Response: &model.SearchResponse{}})
		return
	}

	gen := t.gen
	t.timer = t.clock.AfterFunc(t.delay, func() {
		t.fire(gen, value)
	})
}

// stopPending unschedules the quiescence timer and cancels any in-flight
// fetch. Caller must hold mutex.
func (t *Trigger) stopPending() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// fire issues the fetch for value, unless gen is no longer the current
// generation by the time the quiescence timer elapses.
func (t *Trigger) fire(gen uint64, value string) {
	t.mutex.Lock()
	if t.closed || gen != t.gen {
		t.mutex.Unlock()
		return
	}
	t.timer = nil
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.fetchWG.Add(1)
	t.mutex.Unlock()

	go func() {
		defer t.fetchWG.Done()
		defer cancel()
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				t.apply(gen, value, nil, err)
				return
			}
		}
		resp, err := t.fetcher.Search(ctx, value)
		t.apply(gen, value, resp, err)
	}()
}

// apply gates a fetch outcome on recency before accepting it. Cancellation
// is cooperative and can race with fetch completion, so this check, not the
// context cancellation, is what guarantees a stale response never
// overwrites a newer one.
func (t *Trigger) apply(gen uint64, value string, resp *model.SearchResponse, err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.closed {
		return
	}
	if gen != t.gen {
		log.Debugw("Dropped superseded response", "query", value)
		return
	}
	t.cancel = nil

	if err != nil {
		if apierror.IsCancellation(err) {
			// Self-inflicted, not a user-facing failure.
			log.Debugw("Fetch canceled", "query", value)
			return
		}
		log.Errorw("Fetch failed", "err", err, "query", value, "fetcher", t.fetcher)
		t.accept(Result{Query: value, Err: err})
		return
	}
	t.accept(Result{Query: value, Response: resp})
}

// accept stores res as the latest result and delivers it to OnResult
// readers. Caller must hold mutex, which makes the latest slot single
// writer.
func (t *Trigger) accept(res Result) {
	t.latest.Store(&res)
	t.inEvents <- res
}

// Latest returns the most recently accepted result. The second return value
// is false if no result has been accepted yet.
func (t *Trigger) Latest() (Result, bool) {
	if res := t.latest.Load(); res != nil {
		return *res, true
	}
	return Result{}, false
}

// OnResult creates a channel that receives accepted results, and adds that
// channel to the list of notification channels.
//
// Calling the returned cancel function removes the notification channel
// from the list of channels to be notified of results, and it closes the
// channel to allow any reading goroutines to stop waiting on the channel.
func (t *Trigger) OnResult() (<-chan Result, context.CancelFunc) {
	// Channel is buffered to prevent distributeEvents from blocking if a
	// reader is not reading the channel immediately.
	cq := channelqueue.New[Result](-1)
	ch := cq.In()
	t.addEventChan <- ch

	cncl := func() {
		if ch == nil {
			return
		}
		select {
		case t.rmEventChan <- ch:
		case <-t.closing:
		}
		ch = nil
	}
	return cq.Out(), cncl
}

// Close discontinues the trigger. Any scheduled fetch is unscheduled, any
// in-flight fetch is canceled and its result discarded, and all OnResult
// channels are closed. No fetch is issued and no result is delivered after
// Close returns.
func (t *Trigger) Close() {
	t.closeOnce.Do(func() {
		t.mutex.Lock()
		t.closed = true
		t.stopPending()
		t.mutex.Unlock()

		close(t.closing)

		// Wait for any in-flight fetch to notice cancellation and exit.
		t.fetchWG.Wait()

		// Stop the distribution goroutine.
		close(t.inEvents)
		<-t.distDone
	})
}

// distributeEvents reads each accepted Result and copies it to all channels
// in outEventsChans. This delivers the Result to all OnResult channel
// readers.
func (t *Trigger) distributeEvents() {
	defer close(t.distDone)
	var outEventsChans []chan<- Result

	for {
		select {
		case res, ok := <-t.inEvents:
			if !ok {
				// Dismiss any event readers.
				for _, ch := range outEventsChans {
					close(ch)
				}
				return
			}
			// Send result to all notification channels.
			for _, ch := range outEventsChans {
				ch <- res
			}
		case ch := <-t.addEventChan:
			outEventsChans = append(outEventsChans, ch)
		case ch := <-t.rmEventChan:
			for i, ca := range outEventsChans {
				if ca == ch {
					outEventsChans[i] = outEventsChans[len(outEventsChans)-1]
					outEventsChans[len(outEventsChans)-1] = nil
					outEventsChans = outEventsChans[:len(outEventsChans)-1]
					close(ch)
					break
				}
			}
		}
	}
}
