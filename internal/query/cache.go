// Package query is an in-memory request cache keyed by stable strings. Each
// entry tracks the status of its latest fetch, the data it produced, and the
// views subscribed to it. Invalidating a key marks it stale and, when the key
// has subscribers, re-issues its last request once.
package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"catalog-frontend/internal/util"

	"go.uber.org/zap"
)

// Status is the state of a fetch.
type Status int

const (
	StatusPending Status = iota
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

// CombineStatus folds several fetch states into one view state: pending if
// any is pending, otherwise error if any failed.
func CombineStatus(statuses ...Status) Status {
	combined := StatusSuccess
	for _, s := range statuses {
		if s == StatusPending {
			return StatusPending
		}
		if s == StatusError {
			combined = StatusError
		}
	}
	return combined
}

// Key identifies a cache entry.
type Key string

// KeyOf joins parts into a key, e.g. KeyOf("product", "42") is "product:42".
func KeyOf(parts ...string) Key {
	return Key(strings.Join(parts, ":"))
}

// Kind is the first segment of the key; it labels metrics.
func (k Key) Kind() string {
	s := string(k)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return s
}

// Fetcher issues the request behind a key.
type Fetcher func(ctx context.Context) (interface{}, error)

// State is a snapshot of one entry.
type State struct {
	Status    Status
	Data      interface{}
	Err       error
	UpdatedAt time.Time
	Stale     bool
	Fetching  bool
	// Refetched is set on notifications for a refetch issued by Invalidate.
	Refetched bool
}

// Options configures a Client.
type Options struct {
	// StaleTime is how long a successful result is served without refetching.
	StaleTime time.Duration
	// GCTime is how long an idle entry survives before the janitor drops it.
	GCTime time.Duration
	Now    func() time.Time
}

// Client is the request cache.
type Client struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	staleTime time.Duration
	gcTime    time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

type entry struct {
	state       State
	generation  uint64
	inflight    *call
	fetcher     Fetcher
	subscribers map[uint64]func(State)
	nextSubID   uint64
	lastUsed    time.Time
}

type call struct {
	done       chan struct{}
	generation uint64
	refetch    bool
	data       interface{}
	err        error
}

// NewClient creates a new request cache.
func NewClient(opts Options) *Client {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	gc := opts.GCTime
	if gc <= 0 {
		gc = 5 * time.Minute
	}
	return &Client{
		entries:   make(map[Key]*entry),
		staleTime: opts.StaleTime,
		gcTime:    gc,
		now:       now,
		logger:    util.Named("query"),
	}
}

// Fetch returns the data for key. Fresh data is served from the cache, a
// request already in flight for the same generation is joined, and otherwise
// fetcher is called. If ctx ends before the response arrives the response is
// discarded for this caller and ctx.Err() is returned.
func (c *Client) Fetch(ctx context.Context, key Key, fetcher Fetcher) (interface{}, error) {
	for {
		c.mu.Lock()
		e := c.entryLocked(key)
		e.fetcher = fetcher
		e.lastUsed = c.now()

		if c.freshLocked(e) {
			data := e.state.Data
			c.mu.Unlock()
			util.QueryFetchesTotal.WithLabelValues(key.Kind(), "hit").Inc()
			return data, nil
		}

		cl := e.inflight
		leader := cl == nil || cl.generation != e.generation
		if leader {
			cl = c.startLocked(e)
		}
		c.mu.Unlock()

		if leader {
			c.run(ctx, key, e, cl, fetcher)
		} else {
			util.QueryFetchesTotal.WithLabelValues(key.Kind(), "joined").Inc()
			select {
			case <-cl.done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// The leader's view went away; ours is still live, so issue again.
		if !leader && isContextErr(cl.err) {
			continue
		}
		return cl.data, cl.err
	}
}

// State returns a snapshot of key's entry.
func (c *Client) State(key Key) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State{}, false
	}
	return e.state, true
}

// Invalidate marks each key stale. A key with subscribers has its last
// request re-issued once; the others refetch on their next Fetch.
func (c *Client) Invalidate(keys ...Key) {
	for _, key := range keys {
		c.mu.Lock()
		e, ok := c.entries[key]
		if !ok {
			c.mu.Unlock()
			continue
		}
		e.generation++
		e.state.Stale = true
		util.QueryInvalidationsTotal.WithLabelValues(key.Kind()).Inc()

		var cl *call
		fetcher := e.fetcher
		if len(e.subscribers) > 0 && fetcher != nil {
			cl = c.startLocked(e)
			cl.refetch = true
		}
		c.mu.Unlock()

		c.logger.Debug("Invalidated", zap.String("key", string(key)), zap.Bool("refetch", cl != nil))
		if cl != nil {
			go c.run(context.Background(), key, e, cl, fetcher)
		}
	}
}

// Subscribe registers fn to be called with the new state each time key's
// entry commits a response. The returned func removes the subscription.
func (c *Client) Subscribe(key Key, fn func(State)) func() {
	c.mu.Lock()
	e := c.entryLocked(key)
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(e.subscribers, id)
			e.lastUsed = c.now()
			c.mu.Unlock()
		})
	}
}

// Sweep drops entries that have no subscribers, no request in flight, and
// have not been used for longer than the GC time. It returns how many were
// dropped.
func (c *Client) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	dropped := 0
	for key, e := range c.entries {
		if len(e.subscribers) == 0 && e.inflight == nil && now.Sub(e.lastUsed) > c.gcTime {
			delete(c.entries, key)
			dropped++
		}
	}
	util.QueryEntries.Set(float64(len(c.entries)))
	return dropped
}

// RunJanitor sweeps every interval until ctx is done.
func (c *Client) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug("Swept idle entries", zap.Int("count", n))
			}
		}
	}
}

func (c *Client) entryLocked(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{
			state:       State{Status: StatusPending},
			subscribers: make(map[uint64]func(State)),
			lastUsed:    c.now(),
		}
		c.entries[key] = e
		util.QueryEntries.Set(float64(len(c.entries)))
	}
	return e
}

func (c *Client) freshLocked(e *entry) bool {
	return e.state.Status == StatusSuccess &&
		!e.state.Stale &&
		c.now().Sub(e.state.UpdatedAt) < c.staleTime
}

func (c *Client) startLocked(e *entry) *call {
	cl := &call{done: make(chan struct{}), generation: e.generation}
	e.inflight = cl
	e.state.Fetching = true
	return cl
}

func (c *Client) run(ctx context.Context, key Key, e *entry, cl *call, fetcher Fetcher) {
	data, err := fetcher(ctx)

	c.mu.Lock()
	cl.data, cl.err = data, err
	if e.inflight == cl {
		e.inflight = nil
	}

	committed := false
	switch {
	case cl.generation != e.generation:
		util.QueryDiscardedTotal.WithLabelValues(key.Kind()).Inc()
		c.logger.Debug("Discarded superseded response", zap.String("key", string(key)))
	case isContextErr(err):
		// Abandoned by its caller: nothing learned about the remote state.
	case err != nil:
		e.state = State{Status: StatusError, Data: e.state.Data, Err: err, UpdatedAt: c.now()}
		committed = true
		util.QueryFetchesTotal.WithLabelValues(key.Kind(), "error").Inc()
	default:
		e.state = State{Status: StatusSuccess, Data: data, UpdatedAt: c.now()}
		committed = true
		util.QueryFetchesTotal.WithLabelValues(key.Kind(), "fetched").Inc()
	}
	e.state.Fetching = e.inflight != nil

	var notify []func(State)
	snapshot := e.state
	snapshot.Refetched = cl.refetch
	if committed {
		notify = make([]func(State), 0, len(e.subscribers))
		for _, fn := range e.subscribers {
			notify = append(notify, fn)
		}
	}
	close(cl.done)
	c.mu.Unlock()

	for _, fn := range notify {
		fn(snapshot)
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
