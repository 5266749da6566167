package people

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSearchDelay is the debounce window applied to search input.
const DefaultSearchDelay = 500 * time.Millisecond

// ============================================================================
// Debouncer
// ============================================================================

// Debouncer runs only the last function handed to Trigger, once delay has
// passed without another Trigger.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
}

func NewDebouncer(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultSearchDelay
	}
	return &Debouncer{delay: delay}
}

func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop drops the pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// ============================================================================
// Last-issued-query-wins
// ============================================================================

// SearchTicket identifies one issued query.
type SearchTicket struct {
	Query string
	seq   uint64
}

// SearchTracker tells whether a response still belongs to the newest query.
// Superseded requests are not cancelled; their results are ignored.
type SearchTracker struct {
	seq atomic.Uint64
}

// Begin issues a ticket for q, superseding every earlier ticket.
func (t *SearchTracker) Begin(q string) SearchTicket {
	return SearchTicket{Query: q, seq: t.seq.Add(1)}
}

// Current reports whether tk is still the newest ticket.
func (t *SearchTracker) Current(tk SearchTicket) bool {
	return t.seq.Load() == tk.seq
}

// ============================================================================
// UserSearch
// ============================================================================

// SearchResultHandler receives the results of the current query only.
type SearchResultHandler func(query string, res *SearchResults, err error)

// UserSearch turns keystrokes into debounced search requests and delivers
// results in issue order, dropping any that a newer query superseded.
// Handlers never run concurrently.
type UserSearch struct {
	ctx      context.Context
	search   func(context.Context, string) (*SearchResults, error)
	debounce *Debouncer
	tracker  SearchTracker
	onResult SearchResultHandler

	// deliver serializes the currency check with the handler call.
	deliver sync.Mutex
}

// NewUserSearch searches the global directory, or local users when local is
// set. A zero delay uses DefaultSearchDelay.
func (f *FriendsClient) NewUserSearch(ctx context.Context, local bool, delay time.Duration, onResult SearchResultHandler) *UserSearch {
	s := &UserSearch{
		ctx:      ctx,
		search:   f.Search,
		debounce: NewDebouncer(delay),
		onResult: onResult,
	}
	if local {
		s.search = f.SearchLocal
	}
	return s
}

// Input records the latest text typed by the user. Blank input issues no
// request but still supersedes any in-flight query.
func (s *UserSearch) Input(text string) {
	q := strings.TrimSpace(text)
	if q == "" {
		s.debounce.Stop()
		s.tracker.Begin("")
		return
	}
	s.debounce.Trigger(func() {
		tk := s.tracker.Begin(q)
		res, err := s.search(s.ctx, q)
		s.deliver.Lock()
		defer s.deliver.Unlock()
		if s.tracker.Current(tk) {
			s.onResult(q, res, err)
		}
	})
}

// Stop drops any pending keystroke.
func (s *UserSearch) Stop() {
	s.debounce.Stop()
}
