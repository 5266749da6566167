package people

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ============================================================================
// Keys
// ============================================================================

// CacheKind names a cached resource.
type CacheKind string

const (
	KindFriends           CacheKind = "friends"
	KindFriendsSearch     CacheKind = "friends.search"
	KindUsersSearch       CacheKind = "users.search"
	KindWelcome           CacheKind = "welcome"
	KindGroups            CacheKind = "groups"
	KindGroup             CacheKind = "group"
	KindNewChat           CacheKind = "chat.new"
	KindChats             CacheKind = "chat.list"
	KindNotificationCheck CacheKind = "notifications.check"
)

// CacheKey identifies one cache entry. Global resources have an empty Arg.
// A key with All set names every entry of its kind and is only meaningful to
// Invalidate.
type CacheKey struct {
	Kind CacheKind
	Arg  string
	All  bool
}

func (k CacheKey) String() string {
	if k.All {
		return string(k.Kind) + ":*"
	}
	if k.Arg == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ":" + k.Arg
}

func FriendsKey() CacheKey { return CacheKey{Kind: KindFriends} }
func FriendsSearchKey(query string) CacheKey { return CacheKey{Kind: KindFriendsSearch, Arg: query} }
func FriendsSearchesKey() CacheKey { return CacheKey{Kind: KindFriendsSearch, All: true} }
func UsersSearchKey(query string) CacheKey { return CacheKey{Kind: KindUsersSearch, Arg: query} }
func WelcomeKey() CacheKey { return CacheKey{Kind: KindWelcome} }
func GroupsKey() CacheKey { return CacheKey{Kind: KindGroups} }
func GroupKey(id string) CacheKey { return CacheKey{Kind: KindGroup, Arg: id} }
func NewChatKey() CacheKey { return CacheKey{Kind: KindNewChat} }
func ChatsKey() CacheKey { return CacheKey{Kind: KindChats} }
func NotificationCheckKey() CacheKey { return CacheKey{Kind: KindNotificationCheck} }

// ============================================================================
// Invalidation rules
// ============================================================================

// Mutation names a write operation for invalidation purposes.
type Mutation string

const (
	MutationCreateFriend    Mutation = "friends.create"
	MutationAcceptInvite    Mutation = "friends.accept"
	MutationDeclineInvite   Mutation = "friends.ignore"
	MutationRemoveFriend    Mutation = "friends.delete"
	MutationCreateGroup     Mutation = "groups.create"
	MutationUpdateGroup     Mutation = "groups.update"
	MutationDeleteGroup     Mutation = "groups.delete"
	MutationAddMember       Mutation = "groups.memberAdd"
	MutationRemoveMember    Mutation = "groups.memberRemove"
	MutationMarkWelcomeSeen Mutation = "welcome.seen"
	MutationCreateChat      Mutation = "chat.create"
)

// InvalidationsFor returns the cache keys a successful mutation marks stale.
// target is the group id for group-scoped mutations and ignored otherwise.
// Member changes leave the groups list alone: group identity, name and
// description are unaffected. Friend changes also refresh every global search
// (relationship status) and the new-chat friend list; local user searches are
// keyed apart and left alone.
func InvalidationsFor(m Mutation, target string) []CacheKey {
	switch m {
	case MutationCreateFriend, MutationAcceptInvite, MutationDeclineInvite, MutationRemoveFriend:
		return []CacheKey{FriendsKey(), FriendsSearchesKey(), NewChatKey()}
	case MutationCreateGroup, MutationDeleteGroup:
		return []CacheKey{GroupsKey()}
	case MutationUpdateGroup:
		return []CacheKey{GroupsKey(), GroupKey(target)}
	case MutationAddMember, MutationRemoveMember:
		return []CacheKey{GroupKey(target)}
	case MutationMarkWelcomeSeen:
		return []CacheKey{WelcomeKey()}
	case MutationCreateChat:
		return []CacheKey{ChatsKey(), NewChatKey()}
	}
	return nil
}

// ============================================================================
// Cache events
// ============================================================================

// CacheEventHandler handles cache events.
type CacheEventHandler func(event string, key CacheKey)

type cacheEmitter struct {
	mu        sync.RWMutex
	listeners map[string][]CacheEventHandler
}

// On registers a handler for "cache.stored", "cache.invalidated",
// "cache.refreshed" or "cache.error".
func (e *cacheEmitter) On(event string, handler CacheEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *cacheEmitter) emit(event string, key CacheKey) {
	e.mu.RLock()
	handlers := e.listeners[event]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, key)
		}()
	}
}

func (e *cacheEmitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[string][]CacheEventHandler)
}

// ============================================================================
// QueryCache
// ============================================================================

type cacheEntry struct {
	value     any
	stale     bool
	fetchedAt time.Time
	stamp     stamp
}

// stamp records the cache state a fetch started from. A fetch whose stamp no
// longer matches was overtaken by an invalidation (gen, kindGen) or by Clear
// (epoch).
type stamp struct {
	epoch   uint64
	gen     uint64
	kindGen uint64
}

func (s stamp) newer(o stamp) bool {
	return s.gen > o.gen || s.kindGen > o.kindGen
}

// EntryInfo describes a cache entry without exposing its value.
type EntryInfo struct {
	Key       CacheKey
	Stale     bool
	FetchedAt time.Time
}

// QueryCache holds the last normalized value per key. Reads of a stale entry
// return it immediately and refresh it in the background; concurrent fetches
// of one key share a single request.
type QueryCache struct {
	cacheEmitter

	mu      sync.Mutex
	entries map[CacheKey]*cacheEntry
	// gens and kindGens count invalidations per key and per kind so a fetch
	// that raced an invalidation is stored stale. epoch counts Clear calls.
	gens     map[CacheKey]uint64
	kindGens map[CacheKind]uint64
	epoch    uint64

	flight  singleflight.Group
	pending sync.WaitGroup
	logger  *slog.Logger
	metrics *CacheMetrics
}

// CacheOption configures a QueryCache.
type CacheOption func(*QueryCache)

// WithCacheMetrics records cache activity on m.
func WithCacheMetrics(m *CacheMetrics) CacheOption {
	return func(c *QueryCache) { c.metrics = m }
}

// NewQueryCache creates an empty cache. A nil logger discards output.
func NewQueryCache(logger *slog.Logger, opts ...CacheOption) *QueryCache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &QueryCache{
		cacheEmitter: cacheEmitter{listeners: make(map[string][]CacheEventHandler)},
		entries:      make(map[CacheKey]*cacheEntry),
		gens:         make(map[CacheKey]uint64),
		kindGens:     make(map[CacheKind]uint64),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewCacheMetrics(nil)
	}
	return c
}

// Invalidate marks entries stale so their next read refetches. A key with All
// set marks every entry of its kind. Keys with no entry are ignored.
func (c *QueryCache) Invalidate(keys ...CacheKey) {
	for _, key := range keys {
		var hit []CacheKey
		c.mu.Lock()
		if key.All {
			c.kindGens[key.Kind]++
			for k, e := range c.entries {
				if k.Kind == key.Kind {
					e.stale = true
					hit = append(hit, k)
				}
			}
		} else {
			c.gens[key]++
			if e, ok := c.entries[key]; ok {
				e.stale = true
				hit = append(hit, key)
			}
		}
		c.mu.Unlock()

		c.metrics.invalidations.WithLabelValues(string(key.Kind)).Inc()
		for _, k := range hit {
			c.logger.Debug("cache invalidated", "key", k.String())
			c.emit("cache.invalidated", k)
		}
	}
}

// IsStale reports whether key has an entry marked stale.
func (c *QueryCache) IsStale(key CacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && e.stale
}

// Has reports whether key has an entry, fresh or stale.
func (c *QueryCache) Has(key CacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Entries lists the current entries ordered by key.
func (c *QueryCache) Entries() []EntryInfo {
	c.mu.Lock()
	out := make([]EntryInfo, 0, len(c.entries))
	for k, e := range c.entries {
		out = append(out, EntryInfo{Key: k, Stale: e.stale, FetchedAt: e.fetchedAt})
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Wait blocks until every background refresh has finished.
func (c *QueryCache) Wait() {
	c.pending.Wait()
}

// Clear discards every entry and listener. It ends the session: fetches still
// in flight complete for their callers but are not stored.
func (c *QueryCache) Clear() {
	c.pending.Wait()
	c.mu.Lock()
	c.epoch++
	c.entries = make(map[CacheKey]*cacheEntry)
	c.gens = make(map[CacheKey]uint64)
	c.kindGens = make(map[CacheKind]uint64)
	c.mu.Unlock()
	c.removeAll()
}

func (c *QueryCache) current(key CacheKey) stamp {
	return stamp{epoch: c.epoch, gen: c.gens[key], kindGen: c.kindGens[key.Kind]}
}

func (c *QueryCache) lookup(key CacheKey) (*cacheEntry, stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.current(key)
	e := c.entries[key]
	if e == nil {
		return nil, st
	}
	cp := *e
	return &cp, st
}

// store saves a fetched value. Values from an ended session are dropped, and
// a value never replaces one fetched after a later invalidation.
func (c *QueryCache) store(key CacheKey, value any, st stamp) bool {
	c.mu.Lock()
	cur := c.current(key)
	if st.epoch != cur.epoch {
		c.mu.Unlock()
		return false
	}
	if e, ok := c.entries[key]; ok && e.stamp.newer(st) {
		c.mu.Unlock()
		return false
	}
	c.entries[key] = &cacheEntry{
		value:     value,
		stale:     cur != st,
		fetchedAt: time.Now(),
		stamp:     st,
	}
	c.mu.Unlock()
	c.emit("cache.stored", key)
	return true
}

// fetch runs fn once per key and cache state at a time and stores its result.
// A fetch started after an invalidation never joins one started before it.
func (c *QueryCache) fetch(ctx context.Context, key CacheKey, st stamp, fn func(context.Context) (any, error)) (any, error) {
	flightKey := fmt.Sprintf("%s#%d.%d.%d", key, st.epoch, st.gen, st.kindGen)
	v, err, _ := c.flight.Do(flightKey, func() (any, error) {
		v, err := fn(ctx)
		if err != nil {
			c.metrics.errors.WithLabelValues(string(key.Kind)).Inc()
			c.logger.Debug("cache fetch failed", "key", key.String(), "error", err)
			c.emit("cache.error", key)
			return nil, err
		}
		if !c.store(key, v, st) {
			c.logger.Debug("cache fetch discarded", "key", key.String())
		}
		return v, nil
	})
	return v, err
}

func (c *QueryCache) refreshInBackground(ctx context.Context, key CacheKey, st stamp, fn func(context.Context) (any, error)) {
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		if _, err := c.fetch(context.WithoutCancel(ctx), key, st, fn); err == nil {
			c.emit("cache.refreshed", key)
		}
	}()
}

// query is the read path shared by every resource client. When wait is false a
// stale entry is served immediately and refreshed in the background; when
// wait is true the refresh is awaited.
func query[T any](ctx context.Context, c *QueryCache, key CacheKey, wait bool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	erased := func(ctx context.Context) (any, error) { return fn(ctx) }

	e, st := c.lookup(key)
	if e != nil {
		cached, ok := e.value.(T)
		if !ok {
			return zero, fmt.Errorf("cache entry %s holds %T", key, e.value)
		}
		if !e.stale {
			c.metrics.hits.WithLabelValues(string(key.Kind)).Inc()
			return cached, nil
		}
		c.metrics.staleHits.WithLabelValues(string(key.Kind)).Inc()
		if !wait {
			c.refreshInBackground(ctx, key, st, erased)
			return cached, nil
		}
	} else {
		c.metrics.misses.WithLabelValues(string(key.Kind)).Inc()
	}

	v, err := c.fetch(ctx, key, st, erased)
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
