package people

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test Helpers
// ============================================================================

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func metricValue(body, name string, kind CacheKind) float64 {
	target := name + `{kind="` + string(kind) + `"}`
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, target+" ") {
			fields := strings.Fields(line)
			v, err := strconv.ParseFloat(fields[len(fields)-1], 64)
			if err == nil {
				return v
			}
		}
	}
	return 0
}

func constFetch(v string, calls *atomic.Int32) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return v, nil
	}
}

// ============================================================================
// Invalidation rules
// ============================================================================

func TestInvalidationsFor(t *testing.T) {
	tests := []struct {
		mutation Mutation
		want     []CacheKey
	}{
		{MutationCreateFriend, []CacheKey{FriendsKey(), FriendsSearchesKey(), NewChatKey()}},
		{MutationAcceptInvite, []CacheKey{FriendsKey(), FriendsSearchesKey(), NewChatKey()}},
		{MutationDeclineInvite, []CacheKey{FriendsKey(), FriendsSearchesKey(), NewChatKey()}},
		{MutationRemoveFriend, []CacheKey{FriendsKey(), FriendsSearchesKey(), NewChatKey()}},
		{MutationCreateGroup, []CacheKey{GroupsKey()}},
		{MutationDeleteGroup, []CacheKey{GroupsKey()}},
		{MutationUpdateGroup, []CacheKey{GroupsKey(), GroupKey("g1")}},
		{MutationAddMember, []CacheKey{GroupKey("g1")}},
		{MutationRemoveMember, []CacheKey{GroupKey("g1")}},
		{MutationMarkWelcomeSeen, []CacheKey{WelcomeKey()}},
		{MutationCreateChat, []CacheKey{ChatsKey(), NewChatKey()}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mutation), func(t *testing.T) {
			assert.Equal(t, tt.want, InvalidationsFor(tt.mutation, "g1"))
		})
	}
}

func TestCacheKeyString(t *testing.T) {
	assert.Equal(t, "friends", FriendsKey().String())
	assert.Equal(t, "group:g1", GroupKey("g1").String())
	assert.Equal(t, "users.search:ann", UsersSearchKey("ann").String())
	assert.Equal(t, "friends.search:*", FriendsSearchesKey().String())
}

// ============================================================================
// QueryCache
// ============================================================================

func TestQueryCacheFreshHit(t *testing.T) {
	c := NewQueryCache(nil)
	var calls atomic.Int32
	ctx := context.Background()

	v, err := query(ctx, c, FriendsKey(), false, constFetch("one", &calls))
	require.NoError(t, err)
	assert.Equal(t, "one", v)

	v, err = query(ctx, c, FriendsKey(), false, constFetch("two", &calls))
	require.NoError(t, err)
	assert.Equal(t, "one", v)
	assert.EqualValues(t, 1, calls.Load())
}

func TestQueryCacheStaleServesThenRefreshes(t *testing.T) {
	c := NewQueryCache(nil)
	var calls atomic.Int32
	ctx := context.Background()

	_, err := query(ctx, c, WelcomeKey(), false, constFetch("old", &calls))
	require.NoError(t, err)

	refreshed := make(chan CacheKey, 1)
	c.On("cache.refreshed", func(_ string, key CacheKey) { refreshed <- key })

	c.Invalidate(WelcomeKey())
	assert.True(t, c.IsStale(WelcomeKey()))

	v, err := query(ctx, c, WelcomeKey(), false, constFetch("new", &calls))
	require.NoError(t, err)
	assert.Equal(t, "old", v)

	c.Wait()
	assert.Equal(t, WelcomeKey(), <-refreshed)
	assert.False(t, c.IsStale(WelcomeKey()))

	v, err = query(ctx, c, WelcomeKey(), false, constFetch("newer", &calls))
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.EqualValues(t, 2, calls.Load())
}

func TestQueryCacheWaitRefetchesStale(t *testing.T) {
	c := NewQueryCache(nil)
	var calls atomic.Int32
	ctx := context.Background()

	_, err := query(ctx, c, GroupsKey(), true, constFetch("old", &calls))
	require.NoError(t, err)
	c.Invalidate(GroupsKey())

	v, err := query(ctx, c, GroupsKey(), true, constFetch("new", &calls))
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.False(t, c.IsStale(GroupsKey()))
}

func TestQueryCacheInvalidateUnknownKey(t *testing.T) {
	c := NewQueryCache(nil)
	assert.NotPanics(t, func() { c.Invalidate(GroupKey("missing")) })
	assert.False(t, c.Has(GroupKey("missing")))
	assert.False(t, c.IsStale(GroupKey("missing")))
}

func TestQueryCacheFailedFetchKeepsStaleEntry(t *testing.T) {
	c := NewQueryCache(nil)
	ctx := context.Background()
	var calls atomic.Int32

	_, err := query(ctx, c, FriendsKey(), true, constFetch("kept", &calls))
	require.NoError(t, err)
	c.Invalidate(FriendsKey())

	boom := errors.New("boom")
	_, err = query(ctx, c, FriendsKey(), true, func(context.Context) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
	assert.True(t, c.IsStale(FriendsKey()))

	v, err := query(ctx, c, FriendsKey(), false, constFetch("later", &calls))
	require.NoError(t, err)
	assert.Equal(t, "kept", v)
	c.Wait()
}

func TestQueryCacheDeduplicatesConcurrentFetches(t *testing.T) {
	c := NewQueryCache(nil)
	ctx := context.Background()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i > 0 {
				<-started
			}
			v, err := query(ctx, c, GroupKey("g1"), false, fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, v := range results {
		assert.Equal(t, "shared", v)
	}
}

func TestQueryCacheInvalidationDuringFetch(t *testing.T) {
	c := NewQueryCache(nil)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = query(ctx, c, FriendsKey(), false, func(context.Context) (string, error) {
			close(started)
			<-release
			return "raced", nil
		})
	}()

	<-started
	c.Invalidate(FriendsKey())
	close(release)
	<-done

	assert.True(t, c.Has(FriendsKey()))
	assert.True(t, c.IsStale(FriendsKey()))
}

func TestQueryCacheFreshReadAfterInvalidation(t *testing.T) {
	c := NewQueryCache(nil)
	var calls atomic.Int32
	ctx := context.Background()

	_, err := query(ctx, c, FriendsKey(), false, constFetch("initial", &calls))
	require.NoError(t, err)
	c.Invalidate(FriendsKey())

	// A stale read starts a refresh that is still running when the next
	// mutation lands.
	started := make(chan struct{})
	release := make(chan struct{})
	v, err := query(ctx, c, FriendsKey(), false, func(context.Context) (string, error) {
		close(started)
		<-release
		return "pre-mutation", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "initial", v)
	<-started

	c.Invalidate(FriendsKey())
	v, err = query(ctx, c, FriendsKey(), true, constFetch("post-mutation", &calls))
	require.NoError(t, err)
	assert.Equal(t, "post-mutation", v)

	close(release)
	c.Wait()

	// The older refresh must not overwrite the newer value.
	v, err = query(ctx, c, FriendsKey(), false, constFetch("unused", &calls))
	require.NoError(t, err)
	assert.Equal(t, "post-mutation", v)
	assert.False(t, c.IsStale(FriendsKey()))
}

func TestQueryCacheInvalidateWholeKind(t *testing.T) {
	c := NewQueryCache(nil)
	var calls atomic.Int32
	ctx := context.Background()

	_, _ = query(ctx, c, FriendsSearchKey("ann"), false, constFetch("a", &calls))
	_, _ = query(ctx, c, FriendsSearchKey("bo"), false, constFetch("b", &calls))
	_, _ = query(ctx, c, UsersSearchKey("ann"), false, constFetch("c", &calls))

	var invalidated []CacheKey
	var mu sync.Mutex
	c.On("cache.invalidated", func(_ string, key CacheKey) {
		mu.Lock()
		invalidated = append(invalidated, key)
		mu.Unlock()
	})

	c.Invalidate(FriendsSearchesKey())
	assert.True(t, c.IsStale(FriendsSearchKey("ann")))
	assert.True(t, c.IsStale(FriendsSearchKey("bo")))
	assert.False(t, c.IsStale(UsersSearchKey("ann")))
	assert.ElementsMatch(t, []CacheKey{FriendsSearchKey("ann"), FriendsSearchKey("bo")}, invalidated)

	v, err := query(ctx, c, FriendsSearchKey("ann"), true, constFetch("a2", &calls))
	require.NoError(t, err)
	assert.Equal(t, "a2", v)
}

func TestQueryCacheKindInvalidationDuringFetch(t *testing.T) {
	c := NewQueryCache(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = query(context.Background(), c, FriendsSearchKey("ann"), false, func(context.Context) (string, error) {
			close(started)
			<-release
			return "raced", nil
		})
	}()

	<-started
	c.Invalidate(FriendsSearchesKey())
	close(release)
	<-done

	assert.True(t, c.IsStale(FriendsSearchKey("ann")))
}

func TestQueryCacheClearDropsInFlightFetch(t *testing.T) {
	c := NewQueryCache(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string)
	go func() {
		v, _ := query(context.Background(), c, GroupsKey(), true, func(context.Context) (string, error) {
			close(started)
			<-release
			return "old session", nil
		})
		done <- v
	}()

	<-started
	c.Clear()
	close(release)
	assert.Equal(t, "old session", <-done)

	assert.False(t, c.Has(GroupsKey()))
	assert.Empty(t, c.Entries())
}

func TestQueryCacheClear(t *testing.T) {
	c := NewQueryCache(nil)
	var calls atomic.Int32
	ctx := context.Background()

	_, _ = query(ctx, c, FriendsKey(), false, constFetch("a", &calls))
	_, _ = query(ctx, c, GroupKey("g1"), false, constFetch("b", &calls))
	require.Len(t, c.Entries(), 2)
	assert.Equal(t, GroupKey("g1"), c.Entries()[1].Key)

	c.Clear()
	assert.Empty(t, c.Entries())
}

func TestQueryCacheHandlerPanicSwallowed(t *testing.T) {
	c := NewQueryCache(nil)
	var calls atomic.Int32
	c.On("cache.stored", func(string, CacheKey) { panic("listener bug") })

	assert.NotPanics(t, func() {
		_, err := query(context.Background(), c, WelcomeKey(), false, constFetch("v", &calls))
		assert.NoError(t, err)
	})
}

func TestCacheMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewQueryCache(nil, WithCacheMetrics(NewCacheMetrics(reg)))
	ctx := context.Background()
	var calls atomic.Int32

	_, _ = query(ctx, c, FriendsKey(), false, constFetch("a", &calls))
	_, _ = query(ctx, c, FriendsKey(), false, constFetch("a", &calls))
	c.Invalidate(FriendsKey())
	_, _ = query(ctx, c, FriendsKey(), true, constFetch("b", &calls))
	_, _ = query(ctx, c, GroupsKey(), false, func(context.Context) (string, error) { return "", errors.New("down") })

	body := scrape(t, reg)
	assert.Equal(t, 1.0, metricValue(body, "people_cache_misses_total", KindFriends))
	assert.Equal(t, 1.0, metricValue(body, "people_cache_hits_total", KindFriends))
	assert.Equal(t, 1.0, metricValue(body, "people_cache_stale_hits_total", KindFriends))
	assert.Equal(t, 1.0, metricValue(body, "people_cache_invalidations_total", KindFriends))
	assert.Equal(t, 1.0, metricValue(body, "people_cache_fetch_errors_total", KindGroups))
}
