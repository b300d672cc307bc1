package querycache

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/quizboard/core/classroom"
	"github.com/trezcool/quizboard/tests"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newCache(store Store, ttl time.Duration) (*Cache, *clock) {
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := New(store, ttl, testutil.NewLogger())
	c.now = clk.Now
	return c, clk
}

type counter struct {
	calls int32
}

func (cnt *counter) groups(grps ...classroom.Group) func(context.Context) ([]classroom.Group, error) {
	return func(context.Context) ([]classroom.Group, error) {
		atomic.AddInt32(&cnt.calls, 1)
		return grps, nil
	}
}

func (cnt *counter) Calls() int { return int(atomic.LoadInt32(&cnt.calls)) }

func TestKey_String(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{key: Profile(), want: "profile"},
		{key: MyGroups(), want: "myGroups"},
		{key: Group(3), want: "group:3"},
		{key: GroupMembers(3), want: "groupMembers:3"},
		{key: Tasks(3), want: "tasks:3"},
		{key: Task(9), want: "task:9"},
		{key: MySubmission(9), want: "mySubmission:9"},
		{key: Submissions(9), want: "submissions:9"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.String())
		})
	}
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	maths := classroom.Group{ID: 1, Title: "Maths", Role: classroom.RoleOwner}

	t.Run("disabled query is inert", func(t *testing.T) {
		c, _ := newCache(NewMemoryStore(0), time.Minute)
		cnt := new(counter)
		v, ok, err := Fetch(ctx, c.Scope("s"), Query[[]classroom.Group]{Key: MyGroups(), Fn: cnt.groups(maths)})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, v)
		assert.Zero(t, cnt.Calls())
	})

	t.Run("fresh entry is served from cache", func(t *testing.T) {
		c, _ := newCache(NewMemoryStore(0), time.Minute)
		cnt := new(counter)
		q := Query[[]classroom.Group]{Key: MyGroups(), Enabled: true, Fn: cnt.groups(maths)}
		for i := 0; i < 3; i++ {
			v, ok, err := Fetch(ctx, c.Scope("s"), q)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []classroom.Group{maths}, v)
		}
		assert.Equal(t, 1, cnt.Calls())
	})

	t.Run("scopes are isolated", func(t *testing.T) {
		c, _ := newCache(NewMemoryStore(0), time.Minute)
		cnt := new(counter)
		q := Query[[]classroom.Group]{Key: MyGroups(), Enabled: true, Fn: cnt.groups(maths)}
		_, _, err := Fetch(ctx, c.Scope("a"), q)
		require.NoError(t, err)
		_, _, err = Fetch(ctx, c.Scope("b"), q)
		require.NoError(t, err)
		assert.Equal(t, 2, cnt.Calls())
	})

	t.Run("invalidation triggers one refetch", func(t *testing.T) {
		c, clk := newCache(NewMemoryStore(0), time.Minute)
		scope := c.Scope("s")
		cnt := new(counter)
		q := Query[[]classroom.Group]{Key: MyGroups(), Enabled: true, Fn: cnt.groups(maths)}

		_, _, err := Fetch(ctx, scope, q)
		require.NoError(t, err)
		clk.Advance(time.Second)
		require.NoError(t, scope.Invalidate(ctx, MyGroups(), Tasks(1)))
		clk.Advance(time.Second)

		_, _, err = Fetch(ctx, scope, q)
		require.NoError(t, err)
		_, _, err = Fetch(ctx, scope, q)
		require.NoError(t, err)
		assert.Equal(t, 2, cnt.Calls())
	})

	t.Run("entries expire after ttl", func(t *testing.T) {
		c, clk := newCache(NewMemoryStore(0), time.Minute)
		cnt := new(counter)
		q := Query[[]classroom.Group]{Key: MyGroups(), Enabled: true, Fn: cnt.groups(maths)}
		_, _, err := Fetch(ctx, c.Scope("s"), q)
		require.NoError(t, err)

		clk.Advance(59 * time.Second)
		_, _, err = Fetch(ctx, c.Scope("s"), q)
		require.NoError(t, err)
		assert.Equal(t, 1, cnt.Calls())

		clk.Advance(time.Second)
		_, _, err = Fetch(ctx, c.Scope("s"), q)
		require.NoError(t, err)
		assert.Equal(t, 2, cnt.Calls())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		c, _ := newCache(NewMemoryStore(0), time.Minute)
		var calls int
		q := Query[classroom.User]{Key: Profile(), Enabled: true, Fn: func(context.Context) (classroom.User, error) {
			calls++
			return classroom.User{}, errors.New("offline")
		}}
		_, ok, err := Fetch(ctx, c.Scope("s"), q)
		assert.Error(t, err)
		assert.False(t, ok)
		_, _, err = Fetch(ctx, c.Scope("s"), q)
		assert.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("clear drops the scope", func(t *testing.T) {
		c, _ := newCache(NewMemoryStore(0), 0)
		cnt := new(counter)
		q := Query[[]classroom.Group]{Key: MyGroups(), Enabled: true, Fn: cnt.groups(maths)}
		_, _, err := Fetch(ctx, c.Scope("s"), q)
		require.NoError(t, err)
		require.NoError(t, c.Scope("s").Clear(ctx))
		_, _, err = Fetch(ctx, c.Scope("s"), q)
		require.NoError(t, err)
		assert.Equal(t, 2, cnt.Calls())
	})
}

func TestFetch_dedupesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	c, _ := newCache(NewMemoryStore(0), time.Minute)

	release := make(chan struct{})
	var calls int32
	q := Query[classroom.User]{Key: Profile(), Enabled: true, Fn: func(context.Context) (classroom.User, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return classroom.User{ID: 1, Username: "ada"}, nil
	}}

	var wg sync.WaitGroup
	results := make([]classroom.User, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			usr, _, err := Fetch(ctx, c.Scope("s"), q)
			assert.NoError(t, err)
			results[i] = usr
		}(i)
	}
	time.Sleep(50 * time.Millisecond) // let every caller join the in-flight call
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, usr := range results {
		assert.Equal(t, "ada", usr.Username)
	}
}

func TestFetch_invalidationDuringFetchWins(t *testing.T) {
	ctx := context.Background()
	c, clk := newCache(NewMemoryStore(0), time.Minute)
	scope := c.Scope("s")

	var calls int
	q := Query[[]classroom.Group]{Key: MyGroups(), Enabled: true, Fn: func(context.Context) ([]classroom.Group, error) {
		calls++
		if calls == 1 {
			// a join lands while the list is in flight
			clk.Advance(time.Millisecond)
			require.NoError(t, scope.Invalidate(ctx, MyGroups()))
			return nil, nil
		}
		return []classroom.Group{{ID: 1}}, nil
	}}

	_, _, err := Fetch(ctx, scope, q)
	require.NoError(t, err)
	grps, _, err := Fetch(ctx, scope, q)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "the pre-invalidation response must not be served")
	assert.Len(t, grps, 1)
}

func runStoreTests(t *testing.T, store Store) {
	ctx := context.Background()
	scope := uuid.NewString()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, found, err := store.Get(ctx, scope, Profile())
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, scope, Profile(), Entry{Data: []byte(`{"id":1}`), FetchedAt: t0}))
	e, found, err := store.Get(ctx, scope, Profile())
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"id":1}`, string(e.Data))
	assert.False(t, e.Stale)

	require.NoError(t, store.MarkStale(ctx, scope, t0.Add(time.Second), Profile(), Tasks(4)))
	e, _, err = store.Get(ctx, scope, Profile())
	require.NoError(t, err)
	assert.True(t, e.Stale)
	marker, found, err := store.Get(ctx, scope, Tasks(4))
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, marker.Stale)
	assert.Nil(t, marker.Data)

	// older fetch does not overwrite the invalidation
	require.NoError(t, store.Set(ctx, scope, Profile(), Entry{Data: []byte(`{"id":2}`), FetchedAt: t0}))
	e, _, err = store.Get(ctx, scope, Profile())
	require.NoError(t, err)
	assert.True(t, e.Stale)

	require.NoError(t, store.Set(ctx, scope, Profile(), Entry{Data: []byte(`{"id":3}`), FetchedAt: t0.Add(2 * time.Second)}))
	e, _, err = store.Get(ctx, scope, Profile())
	require.NoError(t, err)
	assert.False(t, e.Stale)
	assert.JSONEq(t, `{"id":3}`, string(e.Data))

	require.NoError(t, store.Clear(ctx, scope))
	_, found, err = store.Get(ctx, scope, Profile())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemoryStore(0))
}

func TestMemoryStore_retention(t *testing.T) {
	ctx := context.Background()
	entry := Entry{Data: []byte(`[]`), FetchedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	newStore := func(retention time.Duration) (*MemoryStore, *clock) {
		clk := &clock{now: entry.FetchedAt}
		store := NewMemoryStore(retention)
		store.now = clk.Now
		return store, clk
	}

	t.Run("idle scopes are swept", func(t *testing.T) {
		store, clk := newStore(time.Hour)
		require.NoError(t, store.Set(ctx, "abandoned", MyGroups(), entry))
		require.NoError(t, store.Set(ctx, "active", MyGroups(), entry))

		clk.Advance(40 * time.Minute)
		_, found, err := store.Get(ctx, "active", MyGroups())
		require.NoError(t, err)
		require.True(t, found)

		clk.Advance(40 * time.Minute)
		require.NoError(t, store.MarkStale(ctx, "active", clk.Now(), Tasks(1)))
		assert.Equal(t, 1, store.Len(), "only the abandoned scope is dropped")
		_, found, err = store.Get(ctx, "active", MyGroups())
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("expired scope misses on read", func(t *testing.T) {
		store, clk := newStore(time.Hour)
		require.NoError(t, store.Set(ctx, "sid", Profile(), entry))

		clk.Advance(2 * time.Hour)
		_, found, err := store.Get(ctx, "sid", Profile())
		require.NoError(t, err)
		assert.False(t, found)
		assert.Zero(t, store.Len())
	})

	t.Run("zero retention keeps scopes", func(t *testing.T) {
		store, clk := newStore(0)
		require.NoError(t, store.Set(ctx, "sid", Profile(), entry))

		clk.Advance(24 * 365 * time.Hour)
		require.NoError(t, store.Set(ctx, "other", Profile(), entry))
		_, found, err := store.Get(ctx, "sid", Profile())
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 2, store.Len())
	})
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb, err := Connect(context.Background(), addr)
	require.NoError(t, err)
	defer func() { _ = rdb.Close() }()

	runStoreTests(t, NewRedisStore(rdb, "quizboard-test", time.Minute))
}
