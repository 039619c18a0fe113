package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	productsPayload   = `[{"id":1,"name":"Masala Dosa","price":80,"categoryId":"c1"},{"id":"2","name":"filter coffee","price":"30.50","categoryId":"c2"},{"id":3,"name":"Plain Dosa","price":60,"categoryId":"c1"}]`
	categoriesPayload = `[{"id":"c2","name":"Drinks"},{"id":"c1","name":"Breakfast"}]`
)

type stubUpstream struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	delay time.Duration
}

func (s *stubUpstream) Get(_ context.Context, _, path string, out any) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[path]++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	body := productsPayload
	if path == "categories" {
		body = categoriesPayload
	}
	return json.Unmarshal([]byte(body), out)
}

func (s *stubUpstream) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

type memoryCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value.(string)
	c.ttls[key] = ttl
	return nil
}

func (c *memoryCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

func (c *memoryCache) CacheKey(parts ...string) string {
	key := "kot:cache"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func TestProductsFilterAndSort(t *testing.T) {
	svc, err := NewService(&stubUpstream{}, nil, time.Minute, nil)
	require.NoError(t, err)

	all, err := svc.Products(context.Background(), Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "filter coffee", all[0].Name)
	assert.Equal(t, "2", all[0].ID.String())
	assert.True(t, all[0].Price.Equal(all[0].Price.Round(2)))

	dosas, err := svc.Products(context.Background(), Query{Search: " DOSA "})
	require.NoError(t, err)
	require.Len(t, dosas, 2)
	assert.Equal(t, "Masala Dosa", dosas[0].Name)

	breakfast, err := svc.Products(context.Background(), Query{CategoryID: "c1", Search: "plain"})
	require.NoError(t, err)
	require.Len(t, breakfast, 1)
	assert.Equal(t, "3", breakfast[0].ID.String())
}

func TestCategoriesSorted(t *testing.T) {
	svc, err := NewService(&stubUpstream{}, nil, time.Minute, nil)
	require.NoError(t, err)

	cats, err := svc.Categories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Breakfast", cats[0].Name)
}

func TestCacheAsideServesFromRedis(t *testing.T) {
	upstream := &stubUpstream{}
	cache := newMemoryCache()
	svc, err := NewService(upstream, cache, 5*time.Minute, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Products(ctx, Query{})
	require.NoError(t, err)
	_, err = svc.Products(ctx, Query{Search: "coffee"})
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.count("products"))
	assert.Equal(t, 5*time.Minute, cache.ttls["kot:cache:products"])

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.Products(ctx, Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.count("products"))
}

func TestConcurrentMissesShareOneUpstreamCall(t *testing.T) {
	upstream := &stubUpstream{delay: 20 * time.Millisecond}
	svc, err := NewService(upstream, newMemoryCache(), time.Minute, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Categories(context.Background()); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&failures))
	assert.LessOrEqual(t, upstream.count("categories"), 2)
}

func TestUpstreamFailureFallsBackToLastGood(t *testing.T) {
	upstream := &stubUpstream{}
	svc, err := NewService(upstream, nil, time.Minute, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Products(ctx, Query{})
	require.NoError(t, err)

	upstream.mu.Lock()
	upstream.err = errors.New("down")
	upstream.mu.Unlock()

	got, err := svc.Products(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = svc.Categories(ctx)
	require.Error(t, err, "nothing cached yet for categories")
}
