// Package catalog serves the menu to handsets. Upstream listings are cached
// in redis and concurrent misses share one upstream call.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/aruvi/kot-gateway/internal/orders"
	"github.com/aruvi/kot-gateway/pkg/logger"
	"github.com/aruvi/kot-gateway/pkg/redis"
)

const (
	productsKey   = "products"
	categoriesKey = "categories"
)

type getter interface {
	Get(ctx context.Context, operation, path string, out any) error
}

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(parts ...string) string
}

// Product is a menu item.
type Product struct {
	ID         orders.FlexibleID `json:"id"`
	Name       string            `json:"name"`
	Price      decimal.Decimal   `json:"price"`
	CategoryID orders.FlexibleID `json:"categoryId"`
}

// Category groups products on the menu.
type Category struct {
	ID   orders.FlexibleID `json:"id"`
	Name string            `json:"name"`
}

// Query filters Products. Both fields are optional.
type Query struct {
	Search     string
	CategoryID string
}

// Service lists products and categories.
type Service struct {
	client getter
	cache  cache
	ttl    time.Duration
	logg   *logger.Logger
	group  singleflight.Group

	mu       sync.RWMutex
	lastGood map[string][]byte
}

// NewService builds the catalog. cache may be nil, in which case every call
// goes upstream and only the last good answer is kept in memory.
func NewService(client getter, c cache, ttl time.Duration, logg *logger.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("api client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{client: client, cache: c, ttl: ttl, logg: logg, lastGood: map[string][]byte{}}, nil
}

// Products returns products matching q, sorted by name.
func (s *Service) Products(ctx context.Context, q Query) ([]Product, error) {
	var all []Product
	if err := s.load(ctx, productsKey, "products.list", &all); err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	category := strings.TrimSpace(q.CategoryID)
	out := make([]Product, 0, len(all))
	for _, p := range all {
		if category != "" && p.CategoryID.String() != category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Categories returns every category sorted by name.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	var all []Category
	if err := s.load(ctx, categoriesKey, "categories.list", &all); err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return strings.ToLower(all[i].Name) < strings.ToLower(all[j].Name)
	})
	return all, nil
}

// Invalidate drops cached listings so the next call goes upstream.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, s.cache.CacheKey(productsKey), s.cache.CacheKey(categoriesKey))
}

// load fills out from cache, or upstream on a miss. An upstream failure
// falls back to the last good answer when there is one.
func (s *Service) load(ctx context.Context, name, operation string, out any) error {
	if raw, ok := s.cached(ctx, name); ok {
		if err := json.Unmarshal(raw, out); err == nil {
			return nil
		}
		s.logg.Warn(s.logg.WithField(ctx, "key", name), "catalog.cache.corrupt")
	}

	v, err, _ := s.group.Do(name, func() (any, error) {
		var payload json.RawMessage
		if err := s.client.Get(ctx, operation, name, &payload); err != nil {
			return nil, err
		}
		if len(payload) == 0 {
			payload = json.RawMessage("[]")
		}
		s.store(ctx, name, payload)
		return []byte(payload), nil
	})
	if err != nil {
		s.mu.RLock()
		stale, ok := s.lastGood[name]
		s.mu.RUnlock()
		if !ok {
			return err
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"key": name, "error": err.Error()}), "catalog.upstream.stale")
		return json.Unmarshal(stale, out)
	}
	return json.Unmarshal(v.([]byte), out)
}

func (s *Service) cached(ctx context.Context, name string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.cache.CacheKey(name))
	if err != nil {
		if !redis.IsMiss(err) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "catalog.cache.read_failed")
		}
		return nil, false
	}
	return []byte(raw), true
}

func (s *Service) store(ctx context.Context, name string, payload []byte) {
	s.mu.Lock()
	s.lastGood[name] = payload
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.CacheKey(name), string(payload), s.ttl); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "catalog.cache.write_failed")
	}
}
