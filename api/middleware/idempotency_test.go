package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
)

type fakeIdemStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeIdemStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeIdemStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeIdemStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	return true, f.Set(ctx, key, value, ttl)
}

func (f *fakeIdemStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
		delete(f.ttls, k)
	}
	return nil
}

func (f *fakeIdemStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func kotRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tables/4/kot", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(WithWaiter(req.Context(), "w-1", "Ravi"))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"send kot", http.MethodPost, "/api/v1/tables/4/kot", ticketIdempotencyTTL, true},
		{"complete order", http.MethodPost, "/api/v1/tables/4/order/complete", ticketIdempotencyTTL, true},
		{"add item", http.MethodPost, "/api/v1/tables/4/order/items", itemIdempotencyTTL, true},
		{"update item", http.MethodPut, "/api/v1/tables/4/order/items/p1", 0, false},
		{"preview", http.MethodGet, "/api/v1/tables/4/kot/preview", 0, false},
		{"login", http.MethodPost, "/api/v1/auth/login", 0, false},
		{"printer test", http.MethodPost, "/api/v1/printer/test", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewarePassesThroughWithoutHeader(t *testing.T) {
	store := newFakeIdemStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, kotRequest("", `{}`))
		if resp.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d", resp.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected nothing stored, got %d records", len(store.data))
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeIdemStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"lineCount":2}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, kotRequest("abc", `{"pendingOnly":false}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", first.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, kotRequest("abc", `{"pendingOnly":false}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if rec.Header().Get("Idempotent-Replay") != "true" {
		t.Fatalf("expected replay marker header")
	}
	if rec.Body.String() != `{"data":{"lineCount":2}}` {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	key := "fake:w-1|POST|/api/v1/tables/4/kot:abc"
	if _, ok := store.data[key]; !ok {
		t.Fatalf("expected record scoped to waiter, got %v", store.data)
	}
	if store.ttls[key] != ticketIdempotencyTTL {
		t.Fatalf("expected ticket ttl, got %v", store.ttls[key])
	}
}

func TestIdempotencyMiddlewareRejectsConcurrentRetry(t *testing.T) {
	store := newFakeIdemStore()
	var inner *httptest.ResponseRecorder
	var handler http.Handler
	calls := 0
	handler = Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if inner == nil {
			inner = httptest.NewRecorder()
			handler.ServeHTTP(inner, kotRequest("tap", `{}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), kotRequest("tap", `{}`))
	if calls != 1 {
		t.Fatalf("expected a single print, got %d", calls)
	}
	if inner.Code != http.StatusConflict || errorCode(t, inner) != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected in-flight retry to conflict, got %d %s", inner.Code, inner.Body.String())
	}
}

func TestIdempotencyMiddlewareReleasesKeyOnServerError(t *testing.T) {
	store := newFakeIdemStore()
	calls := 0
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, kotRequest("retry-me", `{}`))
	if first.Code != http.StatusBadGateway {
		t.Fatalf("expected printer failure to surface, got %d", first.Code)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected key released after server error, got %v", store.data)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, kotRequest("retry-me", `{}`))
	if calls != 2 || second.Code != http.StatusCreated {
		t.Fatalf("expected retry to reach handler, calls=%d code=%d", calls, second.Code)
	}
	if len(store.data) != 1 {
		t.Fatalf("expected the successful response stored, got %d", len(store.data))
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	store := newFakeIdemStore()
	handler := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	path := "/api/v1/tables/2/order/items"
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"productId":"p1","quantity":1}`))
	req.Header.Set("Idempotency-Key", "xyz")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	replay := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"productId":"p1","quantity":3}`))
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeConflict, code)
	}
	if store.ttls["fake:|POST|"+path+":xyz"] != itemIdempotencyTTL {
		t.Fatalf("expected item ttl, got %v", store.ttls)
	}
}
