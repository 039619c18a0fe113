package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aruvi/kot-gateway/api/middleware"
	"github.com/aruvi/kot-gateway/internal/kitchen"
	"github.com/aruvi/kot-gateway/internal/orders"
	"github.com/aruvi/kot-gateway/internal/tickets"
	"github.com/aruvi/kot-gateway/internal/waiters"
	"github.com/aruvi/kot-gateway/pkg/config"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
)

type recordingPrinter struct {
	mu      sync.Mutex
	tickets []string
	err     error
}

func (p *recordingPrinter) Send(_ context.Context, ticket string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tickets = append(p.tickets, ticket)
	return nil
}

type harness struct {
	store    *orders.MemoryStore
	registry *orders.Registry
	printer  *recordingPrinter
	kitchen  *kitchen.Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := orders.NewMemoryStore()
	registry, err := orders.NewRegistry(store, nil)
	require.NoError(t, err)
	h := &harness{store: store, registry: registry, printer: &recordingPrinter{}}
	h.kitchen, err = kitchen.NewDispatcher(kitchen.Config{
		Sessions: registry,
		Compiler: tickets.NewCompiler(tickets.Header{Name: "ARUVI"}, tickets.DefaultWidth),
		Printer:  h.printer,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) seed(t *testing.T, tableID string, lines ...orders.Line) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, h.store.AddItem(context.Background(), tableID, l))
	}
}

func orderLine(id, name string, qty int, price string) orders.Line {
	return orders.Line{ProductID: id, ProductName: name, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func newRequest(method, target, body string, params map[string]string) *http.Request {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	ctx = middleware.WithWaiter(ctx, "w-7", "Kavya")
	return req.WithContext(ctx)
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type orderEnvelope struct {
	Data struct {
		TableID       string `json:"tableId"`
		State         string `json:"state"`
		Source        string `json:"source"`
		LineCount     int    `json:"lineCount"`
		TotalQuantity int    `json:"totalQuantity"`
		TotalAmount   string `json:"totalAmount"`
		Lines         []struct {
			ProductID    string `json:"productId"`
			Quantity     int    `json:"quantity"`
			Subtotal     string `json:"subtotal"`
			SentQuantity int    `json:"sentQuantity"`
		} `json:"lines"`
	} `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) orderEnvelope {
	t.Helper()
	var env orderEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestGetOrderReturnsTotals(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "3", orderLine("p1", "Idli", 2, "30"), orderLine("p2", "Dosa", 1, "55.50"))

	rec := serve(GetOrder(h.registry, nil), newRequest(http.MethodGet, "/api/v1/tables/3/order", "", map[string]string{"tableId": "3"}))
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeOrder(t, rec)
	assert.Equal(t, "3", env.Data.TableID)
	assert.Equal(t, "remote", env.Data.Source)
	assert.Equal(t, 2, env.Data.LineCount)
	assert.Equal(t, 3, env.Data.TotalQuantity)
	assert.Equal(t, "115.5", env.Data.TotalAmount)
	assert.Equal(t, "60", env.Data.Lines[0].Subtotal)
}

func TestGetOrderForFreshTableIsEmpty(t *testing.T) {
	h := newHarness(t)
	rec := serve(GetOrder(h.registry, nil), newRequest(http.MethodGet, "/", "", map[string]string{"tableId": "9"}))
	require.Equal(t, http.StatusOK, rec.Code)

	env := decodeOrder(t, rec)
	assert.Equal(t, "empty", env.Data.Source)
	assert.Equal(t, 0, env.Data.LineCount)
	assert.Empty(t, env.Data.Lines)
}

func TestAddOrderLineMergesExistingProduct(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "1", orderLine("p1", "Idli", 2, "30"))
	handler := AddOrderLine(h.registry, nil)

	rec := serve(handler, newRequest(http.MethodPost, "/", `{"productId":"p1","productName":"Idli","quantity":3,"price":"30"}`, map[string]string{"tableId": "1"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env := decodeOrder(t, rec)
	require.Len(t, env.Data.Lines, 1)
	assert.Equal(t, 5, env.Data.Lines[0].Quantity)
	assert.Equal(t, "150", env.Data.TotalAmount)
}

func TestAddOrderLineRejectsInvalidQuantity(t *testing.T) {
	h := newHarness(t)
	rec := serve(AddOrderLine(h.registry, nil), newRequest(http.MethodPost, "/", `{"productId":"p1","productName":"Idli","quantity":0,"price":"30"}`, map[string]string{"tableId": "1"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, rec).Error.Code)

	all, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateOrderLineRejectsZeroQuantity(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "1", orderLine("p1", "Idli", 2, "30"))

	rec := serve(UpdateOrderLine(h.registry, nil), newRequest(http.MethodPut, "/", `{"quantity":0}`, map[string]string{"tableId": "1", "productId": "p1"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	order, err := h.store.Fetch(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, 2, order.Lines[0].Quantity)
}

func TestUpdateAndRemoveOrderLine(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "1", orderLine("p1", "Idli", 2, "30"), orderLine("p2", "Vada", 1, "20"))

	rec := serve(UpdateOrderLine(h.registry, nil), newRequest(http.MethodPut, "/", `{"quantity":4}`, map[string]string{"tableId": "1", "productId": "p1"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 5, decodeOrder(t, rec).Data.TotalQuantity)

	rec = serve(RemoveOrderLine(h.registry, nil), newRequest(http.MethodDelete, "/", "", map[string]string{"tableId": "1", "productId": "p2"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeOrder(t, rec)
	assert.Equal(t, 1, env.Data.LineCount)
	assert.Equal(t, "120", env.Data.TotalAmount)
}

func TestClearOrder(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "2", orderLine("p1", "Idli", 2, "30"))

	rec := serve(ClearOrder(h.registry, nil), newRequest(http.MethodDelete, "/", "", map[string]string{"tableId": "2"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeOrder(t, rec)
	assert.Equal(t, 0, env.Data.LineCount)
	assert.Equal(t, "empty", env.Data.Source)
}

func TestCompleteEmptyOrderIsRejected(t *testing.T) {
	h := newHarness(t)
	rec := serve(CompleteOrder(h.kitchen, nil), newRequest(http.MethodPost, "/", "", map[string]string{"tableId": "5"}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeOrderEmpty), decodeError(t, rec).Error.Code)
}

func TestCompleteOrderClearsTable(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "5", orderLine("p1", "Idli", 2, "30"))
	_, err := h.registry.Session("5")
	require.NoError(t, err)

	rec := serve(CompleteOrder(h.kitchen, nil), newRequest(http.MethodPost, "/", "", map[string]string{"tableId": "5"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Data orders.Completion `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.True(t, env.Data.Completed)
	assert.Equal(t, orders.FlexibleID("5"), env.Data.TableID)
	assert.Empty(t, h.registry.Active())
}

func TestAbandonSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.registry.Session("4")
	require.NoError(t, err)

	rec := serve(AbandonSession(h.registry, nil), newRequest(http.MethodDelete, "/", "", map[string]string{"tableId": "4"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"tableId":"4","abandoned":true}}`, rec.Body.String())
	assert.Empty(t, h.registry.Active())
}

func TestSendKOTPrintsAndMarksSent(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "6", orderLine("p1", "Idli", 2, "30"))

	rec := serve(SendKOT(h.kitchen, nil), newRequest(http.MethodPost, "/", "", map[string]string{"tableId": "6"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, h.printer.tickets, 1)
	assert.Contains(t, h.printer.tickets[0], "TABLE: 6")

	var receipt struct {
		Data kitchen.Receipt `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, 2, receipt.Data.TotalQuantity)
	assert.NotEmpty(t, receipt.Data.KOTID)

	rec = serve(GetOrder(h.registry, nil), newRequest(http.MethodGet, "/", "", map[string]string{"tableId": "6"}))
	assert.Equal(t, 2, decodeOrder(t, rec).Data.Lines[0].SentQuantity)

	rec = serve(SendKOT(h.kitchen, nil), newRequest(http.MethodPost, "/", `{"pendingOnly":true}`, map[string]string{"tableId": "6"}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeOrderEmpty), decodeError(t, rec).Error.Code)
}

func TestSendKOTPrinterFailureLeavesOrderUnsent(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "6", orderLine("p1", "Idli", 2, "30"))
	h.printer.err = pkgerrors.Wrap(pkgerrors.CodePrinterConnect, errors.New("connection refused"), "could not connect to 192.168.1.100:9100")

	rec := serve(SendKOT(h.kitchen, nil), newRequest(http.MethodPost, "/", `{}`, map[string]string{"tableId": "6"}))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	env := decodeError(t, rec)
	assert.Equal(t, string(pkgerrors.CodePrinterConnect), env.Error.Code)
	assert.True(t, env.Error.Retryable)

	engine, err := h.registry.Session("6")
	require.NoError(t, err)
	assert.Equal(t, 0, engine.SentQuantity("p1"))
}

func TestPreviewKOTDoesNotPrint(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "8", orderLine("p1", "Idli", 2, "30"))

	rec := serve(PreviewKOT(h.kitchen, nil), newRequest(http.MethodGet, "/?pendingOnly=false", "", map[string]string{"tableId": "8"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Data kitchen.Preview `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Contains(t, env.Data.Ticket, "KITCHEN ORDER")
	assert.Empty(t, h.printer.tickets)
}

func TestKOTHistoryRejectsBadLimit(t *testing.T) {
	h := newHarness(t)
	rec := serve(KOTHistory(h.kitchen, nil), newRequest(http.MethodGet, "/?limit=500", "", map[string]string{"tableId": "8"}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(KOTHistory(h.kitchen, nil), newRequest(http.MethodGet, "/", "", map[string]string{"tableId": "8"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

type stubWaiters struct {
	identity waiters.Identity
	err      error
	phone    string
}

func (s *stubWaiters) Login(_ context.Context, phone string) (waiters.Identity, error) {
	s.phone = phone
	return s.identity, s.err
}

func TestWaiterLogin(t *testing.T) {
	svc := &stubWaiters{identity: waiters.Identity{ID: "w-1", Name: "Ravi"}}
	rec := serve(WaiterLogin(svc, nil), newRequest(http.MethodPost, "/", `{"phone":"98765 43210"}`, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"id":"w-1","name":"Ravi"}}`, rec.Body.String())
	assert.Equal(t, "98765 43210", svc.phone)

	svc.err = pkgerrors.New(pkgerrors.CodeNotFound, "no waiter with that phone number")
	rec = serve(WaiterLogin(svc, nil), newRequest(http.MethodPost, "/", `{"phone":"9876543210"}`, nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no waiter with that phone number", decodeError(t, rec).Error.Message)

	rec = serve(WaiterLogin(svc, nil), newRequest(http.MethodPost, "/", `{}`, nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}

	rec := serve(HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{}, "redis": nil}), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dev", rec.Header().Get("X-KOT-Env"))

	rec = serve(HealthReady(cfg, nil, map[string]Pinger{"db": stubPinger{err: errors.New("db down")}}), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeDependency), decodeError(t, rec).Error.Code)
}

func TestHealthLive(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "prod"}}
	rec := serve(HealthLive(cfg), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"status":"live"}}`, rec.Body.String())
}
