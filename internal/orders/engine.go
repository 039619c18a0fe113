package orders

import (
	"context"
	"strings"
	"sync"

	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
	"github.com/shopspring/decimal"
)

// State is the lifecycle of a table session.
type State string

const (
	StateUnloaded  State = "unloaded"
	StateLoaded    State = "loaded"
	StateMutating  State = "mutating"
	StateCompleted State = "completed"
	StateAbandoned State = "abandoned"
)

// Engine owns the local view of one table's order. Every mutation is sent
// to the Store and followed by a reload so the view always reflects the
// store's answer. Mutations on one engine are strictly sequenced.
type Engine struct {
	tableID string
	store   Store
	logg    *logger.Logger
	release func(*Engine)

	op sync.Mutex

	mu    sync.RWMutex
	state State
	order Order
	sent  map[string]int
}

func newEngine(tableID string, store Store, logg *logger.Logger) *Engine {
	return &Engine{
		tableID: tableID,
		store:   store,
		logg:    logg,
		state:   StateUnloaded,
		order:   Order{TableID: tableID, Lines: []Line{}, Source: SourceEmpty},
		sent:    map[string]int{},
	}
}

// TableID returns the table this engine serves.
func (e *Engine) TableID() string {
	return e.tableID
}

// State reports the session lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Load fetches the table's order. A failed fetch yields an empty order
// whose Source is SourceUnavailable; a table with no order yet yields an
// empty order with SourceEmpty.
func (e *Engine) Load(ctx context.Context) Order {
	e.op.Lock()
	defer e.op.Unlock()

	order := e.fetch(ctx)
	e.mu.Lock()
	e.adopt(order)
	e.state = StateLoaded
	out := e.order.Clone()
	e.mu.Unlock()
	return out
}

// AddLine adds a product to the order. When the product already has a
// line the store is asked to raise that line's quantity instead.
func (e *Engine) AddLine(ctx context.Context, line Line) (Order, error) {
	line.ProductID = strings.TrimSpace(line.ProductID)
	line.ProductName = strings.TrimSpace(line.ProductName)
	if err := validateLine(line); err != nil {
		return Order{}, err
	}

	return e.mutate(ctx, "order.add_line", func(current Order) error {
		if idx := find(current.Lines, line.ProductID); idx >= 0 {
			return e.store.UpdateItem(ctx, e.tableID, line.ProductID, current.Lines[idx].Quantity+line.Quantity)
		}
		return e.store.AddItem(ctx, e.tableID, line)
	})
}

// UpdateQuantity sets a line's quantity. Quantities below one are
// rejected without contacting the store; use RemoveLine instead.
func (e *Engine) UpdateQuantity(ctx context.Context, productID string, quantity int) (Order, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity < 1 {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": quantity})
	}

	return e.mutate(ctx, "order.update_quantity", func(Order) error {
		return e.store.UpdateItem(ctx, e.tableID, productID, quantity)
	})
}

// RemoveLine drops a product from the order.
func (e *Engine) RemoveLine(ctx context.Context, productID string) (Order, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Order{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	return e.mutate(ctx, "order.remove_line", func(Order) error {
		return e.store.RemoveItem(ctx, e.tableID, productID)
	})
}

// Clear deletes every line of the table's order without completing it.
func (e *Engine) Clear(ctx context.Context) (Order, error) {
	return e.mutate(ctx, "order.clear", func(Order) error {
		return e.store.Clear(ctx, e.tableID)
	})
}

// Complete finalises the order. An empty order is rejected locally, as
// retryable when the order could not be fetched. On
// success the local view is discarded; on failure it is left untouched.
func (e *Engine) Complete(ctx context.Context) (Completion, error) {
	e.op.Lock()
	defer e.op.Unlock()

	if err := e.ensureUsable(ctx); err != nil {
		return Completion{}, err
	}

	e.mu.RLock()
	empty, source := e.order.IsEmpty(), e.order.Source
	e.mu.RUnlock()
	if empty {
		if source == SourceUnavailable {
			return Completion{}, pkgerrors.New(pkgerrors.CodeDependency, "order could not be loaded")
		}
		return Completion{}, pkgerrors.New(pkgerrors.CodeOrderEmpty, "order has no items to complete")
	}

	prev := e.setState(StateMutating)
	ack, err := e.store.Complete(ctx, e.tableID)
	if err != nil {
		e.setState(prev)
		err = remoteError(err, "complete order")
		e.logg.Error(e.logCtx(ctx), "order.complete.failed", err)
		return Completion{}, err
	}

	e.mu.Lock()
	e.order = Order{TableID: e.tableID, Lines: []Line{}, Source: SourceEmpty}
	e.sent = map[string]int{}
	e.state = StateCompleted
	e.mu.Unlock()

	e.logg.Info(e.logCtx(ctx), "order.completed")
	if e.release != nil {
		e.release(e)
	}
	return ack, nil
}

// Snapshot returns a deep copy of the current view. Later mutations do not
// affect the returned order.
func (e *Engine) Snapshot() Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.order.Clone()
}

// LineCount is the number of distinct lines in the current view.
func (e *Engine) LineCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.order.LineCount()
}

// TotalQuantity sums quantities in the current view.
func (e *Engine) TotalQuantity() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.order.TotalQuantity()
}

// TotalAmount sums quantity times unit price in the current view.
func (e *Engine) TotalAmount() decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.order.TotalAmount()
}

// Pending returns the part of snapshot not yet sent to the kitchen, in
// snapshot order.
func (e *Engine) Pending(snapshot Order) []Line {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Line, 0, len(snapshot.Lines))
	for _, l := range snapshot.Lines {
		if delta := l.Quantity - e.sent[l.ProductID]; delta > 0 {
			l.Quantity = delta
			out = append(out, l)
		}
	}
	return out
}

// MarkSent records that every line of snapshot has reached the kitchen.
func (e *Engine) MarkSent(snapshot Order) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range snapshot.Lines {
		if l.Quantity > e.sent[l.ProductID] {
			e.sent[l.ProductID] = l.Quantity
		}
	}
}

// SentQuantity reports how much of a product has been sent to the kitchen.
func (e *Engine) SentQuantity(productID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sent[productID]
}

func (e *Engine) abandon() {
	e.op.Lock()
	defer e.op.Unlock()
	e.mu.Lock()
	e.state = StateAbandoned
	e.mu.Unlock()
}

// mutate runs one issue, await, reload cycle under the operation lock.
func (e *Engine) mutate(ctx context.Context, event string, issue func(current Order) error) (Order, error) {
	e.op.Lock()
	defer e.op.Unlock()

	if err := e.ensureUsable(ctx); err != nil {
		return Order{}, err
	}

	current := e.Snapshot()
	prev := e.setState(StateMutating)
	if err := issue(current); err != nil {
		e.setState(prev)
		err = remoteError(err, strings.TrimPrefix(event, "order."))
		e.logg.Error(e.logCtx(ctx), event+".failed", err)
		return Order{}, err
	}

	reloaded := e.fetch(ctx)
	e.mu.Lock()
	if reloaded.Source == SourceUnavailable {
		// the write landed but the read-back did not; keep the old lines
		// and flag them as stale
		e.order.Source = SourceUnavailable
	} else {
		e.adopt(reloaded)
	}
	e.state = StateLoaded
	out := e.order.Clone()
	e.mu.Unlock()
	return out, nil
}

// ensureUsable loads a fresh session and rejects abandoned ones. Callers
// hold the operation lock.
func (e *Engine) ensureUsable(ctx context.Context) error {
	switch e.State() {
	case StateAbandoned:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "table session was abandoned")
	case StateUnloaded:
		order := e.fetch(ctx)
		e.mu.Lock()
		e.adopt(order)
		e.state = StateLoaded
		e.mu.Unlock()
	}
	return nil
}

func (e *Engine) fetch(ctx context.Context) Order {
	order, err := e.store.Fetch(ctx, e.tableID)
	if err == nil {
		order.TableID = e.tableID
		order.Lines = normalize(order.Lines)
		if order.Source == "" {
			order.Source = SourceRemote
		}
		return order
	}
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return Order{TableID: e.tableID, Lines: []Line{}, Source: SourceEmpty}
	}
	e.logg.Warn(e.logg.WithField(e.logCtx(ctx), "error", err.Error()), "order.load.failed")
	return Order{TableID: e.tableID, Lines: []Line{}, Source: SourceUnavailable}
}

// adopt replaces the view and trims kitchen bookkeeping to the new lines.
// Callers hold e.mu.
func (e *Engine) adopt(order Order) {
	if order.Lines == nil {
		order.Lines = []Line{}
	}
	e.order = order
	for productID, qty := range e.sent {
		idx := find(order.Lines, productID)
		switch {
		case idx < 0:
			delete(e.sent, productID)
		case order.Lines[idx].Quantity < qty:
			e.sent[productID] = order.Lines[idx].Quantity
		}
	}
}

func (e *Engine) setState(s State) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.state
	e.state = s
	return prev
}

func (e *Engine) logCtx(ctx context.Context) context.Context {
	return e.logg.WithTableID(ctx, e.tableID)
}

func validateLine(line Line) error {
	switch {
	case line.ProductID == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	case line.Quantity < 1:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
			WithDetails(map[string]any{"quantity": line.Quantity})
	case line.UnitPrice.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative").
			WithDetails(map[string]any{"price": line.UnitPrice.String()})
	}
	return nil
}

// remoteError guarantees a typed error for store failures.
func remoteError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action+" failed")
}
