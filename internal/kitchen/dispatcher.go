// Package kitchen sends table orders to the kitchen printer.
package kitchen

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aruvi/kot-gateway/internal/events"
	"github.com/aruvi/kot-gateway/internal/journal"
	"github.com/aruvi/kot-gateway/internal/orders"
	"github.com/aruvi/kot-gateway/internal/tickets"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

// AddOnLabel marks tickets that carry only lines added since the last print.
const AddOnLabel = "ADD-ON"

type sessions interface {
	Session(tableID string) (*orders.Engine, error)
}

type renderer interface {
	Render(t tickets.Ticket) string
}

type sender interface {
	Send(ctx context.Context, ticket string) error
}

type recorder interface {
	Create(ctx context.Context, rec *journal.Record) error
	ListByTable(ctx context.Context, tableID string, limit int) ([]journal.Record, error)
}

// Request describes one "send to kitchen" action.
type Request struct {
	TableID     string
	WaiterID    string
	WaiterName  string
	PendingOnly bool
}

// Receipt is returned after a ticket printed.
type Receipt struct {
	KOTID         string          `json:"kotId"`
	TableID       string          `json:"tableId"`
	PendingOnly   bool            `json:"pendingOnly"`
	Lines         []orders.Line   `json:"lines"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PrintedAt     time.Time       `json:"printedAt"`
}

// Preview is the rendered ticket without printing.
type Preview struct {
	TableID     string        `json:"tableId"`
	PendingOnly bool          `json:"pendingOnly"`
	Lines       []orders.Line `json:"lines"`
	Ticket      string        `json:"ticket"`
}

// Config wires the dispatcher.
type Config struct {
	Sessions  sessions
	Compiler  renderer
	Printer   sender
	Journal   recorder
	Publisher events.Publisher
	Logger    *logger.Logger
	VenueID   string
	Location  *time.Location
	Now       func() time.Time
}

// Dispatcher runs snapshot, render, print and mark for a table.
type Dispatcher struct {
	sessions  sessions
	compiler  renderer
	printer   sender
	journal   recorder
	publisher events.Publisher
	logg      *logger.Logger
	venueID   string
	loc       *time.Location
	now       func() time.Time

	// one send per table at a time, from snapshot to MarkSent
	mu     sync.Mutex
	tables map[string]*sync.Mutex
}

// NewDispatcher validates cfg and applies defaults.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("order sessions required")
	}
	if cfg.Compiler == nil {
		return nil, fmt.Errorf("ticket compiler required")
	}
	if cfg.Printer == nil {
		return nil, fmt.Errorf("printer required")
	}
	d := &Dispatcher{
		sessions:  cfg.Sessions,
		compiler:  cfg.Compiler,
		printer:   cfg.Printer,
		journal:   cfg.Journal,
		publisher: cfg.Publisher,
		logg:      cfg.Logger,
		venueID:   cfg.VenueID,
		loc:       cfg.Location,
		now:       cfg.Now,
		tables:    map[string]*sync.Mutex{},
	}
	if d.publisher == nil {
		d.publisher = events.Noop{}
	}
	if d.logg == nil {
		d.logg = logger.Nop()
	}
	if d.loc == nil {
		d.loc = time.UTC
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d, nil
}

// Send prints the table's current order. The order is only marked as sent
// after the printer accepted the ticket; any failure leaves it untouched.
func (d *Dispatcher) Send(ctx context.Context, req Request) (Receipt, error) {
	ctx = d.logg.WithTableID(ctx, req.TableID)
	engine, err := d.sessions.Session(req.TableID)
	if err != nil {
		return Receipt{}, err
	}
	unlock := d.lockTable(engine.TableID())
	defer unlock()

	snap, lines, err := d.prepare(ctx, engine, req.PendingOnly)
	if err != nil {
		return Receipt{}, err
	}
	req.TableID = snap.TableID

	at := d.now().In(d.loc)
	text := d.compiler.Render(d.ticket(req, lines, at))
	if err := d.printer.Send(ctx, text); err != nil {
		d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "kot.print.failed")
		return Receipt{}, err
	}
	engine.MarkSent(snap)

	receipt := Receipt{
		KOTID:       uuid.NewString(),
		TableID:     snap.TableID,
		PendingOnly: req.PendingOnly,
		Lines:       lines,
		PrintedAt:   at,
	}
	receipt.TotalAmount = decimal.Zero
	for _, l := range lines {
		receipt.TotalQuantity += l.Quantity
		receipt.TotalAmount = receipt.TotalAmount.Add(l.Subtotal())
	}

	d.record(ctx, req, receipt, text)
	d.publish(ctx, events.TypeKOTPrinted, req.WaiterID, kotPrinted(receipt))
	d.logg.Info(d.logg.WithFields(ctx, map[string]any{
		"kot_id":         receipt.KOTID,
		"lines":          len(lines),
		"total_quantity": receipt.TotalQuantity,
		"pending_only":   req.PendingOnly,
	}), "kot.printed")
	return receipt, nil
}

// Preview renders the ticket Send would print, without printing it.
func (d *Dispatcher) Preview(ctx context.Context, req Request) (Preview, error) {
	ctx = d.logg.WithTableID(ctx, req.TableID)
	engine, err := d.sessions.Session(req.TableID)
	if err != nil {
		return Preview{}, err
	}
	snap, lines, err := d.prepare(ctx, engine, req.PendingOnly)
	if err != nil {
		return Preview{}, err
	}
	req.TableID = snap.TableID
	text := d.compiler.Render(d.ticket(req, lines, d.now().In(d.loc)))
	return Preview{TableID: snap.TableID, PendingOnly: req.PendingOnly, Lines: lines, Ticket: text}, nil
}

// Complete finalises the table's order and announces it.
func (d *Dispatcher) Complete(ctx context.Context, tableID, waiterID string) (orders.Completion, error) {
	ctx = d.logg.WithTableID(ctx, tableID)
	engine, err := d.sessions.Session(tableID)
	if err != nil {
		return orders.Completion{}, err
	}
	ack, err := engine.Complete(ctx)
	if err != nil {
		return orders.Completion{}, err
	}
	d.publish(ctx, events.TypeOrderCompleted, waiterID, events.OrderCompleted{TableID: engine.TableID()})
	return ack, nil
}

// History lists the most recent tickets printed for a table.
func (d *Dispatcher) History(ctx context.Context, tableID string, limit int) ([]journal.Record, error) {
	if d.journal == nil {
		return []journal.Record{}, nil
	}
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table id is required")
	}
	records, err := d.journal.ListByTable(ctx, tableID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list kot history")
	}
	return records, nil
}

func (d *Dispatcher) prepare(ctx context.Context, engine *orders.Engine, pendingOnly bool) (orders.Order, []orders.Line, error) {
	if engine.State() == orders.StateUnloaded {
		engine.Load(ctx)
	}

	snap := engine.Snapshot()
	if snap.IsEmpty() {
		if snap.Source == orders.SourceUnavailable {
			return orders.Order{}, nil, pkgerrors.New(pkgerrors.CodeDependency, "order could not be loaded")
		}
		return orders.Order{}, nil, pkgerrors.New(pkgerrors.CodeOrderEmpty, "order has no items to send")
	}

	lines := snap.Lines
	if pendingOnly {
		lines = engine.Pending(snap)
		if len(lines) == 0 {
			return orders.Order{}, nil, pkgerrors.New(pkgerrors.CodeOrderEmpty, "every item was already sent to the kitchen")
		}
	}
	return snap, lines, nil
}

func (d *Dispatcher) lockTable(tableID string) func() {
	d.mu.Lock()
	m, ok := d.tables[tableID]
	if !ok {
		m = &sync.Mutex{}
		d.tables[tableID] = m
	}
	d.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (d *Dispatcher) ticket(req Request, lines []orders.Line, at time.Time) tickets.Ticket {
	t := tickets.Ticket{
		TableID:   req.TableID,
		Waiter:    req.WaiterName,
		Lines:     lines,
		PrintedAt: at,
	}
	if req.PendingOnly {
		t.Label = AddOnLabel
	}
	return t
}

func (d *Dispatcher) record(ctx context.Context, req Request, r Receipt, body string) {
	if d.journal == nil {
		return
	}
	id, err := uuid.Parse(r.KOTID)
	if err != nil {
		id = uuid.New()
	}
	rec := &journal.Record{
		ID:            id,
		TableID:       r.TableID,
		WaiterID:      req.WaiterID,
		LineCount:     len(r.Lines),
		TotalQuantity: r.TotalQuantity,
		TotalAmount:   r.TotalAmount,
		PendingOnly:   r.PendingOnly,
		Body:          body,
		PrintedAt:     r.PrintedAt,
	}
	if err := d.journal.Create(ctx, rec); err != nil {
		d.logg.Error(ctx, "kot.journal.failed", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, t events.Type, waiterID string, payload any) {
	env, err := events.NewEnvelope(t, d.venueID, waiterID, d.now(), payload)
	if err == nil {
		err = d.publisher.Publish(ctx, env)
	}
	if err != nil {
		d.logg.Error(d.logg.WithField(ctx, "event", string(t)), "events.publish.failed", err)
	}
}

func kotPrinted(r Receipt) events.KOTPrinted {
	items := make([]events.KOTItem, 0, len(r.Lines))
	for _, l := range r.Lines {
		items = append(items, events.KOTItem{ProductID: l.ProductID, ProductName: l.ProductName, Quantity: l.Quantity})
	}
	return events.KOTPrinted{
		KOTID:         r.KOTID,
		TableID:       r.TableID,
		PendingOnly:   r.PendingOnly,
		Items:         items,
		TotalQuantity: r.TotalQuantity,
		TotalAmount:   r.TotalAmount,
	}
}
