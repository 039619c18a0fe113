// Package tables derives the venue's table board from the remote orders.
package tables

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/aruvi/kot-gateway/internal/orders"
	"github.com/aruvi/kot-gateway/pkg/apiclient"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

type getter interface {
	Get(ctx context.Context, operation, path string, out any) error
}

type orderLister interface {
	List(ctx context.Context) ([]orders.Order, error)
}

type activeSessions interface {
	Active() []string
}

// Table is one seating unit on the board.
type Table struct {
	ID            string          `json:"id"`
	Occupied      bool            `json:"occupied"`
	LineCount     int             `json:"lineCount"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	InSession     bool            `json:"inSession"`
	Stale         bool            `json:"stale,omitempty"`
}

type venue struct {
	ID         string `json:"id"`
	ShopName   string `json:"shopName"`
	NoOfTables int    `json:"noOfTables"`
}

// Board lists tables 1..N with occupancy.
type Board struct {
	client       getter
	orders       orderLister
	sessions     activeSessions
	venueID      string
	defaultCount int
	logg         *logger.Logger

	mu     sync.Mutex
	count  int
	lookup singleflight.Group
}

// Options configure a Board. Client and VenueID are optional; without them
// the table count is DefaultCount.
type Options struct {
	Client       getter
	Orders       orderLister
	Sessions     activeSessions
	VenueID      string
	DefaultCount int
	Logger       *logger.Logger
}

func NewBoard(opts Options) (*Board, error) {
	if opts.Orders == nil {
		return nil, fmt.Errorf("order lister required")
	}
	if opts.DefaultCount <= 0 {
		return nil, fmt.Errorf("default table count must be positive")
	}
	b := &Board{
		client:       opts.Client,
		orders:       opts.Orders,
		sessions:     opts.Sessions,
		venueID:      opts.VenueID,
		defaultCount: opts.DefaultCount,
		logg:         opts.Logger,
	}
	if b.logg == nil {
		b.logg = logger.Nop()
	}
	return b, nil
}

// List returns every table. When the order listing fails the tables are
// still returned, all free and flagged stale.
func (b *Board) List(ctx context.Context) []Table {
	count := b.tableCount(ctx)
	board := make([]Table, 0, count)
	index := make(map[string]int, count)
	for i := 1; i <= count; i++ {
		id := strconv.Itoa(i)
		index[id] = len(board)
		board = append(board, Table{ID: id, TotalAmount: decimal.Zero})
	}

	if b.sessions != nil {
		for _, id := range b.sessions.Active() {
			if i, ok := index[id]; ok {
				board[i].InSession = true
			}
		}
	}

	list, err := b.orders.List(ctx)
	if err != nil {
		b.logg.Warn(b.logg.WithField(ctx, "error", err.Error()), "tables.orders.unavailable")
		for i := range board {
			board[i].Stale = true
		}
		return board
	}

	var extra []Table
	for _, o := range list {
		t := Table{
			ID:            o.TableID,
			Occupied:      o.LineCount() > 0,
			LineCount:     o.LineCount(),
			TotalQuantity: o.TotalQuantity(),
			TotalAmount:   o.TotalAmount(),
		}
		if i, ok := index[o.TableID]; ok {
			t.InSession = board[i].InSession
			board[i] = t
			continue
		}
		if t.Occupied {
			extra = append(extra, t)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].ID < extra[j].ID })
	return append(board, extra...)
}

// tableCount asks the venue record once and remembers a good answer. One
// lookup runs at a time; a caller whose context ends first falls back to the
// default count instead of waiting on it.
func (b *Board) tableCount(ctx context.Context) int {
	b.mu.Lock()
	count := b.count
	b.mu.Unlock()
	if count > 0 {
		return count
	}
	if b.client == nil || b.venueID == "" {
		return b.defaultCount
	}

	ch := b.lookup.DoChan("venue", func() (any, error) {
		var v venue
		err := b.client.Get(context.WithoutCancel(ctx), "hotels.get", apiclient.Path("hotels", b.venueID), &v)
		if err != nil {
			b.logg.Warn(b.logg.WithField(ctx, "error", err.Error()), "tables.venue.unavailable")
			return 0, nil
		}
		if v.NoOfTables > 0 {
			b.mu.Lock()
			b.count = v.NoOfTables
			b.mu.Unlock()
		}
		return v.NoOfTables, nil
	})
	select {
	case res := <-ch:
		if n, _ := res.Val.(int); n > 0 {
			return n
		}
	case <-ctx.Done():
	}
	return b.defaultCount
}
