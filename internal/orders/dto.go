package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexibleID accepts identifiers encoded as JSON strings or numbers. Older
// backend generations emit numeric table and product ids.
type FlexibleID string

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = FlexibleID(n.String())
	return nil
}

func (id FlexibleID) String() string {
	return string(id)
}

// Line is one product entry within a table's order. ProductID is the line
// identity; a table never holds two lines for the same product.
type Line struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
}

// Subtotal is quantity times unit price.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Source says where the lines of a loaded order came from.
type Source string

const (
	// SourceRemote means the order was fetched from the store.
	SourceRemote Source = "remote"
	// SourceEmpty means the store has no order for the table yet.
	SourceEmpty Source = "empty"
	// SourceUnavailable means the fetch failed and the lines are a stand-in.
	SourceUnavailable Source = "unavailable"
)

// Order is a table's view of its lines plus derived totals.
type Order struct {
	TableID string `json:"tableId"`
	Lines   []Line `json:"lines"`
	Source  Source `json:"source"`
}

// LineCount is the number of distinct lines.
func (o Order) LineCount() int {
	return len(o.Lines)
}

// TotalQuantity sums line quantities.
func (o Order) TotalQuantity() int {
	total := 0
	for _, l := range o.Lines {
		total += l.Quantity
	}
	return total
}

// TotalAmount sums quantity times unit price over all lines.
func (o Order) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// IsEmpty reports whether the order has no lines.
func (o Order) IsEmpty() bool {
	return len(o.Lines) == 0
}

// Clone deep-copies the order so later mutations cannot reach it.
func (o Order) Clone() Order {
	out := o
	out.Lines = cloneLines(o.Lines)
	return out
}

func cloneLines(lines []Line) []Line {
	if lines == nil {
		return []Line{}
	}
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

// find returns the index of productID within lines or -1.
func find(lines []Line, productID string) int {
	for i, l := range lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// normalize merges duplicate product lines into the first occurrence,
// summing quantities and keeping first-seen order.
func normalize(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.ProductID == "" {
			continue
		}
		if idx := find(out, l.ProductID); idx >= 0 {
			out[idx].Quantity += l.Quantity
			continue
		}
		out = append(out, l)
	}
	return out
}

// remoteOrder mirrors the backend order payload.
type remoteOrder struct {
	KudilID   FlexibleID   `json:"kudilId"`
	Items     []remoteItem `json:"items"`
	Total     *float64     `json:"total,omitempty"`
	ItemCount *int         `json:"itemCount,omitempty"`
}

type remoteItem struct {
	ProductID   FlexibleID      `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (r remoteOrder) toOrder(tableID string) Order {
	lines := make([]Line, 0, len(r.Items))
	for _, item := range r.Items {
		lines = append(lines, Line{
			ProductID:   item.ProductID.String(),
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.Price,
		})
	}
	id := r.KudilID.String()
	if id == "" {
		id = tableID
	}
	return Order{TableID: id, Lines: normalize(lines), Source: SourceRemote}
}

// addItemRequest is the body of POST /orders/{tableId}/items.
type addItemRequest struct {
	ProductID   string      `json:"productId"`
	ProductName string      `json:"productName"`
	Quantity    int         `json:"quantity"`
	Price       json.Number `json:"price"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

type completeRequest struct {
	Completed bool `json:"completed"`
}

// Completion is the backend acknowledgement of a completed order.
type Completion struct {
	TableID   FlexibleID `json:"kudilId"`
	Completed bool       `json:"completed"`
	Timestamp int64      `json:"timestamp"`
}
