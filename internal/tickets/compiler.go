// Package tickets renders kitchen order tickets as printer markup.
//
// Output uses the receipt printer tag set: <CB>..</CB> centred bold large,
// <CM>..</CM> centred medium, <C>..</C> centred; untagged lines print left
// aligned. Rendering is pure: identical input yields identical bytes.
package tickets

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/aruvi/kot-gateway/internal/orders"
)

const (
	// DefaultWidth fits 58mm paper.
	DefaultWidth = 32
	// MinWidth is the narrowest layout that still holds the item table.
	MinWidth = 24

	// TimestampLayout renders DD-MM-YY HH:mm:ss.
	TimestampLayout = "02-01-06 15:04:05"

	seqWidth     = 4
	qtyWidth     = 5
	trailingFeed = "\n\n\n"
)

// Header is the vendor block printed at the top of every ticket.
type Header struct {
	Name  string
	Lines []string
}

// Ticket is the input to Render.
type Ticket struct {
	TableID   string
	Waiter    string
	Label     string
	Lines     []orders.Line
	PrintedAt time.Time
}

// Compiler renders tickets for one venue and paper width.
type Compiler struct {
	header Header
	width  int
}

// NewCompiler builds a compiler. Widths below MinWidth fall back to DefaultWidth.
func NewCompiler(header Header, width int) *Compiler {
	if width < MinWidth {
		width = DefaultWidth
	}
	return &Compiler{header: header, width: width}
}

// Width returns the paper width in columns.
func (c *Compiler) Width() int {
	return c.width
}

// Compile renders the standard kitchen ticket for a table.
func (c *Compiler) Compile(tableID string, lines []orders.Line, at time.Time) string {
	return c.Render(Ticket{TableID: tableID, Lines: lines, PrintedAt: at})
}

// Render lays out a ticket. Lines print in the given order; empty input
// produces a valid ticket with a zero total.
func (c *Compiler) Render(t Ticket) string {
	var b strings.Builder
	heavy := strings.Repeat("=", c.width)
	light := strings.Repeat("-", c.width)

	c.writeHeader(&b)
	centred(&b, heavy)
	bold(&b, "KITCHEN ORDER")
	if label := clean(t.Label); label != "" {
		medium(&b, label)
	}
	centred(&b, heavy)

	plain(&b, "TABLE: "+clean(t.TableID))
	plain(&b, "DATE : "+t.PrintedAt.Format(TimestampLayout))
	if waiter := clean(t.Waiter); waiter != "" {
		plain(&b, "WAITER: "+waiter)
	}

	plain(&b, light)
	plain(&b, c.row("No", "Item", "Qty"))
	plain(&b, light)

	total := 0
	for i, line := range t.Lines {
		total += line.Quantity
		plain(&b, c.row(strconv.Itoa(i+1), clean(line.ProductName), strconv.Itoa(line.Quantity)))
	}

	plain(&b, light)
	plain(&b, c.row("", "TOTAL QTY", strconv.Itoa(total)))
	centred(&b, heavy)
	centred(&b, "--- END OF ORDER ---")
	b.WriteString(trailingFeed)
	return b.String()
}

// CompileTest renders the diagnostic ticket used to verify a printer.
func (c *Compiler) CompileTest(at time.Time) string {
	var b strings.Builder
	bold(&b, "TEST PRINT")
	centred(&b, "Printer Connected Successfully!")
	if name := clean(c.header.Name); name != "" {
		centred(&b, name)
	}
	centred(&b, at.Format(TimestampLayout))
	b.WriteString(trailingFeed)
	return b.String()
}

func (c *Compiler) writeHeader(b *strings.Builder) {
	if name := clean(c.header.Name); name != "" {
		bold(b, fit(name, c.width))
	}
	for _, l := range c.header.Lines {
		if l = clean(l); l != "" {
			medium(b, fit(l, c.width))
		}
	}
}

// row lays out the three item columns: sequence, name and right-aligned
// quantity. The name column absorbs the remaining width.
func (c *Compiler) row(seq, name, qty string) string {
	nameWidth := c.width - seqWidth - qtyWidth
	return fit(seq, seqWidth) + fit(name, nameWidth) + fmt.Sprintf("%*s", qtyWidth, qty)
}

// fit truncates s to n runes and right-pads it with spaces to exactly n.
func fit(s string, n int) string {
	count := utf8.RuneCountInString(s)
	if count > n {
		runes := []rune(s)
		return string(runes[:n])
	}
	return s + strings.Repeat(" ", n-count)
}

// clean strips control characters and markup delimiters from user text.
func clean(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case r == '<' || r == '>':
			return -1
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, s))
}

func plain(b *strings.Builder, s string) {
	b.WriteString(s)
	b.WriteByte('\n')
}

func centred(b *strings.Builder, s string) {
	b.WriteString("<C>" + s + "</C>\n")
}

func bold(b *strings.Builder, s string) {
	b.WriteString("<CB>" + s + "</CB>\n")
}

func medium(b *strings.Builder, s string) {
	b.WriteString("<CM>" + s + "</CM>\n")
}
