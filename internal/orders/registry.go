package orders

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
	"github.com/aruvi/kot-gateway/pkg/logger"
)

// Registry hands out one Engine per table so every caller working on a
// table shares its operation lock.
type Registry struct {
	store Store
	logg  *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Engine
}

func NewRegistry(store Store, logg *logger.Logger) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("order store required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Registry{store: store, logg: logg, sessions: map[string]*Engine{}}, nil
}

// Session returns the engine for tableID, creating it on first use.
func (r *Registry) Session(tableID string) (*Engine, error) {
	tableID = strings.TrimSpace(tableID)
	if tableID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[tableID]; ok {
		return e, nil
	}
	e := newEngine(tableID, r.store, r.logg)
	e.release = r.drop
	r.sessions[tableID] = e
	return e, nil
}

// Abandon discards a table session without touching the store. The next
// Session call for the table starts fresh.
func (r *Registry) Abandon(tableID string) bool {
	r.mu.Lock()
	e, ok := r.sessions[tableID]
	if ok {
		delete(r.sessions, tableID)
	}
	r.mu.Unlock()
	if ok {
		e.abandon()
	}
	return ok
}

// Active lists tables with a live session.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) drop(e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[e.tableID]; ok && cur == e {
		delete(r.sessions, e.tableID)
	}
}
