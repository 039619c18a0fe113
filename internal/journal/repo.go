// Package journal keeps a local history of printed kitchen tickets.
package journal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aruvi/kot-gateway/pkg/db"
	pkgerrors "github.com/aruvi/kot-gateway/pkg/errors"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Repository handles KOT record persistence.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository binds a GORM DB to journal operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Create stores a record, assigning an id and print time when missing.
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record is required")
	}
	if strings.TrimSpace(rec.TableID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "table id is required")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.PrintedAt.IsZero() {
		rec.PrintedAt = r.now()
	}
	rec.PrintedAt = rec.PrintedAt.UTC()
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "ticket already recorded")
		}
		return err
	}
	return nil
}

// ListByTable returns the newest records for a table first.
func (r *Repository) ListByTable(ctx context.Context, tableID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	var out []Record
	err := r.db.WithContext(ctx).
		Where("table_id = ?", tableID).
		Order("printed_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
