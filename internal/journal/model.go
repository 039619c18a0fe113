package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record is one printed kitchen order ticket.
type Record struct {
	ID            uuid.UUID       `gorm:"column:id;type:text;primaryKey" json:"id"`
	TableID       string          `gorm:"column:table_id;not null" json:"tableId"`
	WaiterID      string          `gorm:"column:waiter_id;not null;default:''" json:"waiterId,omitempty"`
	LineCount     int             `gorm:"column:line_count;not null" json:"lineCount"`
	TotalQuantity int             `gorm:"column:total_quantity;not null" json:"totalQuantity"`
	TotalAmount   decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null" json:"totalAmount"`
	PendingOnly   bool            `gorm:"column:pending_only;not null" json:"pendingOnly"`
	Body          string          `gorm:"column:body;not null" json:"body"`
	PrintedAt     time.Time       `gorm:"column:printed_at;not null" json:"printedAt"`
}

func (Record) TableName() string { return "kot_records" }
