// Package domain contains persistence models for invoices, their line
// items, and the per-year numbering counter, plus the invoice lifecycle
// state machine rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states. WAIVED and
// CANCELLED are terminal; the rest track payment progress.
type InvoiceStatus string

const (
	InvoiceStatusIssued        InvoiceStatus = "ISSUED"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusWaived        InvoiceStatus = "WAIVED"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
)

// OpenStatuses are the states a payment can still be allocated against.
func OpenStatuses() []InvoiceStatus {
	return []InvoiceStatus{InvoiceStatusIssued, InvoiceStatusOverdue, InvoiceStatusPartiallyPaid}
}

// Terminal reports whether no further financial mutation is allowed.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusWaived || s == InvoiceStatusCancelled
}

// Invoice is one billable demand for one customer and one period.
// Customer name and address are snapshotted at issue time so historic
// invoices stay stable when customer records change. Rows are never
// deleted.
type Invoice struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	ServiceType     string            `gorm:"type:text;not null;uniqueIndex:ux_invoices_service_customer_period" json:"service_type"`
	InvoiceNumber   string            `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	Period          string            `gorm:"type:text;not null;uniqueIndex:ux_invoices_service_customer_period" json:"period"`
	CustomerID      snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoices_service_customer_period" json:"customer_id"`
	CustomerName    string            `gorm:"type:text;not null" json:"customer_name"`
	CustomerAddress string            `gorm:"type:text" json:"customer_address"`
	IssuedAt        time.Time         `gorm:"not null" json:"issued_at"`
	DueAt           time.Time         `gorm:"not null;index" json:"due_at"`
	Subtotal        int64             `gorm:"not null" json:"subtotal"`
	Discount        int64             `gorm:"not null;default:0" json:"discount"`
	Penalty         int64             `gorm:"not null;default:0" json:"penalty"`
	Total           int64             `gorm:"not null" json:"total"`
	Paid            int64             `gorm:"not null;default:0" json:"paid"`
	Balance         int64             `gorm:"not null" json:"balance"`
	Status          InvoiceStatus     `gorm:"type:text;not null;default:'ISSUED';index" json:"status"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Recalculate restores the financial invariants after subtotal,
// discount, penalty, or paid changed: total = subtotal - discount +
// penalty and balance = max(0, total - paid). Terminal states pin
// balance to zero elsewhere; this never runs on them.
func (i *Invoice) Recalculate() {
	i.Total = i.Subtotal - i.Discount + i.Penalty
	balance := i.Total - i.Paid
	if balance < 0 {
		balance = 0
	}
	i.Balance = balance
}

// NextStatus resolves the state after a financial change: PAID once the
// balance reaches zero, PARTIALLY_PAID while some amount has been paid,
// otherwise the current state is kept (ISSUED or OVERDUE).
func NextStatus(current InvoiceStatus, paid, balance int64) InvoiceStatus {
	if balance == 0 {
		return InvoiceStatusPaid
	}
	if paid > 0 {
		return InvoiceStatusPartiallyPaid
	}
	return current
}

// InvoiceItem is one line on an invoice, created with it and immutable
// afterward.
type InvoiceItem struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID  snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Label      string       `gorm:"type:text;not null" json:"label"`
	Quantity   int64        `gorm:"not null;default:1" json:"quantity"`
	UnitAmount int64        `gorm:"not null" json:"unit_amount"`
	Amount     int64        `gorm:"not null" json:"amount"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// Counter holds the next sequence for one year-scoped numbering key
// (e.g. "WM-2025"). Incremented exactly once per invoice; a sequence is
// never reused even when invoice creation fails afterwards.
type Counter struct {
	Key  string `gorm:"primaryKey;column:key" json:"key"`
	Next int64  `gorm:"not null" json:"next"`
}

// TableName sets the database table name.
func (Counter) TableName() string { return "invoice_counters" }
