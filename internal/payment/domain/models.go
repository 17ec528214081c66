// Package domain contains persistence models for customer payments and
// their allocations against invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Payment is money received from a customer. It is recorded before any
// allocation happens so the funds are never lost if allocation fails
// partway. Unallocated tracks the remainder that no open invoice could
// absorb.
type Payment struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	CustomerID  snowflake.ID      `gorm:"not null;index" json:"customer_id"`
	Amount      int64             `gorm:"not null" json:"amount"`
	Method      string            `gorm:"type:text;not null" json:"method"`
	Reference   string            `gorm:"type:text" json:"reference,omitempty"`
	Notes       string            `gorm:"type:text" json:"notes,omitempty"`
	ReceivedAt  time.Time         `gorm:"not null;index" json:"received_at"`
	ReceivedBy  string            `gorm:"type:text;not null" json:"received_by"`
	Unallocated int64             `gorm:"not null;default:0" json:"unallocated"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

// Allocation ties part of a payment to one invoice. The unique pair
// makes allocation idempotent: re-running the allocator for a payment
// can never apply money to the same invoice twice.
type Allocation struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	PaymentID snowflake.ID `gorm:"not null;uniqueIndex:ux_allocations_payment_invoice" json:"payment_id"`
	InvoiceID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_allocations_payment_invoice" json:"invoice_id"`
	Amount    int64        `gorm:"not null" json:"amount"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Allocation) TableName() string { return "payment_allocations" }
