package domain

import (
	"context"
	"time"

	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	"github.com/bwmarrin/snowflake"
)

// DefaultMethod is assumed when the teller does not say how the money
// arrived.
const DefaultMethod = "CASH"

type RecordPaymentRequest struct {
	CustomerID string     `json:"customer_id"`
	Amount     int64      `json:"amount"`
	Method     string     `json:"method,omitempty"`
	Reference  string     `json:"reference,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	ReceivedBy string     `json:"received_by,omitempty"`
}

// AllocationResult reports one slice of a payment applied to an
// invoice, with the invoice state after the application.
type AllocationResult struct {
	InvoiceID     snowflake.ID                `json:"invoice_id"`
	InvoiceNumber string                      `json:"invoice_number"`
	Amount        int64                       `json:"amount"`
	InvoiceStatus invoicedomain.InvoiceStatus `json:"invoice_status"`
}

type RecordPaymentResponse struct {
	Payment     Payment            `json:"payment"`
	Allocations []AllocationResult `json:"allocations"`
	Unallocated int64              `json:"unallocated"`
}

type ListPaymentRequest struct {
	CustomerID   string
	ReceivedFrom *time.Time
	ReceivedTo   *time.Time
	Limit        int
	Offset       int
}

type ListPaymentResponse struct {
	Payments []Payment `json:"payments"`
}

type Service interface {
	// RecordPayment persists the payment and then allocates it across
	// the customer's open invoices, oldest issued first.
	RecordPayment(ctx context.Context, req RecordPaymentRequest) (RecordPaymentResponse, error)

	// Allocate re-runs allocation for an already recorded payment.
	// Already applied slices are skipped, so it is safe after a crash
	// between recording and allocation.
	Allocate(ctx context.Context, paymentID string) (RecordPaymentResponse, error)

	List(ctx context.Context, req ListPaymentRequest) (ListPaymentResponse, error)
	GetByID(ctx context.Context, id string) (Payment, []Allocation, error)
}
