package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// SkipReason explains why generation passed over a subscription.
// Every skip is reported; nothing is dropped silently.
type SkipReason string

const (
	SkipMissingCustomer SkipReason = "missing_customer"
	SkipOutOfRange      SkipReason = "period_out_of_range"
	SkipNotDue          SkipReason = "not_due"
	SkipAlreadyInvoiced SkipReason = "already_invoiced"
)

type GenerateRequest struct {
	Period     string `json:"period"`
	DueInDays  *int   `json:"due_in_days,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

type SubscriptionSkip struct {
	SubscriptionID snowflake.ID `json:"subscription_id"`
	CustomerID     snowflake.ID `json:"customer_id"`
	Reason         SkipReason   `json:"reason"`
}

// GenerateResult reports batch progress. Created + Skipped equals the
// number of active subscriptions considered, including when the batch
// aborts partway on a store failure.
type GenerateResult struct {
	Period     string             `json:"period"`
	Created    int                `json:"created"`
	Skipped    int                `json:"skipped"`
	InvoiceIDs []snowflake.ID     `json:"invoice_ids"`
	Skips      []SubscriptionSkip `json:"skips,omitempty"`
}

type ListInvoiceRequest struct {
	CustomerID string
	Status     string
	Period     string
	DueFrom    *time.Time
	DueTo      *time.Time
	Limit      int
	Offset     int
}

type ListInvoiceResponse struct {
	Invoices []Invoice `json:"invoices"`
}

type AddPenaltyRequest struct {
	InvoiceID string `json:"-"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

type WaiveRequest struct {
	InvoiceID string `json:"-"`
	Reason    string `json:"reason"`
}

type CancelRequest struct {
	InvoiceID string `json:"-"`
	Reason    string `json:"reason"`
}

type Service interface {
	GenerateForPeriod(ctx context.Context, req GenerateRequest) (GenerateResult, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (Invoice, []InvoiceItem, error)

	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
	AddPenalty(ctx context.Context, req AddPenaltyRequest) (Invoice, error)
	Waive(ctx context.Context, req WaiveRequest) (Invoice, error)
	Cancel(ctx context.Context, req CancelRequest) (Invoice, error)
}
