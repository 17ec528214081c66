// Package domain defines the read-only reporting surface: collection
// progress per billing period and receivables aging.
package domain

import (
	"context"
	"time"
)

type CollectionSummaryRequest struct {
	Period string `json:"period"`
}

// StatusBreakdown is one status row of the period summary.
type StatusBreakdown struct {
	Status   string `json:"status"`
	Invoices int64  `json:"invoices"`
	Total    int64  `json:"total"`
	Paid     int64  `json:"paid"`
	Balance  int64  `json:"balance"`
}

// CollectionSummary aggregates one billing period. CollectionRate is
// collected over invoiced, zero when nothing was invoiced. Waived and
// cancelled invoices count in the breakdown and in CollectedTotal, but
// the rate excludes them from both numerator and denominator so it
// stays within [0, 1].
type CollectionSummary struct {
	Period         string            `json:"period"`
	InvoiceCount   int64             `json:"invoice_count"`
	InvoicedTotal  int64             `json:"invoiced_total"`
	CollectedTotal int64             `json:"collected_total"`
	Outstanding    int64             `json:"outstanding"`
	CollectionRate float64           `json:"collection_rate"`
	ByStatus       []StatusBreakdown `json:"by_status"`
}

type AgingRequest struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

// AgingBucketTotal is the receivable mass sitting in one overdue-days
// band.
type AgingBucketTotal struct {
	Label       string `json:"label"`
	MinDays     int    `json:"min_days"`
	MaxDays     *int   `json:"max_days,omitempty"`
	Invoices    int64  `json:"invoices"`
	Outstanding int64  `json:"outstanding"`
}

type ReceivablesAging struct {
	AsOf        time.Time          `json:"as_of"`
	Buckets     []AgingBucketTotal `json:"buckets"`
	Outstanding int64              `json:"outstanding"`
}

type Service interface {
	CollectionSummary(ctx context.Context, req CollectionSummaryRequest) (CollectionSummary, error)
	ReceivablesAging(ctx context.Context, req AgingRequest) (ReceivablesAging, error)
}
