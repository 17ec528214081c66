// Package service computes collection and aging reports with
// aggregation queries over the invoice table.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/baladiya/wastebilling/internal/clock"
	"github.com/baladiya/wastebilling/internal/config"
	"github.com/baladiya/wastebilling/internal/fault"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	"github.com/baladiya/wastebilling/internal/period"
	reportingdomain "github.com/baladiya/wastebilling/internal/reporting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	billing *config.BillingConfigHolder
}

func NewService(p Params) reportingdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("reporting.service"),
		clock:   p.Clock,
		billing: p.Billing,
	}
}

func (s *Service) CollectionSummary(ctx context.Context, req reportingdomain.CollectionSummaryRequest) (reportingdomain.CollectionSummary, error) {
	m, err := period.Parse(strings.TrimSpace(req.Period))
	if err != nil {
		return reportingdomain.CollectionSummary{}, err
	}

	var rows []reportingdomain.StatusBreakdown
	if err := s.db.WithContext(ctx).Raw(
		`SELECT status,
		        COUNT(*) AS invoices,
		        COALESCE(SUM(total), 0) AS total,
		        COALESCE(SUM(paid), 0) AS paid,
		        COALESCE(SUM(balance), 0) AS balance
		 FROM invoices
		 WHERE period = ?
		 GROUP BY status
		 ORDER BY status`,
		m.String(),
	).Scan(&rows).Error; err != nil {
		return reportingdomain.CollectionSummary{}, fault.Persistence("aggregate period invoices", err)
	}

	summary := reportingdomain.CollectionSummary{Period: m.String(), ByStatus: rows}
	var collected, collectible int64
	for _, row := range rows {
		summary.InvoiceCount += row.Invoices
		summary.InvoicedTotal += row.Total
		summary.CollectedTotal += row.Paid
		summary.Outstanding += row.Balance
		// Terminal invoices stay out of both sides of the rate, or a
		// waived invoice with partial payments pushes it past 1.0.
		if !invoicedomain.InvoiceStatus(row.Status).Terminal() {
			collected += row.Paid
			collectible += row.Total
		}
	}
	if collectible > 0 {
		summary.CollectionRate = float64(collected) / float64(collectible)
	}
	return summary, nil
}

func (s *Service) ReceivablesAging(ctx context.Context, req reportingdomain.AgingRequest) (reportingdomain.ReceivablesAging, error) {
	asOf := s.clock.Now()
	if req.AsOf != nil {
		asOf = req.AsOf.UTC()
	}

	// Date arithmetic differs per dialect, so the bucketing happens
	// here over the open rows instead of in SQL.
	var rows []struct {
		DueAt   time.Time
		Balance int64
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT due_at, balance FROM invoices
		 WHERE status IN ? AND balance > 0 AND due_at <= ?`,
		invoicedomain.OpenStatuses(),
		asOf,
	).Scan(&rows).Error; err != nil {
		return reportingdomain.ReceivablesAging{}, fault.Persistence("load open receivables", err)
	}

	buckets := s.billing.Get().AgingBuckets
	report := reportingdomain.ReceivablesAging{AsOf: asOf}
	report.Buckets = make([]reportingdomain.AgingBucketTotal, len(buckets))
	for i, b := range buckets {
		report.Buckets[i] = reportingdomain.AgingBucketTotal{
			Label:   b.Label,
			MinDays: b.MinDays,
			MaxDays: b.MaxDays,
		}
	}

	for _, row := range rows {
		days := int(asOf.Sub(row.DueAt).Hours() / 24)
		report.Outstanding += row.Balance
		for i := range report.Buckets {
			b := &report.Buckets[i]
			if days < b.MinDays {
				continue
			}
			if b.MaxDays != nil && days > *b.MaxDays {
				continue
			}
			b.Invoices++
			b.Outstanding += row.Balance
			break
		}
	}
	return report, nil
}
