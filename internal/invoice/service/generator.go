package service

import (
	"context"
	"strings"

	"github.com/baladiya/wastebilling/internal/auditcontext"
	customerdomain "github.com/baladiya/wastebilling/internal/customer/domain"
	"github.com/baladiya/wastebilling/internal/fault"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	"github.com/baladiya/wastebilling/internal/invoice/numbering"
	"github.com/baladiya/wastebilling/internal/period"
	subscriptiondomain "github.com/baladiya/wastebilling/internal/subscription/domain"
	"github.com/baladiya/wastebilling/pkg/db"
	"github.com/baladiya/wastebilling/pkg/db/option"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GenerateForPeriod walks every active subscription and issues the
// period's invoice where one is due and not already present. Each
// invoice is created in its own transaction so a store failure midway
// aborts with the partial result intact instead of rolling back
// already-issued invoices.
func (s *Service) GenerateForPeriod(ctx context.Context, req invoicedomain.GenerateRequest) (invoicedomain.GenerateResult, error) {
	m, err := period.Parse(strings.TrimSpace(req.Period))
	if err != nil {
		return invoicedomain.GenerateResult{}, err
	}

	billing := s.billing.Get()
	dueInDays := billing.DueInDays
	if req.DueInDays != nil {
		dueInDays = *req.DueInDays
	}
	if dueInDays < 0 {
		dueInDays = 0
	}

	subFilter := &subscriptiondomain.Subscription{Status: subscriptiondomain.SubscriptionStatusActive}
	if customerID := strings.TrimSpace(req.CustomerID); customerID != "" {
		id, err := snowflake.ParseString(customerID)
		if err != nil {
			return invoicedomain.GenerateResult{}, fault.Validation("invalid customer id")
		}
		subFilter.CustomerID = id
	}

	subs, err := s.subRepo.Find(ctx, subFilter,
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}, Field: "created_at"}),
	)
	if err != nil {
		return invoicedomain.GenerateResult{}, fault.Persistence("list active subscriptions", err)
	}

	result := invoicedomain.GenerateResult{Period: m.String()}
	for _, sub := range subs {
		if sub == nil {
			continue
		}

		inv, skip, err := s.generateOne(ctx, m, *sub, billing.LineItemLabel, dueInDays)
		if err != nil {
			s.log.Error("invoice generation aborted",
				zap.String("period", m.String()),
				zap.String("subscription_id", sub.ID.String()),
				zap.Int("created", result.Created),
				zap.Error(err),
			)
			return result, err
		}
		if skip != nil {
			result.Skipped++
			result.Skips = append(result.Skips, *skip)
			continue
		}

		result.Created++
		result.InvoiceIDs = append(result.InvoiceIDs, inv.ID)
		_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "invoice.generated", "invoice", inv.ID.String(), map[string]any{
			"invoice_number":  inv.InvoiceNumber,
			"period":          inv.Period,
			"customer_id":     inv.CustomerID.String(),
			"subscription_id": sub.ID.String(),
			"total":           inv.Total,
		})
	}

	_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "invoice.generation_completed", "period", m.String(), map[string]any{
		"created": result.Created,
		"skipped": result.Skipped,
	})

	s.log.Info("invoice generation completed",
		zap.String("period", m.String()),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (s *Service) generateOne(ctx context.Context, m period.Month, sub subscriptiondomain.Subscription, lineLabel string, dueInDays int) (invoicedomain.Invoice, *invoicedomain.SubscriptionSkip, error) {
	skip := func(reason invoicedomain.SkipReason) *invoicedomain.SubscriptionSkip {
		return &invoicedomain.SubscriptionSkip{SubscriptionID: sub.ID, CustomerID: sub.CustomerID, Reason: reason}
	}

	start, err := period.Parse(sub.StartPeriod)
	if err != nil {
		s.log.Warn("subscription has malformed start period, skipping",
			zap.String("subscription_id", sub.ID.String()), zap.String("start_period", sub.StartPeriod))
		return invoicedomain.Invoice{}, skip(invoicedomain.SkipNotDue), nil
	}
	end := period.Month{Year: 9999, Month: 12}
	if sub.EndPeriod != "" {
		end, err = period.Parse(sub.EndPeriod)
		if err != nil {
			s.log.Warn("subscription has malformed end period, skipping",
				zap.String("subscription_id", sub.ID.String()), zap.String("end_period", sub.EndPeriod))
			return invoicedomain.Invoice{}, skip(invoicedomain.SkipNotDue), nil
		}
	}
	if m.Before(start) || m.After(end) {
		return invoicedomain.Invoice{}, skip(invoicedomain.SkipOutOfRange), nil
	}

	due, err := subscriptiondomain.IsDue(m, sub)
	if err != nil {
		return invoicedomain.Invoice{}, nil, err
	}
	if !due {
		return invoicedomain.Invoice{}, skip(invoicedomain.SkipNotDue), nil
	}

	customer, err := s.customerRepo.FindOne(ctx, &customerdomain.Customer{ID: sub.CustomerID})
	if err != nil {
		return invoicedomain.Invoice{}, nil, fault.Persistence("load customer", err)
	}
	if customer == nil {
		return invoicedomain.Invoice{}, skip(invoicedomain.SkipMissingCustomer), nil
	}

	existing, err := s.invoiceRepo.FindOne(ctx, &invoicedomain.Invoice{
		ServiceType: sub.ServiceType,
		Period:      m.String(),
		CustomerID:  sub.CustomerID,
	})
	if err != nil {
		return invoicedomain.Invoice{}, nil, fault.Persistence("check existing invoice", err)
	}
	if existing != nil {
		return invoicedomain.Invoice{}, skip(invoicedomain.SkipAlreadyInvoiced), nil
	}

	issuedAt := s.clock.Now()
	inv := invoicedomain.Invoice{
		ID:              s.genID.Generate(),
		ServiceType:     sub.ServiceType,
		Period:          m.String(),
		CustomerID:      customer.ID,
		CustomerName:    customer.Name,
		CustomerAddress: customer.Address,
		IssuedAt:        issuedAt,
		DueAt:           issuedAt.AddDate(0, 0, dueInDays),
		Subtotal:        sub.Fee,
		Status:          invoicedomain.InvoiceStatusIssued,
		Metadata: datatypes.JSONMap{
			"subscription_id": sub.ID.String(),
			"frequency":       string(sub.Frequency),
		},
		CreatedAt: issuedAt,
		UpdatedAt: issuedAt,
	}
	inv.Recalculate()

	item := invoicedomain.InvoiceItem{
		ID:         s.genID.Generate(),
		InvoiceID:  inv.ID,
		Label:      lineLabel,
		Quantity:   1,
		UnitAmount: sub.Fee,
		Amount:     sub.Fee,
		CreatedAt:  issuedAt,
	}

	// Number mint, invoice, and line item commit together. A lost race
	// on the idempotency key surfaces as a duplicate key error, rolls
	// the minted number back, and becomes an already_invoiced skip.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		number, err := numbering.Next(ctx, tx, m.Year)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number

		if err := s.invoiceRepo.WithTrx(tx).Create(ctx, &inv); err != nil {
			return err
		}
		return s.itemRepo.WithTrx(tx).Create(ctx, &item)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return invoicedomain.Invoice{}, skip(invoicedomain.SkipAlreadyInvoiced), nil
		}
		if fault.KindOf(err) != "" {
			return invoicedomain.Invoice{}, nil, err
		}
		return invoicedomain.Invoice{}, nil, fault.Persistence("create invoice", err)
	}
	return inv, nil, nil
}
