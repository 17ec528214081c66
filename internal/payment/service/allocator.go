package service

import (
	"context"
	"strings"

	"github.com/baladiya/wastebilling/internal/auditcontext"
	"github.com/baladiya/wastebilling/internal/fault"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	paymentdomain "github.com/baladiya/wastebilling/internal/payment/domain"
	"github.com/baladiya/wastebilling/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Allocate spreads a recorded payment across the customer's open
// invoices, oldest issued first, within one transaction. The unique
// (payment_id, invoice_id) pair skips slices a previous run already
// committed, so re-running after a crash between recording and
// allocation is safe. Whatever no open invoice can absorb stays on the
// payment as unallocated credit.
func (s *Service) Allocate(ctx context.Context, paymentID string) (paymentdomain.RecordPaymentResponse, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(paymentID))
	if err != nil {
		return paymentdomain.RecordPaymentResponse{}, fault.Validation("invalid payment id")
	}

	var payment paymentdomain.Payment
	var results []paymentdomain.AllocationResult
	var remaining int64

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Raw(
			`SELECT * FROM payments WHERE id = ?`+db.ForUpdate(tx),
			id,
		).Scan(&payment).Error; err != nil {
			return fault.Persistence("load payment", err)
		}
		if payment.ID == 0 {
			return fault.NotFoundf("payment %s not found", paymentID)
		}

		var allocated int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COALESCE(SUM(amount), 0) FROM payment_allocations WHERE payment_id = ?`,
			payment.ID,
		).Scan(&allocated).Error; err != nil {
			return fault.Persistence("sum existing allocations", err)
		}
		remaining = payment.Amount - allocated
		if remaining <= 0 {
			return nil
		}

		var invoices []invoicedomain.Invoice
		if err := tx.WithContext(ctx).Raw(
			`SELECT * FROM invoices
			 WHERE customer_id = ? AND status IN ? AND balance > 0
			 ORDER BY issued_at ASC, id ASC`+db.ForUpdate(tx),
			payment.CustomerID,
			invoicedomain.OpenStatuses(),
		).Scan(&invoices).Error; err != nil {
			return fault.Persistence("load open invoices", err)
		}

		now := s.clock.Now()
		for i := range invoices {
			if remaining <= 0 {
				break
			}
			inv := &invoices[i]

			amount := remaining
			if inv.Balance < amount {
				amount = inv.Balance
			}

			result := tx.WithContext(ctx).Exec(
				`INSERT INTO payment_allocations (id, payment_id, invoice_id, amount, created_at)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT (payment_id, invoice_id) DO NOTHING`,
				s.genID.Generate(), payment.ID, inv.ID, amount, now,
			)
			if result.Error != nil {
				return fault.Persistence("insert allocation", result.Error)
			}
			if result.RowsAffected == 0 {
				// Applied by a previous run of this payment.
				continue
			}

			inv.Paid += amount
			inv.Recalculate()
			inv.Status = invoicedomain.NextStatus(inv.Status, inv.Paid, inv.Balance)

			if err := tx.WithContext(ctx).Exec(
				`UPDATE invoices SET paid = ?, balance = ?, status = ?, updated_at = ? WHERE id = ?`,
				inv.Paid, inv.Balance, inv.Status, now, inv.ID,
			).Error; err != nil {
				return fault.Persistence("apply allocation to invoice", err)
			}

			remaining -= amount
			results = append(results, paymentdomain.AllocationResult{
				InvoiceID:     inv.ID,
				InvoiceNumber: inv.InvoiceNumber,
				Amount:        amount,
				InvoiceStatus: inv.Status,
			})
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE payments SET unallocated = ?, updated_at = ? WHERE id = ?`,
			remaining, now, payment.ID,
		).Error; err != nil {
			return fault.Persistence("update payment remainder", err)
		}
		payment.Unallocated = remaining
		payment.UpdatedAt = now
		return nil
	})
	if err != nil {
		return paymentdomain.RecordPaymentResponse{}, err
	}

	if len(results) > 0 || remaining > 0 {
		meta := map[string]any{
			"customer_id": payment.CustomerID.String(),
			"amount":      payment.Amount,
			"allocations": len(results),
			"unallocated": remaining,
		}
		invoiceNumbers := make([]string, 0, len(results))
		for _, r := range results {
			invoiceNumbers = append(invoiceNumbers, r.InvoiceNumber)
		}
		if len(invoiceNumbers) > 0 {
			meta["invoice_numbers"] = invoiceNumbers
		}
		_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "payment.allocated", "payment", payment.ID.String(), meta)
	}

	s.log.Info("payment allocated",
		zap.String("payment_id", payment.ID.String()),
		zap.Int("allocations", len(results)),
		zap.Int64("unallocated", remaining),
	)

	return paymentdomain.RecordPaymentResponse{
		Payment:     payment,
		Allocations: results,
		Unallocated: remaining,
	}, nil
}
