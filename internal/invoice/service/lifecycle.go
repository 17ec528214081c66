package service

import (
	"context"
	"strings"
	"time"

	"github.com/baladiya/wastebilling/internal/auditcontext"
	"github.com/baladiya/wastebilling/internal/fault"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	"github.com/baladiya/wastebilling/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MarkOverdue sweeps non-terminal invoices that still owe money past
// their due date and flips them to OVERDUE. The sweep is idempotent;
// re-running it over the same window affects zero rows.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	var swept int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices SET status = ?, updated_at = ? WHERE status IN ? AND balance > 0 AND due_at < ?`,
			invoicedomain.InvoiceStatusOverdue,
			s.clock.Now(),
			[]invoicedomain.InvoiceStatus{
				invoicedomain.InvoiceStatusIssued,
				invoicedomain.InvoiceStatusPartiallyPaid,
			},
			asOf,
		)
		if result.Error != nil {
			return fault.Persistence("mark invoices overdue", result.Error)
		}
		swept = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	if swept > 0 {
		_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "invoice.overdue_swept", "invoice", "", map[string]any{
			"as_of": asOf.Format(time.RFC3339),
			"swept": swept,
		})
	}
	s.log.Info("overdue sweep completed", zap.Time("as_of", asOf), zap.Int64("swept", swept))
	return int(swept), nil
}

// AddPenalty adds a late penalty to a non-terminal invoice and
// recomputes total, balance, and status. A penalty on a PAID invoice
// reopens it as PARTIALLY_PAID.
func (s *Service) AddPenalty(ctx context.Context, req invoicedomain.AddPenaltyRequest) (invoicedomain.Invoice, error) {
	if req.Amount <= 0 {
		return invoicedomain.Invoice{}, fault.Validation("penalty amount must be positive")
	}

	var inv, before invoicedomain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		loaded, err := s.lockInvoice(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if loaded.Status.Terminal() {
			return fault.StateGuardf("cannot add penalty to %s invoice", loaded.Status)
		}

		before = loaded
		loaded.Penalty += req.Amount
		loaded.Recalculate()
		loaded.Status = invoicedomain.NextStatus(loaded.Status, loaded.Paid, loaded.Balance)
		loaded.UpdatedAt = s.clock.Now()

		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices SET penalty = ?, total = ?, balance = ?, status = ?, updated_at = ? WHERE id = ?`,
			loaded.Penalty, loaded.Total, loaded.Balance, loaded.Status, loaded.UpdatedAt, loaded.ID,
		)
		if result.Error != nil {
			return fault.Persistence("apply penalty", result.Error)
		}
		inv = loaded
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "invoice.penalty_added", "invoice", inv.ID.String(), map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"amount":         req.Amount,
		"reason":         strings.TrimSpace(req.Reason),
		"status_before":  string(before.Status),
		"status":         string(inv.Status),
		"total_before":   before.Total,
		"total":          inv.Total,
		"balance_before": before.Balance,
		"balance":        inv.Balance,
		"paid":           inv.Paid,
		"penalty":        inv.Penalty,
	})
	return inv, nil
}

// Waive forgives the outstanding balance of an invoice. Only invoices
// that still owe something can be waived; the state is terminal and the
// caller must say why.
func (s *Service) Waive(ctx context.Context, req invoicedomain.WaiveRequest) (invoicedomain.Invoice, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return invoicedomain.Invoice{}, fault.Validation("reason is required")
	}

	var inv, before invoicedomain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		loaded, err := s.lockInvoice(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if loaded.Status.Terminal() {
			return fault.StateGuardf("cannot waive %s invoice", loaded.Status)
		}
		if loaded.Balance == 0 {
			return fault.StateGuard("invoice has no outstanding balance to waive")
		}

		before = loaded
		loaded.Status = invoicedomain.InvoiceStatusWaived
		loaded.Balance = 0
		loaded.UpdatedAt = s.clock.Now()

		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices SET status = ?, balance = ?, updated_at = ? WHERE id = ?`,
			loaded.Status, loaded.Balance, loaded.UpdatedAt, loaded.ID,
		)
		if result.Error != nil {
			return fault.Persistence("waive invoice", result.Error)
		}
		inv = loaded
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "invoice.waived", "invoice", inv.ID.String(), map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"reason":         reason,
		"status_before":  string(before.Status),
		"status":         string(inv.Status),
		"total":          inv.Total,
		"paid":           inv.Paid,
		"balance_before": before.Balance,
		"balance":        inv.Balance,
	})
	return inv, nil
}

// Cancel voids an invoice that received no payment. Anything with paid
// money must go through Waive or stay open. A reason is required.
func (s *Service) Cancel(ctx context.Context, req invoicedomain.CancelRequest) (invoicedomain.Invoice, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return invoicedomain.Invoice{}, fault.Validation("reason is required")
	}

	var inv, before invoicedomain.Invoice
	err := s.db.Transaction(func(tx *gorm.DB) error {
		loaded, err := s.lockInvoice(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if loaded.Status.Terminal() {
			return fault.StateGuardf("cannot cancel %s invoice", loaded.Status)
		}
		if loaded.Paid > 0 {
			return fault.StateGuard("cannot cancel invoice with recorded payments")
		}

		before = loaded
		loaded.Status = invoicedomain.InvoiceStatusCancelled
		loaded.Balance = 0
		loaded.UpdatedAt = s.clock.Now()

		result := tx.WithContext(ctx).Exec(
			`UPDATE invoices SET status = ?, balance = ?, updated_at = ? WHERE id = ?`,
			loaded.Status, loaded.Balance, loaded.UpdatedAt, loaded.ID,
		)
		if result.Error != nil {
			return fault.Persistence("cancel invoice", result.Error)
		}
		inv = loaded
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "invoice.cancelled", "invoice", inv.ID.String(), map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"reason":         reason,
		"status_before":  string(before.Status),
		"status":         string(inv.Status),
		"total":          inv.Total,
		"paid":           inv.Paid,
		"balance_before": before.Balance,
		"balance":        inv.Balance,
	})
	return inv, nil
}

// lockInvoice loads one invoice under a row lock inside tx.
func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, rawID string) (invoicedomain.Invoice, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil {
		return invoicedomain.Invoice{}, fault.Validation("invalid invoice id")
	}

	var inv invoicedomain.Invoice
	if err := tx.WithContext(ctx).Raw(
		`SELECT * FROM invoices WHERE id = ?`+db.ForUpdate(tx),
		id,
	).Scan(&inv).Error; err != nil {
		return invoicedomain.Invoice{}, fault.Persistence("load invoice", err)
	}
	if inv.ID == 0 {
		return invoicedomain.Invoice{}, fault.NotFoundf("invoice %s not found", rawID)
	}
	return inv, nil
}
