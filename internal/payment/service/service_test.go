package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	auditdomain "github.com/baladiya/wastebilling/internal/audit/domain"
	"github.com/baladiya/wastebilling/internal/clock"
	customerdomain "github.com/baladiya/wastebilling/internal/customer/domain"
	"github.com/baladiya/wastebilling/internal/fault"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	paymentdomain "github.com/baladiya/wastebilling/internal/payment/domain"
	"github.com/baladiya/wastebilling/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type noopAudit struct{}

func (noopAudit) Record(context.Context, string, string, string, string, map[string]any) error {
	return nil
}

func (noopAudit) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type harness struct {
	svc      *Service
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	custRepo repository.Repository[customerdomain.Customer]
	invRepo  repository.Repository[invoicedomain.Invoice]
}

func newHarness(t *testing.T) *harness {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	for _, stmt := range []string{
		`CREATE TABLE customers (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT,
			phone TEXT,
			national_id TEXT,
			status TEXT NOT NULL DEFAULT 'ACTIVE',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE invoices (
			id BIGINT PRIMARY KEY,
			service_type TEXT NOT NULL,
			invoice_number TEXT NOT NULL UNIQUE,
			period TEXT NOT NULL,
			customer_id BIGINT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_address TEXT,
			issued_at TIMESTAMP NOT NULL,
			due_at TIMESTAMP NOT NULL,
			subtotal BIGINT NOT NULL,
			discount BIGINT NOT NULL DEFAULT 0,
			penalty BIGINT NOT NULL DEFAULT 0,
			total BIGINT NOT NULL,
			paid BIGINT NOT NULL DEFAULT 0,
			balance BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'ISSUED',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (service_type, period, customer_id)
		)`,
		`CREATE TABLE payments (
			id BIGINT PRIMARY KEY,
			customer_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			method TEXT NOT NULL,
			reference TEXT,
			notes TEXT,
			received_at TIMESTAMP NOT NULL,
			received_by TEXT NOT NULL DEFAULT 'system',
			unallocated BIGINT NOT NULL DEFAULT 0,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE payment_allocations (
			id BIGINT PRIMARY KEY,
			payment_id BIGINT NOT NULL,
			invoice_id BIGINT NOT NULL,
			amount BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (payment_id, invoice_id)
		)`,
	} {
		require.NoError(t, db.Exec(stmt).Error)
	}

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 4, 15, 9, 0, 0, 0, time.UTC))

	svc := &Service{
		db:           db,
		log:          zaptest.NewLogger(t),
		genID:        node,
		clock:        fc,
		paymentRepo:  repository.ProvideStore[paymentdomain.Payment](db),
		allocRepo:    repository.ProvideStore[paymentdomain.Allocation](db),
		customerRepo: repository.ProvideStore[customerdomain.Customer](db),
		auditSvc:     noopAudit{},
	}

	return &harness{
		svc:      svc,
		db:       db,
		node:     node,
		clock:    fc,
		custRepo: repository.ProvideStore[customerdomain.Customer](db),
		invRepo:  repository.ProvideStore[invoicedomain.Invoice](db),
	}
}

func (h *harness) seedCustomer(t *testing.T, name string) customerdomain.Customer {
	now := h.clock.Now()
	customer := customerdomain.Customer{
		ID:        h.node.Generate(),
		Name:      name,
		Address:   "7 Market Lane",
		Status:    customerdomain.CustomerStatusActive,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, h.custRepo.Create(context.Background(), &customer))
	return customer
}

func (h *harness) seedInvoice(t *testing.T, customer customerdomain.Customer, seq int, period string, total int64, issuedAt time.Time) invoicedomain.Invoice {
	inv := invoicedomain.Invoice{
		ID:            h.node.Generate(),
		ServiceType:   "WASTE_MGMT",
		InvoiceNumber: fmt.Sprintf("WM-2025-%06d", seq),
		Period:        period,
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		IssuedAt:      issuedAt,
		DueAt:         issuedAt.AddDate(0, 0, 30),
		Subtotal:      total,
		Total:         total,
		Balance:       total,
		Status:        invoicedomain.InvoiceStatusIssued,
		Metadata:      datatypes.JSONMap{},
		CreatedAt:     issuedAt,
		UpdatedAt:     issuedAt,
	}
	require.NoError(t, h.invRepo.Create(context.Background(), &inv))
	return inv
}

func (h *harness) invoice(t *testing.T, id snowflake.ID) invoicedomain.Invoice {
	inv, err := h.invRepo.FindOne(context.Background(), &invoicedomain.Invoice{ID: id})
	require.NoError(t, err)
	require.NotNil(t, inv)
	return *inv
}

func TestRecordPaymentAllocatesOldestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	customer := h.seedCustomer(t, "Rahmat Hidayat")
	base := h.clock.Now().AddDate(0, -2, 0)
	older := h.seedInvoice(t, customer, 1, "2025-02", 100_000, base)
	newer := h.seedInvoice(t, customer, 2, "2025-03", 100_000, base.AddDate(0, 1, 0))

	resp, err := h.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: customer.ID.String(),
		Amount:     120_000,
		Method:     "transfer",
		Reference:  "TRX-88",
	})
	require.NoError(t, err)

	require.Len(t, resp.Allocations, 2)
	assert.Equal(t, older.ID, resp.Allocations[0].InvoiceID)
	assert.Equal(t, int64(100_000), resp.Allocations[0].Amount)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, resp.Allocations[0].InvoiceStatus)
	assert.Equal(t, newer.ID, resp.Allocations[1].InvoiceID)
	assert.Equal(t, int64(20_000), resp.Allocations[1].Amount)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, resp.Allocations[1].InvoiceStatus)
	assert.Equal(t, int64(0), resp.Unallocated)
	assert.Equal(t, "TRANSFER", resp.Payment.Method)
	assert.Equal(t, "system", resp.Payment.ReceivedBy)

	assert.Equal(t, int64(0), h.invoice(t, older.ID).Balance)
	assert.Equal(t, int64(80_000), h.invoice(t, newer.ID).Balance)
}

func TestRecordPaymentKeepsOverpaymentAsCredit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	customer := h.seedCustomer(t, "Fitri Handayani")
	inv := h.seedInvoice(t, customer, 1, "2025-03", 50_000, h.clock.Now().AddDate(0, -1, 0))

	resp, err := h.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: customer.ID.String(),
		Amount:     300_000,
	})
	require.NoError(t, err)

	require.Len(t, resp.Allocations, 1)
	assert.Equal(t, int64(50_000), resp.Allocations[0].Amount)
	assert.Equal(t, int64(250_000), resp.Unallocated)
	assert.Equal(t, int64(250_000), resp.Payment.Unallocated)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, h.invoice(t, inv.ID).Status)
}

func TestRecordPaymentWithNoOpenInvoices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	customer := h.seedCustomer(t, "Eko Prasetyo")

	resp, err := h.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: customer.ID.String(),
		Amount:     75_000,
		Notes:      "advance for Q2",
		ReceivedBy: "kasir-3",
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Allocations)
	assert.Equal(t, int64(75_000), resp.Unallocated)
	assert.Equal(t, paymentdomain.DefaultMethod, resp.Payment.Method)
	assert.Equal(t, "advance for Q2", resp.Payment.Notes)
	assert.Equal(t, "kasir-3", resp.Payment.ReceivedBy)
}

func TestAllocateIsResumable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	customer := h.seedCustomer(t, "Wulan Sari")
	first := h.seedInvoice(t, customer, 1, "2025-02", 60_000, h.clock.Now().AddDate(0, -2, 0))
	second := h.seedInvoice(t, customer, 2, "2025-03", 60_000, h.clock.Now().AddDate(0, -1, 0))

	resp, err := h.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: customer.ID.String(),
		Amount:     90_000,
	})
	require.NoError(t, err)
	require.Len(t, resp.Allocations, 2)

	// A second allocation pass finds nothing left to do and changes
	// nothing.
	again, err := h.svc.Allocate(ctx, resp.Payment.ID.String())
	require.NoError(t, err)
	assert.Empty(t, again.Allocations)
	assert.Equal(t, int64(0), again.Unallocated)

	assert.Equal(t, int64(0), h.invoice(t, first.ID).Balance)
	assert.Equal(t, int64(30_000), h.invoice(t, second.ID).Balance)

	var allocations int64
	require.NoError(t, h.db.Raw(`SELECT COUNT(*) FROM payment_allocations WHERE payment_id = ?`, resp.Payment.ID).Scan(&allocations).Error)
	assert.Equal(t, int64(2), allocations)
}

func TestRecordPaymentGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{CustomerID: "123", Amount: 0})
	assert.True(t, fault.IsKind(err, fault.KindValidation))

	_, err = h.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{CustomerID: "not-a-number", Amount: 1_000})
	assert.True(t, fault.IsKind(err, fault.KindValidation))

	_, err = h.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: h.node.Generate().String(),
		Amount:     1_000,
	})
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestAllocateSkipsTerminalInvoices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	customer := h.seedCustomer(t, "Taufik Rahman")
	waived := h.seedInvoice(t, customer, 1, "2025-02", 40_000, h.clock.Now().AddDate(0, -2, 0))
	require.NoError(t, h.db.Exec(
		`UPDATE invoices SET status = ?, balance = 0 WHERE id = ?`,
		invoicedomain.InvoiceStatusWaived, waived.ID,
	).Error)
	open := h.seedInvoice(t, customer, 2, "2025-03", 40_000, h.clock.Now().AddDate(0, -1, 0))

	resp, err := h.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: customer.ID.String(),
		Amount:     40_000,
	})
	require.NoError(t, err)
	require.Len(t, resp.Allocations, 1)
	assert.Equal(t, open.ID, resp.Allocations[0].InvoiceID)
	assert.Equal(t, invoicedomain.InvoiceStatusWaived, h.invoice(t, waived.ID).Status)
}

func TestGetByIDReturnsAllocations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	customer := h.seedCustomer(t, "Yanti Kusuma")
	h.seedInvoice(t, customer, 1, "2025-03", 30_000, h.clock.Now().AddDate(0, -1, 0))

	resp, err := h.svc.RecordPayment(ctx, paymentdomain.RecordPaymentRequest{
		CustomerID: customer.ID.String(),
		Amount:     30_000,
	})
	require.NoError(t, err)

	payment, allocations, err := h.svc.GetByID(ctx, resp.Payment.ID.String())
	require.NoError(t, err)
	assert.Equal(t, resp.Payment.ID, payment.ID)
	require.Len(t, allocations, 1)
	assert.Equal(t, int64(30_000), allocations[0].Amount)

	_, _, err = h.svc.GetByID(ctx, h.node.Generate().String())
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}
