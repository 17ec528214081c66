package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/baladiya/wastebilling/internal/clock"
	"github.com/baladiya/wastebilling/internal/config"
	"github.com/baladiya/wastebilling/internal/fault"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	reportingdomain "github.com/baladiya/wastebilling/internal/reporting/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type harness struct {
	svc   *Service
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE invoices (
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
		updated_at TIMESTAMP NOT NULL
	)`).Error)

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	svc := &Service{
		db:      db,
		log:     zaptest.NewLogger(t),
		clock:   fc,
		billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	}
	return &harness{svc: svc, db: db, node: node, clock: fc}
}

func (h *harness) seedInvoice(t *testing.T, seq int, period string, status invoicedomain.InvoiceStatus, total, paid int64, dueAt time.Time) {
	balance := total - paid
	if balance < 0 || status.Terminal() {
		balance = 0
	}
	require.NoError(t, h.db.Exec(
		`INSERT INTO invoices
		 (id, service_type, invoice_number, period, customer_id, customer_name, issued_at, due_at,
		  subtotal, total, paid, balance, status, created_at, updated_at)
		 VALUES (?, 'WASTE_MGMT', ?, ?, ?, 'Test Customer', ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.node.Generate(), fmt.Sprintf("WM-2025-%06d", seq), period, h.node.Generate(),
		dueAt.AddDate(0, 0, -30), dueAt, total, total, paid, balance, status,
		h.clock.Now(), h.clock.Now(),
	).Error)
}

func TestCollectionSummary(t *testing.T) {
	h := newHarness(t)
	due := h.clock.Now().AddDate(0, 0, 10)

	h.seedInvoice(t, 1, "2025-05", invoicedomain.InvoiceStatusPaid, 50_000, 50_000, due)
	h.seedInvoice(t, 2, "2025-05", invoicedomain.InvoiceStatusPartiallyPaid, 50_000, 20_000, due)
	h.seedInvoice(t, 3, "2025-05", invoicedomain.InvoiceStatusIssued, 50_000, 0, due)
	h.seedInvoice(t, 4, "2025-05", invoicedomain.InvoiceStatusWaived, 50_000, 0, due)
	h.seedInvoice(t, 5, "2025-04", invoicedomain.InvoiceStatusIssued, 99_000, 0, due)

	summary, err := h.svc.CollectionSummary(context.Background(), reportingdomain.CollectionSummaryRequest{Period: "2025-05"})
	require.NoError(t, err)

	assert.Equal(t, int64(4), summary.InvoiceCount)
	assert.Equal(t, int64(200_000), summary.InvoicedTotal)
	assert.Equal(t, int64(70_000), summary.CollectedTotal)
	assert.Equal(t, int64(80_000), summary.Outstanding)
	// Waived invoices drop out of the rate denominator.
	assert.InDelta(t, 70_000.0/150_000.0, summary.CollectionRate, 1e-9)
	assert.Len(t, summary.ByStatus, 4)
}

func TestCollectionSummaryRateExcludesTerminalPayments(t *testing.T) {
	h := newHarness(t)
	due := h.clock.Now().AddDate(0, 0, 10)

	// A waived invoice keeps its partial payment in CollectedTotal but
	// must not lift the rate past 1.0.
	h.seedInvoice(t, 1, "2025-05", invoicedomain.InvoiceStatusPaid, 50_000, 50_000, due)
	h.seedInvoice(t, 2, "2025-05", invoicedomain.InvoiceStatusWaived, 50_000, 20_000, due)

	summary, err := h.svc.CollectionSummary(context.Background(), reportingdomain.CollectionSummaryRequest{Period: "2025-05"})
	require.NoError(t, err)

	assert.Equal(t, int64(70_000), summary.CollectedTotal)
	assert.InDelta(t, 1.0, summary.CollectionRate, 1e-9)
}

func TestCollectionSummaryEmptyPeriod(t *testing.T) {
	h := newHarness(t)

	summary, err := h.svc.CollectionSummary(context.Background(), reportingdomain.CollectionSummaryRequest{Period: "2025-01"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.InvoiceCount)
	assert.Equal(t, float64(0), summary.CollectionRate)

	_, err = h.svc.CollectionSummary(context.Background(), reportingdomain.CollectionSummaryRequest{Period: "May 2025"})
	assert.True(t, fault.IsKind(err, fault.KindValidation))
}

func TestReceivablesAgingBuckets(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()

	h.seedInvoice(t, 1, "2025-05", invoicedomain.InvoiceStatusOverdue, 50_000, 0, now.AddDate(0, 0, -10))  // 0-30
	h.seedInvoice(t, 2, "2025-04", invoicedomain.InvoiceStatusOverdue, 50_000, 10_000, now.AddDate(0, 0, -45)) // 31-60
	h.seedInvoice(t, 3, "2025-02", invoicedomain.InvoiceStatusOverdue, 50_000, 0, now.AddDate(0, 0, -75))  // 61-90
	h.seedInvoice(t, 4, "2024-12", invoicedomain.InvoiceStatusOverdue, 50_000, 0, now.AddDate(0, 0, -200)) // 90+
	// Not yet due and terminal rows stay out of the report.
	h.seedInvoice(t, 5, "2025-06", invoicedomain.InvoiceStatusIssued, 50_000, 0, now.AddDate(0, 0, 20))
	h.seedInvoice(t, 6, "2025-01", invoicedomain.InvoiceStatusWaived, 50_000, 0, now.AddDate(0, 0, -120))

	report, err := h.svc.ReceivablesAging(context.Background(), reportingdomain.AgingRequest{})
	require.NoError(t, err)

	require.Len(t, report.Buckets, 4)
	assert.Equal(t, int64(50_000), report.Buckets[0].Outstanding)
	assert.Equal(t, int64(40_000), report.Buckets[1].Outstanding)
	assert.Equal(t, int64(50_000), report.Buckets[2].Outstanding)
	assert.Equal(t, int64(50_000), report.Buckets[3].Outstanding)
	assert.Equal(t, int64(190_000), report.Outstanding)
	for _, b := range report.Buckets {
		assert.Equal(t, int64(1), b.Invoices, "bucket %s", b.Label)
	}
}

func TestReceivablesAgingHonorsAsOf(t *testing.T) {
	h := newHarness(t)
	now := h.clock.Now()

	h.seedInvoice(t, 1, "2025-05", invoicedomain.InvoiceStatusIssued, 50_000, 0, now.AddDate(0, 0, -5))

	past := now.AddDate(0, 0, -10)
	report, err := h.svc.ReceivablesAging(context.Background(), reportingdomain.AgingRequest{AsOf: &past})
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.Outstanding)

	report, err = h.svc.ReceivablesAging(context.Background(), reportingdomain.AgingRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), report.Outstanding)
	assert.Equal(t, int64(50_000), report.Buckets[0].Outstanding)
}
