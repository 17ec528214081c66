package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	auditdomain "github.com/baladiya/wastebilling/internal/audit/domain"
	"github.com/baladiya/wastebilling/internal/clock"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	obsmetrics "github.com/baladiya/wastebilling/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type mockInvoiceSvc struct {
	calls       []string
	genPeriod   string
	overdueAsOf time.Time
	genErr      error
	overdueErr  error
}

func (m *mockInvoiceSvc) GenerateForPeriod(_ context.Context, req invoicedomain.GenerateRequest) (invoicedomain.GenerateResult, error) {
	m.calls = append(m.calls, "generate")
	m.genPeriod = req.Period
	if m.genErr != nil {
		return invoicedomain.GenerateResult{}, m.genErr
	}
	return invoicedomain.GenerateResult{Period: req.Period, Created: 2, Skipped: 1}, nil
}

func (m *mockInvoiceSvc) MarkOverdue(_ context.Context, asOf time.Time) (int, error) {
	m.calls = append(m.calls, "overdue")
	m.overdueAsOf = asOf
	if m.overdueErr != nil {
		return 0, m.overdueErr
	}
	return 1, nil
}

func (m *mockInvoiceSvc) List(context.Context, invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	return invoicedomain.ListInvoiceResponse{}, nil
}

func (m *mockInvoiceSvc) GetByID(context.Context, string) (invoicedomain.Invoice, []invoicedomain.InvoiceItem, error) {
	return invoicedomain.Invoice{}, nil, nil
}

func (m *mockInvoiceSvc) AddPenalty(context.Context, invoicedomain.AddPenaltyRequest) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}

func (m *mockInvoiceSvc) Waive(context.Context, invoicedomain.WaiveRequest) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}

func (m *mockInvoiceSvc) Cancel(context.Context, invoicedomain.CancelRequest) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, string, string, string, string, map[string]any) error {
	return nil
}

func (noopAudit) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

func newScheduler(t *testing.T, svc invoicedomain.Service, fc *clock.FakeClock) *Scheduler {
	obsmetrics.ResetSchedulerMetricsForTest()
	t.Cleanup(obsmetrics.ResetSchedulerMetricsForTest)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	sched, err := New(Params{
		DB:         db,
		Log:        zaptest.NewLogger(t),
		InvoiceSvc: svc,
		AuditSvc:   noopAudit{},
		GenID:      node,
		Clock:      fc,
		Config:     Config{RunInterval: time.Minute, JobTimeout: time.Second},
	})
	require.NoError(t, err)
	return sched
}

func TestRunOnceGeneratesThenSweeps(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC))
	svc := &mockInvoiceSvc{}
	sched := newScheduler(t, svc, fc)

	require.NoError(t, sched.RunOnce(context.Background()))

	assert.Equal(t, []string{"generate", "overdue"}, svc.calls)
	assert.Equal(t, "2025-07", svc.genPeriod)
	assert.Equal(t, fc.Now(), svc.overdueAsOf)
}

func TestRunOnceFollowsTheClock(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 7, 31, 23, 0, 0, 0, time.UTC))
	svc := &mockInvoiceSvc{}
	sched := newScheduler(t, svc, fc)

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, "2025-07", svc.genPeriod)

	// Crossing into the next month changes the generated period.
	fc.Advance(2 * time.Hour)
	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, "2025-08", svc.genPeriod)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC))
	svc := &mockInvoiceSvc{overdueErr: errors.New("sweep failed")}
	sched := newScheduler(t, svc, fc)

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark_overdue")
	// Generation still ran despite the sweep failure.
	assert.Equal(t, []string{"generate", "overdue"}, svc.calls)
}

func TestRunOnceHonorsEnabledJobs(t *testing.T) {
	fc := clock.NewFakeClock(time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC))
	svc := &mockInvoiceSvc{}
	sched := newScheduler(t, svc, fc)
	sched.cfg.EnabledJobs = []string{jobMarkOverdue}

	require.NoError(t, sched.RunOnce(context.Background()))
	assert.Equal(t, []string{"overdue"}, svc.calls)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
