package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditcontext "github.com/baladiya/wastebilling/internal/auditcontext"
	"github.com/baladiya/wastebilling/internal/clock"
	"github.com/baladiya/wastebilling/internal/fault"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	paymentdomain "github.com/baladiya/wastebilling/internal/payment/domain"
)

type fakeInvoiceService struct {
	generateCalls int
	lastGenerate  invoicedomain.GenerateRequest
	lastActor     string
	markOverdueAt time.Time
}

func (f *fakeInvoiceService) GenerateForPeriod(ctx context.Context, req invoicedomain.GenerateRequest) (invoicedomain.GenerateResult, error) {
	f.generateCalls++
	f.lastGenerate = req
	f.lastActor = auditcontext.ActorFromContext(ctx)
	if req.Period == "" {
		return invoicedomain.GenerateResult{}, fault.Validation("period is required")
	}
	return invoicedomain.GenerateResult{Period: req.Period, Created: 3}, nil
}

func (f *fakeInvoiceService) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	return invoicedomain.ListInvoiceResponse{}, nil
}

func (f *fakeInvoiceService) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, []invoicedomain.InvoiceItem, error) {
	return invoicedomain.Invoice{}, nil, fault.NotFoundf("invoice %s not found", id)
}

func (f *fakeInvoiceService) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	f.markOverdueAt = asOf
	return 2, nil
}

func (f *fakeInvoiceService) AddPenalty(ctx context.Context, req invoicedomain.AddPenaltyRequest) (invoicedomain.Invoice, error) {
	if req.Amount <= 0 {
		return invoicedomain.Invoice{}, fault.Validation("penalty amount must be positive")
	}
	return invoicedomain.Invoice{Penalty: req.Amount}, nil
}

func (f *fakeInvoiceService) Waive(ctx context.Context, req invoicedomain.WaiveRequest) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, fault.StateGuard("invoice has no outstanding balance")
}

func (f *fakeInvoiceService) Cancel(ctx context.Context, req invoicedomain.CancelRequest) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{Status: invoicedomain.InvoiceStatusCancelled}, nil
}

type fakePaymentService struct {
	recorded []paymentdomain.RecordPaymentRequest
}

func (f *fakePaymentService) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResponse, error) {
	f.recorded = append(f.recorded, req)
	return paymentdomain.RecordPaymentResponse{
		Payment: paymentdomain.Payment{ID: snowflake.ID(7), Amount: req.Amount},
	}, nil
}

func (f *fakePaymentService) Allocate(ctx context.Context, paymentID string) (paymentdomain.RecordPaymentResponse, error) {
	return paymentdomain.RecordPaymentResponse{}, nil
}

func (f *fakePaymentService) List(ctx context.Context, req paymentdomain.ListPaymentRequest) (paymentdomain.ListPaymentResponse, error) {
	return paymentdomain.ListPaymentResponse{}, nil
}

func (f *fakePaymentService) GetByID(ctx context.Context, id string) (paymentdomain.Payment, []paymentdomain.Allocation, error) {
	return paymentdomain.Payment{}, nil, nil
}

func newTestRouter(srv *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ActorMiddleware())
	router.Use(ErrorHandlingMiddleware())
	srv.engine = router
	srv.RegisterAPIRoutes()
	return router
}

func TestGenerateInvoicesPassesActorFromHeader(t *testing.T) {
	invoiceSvc := &fakeInvoiceService{}
	srv := &Server{invoiceSvc: invoiceSvc}
	router := newTestRouter(srv)

	body, err := json.Marshal(map[string]any{"period": "2025-03"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/generate", bytes.NewReader(body))
	req.Header.Set("X-Actor", "clerk-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, invoiceSvc.generateCalls)
	assert.Equal(t, "2025-03", invoiceSvc.lastGenerate.Period)
	assert.Equal(t, "clerk-1", invoiceSvc.lastActor)
}

func TestGenerateInvoicesValidationBecomes400(t *testing.T) {
	srv := &Server{invoiceSvc: &fakeInvoiceService{}}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/generate", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation_error", resp.Error.Type)
}

func TestGetInvoiceNotFoundBecomes404(t *testing.T) {
	srv := &Server{invoiceSvc: &fakeInvoiceService{}}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/123", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp.Error.Type)
}

func TestWaiveStateGuardBecomes409(t *testing.T) {
	srv := &Server{invoiceSvc: &fakeInvoiceService{}}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/123/waive", bytes.NewReader([]byte(`{"reason":"hardship"}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "state_guard", resp.Error.Type)
}

func TestMarkOverdueDefaultsToClock(t *testing.T) {
	now := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	invoiceSvc := &fakeInvoiceService{}
	srv := &Server{
		invoiceSvc: invoiceSvc,
		clock:      clock.NewFakeClock(now),
	}
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/mark_overdue", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, now, invoiceSvc.markOverdueAt)
}

func TestRecordPaymentParsesReceivedAt(t *testing.T) {
	paymentSvc := &fakePaymentService{}
	srv := &Server{paymentSvc: paymentSvc}
	router := newTestRouter(srv)

	body := []byte(`{"customer_id":"42","amount":50000,"method":"transfer","received_at":"2025-03-05"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/payments", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, paymentSvc.recorded, 1)
	got := paymentSvc.recorded[0]
	assert.Equal(t, "42", got.CustomerID)
	assert.Equal(t, int64(50000), got.Amount)
	require.NotNil(t, got.ReceivedAt)
	assert.Equal(t, time.Date(2025, time.March, 5, 0, 0, 0, 0, time.UTC), *got.ReceivedAt)
}
