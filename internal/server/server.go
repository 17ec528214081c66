// Package server exposes the billing engine over HTTP. Handlers bind
// requests, delegate to domain services, and render fault kinds as
// JSON error payloads.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/baladiya/wastebilling/internal/audit"
	auditdomain "github.com/baladiya/wastebilling/internal/audit/domain"
	"github.com/baladiya/wastebilling/internal/clock"
	"github.com/baladiya/wastebilling/internal/config"
	"github.com/baladiya/wastebilling/internal/customer"
	customerdomain "github.com/baladiya/wastebilling/internal/customer/domain"
	"github.com/baladiya/wastebilling/internal/invoice"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	"github.com/baladiya/wastebilling/internal/observability"
	obsmiddleware "github.com/baladiya/wastebilling/internal/observability/logger"
	obsmetrics "github.com/baladiya/wastebilling/internal/observability/metrics"
	obstracing "github.com/baladiya/wastebilling/internal/observability/tracing"
	"github.com/baladiya/wastebilling/internal/payment"
	paymentdomain "github.com/baladiya/wastebilling/internal/payment/domain"
	"github.com/baladiya/wastebilling/internal/reporting"
	reportingdomain "github.com/baladiya/wastebilling/internal/reporting/domain"
	"github.com/baladiya/wastebilling/internal/subscription"
	subscriptiondomain "github.com/baladiya/wastebilling/internal/subscription/domain"
)

var Module = fx.Module("server",
	audit.Module,
	customer.Module,
	subscription.Module,
	invoice.Module,
	payment.Module,
	reporting.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ActorMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	clock           clock.Clock
	auditSvc        auditdomain.Service
	customerSvc     customerdomain.Service
	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	reportingSvc    reportingdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Clock           clock.Clock
	AuditSvc        auditdomain.Service
	CustomerSvc     customerdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	ReportingSvc    reportingdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		clock:           p.Clock,
		auditSvc:        p.AuditSvc,
		customerSvc:     p.CustomerSvc,
		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		reportingSvc:    p.ReportingSvc,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Customers --------
	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers", s.ListCustomers)
	api.GET("/customers/:id", s.GetCustomerByID)

	// -------- Subscriptions --------
	api.POST("/subscriptions", s.CreateSubscription)
	api.GET("/subscriptions", s.ListSubscriptions)
	api.GET("/subscriptions/:id", s.GetSubscriptionByID)
	api.POST("/subscriptions/:id/deactivate", s.DeactivateSubscription)

	// -------- Invoices --------
	api.POST("/invoices/generate", s.GenerateInvoices)
	api.POST("/invoices/mark_overdue", s.MarkInvoicesOverdue)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.POST("/invoices/:id/penalty", s.AddInvoicePenalty)
	api.POST("/invoices/:id/waive", s.WaiveInvoice)
	api.POST("/invoices/:id/cancel", s.CancelInvoice)

	// -------- Payments --------
	api.POST("/payments", s.RecordPayment)
	api.POST("/payments/:id/allocate", s.AllocatePayment)
	api.GET("/payments", s.ListPayments)
	api.GET("/payments/:id", s.GetPaymentByID)

	// -------- Reports --------
	api.GET("/reports/collection_summary", s.CollectionSummary)
	api.GET("/reports/receivables_aging", s.ReceivablesAging)

	// -------- Audit --------
	api.GET("/audit_logs", s.ListAuditLogs)
}
