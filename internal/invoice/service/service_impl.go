// Package service implements invoice generation and the invoice
// lifecycle over the shared gorm store.
package service

import (
	"context"
	"strings"

	auditdomain "github.com/baladiya/wastebilling/internal/audit/domain"
	"github.com/baladiya/wastebilling/internal/clock"
	"github.com/baladiya/wastebilling/internal/config"
	customerdomain "github.com/baladiya/wastebilling/internal/customer/domain"
	"github.com/baladiya/wastebilling/internal/fault"
	invoicedomain "github.com/baladiya/wastebilling/internal/invoice/domain"
	subscriptiondomain "github.com/baladiya/wastebilling/internal/subscription/domain"
	"github.com/baladiya/wastebilling/pkg/db/option"
	"github.com/baladiya/wastebilling/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	AuditSvc auditdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	billing      *config.BillingConfigHolder
	invoiceRepo  repository.Repository[invoicedomain.Invoice]
	itemRepo     repository.Repository[invoicedomain.InvoiceItem]
	customerRepo repository.Repository[customerdomain.Customer]
	subRepo      repository.Repository[subscriptiondomain.Subscription]
	auditSvc     auditdomain.Service
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("invoice.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		billing:      p.Billing,
		invoiceRepo:  repository.ProvideStore[invoicedomain.Invoice](p.DB),
		itemRepo:     repository.ProvideStore[invoicedomain.InvoiceItem](p.DB),
		customerRepo: repository.ProvideStore[customerdomain.Customer](p.DB),
		subRepo:      repository.ProvideStore[subscriptiondomain.Subscription](p.DB),
		auditSvc:     p.AuditSvc,
	}
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	filter := &invoicedomain.Invoice{}
	if customerID := strings.TrimSpace(req.CustomerID); customerID != "" {
		id, err := snowflake.ParseString(customerID)
		if err != nil {
			return invoicedomain.ListInvoiceResponse{}, fault.Validation("invalid customer id")
		}
		filter.CustomerID = id
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = invoicedomain.InvoiceStatus(strings.ToUpper(status))
	}
	if p := strings.TrimSpace(req.Period); p != "" {
		filter.Period = p
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"issued_at": true}, Field: "issued_at"}),
	}
	if req.DueFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{Field: "due_at", Operator: option.GTE, Value: *req.DueFrom}))
	}
	if req.DueTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{Field: "due_at", Operator: option.LTE, Value: *req.DueTo}))
	}
	if req.Limit > 0 {
		options = append(options, option.WithLimit(req.Limit))
	}
	if req.Offset > 0 {
		options = append(options, option.WithOffset(req.Offset))
	}

	items, err := s.invoiceRepo.Find(ctx, filter, options...)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, fault.Persistence("list invoices", err)
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}
	return invoicedomain.ListInvoiceResponse{Invoices: invoices}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (invoicedomain.Invoice, []invoicedomain.InvoiceItem, error) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return invoicedomain.Invoice{}, nil, fault.Validation("invalid invoice id")
	}

	inv, err := s.invoiceRepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return invoicedomain.Invoice{}, nil, fault.Persistence("load invoice", err)
	}
	if inv == nil {
		return invoicedomain.Invoice{}, nil, fault.NotFoundf("invoice %s not found", id)
	}

	rows, err := s.itemRepo.Find(ctx, &invoicedomain.InvoiceItem{InvoiceID: invoiceID})
	if err != nil {
		return invoicedomain.Invoice{}, nil, fault.Persistence("load invoice items", err)
	}
	items := make([]invoicedomain.InvoiceItem, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		items = append(items, *row)
	}
	return *inv, items, nil
}
