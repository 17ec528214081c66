// Package service records customer payments and spreads them across
// open invoices.
package service

import (
	"context"
	"strings"

	auditdomain "github.com/baladiya/wastebilling/internal/audit/domain"
	"github.com/baladiya/wastebilling/internal/auditcontext"
	"github.com/baladiya/wastebilling/internal/clock"
	customerdomain "github.com/baladiya/wastebilling/internal/customer/domain"
	"github.com/baladiya/wastebilling/internal/fault"
	paymentdomain "github.com/baladiya/wastebilling/internal/payment/domain"
	"github.com/baladiya/wastebilling/pkg/db/option"
	"github.com/baladiya/wastebilling/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	AuditSvc auditdomain.Service
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	paymentRepo  repository.Repository[paymentdomain.Payment]
	allocRepo    repository.Repository[paymentdomain.Allocation]
	customerRepo repository.Repository[customerdomain.Customer]
	auditSvc     auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("payment.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		paymentRepo:  repository.ProvideStore[paymentdomain.Payment](p.DB),
		allocRepo:    repository.ProvideStore[paymentdomain.Allocation](p.DB),
		customerRepo: repository.ProvideStore[customerdomain.Customer](p.DB),
		auditSvc:     p.AuditSvc,
	}
}

func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.RecordPaymentResponse, error) {
	if req.Amount <= 0 {
		return paymentdomain.RecordPaymentResponse{}, fault.Validation("payment amount must be positive")
	}

	customerID, err := snowflake.ParseString(strings.TrimSpace(req.CustomerID))
	if err != nil {
		return paymentdomain.RecordPaymentResponse{}, fault.Validation("invalid customer id")
	}
	customer, err := s.customerRepo.FindOne(ctx, &customerdomain.Customer{ID: customerID})
	if err != nil {
		return paymentdomain.RecordPaymentResponse{}, fault.Persistence("load customer", err)
	}
	if customer == nil {
		return paymentdomain.RecordPaymentResponse{}, fault.NotFoundf("customer %s not found", req.CustomerID)
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = paymentdomain.DefaultMethod
	}

	now := s.clock.Now()
	receivedAt := now
	if req.ReceivedAt != nil {
		receivedAt = req.ReceivedAt.UTC()
	}
	receivedBy := strings.TrimSpace(req.ReceivedBy)
	if receivedBy == "" {
		receivedBy = auditcontext.ActorFromContext(ctx)
	}

	payment := paymentdomain.Payment{
		ID:          s.genID.Generate(),
		CustomerID:  customer.ID,
		Amount:      req.Amount,
		Method:      method,
		Reference:   strings.TrimSpace(req.Reference),
		Notes:       strings.TrimSpace(req.Notes),
		ReceivedAt:  receivedAt,
		ReceivedBy:  receivedBy,
		Unallocated: req.Amount,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The payment commits before allocation starts. If allocation fails
	// the money is already on record and Allocate can be re-run.
	if err := s.paymentRepo.Create(ctx, &payment); err != nil {
		return paymentdomain.RecordPaymentResponse{}, fault.Persistence("record payment", err)
	}

	_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "payment.recorded", "payment", payment.ID.String(), map[string]any{
		"customer_id": payment.CustomerID.String(),
		"amount":      payment.Amount,
		"method":      payment.Method,
		"reference":   payment.Reference,
		"received_by": payment.ReceivedBy,
	})

	return s.Allocate(ctx, payment.ID.String())
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListPaymentRequest) (paymentdomain.ListPaymentResponse, error) {
	filter := &paymentdomain.Payment{}
	if customerID := strings.TrimSpace(req.CustomerID); customerID != "" {
		id, err := snowflake.ParseString(customerID)
		if err != nil {
			return paymentdomain.ListPaymentResponse{}, fault.Validation("invalid customer id")
		}
		filter.CustomerID = id
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"received_at": true}, Field: "received_at", Desc: true}),
	}
	if req.ReceivedFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{Field: "received_at", Operator: option.GTE, Value: *req.ReceivedFrom}))
	}
	if req.ReceivedTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{Field: "received_at", Operator: option.LTE, Value: *req.ReceivedTo}))
	}
	if req.Limit > 0 {
		options = append(options, option.WithLimit(req.Limit))
	}
	if req.Offset > 0 {
		options = append(options, option.WithOffset(req.Offset))
	}

	items, err := s.paymentRepo.Find(ctx, filter, options...)
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, fault.Persistence("list payments", err)
	}

	payments := make([]paymentdomain.Payment, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		payments = append(payments, *item)
	}
	return paymentdomain.ListPaymentResponse{Payments: payments}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (paymentdomain.Payment, []paymentdomain.Allocation, error) {
	paymentID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return paymentdomain.Payment{}, nil, fault.Validation("invalid payment id")
	}

	payment, err := s.paymentRepo.FindOne(ctx, &paymentdomain.Payment{ID: paymentID})
	if err != nil {
		return paymentdomain.Payment{}, nil, fault.Persistence("load payment", err)
	}
	if payment == nil {
		return paymentdomain.Payment{}, nil, fault.NotFoundf("payment %s not found", id)
	}

	rows, err := s.allocRepo.Find(ctx, &paymentdomain.Allocation{PaymentID: paymentID})
	if err != nil {
		return paymentdomain.Payment{}, nil, fault.Persistence("load payment allocations", err)
	}
	allocations := make([]paymentdomain.Allocation, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		allocations = append(allocations, *row)
	}
	return *payment, allocations, nil
}
