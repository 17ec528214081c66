package service

import (
	"context"
	"strings"

	auditdomain "github.com/baladiya/wastebilling/internal/audit/domain"
	"github.com/baladiya/wastebilling/internal/auditcontext"
	"github.com/baladiya/wastebilling/internal/clock"
	customerdomain "github.com/baladiya/wastebilling/internal/customer/domain"
	"github.com/baladiya/wastebilling/internal/fault"
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
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     repository.Repository[customerdomain.Customer]
	auditSvc auditdomain.Service
}

func NewService(p Params) customerdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("customer.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     repository.ProvideStore[customerdomain.Customer](p.DB),
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req customerdomain.CreateCustomerRequest) (customerdomain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return customerdomain.Customer{}, fault.Validation("customer name is required")
	}

	now := s.clock.Now()
	customer := customerdomain.Customer{
		ID:         s.genID.Generate(),
		Name:       name,
		Address:    strings.TrimSpace(req.Address),
		Phone:      strings.TrimSpace(req.Phone),
		NationalID: strings.TrimSpace(req.NationalID),
		Status:     customerdomain.CustomerStatusActive,
		Metadata:   datatypes.JSONMap{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, &customer); err != nil {
		return customerdomain.Customer{}, fault.Persistence("create customer", err)
	}

	_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "customer.created", "customer", customer.ID.String(), map[string]any{
		"name": customer.Name,
	})
	return customer, nil
}

func (s *Service) List(ctx context.Context, req customerdomain.ListCustomerRequest) (customerdomain.ListCustomerResponse, error) {
	filter := &customerdomain.Customer{}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = customerdomain.CustomerStatus(status)
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}, Field: "created_at"}),
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "name",
			Operator: option.StartsWith,
			Value:    name,
		}))
	}
	if req.CreatedFrom != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.GTE,
			Value:    *req.CreatedFrom,
		}))
	}
	if req.CreatedTo != nil {
		options = append(options, option.ApplyOperator(option.Condition{
			Field:    "created_at",
			Operator: option.LTE,
			Value:    *req.CreatedTo,
		}))
	}
	if req.Limit > 0 {
		options = append(options, option.WithLimit(req.Limit))
	}
	if req.Offset > 0 {
		options = append(options, option.WithOffset(req.Offset))
	}

	items, err := s.repo.Find(ctx, filter, options...)
	if err != nil {
		return customerdomain.ListCustomerResponse{}, fault.Persistence("list customers", err)
	}

	customers := make([]customerdomain.Customer, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, *item)
	}
	return customerdomain.ListCustomerResponse{Customers: customers}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (customerdomain.Customer, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return customerdomain.Customer{}, fault.Validation("invalid customer id")
	}

	item, err := s.repo.FindOne(ctx, &customerdomain.Customer{ID: customerID})
	if err != nil {
		return customerdomain.Customer{}, fault.Persistence("load customer", err)
	}
	if item == nil {
		return customerdomain.Customer{}, fault.NotFoundf("customer %s not found", id)
	}
	return *item, nil
}
