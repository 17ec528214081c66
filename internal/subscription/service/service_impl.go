package service

import (
	"context"
	"strings"

	auditdomain "github.com/baladiya/wastebilling/internal/audit/domain"
	"github.com/baladiya/wastebilling/internal/auditcontext"
	"github.com/baladiya/wastebilling/internal/clock"
	customerdomain "github.com/baladiya/wastebilling/internal/customer/domain"
	"github.com/baladiya/wastebilling/internal/fault"
	"github.com/baladiya/wastebilling/internal/period"
	subscriptiondomain "github.com/baladiya/wastebilling/internal/subscription/domain"
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

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	CustomerSvc customerdomain.Service
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        repository.Repository[subscriptiondomain.Subscription]
	customerSvc customerdomain.Service
	auditSvc    auditdomain.Service
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("subscription.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        repository.ProvideStore[subscriptiondomain.Subscription](p.DB),
		customerSvc: p.CustomerSvc,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	if req.Fee < 0 {
		return subscriptiondomain.Subscription{}, fault.Validation("fee cannot be negative")
	}

	frequency := subscriptiondomain.Frequency(strings.ToUpper(strings.TrimSpace(req.Frequency)))
	switch frequency {
	case subscriptiondomain.FrequencyMonthly, subscriptiondomain.FrequencyQuarterly, subscriptiondomain.FrequencyYearly:
	default:
		return subscriptiondomain.Subscription{}, fault.Validationf("unknown frequency %q", req.Frequency)
	}

	start, err := period.Parse(strings.TrimSpace(req.StartPeriod))
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	endRaw := strings.TrimSpace(req.EndPeriod)
	if endRaw == "" {
		endRaw = subscriptiondomain.DefaultEndPeriod
	}
	end, err := period.Parse(endRaw)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if end.Before(start) {
		return subscriptiondomain.Subscription{}, fault.Validation("end period precedes start period")
	}

	customer, err := s.customerSvc.GetByID(ctx, req.CustomerID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	serviceType := strings.TrimSpace(req.ServiceType)
	if serviceType == "" {
		serviceType = subscriptiondomain.ServiceTypeWaste
	}

	now := s.clock.Now()
	sub := subscriptiondomain.Subscription{
		ID:          s.genID.Generate(),
		CustomerID:  customer.ID,
		ServiceType: serviceType,
		Fee:         req.Fee,
		Frequency:   frequency,
		StartPeriod: start.String(),
		EndPeriod:   end.String(),
		Status:      subscriptiondomain.SubscriptionStatusActive,
		Metadata:    datatypes.JSONMap{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, &sub); err != nil {
		return subscriptiondomain.Subscription{}, fault.Persistence("create subscription", err)
	}

	_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "subscription.created", "subscription", sub.ID.String(), map[string]any{
		"customer_id":  sub.CustomerID.String(),
		"service_type": sub.ServiceType,
		"fee":          sub.Fee,
		"frequency":    string(sub.Frequency),
		"start_period": sub.StartPeriod,
		"end_period":   sub.EndPeriod,
	})
	return sub, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListSubscriptionRequest) (subscriptiondomain.ListSubscriptionResponse, error) {
	filter := &subscriptiondomain.Subscription{}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = subscriptiondomain.SubscriptionStatus(status)
	}
	if customerID := strings.TrimSpace(req.CustomerID); customerID != "" {
		id, err := snowflake.ParseString(customerID)
		if err != nil {
			return subscriptiondomain.ListSubscriptionResponse{}, fault.Validation("invalid customer id")
		}
		filter.CustomerID = id
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true}, Field: "created_at"}),
	}
	if req.Limit > 0 {
		options = append(options, option.WithLimit(req.Limit))
	}
	if req.Offset > 0 {
		options = append(options, option.WithOffset(req.Offset))
	}

	items, err := s.repo.Find(ctx, filter, options...)
	if err != nil {
		return subscriptiondomain.ListSubscriptionResponse{}, fault.Persistence("list subscriptions", err)
	}

	subs := make([]subscriptiondomain.Subscription, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		subs = append(subs, *item)
	}
	return subscriptiondomain.ListSubscriptionResponse{Subscriptions: subs}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	subID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return subscriptiondomain.Subscription{}, fault.Validation("invalid subscription id")
	}

	item, err := s.repo.FindOne(ctx, &subscriptiondomain.Subscription{ID: subID})
	if err != nil {
		return subscriptiondomain.Subscription{}, fault.Persistence("load subscription", err)
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, fault.NotFoundf("subscription %s not found", id)
	}
	return *item, nil
}

func (s *Service) Deactivate(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	sub, err := s.GetByID(ctx, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if sub.Status == subscriptiondomain.SubscriptionStatusInactive {
		return sub, nil
	}

	now := s.clock.Now()
	if err := s.repo.Update(ctx, sub.ID.String(), map[string]any{
		"status":     subscriptiondomain.SubscriptionStatusInactive,
		"updated_at": now,
	}); err != nil {
		return subscriptiondomain.Subscription{}, fault.Persistence("deactivate subscription", err)
	}
	sub.Status = subscriptiondomain.SubscriptionStatusInactive
	sub.UpdatedAt = now

	_ = s.auditSvc.Record(ctx, auditcontext.ActorFromContext(ctx), "subscription.deactivated", "subscription", sub.ID.String(), map[string]any{
		"customer_id": sub.CustomerID.String(),
	})
	return sub, nil
}
