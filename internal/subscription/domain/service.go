package domain

import (
	"context"
)

type CreateSubscriptionRequest struct {
	CustomerID  string `json:"customer_id"`
	ServiceType string `json:"service_type,omitempty"`
	Fee         int64  `json:"fee"`
	Frequency   string `json:"frequency"`
	StartPeriod string `json:"start_period"`
	EndPeriod   string `json:"end_period,omitempty"`
}

type ListSubscriptionRequest struct {
	CustomerID string
	Status     string
	Limit      int
	Offset     int
}

type ListSubscriptionResponse struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	List(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)
	GetByID(ctx context.Context, id string) (Subscription, error)
	Deactivate(ctx context.Context, id string) (Subscription, error)
}
