// Package domain contains persistence models for recurring
// waste-management subscriptions and the recurrence calculator that
// decides when they bill.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusInactive SubscriptionStatus = "INACTIVE"
)

// Frequency is the billing cadence of a subscription.
type Frequency string

const (
	FrequencyMonthly   Frequency = "MONTHLY"
	FrequencyQuarterly Frequency = "QUARTERLY"
	FrequencyYearly    Frequency = "YEARLY"
)

// ServiceTypeWaste tags invoices produced by the waste-management
// subscription series. The tag participates in the generation
// idempotency key and the invoice number prefix.
const ServiceTypeWaste = "WASTE_MGMT"

// DefaultEndPeriod is the open-ended subscription sentinel.
const DefaultEndPeriod = "9999-12"

// Subscription captures a customer's recurring billing agreement. Fee
// is in minor currency units. StartPeriod and EndPeriod are inclusive
// YYYY-MM bounds.
type Subscription struct {
	ID          snowflake.ID       `gorm:"primaryKey" json:"id"`
	CustomerID  snowflake.ID       `gorm:"not null;index" json:"customer_id"`
	ServiceType string             `gorm:"type:text;not null;default:'WASTE_MGMT'" json:"service_type"`
	Fee         int64              `gorm:"not null" json:"fee"`
	Frequency   Frequency          `gorm:"type:text;not null" json:"frequency"`
	StartPeriod string             `gorm:"type:text;not null" json:"start_period"`
	EndPeriod   string             `gorm:"type:text;not null;default:'9999-12'" json:"end_period"`
	Status      SubscriptionStatus `gorm:"type:text;not null;default:'ACTIVE'" json:"status"`
	Metadata    datatypes.JSONMap  `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
