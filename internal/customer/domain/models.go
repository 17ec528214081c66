// Package domain contains persistence models for billed customers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type CustomerStatus string

const (
	CustomerStatusActive   CustomerStatus = "ACTIVE"
	CustomerStatusInactive CustomerStatus = "INACTIVE"
)

// Customer is a billed household or business. Invoices snapshot the
// name and address at issue time, so edits here never rewrite history.
type Customer struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name       string            `gorm:"not null" json:"name"`
	Address    string            `gorm:"type:text" json:"address"`
	Phone      string            `gorm:"type:text" json:"phone,omitempty"`
	NationalID string            `gorm:"type:text;index" json:"national_id,omitempty"`
	Status     CustomerStatus    `gorm:"type:text;not null;default:'ACTIVE'" json:"status"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
