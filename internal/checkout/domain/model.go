package domain

import (
	"time"

	"gorm.io/datatypes"
)

// CheckoutSession mirrors an external checkout session at creation time.
// Rows are written once and never updated.
type CheckoutSession struct {
	ID                int64          `gorm:"primaryKey"`
	ExternalSessionID string         `gorm:"column:external_session_id;type:varchar(255);not null;uniqueIndex:ux_checkout_sessions_external_id"`
	URL               string         `gorm:"column:url;type:text"`
	LineItems         datatypes.JSON `gorm:"column:line_items;not null"`
	Email             string         `gorm:"type:text;not null"`
	UserID            string         `gorm:"column:user_id;type:varchar(255);not null;index"`
	Address           datatypes.JSON `gorm:"column:address"`
	CreatedAt         time.Time      `gorm:"not null"`
}

func (CheckoutSession) TableName() string { return "checkout_sessions" }

type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}
