package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusHidden Status = "HIDDEN"
)

// ParseStatus accepts exactly ACTIVE or HIDDEN.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusActive:
		return StatusActive, nil
	case StatusHidden:
		return StatusHidden, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Product is the local catalog record. PriceRef points at the external price
// currently used for checkout; ExternalProductID is its processor-side twin.
type Product struct {
	ID                int64           `gorm:"primaryKey"`
	Name              string          `gorm:"type:text;not null"`
	Description       *string         `gorm:"type:text"`
	ImageURL          *string         `gorm:"column:image_url;type:text"`
	Price             decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	StockQuantity     int64           `gorm:"column:stock_quantity;not null;default:0"`
	PriceRef          string          `gorm:"column:price_ref;type:varchar(255);not null;uniqueIndex:ux_products_price_ref"`
	ExternalProductID string          `gorm:"column:external_product_id;type:varchar(255);not null"`
	Status            Status          `gorm:"type:varchar(16);not null;default:ACTIVE;index"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

func (Product) TableName() string { return "products" }

func (p *Product) Purchasable() bool {
	return p != nil && p.Status == StatusActive
}

// UnitAmount returns the price in minor currency units.
func (p *Product) UnitAmount() int64 {
	return p.Price.Shift(2).Round(0).IntPart()
}
