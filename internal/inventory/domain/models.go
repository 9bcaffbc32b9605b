package domain

import (
	"context"

	"gorm.io/gorm"
)

type Stats struct {
	ProductsCount   int64 `json:"productsCount" gorm:"column:products_count"`
	TotalStock      int64 `json:"totalStock" gorm:"column:total_stock"`
	OutOfStockCount int64 `json:"outOfStockCount" gorm:"column:out_of_stock_count"`
	LowStockCount   int64 `json:"lowStockCount" gorm:"column:low_stock_count"`
}

type Repository interface {
	Aggregate(ctx context.Context, db *gorm.DB, lowStockThreshold int64) (Stats, error)
}

type Service interface {
	ComputeStats(ctx context.Context) (*Stats, error)
}
