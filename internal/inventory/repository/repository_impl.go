package repository

import (
	"context"

	"github.com/smallbiznis/storefront/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Aggregate(ctx context.Context, db *gorm.DB, lowStockThreshold int64) (domain.Stats, error) {
	query := `
		SELECT
			COUNT(*) AS products_count,
			COALESCE(SUM(stock_quantity), 0) AS total_stock,
			COALESCE(SUM(CASE WHEN stock_quantity = 0 THEN 1 ELSE 0 END), 0) AS out_of_stock_count,
			COALESCE(SUM(CASE WHEN stock_quantity > 0 AND stock_quantity <= ? THEN 1 ELSE 0 END), 0) AS low_stock_count
		FROM products`

	var stats domain.Stats
	if err := db.WithContext(ctx).Raw(query, lowStockThreshold).Scan(&stats).Error; err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}
