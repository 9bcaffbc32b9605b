package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/storefront/internal/product/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Create(product).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByPriceRef(ctx context.Context, db *gorm.DB, priceRef string) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).
		Where("price_ref = ?", priceRef).
		Limit(1).
		Find(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByPriceRefs(ctx context.Context, db *gorm.DB, priceRefs []string) ([]domain.Product, error) {
	if len(priceRefs) == 0 {
		return []domain.Product{}, nil
	}
	var items []domain.Product
	err := db.WithContext(ctx).
		Where("price_ref IN ?", priceRefs).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Product, error) {
	var items []domain.Product
	stmt := db.WithContext(ctx).Model(&domain.Product{})

	if filter.Status != nil {
		stmt = stmt.Where("status = ?", *filter.Status)
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		stmt = stmt.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(name)+"%")
	}
	if filter.CursorID > 0 {
		stmt = stmt.Where("id > ?", filter.CursorID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	if err := stmt.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	if product == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"name":                product.Name,
			"description":         product.Description,
			"image_url":           product.ImageURL,
			"price":               product.Price,
			"stock_quantity":      product.StockQuantity,
			"price_ref":           product.PriceRef,
			"external_product_id": product.ExternalProductID,
			"status":              product.Status,
			"updated_at":          product.UpdatedAt,
		}).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id int64, status domain.Status, updatedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": updatedAt,
		}).Error
}
