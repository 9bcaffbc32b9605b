package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	FindByPriceRef(ctx context.Context, db *gorm.DB, priceRef string) (*Product, error)
	FindByPriceRefs(ctx context.Context, db *gorm.DB, priceRefs []string) ([]Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Product, error)
	Update(ctx context.Context, db *gorm.DB, product *Product) error
	UpdateStatus(ctx context.Context, db *gorm.DB, id int64, status Status, updatedAt time.Time) error
}

type ListFilter struct {
	Status   *Status
	Name     string
	Limit    int
	CursorID int64
}
