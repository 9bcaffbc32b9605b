package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, session *CheckoutSession) error
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*CheckoutSession, error)
}
