package repository

import (
	"context"

	"github.com/smallbiznis/storefront/internal/checkout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, session *domain.CheckoutSession) error {
	if session == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Create(session).Error
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.CheckoutSession, error) {
	var s domain.CheckoutSession
	err := db.WithContext(ctx).
		Where("external_session_id = ?", externalID).
		Limit(1).
		Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}
