package service

import (
	"context"

	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/inventory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   domain.Repository
	Policy *config.PolicyHolder `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	policy *config.PolicyHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("inventory.service"),
		repo:   p.Repo,
		policy: p.Policy,
	}
}

// ComputeStats rolls up stock levels over the whole catalog, hidden products
// included. The low-stock bound comes from the live policy.
func (s *Service) ComputeStats(ctx context.Context) (*domain.Stats, error) {
	threshold := s.policy.Get().Inventory.LowStockThreshold
	stats, err := s.repo.Aggregate(ctx, s.db, threshold)
	if err != nil {
		s.log.Error("inventory aggregate failed", zap.Error(err))
		return nil, err
	}
	return &stats, nil
}
