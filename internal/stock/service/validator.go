package service

import (
	"context"

	"github.com/smallbiznis/storefront/internal/observability/metrics"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	"github.com/smallbiznis/storefront/internal/stock/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Products productdomain.Repository
	Metrics  *metrics.Metrics `optional:"true"`
}

type Validator struct {
	db       *gorm.DB
	log      *zap.Logger
	products productdomain.Repository
	metrics  *metrics.Metrics
}

func New(p Params) domain.Validator {
	return &Validator{
		db:       p.DB,
		log:      p.Log.Named("stock.validator"),
		products: p.Products,
		metrics:  p.Metrics,
	}
}

// Validate checks items in order and stops at the first violation. Later
// items are never looked up once one fails. Repeated lines for the same price
// are checked against stock by their running total.
func (v *Validator) Validate(ctx context.Context, items []domain.LineItem) (domain.Resolved, error) {
	resolved := make(domain.Resolved, len(items))
	requested := make(map[string]int64, len(items))

	for _, item := range items {
		product, ok := resolved[item.Price]
		if !ok {
			found, err := v.products.FindByPriceRef(ctx, v.db, item.Price)
			if err != nil {
				v.log.Error("stock lookup failed",
					zap.String("price_ref", item.Price),
					zap.Error(err),
				)
				v.metrics.RecordStockRejection(ctx, "unavailable")
				return nil, domain.ErrValidationUnavailable
			}
			if !found.Purchasable() {
				v.metrics.RecordStockRejection(ctx, "price_not_found")
				return nil, &domain.PriceNotFoundError{PriceRef: item.Price}
			}
			product = *found
		}

		requested[item.Price] += item.Quantity
		if requested[item.Price] > product.StockQuantity {
			v.metrics.RecordStockRejection(ctx, "insufficient_stock")
			return nil, &domain.InsufficientStockError{
				PriceRef:    item.Price,
				ProductName: product.Name,
				Requested:   requested[item.Price],
				Available:   product.StockQuantity,
			}
		}
		resolved[item.Price] = product
	}
	return resolved, nil
}
