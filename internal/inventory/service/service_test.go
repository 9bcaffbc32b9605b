package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/inventory/domain"
	"github.com/smallbiznis/storefront/internal/inventory/repository"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	"github.com/smallbiznis/storefront/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func setup(t *testing.T, stocks ...int64) (domain.Service, *gorm.DB) {
	t.Helper()
	return setupWithPolicy(t, nil, stocks...)
}

func setupWithPolicy(t *testing.T, policy *config.PolicyHolder, stocks ...int64) (domain.Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t, &productdomain.Product{})
	now := time.Now().UTC()
	for i, stock := range stocks {
		status := productdomain.StatusActive
		if i%2 == 1 {
			status = productdomain.StatusHidden
		}
		require.NoError(t, db.Create(&productdomain.Product{
			ID:                int64(i + 1),
			Name:              fmt.Sprintf("p%d", i),
			Price:             decimal.NewFromInt(1),
			Currency:          "usd",
			StockQuantity:     stock,
			PriceRef:          fmt.Sprintf("price_%d", i),
			ExternalProductID: fmt.Sprintf("prod_%d", i),
			Status:            status,
			CreatedAt:         now,
			UpdatedAt:         now,
		}).Error)
	}
	return New(Params{DB: db, Log: zaptest.NewLogger(t), Repo: repository.Provide(), Policy: policy}), db
}

func TestComputeStatsEmptyCatalog(t *testing.T) {
	svc, _ := setup(t)

	stats, err := svc.ComputeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{}, *stats)
}

func TestComputeStatsBuckets(t *testing.T) {
	svc, _ := setup(t, 0, 0, 1, 5, 6, 100)

	stats, err := svc.ComputeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.ProductsCount)
	assert.Equal(t, int64(112), stats.TotalStock)
	assert.Equal(t, int64(2), stats.OutOfStockCount)
	assert.Equal(t, int64(2), stats.LowStockCount)
}

func TestComputeStatsBucketsAreDisjoint(t *testing.T) {
	cases := [][]int64{
		{0},
		{5},
		{0, 1, 2, 3, 4, 5},
		{6, 7, 8},
		{0, 0, 0, 5, 5, 5, 6},
	}
	for _, stocks := range cases {
		svc, _ := setup(t, stocks...)
		stats, err := svc.ComputeStats(context.Background())
		require.NoError(t, err)
		assert.LessOrEqual(t, stats.OutOfStockCount+stats.LowStockCount, stats.ProductsCount, "stocks %v", stocks)
	}
}

func TestComputeStatsDoesNotMutate(t *testing.T) {
	svc, db := setup(t, 3, 0)

	_, err := svc.ComputeStats(context.Background())
	require.NoError(t, err)

	var products []productdomain.Product
	require.NoError(t, db.Order("id").Find(&products).Error)
	require.Len(t, products, 2)
	assert.Equal(t, int64(3), products[0].StockQuantity)
	assert.Equal(t, int64(0), products[1].StockQuantity)
}

func TestComputeStatsUsesPolicyThreshold(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.Inventory.LowStockThreshold = 10
	svc, _ := setupWithPolicy(t, config.NewStaticPolicyHolder(policy), 0, 1, 5, 10, 11)

	stats, err := svc.ComputeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.OutOfStockCount)
	assert.Equal(t, int64(3), stats.LowStockCount)

	policy.Inventory.LowStockThreshold = 0
	svc, _ = setupWithPolicy(t, config.NewStaticPolicyHolder(policy), 0, 1, 5)
	stats, err = svc.ComputeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.OutOfStockCount)
	assert.Zero(t, stats.LowStockCount)
}
