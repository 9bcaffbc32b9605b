package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	productrepo "github.com/smallbiznis/storefront/internal/product/repository"
	"github.com/smallbiznis/storefront/internal/stock/domain"
	"github.com/smallbiznis/storefront/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// countingRepo records which price refs were looked up.
type countingRepo struct {
	productdomain.Repository
	lookups []string
	err     error
}

func (r *countingRepo) FindByPriceRef(ctx context.Context, db *gorm.DB, priceRef string) (*productdomain.Product, error) {
	r.lookups = append(r.lookups, priceRef)
	if r.err != nil {
		return nil, r.err
	}
	return r.Repository.FindByPriceRef(ctx, db, priceRef)
}

func seed(t *testing.T, db *gorm.DB, id int64, name, priceRef string, stock int64, status productdomain.Status) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, db.Create(&productdomain.Product{
		ID:                id,
		Name:              name,
		Price:             decimal.NewFromInt(10),
		Currency:          "usd",
		StockQuantity:     stock,
		PriceRef:          priceRef,
		ExternalProductID: "prod_" + priceRef,
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}).Error)
}

func setupValidator(t *testing.T) (domain.Validator, *countingRepo, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t, &productdomain.Product{})
	repo := &countingRepo{Repository: productrepo.Provide()}
	v := New(Params{DB: db, Log: zaptest.NewLogger(t), Products: repo})
	return v, repo, db
}

func TestValidateResolvesEveryItem(t *testing.T) {
	v, _, db := setupValidator(t)
	seed(t, db, 1, "P", "price_1", 5, productdomain.StatusActive)
	seed(t, db, 2, "Q", "price_2", 1, productdomain.StatusActive)

	resolved, err := v.Validate(context.Background(), []domain.LineItem{
		{Price: "price_1", Quantity: 5},
		{Price: "price_2", Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, "P", resolved["price_1"].Name)
	assert.Equal(t, "Q", resolved["price_2"].Name)
}

func TestValidateInsufficientStockStopsEarly(t *testing.T) {
	v, repo, db := setupValidator(t)
	seed(t, db, 1, "P", "price_1", 1, productdomain.StatusActive)

	_, err := v.Validate(context.Background(), []domain.LineItem{
		{Price: "price_1", Quantity: 2},
		{Price: "price_2", Quantity: 1},
	})

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Insufficient stock for P", err.Error())
	assert.Equal(t, int64(2), stockErr.Requested)
	assert.Equal(t, int64(1), stockErr.Available)
	assert.Equal(t, []string{"price_1"}, repo.lookups, "second item must not be looked up")
}

func TestValidateUnknownPriceStopsEarly(t *testing.T) {
	v, repo, db := setupValidator(t)
	seed(t, db, 1, "P", "price_1", 10, productdomain.StatusActive)

	_, err := v.Validate(context.Background(), []domain.LineItem{
		{Price: "price_missing", Quantity: 1},
		{Price: "price_1", Quantity: 1},
	})

	var notFound *domain.PriceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Product for price price_missing not found", err.Error())
	assert.Equal(t, []string{"price_missing"}, repo.lookups)
}

func TestValidateRejectsHiddenProducts(t *testing.T) {
	v, _, db := setupValidator(t)
	seed(t, db, 1, "Old", "price_old", 10, productdomain.StatusHidden)

	_, err := v.Validate(context.Background(), []domain.LineItem{{Price: "price_old", Quantity: 1}})

	var notFound *domain.PriceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "price_old", notFound.PriceRef)
}

func TestValidateSumsRepeatedPrices(t *testing.T) {
	v, repo, db := setupValidator(t)
	seed(t, db, 1, "P", "price_1", 3, productdomain.StatusActive)

	_, err := v.Validate(context.Background(), []domain.LineItem{
		{Price: "price_1", Quantity: 2},
		{Price: "price_1", Quantity: 2},
	})

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(4), stockErr.Requested)
	assert.Len(t, repo.lookups, 1)
}

func TestValidateHidesRepositoryFailures(t *testing.T) {
	v, repo, _ := setupValidator(t)
	repo.err = errors.New("connection refused: db-primary:5432")

	_, err := v.Validate(context.Background(), []domain.LineItem{{Price: "price_1", Quantity: 1}})

	require.ErrorIs(t, err, domain.ErrValidationUnavailable)
	assert.NotContains(t, err.Error(), "db-primary")
}

func TestValidateEmptyList(t *testing.T) {
	v, repo, _ := setupValidator(t)

	resolved, err := v.Validate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, resolved)
	assert.Empty(t, repo.lookups)
}
