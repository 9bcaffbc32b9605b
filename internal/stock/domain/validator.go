package domain

import (
	"context"
	"errors"
	"fmt"

	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
)

// LineItem is a requested purchase of Quantity units of the product sold
// under the external price Price.
type LineItem struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

// Resolved maps each validated price reference to its catalog product.
type Resolved map[string]productdomain.Product

type Validator interface {
	Validate(ctx context.Context, items []LineItem) (Resolved, error)
}

// ErrValidationUnavailable hides persistence failures behind a stable error.
var ErrValidationUnavailable = errors.New("validation_unavailable")

type PriceNotFoundError struct {
	PriceRef string
}

func (e *PriceNotFoundError) Error() string {
	return fmt.Sprintf("Product for price %s not found", e.PriceRef)
}

type InsufficientStockError struct {
	PriceRef    string
	ProductName string
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s", e.ProductName)
}
