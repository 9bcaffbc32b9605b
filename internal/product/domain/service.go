package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Get(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) (*Response, error)
	SetStatus(ctx context.Context, id string, status string) (*Response, error)
}

type ListRequest struct {
	Status    string
	Name      string
	PageSize  int
	PageToken string
}

type CreateRequest struct {
	Name          string          `json:"name"`
	Description   *string         `json:"description"`
	ImageURL      *string         `json:"imageUrl"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	StockQuantity int64           `json:"stockQuantity"`
}

// UpdateRequest carries optional changes; nil fields are left untouched.
type UpdateRequest struct {
	ID            string           `json:"-"`
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	ImageURL      *string          `json:"imageUrl"`
	Price         *decimal.Decimal `json:"price"`
	StockQuantity *int64           `json:"stockQuantity"`
}

type Response struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Description       *string         `json:"description,omitempty"`
	ImageURL          *string         `json:"imageUrl,omitempty"`
	Price             decimal.Decimal `json:"price"`
	Currency          string          `json:"currency"`
	StockQuantity     int64           `json:"stockQuantity"`
	PriceRef          string          `json:"priceRef"`
	ExternalProductID string          `json:"externalProductId"`
	Status            Status          `json:"status"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	Sync              *SyncReport     `json:"sync,omitempty"`
}

type ListResponse struct {
	Products      []Response `json:"products"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
	HasMore       bool       `json:"hasMore"`
}

var (
	ErrNotFound        = errors.New("not_found")
	ErrInvalidID       = errors.New("invalid_id")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidStock    = errors.New("invalid_stock_quantity")
	ErrInvalidCurrency = errors.New("invalid_currency")
	ErrInvalidStatus   = errors.New("invalid_status")
	ErrInvalidCursor   = errors.New("invalid_cursor")
)
