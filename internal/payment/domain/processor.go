package domain

import (
	"context"
	"time"
)

// Processor is the boundary to the external payment processor that hosts
// checkout sessions and the mirrored product/price ledger.
type Processor interface {
	CreateProduct(ctx context.Context, params ProductParams) (*Product, error)
	UpdateProduct(ctx context.Context, id string, params ProductParams) (*Product, error)
	SetProductActive(ctx context.Context, id string, active bool) error
	CreatePrice(ctx context.Context, params PriceParams) (*Price, error)

	CreateCheckoutSession(ctx context.Context, params SessionParams) (*Session, error)
	RetrieveCheckoutSession(ctx context.Context, id string) (*Session, error)
	ListCheckoutSessionLineItems(ctx context.Context, id string) ([]SessionLineItem, error)
}

type ProductParams struct {
	Name        string
	Description *string
	ImageURL    *string
	Active      *bool
	Metadata    map[string]string
}

type Product struct {
	ID          string
	Name        string
	Description string
	Images      []string
	Active      bool
}

type PriceParams struct {
	ProductID  string
	UnitAmount int64
	Currency   string
}

// Price objects are immutable once created and scoped to a single product.
type Price struct {
	ID         string
	ProductID  string
	UnitAmount int64
	Currency   string
	Active     bool
}

type SessionLineItem struct {
	Price    string
	Quantity int64
}

type SessionParams struct {
	LineItems         []SessionLineItem
	SuccessURL        string
	CancelURL         string
	CustomerEmail     string
	ClientReferenceID string
	Metadata          map[string]string
}

type Session struct {
	ID                string
	URL               string
	Status            string
	PaymentStatus     string
	CustomerEmail     string
	ClientReferenceID string
	AmountTotal       int64
	Currency          string
	Metadata          map[string]string
	CreatedAt         time.Time
}
