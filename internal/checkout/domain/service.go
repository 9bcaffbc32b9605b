package domain

import (
	"context"
	"errors"
	"time"

	stockdomain "github.com/smallbiznis/storefront/internal/stock/domain"
)

type LineItem = stockdomain.LineItem

type Service interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResult, error)
	GetSession(ctx context.Context, id string) (*SessionResponse, error)
	GetSessionItems(ctx context.Context, id string) ([]SessionItem, error)
}

type CreateSessionRequest struct {
	LineItems []LineItem `json:"lineItems"`
	Email     string     `json:"email"`
	UserID    string     `json:"userId"`
	Address   *Address   `json:"address,omitempty"`
}

// CreateSessionResult carries the external session id. Degraded is set when
// the session exists on the processor but the local mirror was not written.
type CreateSessionResult struct {
	SessionID string `json:"sessionId"`
	Degraded  bool   `json:"-"`
	Reason    string `json:"-"`
}

type SessionSource string

const (
	SourceLocal     SessionSource = "local"
	SourceProcessor SessionSource = "processor"
)

type SessionResponse struct {
	ID            string        `json:"id"`
	URL           string        `json:"url,omitempty"`
	Status        string        `json:"status,omitempty"`
	PaymentStatus string        `json:"paymentStatus,omitempty"`
	Email         string        `json:"email,omitempty"`
	UserID        string        `json:"userId,omitempty"`
	LineItems     []LineItem    `json:"lineItems,omitempty"`
	Address       *Address      `json:"address,omitempty"`
	AmountTotal   *int64        `json:"amountTotal,omitempty"`
	Currency      string        `json:"currency,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	Source        SessionSource `json:"source"`
}

// SessionItem is a purchased line mapped back to the catalog. ProductID is
// nil when no local product carries the line's price.
type SessionItem struct {
	ProductID *string `json:"productId"`
	Quantity  int64   `json:"quantity"`
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrEmptyLineItems   = errors.New("empty_line_items")
	ErrTooManyLineItems = errors.New("too_many_line_items")
	ErrInvalidLineItem  = errors.New("invalid_line_item")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrQuantityLimit    = errors.New("quantity_limit_exceeded")
	ErrInvalidEmail     = errors.New("invalid_email")
	ErrInvalidUserID    = errors.New("invalid_user_id")
)
