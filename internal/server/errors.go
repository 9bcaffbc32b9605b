package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/storefront/internal/checkout/domain"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	productdomain "github.com/smallbiznis/storefront/internal/product/domain"
	stockdomain "github.com/smallbiznis/storefront/internal/stock/domain"
	"gorm.io/gorm"
)

// errorResponse is the only error shape the API serializes.
type errorResponse struct {
	Message string `json:"message"`
}

var (
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrCheckoutInProgress = errors.New("checkout_in_progress")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, message := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Message: message})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, string) {
	if err == nil {
		return http.StatusInternalServerError, "internal server error"
	}

	var priceNotFound *stockdomain.PriceNotFoundError
	var insufficient *stockdomain.InsufficientStockError

	switch {
	case errors.As(err, &priceNotFound):
		return http.StatusBadRequest, priceNotFound.Error()
	case errors.As(err, &insufficient):
		return http.StatusConflict, insufficient.Error()
	case errors.Is(err, stockdomain.ErrValidationUnavailable):
		return http.StatusInternalServerError, "Unable to validate stock"
	case isValidationError(err):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, productdomain.ErrNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "not found"
	case paymentdomain.IsResourceMissing(err):
		return http.StatusNotFound, "checkout session not found"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests"
	case errors.Is(err, ErrCheckoutInProgress):
		return http.StatusTooManyRequests, "checkout already in progress"
	case paymentdomain.IsProcessorError(err):
		return http.StatusInternalServerError, "payment processor error"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isProductValidationError(err),
		isCheckoutValidationError(err):
		return true
	default:
		return false
	}
}

// validationMessage renders a sentinel code such as "invalid_status" as text.
func validationMessage(err error) string {
	return strings.ReplaceAll(err.Error(), "_", " ")
}

func isCheckoutValidationError(err error) bool {
	switch {
	case errors.Is(err, checkoutdomain.ErrInvalidID),
		errors.Is(err, checkoutdomain.ErrEmptyLineItems),
		errors.Is(err, checkoutdomain.ErrTooManyLineItems),
		errors.Is(err, checkoutdomain.ErrInvalidLineItem),
		errors.Is(err, checkoutdomain.ErrInvalidQuantity),
		errors.Is(err, checkoutdomain.ErrQuantityLimit),
		errors.Is(err, checkoutdomain.ErrInvalidEmail),
		errors.Is(err, checkoutdomain.ErrInvalidUserID):
		return true
	default:
		return false
	}
}

// classifyErrorForLog returns a low-cardinality (type, code) pair for request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}

	var priceNotFound *stockdomain.PriceNotFoundError
	var insufficient *stockdomain.InsufficientStockError

	switch {
	case errors.As(err, &priceNotFound):
		return "validation", "price_not_found"
	case errors.As(err, &insufficient):
		return "conflict", "insufficient_stock"
	case errors.Is(err, stockdomain.ErrValidationUnavailable):
		return "internal", "validation_unavailable"
	case isValidationError(err):
		return "validation", err.Error()
	case errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return "not_found", "not_found"
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrCheckoutInProgress):
		return "rate_limited", err.Error()
	case paymentdomain.IsProcessorError(err):
		return "processor", string(paymentdomain.KindOf(err))
	default:
		return "internal", "internal_error"
	}
}
