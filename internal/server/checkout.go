package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/storefront/internal/checkout/domain"
	obscontext "github.com/smallbiznis/storefront/internal/observability/context"
	"github.com/smallbiznis/storefront/internal/observability/logger"
	"go.uber.org/zap"
)

// CheckoutRateLimit throttles session creation per client address. Redis
// failures let the request through.
func (s *Server) CheckoutRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.checkoutLimiter.Enabled() {
			c.Next()
			return
		}

		result, err := s.checkoutLimiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.WithContext(c.Request.Context(), s.log).Warn("checkout rate limit unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Next()
	}
}

func (s *Server) CreateCheckoutSession(c *gin.Context) {
	var req checkoutdomain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	userID := strings.TrimSpace(req.UserID)
	if userID != "" {
		ctx = obscontext.WithUserID(ctx, userID)
		token, ok, err := s.checkoutLimiter.TryLockUser(ctx, userID)
		switch {
		case err != nil:
			logger.WithContext(ctx, s.log).Warn("checkout lock unavailable", zap.Error(err))
		case !ok:
			AbortWithError(c, ErrCheckoutInProgress)
			return
		case token != "":
			defer s.releaseCheckoutLock(userID, token)
		}
	}

	result, err := s.checkoutSvc.CreateSession(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) GetCheckoutSession(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.checkoutSvc.GetSession(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetCheckoutSessionItems(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	items, err := s.checkoutSvc.GetSessionItems(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

func (s *Server) releaseCheckoutLock(userID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.checkoutLimiter.ReleaseUser(ctx, userID, token); err != nil {
		s.log.Warn("release checkout lock failed", zap.Error(err))
	}
}

func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
