package payment

import (
	"time"

	"github.com/smallbiznis/storefront/internal/config"
	"github.com/smallbiznis/storefront/internal/payment/adapters/stripe"
	"github.com/smallbiznis/storefront/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.processor",
	fx.Provide(NewProcessor),
)

func NewProcessor(cfg config.Config, log *zap.Logger) domain.Processor {
	if cfg.Processor.SecretKey == "" {
		log.Warn("payment processor secret key is empty; external calls will fail")
	}
	return stripe.New(stripe.Config{
		SecretKey:  cfg.Processor.SecretKey,
		BaseURL:    cfg.Processor.BaseURL,
		Timeout:    time.Duration(cfg.Processor.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.Processor.MaxRetries,
	}, log)
}
