package config

import (
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy holds storefront rules that operators may tune without a restart.
type Policy struct {
	Checkout  CheckoutPolicy  `mapstructure:"checkout"`
	Inventory InventoryPolicy `mapstructure:"inventory"`
}

type CheckoutPolicy struct {
	// MaxLineItems caps distinct line items per session. Stripe rejects more than 100.
	MaxLineItems int `mapstructure:"maxLineItems"`
	// MaxQuantityPerItem caps a single line item quantity. Zero disables the cap.
	MaxQuantityPerItem int64 `mapstructure:"maxQuantityPerItem"`
}

type InventoryPolicy struct {
	// LowStockThreshold is the inclusive upper bound for "low" stock in the
	// inventory stats. Zero stock always counts as out of stock instead.
	LowStockThreshold int64 `mapstructure:"lowStockThreshold"`
}

func DefaultPolicy() Policy {
	return Policy{
		Checkout: CheckoutPolicy{
			MaxLineItems:       100,
			MaxQuantityPerItem: 0,
		},
		Inventory: InventoryPolicy{
			LowStockThreshold: 5,
		},
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder pinned to the given policy.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(p)
	return holder
}

func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	v := viper.New()

	if cfg.PolicyPath != "" {
		v.SetConfigFile(cfg.PolicyPath)
	} else {
		v.SetConfigName("storefront")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/storefront")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPolicy()
	v.SetDefault("checkout.maxLineItems", defaults.Checkout.MaxLineItems)
	v.SetDefault("checkout.maxQuantityPerItem", defaults.Checkout.MaxQuantityPerItem)
	v.SetDefault("inventory.lowStockThreshold", defaults.Inventory.LowStockThreshold)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var policy Policy
	if err := v.Unmarshal(&policy); err != nil {
		return nil, err
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated Policy
		if err := v.Unmarshal(&updated); err != nil {
			log.Warn("policy reload failed", zap.Error(err))
			return
		}
		if err := validatePolicy(updated); err != nil {
			log.Warn("invalid policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("policy reloaded", zap.String("file", filepath.Base(e.Name)))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	if h == nil {
		return DefaultPolicy()
	}
	p, ok := h.current.Load().(Policy)
	if !ok {
		return DefaultPolicy()
	}
	return p
}

func validatePolicy(p Policy) error {
	if p.Checkout.MaxLineItems <= 0 {
		return errors.New("checkout.maxLineItems must be positive")
	}
	if p.Checkout.MaxQuantityPerItem < 0 {
		return errors.New("checkout.maxQuantityPerItem cannot be negative")
	}
	if p.Inventory.LowStockThreshold < 0 {
		return errors.New("inventory.lowStockThreshold cannot be negative")
	}
	return nil
}
