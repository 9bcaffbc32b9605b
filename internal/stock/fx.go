package stock

import (
	"github.com/smallbiznis/storefront/internal/stock/service"
	"go.uber.org/fx"
)

var Module = fx.Module("stock.validator",
	fx.Provide(service.New),
)
