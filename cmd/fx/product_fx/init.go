package product_fx

import (
	"go.uber.org/fx"

	"finmodel/internal/services"
)

var Module = fx.Provide(services.NewProductService)
