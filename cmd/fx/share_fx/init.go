package share_fx

import (
	"go.uber.org/fx"

	"finmodel/internal/services"
)

var Module = fx.Provide(services.NewShareService)
