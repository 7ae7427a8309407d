package controllers_fx

import (
	"go.uber.org/fx"

	"finmodel/internal/api/controllers"
)

var Module = fx.Options(
	fx.Provide(controllers.NewAccountController),
	fx.Provide(controllers.NewEntitlementController),
	fx.Provide(controllers.NewProductController),
	fx.Provide(controllers.NewShareController),
	fx.Provide(controllers.NewCompanyController),
	fx.Provide(controllers.NewPaymentController),
	fx.Provide(controllers.NewDashboardController))
