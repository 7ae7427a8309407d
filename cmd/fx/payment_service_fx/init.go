package payment_service_fx

import (
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"finmodel/internal/config"
	"finmodel/internal/repositories"
	"finmodel/internal/services"
)

var Module = fx.Provide(
	provideBillingRepo,
	provideBillingProvider,
	services.NewBillingReconciler,
	provideEventHandler,
	services.NewPaymentService,
)

func provideBillingRepo(db *gorm.DB) repositories.BillingRepository {
	return repositories.NewBillingRepository(db)
}

func provideBillingProvider(cfg *config.Config) services.BillingProvider {
	if !cfg.Stripe.Configured() {
		log.Warn().Msg("Stripe credentials missing, billing endpoints will report billing not configured")
	}
	return services.NewStripeGateway(cfg)
}

func provideEventHandler(r *services.BillingReconciler) services.BillingEventHandler {
	return r
}
