package entitlement_fx

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"finmodel/internal/repositories"
	"finmodel/internal/services"
)

var Module = fx.Provide(
	provideSubscriptionRepo,
	provideProductRepo,
	provideShareRepo,
	provideSeatLedger,
	services.NewEntitlementService,
	provideEntitlementInterface,
)

func provideSubscriptionRepo(db *gorm.DB) repositories.SubscriptionRepository {
	return repositories.NewSubscriptionRepository(db)
}

func provideProductRepo(db *gorm.DB) repositories.ProductRepository {
	return repositories.NewProductRepository(db)
}

func provideShareRepo(db *gorm.DB) repositories.ShareRepository {
	return repositories.NewShareRepository(db)
}

func provideSeatLedger(
	db *gorm.DB,
	subRepo repositories.SubscriptionRepository,
	memberRepo repositories.MembershipRepository,
	shareRepo repositories.ShareRepository,
	plans services.PlanServiceInterface,
) services.SeatLedger {
	return services.NewSeatLedger(db, subRepo, memberRepo, shareRepo, plans)
}

func provideEntitlementInterface(e *services.EntitlementService) services.EntitlementServiceInterface {
	return e
}
