package plan_fx

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"finmodel/internal/models/db_models"
	"finmodel/internal/repositories"
	"finmodel/internal/services"
	mem "finmodel/pkg/memcache"
)

var Module = fx.Provide(providePlanRepo, providePlanService)

func providePlanRepo(db *gorm.DB) repositories.IPlanRepository {
	return repositories.NewPlanRepository(db)
}

func providePlanService(planRepo repositories.IPlanRepository, cache mem.Store[db_models.Plan]) services.PlanServiceInterface {
	return services.NewPlanService(planRepo, cache)
}
