package services

import (
	"context"
	"fmt"
	"strings"

	"finmodel/internal/models/db_models"
	"finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
	mem "finmodel/pkg/memcache"
	"finmodel/pkg/utils"
)

// PlanServiceInterface is the plan catalog. Plans only change on reseed, so
// lookups are cached for the life of the process.
type PlanServiceInterface interface {
	Lookup(ctx context.Context, name string) (*db_models.Plan, error)
	GetPlans(ctx context.Context) ([]response_models.SubscriptionPlan, error)
}

func NewPlanService(planRepo repositories.IPlanRepository, cache mem.Store[db_models.Plan]) PlanServiceInterface {
	return &PlanService{
		planRepo: planRepo,
		cache:    cache,
	}
}

type PlanService struct {
	planRepo repositories.IPlanRepository
	cache    mem.Store[db_models.Plan]
}

func (p *PlanService) Lookup(ctx context.Context, name string) (*db_models.Plan, error) {
	key := strings.ToLower(name)
	if plan, ok := p.cache.Get(key); ok {
		return &plan, nil
	}

	plan, err := p.planRepo.GetPlanByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: load plan %q: %v", utils.ErrDatabaseError, name, err)
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: %q", utils.ErrPlanNotFound, name)
	}

	p.cache.Set(key, *plan, 0)
	return plan, nil
}

func (p *PlanService) GetPlans(ctx context.Context) ([]response_models.SubscriptionPlan, error) {
	plans, err := p.planRepo.GetAllPlans(ctx)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	result := make([]response_models.SubscriptionPlan, 0, len(plans))
	for _, plan := range plans {
		p.cache.Set(strings.ToLower(plan.Name), plan, 0)
		result = append(result, response_models.SubscriptionPlan{
			ID:                   plan.ID,
			Name:                 plan.Name,
			MaxModels:            plan.MaxModels,
			IncludedSeats:        plan.IncludedSeats,
			HasExport:            plan.HasExport,
			HasAdvancedAnalytics: plan.HasAdvancedAnalytics,
			HasAPIAccess:         plan.HasAPIAccess,
			AllowsViewSharing:    plan.AllowsViewSharing,
		})
	}

	return result, nil
}
