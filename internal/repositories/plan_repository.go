package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"finmodel/internal/infra"
	"finmodel/internal/models/db_models"
)

// IPlanRepository reads the seeded plan catalog. Subscriptions reference
// plans by name, so lookups match names case-insensitively.
type IPlanRepository interface {
	GetPlanByName(ctx context.Context, name string) (*db_models.Plan, error)
	GetAllPlans(ctx context.Context) ([]db_models.Plan, error)
}

type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) IPlanRepository {
	return &PlanRepository{db: db}
}

func (p PlanRepository) GetPlanByName(ctx context.Context, name string) (*db_models.Plan, error) {
	var plan db_models.Plan
	err := infra.Conn(ctx, p.db).
		Where("LOWER(name) = LOWER(?)", name).
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetAllPlans lists the catalog from the smallest tier up.
func (p PlanRepository) GetAllPlans(ctx context.Context) ([]db_models.Plan, error) {
	var plans []db_models.Plan
	err := infra.Conn(ctx, p.db).
		Order("max_models ASC").
		Order("included_seats ASC").
		Find(&plans).Error
	return plans, err
}
