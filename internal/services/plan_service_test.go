package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbm "finmodel/internal/models/db_models"
	"finmodel/pkg/utils"
)

func TestPlanLookup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	plan, err := env.plans.Lookup(ctx, "growth engine")
	require.NoError(t, err)
	assert.Equal(t, dbm.PlanGrowthEngine, plan.Name)
	assert.Equal(t, 10, plan.MaxModels)
	assert.Equal(t, 5, plan.IncludedSeats)

	_, err = env.plans.Lookup(ctx, "Platinum")
	assert.ErrorIs(t, err, utils.ErrPlanNotFound)

	plans, err := env.plans.GetPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, dbm.PlanFree, plans[0].Name)
	assert.Equal(t, dbm.PlanGrowthEngine, plans[2].Name)
}
