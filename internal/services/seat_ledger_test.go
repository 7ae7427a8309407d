package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finmodel/internal/infra"
	dbm "finmodel/internal/models/db_models"
)

func TestLockRequiresTransaction(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newOwnerCompany(t, dbm.PlanGrowthEngine)

	_, _, err := env.ledger.Lock(context.Background(), owner.company.ID)
	assert.ErrorIs(t, err, errLockOutsideTransaction)

	err = infra.RunInTransaction(context.Background(), env.db, func(ctx context.Context) error {
		sub, plan, err := env.ledger.Lock(ctx, owner.company.ID)
		require.NoError(t, err)
		assert.Equal(t, owner.company.ID, sub.CompanyID)
		assert.Equal(t, dbm.PlanGrowthEngine, plan.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestIncrementSeatsStopsAtCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newOwnerCompany(t, dbm.PlanGrowthEngine)
	cid := owner.company.ID

	t.Run("below cap", func(t *testing.T) {
		env.setSubscription(t, cid, map[string]interface{}{"seats_used": 4})
		ok, err := env.subRepo.IncrementSeats(ctx, cid, 5)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 5, env.subscription(t, cid).SeatsUsed)
	})

	t.Run("at cap", func(t *testing.T) {
		env.setSubscription(t, cid, map[string]interface{}{"seats_used": 5})
		ok, err := env.subRepo.IncrementSeats(ctx, cid, 5)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 5, env.subscription(t, cid).SeatsUsed)
	})

	t.Run("zero cap is uncapped", func(t *testing.T) {
		env.setSubscription(t, cid, map[string]interface{}{"seats_used": 50})
		ok, err := env.subRepo.IncrementSeats(ctx, cid, 0)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 51, env.subscription(t, cid).SeatsUsed)
	})
}
