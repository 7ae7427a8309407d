package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbm "finmodel/internal/models/db_models"
	rm "finmodel/internal/models/response_models"
	"finmodel/pkg/utils"
)

func TestCanCreateModelAtLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newOwnerCompany(t, dbm.PlanFoundersChoice)
	env.setSubscription(t, owner.company.ID, map[string]interface{}{"models_used": 5})

	v, err := env.entitlements.CanCreateModel(ctx, owner.company.ID)
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, rm.ReasonModelLimitReached, v.Reason)
	assert.Equal(t, 5, v.Used)
	assert.Equal(t, 5, v.Limit)
	assert.Equal(t, 0, v.Remaining)
	assert.Contains(t, v.Message, "Upgrade to create more")
}

func TestCanCreateModelTopTierHasNoUpgradeHint(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newOwnerCompany(t, dbm.PlanGrowthEngine)
	env.setSubscription(t, owner.company.ID, map[string]interface{}{"models_used": 10})

	v, err := env.entitlements.CanCreateModel(context.Background(), owner.company.ID)
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.NotContains(t, v.Message, "Upgrade")
}

func TestCanCreateModelUnderLimit(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newOwnerCompany(t, dbm.PlanFoundersChoice)
	env.setSubscription(t, owner.company.ID, map[string]interface{}{"models_used": 3})

	v, err := env.entitlements.CanCreateModel(context.Background(), owner.company.ID)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, 2, v.Remaining)
}

func TestCanCreateModelWithoutSubscription(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newOwnerCompany(t, dbm.PlanFree)
	require.NoError(t, env.db.Where("company_id = ?", owner.company.ID).Delete(&dbm.Subscription{}).Error)

	v, err := env.entitlements.CanCreateModel(context.Background(), owner.company.ID)
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, rm.ReasonNoActiveSubscription, v.Reason)
}

func TestFreePlanInvite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newOwnerCompany(t, dbm.PlanFree)
	file := env.newFile(t, owner, "Forecast")

	edit, err := env.entitlements.CanInvite(ctx, file.ID, owner.user.ID, dbm.PermissionEdit, "guest@example.com")
	require.NoError(t, err)
	assert.False(t, edit.Allowed)
	assert.Equal(t, rm.ReasonFreePlanViewOnly, edit.Reason)

	view, err := env.entitlements.CanInvite(ctx, file.ID, owner.user.ID, dbm.PermissionView, "guest@example.com")
	require.NoError(t, err)
	assert.True(t, view.Allowed)
	assert.False(t, view.SeatNeeded)
}

func TestTrialExpiryTakesPrecedence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newOwnerCompanyWith(t, &dbm.Subscription{
		PlanName:     dbm.PlanGrowthEngine,
		Status:       dbm.SubStatusTrialing,
		TrialEndDate: utils.UnixPtr(time.Now().Add(-time.Hour)),
	})
	file := env.newFile(t, owner, "Plan")

	create, err := env.entitlements.CanCreateModel(ctx, owner.company.ID)
	require.NoError(t, err)
	assert.Equal(t, rm.ReasonTrialExpired, create.Reason)

	invite, err := env.entitlements.CanInvite(ctx, file.ID, owner.user.ID, dbm.PermissionView, "guest@example.com")
	require.NoError(t, err)
	assert.False(t, invite.Allowed)
	assert.Equal(t, rm.ReasonTrialExpired, invite.Reason)

	eligibility, err := env.entitlements.CheckInviteEligibility(ctx, owner.company.ID)
	require.NoError(t, err)
	assert.Equal(t, rm.ReasonTrialExpired, eligibility.Reason)

	limits, err := env.entitlements.CompanyLimits(ctx, owner.company.ID)
	require.NoError(t, err)
	assert.False(t, limits.CanCreateModel)
	assert.False(t, limits.CanInviteUsers)
	assert.False(t, limits.CanShareView)
}

func TestActiveTrialIsAllowed(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newOwnerCompanyWith(t, &dbm.Subscription{
		PlanName:     dbm.PlanFoundersChoice,
		Status:       dbm.SubStatusTrialing,
		TrialEndDate: utils.UnixPtr(time.Now().Add(48 * time.Hour)),
	})

	v, err := env.entitlements.CanCreateModel(context.Background(), owner.company.ID)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}

func TestCanInviteGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newOwnerCompany(t, dbm.PlanFoundersChoice)
	file := env.newFile(t, owner, "Budget")
	editor := env.addMember(t, owner.company.ID, "editor@example.com", dbm.RoleEditor)

	t.Run("unknown file", func(t *testing.T) {
		v, err := env.entitlements.CanInvite(ctx, owner.company.ID, owner.user.ID, dbm.PermissionView, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, rm.ReasonFileNotFound, v.Reason)
	})

	t.Run("non owner", func(t *testing.T) {
		v, err := env.entitlements.CanInvite(ctx, file.ID, editor.ID, dbm.PermissionView, "a@example.com")
		require.NoError(t, err)
		assert.Equal(t, rm.ReasonNotOwner, v.Reason)
		assert.Equal(t, string(dbm.RoleEditor), v.Role)
	})

	t.Run("existing editor needs no seat", func(t *testing.T) {
		env.setSubscription(t, owner.company.ID, map[string]interface{}{"seats_used": 2})
		v, err := env.entitlements.CanInvite(ctx, file.ID, owner.user.ID, dbm.PermissionEdit, "editor@example.com")
		require.NoError(t, err)
		assert.True(t, v.Allowed)
		assert.False(t, v.SeatNeeded)
	})

	t.Run("new editor at cap", func(t *testing.T) {
		v, err := env.entitlements.CanInvite(ctx, file.ID, owner.user.ID, dbm.PermissionEdit, "new@example.com")
		require.NoError(t, err)
		assert.False(t, v.Allowed)
		assert.Equal(t, rm.ReasonTeamLimitReached, v.Reason)
		assert.Contains(t, v.Message, "Upgrade your plan")
	})
}

func TestCompanyLimits(t *testing.T) {
	env := newTestEnv(t)
	owner := env.newOwnerCompany(t, dbm.PlanGrowthEngine)
	env.setSubscription(t, owner.company.ID, map[string]interface{}{"models_used": 4, "seats_used": 3})

	limits, err := env.entitlements.CompanyLimits(context.Background(), owner.company.ID)
	require.NoError(t, err)
	assert.Equal(t, &rm.CompanyLimits{
		Plan:           dbm.PlanGrowthEngine,
		MaxModels:      10,
		IncludedSeats:  5,
		ModelsCreated:  4,
		SeatsUsed:      3,
		CanCreateModel: true,
		CanInviteUsers: true,
		CanShareView:   true,
	}, limits)
}

func TestCanRestoreModelNeedsPaidActivePlan(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	free := env.newOwnerCompany(t, dbm.PlanFree)
	v, err := env.entitlements.CanRestoreModel(ctx, free.company.ID)
	require.NoError(t, err)
	assert.Equal(t, rm.ReasonNoActiveSubscription, v.Reason)

	pastDue := env.newOwnerCompanyWith(t, &dbm.Subscription{PlanName: dbm.PlanFoundersChoice, Status: dbm.SubStatusPastDue})
	v, err = env.entitlements.CanRestoreModel(ctx, pastDue.company.ID)
	require.NoError(t, err)
	assert.False(t, v.Allowed)

	paid := env.newOwnerCompany(t, dbm.PlanFoundersChoice)
	v, err = env.entitlements.CanRestoreModel(ctx, paid.company.ID)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
}
