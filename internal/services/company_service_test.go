package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbm "finmodel/internal/models/db_models"
	rm "finmodel/internal/models/response_models"
	"finmodel/pkg/utils"
)

func TestPromoteViewerAtSeatCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newOwnerCompany(t, dbm.PlanFoundersChoice)
	companies := env.companies()

	first := env.addMember(t, owner.company.ID, "first@example.com", dbm.RoleViewer)
	second := env.addMember(t, owner.company.ID, "second@example.com", dbm.RoleViewer)

	res, err := companies.UpdateMemberRole(ctx, owner.user.ID, owner.company.ID, first.ID, dbm.RoleEditor)
	require.NoError(t, err)
	require.Nil(t, res.Verdict)
	assert.True(t, res.SeatConsumed)
	assert.Equal(t, 0, res.SeatsRemaining)

	res, err = companies.UpdateMemberRole(ctx, owner.user.ID, owner.company.ID, second.ID, dbm.RoleEditor)
	require.NoError(t, err)
	require.NotNil(t, res.Verdict)
	assert.Equal(t, rm.ReasonTeamLimitReached, res.Verdict.Reason)

	role, ok, err := env.memberRepo.GetRole(ctx, owner.company.ID, second.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dbm.RoleViewer, role)
	assert.Equal(t, 2, env.subscription(t, owner.company.ID).SeatsUsed)
}

func TestUpdateMemberRoleGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newOwnerCompany(t, dbm.PlanGrowthEngine)
	editor := env.addMember(t, owner.company.ID, "editor@example.com", dbm.RoleEditor)
	companies := env.companies()

	_, err := companies.UpdateMemberRole(ctx, owner.user.ID, owner.company.ID, editor.ID, dbm.RoleOwner)
	assert.ErrorIs(t, err, utils.ErrInvalidRole)

	_, err = companies.UpdateMemberRole(ctx, editor.ID, owner.company.ID, owner.user.ID, dbm.RoleViewer)
	assert.ErrorIs(t, err, utils.ErrNotOwner)

	_, err = companies.UpdateMemberRole(ctx, owner.user.ID, owner.company.ID, owner.user.ID, dbm.RoleViewer)
	assert.ErrorIs(t, err, utils.ErrSelfRoleChange)

	_, err = companies.UpdateMemberRole(ctx, owner.user.ID, owner.company.ID, editor.ID, dbm.RoleEditor)
	assert.ErrorIs(t, err, utils.ErrRoleUnchanged)
}

func TestRemoveMemberReleasesSeatAndShares(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newOwnerCompany(t, dbm.PlanGrowthEngine)
	file := env.newFile(t, owner, "Model")
	shares := env.shares()
	companies := env.companies()

	member := env.addMember(t, owner.company.ID, "member@example.com", dbm.RoleViewer)
	_, err := shares.SendInvitation(ctx, owner.user.ID, file.ID, "member@example.com", dbm.PermissionEdit)
	require.NoError(t, err)

	// the edit share promotes the viewer
	role, _, err := env.memberRepo.GetRole(ctx, owner.company.ID, member.ID)
	require.NoError(t, err)
	assert.Equal(t, dbm.RoleEditor, role)
	env.assertSeats(t, owner.company.ID, 2)

	res, err := companies.RemoveMember(ctx, owner.user.ID, owner.company.ID, member.ID)
	require.NoError(t, err)
	assert.True(t, res.SeatReleased)
	assert.Equal(t, int64(1), res.FilesRemoved)
	env.assertSeats(t, owner.company.ID, 1)

	_, ok, err := env.memberRepo.GetRole(ctx, owner.company.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = companies.RemoveMember(ctx, owner.user.ID, owner.company.ID, member.ID)
	assert.ErrorIs(t, err, utils.ErrMemberNotFound)

	_, err = companies.RemoveMember(ctx, owner.user.ID, owner.company.ID, owner.user.ID)
	assert.ErrorIs(t, err, utils.ErrSelfRemoval)
}

func TestListMembers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.newOwnerCompany(t, dbm.PlanGrowthEngine)
	env.addMember(t, owner.company.ID, "viewer@example.com", dbm.RoleViewer)
	companies := env.companies()

	members, err := companies.ListMembers(ctx, owner.user.ID, owner.company.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	roles := map[string]string{}
	for _, m := range members {
		roles[m.Email] = m.Role
	}
	assert.Equal(t, string(dbm.RoleOwner), roles[owner.user.Email])
	assert.Equal(t, string(dbm.RoleViewer), roles["viewer@example.com"])

	outsider := env.newUser(t, "outsider@example.com")
	_, err = companies.ListMembers(ctx, outsider.ID, owner.company.ID)
	assert.ErrorIs(t, err, utils.ErrMemberNotFound)
}
