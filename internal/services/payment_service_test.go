package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbm "finmodel/internal/models/db_models"
	"finmodel/pkg/utils"
)

func TestCreateCheckouts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payments := NewPaymentService(env.subRepo, env.memberRepo, env.plans, env.provider, env.cfg)

	res, err := payments.CreateSubscriptionCheckout(ctx, "buyer@example.com", "growth_engine")
	require.NoError(t, err)
	assert.Equal(t, "cs_test", res.SessionID)
	assert.Contains(t, res.URL, "price_growth")

	_, err = payments.CreateSubscriptionCheckout(ctx, "buyer@example.com", "platinum")
	assert.ErrorIs(t, err, utils.ErrPlanNotFound)

	res, err = payments.CreateOneOffCheckout(ctx, "buyer@example.com", "pitch_deck")
	require.NoError(t, err)
	assert.Contains(t, res.URL, "price_deck")

	_, err = payments.CreateOneOffCheckout(ctx, "buyer@example.com", "forecast")
	assert.ErrorIs(t, err, utils.ErrBillingNotConfigured)

	_, err = payments.CreateOneOffCheckout(ctx, "buyer@example.com", "tshirt")
	assert.ErrorIs(t, err, utils.ErrInvalidProductType)
}

func TestCreatePortalSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payments := NewPaymentService(env.subRepo, env.memberRepo, env.plans, env.provider, env.cfg)

	free := env.newOwnerCompany(t, dbm.PlanFree)
	_, err := payments.CreatePortalSession(ctx, free.user.ID, free.company.ID)
	assert.ErrorIs(t, err, utils.ErrNoBillingCustomer)

	paid := env.newOwnerCompanyWith(t, &dbm.Subscription{
		PlanName:         dbm.PlanFoundersChoice,
		Status:           dbm.SubStatusActive,
		StripeCustomerID: strPtr("cus_paid"),
	})
	res, err := payments.CreatePortalSession(ctx, paid.user.ID, paid.company.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.com/p/cus_paid", res.URL)

	editor := env.addMember(t, paid.company.ID, "editor@example.com", dbm.RoleEditor)
	_, err = payments.CreatePortalSession(ctx, editor.ID, paid.company.ID)
	assert.ErrorIs(t, err, utils.ErrNotOwner)
}

func TestSubscriptionStatusGraceDays(t *testing.T) {
	env := newTestEnv(t)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	pe, err := dbm.EncodePaymentError(&dbm.PaymentError{FailedAt: now.AddDate(0, 0, -3), Reason: "card_declined"})
	require.NoError(t, err)
	owner := env.newOwnerCompanyWith(t, &dbm.Subscription{
		PlanName:         dbm.PlanGrowthEngine,
		Status:           dbm.SubStatusPastDue,
		ModelsUsed:       2,
		LastPaymentError: pe,
	})

	svc := NewPaymentService(env.subRepo, env.memberRepo, env.plans, env.provider, env.cfg).(*paymentService)
	svc.now = func() time.Time { return now }

	status, err := svc.SubscriptionStatus(context.Background(), owner.company.ID)
	require.NoError(t, err)
	assert.Equal(t, dbm.PlanGrowthEngine, status.PlanName)
	assert.Equal(t, string(dbm.SubStatusPastDue), status.Status)
	assert.Equal(t, 8, status.Models.Remaining)
	assert.Equal(t, 4, status.Seats.Remaining)
	assert.True(t, status.Features.EditSharing)
	require.NotNil(t, status.GraceDaysRemaining)
	assert.Equal(t, 4, *status.GraceDaysRemaining)
	assert.Nil(t, status.TrialDaysRemaining)
}
