package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbm "finmodel/internal/models/db_models"
)

func billingEvent(t *testing.T, id, typ string, obj map[string]any) BillingEvent {
	t.Helper()
	raw, err := json.Marshal(obj)
	require.NoError(t, err)
	return BillingEvent{ID: id, Type: typ, Data: raw}
}

func checkoutEvent(t *testing.T, id, email, subID, plan string) BillingEvent {
	return billingEvent(t, id, EventCheckoutCompleted, map[string]any{
		"id":               "cs_" + id,
		"mode":             "subscription",
		"customer":         "cus_" + subID,
		"subscription":     subID,
		"customer_details": map[string]any{"email": email, "name": "Buyer"},
		"metadata":         map[string]string{"subscription_type": plan},
	})
}

func (e *testEnv) providerSub(id, status string) {
	now := time.Now()
	e.provider.subs[id] = &ProviderSubscription{
		ID:                 id,
		CustomerID:         "cus_" + id,
		Status:             status,
		CurrentPeriodStart: now.Unix(),
		CurrentPeriodEnd:   now.AddDate(0, 1, 0).Unix(),
		PriceID:            "price_" + id,
		Interval:           "month",
		Amount:             decimal.RequireFromString("49.00"),
		Currency:           "usd",
	}
}

func TestCheckoutNewAccountIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.reconciler()
	env.providerSub("sub_1", "active")

	ev := checkoutEvent(t, "evt_1", "Buyer@Example.com", "sub_1", dbm.PlanFoundersChoice)

	first, err := r.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNewAccount, first.Outcome)
	assert.False(t, first.Duplicate)

	user, err := env.accountRepo.FindByEmail(ctx, "buyer@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	require.NotNil(t, user.PasswordSetupToken)
	require.NotNil(t, user.DefaultCompanyID)
	assert.Equal(t, "cus_sub_1", *user.StripeCustomerID)

	before := env.subscription(t, *user.DefaultCompanyID)
	assert.Equal(t, dbm.PlanFoundersChoice, before.PlanName)
	assert.Equal(t, dbm.SubStatusActive, before.Status)
	assert.Equal(t, 1, before.SeatsUsed)
	assert.Equal(t, "sub_1", *before.StripeSubscriptionID)
	assert.Equal(t, "month", *before.BillingCycle)

	second, err := r.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)

	after := env.subscription(t, *user.DefaultCompanyID)
	assert.Equal(t, before.SeatsUsed, after.SeatsUsed)
	assert.Equal(t, before.ModelsUsed, after.ModelsUsed)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.PlanName, after.PlanName)

	env.dispatcher.Wait()
	env.notifier.AssertNumberOfCalls(t, "Notify", 1)
	env.notifier.AssertCalled(t, "Notify", TemplateSubscriptionNewAccount, "buyer@example.com")

	processed, err := env.billingRepo.IsProcessed(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestCheckoutForExistingCompanies(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.reconciler()

	t.Run("free plan upgrades in place", func(t *testing.T) {
		owner := env.newOwnerCompany(t, dbm.PlanFree)
		env.providerSub("sub_free_up", "active")

		res, err := r.HandleEvent(ctx, checkoutEvent(t, "evt_free_up", owner.user.Email, "sub_free_up", dbm.PlanGrowthEngine))
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpgradedFree, res.Outcome)

		sub := env.subscription(t, owner.company.ID)
		assert.Equal(t, dbm.PlanGrowthEngine, sub.PlanName)
		assert.Equal(t, "sub_free_up", *sub.StripeSubscriptionID)
		assert.Equal(t, 1, sub.SeatsUsed)
	})

	t.Run("founders to growth cancels the old subscription", func(t *testing.T) {
		owner := env.newOwnerCompanyWith(t, &dbm.Subscription{
			PlanName:             dbm.PlanFoundersChoice,
			Status:               dbm.SubStatusActive,
			StripeSubscriptionID: strPtr("sub_old"),
		})
		env.providerSub("sub_old", "active")
		env.providerSub("sub_new", "active")

		res, err := r.HandleEvent(ctx, checkoutEvent(t, "evt_up", owner.user.Email, "sub_new", dbm.PlanGrowthEngine))
		require.NoError(t, err)
		assert.Equal(t, OutcomeUpgradedPlan, res.Outcome)
		assert.Contains(t, env.provider.canceledIDs(), "sub_old")

		sub := env.subscription(t, owner.company.ID)
		assert.Equal(t, dbm.PlanGrowthEngine, sub.PlanName)
		assert.Equal(t, "sub_new", *sub.StripeSubscriptionID)
	})

	t.Run("second paid subscription is canceled", func(t *testing.T) {
		owner := env.newOwnerCompanyWith(t, &dbm.Subscription{
			PlanName:             dbm.PlanGrowthEngine,
			Status:               dbm.SubStatusActive,
			StripeSubscriptionID: strPtr("sub_keep"),
		})
		env.providerSub("sub_dup", "active")

		res, err := r.HandleEvent(ctx, checkoutEvent(t, "evt_dup", owner.user.Email, "sub_dup", dbm.PlanFoundersChoice))
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicateCanceled, res.Outcome)
		assert.Contains(t, env.provider.canceledIDs(), "sub_dup")
		assert.Equal(t, "sub_keep", *env.subscription(t, owner.company.ID).StripeSubscriptionID)
	})

	t.Run("canceled subscription reactivates", func(t *testing.T) {
		owner := env.newOwnerCompanyWith(t, &dbm.Subscription{
			PlanName:             dbm.PlanFoundersChoice,
			Status:               dbm.SubStatusCanceled,
			StripeSubscriptionID: strPtr("sub_gone"),
		})
		env.providerSub("sub_back", "active")

		res, err := r.HandleEvent(ctx, checkoutEvent(t, "evt_back", owner.user.Email, "sub_back", dbm.PlanFoundersChoice))
		require.NoError(t, err)
		assert.Equal(t, OutcomeReactivated, res.Outcome)
		assert.Equal(t, dbm.SubStatusActive, env.subscription(t, owner.company.ID).Status)
	})

	t.Run("unknown plan is skipped", func(t *testing.T) {
		res, err := r.HandleEvent(ctx, checkoutEvent(t, "evt_bad_plan", "nobody@example.com", "sub_x", "Platinum"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeUnknownPlan, res.Outcome)
	})
}

func TestOneOffCheckoutRecordsOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.reconciler()

	ev := billingEvent(t, "evt_order", EventCheckoutCompleted, map[string]any{
		"id":             "cs_order",
		"mode":           "payment",
		"payment_intent": "pi_1",
		"customer_email": "client@example.com",
		"amount_total":   150000,
		"currency":       "usd",
		"metadata":       map[string]string{"product_type": "pitch_deck"},
	})

	res, err := r.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOneOffRecorded, res.Outcome)

	var order dbm.CustomOrder
	require.NoError(t, env.db.Where("stripe_payment_intent_id = ?", "pi_1").First(&order).Error)
	assert.Equal(t, "pitch_deck", order.ProductType)
	assert.True(t, decimal.RequireFromString("1500").Equal(order.Amount))

	env.dispatcher.Wait()
	env.notifier.AssertCalled(t, "Notify", TemplateOneOffOrder, "client@example.com")
}

func TestDeletedUnknownSubscriptionBecomesCredit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.reconciler()
	env.provider.invoices["in_1"] = &ProviderInvoice{
		ID:        "in_1",
		AmountDue: decimal.RequireFromString("99.00"),
		Currency:  "usd",
		Email:     "payer@example.com",
	}

	ev := billingEvent(t, "evt_del", EventSubscriptionDeleted, map[string]any{
		"id":             "sub_orphan",
		"customer":       "cus_orphan",
		"latest_invoice": "in_1",
	})

	res, err := r.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCredited, res.Outcome)

	res, err = r.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	res, err = r.HandleEvent(ctx, billingEvent(t, "evt_del_again", EventSubscriptionDeleted, map[string]any{
		"id":             "sub_orphan",
		"latest_invoice": "in_1",
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreditExists, res.Outcome)

	count, err := env.billingRepo.CountCreditsByInvoice(ctx, "in_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	var credit dbm.AccountCredit
	require.NoError(t, env.db.Where("invoice_id = ?", "in_1").First(&credit).Error)
	assert.True(t, decimal.RequireFromString("99").Equal(credit.Amount))
	assert.Equal(t, "payer@example.com", credit.Email)

	env.dispatcher.Wait()
	env.notifier.AssertNumberOfCalls(t, "Notify", 1)
	env.notifier.AssertCalled(t, "Notify", TemplatePaymentConvertedToCredit, "payer@example.com")
}

func TestSubscriptionDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.reconciler()
	owner := env.newOwnerCompanyWith(t, &dbm.Subscription{
		PlanName:             dbm.PlanFoundersChoice,
		Status:               dbm.SubStatusActive,
		StripeSubscriptionID: strPtr("sub_end"),
	})

	res, err := r.HandleEvent(ctx, billingEvent(t, "evt_upgraded", EventSubscriptionDeleted, map[string]any{
		"id":                   "sub_end",
		"cancellation_details": map[string]string{"comment": "upgraded"},
	}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpgradeArtifact, res.Outcome)
	assert.Equal(t, dbm.SubStatusActive, env.subscription(t, owner.company.ID).Status)

	res, err = r.HandleEvent(ctx, billingEvent(t, "evt_end", EventSubscriptionDeleted, map[string]any{"id": "sub_end"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCanceled, res.Outcome)
	assert.Equal(t, dbm.SubStatusCanceled, env.subscription(t, owner.company.ID).Status)

	res, err = r.HandleEvent(ctx, billingEvent(t, "evt_end_2", EventSubscriptionDeleted, map[string]any{"id": "sub_end"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCanceled, res.Outcome)
}

func TestSubscriptionUpdated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.reconciler()
	periodEnd := time.Now().AddDate(0, 1, 0).Unix()

	owner := env.newOwnerCompanyWith(t, &dbm.Subscription{
		PlanName:             dbm.PlanGrowthEngine,
		Status:               dbm.SubStatusActive,
		StripeSubscriptionID: strPtr("sub_upd"),
		BillingEmail:         strPtr("billing@example.com"),
		RenewalDate:          &periodEnd,
	})
	update := func(id string, cancelAtPeriodEnd bool, end int64) BillingEvent {
		return billingEvent(t, id, EventSubscriptionUpdated, map[string]any{
			"id":                   "sub_upd",
			"customer":             "cus_upd",
			"cancel_at_period_end": cancelAtPeriodEnd,
			"items": map[string]any{"data": []map[string]any{{
				"current_period_start": end - 30*24*3600,
				"current_period_end":   end,
			}}},
		})
	}

	res, err := r.HandleEvent(ctx, update("evt_u1", true, periodEnd))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelScheduled, res.Outcome)
	assert.True(t, env.subscription(t, owner.company.ID).CancelAtPeriodEnd)

	res, err = r.HandleEvent(ctx, update("evt_u2", false, periodEnd))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelDiscarded, res.Outcome)
	assert.False(t, env.subscription(t, owner.company.ID).CancelAtPeriodEnd)

	res, err = r.HandleEvent(ctx, update("evt_u3", false, periodEnd))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoChange, res.Outcome)

	pe, err := dbm.EncodePaymentError(&dbm.PaymentError{FailedAt: time.Now(), Reason: "card_declined"})
	require.NoError(t, err)
	env.setSubscription(t, owner.company.ID, map[string]interface{}{"status": dbm.SubStatusPastDue, "last_payment_error": pe})

	next := time.Now().AddDate(0, 2, 0).Unix()
	res, err = r.HandleEvent(ctx, update("evt_u4", false, next))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRenewed, res.Outcome)

	sub := env.subscription(t, owner.company.ID)
	assert.Equal(t, dbm.SubStatusActive, sub.Status)
	assert.Equal(t, next, *sub.RenewalDate)
	got, err := sub.PaymentError()
	require.NoError(t, err)
	assert.Nil(t, got)

	env.dispatcher.Wait()
	env.notifier.AssertCalled(t, "Notify", TemplateSubscriptionCancelled, "billing@example.com")
	env.notifier.AssertCalled(t, "Notify", TemplateDiscardCancelSubscription, "billing@example.com")

	res, err = r.HandleEvent(ctx, billingEvent(t, "evt_unknown", EventSubscriptionUpdated, map[string]any{"id": "sub_nope"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnknownSubscription, res.Outcome)
}

func TestPaymentFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	r := env.reconciler()
	owner := env.newOwnerCompanyWith(t, &dbm.Subscription{
		PlanName:             dbm.PlanFoundersChoice,
		Status:               dbm.SubStatusActive,
		StripeSubscriptionID: strPtr("sub_pay"),
		BillingEmail:         strPtr("billing@example.com"),
	})
	env.providerSub("sub_pay", "active")

	created := time.Now().Add(-2 * time.Hour).Unix()
	ev := billingEvent(t, "evt_fail", EventPaymentFailed, map[string]any{
		"id":             "in_fail",
		"created":        created,
		"attempt_count":  1,
		"payment_intent": "pi_fail",
		"parent": map[string]any{
			"subscription_details": map[string]string{"subscription": "sub_pay"},
		},
	})

	_, err := r.HandleEvent(ctx, ev)
	require.ErrorIs(t, err, ErrEventNotReady)
	processed, err := env.billingRepo.IsProcessed(ctx, "evt_fail")
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, dbm.SubStatusActive, env.subscription(t, owner.company.ID).Status)

	env.provider.subs["sub_pay"].Status = "past_due"

	res, err := r.HandleEvent(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomePaymentFailureRecorded, res.Outcome)

	sub := env.subscription(t, owner.company.ID)
	assert.Equal(t, dbm.SubStatusPastDue, sub.Status)
	pe, err := sub.PaymentError()
	require.NoError(t, err)
	require.NotNil(t, pe)
	assert.Equal(t, "card_declined", pe.Reason)
	assert.Equal(t, created, pe.FailedAt.Unix())
	assert.Equal(t, int64(1), pe.AttemptCount)

	env.dispatcher.Wait()
	env.notifier.AssertCalled(t, "Notify", TemplateSubscriptionPaymentFailed, "billing@example.com")
}

func TestPaymentFailedWithoutSubscription(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.reconciler().HandleEvent(context.Background(), billingEvent(t, "evt_no_sub", EventPaymentFailed, map[string]any{"id": "in_x"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoSubscriptionRef, res.Outcome)
}

func TestUnhandledEventIsIgnored(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.reconciler().HandleEvent(context.Background(), billingEvent(t, "evt_other", "customer.created", map[string]any{"id": "cus_1"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}
