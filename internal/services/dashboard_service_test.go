package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbm "finmodel/internal/models/db_models"
	resp "finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
)

func TestBuildDashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.newOwnerCompany(t, dbm.PlanFree)
	growth := env.newOwnerCompany(t, dbm.PlanGrowthEngine)
	env.setSubscription(t, growth.company.ID, map[string]interface{}{"seats_used": 4, "models_used": 3})
	env.newOwnerCompanyWith(t, &dbm.Subscription{PlanName: dbm.PlanFoundersChoice, Status: dbm.SubStatusPastDue, SeatsUsed: 2})
	env.newOwnerCompanyWith(t, &dbm.Subscription{PlanName: dbm.PlanFoundersChoice, Status: dbm.SubStatusCanceled})

	_, err := env.billingRepo.CreateCustomOrder(ctx, &dbm.CustomOrder{
		StripePaymentIntentID: "pi_1",
		ProductType:           "pitch_deck",
		Amount:                decimal.RequireFromString("49.50"),
		Currency:              "usd",
		Status:                dbm.OrderStatusCompleted,
		CustomerEmail:         "buyer@example.com",
	})
	require.NoError(t, err)
	_, err = env.billingRepo.CreateAccountCredit(ctx, &dbm.AccountCredit{
		InvoiceID: "in_1",
		Amount:    decimal.NewFromInt(20),
		Currency:  "usd",
	})
	require.NoError(t, err)

	for i, outcome := range []string{OutcomeCanceled, OutcomeCanceled, OutcomeIgnored} {
		ev := &dbm.WebhookEvent{StripeEventID: "evt_" + uuid.NewString(), Type: "test"}
		_, err := env.billingRepo.ReserveEvent(ctx, ev)
		require.NoError(t, err, "event %d", i)
		require.NoError(t, env.billingRepo.MarkProcessed(ctx, ev.StripeEventID, outcome))
	}

	svc := NewDashboardService(repositories.NewDashboardRepository(env.db))
	report, err := svc.BuildDashboard(ctx, resp.TimeRange{
		Start: time.Now().Add(-time.Hour),
		End:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4), report.KPIs.TotalCompanies)
	assert.Equal(t, int64(4), report.KPIs.NewCompanies)
	assert.Equal(t, int64(2), report.KPIs.ActiveSubscriptions)
	assert.Equal(t, int64(1), report.KPIs.PastDueSubscriptions)
	assert.Equal(t, int64(1), report.KPIs.CanceledSubscriptions)
	assert.Equal(t, int64(2), report.KPIs.PaidSubscriptions)

	// free 1/1, growth 4/5, founders 2/2
	assert.InDelta(t, 7.0*100/8.0, report.KPIs.SeatUtilizationPct, 0.001)

	require.Len(t, report.PlanMix.Items, 3)
	byPlan := map[string]resp.PlanMixItem{}
	for _, item := range report.PlanMix.Items {
		byPlan[item.PlanName] = item
	}
	assert.Equal(t, int64(5), byPlan[dbm.PlanGrowthEngine].SeatsIncluded)
	assert.Equal(t, int64(3), byPlan[dbm.PlanGrowthEngine].ModelsUsed)
	assert.InDelta(t, 80.0, byPlan[dbm.PlanGrowthEngine].SeatUtilizationPct, 0.001)
	assert.Equal(t, int64(1), byPlan[dbm.PlanFoundersChoice].Count)

	require.Len(t, report.Revenue.Orders, 1)
	assert.Equal(t, "USD", report.Revenue.Orders[0].Currency)
	assert.True(t, decimal.RequireFromString("49.5").Equal(report.Revenue.Orders[0].Total))
	require.Len(t, report.Revenue.Credits, 1)
	assert.True(t, decimal.NewFromInt(20).Equal(report.Revenue.Credits[0].Total))

	require.Len(t, report.Webhooks, 2)
	assert.Equal(t, resp.WebhookOutcome{Outcome: OutcomeCanceled, Count: 2}, report.Webhooks[0])

	require.Len(t, report.RecentOrders, 1)
	assert.Equal(t, "pitch_deck", report.RecentOrders[0].ProductType)
}

func TestDashboardRangeDefaults(t *testing.T) {
	svc := &dashboardService{now: func() time.Time { return time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC) }}

	rng := svc.normalizeRange(resp.TimeRange{})
	assert.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), rng.Start)

	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rng = svc.normalizeRange(resp.TimeRange{Start: end.AddDate(0, 1, 0), End: end})
	assert.True(t, rng.Start.Before(rng.End))
}
