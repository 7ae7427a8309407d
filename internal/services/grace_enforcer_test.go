package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbm "finmodel/internal/models/db_models"
)

func TestGraceEnforcerCancelsExpiredPastDue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	pastDue := func(failedAt time.Time) *ownerFixture {
		pe, err := dbm.EncodePaymentError(&dbm.PaymentError{FailedAt: failedAt, Reason: "card_declined"})
		require.NoError(t, err)
		return env.newOwnerCompanyWith(t, &dbm.Subscription{
			PlanName:         dbm.PlanFoundersChoice,
			Status:           dbm.SubStatusPastDue,
			LastPaymentError: pe,
		})
	}

	expired := pastDue(now.AddDate(0, 0, -10))
	fresh := pastDue(now.AddDate(0, 0, -2))
	active := env.newOwnerCompany(t, dbm.PlanFoundersChoice)

	g := NewGraceEnforcer(env.db, env.subRepo, env.cfg)
	g.now = func() time.Time { return now }

	n, err := g.Enforce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, dbm.SubStatusCanceled, env.subscription(t, expired.company.ID).Status)
	assert.Equal(t, dbm.SubStatusPastDue, env.subscription(t, fresh.company.ID).Status)
	assert.Equal(t, dbm.SubStatusActive, env.subscription(t, active.company.ID).Status)

	n, err = g.Enforce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGraceEnforcerRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	g := NewGraceEnforcer(env.db, env.subRepo, env.cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enforcer did not stop")
	}
}
