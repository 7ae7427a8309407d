package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"finmodel/internal/config"
	"finmodel/internal/infra"
	dbm "finmodel/internal/models/db_models"
	"finmodel/internal/repositories"
)

const graceCheckInterval = 1 * time.Hour

// GraceEnforcer periodically cancels subscriptions that stayed past_due
// longer than the configured grace period.
type GraceEnforcer struct {
	db        *gorm.DB
	subRepo   repositories.SubscriptionRepository
	graceDays int
	now       func() time.Time
}

func NewGraceEnforcer(db *gorm.DB, subRepo repositories.SubscriptionRepository, cfg *config.Config) *GraceEnforcer {
	return &GraceEnforcer{
		db:        db,
		subRepo:   subRepo,
		graceDays: cfg.Stripe.GracePeriodDays,
		now:       time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (g *GraceEnforcer) Run(ctx context.Context) {
	log.Info().Int("grace_days", g.graceDays).Msg("Grace period enforcer started")

	ticker := time.NewTicker(graceCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Grace period enforcer stopped")
			return
		case <-ticker.C:
			if _, err := g.Enforce(ctx); err != nil {
				log.Error().Err(err).Msg("Grace enforcer: pass failed")
			}
		}
	}
}

// Enforce runs a single pass and returns how many subscriptions were canceled.
func (g *GraceEnforcer) Enforce(ctx context.Context) (int, error) {
	subs, err := g.subRepo.ListByStatus(ctx, dbm.SubStatusPastDue)
	if err != nil {
		return 0, err
	}

	cutoff := g.now().UTC().Add(-time.Duration(g.graceDays) * 24 * time.Hour)
	canceled := 0

	for i := range subs {
		if ctx.Err() != nil {
			return canceled, ctx.Err()
		}
		if !g.expired(&subs[i], cutoff) {
			continue
		}

		done, err := g.cancel(ctx, &subs[i], cutoff)
		if err != nil {
			log.Error().Err(err).Str("company_id", subs[i].CompanyID.String()).Msg("Grace enforcer: failed to cancel subscription")
			continue
		}
		if done {
			canceled++
		}
	}
	return canceled, nil
}

func (g *GraceEnforcer) expired(sub *dbm.Subscription, cutoff time.Time) bool {
	pe, err := sub.PaymentError()
	if err != nil {
		log.Warn().Err(err).Str("company_id", sub.CompanyID.String()).Msg("Grace enforcer: unreadable payment error")
		return false
	}
	return pe != nil && pe.FailedAt.Before(cutoff)
}

// cancel re-reads the row under lock so a renewal that landed since the
// listing wins.
func (g *GraceEnforcer) cancel(ctx context.Context, listed *dbm.Subscription, cutoff time.Time) (bool, error) {
	done := false
	err := infra.RunInTransaction(ctx, g.db, func(ctx context.Context) error {
		sub, err := g.subRepo.LockByCompanyID(ctx, listed.CompanyID)
		if err != nil || sub == nil {
			return err
		}
		if sub.Status != dbm.SubStatusPastDue || !g.expired(sub, cutoff) {
			return nil
		}
		if err := checkTransition(sub.Status, dbm.SubStatusCanceled); err != nil {
			return err
		}
		if err := g.subRepo.Update(ctx, sub.ID, map[string]interface{}{
			"status":               dbm.SubStatusCanceled,
			"cancel_at_period_end": false,
		}); err != nil {
			return err
		}
		done = true
		return nil
	})
	if done && err == nil {
		log.Warn().
			Str("company_id", listed.CompanyID.String()).
			Str("plan", listed.PlanName).
			Int("grace_days_exceeded", g.graceDays).
			Msg("Grace period expired, subscription canceled")
	}
	return done, err
}
