package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbm "finmodel/internal/models/db_models"
)

type DashboardRepository interface {
	// KPIs / counts
	CountCompanies(ctx context.Context) (int64, error)
	CountNewCompanies(ctx context.Context, start, end time.Time) (int64, error)
	CountSubscriptionsByStatus(ctx context.Context, status dbm.SubscriptionStatus) (int64, error)

	// Plan mix over live subscriptions (trialing, active, past_due)
	PlanMix(ctx context.Context) ([]PlanMixRow, error)

	// Money received in the window, per currency
	OrderTotals(ctx context.Context, start, end time.Time) ([]CurrencyTotalRow, error)
	CreditTotals(ctx context.Context, start, end time.Time) ([]CurrencyTotalRow, error)

	WebhookOutcomes(ctx context.Context, start, end time.Time) ([]OutcomeRow, error)
	RecentOrders(ctx context.Context, limit int) ([]dbm.CustomOrder, error)
}

type dashboardRepository struct {
	db *gorm.DB
}

func NewDashboardRepository(db *gorm.DB) DashboardRepository {
	return &dashboardRepository{db: db}
}

// ---------- Row helpers ----------
type PlanMixRow struct {
	PlanName      string `gorm:"column:plan_name"`
	Count         int64  `gorm:"column:count"`
	SeatsUsed     int64  `gorm:"column:seats_used"`
	ModelsUsed    int64  `gorm:"column:models_used"`
	IncludedSeats int64  `gorm:"column:included_seats"`
	MaxModels     int64  `gorm:"column:max_models"`
}

type CurrencyTotalRow struct {
	Currency string          `gorm:"column:currency"`
	Count    int64           `gorm:"column:count"`
	Total    decimal.Decimal `gorm:"column:total"`
}

type OutcomeRow struct {
	Outcome string `gorm:"column:outcome"`
	Count   int64  `gorm:"column:count"`
}

var liveStatuses = []dbm.SubscriptionStatus{dbm.SubStatusTrialing, dbm.SubStatusActive, dbm.SubStatusPastDue}

// ---------- Counts ----------
func (r *dashboardRepository) CountCompanies(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&dbm.Company{}).Count(&n).Error
	return n, err
}

func (r *dashboardRepository) CountNewCompanies(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&dbm.Company{}).
		Where("created_at BETWEEN ? AND ?", start.Unix(), end.Unix()).
		Count(&n).Error
	return n, err
}

func (r *dashboardRepository) CountSubscriptionsByStatus(ctx context.Context, status dbm.SubscriptionStatus) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&dbm.Subscription{}).
		Where("status = ?", status).
		Count(&n).Error
	return n, err
}

// ---------- Plan mix ----------
func (r *dashboardRepository) PlanMix(ctx context.Context) ([]PlanMixRow, error) {
	var rows []PlanMixRow
	err := r.db.WithContext(ctx).
		Model(&dbm.Subscription{}).
		Select(`subscriptions.plan_name AS plan_name,
			COUNT(*) AS count,
			COALESCE(SUM(subscriptions.seats_used), 0) AS seats_used,
			COALESCE(SUM(subscriptions.models_used), 0) AS models_used,
			COALESCE(plans.included_seats, 0) AS included_seats,
			COALESCE(plans.max_models, 0) AS max_models`).
		Joins("LEFT JOIN plans ON plans.name = subscriptions.plan_name AND plans.deleted_at IS NULL").
		Where("subscriptions.status IN ?", liveStatuses).
		Group("subscriptions.plan_name, plans.included_seats, plans.max_models").
		Order("count DESC, plan_name").
		Scan(&rows).Error
	return rows, err
}

// ---------- Money ----------
func (r *dashboardRepository) OrderTotals(ctx context.Context, start, end time.Time) ([]CurrencyTotalRow, error) {
	var rows []CurrencyTotalRow
	err := r.db.WithContext(ctx).
		Model(&dbm.CustomOrder{}).
		Select("currency, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("status = ? AND created_at BETWEEN ? AND ?", dbm.OrderStatusCompleted, start.Unix(), end.Unix()).
		Group("currency").
		Order("currency").
		Scan(&rows).Error
	return rows, err
}

func (r *dashboardRepository) CreditTotals(ctx context.Context, start, end time.Time) ([]CurrencyTotalRow, error) {
	var rows []CurrencyTotalRow
	err := r.db.WithContext(ctx).
		Model(&dbm.AccountCredit{}).
		Select("currency, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("created_at BETWEEN ? AND ?", start.Unix(), end.Unix()).
		Group("currency").
		Order("currency").
		Scan(&rows).Error
	return rows, err
}

// ---------- Webhooks ----------
func (r *dashboardRepository) WebhookOutcomes(ctx context.Context, start, end time.Time) ([]OutcomeRow, error) {
	var rows []OutcomeRow
	err := r.db.WithContext(ctx).
		Model(&dbm.WebhookEvent{}).
		Select("outcome, COUNT(*) AS count").
		Where("processed = ? AND processed_at BETWEEN ? AND ?", true, start.Unix(), end.Unix()).
		Group("outcome").
		Order("count DESC, outcome").
		Scan(&rows).Error
	return rows, err
}

func (r *dashboardRepository) RecentOrders(ctx context.Context, limit int) ([]dbm.CustomOrder, error) {
	var orders []dbm.CustomOrder
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
