package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finmodel/internal/infra"
	"finmodel/internal/models/db_models"
)

// SubscriptionRepository owns the per-company counters. Every counter write
// is a single conditional UPDATE; a false result means the bound held and
// nothing changed.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *db_models.Subscription) error
	FindByCompanyID(ctx context.Context, companyID uuid.UUID) (*db_models.Subscription, error)
	LockByCompanyID(ctx context.Context, companyID uuid.UUID) (*db_models.Subscription, error)
	FindByStripeSubscriptionID(ctx context.Context, stripeSubID string, statuses ...db_models.SubscriptionStatus) (*db_models.Subscription, error)
	ListByStatus(ctx context.Context, status db_models.SubscriptionStatus) ([]db_models.Subscription, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error

	IncrementModels(ctx context.Context, companyID uuid.UUID, maxModels int) (bool, error)
	DecrementModels(ctx context.Context, companyID uuid.UUID) (bool, error)
	IncrementSeats(ctx context.Context, companyID uuid.UUID, seatCap int) (bool, error)
	DecrementSeats(ctx context.Context, companyID uuid.UUID) (bool, error)
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (s *subscriptionRepository) Create(ctx context.Context, sub *db_models.Subscription) error {
	return infra.Conn(ctx, s.db).Create(sub).Error
}

func (s *subscriptionRepository) FindByCompanyID(ctx context.Context, companyID uuid.UUID) (*db_models.Subscription, error) {
	return s.first(infra.Conn(ctx, s.db).Where("company_id = ?", companyID))
}

// LockByCompanyID takes the row lock that serializes all counter changes for
// a company. It must run inside a transaction.
func (s *subscriptionRepository) LockByCompanyID(ctx context.Context, companyID uuid.UUID) (*db_models.Subscription, error) {
	return s.first(infra.Conn(ctx, s.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("company_id = ?", companyID))
}

func (s *subscriptionRepository) FindByStripeSubscriptionID(ctx context.Context, stripeSubID string, statuses ...db_models.SubscriptionStatus) (*db_models.Subscription, error) {
	q := infra.Conn(ctx, s.db).Where("stripe_subscription_id = ?", stripeSubID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	return s.first(q)
}

func (s *subscriptionRepository) ListByStatus(ctx context.Context, status db_models.SubscriptionStatus) ([]db_models.Subscription, error) {
	var subs []db_models.Subscription
	if err := infra.Conn(ctx, s.db).Where("status = ?", status).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *subscriptionRepository) Update(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return infra.Conn(ctx, s.db).Model(&db_models.Subscription{}).Where("id = ?", id).Updates(fields).Error
}

func (s *subscriptionRepository) IncrementModels(ctx context.Context, companyID uuid.UUID, maxModels int) (bool, error) {
	res := infra.Conn(ctx, s.db).Model(&db_models.Subscription{}).
		Where("company_id = ? AND models_used < ?", companyID, maxModels).
		UpdateColumn("models_used", gorm.Expr("models_used + ?", 1))
	return res.RowsAffected == 1, res.Error
}

func (s *subscriptionRepository) DecrementModels(ctx context.Context, companyID uuid.UUID) (bool, error) {
	res := infra.Conn(ctx, s.db).Model(&db_models.Subscription{}).
		Where("company_id = ? AND models_used > 0", companyID).
		UpdateColumn("models_used", gorm.Expr("models_used - ?", 1))
	return res.RowsAffected == 1, res.Error
}

// IncrementSeats adds one seat unless seatCap is reached. seatCap <= 0 is uncapped.
func (s *subscriptionRepository) IncrementSeats(ctx context.Context, companyID uuid.UUID, seatCap int) (bool, error) {
	q := infra.Conn(ctx, s.db).Model(&db_models.Subscription{}).Where("company_id = ?", companyID)
	if seatCap > 0 {
		q = q.Where("seats_used < ?", seatCap)
	}
	res := q.UpdateColumn("seats_used", gorm.Expr("seats_used + ?", 1))
	return res.RowsAffected == 1, res.Error
}

func (s *subscriptionRepository) DecrementSeats(ctx context.Context, companyID uuid.UUID) (bool, error) {
	res := infra.Conn(ctx, s.db).Model(&db_models.Subscription{}).
		Where("company_id = ? AND seats_used > 0", companyID).
		UpdateColumn("seats_used", gorm.Expr("seats_used - ?", 1))
	return res.RowsAffected == 1, res.Error
}

func (s *subscriptionRepository) first(q *gorm.DB) (*db_models.Subscription, error) {
	var sub db_models.Subscription
	if err := q.First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
