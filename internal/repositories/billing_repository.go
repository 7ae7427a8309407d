package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finmodel/internal/infra"
	"finmodel/internal/models/db_models"
)

// BillingRepository stores the webhook idempotency ledger and the
// money records produced by billing events.
type BillingRepository interface {
	// ReserveEvent inserts the event row if missing and locks it. It reports
	// whether the event was already processed.
	ReserveEvent(ctx context.Context, event *db_models.WebhookEvent) (processed bool, err error)
	IsProcessed(ctx context.Context, stripeEventID string) (bool, error)
	MarkProcessed(ctx context.Context, stripeEventID, outcome string) error

	CreateAccountCredit(ctx context.Context, credit *db_models.AccountCredit) (bool, error)
	CreateCustomOrder(ctx context.Context, order *db_models.CustomOrder) (*db_models.CustomOrder, error)
	CountCreditsByInvoice(ctx context.Context, invoiceID string) (int64, error)
}

type billingRepository struct {
	db *gorm.DB
}

func NewBillingRepository(db *gorm.DB) BillingRepository {
	return &billingRepository{db: db}
}

func (b *billingRepository) ReserveEvent(ctx context.Context, event *db_models.WebhookEvent) (bool, error) {
	conn := infra.Conn(ctx, b.db)
	if err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		DoNothing: true,
	}).Create(event).Error; err != nil {
		return false, err
	}

	var stored db_models.WebhookEvent
	err := conn.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("stripe_event_id = ?", event.StripeEventID).
		First(&stored).Error
	if err != nil {
		return false, err
	}
	return stored.Processed, nil
}

func (b *billingRepository) IsProcessed(ctx context.Context, stripeEventID string) (bool, error) {
	var stored db_models.WebhookEvent
	err := infra.Conn(ctx, b.db).Where("stripe_event_id = ?", stripeEventID).First(&stored).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return stored.Processed, nil
}

func (b *billingRepository) MarkProcessed(ctx context.Context, stripeEventID, outcome string) error {
	now := time.Now().Unix()
	return infra.Conn(ctx, b.db).Model(&db_models.WebhookEvent{}).
		Where("stripe_event_id = ?", stripeEventID).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": now,
			"outcome":      outcome,
		}).Error
}

// CreateAccountCredit is keyed by invoice id; false means a credit for that
// invoice already existed.
func (b *billingRepository) CreateAccountCredit(ctx context.Context, credit *db_models.AccountCredit) (bool, error) {
	res := infra.Conn(ctx, b.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "invoice_id"}},
		DoNothing: true,
	}).Create(credit)
	return res.RowsAffected == 1, res.Error
}

func (b *billingRepository) CreateCustomOrder(ctx context.Context, order *db_models.CustomOrder) (*db_models.CustomOrder, error) {
	conn := infra.Conn(ctx, b.db)
	if err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_payment_intent_id"}},
		DoNothing: true,
	}).Create(order).Error; err != nil {
		return nil, err
	}

	var stored db_models.CustomOrder
	if err := conn.Where("stripe_payment_intent_id = ?", order.StripePaymentIntentID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (b *billingRepository) CountCreditsByInvoice(ctx context.Context, invoiceID string) (int64, error) {
	var count int64
	err := infra.Conn(ctx, b.db).Model(&db_models.AccountCredit{}).Where("invoice_id = ?", invoiceID).Count(&count).Error
	return count, err
}
