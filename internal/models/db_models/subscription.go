package db_models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SubscriptionStatus string

const (
	SubStatusNone     SubscriptionStatus = ""
	SubStatusTrialing SubscriptionStatus = "trialing"
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
)

// PaymentError is stored on the subscription after a failed renewal charge.
type PaymentError struct {
	FailedAt     time.Time  `json:"failed_at"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	Reason       string     `json:"reason"`
	AttemptCount int64      `json:"attempt_count"`
}

type Subscription struct {
	BaseModel
	CompanyID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	PlanName  string    `gorm:"type:varchar(64);not null;index"`

	Status            SubscriptionStatus `gorm:"type:varchar(20);not null;index"`
	ModelsUsed        int                `gorm:"not null;default:0"`
	SeatsUsed         int                `gorm:"not null;default:0"`
	TrialEndDate      *int64
	CancelAtPeriodEnd bool

	StripeCustomerID     *string `gorm:"type:varchar(255);index"`
	StripeSubscriptionID *string `gorm:"type:varchar(255);uniqueIndex"`
	StripePriceID        *string `gorm:"type:varchar(255)"`
	BillingEmail         *string `gorm:"type:varchar(255)"`
	BillingCycle         *string `gorm:"type:varchar(20)"`

	StartDate             *int64
	RenewalDate           *int64
	FirstSubscriptionDate *int64

	LastPaymentError datatypes.JSON
}

// TrialExpired is true only for trialing subscriptions whose trial end has passed.
func (s *Subscription) TrialExpired(now time.Time) bool {
	return s.Status == SubStatusTrialing && s.TrialEndDate != nil && *s.TrialEndDate < now.Unix()
}

func (s *Subscription) PaymentError() (*PaymentError, error) {
	if len(s.LastPaymentError) == 0 || string(s.LastPaymentError) == "null" {
		return nil, nil
	}
	var pe PaymentError
	if err := json.Unmarshal(s.LastPaymentError, &pe); err != nil {
		return nil, err
	}
	return &pe, nil
}

func EncodePaymentError(pe *PaymentError) (datatypes.JSON, error) {
	b, err := json.Marshal(pe)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
