package db_models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// WebhookEvent records provider events by id so redelivery is a no-op.
type WebhookEvent struct {
	BaseModel
	StripeEventID string `gorm:"type:varchar(255);uniqueIndex;not null"`
	Type          string `gorm:"type:varchar(128);index"`
	Payload       datatypes.JSON
	Processed     bool `gorm:"not null;default:false"`
	ProcessedAt   *int64
	Outcome       string `gorm:"type:varchar(64)"`
}

type AccountCredit struct {
	BaseModel
	UserID      *uuid.UUID      `gorm:"type:uuid;index"`
	CompanyID   *uuid.UUID      `gorm:"type:uuid;index"`
	Email       string          `gorm:"type:varchar(255);index"`
	InvoiceID   string          `gorm:"type:varchar(255);uniqueIndex;not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency    string          `gorm:"size:3"`
	Description string
}

type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
)

type CustomOrder struct {
	BaseModel
	UserID                  *uuid.UUID      `gorm:"type:uuid;index"`
	CompanyID               *uuid.UUID      `gorm:"type:uuid;index"`
	StripePaymentIntentID   string          `gorm:"type:varchar(255);uniqueIndex;not null"`
	StripeCheckoutSessionID string          `gorm:"type:varchar(255)"`
	ProductType             string          `gorm:"type:varchar(64)"`
	Amount                  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency                string          `gorm:"size:3"`
	Status                  OrderStatus     `gorm:"type:varchar(20)"`
	CustomerEmail           string          `gorm:"type:varchar(255)"`
}
