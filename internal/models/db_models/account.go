package db_models

import "github.com/google/uuid"

type User struct {
	BaseModel
	FullName         string
	Email            string `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash     string
	EmailVerified    bool
	DefaultCompanyID *uuid.UUID `gorm:"type:uuid"`
	StripeCustomerID *string    `gorm:"type:varchar(255);index"`

	// Issued to accounts created by checkout so the buyer can pick a password.
	PasswordSetupToken       *string `gorm:"type:varchar(128);index"`
	PasswordSetupTokenExpiry *int64
}

// SocialAccount links a user to an identity at an OAuth provider.
type SocialAccount struct {
	BaseModel
	UserID         uuid.UUID `gorm:"type:uuid;not null;index"`
	Provider       string    `gorm:"type:varchar(32);not null;uniqueIndex:idx_provider_subject"`
	ProviderUserID string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_provider_subject"`
	Email          string    `gorm:"type:varchar(255);index"`
	PictureURL     string
	LastLoginAt    int64
}
