package db_models

import (
	"strings"

	"github.com/google/uuid"
)

type SharePermission string

const (
	PermissionView SharePermission = "view"
	PermissionEdit SharePermission = "edit"
)

func (p SharePermission) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}

type ShareStatus string

const (
	ShareStatusPending  ShareStatus = "pending"
	ShareStatusAccepted ShareStatus = "accepted"
	ShareStatusDeclined ShareStatus = "declined"
	ShareStatusDeleted  ShareStatus = "deleted"
)

// ActiveShareStatuses hold a grant; declined and deleted rows do not.
var ActiveShareStatuses = []ShareStatus{ShareStatusPending, ShareStatusAccepted}

// ShareInvitation offers access to one file to an email address. CompanyID is
// denormalized from the file so seat queries stay company scoped.
type ShareInvitation struct {
	BaseModel
	CompanyID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	InstanceID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_share_instance_email"`
	SharedBy        uuid.UUID       `gorm:"type:uuid;not null"`
	SharedWithEmail string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_share_instance_email;index"`
	Permission      SharePermission `gorm:"type:varchar(8);not null"`
	Status          ShareStatus     `gorm:"type:varchar(16);not null;index"`
	AccessToken     string          `gorm:"type:varchar(128);index"`
	TokenExpiry     int64
	RespondedAt     *int64

	Instance *ProductInstance `gorm:"foreignKey:InstanceID"`
}

func (s *ShareInvitation) Active() bool {
	return s.Status == ShareStatusPending || s.Status == ShareStatusAccepted
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
