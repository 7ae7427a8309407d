package db_models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type InstanceStatus string

const (
	InstanceActive  InstanceStatus = "active"
	InstanceDeleted InstanceStatus = "deleted"
)

// ProductInstance is a financial model file owned by a company.
type ProductInstance struct {
	BaseModel
	CompanyID   uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedBy   uuid.UUID `gorm:"type:uuid;not null"`
	Title       string    `gorm:"not null"`
	Description string
	Status      InstanceStatus `gorm:"type:varchar(16);not null;index"`
	ArchivedAt  *int64
	ArchivedBy  *uuid.UUID `gorm:"type:uuid"`

	// Set while the owner holds the file read-only for everyone else.
	LockedBy     *uuid.UUID `gorm:"type:uuid"`
	LockedAt     *int64
	LockedReason string

	CurrentVersion int `gorm:"not null;default:0"`

	Sections []ProductSection `gorm:"foreignKey:InstanceID"`
}

type ProductSection struct {
	BaseModel
	InstanceID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_instance_section"`
	Section    string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_instance_section"`
	Data       datatypes.JSON
}

// ProductVersion is a snapshot of every section taken when content is saved.
type ProductVersion struct {
	BaseModel
	InstanceID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_instance_version"`
	Number       int       `gorm:"not null;uniqueIndex:idx_instance_version"`
	CreatedBy    uuid.UUID `gorm:"type:uuid;not null"`
	Changelog    string
	Snapshot     datatypes.JSON `gorm:"not null"`
	RestoredFrom *int
}

type EditSessionStatus string

const (
	SessionOpen      EditSessionStatus = "open"
	SessionSaved     EditSessionStatus = "saved"
	SessionDiscarded EditSessionStatus = "discarded"
)

// EditSession holds a user's unsaved draft of a file until it is saved as a
// new version or discarded.
type EditSession struct {
	BaseModel
	InstanceID     uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;index"`
	BaseVersion    int       `gorm:"not null"`
	Draft          datatypes.JSON
	Status         EditSessionStatus `gorm:"type:varchar(16);not null;index"`
	LastActivityAt int64             `gorm:"not null"`
	ClosedAt       *int64
}
