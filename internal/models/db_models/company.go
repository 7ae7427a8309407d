package db_models

import "github.com/google/uuid"

type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleEditor MemberRole = "editor"
	RoleViewer MemberRole = "viewer"
)

func (r MemberRole) Valid() bool {
	switch r {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	}
	return false
}

type Company struct {
	BaseModel
	Name    string    `gorm:"not null"`
	OwnerID uuid.UUID `gorm:"type:uuid;index"`
}

// CompanyMember has one row per (company, user). Removal sets RemovedAt
// instead of deleting the row so the member can be re-added in place.
type CompanyMember struct {
	BaseModel
	CompanyID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_company_member"`
	UserID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_company_member"`
	Role      MemberRole `gorm:"type:varchar(16);not null"`
	RemovedAt *int64

	User User `gorm:"foreignKey:UserID"`
}

func (m *CompanyMember) Active() bool {
	return m.RemovedAt == nil
}
