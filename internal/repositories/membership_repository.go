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

type MembershipRepository interface {
	FindMember(ctx context.Context, companyID, userID uuid.UUID) (*db_models.CompanyMember, error)
	GetRole(ctx context.Context, companyID, userID uuid.UUID) (db_models.MemberRole, bool, error)
	FindActiveMemberByEmail(ctx context.Context, companyID uuid.UUID, email string) (*db_models.CompanyMember, error)
	UpsertMembership(ctx context.Context, companyID, userID uuid.UUID, role db_models.MemberRole) error
	UpdateRole(ctx context.Context, companyID, userID uuid.UUID, role db_models.MemberRole) error
	MarkRemoved(ctx context.Context, companyID, userID uuid.UUID, removedAt int64) error
	ListActiveMembers(ctx context.Context, companyID uuid.UUID) ([]db_models.CompanyMember, error)
	FindOwnedCompany(ctx context.Context, userID uuid.UUID) (*db_models.CompanyMember, error)
}

type membershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

// FindMember returns the row even when tombstoned.
func (m *membershipRepository) FindMember(ctx context.Context, companyID, userID uuid.UUID) (*db_models.CompanyMember, error) {
	var member db_models.CompanyMember
	err := infra.Conn(ctx, m.db).Preload("User").
		Where("company_id = ? AND user_id = ?", companyID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

func (m *membershipRepository) GetRole(ctx context.Context, companyID, userID uuid.UUID) (db_models.MemberRole, bool, error) {
	member, err := m.FindMember(ctx, companyID, userID)
	if err != nil || member == nil || !member.Active() {
		return "", false, err
	}
	return member.Role, true, nil
}

func (m *membershipRepository) FindActiveMemberByEmail(ctx context.Context, companyID uuid.UUID, email string) (*db_models.CompanyMember, error) {
	var member db_models.CompanyMember
	err := infra.Conn(ctx, m.db).
		Joins("JOIN users ON users.id = company_members.user_id AND users.deleted_at IS NULL").
		Where("company_members.company_id = ? AND company_members.removed_at IS NULL AND users.email = ?",
			companyID, db_models.NormalizeEmail(email)).
		Preload("User").
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}

// UpsertMembership inserts the member or, for an existing row, sets the role
// and clears the tombstone.
func (m *membershipRepository) UpsertMembership(ctx context.Context, companyID, userID uuid.UUID, role db_models.MemberRole) error {
	member := db_models.CompanyMember{
		CompanyID: companyID,
		UserID:    userID,
		Role:      role,
	}
	return infra.Conn(ctx, m.db).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"role":       role,
			"removed_at": nil,
		}),
	}).Create(&member).Error
}

func (m *membershipRepository) UpdateRole(ctx context.Context, companyID, userID uuid.UUID, role db_models.MemberRole) error {
	return infra.Conn(ctx, m.db).Model(&db_models.CompanyMember{}).
		Where("company_id = ? AND user_id = ?", companyID, userID).
		Update("role", role).Error
}

func (m *membershipRepository) MarkRemoved(ctx context.Context, companyID, userID uuid.UUID, removedAt int64) error {
	return infra.Conn(ctx, m.db).Model(&db_models.CompanyMember{}).
		Where("company_id = ? AND user_id = ?", companyID, userID).
		Update("removed_at", removedAt).Error
}

func (m *membershipRepository) ListActiveMembers(ctx context.Context, companyID uuid.UUID) ([]db_models.CompanyMember, error) {
	var members []db_models.CompanyMember
	err := infra.Conn(ctx, m.db).Preload("User").
		Where("company_id = ? AND removed_at IS NULL", companyID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (m *membershipRepository) FindOwnedCompany(ctx context.Context, userID uuid.UUID) (*db_models.CompanyMember, error) {
	var member db_models.CompanyMember
	err := infra.Conn(ctx, m.db).
		Where("user_id = ? AND role = ? AND removed_at IS NULL", userID, db_models.RoleOwner).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}
