package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"finmodel/internal/infra"
	"finmodel/internal/models/db_models"
)

type ShareRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*db_models.ShareInvitation, error)
	FindByInstanceAndEmail(ctx context.Context, instanceID uuid.UUID, email string) (*db_models.ShareInvitation, error)
	FindByToken(ctx context.Context, token string) (*db_models.ShareInvitation, error)
	Upsert(ctx context.Context, share *db_models.ShareInvitation) (*db_models.ShareInvitation, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	SoftDelete(ctx context.Context, id uuid.UUID) error

	FindActiveEditGrants(ctx context.Context, companyID uuid.UUID, email string, excluding ...uuid.UUID) ([]db_models.ShareInvitation, error)
	ListActiveByInstance(ctx context.Context, instanceID uuid.UUID) ([]db_models.ShareInvitation, error)
	ListActiveByCompanyAndEmail(ctx context.Context, companyID uuid.UUID, email string) ([]db_models.ShareInvitation, error)
	DowngradeEditToView(ctx context.Context, companyID uuid.UUID, email string) (int64, error)
	SoftDeleteByCompanyAndEmail(ctx context.Context, companyID uuid.UUID, email string) (int64, error)
	SoftDeleteByInstance(ctx context.Context, instanceID uuid.UUID) (int64, error)
}

type shareRepository struct {
	db *gorm.DB
}

func NewShareRepository(db *gorm.DB) ShareRepository {
	return &shareRepository{db: db}
}

func (s *shareRepository) FindByID(ctx context.Context, id uuid.UUID) (*db_models.ShareInvitation, error) {
	return s.first(infra.Conn(ctx, s.db).Preload("Instance").Where("id = ?", id))
}

func (s *shareRepository) FindByInstanceAndEmail(ctx context.Context, instanceID uuid.UUID, email string) (*db_models.ShareInvitation, error) {
	return s.first(infra.Conn(ctx, s.db).
		Where("instance_id = ? AND shared_with_email = ?", instanceID, db_models.NormalizeEmail(email)))
}

func (s *shareRepository) FindByToken(ctx context.Context, token string) (*db_models.ShareInvitation, error) {
	return s.first(infra.Conn(ctx, s.db).Preload("Instance").Where("access_token = ?", token))
}

// Upsert keeps one row per (instance, email). A conflicting row, deleted or
// not, is revived with the new grant. The stored row is returned because the
// id of the passed struct is not the persisted one on conflict.
func (s *shareRepository) Upsert(ctx context.Context, share *db_models.ShareInvitation) (*db_models.ShareInvitation, error) {
	share.SharedWithEmail = db_models.NormalizeEmail(share.SharedWithEmail)
	now := time.Now().Unix()

	err := infra.Conn(ctx, s.db).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instance_id"}, {Name: "shared_with_email"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"company_id":   share.CompanyID,
			"shared_by":    share.SharedBy,
			"permission":   share.Permission,
			"status":       share.Status,
			"access_token": share.AccessToken,
			"token_expiry": share.TokenExpiry,
			"responded_at": nil,
			"deleted_at":   nil,
			"updated_at":   now,
		}),
	}).Create(share).Error
	if err != nil {
		return nil, err
	}

	return s.first(infra.Conn(ctx, s.db).
		Where("instance_id = ? AND shared_with_email = ?", share.InstanceID, share.SharedWithEmail))
}

func (s *shareRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return infra.Conn(ctx, s.db).Model(&db_models.ShareInvitation{}).Where("id = ?", id).Updates(fields).Error
}

func (s *shareRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return infra.Conn(ctx, s.db).Model(&db_models.ShareInvitation{}).
		Where("id = ?", id).
		Updates(deletedFields()).Error
}

// FindActiveEditGrants lists pending or accepted edit shares for email within
// the company, leaving out the shares named in excluding.
func (s *shareRepository) FindActiveEditGrants(ctx context.Context, companyID uuid.UUID, email string, excluding ...uuid.UUID) ([]db_models.ShareInvitation, error) {
	q := infra.Conn(ctx, s.db).
		Where("company_id = ? AND shared_with_email = ? AND permission = ? AND status IN ?",
			companyID, db_models.NormalizeEmail(email), db_models.PermissionEdit, db_models.ActiveShareStatuses)
	if len(excluding) > 0 {
		q = q.Where("id NOT IN ?", excluding)
	}

	var shares []db_models.ShareInvitation
	if err := q.Find(&shares).Error; err != nil {
		return nil, err
	}
	return shares, nil
}

func (s *shareRepository) ListActiveByInstance(ctx context.Context, instanceID uuid.UUID) ([]db_models.ShareInvitation, error) {
	var shares []db_models.ShareInvitation
	err := infra.Conn(ctx, s.db).
		Where("instance_id = ? AND status IN ?", instanceID, db_models.ActiveShareStatuses).
		Order("created_at ASC").
		Find(&shares).Error
	if err != nil {
		return nil, err
	}
	return shares, nil
}

func (s *shareRepository) ListActiveByCompanyAndEmail(ctx context.Context, companyID uuid.UUID, email string) ([]db_models.ShareInvitation, error) {
	var shares []db_models.ShareInvitation
	err := infra.Conn(ctx, s.db).
		Preload("Instance").
		Where("company_id = ? AND shared_with_email = ? AND status IN ?",
			companyID, db_models.NormalizeEmail(email), db_models.ActiveShareStatuses).
		Order("created_at DESC").
		Find(&shares).Error
	if err != nil {
		return nil, err
	}
	return shares, nil
}

func (s *shareRepository) DowngradeEditToView(ctx context.Context, companyID uuid.UUID, email string) (int64, error) {
	res := infra.Conn(ctx, s.db).Model(&db_models.ShareInvitation{}).
		Where("company_id = ? AND shared_with_email = ? AND permission = ? AND status IN ?",
			companyID, db_models.NormalizeEmail(email), db_models.PermissionEdit, db_models.ActiveShareStatuses).
		Update("permission", db_models.PermissionView)
	return res.RowsAffected, res.Error
}

func (s *shareRepository) SoftDeleteByCompanyAndEmail(ctx context.Context, companyID uuid.UUID, email string) (int64, error) {
	res := infra.Conn(ctx, s.db).Model(&db_models.ShareInvitation{}).
		Where("company_id = ? AND shared_with_email = ? AND status IN ?",
			companyID, db_models.NormalizeEmail(email), db_models.ActiveShareStatuses).
		Updates(deletedFields())
	return res.RowsAffected, res.Error
}

func (s *shareRepository) SoftDeleteByInstance(ctx context.Context, instanceID uuid.UUID) (int64, error) {
	res := infra.Conn(ctx, s.db).Model(&db_models.ShareInvitation{}).
		Where("instance_id = ? AND status IN ?", instanceID, db_models.ActiveShareStatuses).
		Updates(deletedFields())
	return res.RowsAffected, res.Error
}

func deletedFields() map[string]interface{} {
	return map[string]interface{}{
		"status":     db_models.ShareStatusDeleted,
		"deleted_at": time.Now(),
	}
}

func (s *shareRepository) first(q *gorm.DB) (*db_models.ShareInvitation, error) {
	var share db_models.ShareInvitation
	if err := q.First(&share).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &share, nil
}
