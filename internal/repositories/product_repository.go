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

type ProductRepository interface {
	Create(ctx context.Context, instance *db_models.ProductInstance) error
	FindByID(ctx context.Context, id uuid.UUID) (*db_models.ProductInstance, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID, status db_models.InstanceStatus) ([]db_models.ProductInstance, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from db_models.InstanceStatus, fields map[string]interface{}) (bool, error)
	ListSections(ctx context.Context, instanceID uuid.UUID) ([]db_models.ProductSection, error)
	UpsertSection(ctx context.Context, section *db_models.ProductSection) error
	ReplaceSections(ctx context.Context, instanceID uuid.UUID, sections []db_models.ProductSection) error

	TryLock(ctx context.Context, id, userID uuid.UUID, reason string) (bool, error)
	Unlock(ctx context.Context, id uuid.UUID) (bool, error)

	NextVersion(ctx context.Context, id uuid.UUID) (int, error)
	CreateVersion(ctx context.Context, version *db_models.ProductVersion) error
	ListVersions(ctx context.Context, instanceID uuid.UUID) ([]db_models.ProductVersion, error)
	FindVersion(ctx context.Context, instanceID, versionID uuid.UUID) (*db_models.ProductVersion, error)

	CreateSession(ctx context.Context, session *db_models.EditSession) error
	FindSession(ctx context.Context, id uuid.UUID) (*db_models.EditSession, error)
	FindOpenSession(ctx context.Context, instanceID, userID uuid.UUID) (*db_models.EditSession, error)
	ListOpenSessions(ctx context.Context, instanceID uuid.UUID, activeSince int64) ([]db_models.EditSession, error)
	TouchSession(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (bool, error)
	CloseSession(ctx context.Context, id uuid.UUID, status db_models.EditSessionStatus) (bool, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (p *productRepository) Create(ctx context.Context, instance *db_models.ProductInstance) error {
	return infra.Conn(ctx, p.db).Create(instance).Error
}

func (p *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*db_models.ProductInstance, error) {
	var instance db_models.ProductInstance
	err := infra.Conn(ctx, p.db).First(&instance, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &instance, nil
}

func (p *productRepository) ListByCompany(ctx context.Context, companyID uuid.UUID, status db_models.InstanceStatus) ([]db_models.ProductInstance, error) {
	var instances []db_models.ProductInstance
	err := infra.Conn(ctx, p.db).
		Where("company_id = ? AND status = ?", companyID, status).
		Order("created_at DESC").
		Find(&instances).Error
	if err != nil {
		return nil, err
	}
	return instances, nil
}

func (p *productRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	return infra.Conn(ctx, p.db).Model(&db_models.ProductInstance{}).Where("id = ?", id).Updates(fields).Error
}

// TransitionStatus applies fields only while the row still has status from.
// It reports false when another writer moved the file first.
func (p *productRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from db_models.InstanceStatus, fields map[string]interface{}) (bool, error) {
	res := infra.Conn(ctx, p.db).Model(&db_models.ProductInstance{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return res.RowsAffected == 1, res.Error
}

func (p *productRepository) ListSections(ctx context.Context, instanceID uuid.UUID) ([]db_models.ProductSection, error) {
	var sections []db_models.ProductSection
	if err := infra.Conn(ctx, p.db).Where("instance_id = ?", instanceID).Find(&sections).Error; err != nil {
		return nil, err
	}
	return sections, nil
}

func (p *productRepository) UpsertSection(ctx context.Context, section *db_models.ProductSection) error {
	return infra.Conn(ctx, p.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instance_id"}, {Name: "section"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(section).Error
}

// ReplaceSections hard deletes the current sections so the unique
// (instance_id, section) index is free for the new set.
func (p *productRepository) ReplaceSections(ctx context.Context, instanceID uuid.UUID, sections []db_models.ProductSection) error {
	conn := infra.Conn(ctx, p.db)
	if err := conn.Unscoped().Where("instance_id = ?", instanceID).Delete(&db_models.ProductSection{}).Error; err != nil {
		return err
	}
	for i := range sections {
		sections[i].InstanceID = instanceID
		if err := conn.Create(&sections[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (p *productRepository) TryLock(ctx context.Context, id, userID uuid.UUID, reason string) (bool, error) {
	res := infra.Conn(ctx, p.db).Model(&db_models.ProductInstance{}).
		Where("id = ? AND locked_by IS NULL", id).
		Updates(map[string]interface{}{
			"locked_by":     userID,
			"locked_at":     time.Now().Unix(),
			"locked_reason": reason,
		})
	return res.RowsAffected == 1, res.Error
}

func (p *productRepository) Unlock(ctx context.Context, id uuid.UUID) (bool, error) {
	res := infra.Conn(ctx, p.db).Model(&db_models.ProductInstance{}).
		Where("id = ? AND locked_by IS NOT NULL", id).
		Updates(map[string]interface{}{
			"locked_by":     nil,
			"locked_at":     nil,
			"locked_reason": "",
		})
	return res.RowsAffected == 1, res.Error
}

// NextVersion bumps current_version and returns the new number. The update
// holds the row lock, so concurrent savers get distinct numbers.
func (p *productRepository) NextVersion(ctx context.Context, id uuid.UUID) (int, error) {
	conn := infra.Conn(ctx, p.db)
	res := conn.Model(&db_models.ProductInstance{}).
		Where("id = ?", id).
		UpdateColumn("current_version", gorm.Expr("current_version + ?", 1))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	var current int
	err := conn.Model(&db_models.ProductInstance{}).
		Where("id = ?", id).
		Pluck("current_version", &current).Error
	return current, err
}

func (p *productRepository) CreateVersion(ctx context.Context, version *db_models.ProductVersion) error {
	return infra.Conn(ctx, p.db).Create(version).Error
}

func (p *productRepository) ListVersions(ctx context.Context, instanceID uuid.UUID) ([]db_models.ProductVersion, error) {
	var versions []db_models.ProductVersion
	err := infra.Conn(ctx, p.db).
		Where("instance_id = ?", instanceID).
		Order("number DESC").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func (p *productRepository) FindVersion(ctx context.Context, instanceID, versionID uuid.UUID) (*db_models.ProductVersion, error) {
	var version db_models.ProductVersion
	err := infra.Conn(ctx, p.db).First(&version, "id = ? AND instance_id = ?", versionID, instanceID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &version, nil
}

func (p *productRepository) CreateSession(ctx context.Context, session *db_models.EditSession) error {
	return infra.Conn(ctx, p.db).Create(session).Error
}

func (p *productRepository) FindSession(ctx context.Context, id uuid.UUID) (*db_models.EditSession, error) {
	return p.firstSession(infra.Conn(ctx, p.db).Where("id = ?", id))
}

func (p *productRepository) FindOpenSession(ctx context.Context, instanceID, userID uuid.UUID) (*db_models.EditSession, error) {
	return p.firstSession(infra.Conn(ctx, p.db).
		Where("instance_id = ? AND user_id = ? AND status = ?", instanceID, userID, db_models.SessionOpen).
		Order("created_at DESC"))
}

func (p *productRepository) ListOpenSessions(ctx context.Context, instanceID uuid.UUID, activeSince int64) ([]db_models.EditSession, error) {
	var sessions []db_models.EditSession
	err := infra.Conn(ctx, p.db).
		Where("instance_id = ? AND status = ? AND last_activity_at >= ?", instanceID, db_models.SessionOpen, activeSince).
		Order("created_at ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// TouchSession updates an open session; false means it was closed meanwhile.
func (p *productRepository) TouchSession(ctx context.Context, id uuid.UUID, fields map[string]interface{}) (bool, error) {
	res := infra.Conn(ctx, p.db).Model(&db_models.EditSession{}).
		Where("id = ? AND status = ?", id, db_models.SessionOpen).
		Updates(fields)
	return res.RowsAffected == 1, res.Error
}

func (p *productRepository) CloseSession(ctx context.Context, id uuid.UUID, status db_models.EditSessionStatus) (bool, error) {
	return p.TouchSession(ctx, id, map[string]interface{}{
		"status":    status,
		"closed_at": time.Now().Unix(),
	})
}

func (p *productRepository) firstSession(q *gorm.DB) (*db_models.EditSession, error) {
	var session db_models.EditSession
	if err := q.First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}
