package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"finmodel/internal/infra"
	dbm "finmodel/internal/models/db_models"
	"finmodel/internal/models/request_models"
	rm "finmodel/internal/models/response_models"
	"finmodel/internal/repositories"
	"finmodel/pkg/utils"
)

type ProductServiceInterface interface {
	CreateModel(ctx context.Context, companyID, userID uuid.UUID, req request_models.CreateProductRequest) (*rm.ProductMutationResult, error)
	CloneModel(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.ProductMutationResult, error)
	DeleteModel(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.ProductMutationResult, error)
	RestoreModel(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.ProductMutationResult, error)
	SaveSection(ctx context.Context, companyID, userID, instanceID uuid.UUID, section string, data json.RawMessage) error
	GetModel(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.ProductInstanceResponse, error)
	ListModels(ctx context.Context, companyID, userID uuid.UUID, archived bool) ([]rm.ProductInstanceResponse, error)

	LockModel(ctx context.Context, companyID, userID, instanceID uuid.UUID, reason string) (*rm.ProductInstanceResponse, error)
	UnlockModel(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.ProductInstanceResponse, error)

	ListVersions(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.VersionHistory, error)
	RestoreVersion(ctx context.Context, companyID, userID, instanceID, versionID uuid.UUID, reason string) (*rm.VersionResponse, error)
	StartEdit(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.EditSessionResponse, error)
	AutosaveSession(ctx context.Context, companyID, userID, instanceID, sessionID uuid.UUID, sections map[string]json.RawMessage) (*rm.EditSessionResponse, error)
	SaveSession(ctx context.Context, companyID, userID, instanceID, sessionID uuid.UUID, req request_models.SaveSessionRequest) (*rm.SessionSaveResult, error)
	DiscardSession(ctx context.Context, companyID, userID, instanceID, sessionID uuid.UUID) (*rm.EditSessionResponse, error)
	ListEditors(ctx context.Context, companyID, userID, instanceID uuid.UUID) ([]rm.EditorView, error)
}

// errModelLimitReached rolls back a restore whose bounded increment matched
// no row; the caller reports the verdict instead.
var errModelLimitReached = errors.New("model limit reached")

type ProductService struct {
	db           *gorm.DB
	productRepo  repositories.ProductRepository
	shareRepo    repositories.ShareRepository
	memberRepo   repositories.MembershipRepository
	subRepo      repositories.SubscriptionRepository
	ledger       SeatLedger
	entitlements *EntitlementService
}

func NewProductService(
	db *gorm.DB,
	productRepo repositories.ProductRepository,
	shareRepo repositories.ShareRepository,
	memberRepo repositories.MembershipRepository,
	subRepo repositories.SubscriptionRepository,
	ledger SeatLedger,
	entitlements *EntitlementService,
) ProductServiceInterface {
	return &ProductService{
		db:           db,
		productRepo:  productRepo,
		shareRepo:    shareRepo,
		memberRepo:   memberRepo,
		subRepo:      subRepo,
		ledger:       ledger,
		entitlements: entitlements,
	}
}

func (p *ProductService) CreateModel(ctx context.Context, companyID, userID uuid.UUID, req request_models.CreateProductRequest) (*rm.ProductMutationResult, error) {
	if _, err := p.requireWriter(ctx, companyID, userID); err != nil {
		return nil, err
	}

	instance := &dbm.ProductInstance{
		CompanyID:   companyID,
		CreatedBy:   userID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      dbm.InstanceActive,
	}
	return p.createCounted(ctx, companyID, instance, nil, "Initial model creation")
}

func (p *ProductService) CloneModel(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.ProductMutationResult, error) {
	if _, err := p.requireWriter(ctx, companyID, userID); err != nil {
		return nil, err
	}
	source, err := p.loadInCompany(ctx, companyID, instanceID)
	if err != nil {
		return nil, err
	}
	if source.Status != dbm.InstanceActive {
		return nil, utils.ErrFileNotFound
	}

	sections, err := p.productRepo.ListSections(ctx, source.ID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	clone := &dbm.ProductInstance{
		CompanyID:   companyID,
		CreatedBy:   userID,
		Title:       "Copy of " + source.Title,
		Description: source.Description,
		Status:      dbm.InstanceActive,
	}
	return p.createCounted(ctx, companyID, clone, sections, "Cloned from "+source.Title)
}

// createCounted inserts instance, its sections and the first version together
// with the bounded models_used increment.
func (p *ProductService) createCounted(ctx context.Context, companyID uuid.UUID, instance *dbm.ProductInstance, sections []dbm.ProductSection, changelog string) (*rm.ProductMutationResult, error) {
	result := &rm.ProductMutationResult{}

	err := infra.RunInTransaction(ctx, p.db, func(ctx context.Context) error {
		sub, plan, err := p.ledger.Lock(ctx, companyID)
		if err != nil {
			return err
		}

		verdict, err := p.entitlements.CanCreateModel(ctx, companyID)
		if err != nil {
			return err
		}
		if verdict.Denied() {
			result.Verdict = verdict
			return nil
		}

		ok, err := p.subRepo.IncrementModels(ctx, companyID, plan.MaxModels)
		if err != nil {
			return fmt.Errorf("%w: increment models: %v", utils.ErrDatabaseError, err)
		}
		if !ok {
			result.Verdict = p.entitlements.modelLimitVerdict(companyID, &rm.Verdict{
				PlanName: plan.Name,
				Used:     sub.ModelsUsed,
				Limit:    plan.MaxModels,
			}, plan, ". Upgrade to create more")
			return nil
		}

		if err := p.productRepo.Create(ctx, instance); err != nil {
			return fmt.Errorf("%w: create file: %v", utils.ErrDatabaseError, err)
		}
		for _, s := range sections {
			if err := p.productRepo.UpsertSection(ctx, &dbm.ProductSection{
				InstanceID: instance.ID,
				Section:    s.Section,
				Data:       s.Data,
			}); err != nil {
				return fmt.Errorf("%w: copy section: %v", utils.ErrDatabaseError, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Verdict.Denied() {
		return result, nil
	}

	result.Instance = toInstanceResponse(instance, nil)
	return result, nil
}

// DeleteModel archives the file, removes its shares and gives back the seats
// that only those shares held. The status check runs under the subscription
// lock so concurrent deletes decrement models_used once.
func (p *ProductService) DeleteModel(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.ProductMutationResult, error) {
	role, err := p.requireWriter(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}

	result := &rm.ProductMutationResult{}
	var instance *dbm.ProductInstance
	err = infra.RunInTransaction(ctx, p.db, func(ctx context.Context) error {
		if _, _, err := p.ledger.Lock(ctx, companyID); err != nil {
			return err
		}

		var err error
		instance, err = p.loadInCompany(ctx, companyID, instanceID)
		if err != nil {
			return err
		}
		if instance.Status != dbm.InstanceActive {
			return utils.ErrFileNotFound
		}
		if err := checkUnlocked(instance, role); err != nil {
			return err
		}

		shares, err := p.shareRepo.ListActiveByInstance(ctx, instanceID)
		if err != nil {
			return fmt.Errorf("%w: list shares: %v", utils.ErrDatabaseError, err)
		}
		emails := make([]string, 0, len(shares))
		for _, sh := range shares {
			if sh.Permission == dbm.PermissionEdit {
				emails = append(emails, sh.SharedWithEmail)
			}
		}

		_, released, err := p.ledger.ApplyAll(ctx, companyID, emails, func(ctx context.Context) error {
			moved, err := p.productRepo.TransitionStatus(ctx, instanceID, dbm.InstanceActive, map[string]interface{}{
				"status":      dbm.InstanceDeleted,
				"archived_at": time.Now().Unix(),
				"archived_by": userID,
			})
			if err != nil {
				return fmt.Errorf("%w: archive file: %v", utils.ErrDatabaseError, err)
			}
			if !moved {
				return utils.ErrFileNotFound
			}

			n, err := p.shareRepo.SoftDeleteByInstance(ctx, instanceID)
			if err != nil {
				return fmt.Errorf("%w: remove shares: %v", utils.ErrDatabaseError, err)
			}
			result.SharesRemoved = n

			if _, err := p.subRepo.DecrementModels(ctx, companyID); err != nil {
				return fmt.Errorf("%w: decrement models: %v", utils.ErrDatabaseError, err)
			}
			return nil
		})
		result.SeatsReleased = released
		return err
	})
	if err != nil {
		return nil, err
	}

	instance.Status = dbm.InstanceDeleted
	result.Instance = toInstanceResponse(instance, nil)

	log.Info().
		Str("company_id", companyID.String()).
		Str("instance_id", instanceID.String()).
		Int64("shares_removed", result.SharesRemoved).
		Int("seats_released", result.SeatsReleased).
		Msg("File deleted")
	return result, nil
}

func (p *ProductService) RestoreModel(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.ProductMutationResult, error) {
	if err := p.requireOwner(ctx, companyID, userID); err != nil {
		return nil, err
	}

	result := &rm.ProductMutationResult{}
	var instance *dbm.ProductInstance
	err := infra.RunInTransaction(ctx, p.db, func(ctx context.Context) error {
		sub, plan, err := p.ledger.Lock(ctx, companyID)
		if err != nil {
			return err
		}

		instance, err = p.loadInCompany(ctx, companyID, instanceID)
		if err != nil {
			return err
		}
		if instance.Status != dbm.InstanceDeleted {
			return utils.ErrFileNotArchived
		}

		verdict, err := p.entitlements.CanRestoreModel(ctx, companyID)
		if err != nil {
			return err
		}
		if verdict.Denied() {
			result.Verdict = verdict
			return nil
		}

		moved, err := p.productRepo.TransitionStatus(ctx, instanceID, dbm.InstanceDeleted, map[string]interface{}{
			"status":      dbm.InstanceActive,
			"archived_at": nil,
			"archived_by": nil,
		})
		if err != nil {
			return fmt.Errorf("%w: restore file: %v", utils.ErrDatabaseError, err)
		}
		if !moved {
			return utils.ErrFileNotArchived
		}

		ok, err := p.subRepo.IncrementModels(ctx, companyID, plan.MaxModels)
		if err != nil {
			return fmt.Errorf("%w: increment models: %v", utils.ErrDatabaseError, err)
		}
		if !ok {
			result.Verdict = p.entitlements.modelLimitVerdict(companyID, &rm.Verdict{
				PlanName: plan.Name,
				Used:     sub.ModelsUsed,
				Limit:    plan.MaxModels,
			}, plan, ". Upgrade to restore")
			return errModelLimitReached
		}
		return nil
	})
	if errors.Is(err, errModelLimitReached) && result.Verdict.Denied() {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	if result.Verdict.Denied() {
		return result, nil
	}

	instance.Status = dbm.InstanceActive
	result.Instance = toInstanceResponse(instance, nil)
	return result, nil
}

// SaveSection writes one section and records the file's new version.
func (p *ProductService) SaveSection(ctx context.Context, companyID, userID, instanceID uuid.UUID, section string, data json.RawMessage) error {
	role, err := p.requireWriter(ctx, companyID, userID)
	if err != nil {
		return err
	}
	section = strings.TrimSpace(section)

	return infra.RunInTransaction(ctx, p.db, func(ctx context.Context) error {
		instance, err := p.loadInCompany(ctx, companyID, instanceID)
		if err != nil {
			return err
		}
		if instance.Status != dbm.InstanceActive {
			return utils.ErrFileNotFound
		}
		if err := checkUnlocked(instance, role); err != nil {
			return err
		}

		if err := p.productRepo.UpsertSection(ctx, &dbm.ProductSection{
			InstanceID: instanceID,
			Section:    section,
			Data:       datatypes.JSON(data),
		}); err != nil {
			return fmt.Errorf("%w: save section: %v", utils.ErrDatabaseError, err)
		}
		_, err = p.recordVersion(ctx, instanceID, userID, "Updated "+section, nil)
		return err
	})
}

// LockModel makes the file read-only for everyone but the owner.
func (p *ProductService) LockModel(ctx context.Context, companyID, userID, instanceID uuid.UUID, reason string) (*rm.ProductInstanceResponse, error) {
	if err := p.requireOwner(ctx, companyID, userID); err != nil {
		return nil, err
	}
	instance, err := p.loadInCompany(ctx, companyID, instanceID)
	if err != nil {
		return nil, err
	}
	if instance.Status != dbm.InstanceActive {
		return nil, utils.ErrFileNotFound
	}

	locked, err := p.productRepo.TryLock(ctx, instanceID, userID, strings.TrimSpace(reason))
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if !locked {
		return nil, utils.ErrFileAlreadyLocked
	}
	return p.reload(ctx, companyID, instanceID)
}

func (p *ProductService) UnlockModel(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.ProductInstanceResponse, error) {
	if err := p.requireOwner(ctx, companyID, userID); err != nil {
		return nil, err
	}
	if _, err := p.loadInCompany(ctx, companyID, instanceID); err != nil {
		return nil, err
	}

	unlocked, err := p.productRepo.Unlock(ctx, instanceID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if !unlocked {
		return nil, utils.ErrFileNotLocked
	}
	return p.reload(ctx, companyID, instanceID)
}

func (p *ProductService) GetModel(ctx context.Context, companyID, userID, instanceID uuid.UUID) (*rm.ProductInstanceResponse, error) {
	if _, ok, err := p.memberRepo.GetRole(ctx, companyID, userID); err != nil {
		return nil, utils.ErrDatabaseError
	} else if !ok {
		return nil, utils.ErrFileNotFound
	}
	instance, err := p.loadInCompany(ctx, companyID, instanceID)
	if err != nil {
		return nil, err
	}

	sections, err := p.productRepo.ListSections(ctx, instanceID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	return toInstanceResponse(instance, sections), nil
}

func (p *ProductService) ListModels(ctx context.Context, companyID, userID uuid.UUID, archived bool) ([]rm.ProductInstanceResponse, error) {
	if _, ok, err := p.memberRepo.GetRole(ctx, companyID, userID); err != nil {
		return nil, utils.ErrDatabaseError
	} else if !ok {
		return nil, utils.ErrMemberNotFound
	}

	status := dbm.InstanceActive
	if archived {
		status = dbm.InstanceDeleted
	}
	instances, err := p.productRepo.ListByCompany(ctx, companyID, status)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}

	out := make([]rm.ProductInstanceResponse, 0, len(instances))
	for i := range instances {
		out = append(out, *toInstanceResponse(&instances[i], nil))
	}
	return out, nil
}

// requireWriter admits owners and editors.
func (p *ProductService) requireWriter(ctx context.Context, companyID, userID uuid.UUID) (dbm.MemberRole, error) {
	role, ok, err := p.memberRepo.GetRole(ctx, companyID, userID)
	if err != nil {
		return "", utils.ErrDatabaseError
	}
	if !ok {
		return "", utils.ErrMemberNotFound
	}
	if role == dbm.RoleViewer {
		return "", utils.ErrInsufficientRole
	}
	return role, nil
}

func (p *ProductService) requireOwner(ctx context.Context, companyID, userID uuid.UUID) error {
	role, ok, err := p.memberRepo.GetRole(ctx, companyID, userID)
	if err != nil {
		return utils.ErrDatabaseError
	}
	if !ok || role != dbm.RoleOwner {
		return utils.ErrNotOwner
	}
	return nil
}

// checkUnlocked lets the owner through a lock.
func checkUnlocked(instance *dbm.ProductInstance, role dbm.MemberRole) error {
	if instance.LockedBy != nil && role != dbm.RoleOwner {
		return utils.ErrFileLocked
	}
	return nil
}

func (p *ProductService) loadInCompany(ctx context.Context, companyID, instanceID uuid.UUID) (*dbm.ProductInstance, error) {
	instance, err := p.productRepo.FindByID(ctx, instanceID)
	if err != nil {
		return nil, utils.ErrDatabaseError
	}
	if instance == nil || instance.CompanyID != companyID {
		return nil, utils.ErrFileNotFound
	}
	return instance, nil
}

func (p *ProductService) reload(ctx context.Context, companyID, instanceID uuid.UUID) (*rm.ProductInstanceResponse, error) {
	instance, err := p.loadInCompany(ctx, companyID, instanceID)
	if err != nil {
		return nil, err
	}
	return toInstanceResponse(instance, nil), nil
}

func toInstanceResponse(instance *dbm.ProductInstance, sections []dbm.ProductSection) *rm.ProductInstanceResponse {
	resp := &rm.ProductInstanceResponse{
		ID:             instance.ID,
		CompanyID:      instance.CompanyID,
		Title:          instance.Title,
		Description:    instance.Description,
		Status:         string(instance.Status),
		CreatedAt:      instance.CreatedAt,
		CurrentVersion: instance.CurrentVersion,
		IsLocked:       instance.LockedBy != nil,
		LockedBy:       instance.LockedBy,
		LockedAt:       instance.LockedAt,
		LockedReason:   instance.LockedReason,
	}
	if len(sections) > 0 {
		resp.Sections = make(map[string]json.RawMessage, len(sections))
		for _, s := range sections {
			resp.Sections[s.Section] = json.RawMessage(s.Data)
		}
	}
	return resp
}
